package settings

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/records/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/settings", h.GetOrganization)
	api.GET("/settings/me", h.GetMine)
	api.PUT("/settings/me", h.PutMine)
	api.PUT("/settings", h.PutOrganization, auth.RequireRole(auth.RoleSupervisor))
}

type updateResponse struct {
	Settings Settings `json:"settings"`
	Changed  bool     `json:"changed"`
}

func (h *Handler) GetOrganization(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Organization(c.Request().Context()))
}

func (h *Handler) PutOrganization(c echo.Context) error {
	return h.put(c, OrganizationKey)
}

func (h *Handler) GetMine(c echo.Context) error {
	user := auth.UserIDFromContext(c.Request().Context())
	if user == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "no user in request")
	}
	st, err := h.svc.Get(c.Request().Context(), UserKey(user))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) PutMine(c echo.Context) error {
	user := auth.UserIDFromContext(c.Request().Context())
	if user == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "no user in request")
	}
	return h.put(c, UserKey(user))
}

// put replaces the settings of owner with the request body. Fields missing
// from the body keep their current values.
func (h *Handler) put(c echo.Context, owner string) error {
	ctx := c.Request().Context()
	current, err := h.svc.Get(ctx, owner)
	if err != nil {
		return err
	}
	in := current
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st, changed, err := h.svc.Update(ctx, owner, func(s *Settings) error {
		*s = in
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updateResponse{Settings: st, Changed: changed})
}
