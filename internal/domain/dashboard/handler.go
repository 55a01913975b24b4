package dashboard

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
	api.GET("/dashboard/me", h.Mine, auth.RequireRole(auth.RoleStaff, auth.RoleClinician, auth.RoleSupervisor))

	supervise := api.Group("", auth.RequireRole(auth.RoleSupervisor))
	supervise.GET("/dashboard/quality", h.Quality)
	supervise.GET("/dashboard/staff/:id", h.Staff)
}

func (h *Handler) Quality(c echo.Context) error {
	summary, err := h.svc.Quality(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) Staff(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "staff id is required")
	}
	summary, err := h.svc.Staff(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}

// Mine is the caseload of the authenticated user.
func (h *Handler) Mine(c echo.Context) error {
	user := auth.UserIDFromContext(c.Request().Context())
	if user == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "no user in request")
	}
	summary, err := h.svc.Staff(c.Request().Context(), user)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}
