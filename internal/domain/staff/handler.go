package staff

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the staff routes. sensitive is applied to password
// changes.
func (h *Handler) RegisterRoutes(api *echo.Group, sensitive ...echo.MiddlewareFunc) {
	api.PUT("/staff/me/password", h.ChangeMyPassword, sensitive...)

	read := api.Group("", auth.RequireRole(auth.RoleSupervisor))
	read.GET("/staff", h.ListStaff)
	read.GET("/staff/:id", h.GetStaff)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/staff", h.CreateStaff)
	admin.PUT("/staff/:id", h.UpdateStaff)
}

func httpError(err error) error {
	var pce *PasswordChangeError
	switch {
	case errors.As(err, &pce):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, pce.Message)
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrEmailTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInactive):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	return err
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) CreateStaff(c echo.Context) error {
	var in NewStaff
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, st)
}

func (h *Handler) GetStaff(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	st, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) ListStaff(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{
		Role:       c.QueryParam("role"),
		ActiveOnly: c.QueryParam("active") == "true",
		Limit:      pg.Limit,
		Offset:     pg.Offset,
	}
	items, total, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateStaff(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in UpdateStaff
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st, err := h.svc.Update(c.Request().Context(), id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

// ChangeMyPassword changes the password of the authenticated staff member.
func (h *Handler) ChangeMyPassword(c echo.Context) error {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "no staff account in request")
	}
	var change PasswordChange
	if err := c.Bind(&change); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.ChangePassword(c.Request().Context(), id, change); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
