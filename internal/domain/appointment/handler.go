package appointment

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/pkg/pagination"
)

// LocationFunc resolves the organization time zone for calendar views.
type LocationFunc func(ctx context.Context) *time.Location

type Handler struct {
	svc      *Service
	location LocationFunc
}

func NewHandler(svc *Service, location LocationFunc) *Handler {
	if location == nil {
		location = func(context.Context) *time.Location { return time.UTC }
	}
	return &Handler{svc: svc, location: location}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleClinician, auth.RoleSupervisor))
	g.GET("/appointments", h.ListAppointments)
	g.GET("/appointments/calendar", h.Calendar)
	g.POST("/appointments", h.CreateAppointment)
	g.GET("/appointments/:id", h.GetAppointment)
	g.PUT("/appointments/:id", h.UpdateAppointment)
	g.POST("/appointments/:id/cancel", h.CancelAppointment)
	g.POST("/appointments/:id/status", h.SetStatus)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) filter(c echo.Context) (ListFilter, error) {
	f := ListFilter{Status: Status(c.QueryParam("status"))}
	var err error
	if v := c.QueryParam("client_id"); v != "" {
		if f.ClientID, err = uuid.Parse(v); err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid client_id")
		}
	}
	if v := c.QueryParam("staff_id"); v != "" {
		if f.StaffID, err = uuid.Parse(v); err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid staff_id")
		}
	}
	if v := c.QueryParam("from"); v != "" {
		if f.From, err = time.Parse(time.RFC3339, v); err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "from must be an RFC 3339 timestamp")
		}
	}
	if v := c.QueryParam("to"); v != "" {
		if f.To, err = time.Parse(time.RFC3339, v); err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "to must be an RFC 3339 timestamp")
		}
	}
	return f, nil
}

func (h *Handler) ListAppointments(c echo.Context) error {
	f, err := h.filter(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	f.Limit, f.Offset = pg.Limit, pg.Offset

	items, total, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a.ID = uuid.Nil
	if err := h.svc.Create(c.Request().Context(), &a); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Update(c.Request().Context(), id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Cancel(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) SetStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req struct {
		Status Status `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.SetStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

// Calendar serves the month grid for ?year=&month=, defaulting to the
// current month. ?week_start=monday starts weeks on Monday.
func (h *Handler) Calendar(c echo.Context) error {
	ctx := c.Request().Context()
	loc := h.location(ctx)
	now := time.Now().In(loc)
	year, month := now.Year(), now.Month()

	if v := c.QueryParam("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1900 || y > 9999 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid year")
		}
		year = y
	}
	if v := c.QueryParam("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid month")
		}
		month = time.Month(m)
	}
	weekStart := time.Sunday
	switch strings.ToLower(c.QueryParam("week_start")) {
	case "", "sunday":
	case "monday":
		weekStart = time.Monday
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "week_start must be sunday or monday")
	}

	f, err := h.filter(c)
	if err != nil {
		return err
	}
	g, err := h.svc.Calendar(ctx, year, month, weekStart, loc, f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, g)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotScheduled):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return err
}
