package reminder

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/pkg/pagination"
)

type Handler struct {
	repo       Repository
	dispatcher *Dispatcher
}

func NewHandler(repo Repository, dispatcher *Dispatcher) *Handler {
	return &Handler{repo: repo, dispatcher: dispatcher}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleClinician, auth.RoleSupervisor))
	read.GET("/reminders", h.ListReminders)
	read.GET("/reminders/time", h.ReminderTime)
	read.GET("/reminders/:id", h.GetReminder)

	supervise := api.Group("", auth.RequireRole(auth.RoleSupervisor))
	supervise.POST("/reminders/dispatch", h.Dispatch)
}

func (h *Handler) ListReminders(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{Status: Status(c.QueryParam("status")), Limit: pg.Limit, Offset: pg.Offset}
	if f.Status != "" && !f.Status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	var err error
	if v := c.QueryParam("appointment_id"); v != "" {
		if f.AppointmentID, err = uuid.Parse(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment_id")
		}
	}
	if v := c.QueryParam("client_id"); v != "" {
		if f.ClientID, err = uuid.Parse(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid client_id")
		}
	}

	items, total, err := h.repo.List(c.Request().Context(), f)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Reminder{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetReminder(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.repo.GetByID(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

// Dispatch runs one batch immediately.
func (h *Handler) Dispatch(c echo.Context) error {
	res, err := h.dispatcher.RunBatch(c.Request().Context(), h.dispatcher.now())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// ReminderTime reports when the reminder for an appointment starting at
// ?start= would be due.
func (h *Handler) ReminderTime(c echo.Context) error {
	start, err := time.Parse(time.RFC3339, c.QueryParam("start"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "start must be an RFC 3339 timestamp")
	}
	return c.JSON(http.StatusOK, map[string]time.Time{
		"start":         start,
		"scheduled_for": ComputeReminderTime(start),
	})
}
