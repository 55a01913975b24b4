package record

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/records/internal/domain/signature"
	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/pkg/pagination"
)

// ListDefaults supplies the organization's page size and sort for lists.
type ListDefaults func(ctx context.Context) (perPage int, sort pagination.Sort)

type Handler struct {
	svc      *Service
	exporter *Exporter
	defaults ListDefaults
}

func NewHandler(svc *Service, exporter *Exporter, defaults ListDefaults) *Handler {
	if defaults == nil {
		defaults = func(context.Context) (int, pagination.Sort) { return pagination.DefaultLimit, DefaultSort }
	}
	return &Handler{svc: svc, exporter: exporter, defaults: defaults}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleClinician, auth.RoleSupervisor))
	read.GET("/records", h.ListRecords)
	read.GET("/records/:id", h.GetRecord)
	read.GET("/records/:id/pdf", h.ExportPDF)
	read.GET("/records/:id/preview", h.Preview)
	read.GET("/records/:id/archive", h.ListArchive)
	read.POST("/records/export", h.ExportMany)

	write := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleClinician, auth.RoleSupervisor))
	write.POST("/records", h.CreateRecord)
	write.PUT("/records/:id", h.UpdateRecord)
	write.PATCH("/records/:id/assessment", h.UpdateAssessment)
	write.POST("/records/:id/transitions", h.Transition)

	supervise := api.Group("", auth.RequireRole(auth.RoleSupervisor))
	supervise.DELETE("/records/:id", h.DeleteRecord)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) CreateRecord(c echo.Context) error {
	var r Record
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r.ID = uuid.Nil
	if err := h.svc.Create(c.Request().Context(), &r); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) GetRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListRecords(c echo.Context) error {
	ctx := c.Request().Context()
	perPage, defSort := h.defaults(ctx)
	pg := pagination.FromContextWithDefault(c, perPage)
	sort, err := pagination.SortFromContext(c, SortFields, defSort)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	f := ListFilter{
		Kind:      Kind(c.QueryParam("kind")),
		Status:    Status(c.QueryParam("status")),
		Query:     c.QueryParam("q"),
		CreatedBy: c.QueryParam("created_by"),
		Sort:      sort,
		Limit:     pg.Limit,
		Offset:    pg.Offset,
	}
	if v := c.QueryParam("client_id"); v != "" {
		if f.ClientID, err = uuid.Parse(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid client_id")
		}
	}

	items, total, err := h.svc.List(ctx, f)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Record{}
	}
	resp := pagination.NewResponse(items, total, pg.Limit, pg.Offset)
	resp.Links = pg.Links(c.Request().URL.Path, c.QueryParams(), total)
	return c.JSON(http.StatusOK, resp)
}

type updateRequest struct {
	Title     *string         `json:"title"`
	Body      json.RawMessage `json:"body"`
	VersionID int             `json:"version_id"`
}

func (h *Handler) UpdateRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()

	in := UpdateInput{Title: req.Title, VersionID: req.VersionID}
	if len(req.Body) > 0 {
		existing, err := h.svc.Get(ctx, id)
		if err != nil {
			return httpError(err)
		}
		if in.Body, err = DecodeBody(existing.Kind, req.Body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	r, err := h.svc.Update(ctx, id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) UpdateAssessment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p AssessmentPatch
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.UpdateAssessment(c.Request().Context(), id, p)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Transition(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req struct {
		Event Event `json:"event"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.Transition(c.Request().Context(), id, req.Event)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) DeleteRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) writePDF(c echo.Context, name string, ids ...uuid.UUID) error {
	var buf bytes.Buffer
	if err := h.exporter.PDF(c.Request().Context(), &buf, ids...); err != nil {
		return httpError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename=%q`, name))
	return c.Blob(http.StatusOK, "application/pdf", buf.Bytes())
}

func (h *Handler) ExportPDF(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	return h.writePDF(c, fmt.Sprintf("record-%s.pdf", id), id)
}

func (h *Handler) ExportMany(c echo.Context) error {
	var req struct {
		IDs []uuid.UUID `json:"ids"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.writePDF(c, "records.pdf", req.IDs...)
}

func (h *Handler) Preview(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pages, err := h.exporter.Preview(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"pages": pages})
}

func (h *Handler) ListArchive(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.exporter.Archived(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}

// httpError maps record errors onto HTTP statuses. Validation errors and
// unknown errors go to the central error handler unchanged.
func httpError(err error) error {
	status := 0
	switch {
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrRecordLocked), errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrSignaturesRequired), errors.Is(err, ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, ErrInvalidKind), errors.Is(err, ErrKindMismatch), errors.Is(err, ErrNotApplicable),
		errors.Is(err, signature.ErrIncomplete), errors.Is(err, signature.ErrInvalidRole),
		errors.Is(err, signature.ErrMethodMismatch), errors.Is(err, signature.ErrInvalidMethod):
		status = http.StatusUnprocessableEntity
	default:
		return err
	}
	return echo.NewHTTPError(status, err.Error())
}
