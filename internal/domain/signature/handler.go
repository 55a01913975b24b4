package signature

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/records/internal/platform/auth"
)

// Records is the record side of signing: it says whether a record demands a
// signer relationship and stores submitted signatures.
type Records interface {
	RequiresRelationship(ctx context.Context, recordID uuid.UUID) (bool, error)
	AppendSignature(ctx context.Context, recordID uuid.UUID, sig Signature) error
}

type Handler struct {
	sessions *SessionStore
	records  Records
	now      func() time.Time
}

func NewHandler(sessions *SessionStore, records Records) *Handler {
	return &Handler{sessions: sessions, records: records, now: time.Now}
}

// RegisterRoutes mounts the session routes. sensitive is applied to submit.
func (h *Handler) RegisterRoutes(api *echo.Group, sensitive ...echo.MiddlewareFunc) {
	g := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleClinician, auth.RoleSupervisor))
	g.POST("/records/:id/signature-sessions", h.CreateSession)
	g.GET("/signature-sessions/:sid", h.GetSession)
	g.DELETE("/signature-sessions/:sid", h.DeleteSession)
	g.PUT("/signature-sessions/:sid/method", h.ChooseMethod)
	g.PUT("/signature-sessions/:sid/draw", h.Draw)
	g.PUT("/signature-sessions/:sid/type", h.Type)
	g.PUT("/signature-sessions/:sid/upload", h.Upload)
	g.DELETE("/signature-sessions/:sid/payload", h.Clear)
	g.POST("/signature-sessions/:sid/submit", h.Submit, sensitive...)
}

func owner(c echo.Context) string {
	return auth.UserIDFromContext(c.Request().Context())
}

func sessionID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("sid"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	return id, nil
}

func (h *Handler) CreateSession(c echo.Context) error {
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	// Fails fast on unknown records.
	if _, err := h.records.RequiresRelationship(c.Request().Context(), recordID); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, h.sessions.Create(recordID, owner(c)))
}

func (h *Handler) GetSession(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	view, err := h.sessions.Get(id, owner(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) DeleteSession(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	if err := h.sessions.Delete(id, owner(c)); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) do(c echo.Context, fn func(sess *Session, f *Flow) error) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	view, err := h.sessions.Do(id, owner(c), fn)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) ChooseMethod(c echo.Context) error {
	var req struct {
		Method Method `json:"method"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.do(c, func(_ *Session, f *Flow) error { return f.Choose(req.Method) })
}

// Draw accepts the canvas export as a PNG data URL.
func (h *Handler) Draw(c echo.Context) error {
	var req struct {
		DataURL string `json:"data_url"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	png, err := decodeDataURL(req.DataURL)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.do(c, func(_ *Session, f *Flow) error { return f.Draw(png) })
}

func (h *Handler) Type(c echo.Context) error {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.do(c, func(_ *Session, f *Flow) error { return f.Type(req.Text) })
}

// Upload takes a multipart "file" field.
func (h *Handler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	if fh.Size > MaxImageSize {
		return httpError(ErrImageTooLarge)
	}
	file, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read upload")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxImageSize+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read upload")
	}
	contentType := fh.Header.Get(echo.HeaderContentType)
	return h.do(c, func(_ *Session, f *Flow) error { return f.Upload(data, contentType) })
}

func (h *Handler) Clear(c echo.Context) error {
	return h.do(c, func(_ *Session, f *Flow) error { return f.Clear() })
}

// Submit emits the signature and appends it to the session's record. If the
// record rejects it the flow stays Ready so the user can retry.
func (h *Handler) Submit(c echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()

	return h.do(c, func(sess *Session, f *Flow) error {
		required, err := h.records.RequiresRelationship(ctx, sess.RecordID)
		if err != nil {
			return err
		}
		req.RequireRelationship = req.RequireRelationship || required

		prev := f.State()
		sig, err := f.Submit(req, h.now())
		if err != nil {
			return err
		}
		if err := h.records.AppendSignature(ctx, sess.RecordID, sig); err != nil {
			f.restore(prev)
			return err
		}
		return nil
	})
}

func decodeDataURL(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	meta, data, ok := strings.Cut(s, ",")
	if !ok || !strings.HasPrefix(meta, "data:") || !strings.HasSuffix(meta, ";base64") {
		return nil, errors.New("data_url must be a base64 data URL")
	}
	out, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, errors.New("data_url is not valid base64")
	}
	return out, nil
}

// httpError maps flow and session errors onto HTTP statuses. Errors it does
// not know are returned as-is for the central error handler.
func httpError(err error) error {
	status := 0
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrIncomplete), errors.Is(err, ErrInvalidRole), errors.Is(err, ErrInvalidMethod):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ErrMethodMismatch), errors.Is(err, ErrNoMethod), errors.Is(err, ErrAlreadySubmitted):
		status = http.StatusConflict
	case errors.Is(err, ErrInvalidImage):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, ErrImageTooLarge):
		status = http.StatusRequestEntityTooLarge
	default:
		return err
	}
	return echo.NewHTTPError(status, err.Error())
}
