package signature

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/records/internal/platform/auth"
)

type mockRecords struct {
	known        map[uuid.UUID]bool
	relationship map[uuid.UUID]bool
	appended     []Signature
	appendErr    error
}

func newMockRecords(ids ...uuid.UUID) *mockRecords {
	m := &mockRecords{known: map[uuid.UUID]bool{}, relationship: map[uuid.UUID]bool{}}
	for _, id := range ids {
		m.known[id] = true
	}
	return m
}

func (m *mockRecords) RequiresRelationship(_ context.Context, id uuid.UUID) (bool, error) {
	if !m.known[id] {
		return false, ErrRecordNotFound
	}
	return m.relationship[id], nil
}

func (m *mockRecords) AppendSignature(_ context.Context, id uuid.UUID, sig Signature) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.appended = append(m.appended, sig)
	return nil
}

type handlerFixture struct {
	h       *Handler
	e       *echo.Echo
	records *mockRecords
	record  uuid.UUID
}

func newFixture() *handlerFixture {
	record := uuid.New()
	records := newMockRecords(record)
	h := NewHandler(NewSessionStore(time.Hour), records)
	h.now = func() time.Time { return submitTime }
	return &handlerFixture{h: h, e: echo.New(), records: records, record: record}
}

func (f *handlerFixture) call(t *testing.T, handler echo.HandlerFunc, method, body string, params map[string]string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithIdentity(req.Context(), "clinician-1", auth.RoleClinician))
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)
	var names, values []string
	for k, v := range params {
		names = append(names, k)
		values = append(values, v)
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
	return rec, handler(c)
}

func (f *handlerFixture) createSession(t *testing.T) View {
	t.Helper()
	rec, err := f.call(t, f.h.CreateSession, http.MethodPost, "", map[string]string{"id": f.record.String()})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var v View
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return v
}

func expectHTTPStatus(t *testing.T, err error, want int) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError with %d, got %v", want, err)
	}
	if he.Code != want {
		t.Fatalf("expected status %d, got %d (%v)", want, he.Code, he.Message)
	}
}

func TestHandler_CreateSession_UnknownRecord(t *testing.T) {
	f := newFixture()
	_, err := f.call(t, f.h.CreateSession, http.MethodPost, "", map[string]string{"id": uuid.NewString()})
	expectHTTPStatus(t, err, http.StatusNotFound)
}

func TestHandler_DrawAndSubmit(t *testing.T) {
	f := newFixture()
	v := f.createSession(t)
	sid := map[string]string{"sid": v.ID.String()}

	if _, err := f.call(t, f.h.ChooseMethod, http.MethodPut, `{"method":"draw"}`, sid); err != nil {
		t.Fatalf("choose: %v", err)
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(testPNG(t))
	rec, err := f.call(t, f.h.Draw, http.MethodPut, `{"data_url":"`+dataURL+`"}`, sid)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"state":"ready"`) {
		t.Fatalf("expected ready state, got %s", rec.Body.String())
	}

	rec, err = f.call(t, f.h.Submit, http.MethodPost, `{"signer_name":"Sam Lee","role":"client"}`, sid)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(f.records.appended) != 1 {
		t.Fatalf("expected one appended signature, got %d", len(f.records.appended))
	}
	sig := f.records.appended[0]
	if sig.Method != MethodDraw || sig.ImageType != "image/png" || !sig.SignedAt.Equal(submitTime) {
		t.Errorf("unexpected signature %+v", sig)
	}
}

func TestHandler_Submit_RecordRequiresRelationship(t *testing.T) {
	f := newFixture()
	f.records.relationship[f.record] = true
	v := f.createSession(t)
	sid := map[string]string{"sid": v.ID.String()}

	f.call(t, f.h.ChooseMethod, http.MethodPut, `{"method":"type"}`, sid)
	f.call(t, f.h.Type, http.MethodPut, `{"text":"Pat Lee"}`, sid)

	_, err := f.call(t, f.h.Submit, http.MethodPost, `{"signer_name":"Pat Lee","role":"client"}`, sid)
	expectHTTPStatus(t, err, http.StatusUnprocessableEntity)
	if len(f.records.appended) != 0 {
		t.Fatal("no signature may be appended")
	}
}

func TestHandler_Submit_GuardianWithoutRelationship(t *testing.T) {
	f := newFixture()
	v := f.createSession(t)
	sid := map[string]string{"sid": v.ID.String()}

	f.call(t, f.h.ChooseMethod, http.MethodPut, `{"method":"type"}`, sid)
	f.call(t, f.h.Type, http.MethodPut, `{"text":"Pat Lee"}`, sid)

	_, err := f.call(t, f.h.Submit, http.MethodPost, `{"signer_name":"Pat Lee","role":"guardian"}`, sid)
	expectHTTPStatus(t, err, http.StatusUnprocessableEntity)
	if len(f.records.appended) != 0 {
		t.Fatal("guardian without relationship must not produce a signature")
	}
}

func TestHandler_Submit_AppendFailureKeepsReady(t *testing.T) {
	f := newFixture()
	f.records.appendErr = errors.New("db down")
	v := f.createSession(t)
	sid := map[string]string{"sid": v.ID.String()}

	f.call(t, f.h.ChooseMethod, http.MethodPut, `{"method":"type"}`, sid)
	f.call(t, f.h.Type, http.MethodPut, `{"text":"Sam"}`, sid)

	if _, err := f.call(t, f.h.Submit, http.MethodPost, `{"signer_name":"Sam","role":"client"}`, sid); err == nil {
		t.Fatal("expected error")
	}
	got, err := f.h.sessions.Get(v.ID, "clinician-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != "ready" {
		t.Errorf("expected flow to stay ready, got %s", got.State)
	}
}

func TestHandler_MethodMismatch(t *testing.T) {
	f := newFixture()
	v := f.createSession(t)
	sid := map[string]string{"sid": v.ID.String()}

	f.call(t, f.h.ChooseMethod, http.MethodPut, `{"method":"upload"}`, sid)
	_, err := f.call(t, f.h.Type, http.MethodPut, `{"text":"Sam"}`, sid)
	expectHTTPStatus(t, err, http.StatusConflict)
}

func TestHandler_Upload(t *testing.T) {
	f := newFixture()
	v := f.createSession(t)
	sid := map[string]string{"sid": v.ID.String()}
	f.call(t, f.h.ChooseMethod, http.MethodPut, `{"method":"upload"}`, sid)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, _ := w.CreateFormFile("file", "sig.jpg")
	part.Write(testJPEG(t))
	w.Close()

	req := httptest.NewRequest(http.MethodPut, "/", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	req = req.WithContext(auth.WithIdentity(req.Context(), "clinician-1", auth.RoleClinician))
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)
	c.SetParamNames("sid")
	c.SetParamValues(v.ID.String())

	if err := f.h.Upload(c); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"has_payload":true`) {
		t.Errorf("expected payload, got %s", rec.Body.String())
	}
}

func TestHandler_Draw_BadDataURL(t *testing.T) {
	f := newFixture()
	v := f.createSession(t)
	_, err := f.call(t, f.h.Draw, http.MethodPut, `{"data_url":"not-a-data-url"}`, map[string]string{"sid": v.ID.String()})
	expectHTTPStatus(t, err, http.StatusBadRequest)
}

func TestHandler_UnknownSession(t *testing.T) {
	f := newFixture()
	_, err := f.call(t, f.h.GetSession, http.MethodGet, "", map[string]string{"sid": uuid.NewString()})
	expectHTTPStatus(t, err, http.StatusNotFound)
}

func TestHandler_DeleteSession(t *testing.T) {
	f := newFixture()
	v := f.createSession(t)
	rec, err := f.call(t, f.h.DeleteSession, http.MethodDelete, "", map[string]string{"sid": v.ID.String()})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}
