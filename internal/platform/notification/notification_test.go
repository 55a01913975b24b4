package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestTemplateEngine_RegisterAndRender(t *testing.T) {
	eng := NewTemplateEngine()
	eng.RegisterTemplate(Template{
		ID:      "test-tpl",
		Name:    "Test Template",
		Subject: "Hello {{name}}",
		Body:    "Dear {{name}}, your code is {{code}}.",
		Type:    TypeEmail,
	})

	subject, body, err := eng.Render("test-tpl", map[string]string{
		"name": "Alice",
		"code": "1234",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Hello Alice" {
		t.Errorf("subject = %q, want %q", subject, "Hello Alice")
	}
	if body != "Dear Alice, your code is 1234." {
		t.Errorf("body = %q", body)
	}
}

func TestTemplateEngine_RenderMissing(t *testing.T) {
	eng := NewTemplateEngine()
	if _, _, err := eng.Render("nonexistent", nil); err == nil {
		t.Fatal("expected error for missing template, got nil")
	}
}

func TestTemplateEngine_AppointmentReminder(t *testing.T) {
	eng := NewTemplateEngine()
	subject, body, err := eng.Render(TemplateAppointmentReminder, map[string]string{
		"client_name":  "Sam Lee",
		"title":        "Intake session",
		"date":         "Mon, 10 Jun 2024",
		"time":         "14:00",
		"staff_name":   "Jordan Reyes",
		"location":     "Room 2",
		"organization": "Riverside Counseling",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Reminder: Intake session on Mon, 10 Jun 2024" {
		t.Errorf("subject = %q", subject)
	}
	if strings.Contains(body, "{{") {
		t.Errorf("unrendered placeholder in body: %q", body)
	}
}

func TestTemplateEngine_RenderMissingKeyLeftAsIs(t *testing.T) {
	eng := NewTemplateEngine()
	_, body, err := eng.Render(TemplatePasswordChanged, map[string]string{"name": "Dana"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(body, "{{organization}}") || !strings.Contains(body, "Hello Dana") {
		t.Errorf("expected missing key to stay in body, got %q", body)
	}
}

func TestNotificationManager_Send(t *testing.T) {
	sender := &MockEmailSender{}
	mgr := NewNotificationManager(sender, nil)

	n := &Notification{Recipients: []string{"a@example.org", "b@example.org"}, Subject: "S", Body: "B"}
	if err := mgr.Send(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.ID == "" || n.Status != StatusSent || n.SentAt == nil {
		t.Errorf("unexpected notification state %+v", n)
	}
	calls := sender.Calls()
	if len(calls) != 1 || len(calls[0].To) != 2 {
		t.Fatalf("expected one call to two recipients, got %+v", calls)
	}
}

func TestNotificationManager_SendFailed(t *testing.T) {
	sender := &MockEmailSender{ShouldFail: true, FailError: "smtp down"}
	mgr := NewNotificationManager(sender, nil)

	n := &Notification{Recipients: []string{"a@example.org"}, Subject: "S", Body: "B"}
	err := mgr.Send(context.Background(), n)
	if err == nil {
		t.Fatal("expected error")
	}
	if n.Status != StatusFailed || n.Error != "smtp down" {
		t.Errorf("unexpected notification state %+v", n)
	}
	if len(sender.Calls()) != 1 {
		t.Errorf("expected exactly one attempt, got %d", len(sender.Calls()))
	}
}

func TestNotificationManager_NoRecipients(t *testing.T) {
	sender := &MockEmailSender{}
	mgr := NewNotificationManager(sender, nil)

	err := mgr.Deliver(context.Background(), nil, "S", "B")
	if !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
	if len(sender.Calls()) != 0 {
		t.Error("sender must not be called without recipients")
	}
}

func TestNotificationManager_SendFromTemplate(t *testing.T) {
	sender := &MockEmailSender{}
	mgr := NewNotificationManager(sender, nil)

	n, err := mgr.SendFromTemplate(context.Background(), TemplatePasswordChanged,
		map[string]string{"name": "Jordan", "organization": "Riverside", "changed_at": "today"},
		"jordan@example.org")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.TemplateID != TemplatePasswordChanged || n.Subject != "Your password was changed" {
		t.Errorf("unexpected notification %+v", n)
	}
}

func TestNotificationManager_HistoryIsBounded(t *testing.T) {
	mgr := NewNotificationManager(&MockEmailSender{}, nil)
	mgr.historySize = 3

	var first string
	for i := 0; i < 5; i++ {
		n := &Notification{Recipients: []string{"a@example.org"}, Body: fmt.Sprint(i)}
		_ = mgr.Send(context.Background(), n)
		if i == 0 {
			first = n.ID
		}
	}

	if _, err := mgr.GetNotification(context.Background(), first); err == nil {
		t.Error("expected oldest notification to be evicted")
	}
	list, _ := mgr.ListByRecipient(context.Background(), "A@example.org", 10)
	if len(list) != 3 || list[0].Body != "4" {
		t.Fatalf("expected 3 newest-first entries, got %d", len(list))
	}
}

func TestNotificationManager_ConcurrentSend(t *testing.T) {
	mgr := NewNotificationManager(&MockEmailSender{}, nil)

	var wg sync.WaitGroup
	count := 50
	wg.Add(count)
	for i := 0; i < count; i++ {
		go func() {
			defer wg.Done()
			_ = mgr.Deliver(context.Background(), []string{"concurrent@example.org"}, "Concurrent", "Body")
		}()
	}
	wg.Wait()

	if stats := mgr.NotificationStats(context.Background()); stats[StatusSent] != count {
		t.Errorf("sent = %d, want %d", stats[StatusSent], count)
	}
}

func TestSendGridSender_PostsMail(t *testing.T) {
	var got map[string]interface{}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if r.URL.Path != sendGridEndpoint {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewSendGridSender("sg-key", "Riverside", "no-reply@example.org")
	s.host = srv.URL

	if err := s.SendEmail(context.Background(), []string{"client@example.org"}, "Reminder", "See you"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if auth != "Bearer sg-key" {
		t.Errorf("unexpected Authorization header %q", auth)
	}
	p := got["personalizations"].([]interface{})[0].(map[string]interface{})
	if p["subject"] != "[Riverside] Reminder" {
		t.Errorf("unexpected subject %v", p["subject"])
	}
}

func TestSendGridSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	s := NewSendGridSender("wrong", "Riverside", "no-reply@example.org")
	s.host = srv.URL

	err := s.SendEmail(context.Background(), []string{"client@example.org"}, "Reminder", "See you")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestLogSender(t *testing.T) {
	var buf strings.Builder
	s := NewLogSender(zerolog.New(&buf))
	if err := s.SendEmail(context.Background(), []string{"a@example.org"}, "Hi", "Body"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), `"subject":"Hi"`) {
		t.Errorf("expected subject in log, got %s", buf.String())
	}
}

func setupHandler() (*NotificationHandler, *NotificationManager, *echo.Echo) {
	mgr := NewNotificationManager(&MockEmailSender{}, nil)
	return NewNotificationHandler(mgr), mgr, echo.New()
}

func TestNotificationHandler_SendTemplate(t *testing.T) {
	h, _, e := setupHandler()

	body := `{"template_id":"appointment-reminder","recipients":["tpl@example.org"],"data":{"client_name":"Alice"}}`
	req := httptest.NewRequest(http.MethodPost, "/notifications/send-template", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.HandleSendTemplate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
}

func TestNotificationHandler_SendTemplateUnknown(t *testing.T) {
	h, _, e := setupHandler()

	body := `{"template_id":"nope","recipients":["tpl@example.org"]}`
	req := httptest.NewRequest(http.MethodPost, "/notifications/send-template", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.HandleSendTemplate(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestNotificationHandler_GetAndList(t *testing.T) {
	h, mgr, e := setupHandler()
	n := &Notification{Recipients: []string{"get@example.org"}, Subject: "S", Body: "B"}
	_ = mgr.Send(context.Background(), n)

	req := httptest.NewRequest(http.MethodGet, "/notifications/"+n.ID, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(n.ID)
	if err := h.HandleGet(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/notifications?recipient=get@example.org", nil)
	rec = httptest.NewRecorder()
	if err := h.HandleList(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var list []Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Fatalf("expected one notification, got %s", rec.Body.String())
	}
}

func TestNotificationHandler_ListRequiresRecipient(t *testing.T) {
	h, _, e := setupHandler()
	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	err := h.HandleList(e.NewContext(req, httptest.NewRecorder()))
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestNotificationHandler_Stats(t *testing.T) {
	h, mgr, e := setupHandler()
	_ = mgr.Deliver(context.Background(), []string{"x@example.org"}, "S", "B")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/notifications/stats", nil)
	if err := h.HandleStats(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var stats map[string]int
	_ = json.Unmarshal(rec.Body.Bytes(), &stats)
	if stats[StatusSent] != 1 {
		t.Errorf("expected one sent, got %v", stats)
	}
}
