package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/platform/auth"
)

func startServer(t *testing.T, hub *Hub, origins ...string) string {
	t.Helper()
	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithIdentity(c.Request().Context(), "staff-42", auth.RoleClinician)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(hub, origins, zerolog.Nop()).RegisterRoutes(e.Group("/api/v1"))

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events/ws"
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandler_RejectsPlainHTTP(t *testing.T) {
	h := NewHandler(newTestHub(), nil, zerolog.Nop())
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/events/ws", nil), rec)

	if err := h.Connect(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if h.hub.ClientCount() != 0 {
		t.Error("no client should be registered")
	}
}

func TestHandler_CheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", []string{"http://localhost:3000"}, "", true},
		{"listed origin", []string{"http://localhost:3000/"}, "http://localhost:3000", true},
		{"unlisted origin", []string{"http://localhost:3000"}, "http://evil.example", false},
		{"wildcard", []string{"*"}, "http://anything.example", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(newTestHub(), tt.allowed, zerolog.Nop())
			req := httptest.NewRequest(http.MethodGet, "/api/v1/events/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := h.upgrader.CheckOrigin(req); got != tt.want {
				t.Errorf("CheckOrigin = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandler_StreamsEvents(t *testing.T) {
	hub := newTestHub()
	url := startServer(t, hub, "http://localhost:3000")

	conn, _, err := gorillawebsocket.DefaultDialer.Dial(url+"?topics=records,bogus", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return hub.TopicCount(TopicRecords) == 1 })

	var client *Client
	hub.mu.RLock()
	for c := range hub.all {
		client = c
	}
	hub.mu.RUnlock()
	if client.UserID != "staff-42" {
		t.Errorf("expected user staff-42 on client, got %q", client.UserID)
	}

	hub.Notify(context.Background(), TopicRecords, "record.signed", recordID, nil)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != "record.signed" || ev.Subject != recordID {
		t.Errorf("unexpected event %+v", ev)
	}

	sub, _ := json.Marshal(ClientMessage{Action: "subscribe", Topics: []string{TopicReminders}})
	if err := conn.WriteMessage(gorillawebsocket.TextMessage, sub); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, func() bool { return hub.TopicCount(TopicReminders) == 1 })

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	hub := newTestHub()
	url := startServer(t, hub, "http://localhost:3000")

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := gorillawebsocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 response, got %v", resp)
	}
	if hub.ClientCount() != 0 {
		t.Error("no client should be registered")
	}
}
