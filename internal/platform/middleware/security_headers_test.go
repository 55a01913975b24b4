package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func securedServer(origins []string) *echo.Echo {
	e := echo.New()
	e.Use(SecurityHeaders(origins))
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	e.GET("/api/v1/records/:id", ok)
	e.GET("/api/v1/records/:id/pdf", func(c echo.Context) error {
		return c.Blob(http.StatusOK, "application/pdf", []byte("%PDF-1.3"))
	})
	e.POST("/api/v1/records/export", ok)
	e.GET("/api/v1/blobs/:id", ok)
	e.GET("/api/v1/events/ws", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "not a websocket handshake")
	})
	return e
}

func TestSecurityHeaders_PolicyPerRoute(t *testing.T) {
	origins := []string{"https://staff.clinic.example/", "http://localhost:3000"}
	tests := []struct {
		name   string
		method string
		path   string
		csp    string
		frame  string
	}{
		{"json record", http.MethodGet, "/api/v1/records/42",
			"default-src 'none'; frame-ancestors 'none'", "DENY"},
		{"record pdf", http.MethodGet, "/api/v1/records/42/pdf",
			"default-src 'none'; frame-ancestors https://staff.clinic.example http://localhost:3000", ""},
		{"multi export", http.MethodPost, "/api/v1/records/export",
			"default-src 'none'; frame-ancestors https://staff.clinic.example http://localhost:3000", ""},
		{"archived blob", http.MethodGet, "/api/v1/blobs/7",
			"default-src 'none'; frame-ancestors https://staff.clinic.example http://localhost:3000", ""},
		{"event feed", http.MethodGet, "/api/v1/events/ws",
			"default-src 'none'; connect-src 'self' https://staff.clinic.example wss://staff.clinic.example http://localhost:3000 ws://localhost:3000; frame-ancestors 'none'", "DENY"},
		{"unknown route", http.MethodGet, "/nowhere",
			"default-src 'none'; frame-ancestors 'none'", "DENY"},
	}

	e := securedServer(origins)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if got := rec.Header().Get("Content-Security-Policy"); got != tt.csp {
				t.Errorf("Content-Security-Policy:\n got %q\nwant %q", got, tt.csp)
			}
			if got := rec.Header().Get("X-Frame-Options"); got != tt.frame {
				t.Errorf("X-Frame-Options: got %q, want %q", got, tt.frame)
			}
			if got := rec.Header().Get("Cache-Control"); got != "no-store" {
				t.Errorf("Cache-Control: got %q, want no-store", got)
			}
			if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
				t.Errorf("X-Content-Type-Options: got %q", got)
			}
		})
	}
}

func TestSecurityHeaders_NoOriginsDeniesFraming(t *testing.T) {
	e := securedServer(nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/records/42/pdf", nil))

	if rec.Code != http.StatusOK || rec.Header().Get(echo.HeaderContentType) != "application/pdf" {
		t.Fatalf("expected the pdf to be served, got %d %s", rec.Code, rec.Header().Get(echo.HeaderContentType))
	}
	if got := rec.Header().Get("Content-Security-Policy"); got != "default-src 'none'; frame-ancestors 'none'" {
		t.Errorf("unexpected policy %q", got)
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("expected DENY without staff app origins")
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events/ws", nil))
	if got := rec.Header().Get("Content-Security-Policy"); got != "default-src 'none'; connect-src 'self'; frame-ancestors 'none'" {
		t.Errorf("unexpected feed policy %q", got)
	}
}

func TestSecurityHeaders_WildcardOrigin(t *testing.T) {
	e := securedServer([]string{"*"})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/blobs/7", nil))

	if got := rec.Header().Get("Content-Security-Policy"); got != "default-src 'none'; frame-ancestors *" {
		t.Errorf("unexpected policy %q", got)
	}
}

func TestSecurityHeaders_SetOnErrorResponses(t *testing.T) {
	e := securedServer(nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events/ws", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Error("expected headers on error responses")
	}
}
