package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// Route templates whose responses are documents rather than JSON. The staff
// app may embed these in a viewer frame.
var documentRoutes = map[string]bool{
	"/api/v1/records/:id/pdf": true,
	"/api/v1/records/export":  true,
	"/api/v1/blobs/:id":       true,
}

const eventFeedRoute = "/api/v1/events/ws"

// SecurityHeaders sets response headers for an API that serves client
// records. origins are the staff app origins from CORS_ORIGINS: they may
// frame downloaded PDFs and open the event feed.
func SecurityHeaders(origins []string) echo.MiddlewareFunc {
	ancestors := sourceList(origins, "'none'", nil)
	connect := sourceList(origins, "'self'", wsOrigin)

	apiPolicy := "default-src 'none'; frame-ancestors 'none'"
	documentPolicy := "default-src 'none'; frame-ancestors " + ancestors
	feedPolicy := "default-src 'none'; connect-src " + connect + "; frame-ancestors 'none'"

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			// Records, signatures and their PDFs must never be cached.
			h.Set("Cache-Control", "no-store")

			switch path := c.Path(); {
			case documentRoutes[path]:
				h.Set("Content-Security-Policy", documentPolicy)
				// X-Frame-Options cannot list origins; frame-ancestors governs.
				if ancestors == "'none'" {
					h.Set("X-Frame-Options", "DENY")
				}
			case path == eventFeedRoute:
				h.Set("Content-Security-Policy", feedPolicy)
				h.Set("X-Frame-Options", "DENY")
			default:
				h.Set("Content-Security-Policy", apiPolicy)
				h.Set("X-Frame-Options", "DENY")
			}
			return next(c)
		}
	}
}

// sourceList joins origins into a CSP source list, starting with base when
// base is not 'none'. A "*" origin allows any source.
func sourceList(origins []string, base string, mapOrigin func(string) string) string {
	var out []string
	if base != "'none'" {
		out = append(out, base)
	}
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if o == "*" {
			return "*"
		}
		out = append(out, o)
		if mapOrigin != nil {
			if ws := mapOrigin(o); ws != "" {
				out = append(out, ws)
			}
		}
	}
	if len(out) == 0 {
		return base
	}
	return strings.Join(out, " ")
}

func wsOrigin(origin string) string {
	switch {
	case strings.HasPrefix(origin, "https://"):
		return "wss://" + strings.TrimPrefix(origin, "https://")
	case strings.HasPrefix(origin, "http://"):
		return "ws://" + strings.TrimPrefix(origin, "http://")
	}
	return ""
}
