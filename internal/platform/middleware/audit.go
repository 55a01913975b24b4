package middleware

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/platform/auth"
)

// AuditEntry describes one access to client data.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	Resource   string
	ResourceID string
	Action     string
	IPAddress  string
	Method     string
	Path       string
	StatusCode int
	RequestID  string
	Timestamp  time.Time
}

// Audit logs every /api/v1 request as a "record_access" event after the
// handler ran, so the entry carries the final status.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			resource, id, action := classifyPath(req.Method, req.URL.Path)
			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(req.Context()),
				UserRoles:  auth.RolesFromContext(req.Context()),
				Resource:   resource,
				ResourceID: id,
				Action:     action,
				IPAddress:  c.RealIP(),
				Method:     req.Method,
				Path:       req.URL.Path,
				StatusCode: c.Response().Status,
				Timestamp:  time.Now().UTC(),
			}
			entry.RequestID, _ = c.Get("request_id").(string)

			logger.Info().
				Str("type", "record_access").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Time("at", entry.Timestamp).
				Msg("record_access")

			return err
		}
	}
}

// classifyPath splits /api/v1/<resource>/<id>/<action...> into its parts.
// Exports, previews and PDF downloads are reported as "export".
func classifyPath(method, path string) (resource, id, action string) {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/"), "/")
	resource = segments[0]
	if resource == "" {
		resource = "unknown"
	}
	if len(segments) > 1 {
		if _, err := uuid.Parse(segments[1]); err == nil {
			id = segments[1]
		}
	}

	last := segments[len(segments)-1]
	switch {
	case last == "pdf" || last == "preview" || last == "export":
		return resource, id, "export"
	case method == "GET" || method == "HEAD":
		return resource, id, "read"
	case method == "POST":
		return resource, id, "create"
	case method == "PUT" || method == "PATCH":
		return resource, id, "update"
	case method == "DELETE":
		return resource, id, "delete"
	}
	return resource, id, "read"
}
