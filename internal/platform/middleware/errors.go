package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/platform/validation"
)

// ErrorResponse is the JSON body for every error the API returns.
type ErrorResponse struct {
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// ErrorHandler renders handler errors as ErrorResponse. Validation failures
// become 422 with per-field messages; anything that is not an echo.HTTPError
// is logged and hidden behind a 500.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		rid, _ := c.Get("request_id").(string)
		resp := ErrorResponse{RequestID: rid}
		code := http.StatusInternalServerError

		var verr *validation.Error
		var herr *echo.HTTPError
		switch {
		case errors.As(err, &herr):
			code = herr.Code
			if herr.Internal != nil && errors.As(herr.Internal, &verr) {
				resp.Fields = verr.Fields
			}
			switch msg := herr.Message.(type) {
			case string:
				resp.Message = msg
			case error:
				resp.Message = msg.Error()
			default:
				resp.Message = http.StatusText(code)
			}
		case errors.As(err, &verr):
			code = http.StatusUnprocessableEntity
			resp.Message = "validation failed"
			resp.Fields = verr.Fields
		default:
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Msg("unhandled error")
			resp.Message = http.StatusText(code)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, resp)
		}
		if err != nil {
			logger.Error().Err(err).Str("request_id", rid).Msg("write error response")
		}
	}
}
