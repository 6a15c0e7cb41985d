package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/notipushq/notipus/internal/event"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware converts errors attached to the context into a
// JSON response with the right status code.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// mapError keeps provider-facing semantics: signature problems are 401,
// configuration gaps 403. Events the pipeline accepted but chose not to act
// on never reach this mapping; the webhook handler acknowledges them.
func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, event.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{Type: "invalid_signature", Message: "webhook signature verification failed"}
	case errors.Is(err, event.ErrStaleRequest):
		return http.StatusUnauthorized, errorPayload{Type: "stale_request", Message: "webhook timestamp outside tolerance"}
	case errors.Is(err, event.ErrMissingSecret):
		return http.StatusForbidden, errorPayload{Type: "missing_secret", Message: "no signing secret configured for this integration"}
	case errors.Is(err, event.ErrUnknownTenant):
		return http.StatusNotFound, errorPayload{Type: "unknown_tenant", Message: "unknown tenant token"}
	case errors.Is(err, event.ErrUnknownProvider):
		return http.StatusNotFound, errorPayload{Type: "unknown_provider", Message: "no integration for this provider"}
	case errors.Is(err, event.ErrMalformedPayload):
		return http.StatusBadRequest, errorPayload{Type: "malformed_payload", Message: "webhook payload could not be parsed"}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}
