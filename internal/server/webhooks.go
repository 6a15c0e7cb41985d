package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/notipushq/notipus/internal/event"
	"github.com/notipushq/notipus/pkg/db/pagination"
)

// maxWebhookBody bounds inbound payloads; the largest real provider
// payloads are well under 1 MiB.
const maxWebhookBody = 1 << 20

// handleWebhook is the single ingestion endpoint. Anything the pipeline
// accepted but chose not to act on (unsupported topic, duplicate, quota)
// is acknowledged with 200 so providers do not retry.
func (s *Server) handleWebhook(c *gin.Context) {
	token := c.Param("token")
	provider := c.Param("provider")

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		AbortWithError(c, event.ErrMalformedPayload)
		return
	}
	if len(payload) > maxWebhookBody {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, errorResponse{
			Error: errorPayload{Type: "payload_too_large", Message: "webhook body exceeds limit"},
		})
		return
	}

	err = s.processor.Process(c.Request.Context(), token, provider, payload, c.Request.Header)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(err, event.ErrUnsupportedEvent):
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "unsupported_event"})
	case errors.Is(err, event.ErrDuplicateEvent):
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "duplicate_event"})
	case errors.Is(err, event.ErrQuotaExceeded):
		c.JSON(http.StatusOK, gin.H{"status": "accepted", "reason": "quota_exceeded"})
	default:
		AbortWithError(c, err)
	}
}

// handleActivity serves the recent-activity feed for a tenant token.
func (s *Server) handleActivity(c *gin.Context) {
	ten, err := s.tenants.FindByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, event.ErrMalformedPayload)
		return
	}

	records, info, err := s.recorder.ListPage(c.Request.Context(), ten.ID, page)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			AbortWithError(c, event.ErrMalformedPayload)
			return
		}
		s.log.Error("failed to list activity", zap.Error(err))
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"activity": records, "page_info": info})
}
