package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	chargedomain "github.com/franqio/royaltyd/internal/charge/domain"
)

const maxWebhookBody = 1 << 20

// HandleGatewayWebhook receives one provider delivery. Providers retry on
// non-2xx, so duplicates are acknowledged with 200 exactly like first
// deliveries.
func (s *Server) HandleGatewayWebhook(c *gin.Context) {
	gateway := strings.TrimSpace(c.Param("gateway"))

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "unreadable body"})
		return
	}

	if _, err := s.webhookSvc.Ingest(c.Request.Context(), gateway, payload, c.Request.Header); err != nil {
		status, message := webhookStatus(err)
		if status == http.StatusInternalServerError {
			s.log.Error("webhook processing failed",
				zap.String("gateway", gateway),
				zap.Error(err),
			)
		}
		c.JSON(status, errorResponse{Error: message})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func webhookStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chargedomain.ErrInvalidSignature):
		return http.StatusUnauthorized, "invalid signature"
	case errors.Is(err, chargedomain.ErrUnknownReference),
		errors.Is(err, chargedomain.ErrInvalidGateway),
		errors.Is(err, chargedomain.ErrGatewayNotFound):
		return http.StatusNotFound, "unknown reference"
	case errors.Is(err, chargedomain.ErrInvalidPayload),
		errors.Is(err, chargedomain.ErrInvalidEvent):
		return http.StatusBadRequest, "malformed payload"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
