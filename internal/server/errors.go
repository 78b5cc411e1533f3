package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	chargedomain "github.com/franqio/royaltyd/internal/charge/domain"
	establishmentdomain "github.com/franqio/royaltyd/internal/establishment/domain"
	payabledomain "github.com/franqio/royaltyd/internal/payable/domain"
	royaltydomain "github.com/franqio/royaltyd/internal/royalty/domain"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
)

type errorResponse struct {
	Error string `json:"error"`
}

// ErrorHandlingMiddleware converts the last recorded error into the JSON
// error contract. Handlers that already wrote a body are left alone.
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

		status, message := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: message})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, chargedomain.ErrInvalidPayload),
		errors.Is(err, chargedomain.ErrInvalidEvent),
		errors.Is(err, chargedomain.ErrAmountTooSmall),
		errors.Is(err, royaltydomain.ErrInvalidPeriod),
		errors.Is(err, royaltydomain.ErrInvalidRevenue):
		return http.StatusBadRequest, messageFor(err, "invalid request")

	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, chargedomain.ErrInvalidSignature):
		return http.StatusUnauthorized, messageFor(err, "unauthorized")

	case errors.Is(err, chargedomain.ErrUnknownReference),
		errors.Is(err, chargedomain.ErrInvalidGateway),
		errors.Is(err, royaltydomain.ErrNotFound),
		errors.Is(err, establishmentdomain.ErrNotFound),
		errors.Is(err, payabledomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, messageFor(err, "not found")

	case errors.Is(err, chargedomain.ErrDuplicateCharge),
		errors.Is(err, royaltydomain.ErrRoyaltyPaid):
		return http.StatusConflict, messageFor(err, "conflict")

	case errors.Is(err, chargedomain.ErrGatewayRejected):
		return http.StatusBadGateway, messageFor(err, "gateway rejected the charge")

	case errors.Is(err, chargedomain.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, messageFor(err, "gateway unavailable")

	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func messageFor(err error, fallback string) string {
	if err == nil || err.Error() == "" {
		return fallback
	}
	return err.Error()
}
