package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TriggerReconcile runs one poll sweep on demand. Guarded by a shared token
// so only operators and cron can fire it.
func (s *Server) TriggerReconcile(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = strings.TrimSpace(c.GetHeader("X-Reconcile-Token"))
	}

	expected := strings.TrimSpace(s.cfg.ReconcileToken)
	if expected == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	summary, err := s.reconciler.RunOnce(c.Request.Context())
	if err != nil {
		s.log.Error("manual sweep failed", zap.Error(err))
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
