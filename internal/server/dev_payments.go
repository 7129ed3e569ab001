package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/quoteflow/internal/config"
	paymentdomain "github.com/smallbiznis/quoteflow/internal/payment/domain"
	"github.com/smallbiznis/quoteflow/internal/payment/gateway"
	"go.uber.org/zap"
)

// CompletePlaceholderCheckout simulates the processor callback for a
// placeholder checkout link. Registered outside production only.
func (s *Server) CompletePlaceholderCheckout(c *gin.Context) {
	if s.cfg.Environment == config.EnvironmentProduction {
		AbortWithError(c, ErrNotFound)
		return
	}

	sessionID := strings.TrimSpace(c.Param("session_id"))
	if !gateway.IsPlaceholderSession(sessionID) {
		AbortWithError(c, newValidationError("session_id", "invalid_session_id", "not a placeholder session"))
		return
	}

	event := paymentdomain.CheckoutCompleted{
		EventMeta: paymentdomain.EventMeta{
			Provider:        paymentdomain.ProviderPlaceholder,
			ProviderEventID: "evt_" + sessionID,
			OccurredAt:      time.Now().UTC(),
		},
		SessionID: sessionID,
	}
	if err := s.reconciler.Reconcile(c.Request.Context(), event); err != nil {
		s.log.Warn("placeholder checkout completion failed", zap.String("session_id", sessionID), zap.Error(err))
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
