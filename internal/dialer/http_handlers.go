package dialer

import (
	"context"
	"net/http"

	"dialer-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// OutcomeHandler consumes terminal call events. Implemented by the
// scheduler's completion handler; injected as an interface so this package
// stays free of business logic.
type OutcomeHandler interface {
	HandleOutcome(ctx context.Context, o Outcome) error
}

// StatusWebhookHandler converts the provider status callback to internal
// types and delegates to the completion handler.
//
// No business logic here.
//
// Delivery contract:
// - The provider retries on non-2xx, so every recognized event answers 200,
//   duplicates included; replays are absorbed downstream.
// - A handler error answers 500 on purpose: the retry is the recovery path
//   when the store was briefly unavailable.
type StatusWebhookHandler struct {
	Outcomes OutcomeHandler
}

func (h StatusWebhookHandler) HandleStatusCallback(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Outcomes == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "completion handler not configured"})
		return
	}

	form, err := ParseStatusCallback(c.Request)
	if err != nil {
		log.Warn("status callback parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	if form.JobID == "" {
		log.Warn("status callback missing job_id", "provider_call_id", form.CallSid)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing job_id"})
		return
	}

	outcome, terminal := form.ToOutcome()
	if !terminal {
		// Progress events are not ours to act on; acknowledge so the
		// provider does not retry them.
		c.Status(http.StatusOK)
		return
	}

	if err := h.Outcomes.HandleOutcome(c.Request.Context(), outcome); err != nil {
		log.Error("completion handling failed", "job_id", outcome.JobID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "completion failed"})
		return
	}

	c.Status(http.StatusOK)
}
