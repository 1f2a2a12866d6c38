package httpapi

import (
	"net/http"
	"strconv"

	"dialer-platform/internal/queue"
	"dialer-platform/internal/scheduler"

	"github.com/gin-gonic/gin"
)

type submitCallRequest struct {
	AgentID     string `json:"agent_id"`
	Destination string `json:"destination"`
}

// submissionResponse reshapes scheduler.Submission for the wire: waits go
// out in whole seconds, not nanoseconds.
type submissionResponse struct {
	JobID                string `json:"job_id"`
	Disposition          string `json:"disposition"`
	Reason               string `json:"reason,omitempty"`
	Position             int    `json:"position,omitempty"`
	EstimatedWaitSeconds int    `json:"estimated_wait_seconds,omitempty"`
}

func toSubmissionResponse(sub scheduler.Submission) submissionResponse {
	return submissionResponse{
		JobID:                sub.JobID,
		Disposition:          string(sub.Disposition),
		Reason:               sub.Reason,
		Position:             sub.Position,
		EstimatedWaitSeconds: int(sub.EstimatedWait.Seconds()),
	}
}

// SubmitCall accepts a direct call job. A full system still answers 202:
// the job is durably queued and the disposition tells the caller where it
// landed.
func (h Handlers) SubmitCall(c *gin.Context) {
	if h.Scheduler == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "scheduler not configured"})
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req submitCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	sub, err := h.Scheduler.Submit(c.Request.Context(), scheduler.SubmitRequest{
		UserID:      uid,
		Kind:        queue.KindDirect,
		AgentID:     req.AgentID,
		Destination: req.Destination,
	})
	if err != nil {
		abortForError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, toSubmissionResponse(sub))
}

// GetCall returns one call record. Other users' calls read as absent.
func (h Handlers) GetCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	call, err := h.Calls.Get(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		abortForError(c, err)
		return
	}
	if call.UserID != uid {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, call)
}

// ListCalls returns the user's recent calls, newest first.
func (h Handlers) ListCalls(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be 1..500"})
			return
		}
		limit = n
	}
	list, err := h.Calls.ListByUser(c.Request.Context(), uid, limit)
	if err != nil {
		abortForError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": list, "count": len(list)})
}

// CancelJob removes a queued job or asks the provider to hang up an
// active one. Jobs mid-dispatch answer 409 and the client retries.
func (h Handlers) CancelJob(c *gin.Context) {
	if h.Scheduler == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "scheduler not configured"})
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	res, err := h.Scheduler.Cancel(c.Request.Context(), uid, c.Param("job_id"))
	if err != nil {
		abortForError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// QueueStatus reports the user's running calls against their cap and
// their queued backlog.
func (h Handlers) QueueStatus(c *gin.Context) {
	if h.Scheduler == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "scheduler not configured"})
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	status, err := h.Scheduler.Status(c.Request.Context(), uid)
	if err != nil {
		abortForError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
