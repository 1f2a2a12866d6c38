package httpapi

import (
	"fmt"
	"net/http"

	"dialer-platform/internal/auth"
	"dialer-platform/internal/capacity"
	"dialer-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

type setLimitRequest struct {
	Limit int `json:"limit"`
}

type capacityResponse struct {
	SystemLimit  int                  `json:"system_limit"`
	SystemActive int                  `json:"system_active"`
	UserLimits   []capacity.UserLimit `json:"user_limits"`
	ActiveByUser map[string]int       `json:"active_by_user"`
}

// GetCapacity snapshots admission caps and live usage for operators.
func (h Handlers) GetCapacity(c *gin.Context) {
	if h.Ledger == nil || h.Limits == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "capacity not configured"})
		return
	}
	ctx := c.Request.Context()

	systemLimit, err := h.Limits.SystemLimit(ctx)
	if err != nil {
		abortForError(c, err)
		return
	}
	userLimits, err := h.Limits.ListUserLimits(ctx)
	if err != nil {
		abortForError(c, err)
		return
	}
	active, err := h.Ledger.ActiveByUser(ctx)
	if err != nil {
		abortForError(c, err)
		return
	}
	systemActive := 0
	for _, n := range active {
		systemActive += n
	}
	c.JSON(http.StatusOK, capacityResponse{
		SystemLimit:  systemLimit,
		SystemActive: systemActive,
		UserLimits:   userLimits,
		ActiveByUser: active,
	})
}

// SetSystemLimit rewrites the global concurrency cap. The new cap applies
// to the next admission decision; calls already running are never cut.
func (h Handlers) SetSystemLimit(c *gin.Context) {
	if h.Limits == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "capacity not configured"})
		return
	}
	var req setLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Limits.SetSystemLimit(c.Request.Context(), req.Limit); err != nil {
		abortForError(c, err)
		return
	}
	h.logAdminAction(c, fmt.Sprintf("set system limit %d", req.Limit), "")
	c.JSON(http.StatusOK, gin.H{"system_limit": req.Limit})
}

// SetUserLimit overrides one user's concurrency cap.
func (h Handlers) SetUserLimit(c *gin.Context) {
	if h.Limits == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "capacity not configured"})
		return
	}
	target := c.Param("user_id")
	var req setLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Limits.SetUserLimit(c.Request.Context(), target, req.Limit); err != nil {
		abortForError(c, err)
		return
	}
	h.logAdminAction(c, fmt.Sprintf("set user limit %d", req.Limit), target)
	c.JSON(http.StatusOK, gin.H{"user_id": target, "max_concurrent": req.Limit})
}

// ClearUserLimit drops a user's override so the default cap applies again.
func (h Handlers) ClearUserLimit(c *gin.Context) {
	if h.Limits == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "capacity not configured"})
		return
	}
	target := c.Param("user_id")
	if err := h.Limits.ClearUserLimit(c.Request.Context(), target); err != nil {
		abortForError(c, err)
		return
	}
	h.logAdminAction(c, "clear user limit", target)
	c.JSON(http.StatusOK, gin.H{"user_id": target, "cleared": true})
}

// QueueHealth reports the global backlog snapshot for operators.
func (h Handlers) QueueHealth(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	health, err := h.Reports.QueueHealth(c.Request.Context())
	if err != nil {
		abortForError(c, err)
		return
	}
	c.JSON(http.StatusOK, health)
}

// logAdminAction appends an audit event for a capacity change. The change
// has already been applied, so append failures are logged, not returned.
func (h Handlers) logAdminAction(c *gin.Context, message, targetUserID string) {
	if h.Audit == nil {
		return
	}
	ctx := c.Request.Context()
	actor, _ := auth.UserID(ctx)
	role, _ := auth.Role(ctx)
	if err := h.Audit.LogAdminAction(ctx, actor, role, c.ClientIP(), message, targetUserID, ""); err != nil {
		logger.FromGin(c).Warn("audit append failed", "message", message, "err", err)
	}
}
