package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type createCampaignRequest struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
}

type activateCampaignRequest struct {
	Destinations []string `json:"destinations"`
}

// CreateCampaign registers a campaign shell. Destinations arrive later on
// activate, so campaigns can be reused across number lists.
func (h Handlers) CreateCampaign(c *gin.Context) {
	if h.Campaigns == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaigns not configured"})
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	camp, err := h.Campaigns.Create(c.Request.Context(), uid, req.AgentID, req.Name)
	if err != nil {
		abortForError(c, err)
		return
	}
	c.JSON(http.StatusCreated, camp)
}

// ListCampaigns returns the user's campaigns, newest first.
func (h Handlers) ListCampaigns(c *gin.Context) {
	if h.Campaigns == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaigns not configured"})
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.Campaigns.ListByUser(c.Request.Context(), uid)
	if err != nil {
		abortForError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": list, "count": len(list)})
}

// GetCampaign returns one campaign. Other users' campaigns read as absent.
func (h Handlers) GetCampaign(c *gin.Context) {
	if h.Campaigns == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaigns not configured"})
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	camp, err := h.Campaigns.Get(c.Request.Context(), uid, c.Param("campaign_id"))
	if err != nil {
		abortForError(c, err)
		return
	}
	c.JSON(http.StatusOK, camp)
}

// ActivateCampaign submits a batch of destinations as campaign jobs and
// answers 202 with the per-destination report. Campaign jobs always yield
// to direct traffic, so most land queued.
func (h Handlers) ActivateCampaign(c *gin.Context) {
	if h.Campaigns == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaigns not configured"})
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req activateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	report, err := h.Campaigns.Activate(c.Request.Context(), uid, c.Param("campaign_id"), req.Destinations)
	if err != nil {
		abortForError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, report)
}

// PauseCampaign stops further submissions from activation batches.
// Already-queued jobs stay queued; pause is about new work, not recall.
func (h Handlers) PauseCampaign(c *gin.Context) {
	if h.Campaigns == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaigns not configured"})
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	camp, err := h.Campaigns.Pause(c.Request.Context(), uid, c.Param("campaign_id"))
	if err != nil {
		abortForError(c, err)
		return
	}
	c.JSON(http.StatusOK, camp)
}

// ResumeCampaign reopens a paused campaign for activation.
func (h Handlers) ResumeCampaign(c *gin.Context) {
	if h.Campaigns == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaigns not configured"})
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	camp, err := h.Campaigns.Resume(c.Request.Context(), uid, c.Param("campaign_id"))
	if err != nil {
		abortForError(c, err)
		return
	}
	c.JSON(http.StatusOK, camp)
}
