package main

import (
	"dialer-platform/internal/auth"
	"dialer-platform/internal/dialer"
	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, webhook dialer.StatusWebhookHandler, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider webhooks (public).
	// NOTE: This endpoint should be protected by Twilio signature validation in production.
	r.POST("/webhooks/twilio/status", webhook.HandleStatusCallback)

	// Token issuance is public by nature.
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	v1.Use(rbac.RequireUser())
	{
		// Identity echo for token debugging.
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"user_id": uid, "role": role})
		})

		// CALLS routes
		callsGroup := v1.Group("/calls")
		callsGroup.Use(rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleManager))
		{
			callsGroup.POST("", h.SubmitCall)
			callsGroup.GET("", h.ListCalls)
			callsGroup.GET("/:call_id", h.GetCall)
		}

		// JOB + QUEUE routes share the call surface's roles.
		jobs := v1.Group("/jobs")
		jobs.Use(rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleManager))
		{
			jobs.DELETE("/:job_id", h.CancelJob)
		}
		queueGroup := v1.Group("/queue")
		queueGroup.Use(rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleManager))
		{
			queueGroup.GET("/status", h.QueueStatus)
		}

		// CAMPAIGNS routes
		campaignsGroup := v1.Group("/campaigns")
		campaignsGroup.Use(rbac.RequireAnyRole(rbac.RoleManager))
		{
			campaignsGroup.POST("", h.CreateCampaign)
			campaignsGroup.GET("", h.ListCampaigns)
			campaignsGroup.GET("/:campaign_id", h.GetCampaign)
			campaignsGroup.POST("/:campaign_id/activate", h.ActivateCampaign)
			campaignsGroup.POST("/:campaign_id/pause", h.PauseCampaign)
			campaignsGroup.POST("/:campaign_id/resume", h.ResumeCampaign)
		}

		// REPORTS routes
		reportsGroup := v1.Group("/reports")
		reportsGroup.Use(rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleManager))
		{
			reportsGroup.GET("/calls", h.CallsSummary)
		}

		// ADMIN routes
		// The hidden operator role is deliberately opted in here: runtime
		// capacity control is its whole job. super_admin passes as always.
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleOperator))
		{
			admin.GET("/capacity", h.GetCapacity)
			admin.PUT("/capacity/system", h.SetSystemLimit)
			admin.PUT("/capacity/users/:user_id", h.SetUserLimit)
			admin.DELETE("/capacity/users/:user_id", h.ClearUserLimit)
			admin.GET("/queue/health", h.QueueHealth)
		}
	}
}
