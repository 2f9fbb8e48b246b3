package handler

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, corsOrigins []string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware(corsOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		recon := api.Group("/reconciliation")
		{
			recon.POST("/run", h.Run)
			recon.GET("/reports", h.ListReports)
			recon.GET("/reports/:id", h.GetReport)
			recon.GET("/stats", h.GetStats)
			recon.GET("/policy", h.GetPolicy)
			recon.PUT("/policy", h.UpdatePolicy)
			recon.GET("/audit", h.ListAudit)
			recon.GET("/links", h.ListLinks)
			recon.POST("/links", h.LinkPlatform)
			recon.GET("/discrepancies/pending", h.ListPendingDiscrepancies)
			recon.POST("/discrepancies/:id/resolve", h.ResolveDiscrepancy)
			recon.GET("/adjustments", h.ListAdjustments)
			recon.POST("/adjustments", h.CreateAdjustment)
		}

		alerts := api.Group("/alerts")
		{
			alerts.GET("", h.ListAlerts)
			alerts.POST("/:id/ack", h.AcknowledgeAlert)
		}
	}

	return r
}
