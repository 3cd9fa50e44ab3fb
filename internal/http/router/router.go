package router

import (
	"github.com/gin-gonic/gin"

	"musky.app/forecast/internal/http/handler"
	"musky.app/forecast/internal/http/middleware"
	"musky.app/forecast/internal/service"
)

type RouterConfig struct {
	AdminAPIKey     string
	TraceHeaderName string
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	reportHandler := handler.NewReportHandler(services.Reports())

	v1 := router.Group("/api/v1")
	{
		ReportRouter(v1.Group("/reports"), reportHandler)
		v1.GET("/consensus", reportHandler.Consensus)
	}

	adminHandler := handler.NewAdminHandler(services.Admin(), cfg.TraceHeaderName)
	admin := router.Group("/admin", middleware.RequireAdminAPIKey(cfg.AdminAPIKey))
	AdminRouter(admin, adminHandler)
}
