package router

import (
	"github.com/gin-gonic/gin"

	"musky.app/forecast/internal/http/handler"
)

func ReportRouter(router *gin.RouterGroup, handler *handler.ReportHandler) {
	router.GET("/today", handler.Today)
	router.GET("/:date", handler.ForDate)
	router.GET("/:date/sections", handler.Sections)
}
