package router

import (
	"github.com/gin-gonic/gin"

	"musky.app/forecast/internal/http/handler"
)

func AdminRouter(router *gin.RouterGroup, handler *handler.AdminHandler) {
	router.POST("/reports/:date/regenerate", handler.Regenerate)
	router.POST("/reports/sweep", handler.Sweep)
	router.GET("/status", handler.Status)
}
