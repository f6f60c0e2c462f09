package router

import (
	"basegraph.app/autoreply/internal/http/handler"
	"basegraph.app/autoreply/internal/service"
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	TraceHeader string
}

func SetupRoutes(router *gin.Engine, events service.EventIngestService, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		eventHandler := handler.NewEventIngestHandler(events, cfg.TraceHeader)
		EventRouter(v1.Group("/tickets"), eventHandler)
	}
}
