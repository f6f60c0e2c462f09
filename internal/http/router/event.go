package router

import (
	"basegraph.app/autoreply/internal/http/handler"
	"github.com/gin-gonic/gin"
)

func EventRouter(router *gin.RouterGroup, handler *handler.EventIngestHandler) {
	router.POST("/events", handler.Ingest)
}
