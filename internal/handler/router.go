package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docqa/internal/middleware"
)

type RouterDeps struct {
	Pipeline    *PipelineHandler
	BearerToken string
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/healthz", deps.Pipeline.Healthz)

	authGroup := api.Group("")
	authGroup.Use(middleware.BearerAuth(deps.BearerToken))
	authGroup.POST("/run", deps.Pipeline.Run)
	authGroup.POST("/run/detailed", deps.Pipeline.RunDetailed)
	authGroup.GET("/stats", deps.Pipeline.Stats)
	authGroup.POST("/index/clear", deps.Pipeline.ClearIndex)
}
