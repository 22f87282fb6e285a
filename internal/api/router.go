package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"futures_agent/internal/telemetry"
)

// NewRouter builds the gin engine with all routes registered.
func NewRouter(handler *Handler, metrics *telemetry.Metrics) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	{
		api.POST("/execute", handler.Execute)
		api.GET("/status/:accountId", handler.Status)
		api.POST("/reconcile/:accountId", handler.Reconcile)
	}

	router.GET("/healthz", handler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		metrics.Registry, promhttp.HandlerOpts{})))

	return router
}
