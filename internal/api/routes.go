package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Configures all API routes
func (s *Server) setupRoutes(router *gin.Engine) {
	// API version prefix
	v1 := router.Group("/api/v1")

	// Health check endpoint
	v1.GET("/health", s.handleHealth)

	// Record submission endpoints
	records := v1.Group("/records")
	{
		records.POST("", s.handleEnqueueCreate)
		records.PUT("/:id", s.handleEnqueueUpdate)
		records.POST("/store", s.handleStore)
	}

	// Read-through query endpoint
	v1.POST("/query", s.handleQuery)

	// Runtime statistics endpoint
	v1.GET("/stats", s.handleStats)

	// Prometheus scrape endpoint, outside the versioned API
	if s.registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
			s.registry, promhttp.HandlerOpts{},
		)))
	}
}
