package handler

import "github.com/gin-gonic/gin"

// Routes groups the handlers mounted by the API gateway.
type Routes struct {
	Metrics  *MetricsHandler
	Filter   *FilterHandler
	Harvests *HarvestHandler
}

// Register mounts every endpoint. Harvest routes are static, so they take
// precedence over the generic :resource routes.
func (rt Routes) Register(r *gin.Engine, apiPrefix string) {
	r.GET("/health", rt.Metrics.Health)
	r.GET("/ready", rt.Metrics.Ready)
	r.GET("/metrics", rt.Metrics.Prometheus)
	r.GET("/metrics/summary", rt.Metrics.Summary)

	api := r.Group(apiPrefix)

	harvests := api.Group("/harvests")
	harvests.POST("", rt.Harvests.Create)
	harvests.GET("/:id", rt.Harvests.Get)
	harvests.POST("/:id/scan", rt.Harvests.Scan)
	harvests.POST("/:id/harvest", rt.Harvests.Harvest)
	harvests.GET("/:id/items", rt.Harvests.Items)
	harvests.POST("/:id/items/:itemId/retry", rt.Harvests.Retry)
	harvests.PUT("/:id/mappings", rt.Harvests.UpdateMappings)
	harvests.GET("/:id/summary", rt.Harvests.Summary)

	api.GET("/:resource", rt.Filter.List)
	api.POST("/:resource/filter", rt.Filter.Filter)
}
