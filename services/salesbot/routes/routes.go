// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes assembles the gin engine for the salesbot API.
package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/salespilot/services/salesbot/handlers"
	"github.com/AleutianAI/salespilot/services/salesbot/middleware"
	"github.com/AleutianAI/salespilot/services/salesbot/observability"
)

// New builds the engine: public liveness and scrape endpoints, then
// the bearer-authenticated v1 API.
func New(h *handlers.Handlers, apiKey string, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.Recovery(logger),
		middleware.RequestLogger(logger),
		observability.RequestMetrics(),
	)

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(observability.MetricsHandler()))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.BearerAuth(apiKey))
	{
		v1.POST("/process", h.Process)
		v1.GET("/users/:user_id/profile", h.UserProfile)
	}
	return r
}
