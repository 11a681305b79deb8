// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability wires the OpenTelemetry meter provider to a
// Prometheus exporter. Domain components create their instruments via
// otel.Meter; this package makes those instruments visible on
// /metrics.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Init installs a Prometheus-backed meter provider as the global otel
// provider and returns its shutdown function.
func Init(serviceName, version string) (func(context.Context) error, error) {
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(version),
	))
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

// MetricsHandler serves the Prometheus scrape endpoint. The otel
// exporter registers with the default prometheus registry, so the
// stock promhttp handler includes every domain instrument.
func MetricsHandler() http.Handler { return promhttp.Handler() }

// RequestMetrics is gin middleware recording request counts and
// latencies per route, method, and status.
func RequestMetrics() gin.HandlerFunc {
	meter := otel.Meter("salespilot/http")
	requests, _ := meter.Int64Counter("salesbot_http_requests_total")
	latency, _ := meter.Float64Histogram("salesbot_http_request_duration_ms")

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		attrs := metric.WithAttributes(
			attribute.String("route", route),
			attribute.String("method", c.Request.Method),
			attribute.Int("status", c.Writer.Status()),
		)
		ctx := c.Request.Context()
		requests.Add(ctx, 1, attrs)
		latency.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	}
}
