// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm wraps a remote text-generation service with the resilience
// the dialogue pipeline needs: retry with exponential backoff, a shared
// circuit breaker, state-keyed canned fallbacks, and call statistics.
//
// The raw transport is a Backend; the pipeline talks to Client, which
// never returns an error for recoverable conditions.
package llm

import "context"

// GenerationParams tunes a single backend call.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Backend is the transport-level interface to any LLM service.
type Backend interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	HealthCheck(ctx context.Context) bool
	ModelName() string
}

// GenerateOpts carries per-call options for the resilient client.
type GenerateOpts struct {
	// State is the dialogue state used to pick a canned fallback when
	// the backend is exhausted or the circuit is open.
	State string

	// AllowFallback controls exhaustion behavior: when false the client
	// returns "" instead of the canned text so callers with their own
	// deterministic fallback can detect failure.
	AllowFallback bool

	// Params optionally tunes the backend call.
	Params GenerationParams
}
