// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// RetryConfig tunes the retry loop.
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first call.
	MaxRetries int

	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration

	// Multiplier scales the delay on each subsequent retry.
	Multiplier float64

	// MaxDelay caps the backoff.
	MaxDelay time.Duration

	// RequestTimeout bounds a single backend call.
	RequestTimeout time.Duration
}

// DefaultRetryConfig returns production defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialDelay:   500 * time.Millisecond,
		Multiplier:     2.0,
		MaxDelay:       5 * time.Second,
		RequestTimeout: 60 * time.Second,
	}
}

// Client is the resilient LLM client the pipeline depends on.
//
// Generate never returns an error: transient failures are retried with
// exponential backoff, the shared circuit breaker fails fast while open,
// and exhaustion degrades to a state-keyed canned fallback (or the empty
// string when the caller opts out of fallbacks).
type Client struct {
	backend Backend
	retry   RetryConfig
	breaker *CircuitBreaker
	stats   *Stats
	logger  *slog.Logger

	// sleep is swappable for tests.
	sleep func(time.Duration)
}

// NewClient wraps a backend with retry, breaker, and statistics.
func NewClient(backend Backend, retry RetryConfig, breaker BreakerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if retry.MaxRetries < 0 {
		retry.MaxRetries = 0
	}
	if retry.InitialDelay <= 0 {
		retry.InitialDelay = DefaultRetryConfig().InitialDelay
	}
	if retry.Multiplier < 1 {
		retry.Multiplier = DefaultRetryConfig().Multiplier
	}
	if retry.MaxDelay <= 0 {
		retry.MaxDelay = DefaultRetryConfig().MaxDelay
	}
	return &Client{
		backend: backend,
		retry:   retry,
		breaker: NewCircuitBreaker(breaker),
		stats:   &Stats{},
		logger:  logger,
		sleep:   time.Sleep,
	}
}

// Generate produces text for the prompt, degrading to the canned
// fallback for opts.State on exhaustion. With opts.AllowFallback=false
// exhaustion yields "".
func (c *Client) Generate(ctx context.Context, prompt string, opts GenerateOpts) string {
	text, err := c.generate(ctx, prompt, opts.Params)
	if err == nil {
		return text
	}

	c.logger.Warn("LLM generation exhausted, using fallback",
		"state", opts.State, "allow_fallback", opts.AllowFallback, "error", err)
	if !opts.AllowFallback {
		return ""
	}
	c.stats.recordFallback()
	return FallbackText(opts.State)
}

// GenerateStructured asks the backend for JSON and decodes it into out.
// Callers must have their own deterministic fallback for any error.
func (c *Client) GenerateStructured(ctx context.Context, prompt string, out any) error {
	text, err := c.generate(ctx, prompt, GenerationParams{})
	if err != nil {
		return err
	}
	payload := extractJSON(text)
	if payload == "" {
		return fmt.Errorf("no JSON object in model reply")
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("malformed structured reply: %w", err)
	}
	return nil
}

// HealthCheck reports backend health. An open circuit reports unhealthy
// without touching the backend.
func (c *Client) HealthCheck(ctx context.Context) bool {
	if c.breaker.State() == BreakerOpen {
		return false
	}
	return c.backend.HealthCheck(ctx)
}

// ModelName returns the backend's model identifier.
func (c *Client) ModelName() string { return c.backend.ModelName() }

// Stats returns a snapshot of the call counters.
func (c *Client) Stats() StatsSnapshot {
	return c.stats.Snapshot(c.breaker.Trips())
}

// BreakerState exposes the circuit state for health reporting.
func (c *Client) BreakerState() BreakerState { return c.breaker.State() }

func (c *Client) generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	if !c.breaker.Allow() {
		c.stats.recordFallback()
		return "", fmt.Errorf("circuit open")
	}

	delay := c.retry.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			c.stats.recordRetry()
			c.sleep(delay)
			delay = time.Duration(float64(delay) * c.retry.Multiplier)
			if delay > c.retry.MaxDelay {
				delay = c.retry.MaxDelay
			}
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if c.retry.RequestTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.retry.RequestTimeout)
		}
		start := time.Now()
		text, err := c.backend.Generate(callCtx, prompt, params)
		if cancel != nil {
			cancel()
		}
		latency := time.Since(start)

		if err == nil {
			c.breaker.RecordSuccess()
			c.stats.recordSuccess(latency)
			return text, nil
		}

		lastErr = err
		c.breaker.RecordFailure()
		c.stats.recordFailure(latency)
		c.logger.Warn("LLM call failed",
			"attempt", attempt+1, "max_attempts", c.retry.MaxRetries+1, "error", err)

		// A freshly opened circuit short-circuits the remaining retries.
		if c.breaker.State() == BreakerOpen {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	return "", fmt.Errorf("llm exhausted after retries: %w", lastErr)
}

// extractJSON pulls the outermost JSON object out of a model reply that
// may be wrapped in prose or markdown fences.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
