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
	"sync"
	"time"
)

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	// BreakerClosed allows calls through.
	BreakerClosed BreakerState = iota

	// BreakerOpen short-circuits calls until the timeout elapses.
	BreakerOpen

	// BreakerHalfOpen allows a single probe call after the timeout.
	BreakerHalfOpen
)

// String returns the state name.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that open the circuit.
	Threshold int

	// Timeout is how long the circuit stays open before a probe is allowed.
	Timeout time.Duration
}

// DefaultBreakerConfig returns production defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold: 5,
		Timeout:   30 * time.Second,
	}
}

// CircuitBreaker is a shared failure gate for the LLM backend.
//
// The failure counter is intentionally shared across all sessions: the
// backend is one process, and one session's timeouts predict the next
// session's.
//
// Transitions:
//
//	closed --(N consecutive failures)--> open
//	open --(timeout elapsed)--> half_open
//	half_open --(success)--> closed  |  --(failure)--> open
//
// Thread Safety: safe for concurrent use.
type CircuitBreaker struct {
	config BreakerConfig

	mu           sync.Mutex
	state        BreakerState
	failures     int
	openedAt     time.Time
	trips        int64
	now          func() time.Time
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	if config.Threshold <= 0 {
		config.Threshold = DefaultBreakerConfig().Threshold
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultBreakerConfig().Timeout
	}
	return &CircuitBreaker{
		config: config,
		state:  BreakerClosed,
		now:    time.Now,
	}
}

// Allow reports whether a call may proceed. When the open timeout has
// elapsed, the breaker moves to half-open and permits one probe.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed, BreakerHalfOpen:
		return true
	case BreakerOpen:
		if b.now().Sub(b.openedAt) >= b.config.Timeout {
			b.state = BreakerHalfOpen
			return true
		}
		return false
	}
	return true
}

// RecordSuccess closes the circuit and zeroes the failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
}

// RecordFailure increments the shared failure counter, opening the
// circuit once the threshold is reached. A half-open probe failure
// reopens immediately.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.config.Threshold {
		if b.state != BreakerOpen {
			b.trips++
		}
		b.state = BreakerOpen
		b.openedAt = b.now()
	}
}

// State returns the current state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Trips returns how many times the circuit has opened.
func (b *CircuitBreaker) Trips() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trips
}
