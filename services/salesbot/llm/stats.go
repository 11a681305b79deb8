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

// Stats accumulates client-level call statistics. Shared across sessions,
// guarded by its own mutex.
type Stats struct {
	mu sync.Mutex

	Total        int64
	Successes    int64
	Failures     int64
	Retries      int64
	FallbackUses int64
	CircuitTrips int64
	TotalLatency time.Duration
}

// StatsSnapshot is an immutable copy for reporting.
type StatsSnapshot struct {
	Total        int64         `json:"total"`
	Successes    int64         `json:"successes"`
	Failures     int64         `json:"failures"`
	Retries      int64         `json:"retries"`
	FallbackUses int64         `json:"fallback_uses"`
	CircuitTrips int64         `json:"circuit_trips"`
	TotalLatency time.Duration `json:"total_latency"`
	SuccessRate  float64       `json:"success_rate"`
}

func (s *Stats) recordSuccess(latency time.Duration) {
	s.mu.Lock()
	s.Total++
	s.Successes++
	s.TotalLatency += latency
	s.mu.Unlock()
}

func (s *Stats) recordFailure(latency time.Duration) {
	s.mu.Lock()
	s.Total++
	s.Failures++
	s.TotalLatency += latency
	s.mu.Unlock()
}

func (s *Stats) recordRetry() {
	s.mu.Lock()
	s.Retries++
	s.mu.Unlock()
}

func (s *Stats) recordFallback() {
	s.mu.Lock()
	s.FallbackUses++
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters. SuccessRate is 100 when no
// traffic has been recorded yet.
func (s *Stats) Snapshot(circuitTrips int64) StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	rate := 100.0
	if s.Total > 0 {
		rate = float64(s.Successes) / float64(s.Total) * 100.0
	}
	return StatsSnapshot{
		Total:        s.Total,
		Successes:    s.Successes,
		Failures:     s.Failures,
		Retries:      s.Retries,
		FallbackUses: s.FallbackUses,
		CircuitTrips: circuitTrips,
		TotalLatency: s.TotalLatency,
		SuccessRate:  rate,
	}
}
