// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bot

// maxIntentHistory bounds the tracked intent sequence.
const maxIntentHistory = 50

// IntentTracker keeps the running intent/action context between turns.
// Plain data: it serializes as-is into snapshots.
type IntentTracker struct {
	LastIntent string         `json:"last_intent"`
	LastAction string         `json:"last_action"`
	Counts     map[string]int `json:"counts"`
	History    []string       `json:"history"`
}

// NewIntentTracker returns an empty tracker.
func NewIntentTracker() *IntentTracker {
	return &IntentTracker{Counts: map[string]int{}}
}

// Record logs one finished turn.
func (t *IntentTracker) Record(intentName, action string) {
	t.LastIntent = intentName
	t.LastAction = action
	if t.Counts == nil {
		t.Counts = map[string]int{}
	}
	t.Counts[intentName]++
	t.History = append(t.History, intentName)
	if len(t.History) > maxIntentHistory {
		t.History = t.History[len(t.History)-maxIntentHistory:]
	}
}

// Metrics are per-session counters carried in snapshots. Process-wide
// metrics live in the otel/prometheus layer instead.
type Metrics struct {
	Turns             int            `json:"turns"`
	FallbacksByTier   map[string]int `json:"fallbacks_by_tier"`
	ObjectionsByType  map[string]int `json:"objections_by_type"`
	ViolationsByType  map[string]int `json:"violations_by_type"`
	Interventions     map[string]int `json:"interventions"`
	BoundaryRepairs   int            `json:"boundary_repairs"`
	BoundaryFallbacks int            `json:"boundary_fallbacks"`
}

// NewMetrics returns zeroed counters.
func NewMetrics() *Metrics {
	return &Metrics{
		FallbacksByTier:  map[string]int{},
		ObjectionsByType: map[string]int{},
		ViolationsByType: map[string]int{},
		Interventions:    map[string]int{},
	}
}

func (m *Metrics) ensure() {
	if m.FallbacksByTier == nil {
		m.FallbacksByTier = map[string]int{}
	}
	if m.ObjectionsByType == nil {
		m.ObjectionsByType = map[string]int{}
	}
	if m.ViolationsByType == nil {
		m.ViolationsByType = map[string]int{}
	}
	if m.Interventions == nil {
		m.Interventions = map[string]int{}
	}
}

func (m *Metrics) recordTurn() { m.Turns++ }

func (m *Metrics) recordFallback(tier string) {
	m.ensure()
	m.FallbacksByTier[tier]++
}

func (m *Metrics) recordObjection(objType string) {
	m.ensure()
	m.ObjectionsByType[objType]++
}

func (m *Metrics) recordIntervention(tier string) {
	m.ensure()
	m.Interventions[tier]++
}

func (m *Metrics) recordBoundary(violations []string, repairUsed, fallbackUsed bool) {
	m.ensure()
	for _, v := range violations {
		m.ViolationsByType[v]++
	}
	if repairUsed {
		m.BoundaryRepairs++
	}
	if fallbackUsed {
		m.BoundaryFallbacks++
	}
}
