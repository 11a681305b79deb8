// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package guard watches a conversation for loops, stalls, timeouts,
// and frustration, and emits escalating interventions.
package guard

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/salespilot/services/salesbot/config"
	"github.com/AleutianAI/salespilot/services/salesbot/intent"
)

// Intervention tiers, mildest first. soft_close terminates.
const (
	Tier1     = "tier_1"
	Tier2     = "tier_2"
	Tier3     = "tier_3"
	SoftClose = "soft_close"
)

// Config tunes the guard.
type Config struct {
	TimeoutSeconds        int
	MaxTurns              int
	LoopWindow            int
	ProgressCheckInterval int
	MinUniqueStates       int
	MaxConsecutiveTier2   int
}

// DefaultConfig returns the production guard settings.
func DefaultConfig() Config {
	return Config{
		TimeoutSeconds:        1800,
		MaxTurns:              60,
		LoopWindow:            3,
		ProgressCheckInterval: 5,
		MinUniqueStates:       2,
		MaxConsecutiveTier2:   3,
	}
}

// Verdict is one guard decision.
type Verdict struct {
	CanContinue  bool   `json:"can_continue"`
	Intervention string `json:"intervention,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// Guard tracks per-conversation counters and applies the intervention
// rules in a fixed order.
type Guard struct {
	mu sync.Mutex

	cfg        Config
	thresholds config.FrustrationThresholds
	logger     *slog.Logger

	startedAt        time.Time
	turnCount        int
	stateAttempts    map[string]int
	messageHistory   []string
	intentHistory    []string
	stateHistory     []string
	lastProgressTurn int

	// tier-2 escalator, per state
	consecutiveTier2 map[string]int

	now func() time.Time

	interventions metric.Int64Counter
}

// New creates a guard for one conversation.
func New(cfg Config, thresholds config.FrustrationThresholds, logger *slog.Logger) *Guard {
	if cfg.LoopWindow <= 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.Meter("salespilot/guard")
	interventions, _ := meter.Int64Counter("salesbot_guard_interventions_total",
		metric.WithDescription("Guard interventions emitted, by tier"))

	return &Guard{
		cfg:              cfg,
		thresholds:       thresholds,
		logger:           logger,
		startedAt:        time.Now(),
		stateAttempts:    map[string]int{},
		consecutiveTier2: map[string]int{},
		now:              time.Now,
		interventions:    interventions,
	}
}

// Check advances the counters and applies the rule ladder. The rules
// run in a fixed order; the first hit wins, then the tier-2 escalator
// may promote the result.
func (g *Guard) Check(state, message string, frustrationLevel int, lastIntent string, preIntervention bool) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.turnCount++
	g.stateAttempts[state]++
	g.messageHistory = append(g.messageHistory, normalize(message))
	g.intentHistory = append(g.intentHistory, lastIntent)
	g.stateHistory = append(g.stateHistory, state)

	v := g.checkLocked(state, frustrationLevel, lastIntent, preIntervention)
	v = g.escalateLocked(state, v)
	if v.Intervention != "" {
		g.emit(state, v)
	}
	return v
}

func (g *Guard) checkLocked(state string, frustrationLevel int, lastIntent string, preIntervention bool) Verdict {
	engaged := intent.IsEngagement(lastIntent)

	if g.cfg.TimeoutSeconds > 0 && g.now().Sub(g.startedAt) > time.Duration(g.cfg.TimeoutSeconds)*time.Second {
		return Verdict{CanContinue: false, Intervention: SoftClose, Reason: "session timeout"}
	}
	if g.cfg.MaxTurns > 0 && g.turnCount > g.cfg.MaxTurns {
		return Verdict{CanContinue: false, Intervention: SoftClose, Reason: "turn budget exhausted"}
	}

	if g.thresholds.IsHigh(frustrationLevel) || preIntervention {
		if engaged {
			return Verdict{CanContinue: true, Intervention: Tier2, Reason: "frustration high but user engaged"}
		}
		return Verdict{CanContinue: true, Intervention: Tier3, Reason: "frustration high"}
	}

	if g.messageLoopLocked() {
		return Verdict{CanContinue: true, Intervention: Tier2, Reason: "repeated identical messages"}
	}

	if g.stateLoopLocked() && !engaged {
		return Verdict{CanContinue: true, Intervention: Tier3, Reason: "stuck in one state"}
	}

	if g.cfg.ProgressCheckInterval > 0 &&
		g.turnCount-g.lastProgressTurn > g.cfg.ProgressCheckInterval &&
		g.uniqueRecentStatesLocked() < g.cfg.MinUniqueStates {
		return Verdict{CanContinue: true, Intervention: Tier1, Reason: "no recent progress"}
	}

	return Verdict{CanContinue: true}
}

// escalateLocked promotes a tier-2 emission to tier-3 once the same
// state has already absorbed MaxConsecutiveTier2 of them in a row.
func (g *Guard) escalateLocked(state string, v Verdict) Verdict {
	if v.Intervention != Tier2 {
		g.consecutiveTier2[state] = 0
		return v
	}
	if g.consecutiveTier2[state] >= g.cfg.MaxConsecutiveTier2 {
		g.consecutiveTier2[state] = 0
		v.Intervention = Tier3
		v.Reason = "tier_2 loop escalated"
		return v
	}
	g.consecutiveTier2[state]++
	return v
}

func (g *Guard) emit(state string, v Verdict) {
	g.logger.Info("guard intervention",
		"tier", v.Intervention, "state", state, "reason", v.Reason, "turn", g.turnCount)
	if g.interventions != nil {
		g.interventions.Add(context.Background(), 1,
			metric.WithAttributes(
				attribute.String("tier", v.Intervention),
				attribute.String("state", state),
			))
	}
}

// RecordProgress marks forward motion: a state change or new collected
// data. The progress watchdog measures from this point.
func (g *Guard) RecordProgress() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastProgressTurn = g.turnCount
}

// TurnCount returns the monotone turn counter.
func (g *Guard) TurnCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.turnCount
}

// StateAttempts returns the per-state attempt counter.
func (g *Guard) StateAttempts(state string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stateAttempts[state]
}

func (g *Guard) messageLoopLocked() bool {
	k := g.cfg.LoopWindow
	if len(g.messageHistory) < k {
		return false
	}
	tail := g.messageHistory[len(g.messageHistory)-k:]
	for _, m := range tail[1:] {
		if m == "" || m != tail[0] {
			return false
		}
	}
	return tail[0] != ""
}

func (g *Guard) stateLoopLocked() bool {
	k := g.cfg.LoopWindow + 1
	if len(g.stateHistory) < k {
		return false
	}
	tail := g.stateHistory[len(g.stateHistory)-k:]
	for _, s := range tail[1:] {
		if s != tail[0] {
			return false
		}
	}
	return true
}

func (g *Guard) uniqueRecentStatesLocked() int {
	window := g.cfg.ProgressCheckInterval
	if window <= 0 || window > len(g.stateHistory) {
		window = len(g.stateHistory)
	}
	seen := map[string]bool{}
	for _, s := range g.stateHistory[len(g.stateHistory)-window:] {
		seen[s] = true
	}
	return len(seen)
}

func normalize(msg string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(msg))), " ")
}

// State is the serializable guard state.
type State struct {
	StartedAt        time.Time      `json:"started_at"`
	TurnCount        int            `json:"turn_count"`
	StateAttempts    map[string]int `json:"state_attempts"`
	MessageHistory   []string       `json:"message_history"`
	IntentHistory    []string       `json:"intent_history"`
	StateHistory     []string       `json:"state_history"`
	LastProgressTurn int            `json:"last_progress_turn"`
	ConsecutiveTier2 map[string]int `json:"consecutive_tier_2"`
}

// ToState exports the guard for a snapshot.
func (g *Guard) ToState() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State{
		StartedAt:        g.startedAt,
		TurnCount:        g.turnCount,
		StateAttempts:    copyCounts(g.stateAttempts),
		MessageHistory:   append([]string(nil), g.messageHistory...),
		IntentHistory:    append([]string(nil), g.intentHistory...),
		StateHistory:     append([]string(nil), g.stateHistory...),
		LastProgressTurn: g.lastProgressTurn,
		ConsecutiveTier2: copyCounts(g.consecutiveTier2),
	}
}

// LoadState restores a snapshot.
func (g *Guard) LoadState(st State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !st.StartedAt.IsZero() {
		g.startedAt = st.StartedAt
	}
	g.turnCount = st.TurnCount
	g.stateAttempts = copyCounts(st.StateAttempts)
	g.messageHistory = append([]string(nil), st.MessageHistory...)
	g.intentHistory = append([]string(nil), st.IntentHistory...)
	g.stateHistory = append([]string(nil), st.StateHistory...)
	g.lastProgressTurn = st.LastProgressTurn
	g.consecutiveTier2 = copyCounts(st.ConsecutiveTier2)
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
