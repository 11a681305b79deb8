// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lead scores buying interest from a closed set of weighted
// signals and maps the score onto temperature bands that let hot leads
// skip sales phases.
package lead

import (
	"log/slog"
	"sync"
)

// The closed signal set. Unknown signals are ignored.
const (
	SignalPricingQuestion = "pricing_question"
	SignalFeatureQuestion = "feature_question"
	SignalDemoRequest     = "demo_request"
	SignalContactProvided = "contact_provided"
	SignalAgreement       = "agreement"
	SignalInfoProvided    = "info_provided"
	SignalBudgetMentioned = "budget_mentioned"
	SignalTimelineMention = "timeline_mentioned"
	SignalPositiveTone    = "positive_tone"
	SignalObjection       = "objection"
	SignalRejection       = "rejection"
	SignalUnclear         = "unclear"
	SignalNegativeTone    = "negative_tone"
	SignalCallbackRequest = "callback_request"
)

var signalWeights = map[string]int{
	SignalPricingQuestion: 15,
	SignalFeatureQuestion: 10,
	SignalDemoRequest:     25,
	SignalContactProvided: 30,
	SignalAgreement:       10,
	SignalInfoProvided:    5,
	SignalBudgetMentioned: 15,
	SignalTimelineMention: 10,
	SignalPositiveTone:    5,
	SignalCallbackRequest: 10,
	SignalObjection:       -10,
	SignalRejection:       -40,
	SignalUnclear:         -2,
	SignalNegativeTone:    -5,
}

// Temperatures.
const (
	Cold    = "cold"
	Warm    = "warm"
	Hot     = "hot"
	VeryHot = "very_hot"
)

// MaxHistoryLength caps the signal history.
const MaxHistoryLength = 50

// defaultDecayFactor is applied once per turn before the first signal.
const defaultDecayFactor = 0.95

// SignalRecord is one applied signal.
type SignalRecord struct {
	Signal string `json:"signal"`
	Weight int    `json:"weight"`
	Score  int    `json:"score"`
	Turn   int    `json:"turn"`
}

// Config tunes the scorer.
type Config struct {
	DecayFactor float64
	// SkipPhases maps temperature to the phase names that temperature
	// may jump over. Nil uses built-in defaults.
	SkipPhases map[string][]string
}

// DefaultConfig returns the production scorer settings.
func DefaultConfig() Config {
	return Config{
		DecayFactor: defaultDecayFactor,
		SkipPhases: map[string][]string{
			Cold:    {},
			Warm:    {},
			Hot:     {"implication"},
			VeryHot: {"implication", "need_payoff"},
		},
	}
}

// Scorer accumulates weighted signals with per-turn decay.
//
// Thread Safety: safe for concurrent use, though in practice all calls
// happen under the session lock.
type Scorer struct {
	mu           sync.Mutex
	raw          float64
	turn         int
	decayApplied bool
	history      []SignalRecord

	cfg    Config
	logger *slog.Logger
}

// NewScorer creates a scorer at zero.
func NewScorer(cfg Config, logger *slog.Logger) *Scorer {
	if cfg.DecayFactor == 0 {
		cfg.DecayFactor = defaultDecayFactor
	}
	if cfg.SkipPhases == nil {
		cfg.SkipPhases = DefaultConfig().SkipPhases
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{cfg: cfg, logger: logger}
}

// ApplyTurnDecay decays the raw score once per turn. Calling it again
// before EndTurn is a no-op.
func (s *Scorer) ApplyTurnDecay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decayApplied {
		return
	}
	s.raw *= s.cfg.DecayFactor
	s.decayApplied = true
	s.turn++
}

// EndTurn closes the turn and re-arms decay.
func (s *Scorer) EndTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decayApplied = false
}

// AddSignal applies one signal from the closed set and returns the new
// score. Decay is applied first if this turn has not seen it yet.
func (s *Scorer) AddSignal(signal string) int {
	weight, ok := signalWeights[signal]
	if !ok {
		s.logger.Warn("unknown lead signal ignored", "signal", signal)
		return s.Score()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.decayApplied {
		s.raw *= s.cfg.DecayFactor
		s.decayApplied = true
		s.turn++
	}
	s.raw += float64(weight)
	if s.raw < 0 {
		s.raw = 0
	}
	if s.raw > 100 {
		s.raw = 100
	}

	s.history = append(s.history, SignalRecord{
		Signal: signal,
		Weight: weight,
		Score:  int(s.raw),
		Turn:   s.turn,
	})
	if len(s.history) > MaxHistoryLength {
		s.history = s.history[len(s.history)-MaxHistoryLength:]
	}
	return int(s.raw)
}

// Score returns the current integer score.
func (s *Scorer) Score() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.raw)
}

// Temperature maps the score onto its band.
func (s *Scorer) Temperature() string {
	return TemperatureFor(s.Score())
}

// TemperatureFor maps any score onto its band.
func TemperatureFor(score int) string {
	switch {
	case score >= 70:
		return VeryHot
	case score >= 50:
		return Hot
	case score >= 30:
		return Warm
	default:
		return Cold
	}
}

// History returns a copy of the signal history.
func (s *Scorer) History() []SignalRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SignalRecord(nil), s.history...)
}

// NextPhase walks phaseOrder from the phase after current and returns
// the first phase the lead's temperature does not skip. ok=false means
// current is the last phase (or unknown).
func (s *Scorer) NextPhase(current string, phaseOrder []string) (string, bool) {
	skip := map[string]bool{}
	for _, p := range s.cfg.SkipPhases[s.Temperature()] {
		skip[p] = true
	}

	idx := -1
	for i, p := range phaseOrder {
		if p == current {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", false
	}
	for _, p := range phaseOrder[idx+1:] {
		if !skip[p] {
			return p, true
		}
	}
	return "", false
}

// State is the serializable scorer state.
type State struct {
	Raw          float64        `json:"raw"`
	Turn         int            `json:"turn"`
	DecayApplied bool           `json:"decay_applied"`
	History      []SignalRecord `json:"history"`
}

// ToState exports the scorer for a snapshot.
func (s *Scorer) ToState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Raw:          s.raw,
		Turn:         s.turn,
		DecayApplied: s.decayApplied,
		History:      append([]SignalRecord(nil), s.history...),
	}
}

// LoadState restores a snapshot.
func (s *Scorer) LoadState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = st.Raw
	s.turn = st.Turn
	s.decayApplied = st.DecayApplied
	s.history = append([]SignalRecord(nil), st.History...)
}

// SignalForIntent maps an intent name onto a lead signal, if any.
func SignalForIntent(intentName string) (string, bool) {
	switch intentName {
	case "question_pricing":
		return SignalPricingQuestion, true
	case "question_features":
		return SignalFeatureQuestion, true
	case "demo_request":
		return SignalDemoRequest, true
	case "contact_provided":
		return SignalContactProvided, true
	case "agreement":
		return SignalAgreement, true
	case "info_provided":
		return SignalInfoProvided, true
	case "callback_request":
		return SignalCallbackRequest, true
	case "rejection":
		return SignalRejection, true
	case "unclear":
		return SignalUnclear, true
	}
	if len(intentName) > 10 && intentName[:10] == "objection_" {
		return SignalObjection, true
	}
	return "", false
}
