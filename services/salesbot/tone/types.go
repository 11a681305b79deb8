// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tone analyzes the emotional register of user messages with a
// cascaded regex -> semantic -> LLM strategy and accumulates a
// per-session frustration level with intensity-aware deltas.
package tone

import "time"

// Tone is the primary emotional register of a message.
type Tone string

const (
	Neutral    Tone = "neutral"
	Positive   Tone = "positive"
	Frustrated Tone = "frustrated"
	Skeptical  Tone = "skeptical"
	Rushed     Tone = "rushed"
	Confused   Tone = "confused"
	Interested Tone = "interested"
)

// IsNegative reports whether the tone accumulates frustration.
func (t Tone) IsNegative() bool {
	switch t {
	case Frustrated, Skeptical, Rushed, Confused:
		return true
	}
	return false
}

// IsPositive reports whether the tone decays frustration.
func (t Tone) IsPositive() bool {
	return t == Positive || t == Interested
}

// Style is the register of the message.
type Style string

const (
	StyleFormal   Style = "formal"
	StyleInformal Style = "informal"
)

// Urgency grades how urgently the dialogue needs an intervention.
type Urgency string

const (
	UrgencyNone     Urgency = "none"
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Analysis is the per-turn tone result consumed by the orchestrator.
type Analysis struct {
	Tone       Tone    `json:"tone"`
	Style      Style   `json:"style"`
	Confidence float64 `json:"confidence"`

	// FrustrationLevel is the accumulated level after this turn, in
	// [0, config.MaxFrustration].
	FrustrationLevel int `json:"frustration_level"`

	Signals     []string           `json:"signals"`
	TierUsed    string             `json:"tier_used"`
	TierScores  map[string]float64 `json:"tier_scores"`
	Latency     time.Duration      `json:"latency"`
	SignalCount int                `json:"signal_count"`

	PreInterventionTriggered bool    `json:"pre_intervention_triggered"`
	InterventionUrgency      Urgency `json:"intervention_urgency"`
	ShouldOfferExit          bool    `json:"should_offer_exit"`
	ConsecutiveNegativeTurns int     `json:"consecutive_negative_turns"`
}

// tier names recorded in Analysis.TierUsed.
const (
	tierRegex    = "regex"
	tierSemantic = "semantic"
	tierLLM      = "llm"
)
