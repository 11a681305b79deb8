// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy overlays declarative dialogue rules on top of the
// state machine and derives compact generation directives. Rules read
// a frozen per-turn envelope and never mutate it.
package policy

import (
	"github.com/AleutianAI/salespilot/services/salesbot/intent"
	"github.com/AleutianAI/salespilot/services/salesbot/tone"
)

// ContextEnvelope is the read-only view of one turn that policy rules
// and the response generator see. Build it once per turn; nothing
// downstream writes to it.
type ContextEnvelope struct {
	State string `json:"state"`
	Phase string `json:"phase"`

	CollectedData map[string]any `json:"collected_data"`
	MissingData   []string       `json:"missing_data"`

	TurnCount     int `json:"turn_count"`
	StateAttempts int `json:"state_attempts"`

	Tone             tone.Analysis `json:"tone"`
	FrustrationLevel int           `json:"frustration_level"`
	PreIntervention  bool          `json:"pre_intervention"`

	LastAction string `json:"last_action"`
	LastIntent string `json:"last_intent"`
	Intent     string `json:"intent"`

	Summary intent.WindowSummary `json:"summary"`

	LeadScore       int    `json:"lead_score"`
	LeadTemperature string `json:"lead_temperature"`

	GuardIntervention string `json:"guard_intervention,omitempty"`
}

// Competitor returns the mentioned competitor, if collected.
func (e ContextEnvelope) Competitor() string {
	if v, ok := e.CollectedData[intent.FieldCompetitor].(string); ok {
		return v
	}
	return ""
}

// PainCategory returns the collected pain category, if any.
func (e ContextEnvelope) PainCategory() string {
	if v, ok := e.CollectedData[intent.FieldPainCategory].(string); ok {
		return v
	}
	return ""
}
