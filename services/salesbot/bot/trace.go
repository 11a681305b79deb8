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

import (
	"github.com/AleutianAI/salespilot/services/salesbot/flow"
	"github.com/AleutianAI/salespilot/services/salesbot/guard"
	"github.com/AleutianAI/salespilot/services/salesbot/intent"
	"github.com/AleutianAI/salespilot/services/salesbot/objection"
	"github.com/AleutianAI/salespilot/services/salesbot/policy"
	"github.com/AleutianAI/salespilot/services/salesbot/tone"
)

// Trace records every decision of one turn for debugging and offline
// analysis. It is emitted on the turn result and never read back.
type Trace struct {
	TurnNumber int `json:"turn_number"`

	Tone  tone.Analysis `json:"tone"`
	Guard guard.Verdict `json:"guard"`

	Intent         intent.Result        `json:"intent"`
	Disambiguation *intent.Decision     `json:"disambiguation,omitempty"`
	Objection      *objection.Detection `json:"objection,omitempty"`

	LeadScore       int    `json:"lead_score"`
	LeadTemperature string `json:"lead_temperature"`

	PolicyOverride *policy.Override `json:"policy_override,omitempty"`
	Transition     flow.Result      `json:"transition"`

	Violations     []string `json:"violations,omitempty"`
	RepairUsed     bool     `json:"repair_used,omitempty"`
	FallbackUsed   bool     `json:"fallback_used,omitempty"`
	DurationMillis int64    `json:"duration_ms"`
}
