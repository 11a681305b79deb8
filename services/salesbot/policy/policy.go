// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy

import (
	"log/slog"

	"github.com/AleutianAI/salespilot/services/salesbot/config"
	"github.com/AleutianAI/salespilot/services/salesbot/intent"
	"github.com/AleutianAI/salespilot/services/salesbot/tone"
)

// Override decisions.
const (
	DecisionNoop     = "noop"
	DecisionOverride = "override"
	DecisionShadow   = "shadow"
)

// Actions the built-in rules emit. These must exist in the state
// machine's action vocabulary.
const (
	actionAnswerPricingDirect = "answer_with_pricing_direct"
	actionCompareCompetitor   = "compare_with_competitor"
	actionShortenAndConfirm   = "shorten_and_confirm"
)

// Override is an atomic substitution for the state machine's choice.
// A NextState without an Action is invalid and is never emitted here;
// the state machine ignores such overrides with a warning.
type Override struct {
	Action      string   `json:"action,omitempty"`
	NextState   string   `json:"next_state,omitempty"`
	ReasonCodes []string `json:"reason_codes"`
	Decision    string   `json:"decision"`
}

// rule is one declarative policy. It reads the envelope and either
// abstains (nil) or proposes an override.
type rule struct {
	name  string
	apply func(env ContextEnvelope) *Override
}

// DialoguePolicy evaluates the rule list in order; the first proposal
// wins. In shadow mode proposals are logged but reported as shadow
// decisions, which callers must not apply.
type DialoguePolicy struct {
	flags      *config.Flags
	thresholds config.FrustrationThresholds
	rules      []rule
	logger     *slog.Logger
}

// New builds the policy with the built-in rule set.
func New(flags *config.Flags, thresholds config.FrustrationThresholds, logger *slog.Logger) *DialoguePolicy {
	if logger == nil {
		logger = slog.Default()
	}
	p := &DialoguePolicy{flags: flags, thresholds: thresholds, logger: logger}
	p.rules = []rule{
		{
			// An irritated user asking about price gets the number, not
			// the discovery script.
			name: "frustrated_pricing_direct",
			apply: func(env ContextEnvelope) *Override {
				if env.Intent == intent.QuestionPricing && p.thresholds.IsWarning(env.FrustrationLevel) {
					return &Override{
						Action:      actionAnswerPricingDirect,
						ReasonCodes: []string{"frustration_warning", "pricing_intent"},
					}
				}
				return nil
			},
		},
		{
			name: "competitor_comparison",
			apply: func(env ContextEnvelope) *Override {
				if env.Intent == intent.ObjectionCompetitor && env.Competitor() != "" {
					return &Override{
						Action:      actionCompareCompetitor,
						ReasonCodes: []string{"competitor_named"},
					}
				}
				return nil
			},
		},
		{
			// Rushed users get short confirmations instead of open
			// questions.
			name: "rushed_shorten",
			apply: func(env ContextEnvelope) *Override {
				u := env.Tone.InterventionUrgency
				if u == tone.UrgencyHigh || u == tone.UrgencyCritical {
					return &Override{
						Action:      actionShortenAndConfirm,
						ReasonCodes: []string{"urgency_" + string(u)},
					}
				}
				return nil
			},
		},
	}
	return p
}

// MaybeOverride evaluates the rules against the envelope. nil means no
// rule fired or the overlay is disabled.
func (p *DialoguePolicy) MaybeOverride(env ContextEnvelope) *Override {
	if p.flags != nil && !p.flags.Enabled(config.FlagPolicyOverlay) {
		return nil
	}
	for _, r := range p.rules {
		o := r.apply(env)
		if o == nil {
			continue
		}
		if o.Action == "" {
			// Declared invalid: never propose a bare next_state.
			p.logger.Warn("policy rule proposed next_state without action, dropped",
				"rule", r.name, "next_state", o.NextState)
			continue
		}
		if p.flags != nil && p.flags.Enabled(config.FlagPolicyShadowMode) {
			o.Decision = DecisionShadow
			p.logger.Info("policy override (shadow)",
				"rule", r.name, "action", o.Action, "reasons", o.ReasonCodes)
			return o
		}
		o.Decision = DecisionOverride
		p.logger.Info("policy override",
			"rule", r.name, "action", o.Action, "reasons", o.ReasonCodes)
		return o
	}
	return nil
}
