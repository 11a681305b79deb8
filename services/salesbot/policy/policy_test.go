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
	"strings"
	"testing"

	"github.com/AleutianAI/salespilot/services/salesbot/config"
	"github.com/AleutianAI/salespilot/services/salesbot/intent"
	"github.com/AleutianAI/salespilot/services/salesbot/tone"
)

func TestFrustratedPricingOverride(t *testing.T) {
	p := New(config.NewFlags(nil), config.DefaultFrustrationThresholds(), nil)

	got := p.MaybeOverride(ContextEnvelope{
		Intent:           intent.QuestionPricing,
		FrustrationLevel: 6,
	})
	if got == nil {
		t.Fatal("no override")
	}
	if got.Action != "answer_with_pricing_direct" || got.Decision != DecisionOverride {
		t.Fatalf("override = %+v", got)
	}

	// Below the warning threshold the rule abstains.
	if o := p.MaybeOverride(ContextEnvelope{Intent: intent.QuestionPricing, FrustrationLevel: 2}); o != nil {
		t.Fatalf("unexpected override %+v", o)
	}
}

func TestCompetitorOverrideNeedsName(t *testing.T) {
	p := New(config.NewFlags(nil), config.DefaultFrustrationThresholds(), nil)

	env := ContextEnvelope{
		Intent:        intent.ObjectionCompetitor,
		CollectedData: map[string]any{intent.FieldCompetitor: "МегаКРМ"},
	}
	got := p.MaybeOverride(env)
	if got == nil || got.Action != "compare_with_competitor" {
		t.Fatalf("override = %+v", got)
	}

	env.CollectedData = nil
	if o := p.MaybeOverride(env); o != nil {
		t.Fatalf("override without named competitor: %+v", o)
	}
}

func TestShadowModeReported(t *testing.T) {
	flags := config.NewFlags(nil)
	flags.Set(config.FlagPolicyShadowMode, true)
	p := New(flags, config.DefaultFrustrationThresholds(), nil)

	got := p.MaybeOverride(ContextEnvelope{
		Intent:           intent.QuestionPricing,
		FrustrationLevel: 8,
	})
	if got == nil || got.Decision != DecisionShadow {
		t.Fatalf("override = %+v, want shadow decision", got)
	}
}

func TestOverlayDisabled(t *testing.T) {
	flags := config.NewFlags(nil)
	flags.Set(config.FlagPolicyOverlay, false)
	p := New(flags, config.DefaultFrustrationThresholds(), nil)

	if o := p.MaybeOverride(ContextEnvelope{Intent: intent.QuestionPricing, FrustrationLevel: 9}); o != nil {
		t.Fatalf("override with overlay off: %+v", o)
	}
}

func TestDirectives(t *testing.T) {
	thresholds := config.DefaultFrustrationThresholds()

	rushed := Directives(ContextEnvelope{
		Tone: tone.Analysis{
			Tone:                tone.Rushed,
			Style:               tone.StyleInformal,
			InterventionUrgency: tone.UrgencyHigh,
			ShouldOfferExit:     true,
		},
		FrustrationLevel: 3,
	}, thresholds)
	if rushed.MaxWords != 25 {
		t.Errorf("max words = %d, want 25", rushed.MaxWords)
	}
	if !rushed.ShouldOfferExit || !strings.Contains(rushed.Instruction, "завершить") {
		t.Errorf("directives = %+v", rushed)
	}

	frustrated := Directives(ContextEnvelope{
		Tone:             tone.Analysis{Tone: tone.Frustrated, Style: tone.StyleFormal},
		FrustrationLevel: 5,
	}, thresholds)
	if !frustrated.ShouldApologize {
		t.Error("moderate frustration should trigger an apology")
	}

	neutral := Directives(ContextEnvelope{
		Tone: tone.Analysis{Tone: tone.Neutral, Style: tone.StyleFormal},
	}, thresholds)
	if neutral.ShouldApologize || neutral.MaxWords != 0 {
		t.Errorf("neutral directives = %+v", neutral)
	}
}
