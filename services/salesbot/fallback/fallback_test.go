// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fallback

import (
	"strings"
	"testing"

	"github.com/AleutianAI/salespilot/services/salesbot/config"
	"github.com/AleutianAI/salespilot/services/salesbot/guard"
)

func newTestHandler() *Handler {
	return New(config.NewFlags(nil), config.DefaultFrustrationThresholds(), "presentation", nil)
}

func TestTierActions(t *testing.T) {
	tests := []struct {
		tier       string
		wantAction string
	}{
		{guard.Tier1, ActionRephrase},
		{guard.Tier2, ActionOfferOptions},
		{guard.Tier3, ActionSkip},
		{guard.SoftClose, ActionClose},
	}
	h := newTestHandler()
	for _, tt := range tests {
		t.Run(tt.tier, func(t *testing.T) {
			got := h.Get(tt.tier, "spin_problem", Context{})
			if got.Action != tt.wantAction {
				t.Fatalf("action = %s, want %s", got.Action, tt.wantAction)
			}
			if got.Message == "" {
				t.Error("empty message")
			}
		})
	}
}

func TestTier3CarriesNextState(t *testing.T) {
	h := newTestHandler()
	got := h.Get(guard.Tier3, "spin_problem", Context{})
	if got.NextState != "presentation" {
		t.Fatalf("next state = %s, want presentation", got.NextState)
	}
}

func TestTemplateRotationNoImmediateRepeat(t *testing.T) {
	h := newTestHandler()
	first := h.Get(guard.Tier1, "greeting", Context{}).Message
	second := h.Get(guard.Tier1, "greeting", Context{}).Message
	third := h.Get(guard.Tier1, "greeting", Context{}).Message
	if first == second || second == third {
		t.Fatalf("templates repeated back to back: %q / %q / %q", first, second, third)
	}
	// Pool wraps around after exhaustion.
	fourth := h.Get(guard.Tier1, "greeting", Context{}).Message
	if fourth != first {
		t.Errorf("rotation did not wrap: %q, want %q", fourth, first)
	}
}

func TestDynamicCTAFromPain(t *testing.T) {
	h := newTestHandler()
	got := h.Get(guard.Tier2, "spin_problem", Context{PainCategory: "потеря заявок"})
	if len(got.Options) == 0 {
		t.Fatal("no options")
	}
	var tailored bool
	for _, o := range got.Options {
		if strings.Contains(o, "потеря заявок") {
			tailored = true
		}
	}
	if !tailored {
		t.Fatalf("options not tailored to pain: %v", got.Options)
	}
	if h.Snapshot().DynamicCTA["pain:потеря заявок"] != 1 {
		t.Error("dynamic CTA usage not recorded")
	}
}

func TestDynamicCTAStaticOutsideStates(t *testing.T) {
	h := newTestHandler()
	got := h.Get(guard.Tier2, "greeting", Context{PainCategory: "потеря заявок"})
	if len(got.Options) != len(staticOptions) {
		t.Fatalf("options = %v, want static set", got.Options)
	}
}

func TestDynamicCTAFlagOff(t *testing.T) {
	flags := config.NewFlags(nil)
	flags.Set(config.FlagDynamicCTA, false)
	h := New(flags, config.DefaultFrustrationThresholds(), "", nil)

	got := h.Get(guard.Tier2, "spin_problem", Context{Competitor: "КонкурентКРМ"})
	for _, o := range got.Options {
		if strings.Contains(o, "КонкурентКРМ") {
			t.Fatalf("tailored option with flag off: %v", got.Options)
		}
	}
}

func TestStatsAndRestore(t *testing.T) {
	h := newTestHandler()
	h.Get(guard.Tier1, "greeting", Context{})
	h.Get(guard.Tier2, "spin_problem", Context{PainCategory: "ручной учёт"})
	h.Get(guard.Tier2, "spin_problem", Context{})

	snap := h.Snapshot()
	if snap.Total != 3 || snap.ByTier[guard.Tier2] != 2 || snap.ByState["spin_problem"] != 2 {
		t.Fatalf("stats = %+v", snap)
	}
	if snap.LastTier != guard.Tier2 || snap.LastState != "spin_problem" {
		t.Errorf("last = %s/%s", snap.LastTier, snap.LastState)
	}

	restored := newTestHandler()
	restored.Restore(snap)
	if restored.Snapshot().Total != 3 {
		t.Fatal("total lost in restore")
	}
	// Rotation position survives: the next tier_2 template continues
	// from where the original handler stopped.
	next := restored.Get(guard.Tier2, "spin_problem", Context{})
	want := tierTemplates[guard.Tier2][2%len(tierTemplates[guard.Tier2])]
	if next.Message != want {
		t.Errorf("message = %q, want %q", next.Message, want)
	}
}
