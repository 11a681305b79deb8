// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package guard

import (
	"testing"
	"time"

	"github.com/AleutianAI/salespilot/services/salesbot/config"
)

func newTestGuard(cfg Config) *Guard {
	return New(cfg, config.DefaultFrustrationThresholds(), nil)
}

func TestTimeoutSoftCloses(t *testing.T) {
	g := newTestGuard(Config{TimeoutSeconds: 60, MaxTurns: 100, LoopWindow: 3,
		ProgressCheckInterval: 10, MinUniqueStates: 1, MaxConsecutiveTier2: 3})
	g.now = func() time.Time { return g.startedAt.Add(2 * time.Minute) }

	v := g.Check("greeting", "привет", 0, "greeting", false)
	if v.CanContinue || v.Intervention != SoftClose {
		t.Fatalf("verdict = %+v, want soft close", v)
	}
}

func TestTurnBudgetSoftCloses(t *testing.T) {
	g := newTestGuard(Config{TimeoutSeconds: 3600, MaxTurns: 2, LoopWindow: 3,
		ProgressCheckInterval: 10, MinUniqueStates: 1, MaxConsecutiveTier2: 3})

	g.Check("greeting", "a", 0, "greeting", false)
	g.Check("greeting", "b", 0, "info_provided", false)
	v := g.Check("greeting", "c", 0, "info_provided", false)
	if v.CanContinue || v.Intervention != SoftClose {
		t.Fatalf("verdict = %+v, want soft close", v)
	}
}

func TestFrustrationTiering(t *testing.T) {
	thresholds := config.DefaultFrustrationThresholds()

	// Disengaged user at high frustration: tier_3.
	g := newTestGuard(DefaultConfig())
	v := g.Check("spin_problem", "ну", thresholds.High, "unclear", false)
	if v.Intervention != Tier3 {
		t.Fatalf("intervention = %s, want tier_3", v.Intervention)
	}

	// Engaged user at the same level: tier_2.
	g2 := newTestGuard(DefaultConfig())
	v2 := g2.Check("spin_problem", "сколько стоит?", thresholds.High, "question_pricing", false)
	if v2.Intervention != Tier2 {
		t.Fatalf("intervention = %s, want tier_2", v2.Intervention)
	}

	// Pre-intervention triggers the same rule below the threshold.
	g3 := newTestGuard(DefaultConfig())
	v3 := g3.Check("spin_problem", "быстрее", thresholds.High-3, "unclear", true)
	if v3.Intervention != Tier3 {
		t.Fatalf("intervention = %s, want tier_3 from pre-intervention", v3.Intervention)
	}
}

func TestMessageLoopTier2(t *testing.T) {
	g := newTestGuard(DefaultConfig())
	g.Check("spin_problem", "не знаю", 0, "short_response", false)
	g.Check("spin_problem", "Не  Знаю", 0, "short_response", false)
	v := g.Check("spin_problem", "не знаю", 0, "short_response", false)
	if v.Intervention != Tier2 {
		t.Fatalf("intervention = %s, want tier_2 on normalized repeat", v.Intervention)
	}
}

func TestStateLoopTier3UnlessEngaged(t *testing.T) {
	g := newTestGuard(Config{TimeoutSeconds: 3600, MaxTurns: 100, LoopWindow: 3,
		ProgressCheckInterval: 20, MinUniqueStates: 1, MaxConsecutiveTier2: 5})

	msgs := []string{"а", "б", "в", "г"}
	var v Verdict
	for _, m := range msgs {
		v = g.Check("spin_problem", m, 0, "unclear", false)
	}
	if v.Intervention != Tier3 {
		t.Fatalf("intervention = %s, want tier_3 on state loop", v.Intervention)
	}

	g2 := newTestGuard(Config{TimeoutSeconds: 3600, MaxTurns: 100, LoopWindow: 3,
		ProgressCheckInterval: 20, MinUniqueStates: 1, MaxConsecutiveTier2: 5})
	for _, m := range msgs {
		v = g2.Check("spin_problem", m, 0, "question_general", false)
	}
	if v.Intervention == Tier3 {
		t.Fatalf("engaged state loop escalated to tier_3")
	}
}

func TestProgressWatchdogTier1(t *testing.T) {
	g := newTestGuard(Config{TimeoutSeconds: 3600, MaxTurns: 100, LoopWindow: 10,
		ProgressCheckInterval: 3, MinUniqueStates: 2, MaxConsecutiveTier2: 5})

	var v Verdict
	states := []string{"s1", "s1", "s1", "s1"}
	for i, s := range states {
		v = g.Check(s, "msg"+string(rune('a'+i)), 0, "info_provided", false)
	}
	if v.Intervention != Tier1 {
		t.Fatalf("intervention = %s, want tier_1 from watchdog", v.Intervention)
	}

	// Recording progress resets the watchdog.
	g.RecordProgress()
	v = g.Check("s1", "ещё", 0, "info_provided", false)
	if v.Intervention == Tier1 {
		t.Fatal("watchdog fired right after progress")
	}
}

func TestTier2Escalator(t *testing.T) {
	g := newTestGuard(Config{TimeoutSeconds: 3600, MaxTurns: 100, LoopWindow: 2,
		ProgressCheckInterval: 50, MinUniqueStates: 1, MaxConsecutiveTier2: 3})

	// Identical messages keep producing tier_2; the fourth consecutive
	// emission in the same state is forced to tier_3.
	var tiers []string
	for i := 0; i < 5; i++ {
		v := g.Check("spin_problem", "не знаю", 0, "short_response", false)
		tiers = append(tiers, v.Intervention)
	}
	if tiers[1] != Tier2 || tiers[2] != Tier2 || tiers[3] != Tier2 {
		t.Fatalf("tiers = %v, want tier_2 run first", tiers)
	}
	if tiers[4] != Tier3 {
		t.Fatalf("tiers = %v, want forced tier_3 after budget", tiers)
	}
}

func TestCountersMonotone(t *testing.T) {
	g := newTestGuard(DefaultConfig())
	prev := 0
	for i := 0; i < 10; i++ {
		g.Check("greeting", "msg", 0, "greeting", false)
		if got := g.TurnCount(); got <= prev {
			t.Fatalf("turn count not increasing: %d after %d", got, prev)
		} else {
			prev = got
		}
	}
	if g.StateAttempts("greeting") != 10 {
		t.Errorf("state attempts = %d, want 10", g.StateAttempts("greeting"))
	}
}

func TestGuardStateRoundTrip(t *testing.T) {
	g := newTestGuard(DefaultConfig())
	g.Check("greeting", "привет", 0, "greeting", false)
	g.Check("spin_situation", "у нас 50 человек", 0, "info_provided", false)
	g.RecordProgress()

	restored := newTestGuard(DefaultConfig())
	restored.LoadState(g.ToState())

	if restored.TurnCount() != g.TurnCount() {
		t.Fatalf("turn count = %d, want %d", restored.TurnCount(), g.TurnCount())
	}
	if restored.StateAttempts("greeting") != 1 || restored.StateAttempts("spin_situation") != 1 {
		t.Error("state attempts lost in round trip")
	}
}
