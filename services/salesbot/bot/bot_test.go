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
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/salespilot/services/salesbot/config"
	"github.com/AleutianAI/salespilot/services/salesbot/flow"
	"github.com/AleutianAI/salespilot/services/salesbot/llm"
)

// scriptedBackend returns a fixed reply for every generation call.
type scriptedBackend struct {
	mu    sync.Mutex
	reply string
	calls int
}

func (s *scriptedBackend) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.reply, nil
}

func (s *scriptedBackend) HealthCheck(ctx context.Context) bool { return true }
func (s *scriptedBackend) ModelName() string                    { return "scripted" }

const cleanReply = "Расскажите, пожалуйста, немного о вашей компании и команде."

// testDeps wires a bot around the scripted backend with all LLM and
// semantic tiers forced off, so every test is deterministic.
func testDeps(reply string) Deps {
	flags := config.NewFlags(nil)
	for _, name := range []string{
		config.FlagSemanticTone, config.FlagLLMTone,
		config.FlagSemanticIntent, config.FlagLLMIntent,
		config.FlagBoundaryRepair, config.FlagHistoryCompaction,
	} {
		flags.Set(name, false)
	}
	client := llm.NewClient(&scriptedBackend{reply: reply}, llm.RetryConfig{
		MaxRetries:   0,
		InitialDelay: time.Millisecond,
		Multiplier:   2,
		MaxDelay:     time.Millisecond,
	}, llm.DefaultBreakerConfig(), nil)
	return Deps{
		Flags:      flags,
		Thresholds: config.DefaultFrustrationThresholds(),
		LLM:        client,
	}
}

func newTestBot(deps Deps) *Bot {
	return New(Options{
		ConversationID: "conv-1",
		ClientID:       "client-1",
		FlowName:       "spin_selling",
		ConfigName:     "test",
	}, flow.SpinSelling(), deps)
}

func TestGreetingAdvancesFunnel(t *testing.T) {
	b := newTestBot(testDeps(cleanReply))

	res := b.Process(context.Background(), "Здравствуйте")

	if res.Intent != "greeting" {
		t.Errorf("intent = %q, want greeting", res.Intent)
	}
	if res.State != flow.StateSpinSituation {
		t.Errorf("state = %q, want %q", res.State, flow.StateSpinSituation)
	}
	if res.Action != flow.ActionContinueGoal {
		t.Errorf("action = %q, want %q", res.Action, flow.ActionContinueGoal)
	}
	if res.Outcome != "" {
		t.Errorf("outcome = %q, want empty", res.Outcome)
	}
	if res.Response == "" {
		t.Error("empty response")
	}
	if b.TurnCount() != 1 {
		t.Errorf("turn count = %d, want 1", b.TurnCount())
	}
	if res.Trace == nil || res.Trace.TurnNumber != 1 {
		t.Errorf("trace = %+v", res.Trace)
	}
}

func TestPriceObjectionHandled(t *testing.T) {
	b := newTestBot(testDeps(cleanReply))

	res := b.Process(context.Background(), "Это дорого для нас")

	if !res.ObjectionDetected || res.ObjectionType != "objection_price" {
		t.Fatalf("objection = %v/%q", res.ObjectionDetected, res.ObjectionType)
	}
	if res.State != flow.StateObjectionHandling {
		t.Errorf("state = %q, want %q", res.State, flow.StateObjectionHandling)
	}
	if res.Action != flow.ActionHandleObjection {
		t.Errorf("action = %q, want %q", res.Action, flow.ActionHandleObjection)
	}
	if res.Response == "" {
		t.Error("empty response")
	}
	if res.Outcome != "" {
		t.Errorf("outcome = %q, want empty", res.Outcome)
	}
}

func TestObjectionBudgetSoftClose(t *testing.T) {
	b := newTestBot(testDeps(cleanReply))
	ctx := context.Background()

	// Differently worded so the guard's identical-message loop rule
	// stays out of the way.
	b.Process(ctx, "Это дорого для нас")
	b.Process(ctx, "Дороговато выходит")
	res := b.Process(ctx, "Нет бюджета на это")

	if res.Outcome != OutcomeSoftClose {
		t.Fatalf("outcome = %q, want %q", res.Outcome, OutcomeSoftClose)
	}
	if res.Action != flow.ActionSoftClose {
		t.Errorf("action = %q, want %q", res.Action, flow.ActionSoftClose)
	}
	if res.State != flow.StateClose {
		t.Errorf("state = %q, want %q", res.State, flow.StateClose)
	}
	if !res.IsFinal {
		t.Error("soft close not final")
	}
	if b.metrics.ObjectionsByType["objection_price"] != 3 {
		t.Errorf("objection counter = %d, want 3", b.metrics.ObjectionsByType["objection_price"])
	}
}

func TestContactExtractionReachesTerminalSuccess(t *testing.T) {
	b := newTestBot(testDeps(cleanReply))

	res := b.Process(context.Background(), "Мой телефон +7 777 123 45 67")

	if res.Intent != "contact_provided" {
		t.Fatalf("intent = %q, want contact_provided", res.Intent)
	}
	if res.State != flow.StateContactCollection {
		t.Errorf("state = %q, want %q", res.State, flow.StateContactCollection)
	}
	if res.Outcome != OutcomeSuccess {
		t.Errorf("outcome = %q, want %q", res.Outcome, OutcomeSuccess)
	}
	if !res.IsFinal {
		t.Error("terminal success not final")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	deps := testDeps(cleanReply)
	b := newTestBot(deps)
	ctx := context.Background()

	b.Process(ctx, "Здравствуйте")
	b.Process(ctx, "Это дорого")

	snap, tail := b.ToSnapshot(ctx, false, 0)

	if snap.Version != SnapshotVersion {
		t.Errorf("version = %d, want %d", snap.Version, SnapshotVersion)
	}
	if len(snap.History) != 0 {
		t.Errorf("snapshot history = %d turns, want 0 (tail travels separately)", len(snap.History))
	}
	if len(tail) != 2 {
		t.Fatalf("tail = %d turns, want 2", len(tail))
	}
	if tail[0].User != "Здравствуйте" {
		t.Errorf("tail[0].User = %q", tail[0].User)
	}

	restored := FromSnapshot(snap, tail, flow.SpinSelling(), deps)
	if restored.TurnCount() != b.TurnCount() {
		t.Errorf("restored turn count = %d, want %d", restored.TurnCount(), b.TurnCount())
	}
	if restored.ConversationID() != "conv-1" || restored.ClientID() != "client-1" {
		t.Errorf("identity = %q/%q", restored.ConversationID(), restored.ClientID())
	}
	if got := restored.machine.Current(); got != b.machine.Current() {
		t.Errorf("restored state = %q, want %q", got, b.machine.Current())
	}

	// The restored bot keeps playing from the same point.
	res := restored.Process(ctx, "Дороговато выходит")
	if res.Response == "" {
		t.Error("restored bot produced empty response")
	}
	if restored.TurnCount() != 3 {
		t.Errorf("turn count after resume = %d, want 3", restored.TurnCount())
	}
}

func TestCompactedSnapshotTrimsTail(t *testing.T) {
	deps := testDeps(cleanReply)
	deps.Flags.Set(config.FlagHistoryCompaction, true)
	b := newTestBot(deps)
	ctx := context.Background()

	for _, msg := range []string{
		"Здравствуйте",
		"Это дорого",
		"Нет бюджета на это",
		"Дороговато выходит",
	} {
		b.Process(ctx, msg)
	}

	snap, tail := b.ToSnapshot(ctx, true, 2)

	if len(tail) != 2 {
		t.Fatalf("tail = %d turns, want 2", len(tail))
	}
	if snap.HistoryCompact == nil || snap.HistoryMeta == nil {
		t.Fatal("compacted snapshot missing compact or meta")
	}
	if snap.HistoryMeta.CompactedTurns != 2 {
		t.Errorf("compacted turns = %d, want 2", snap.HistoryMeta.CompactedTurns)
	}
	if tail[1].User != "Дороговато выходит" {
		t.Errorf("tail[1].User = %q", tail[1].User)
	}
}

func TestResetClearsState(t *testing.T) {
	b := newTestBot(testDeps(cleanReply))
	ctx := context.Background()

	b.Process(ctx, "Здравствуйте")
	if b.TurnCount() != 1 {
		t.Fatalf("turn count = %d, want 1", b.TurnCount())
	}

	b.Reset()

	if b.TurnCount() != 0 {
		t.Errorf("turn count after reset = %d, want 0", b.TurnCount())
	}
	if got := b.machine.Current(); got != flow.StateGreeting {
		t.Errorf("state after reset = %q, want %q", got, flow.StateGreeting)
	}
	if len(b.history) != 0 {
		t.Errorf("history after reset = %d turns, want 0", len(b.history))
	}

	res := b.Process(ctx, "Здравствуйте")
	if res.State != flow.StateSpinSituation {
		t.Errorf("state after fresh turn = %q, want %q", res.State, flow.StateSpinSituation)
	}
}

func TestIntentTrackerBoundsHistory(t *testing.T) {
	tr := NewIntentTracker()
	for i := 0; i < maxIntentHistory+10; i++ {
		tr.Record("greeting", flow.ActionContinueGoal)
	}
	if len(tr.History) != maxIntentHistory {
		t.Errorf("history = %d, want %d", len(tr.History), maxIntentHistory)
	}
	if tr.Counts["greeting"] != maxIntentHistory+10 {
		t.Errorf("count = %d", tr.Counts["greeting"])
	}
}

func TestTurnResultCarriesLeadScore(t *testing.T) {
	b := newTestBot(testDeps(cleanReply))

	res := b.Process(context.Background(), "Сколько стоит ваш продукт?")

	if res.LeadScore <= 0 {
		t.Errorf("lead score = %d, want > 0 after pricing question", res.LeadScore)
	}
	if res.LeadTemperature == "" {
		t.Error("empty lead temperature")
	}
	if res.Action != flow.ActionAnswerPricing {
		t.Errorf("action = %q, want %q", res.Action, flow.ActionAnswerPricing)
	}
}
