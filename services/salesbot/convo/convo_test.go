// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package convo

import (
	"testing"

	"github.com/AleutianAI/salespilot/services/salesbot/intent"
)

func add(w *Window, msg, resp, intentName string, conf float64, action, prev, next string) Turn {
	return w.Add(TurnInput{
		UserMessage: msg,
		BotResponse: resp,
		Intent:      intentName,
		Confidence:  conf,
		Action:      action,
		PrevState:   prev,
		NextState:   next,
	})
}

var testOrder = map[string]int{
	"greeting":       0,
	"spin_situation": 1,
	"spin_problem":   2,
	"presentation":   3,
	"close":          4,
}

func TestWindowRotation(t *testing.T) {
	w := NewWindow(3, testOrder)
	for i := 0; i < 5; i++ {
		add(w, "сообщение", "ответ", intent.InfoProvided, 0.8, "ask", "greeting", "greeting")
	}
	turns := w.Turns()
	if len(turns) != 3 {
		t.Fatalf("window holds %d turns, want 3", len(turns))
	}
	if turns[0].Index != 2 || turns[2].Index != 4 {
		t.Errorf("oldest/newest indices = %d/%d, want 2/4", turns[0].Index, turns[2].Index)
	}
}

func TestTurnTyping(t *testing.T) {
	w := NewWindow(5, testOrder)

	forward := add(w, "ок", "…", intent.Agreement, 0.9, "advance", "greeting", "spin_situation")
	if forward.TurnType != TurnProgress || forward.FunnelDelta != 1 {
		t.Errorf("forward = (%s, %d), want (progress, 1)", forward.TurnType, forward.FunnelDelta)
	}

	back := add(w, "вернёмся", "…", intent.QuestionGeneral, 0.7, "goback", "spin_problem", "spin_situation")
	if back.TurnType != TurnRegress || back.FunnelDelta != -1 {
		t.Errorf("back = (%s, %d), want (regress, -1)", back.TurnType, back.FunnelDelta)
	}

	// Objections are regress even when the state moves forward.
	obj := add(w, "дорого", "…", intent.ObjectionPrice, 0.9, "handle_objection", "spin_situation", "spin_problem")
	if obj.TurnType != TurnRegress {
		t.Errorf("objection turn type = %s, want regress", obj.TurnType)
	}

	// A state change without a funnel move is lateral; that covers
	// moves against states with no ordering.
	lateral := add(w, "…", "…", intent.InfoProvided, 0.8, "ask", "spin_problem", "mystery_state")
	if lateral.TurnType != TurnLateral || lateral.FunnelDelta != 0 {
		t.Errorf("lateral = (%s, %d), want (lateral, 0)", lateral.TurnType, lateral.FunnelDelta)
	}

	// First turn in place is neutral; staying put again is stuck.
	w2 := NewWindow(5, testOrder)
	first := add(w2, "…", "…", intent.InfoProvided, 0.8, "ask", "spin_problem", "spin_problem")
	if first.TurnType != TurnNeutral {
		t.Errorf("first in-place turn = %s, want neutral", first.TurnType)
	}
	second := add(w2, "…", "…", intent.InfoProvided, 0.8, "ask", "spin_problem", "spin_problem")
	if second.TurnType != TurnStuck {
		t.Errorf("repeated in-place turn = %s, want stuck", second.TurnType)
	}
}

func TestSummaryCountsAndStuck(t *testing.T) {
	w := NewWindow(5, testOrder)
	add(w, "дорого", "…", intent.ObjectionPrice, 0.9, "a", "greeting", "greeting")
	add(w, "сколько стоит?", "…", intent.QuestionPricing, 0.9, "a", "greeting", "greeting")
	add(w, "не понял", "…", intent.Unclear, 0.3, "a", "greeting", "greeting")
	add(w, "не понял", "…", intent.Unclear, 0.3, "a", "greeting", "greeting")
	add(w, "не понял", "…", intent.Unclear, 0.3, "a", "greeting", "greeting")

	s := w.Summary()
	if s.ObjectionCount != 1 || s.QuestionCount != 1 || s.UnclearCount != 3 {
		t.Errorf("counts = %d/%d/%d, want 1/1/3", s.ObjectionCount, s.QuestionCount, s.UnclearCount)
	}
	if !s.Stuck {
		t.Error("three identical tail intents should read as stuck")
	}
	if s.ConfidenceTrend >= 0 {
		t.Errorf("trend = %.3f, want negative", s.ConfidenceTrend)
	}
}

func TestRepeatedQuestionDetection(t *testing.T) {
	w := NewWindow(5, testOrder)
	add(w, "Сколько это стоит?", "…", intent.QuestionPricing, 0.9, "a", "greeting", "greeting")
	add(w, "у нас 50 человек", "…", intent.InfoProvided, 0.8, "a", "greeting", "greeting")
	if w.Summary().RepeatedQuestion {
		t.Fatal("single question flagged as repeated")
	}
	add(w, "сколько  это  СТОИТ?", "…", intent.QuestionPricing, 0.9, "a", "greeting", "greeting")
	if !w.Summary().RepeatedQuestion {
		t.Fatal("normalized repeat not detected")
	}
}

func TestOscillation(t *testing.T) {
	w := NewWindow(5, testOrder)
	add(w, "…", "…", intent.Agreement, 0.9, "a", "greeting", "spin_situation")
	add(w, "…", "…", intent.QuestionGeneral, 0.7, "a", "spin_situation", "greeting")
	add(w, "…", "…", intent.Agreement, 0.9, "a", "greeting", "spin_situation")
	add(w, "…", "…", intent.QuestionGeneral, 0.7, "a", "spin_situation", "greeting")
	if !w.Summary().Oscillating {
		t.Fatal("alternating progress/regress not detected")
	}
	add(w, "…", "…", intent.InfoProvided, 0.8, "a", "greeting", "greeting")
	if w.Summary().Oscillating {
		t.Fatal("non-moving tail should break oscillation")
	}
}

func TestEpisodicSurvivesRotation(t *testing.T) {
	w := NewWindow(2, testOrder)
	add(w, "дорого", "…", intent.ObjectionPrice, 0.9, "handle_objection", "spin_problem", "spin_problem")
	for i := 0; i < 6; i++ {
		add(w, "…", "…", intent.InfoProvided, 0.8, "ask", "spin_problem", "spin_problem")
	}

	mem := w.Episodic()
	eps := mem.Episodes()
	if len(eps) == 0 || eps[0].Kind != EpisodeFirstObjection || eps[0].TurnIndex != 0 {
		t.Fatalf("episodes = %+v, want first_objection at turn 0", eps)
	}
	if got := mem.Objections(); len(got) != 1 || got[0] != intent.ObjectionPrice {
		t.Errorf("objections = %v", got)
	}
}

func TestBreakthroughEpisode(t *testing.T) {
	w := NewWindow(5, testOrder)
	add(w, "дорого", "…", intent.ObjectionPrice, 0.9, "handle_objection", "spin_problem", "spin_problem")
	add(w, "ладно, давайте", "…", intent.Agreement, 0.9, "advance", "spin_problem", "presentation")

	var found bool
	for _, ep := range w.Episodic().Episodes() {
		if ep.Kind == EpisodeBreakthrough && ep.TurnIndex == 1 {
			found = true
		}
	}
	if !found {
		t.Fatal("progress after regress did not record a breakthrough")
	}
}

func TestProfileAccumulationAndDedup(t *testing.T) {
	m := NewMemory()
	m.UpdateProfile(map[string]any{
		intent.FieldCompanyName: "ТехноМаркет",
		intent.FieldPainPoints:  []string{"потеря лидов"},
	})
	m.UpdateProfile(map[string]any{
		intent.FieldCompanyName: "ТехноМаркет Групп",
		intent.FieldPainPoints:  []string{"потеря лидов", "ручной учёт"},
	})

	if got := m.Profile()[intent.FieldCompanyName]; got != "ТехноМаркет Групп" {
		t.Errorf("company = %s, want latest value", got)
	}
	if got := m.PainPoints(); len(got) != 2 {
		t.Errorf("pain points = %v, want 2 deduplicated", got)
	}
}

func TestActionOutcomeRecall(t *testing.T) {
	m := NewMemory()
	m.RecordActionOutcome("ask_budget", 1, false)
	m.RecordActionOutcome("show_roi", 2, true)
	m.RecordActionOutcome("ask_budget", 3, true)
	m.RecordActionOutcome("push_close", 4, false)

	if got := m.EffectiveActions(); len(got) != 2 {
		t.Errorf("effective = %v, want [show_roi ask_budget]", got)
	}
	// ask_budget eventually succeeded; only push_close stays ineffective.
	got := m.IneffectiveActions()
	if len(got) != 1 || got[0] != "push_close" {
		t.Errorf("ineffective = %v, want [push_close]", got)
	}
}

func TestWindowStateRoundTrip(t *testing.T) {
	w := NewWindow(3, testOrder)
	add(w, "дорого", "…", intent.ObjectionPrice, 0.9, "handle_objection", "spin_problem", "spin_problem")
	add(w, "ладно", "…", intent.Agreement, 0.9, "advance", "spin_problem", "presentation")
	w.Episodic().UpdateProfile(map[string]any{intent.FieldCompanyName: "Ромашка"})
	w.Episodic().RecordActionOutcome("advance", 1, true)

	restored := NewWindow(3, testOrder)
	restored.LoadState(w.ToState())

	if len(restored.Turns()) != len(w.Turns()) {
		t.Fatalf("turns = %d, want %d", len(restored.Turns()), len(w.Turns()))
	}
	if restored.Summary().ObjectionCount != 1 {
		t.Error("summary lost in round trip")
	}
	if restored.Episodic().Profile()[intent.FieldCompanyName] != "Ромашка" {
		t.Error("profile lost in round trip")
	}
	if len(restored.Episodic().Episodes()) != len(w.Episodic().Episodes()) {
		t.Error("episodes lost in round trip")
	}

	// A regress in the restored window still yields a breakthrough on
	// the next progress only if one was pending; here it was consumed.
	next := add(restored, "ок", "…", intent.Agreement, 0.9, "advance", "presentation", "close")
	if next.TurnType != TurnProgress {
		t.Errorf("turn type = %s, want progress", next.TurnType)
	}
}
