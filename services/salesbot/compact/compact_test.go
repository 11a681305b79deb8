// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compact

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type fakeGen struct {
	payload string
	err     error
	calls   int
}

func (f *fakeGen) GenerateStructured(_ context.Context, _ string, out any) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.payload), out)
}

func history(n int) []Turn {
	out := make([]Turn, n)
	for i := range out {
		out[i] = Turn{User: "вопрос", Bot: "ответ"}
	}
	return out
}

func TestLLMPathProducesStructuredCompact(t *testing.T) {
	gen := &fakeGen{payload: `{
		"summary": "Клиент из ТОО Ромашка интересуется тарифами.",
		"key_facts": ["компания Ромашка", "50 сотрудников"],
		"objections": ["дорого"],
		"decisions": [],
		"open_questions": ["интеграция с 1С"],
		"next_steps": ["показать демо"]
	}`}
	c := New(gen, "test-model", nil)

	got, meta := c.Compact(context.Background(), history(8), 4, nil, nil, FallbackContext{})
	if got.Summary == "" || len(got.KeyFacts) != 2 {
		t.Fatalf("compact = %+v", got)
	}
	if meta.CompactedTurns != 4 || meta.TailSize != 4 {
		t.Errorf("meta = %+v", meta)
	}
	if meta.Model != "test-model" || meta.SchemaVersion != SchemaVersion {
		t.Errorf("meta attribution = %+v", meta)
	}
}

func TestDeterministicFallbackOnLLMFailure(t *testing.T) {
	gen := &fakeGen{err: errors.New("backend down")}
	c := New(gen, "test-model", nil)

	got, meta := c.Compact(context.Background(), history(6), 2, nil, nil, FallbackContext{
		State: "spin_problem",
		CollectedData: map[string]any{
			"company_name": "Ромашка",
		},
		Objections: []string{"objection_price"},
	})
	if !strings.Contains(got.Summary, "без LLM") {
		t.Errorf("summary = %q", got.Summary)
	}
	if len(got.KeyFacts) != 1 || !strings.Contains(got.KeyFacts[0], "Ромашка") {
		t.Errorf("key facts = %v", got.KeyFacts)
	}
	if meta.Model != "" {
		t.Error("deterministic path attributed a model")
	}
}

func TestIncrementalCompactionSkipsSeenTurns(t *testing.T) {
	gen := &fakeGen{payload: `{"summary": "s2", "key_facts": ["новый факт"]}`}
	c := New(gen, "m", nil)

	prev := &Compact{Summary: "s1", KeyFacts: []string{"старый факт"}}
	prevMeta := &Meta{CompactedTurns: 4, TailSize: 4}

	got, meta := c.Compact(context.Background(), history(12), 4, prev, prevMeta, FallbackContext{})
	if meta.CompactedTurns != 8 {
		t.Errorf("compacted turns = %d, want 8", meta.CompactedTurns)
	}
	// Merge keeps the old facts and appends the new ones.
	if len(got.KeyFacts) != 2 || got.KeyFacts[0] != "старый факт" {
		t.Errorf("key facts = %v", got.KeyFacts)
	}
	if got.Summary != "s2" {
		t.Errorf("summary = %q", got.Summary)
	}
}

func TestNoFreshTurnsReturnsPrevious(t *testing.T) {
	gen := &fakeGen{payload: `{"summary": "ignored"}`}
	c := New(gen, "m", nil)

	prev := &Compact{Summary: "s1"}
	prevMeta := &Meta{CompactedTurns: 4}

	got, _ := c.Compact(context.Background(), history(8), 4, prev, prevMeta, FallbackContext{})
	if got.Summary != "s1" {
		t.Errorf("summary = %q, want previous", got.Summary)
	}
	if gen.calls != 0 {
		t.Error("LLM called with nothing new to compact")
	}
}

func TestListsDedupAndCap(t *testing.T) {
	items := make([]string, 0, 15)
	for i := 0; i < 15; i++ {
		items = append(items, strings.Repeat("a", i+1))
	}
	payload, _ := json.Marshal(Compact{
		Summary:  "s",
		KeyFacts: append(items, items[0]),
	})
	gen := &fakeGen{payload: string(payload)}
	c := New(gen, "m", nil)

	got, _ := c.Compact(context.Background(), history(6), 2, nil, nil, FallbackContext{})
	if len(got.KeyFacts) != maxListItems {
		t.Errorf("key facts = %d, want capped at %d", len(got.KeyFacts), maxListItems)
	}
	if got.KeyFacts[0] != "a" {
		t.Error("order not preserved")
	}
}

func TestTailShorterThanHistory(t *testing.T) {
	gen := &fakeGen{payload: `{"summary": "s"}`}
	c := New(gen, "m", nil)

	_, meta := c.Compact(context.Background(), history(2), 4, nil, nil, FallbackContext{})
	if meta.CompactedTurns != 0 {
		t.Errorf("compacted = %d, want 0 when tail covers everything", meta.CompactedTurns)
	}
	if gen.calls != 0 {
		t.Error("LLM called with an empty fragment")
	}
}
