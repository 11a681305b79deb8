// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import "testing"

func TestDecideMatrix(t *testing.T) {
	e := NewDisambigEngine(DisambigConfig{})

	tests := []struct {
		name       string
		confidence float64
		altConf    float64
		wantAction string
	}{
		{"high confidence clear gap", 0.85, 0.50, ActionExecute},
		{"high confidence narrow gap", 0.85, 0.80, ActionConfirm},
		{"medium confidence clear gap", 0.65, 0.40, ActionExecute},
		{"medium confidence narrow gap", 0.65, 0.60, ActionConfirm},
		{"low confidence", 0.45, 0.40, ActionDisambiguate},
		{"below minimum", 0.25, 0.10, ActionFallback},
		{"between min and low", 0.35, 0.10, ActionFallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Result{
				Intent:       QuestionPricing,
				Confidence:   tt.confidence,
				Alternatives: []Alternative{{Intent: QuestionFeatures, Confidence: tt.altConf}},
			}
			got := e.Decide(res)
			if got.Action != tt.wantAction {
				t.Fatalf("action = %s, want %s (reason: %s)", got.Action, tt.wantAction, got.Reason)
			}
		})
	}
}

func TestDecideNoAlternativesMeansClearGap(t *testing.T) {
	e := NewDisambigEngine(DisambigConfig{})
	got := e.Decide(Result{Intent: DemoRequest, Confidence: 0.65})
	if got.Action != ActionExecute {
		t.Fatalf("action = %s, want %s", got.Action, ActionExecute)
	}
}

func TestDisambiguateOptions(t *testing.T) {
	e := NewDisambigEngine(DisambigConfig{})
	got := e.Decide(Result{
		Intent:     QuestionPricing,
		Confidence: 0.45,
		Alternatives: []Alternative{
			{Intent: DemoRequest, Confidence: 0.40},
			{Intent: QuestionFeatures, Confidence: 0.35},
		},
	})

	if got.Action != ActionDisambiguate {
		t.Fatalf("action = %s, want %s", got.Action, ActionDisambiguate)
	}
	if len(got.Options) != 4 {
		t.Fatalf("got %d options, want 4", len(got.Options))
	}
	last := got.Options[len(got.Options)-1]
	if last.Intent != OptionOther {
		t.Errorf("last option = %s, want %s", last.Intent, OptionOther)
	}
	for i, opt := range got.Options {
		if opt.Index != i+1 {
			t.Errorf("option %d has index %d", i, opt.Index)
		}
		if opt.Label == "" {
			t.Errorf("option %d has no label", i)
		}
	}
	if got.Question == "" {
		t.Error("disambiguation question is empty")
	}
}

func TestResolve(t *testing.T) {
	e := NewDisambigEngine(DisambigConfig{})
	options := []Option{
		{Index: 1, Intent: QuestionPricing, Label: "Узнать стоимость"},
		{Index: 2, Intent: DemoRequest, Label: "Посмотреть демонстрацию"},
		{Index: 3, Intent: OptionOther, Label: "Другое"},
	}

	tests := []struct {
		name       string
		reply      string
		fresh      Result
		attempt    int
		wantIntent string
		wantDone   bool
	}{
		{"numeric index", "1", Result{Intent: Unclear, Confidence: 0.3}, 1, QuestionPricing, true},
		{"numeric with punctuation", "2.", Result{Intent: Unclear, Confidence: 0.3}, 1, DemoRequest, true},
		{"spelled ordinal", "первое", Result{Intent: Unclear, Confidence: 0.3}, 1, QuestionPricing, true},
		{"exact label", "Посмотреть демонстрацию", Result{Intent: Unclear, Confidence: 0.3}, 1, DemoRequest, true},
		{"other option", "3", Result{Intent: Unclear, Confidence: 0.3}, 1, Unclear, true},
		{"free text on candidate", "ну цена интересует", Result{Intent: QuestionPricing, Confidence: 0.7}, 1, QuestionPricing, true},
		{"critical interrupt", "вообще-то вот мой номер", Result{Intent: ContactProvided, Confidence: 0.95}, 1, ContactProvided, true},
		{"unmatched first attempt", "не понял вопроса", Result{Intent: Unclear, Confidence: 0.3}, 1, "", false},
		{"unmatched final attempt", "не понял вопроса", Result{Intent: Unclear, Confidence: 0.3}, 2, Unclear, true},
		{"past max attempts", "что", Result{Intent: Unclear, Confidence: 0.3}, 3, Unclear, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, done := e.Resolve(tt.reply, options, tt.fresh, tt.attempt)
			if done != tt.wantDone {
				t.Fatalf("done = %v, want %v", done, tt.wantDone)
			}
			if intent != tt.wantIntent {
				t.Errorf("intent = %s, want %s", intent, tt.wantIntent)
			}
		})
	}
}
