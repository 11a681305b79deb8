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

import (
	"context"
	"testing"

	"github.com/AleutianAI/salespilot/services/salesbot/config"
)

func layerDecision(t *testing.T, res Result, layer string) RefinementDecision {
	t.Helper()
	for _, d := range res.Refinements {
		if d.Layer == layer {
			return d
		}
	}
	t.Fatalf("no decision recorded for layer %s", layer)
	return RefinementDecision{}
}

func TestRefinementOrderPublished(t *testing.T) {
	c := newTestClassifier(t, nil)
	got := c.Classify(context.Background(), "ну возможно", Context{TurnCount: 5, LastIntent: Greeting})

	want := []string{LayerClassification, LayerComposite, LayerObjection,
		LayerCalibration, LayerFirstContact, LayerDataAware}
	if len(got.Refinements) != len(want) {
		t.Fatalf("got %d layer decisions, want %d", len(got.Refinements), len(want))
	}
	for i, layer := range want {
		if got.Refinements[i].Layer != layer {
			t.Errorf("layer %d = %s, want %s", i, got.Refinements[i].Layer, layer)
		}
	}
}

func TestRefinementDisabledByFlag(t *testing.T) {
	flags := config.NewFlags(nil)
	flags.Set(config.FlagRefinementPipeline, false)
	c := NewClassifier(flags, nil, nil, nil)

	got := c.Classify(context.Background(), "ну возможно", Context{TurnCount: 5})
	if len(got.Refinements) != 0 {
		t.Fatalf("pipeline ran with flag off: %d decisions", len(got.Refinements))
	}
}

func TestUnclearWithDataPromoted(t *testing.T) {
	c := newTestClassifier(t, nil)
	res := c.refine(Result{
		Intent:        Unclear,
		Confidence:    0.3,
		ExtractedData: map[string]any{FieldIndustry: "логистика"},
		MethodUsed:    MethodKeyword,
	}, "что-то про логистику", Context{TurnCount: 6})

	if res.Intent != InfoProvided {
		t.Fatalf("intent = %s, want %s", res.Intent, InfoProvided)
	}
	d := layerDecision(t, res, LayerClassification)
	if !d.Applied || d.OldIntent != Unclear || d.NewIntent != InfoProvided {
		t.Errorf("decision = %+v", d)
	}
}

func TestAffirmativeShortResponseBecomesAgreement(t *testing.T) {
	c := newTestClassifier(t, nil)
	got := c.Classify(context.Background(), "да", Context{TurnCount: 7, LastIntent: QuestionPricing})

	if got.Intent != Agreement {
		t.Fatalf("intent = %s, want %s", got.Intent, Agreement)
	}
	if got.Confidence < 0.75 {
		t.Errorf("confidence = %.2f, want >= 0.75", got.Confidence)
	}
}

func TestCompositeSwapsToActionableClause(t *testing.T) {
	c := newTestClassifier(t, nil)
	got := c.Classify(context.Background(), "Привет. Сколько стоит подписка?", Context{TurnCount: 3})

	if got.Intent != QuestionPricing {
		t.Fatalf("intent = %s, want %s", got.Intent, QuestionPricing)
	}
	d := layerDecision(t, got, LayerComposite)
	if !d.Applied || d.OldIntent != Greeting {
		t.Errorf("decision = %+v", d)
	}
	if len(got.Alternatives) == 0 || got.Alternatives[0].Intent != Greeting {
		t.Error("demoted primary intent not kept as first alternative")
	}
}

func TestInterrogativeObjectionBecomesQuestion(t *testing.T) {
	c := newTestClassifier(t, nil)
	got := c.Classify(context.Background(), "Слишком сложно, и как это вообще работает у вас?", Context{TurnCount: 4})

	if got.Intent != QuestionGeneral {
		t.Fatalf("intent = %s, want %s", got.Intent, QuestionGeneral)
	}
	d := layerDecision(t, got, LayerObjection)
	if !d.Applied || d.OldIntent != ObjectionComplexity {
		t.Errorf("decision = %+v", d)
	}
}

func TestHighConfidenceObjectionNotRewritten(t *testing.T) {
	c := newTestClassifier(t, nil)
	res := c.refine(Result{
		Intent:        ObjectionPrice,
		Confidence:    0.95,
		ExtractedData: map[string]any{},
		MethodUsed:    MethodKeyword,
	}, "Дорого, сколько это стоит?", Context{TurnCount: 4})

	if res.Intent != ObjectionPrice {
		t.Fatalf("intent = %s, want unchanged %s", res.Intent, ObjectionPrice)
	}
	d := layerDecision(t, res, LayerObjection)
	if d.Applied {
		t.Errorf("rewrite fired above the ceiling: %+v", d)
	}
}

func TestFirstContactGreeting(t *testing.T) {
	c := newTestClassifier(t, nil)
	got := c.Classify(context.Background(), "ммм ну", Context{TurnCount: 1})

	if got.Intent != Greeting {
		t.Fatalf("intent = %s, want %s", got.Intent, Greeting)
	}
	d := layerDecision(t, got, LayerFirstContact)
	if !d.Applied {
		t.Errorf("decision = %+v", d)
	}
}

func TestFirstContactLayerIdleLater(t *testing.T) {
	c := newTestClassifier(t, nil)
	got := c.Classify(context.Background(), "ммм ну", Context{TurnCount: 8})

	if got.Intent == Greeting {
		t.Fatal("greeting rewrite fired past the first turn")
	}
	d := layerDecision(t, got, LayerFirstContact)
	if d.Applied {
		t.Errorf("decision = %+v", d)
	}
}

func TestDataAwarePromotesMissingFieldAnswer(t *testing.T) {
	c := newTestClassifier(t, nil)
	res := c.refine(Result{
		Intent:        ShortResponse,
		Confidence:    0.55,
		ExtractedData: map[string]any{FieldCompanySize: "50"},
		MethodUsed:    MethodKeyword,
	}, "человек 50", Context{
		TurnCount:   5,
		LastIntent:  QuestionGeneral,
		MissingData: []string{FieldCompanySize, FieldIndustry},
	})

	if res.Intent != InfoProvided {
		t.Fatalf("intent = %s, want %s", res.Intent, InfoProvided)
	}
	if res.Confidence < 0.80 {
		t.Errorf("confidence = %.2f, want >= 0.80", res.Confidence)
	}
	d := layerDecision(t, res, LayerDataAware)
	if !d.Applied {
		t.Errorf("decision = %+v", d)
	}
}
