// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generate

import (
	"context"
	"strings"
	"testing"

	"github.com/AleutianAI/salespilot/services/salesbot/flow"
	"github.com/AleutianAI/salespilot/services/salesbot/intent"
	"github.com/AleutianAI/salespilot/services/salesbot/kb"
	"github.com/AleutianAI/salespilot/services/salesbot/llm"
	"github.com/AleutianAI/salespilot/services/salesbot/policy"
)

type fakeLLM struct {
	out     string
	prompts []string
}

func (f *fakeLLM) Generate(_ context.Context, prompt string, _ llm.GenerateOpts) string {
	f.prompts = append(f.prompts, prompt)
	return f.out
}

type fakeRetriever struct {
	facts string
	err   error
}

func (f *fakeRetriever) RetrieveWithURLs(context.Context, kb.Query) (string, []string, error) {
	return f.facts, nil, f.err
}

func (f *fakeRetriever) CompanyInfo(context.Context) (string, error) { return "", nil }

func TestTemplateKeySelection(t *testing.T) {
	tests := []struct {
		name        string
		action      string
		reasonCodes []string
		want        string
	}{
		{"plain action", flow.ActionPresent, nil, flow.ActionPresent},
		{"reason code swap", flow.ActionContinueGoal, []string{"rushed_shorten"}, TemplateShortenConfirm},
		{"competitor swap", flow.ActionPresent, []string{"competitor_comparison"}, TemplateCompareCompetitor},
		{"first code wins", flow.ActionPresent, []string{"rushed_shorten", "competitor_comparison"}, TemplateShortenConfirm},
		{"unknown action falls back", "mystery_action", nil, flow.ActionContinueGoal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := templateKey(tt.action, tt.reasonCodes); got != tt.want {
				t.Errorf("templateKey(%s, %v) = %s, want %s", tt.action, tt.reasonCodes, got, tt.want)
			}
		})
	}
}

func TestObjectionPartsBypassLLM(t *testing.T) {
	fl := &fakeLLM{out: "не должно использоваться"}
	g := New(fl, nil, nil)

	got := g.Generate(context.Background(), flow.ActionHandleObjection, Context{
		State:          flow.StateObjectionHandling,
		ObjectionParts: []string{"Понимаю, цена важна.", "Давайте посчитаем окупаемость: сколько заявок вы теряете в месяц?"},
	})
	if len(fl.prompts) != 0 {
		t.Error("LLM called despite deterministic objection parts")
	}
	if !strings.Contains(got, "окупаемость") {
		t.Errorf("response = %q", got)
	}
}

func TestFactInjectionStripsGreeting(t *testing.T) {
	fl := &fakeLLM{out: "Тариф «Старт» — 25 000 ₸ в месяц. Что для вас важнее?"}
	r := &fakeRetriever{facts: "Здравствуйте! Тариф «Старт» — 25 000 ₸ в месяц."}
	g := New(fl, r, nil)

	g.Generate(context.Background(), flow.ActionAnswerPricing, Context{
		UserMessage: "Сколько стоит?",
		Intent:      "question_pricing",
		State:       flow.StatePresentation,
	})
	if len(fl.prompts) != 1 {
		t.Fatalf("prompts = %d", len(fl.prompts))
	}
	prompt := fl.prompts[0]
	if !strings.Contains(prompt, "25 000 ₸") {
		t.Error("facts not injected")
	}
	if strings.Contains(prompt, "Здравствуйте") {
		t.Error("greeting prefix survived in facts")
	}
}

func TestNoRetrievalForContinue(t *testing.T) {
	fl := &fakeLLM{out: "Расскажите подробнее о вашей команде?"}
	r := &fakeRetriever{facts: "факты"}
	g := New(fl, r, nil)

	g.Generate(context.Background(), flow.ActionContinueGoal, Context{State: flow.StateSpinSituation})
	if strings.Contains(fl.prompts[0], "факты") {
		t.Error("facts injected for a non-information-seeking template")
	}
}

func TestBannedOpeningReplaced(t *testing.T) {
	fl := &fakeLLM{out: "Отличный вопрос! Система закрывает учёт заявок и сделок."}
	g := New(fl, nil, nil)

	got := g.Generate(context.Background(), flow.ActionContinueGoal, Context{State: flow.StateSpinProblem})
	if strings.Contains(got, "Отличный вопрос") {
		t.Errorf("banned opening survived: %q", got)
	}
	if !strings.Contains(got, "заявок") {
		t.Errorf("body lost: %q", got)
	}
}

func TestRepeatGetsRephrased(t *testing.T) {
	text := "Система закрывает учёт заявок, сделок и клиентов в одном окне."
	fl := &fakeLLM{out: text}
	g := New(fl, nil, nil)

	got := g.Generate(context.Background(), flow.ActionContinueGoal, Context{
		State:           flow.StateSpinProblem,
		LastBotResponse: text,
	})
	if got == text {
		t.Error("identical repeat shipped unchanged")
	}
	if !strings.Contains(got, "заявок") {
		t.Errorf("body lost: %q", got)
	}
}

func TestKnownQuestionStripped(t *testing.T) {
	fl := &fakeLLM{out: "Понимаю вашу ситуацию. Как называется ваша компания? Какие сложности сейчас самые острые?"}
	g := New(fl, nil, nil)

	got := g.Generate(context.Background(), flow.ActionContinueGoal, Context{
		State:         flow.StateSpinProblem,
		CollectedData: map[string]any{intent.FieldCompanyName: "Ромашка"},
	})
	if strings.Contains(got, "называется") {
		t.Errorf("re-ask for known company name survived: %q", got)
	}
	if !strings.Contains(got, "сложности") {
		t.Errorf("unrelated question stripped: %q", got)
	}
}

func TestApologyInserted(t *testing.T) {
	fl := &fakeLLM{out: "Давайте вернёмся к вашим задачам."}
	g := New(fl, nil, nil)

	got := g.Generate(context.Background(), flow.ActionContinueGoal, Context{
		State:      flow.StateSpinProblem,
		Directives: policy.ResponseDirectives{ShouldApologize: true},
	})
	if !strings.Contains(strings.ToLower(got), "извин") {
		t.Errorf("no apology: %q", got)
	}

	// Responses that already apologize are left alone.
	fl.out = "Извините за путаницу, давайте вернёмся к задачам."
	got = g.Generate(context.Background(), flow.ActionContinueGoal, Context{
		State:      flow.StateSpinProblem,
		Directives: policy.ResponseDirectives{ShouldApologize: true},
	})
	if strings.Count(strings.ToLower(got), "извин") != 1 {
		t.Errorf("double apology: %q", got)
	}
}

func TestCTAAppendedForPresentation(t *testing.T) {
	fl := &fakeLLM{out: "Система собирает все заявки в одном окне и ничего не теряется."}
	g := New(fl, nil, nil)

	got := g.Generate(context.Background(), flow.ActionPresent, Context{State: flow.StatePresentation})
	if !strings.HasSuffix(got, "?") {
		t.Errorf("no CTA appended: %q", got)
	}

	// A draft that already ends with a question gets no CTA.
	fl.out = "Система собирает все заявки в одном окне. Показать на примере?"
	got = g.Generate(context.Background(), flow.ActionPresent, Context{State: flow.StatePresentation})
	if strings.Count(got, "?") != 1 {
		t.Errorf("CTA stacked on a question: %q", got)
	}
}

func TestJaccard(t *testing.T) {
	if got := Jaccard("один два три", "один два три"); got != 1 {
		t.Errorf("identical = %f", got)
	}
	if got := Jaccard("один два", "три четыре"); got != 0 {
		t.Errorf("disjoint = %f", got)
	}
	if got := Jaccard("", "текст"); got != 0 {
		t.Errorf("empty = %f", got)
	}
}

func TestDiversityRotation(t *testing.T) {
	d := NewDiversity()
	first := d.Next(CategoryOpening)
	second := d.Next(CategoryOpening)
	if first == second {
		t.Error("ring did not rotate")
	}

	// State round trip resumes the rotation position.
	st := d.State()
	fresh := NewDiversity()
	fresh.LoadState(st)
	if got := fresh.Next(CategoryOpening); got == first || got == second {
		t.Errorf("restored ring replayed %q", got)
	}
}
