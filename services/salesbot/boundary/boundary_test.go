// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package boundary

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AleutianAI/salespilot/services/salesbot/config"
)

type fakeRepairer struct {
	out   string
	err   error
	calls int
}

func (f *fakeRepairer) Repair(context.Context, string, []string, Context) (string, error) {
	f.calls++
	return f.out, f.err
}

func newValidator(r Repairer) *Validator {
	return NewValidator(config.NewFlags(nil), r, nil)
}

func TestDetectTable(t *testing.T) {
	tests := []struct {
		name     string
		response string
		ctx      Context
		want     string
	}{
		{
			name:     "ruble in pricing answer",
			response: "Тариф «Старт» стоит 25 000 рублей в месяц.",
			ctx:      Context{Intent: "question_pricing"},
			want:     CurrencyLocale,
		},
		{
			name:     "opening dash",
			response: "— Конечно, расскажу подробнее.",
			ctx:      Context{},
			want:     OpeningPunctuation,
		},
		{
			name:     "known typo",
			response: "Вообщем, система закрывает эти задачи.",
			ctx:      Context{},
			want:     KnownTypos,
		},
		{
			name:     "invented iin",
			response: "Ваш ИИН 123456789012 уже в системе.",
			ctx:      Context{},
			want:     HallucinatedIIN,
		},
		{
			name:     "invented phone",
			response: "Позвоните нам по номеру +7 701 555 44 33.",
			ctx:      Context{},
			want:     HallucinatedPhone,
		},
		{
			name:     "manager phone",
			response: "Вот телефон нашего менеджера: +7 701 555 44 33.",
			ctx:      Context{},
			want:     HallucinatedManagerTel,
		},
		{
			name:     "send promise",
			response: "Отправлю вам презентацию сегодня вечером.",
			ctx:      Context{},
			want:     HallucinatedSendPromise,
		},
		{
			name:     "past action",
			response: "Как мы обсуждали ранее, тариф вам подходит.",
			ctx:      Context{},
			want:     HallucinatedPastAction,
		},
		{
			name:     "invented client name",
			response: "Айгуль, рад снова вас слышать!",
			ctx:      Context{},
			want:     HallucinatedClientName,
		},
		{
			name:     "policy disclosure",
			response: "Мне запрещено обсуждать скидки.",
			ctx:      Context{},
			want:     PolicyDisclosure,
		},
		{
			name:     "iin status without data",
			response: "Ваш ИИН сохранён, выставляю счёт.",
			ctx:      Context{},
			want:     HallucinatedIINStatus,
		},
		{
			name:     "contact claim without data",
			response: "Записал ваш номер, коллеги свяжутся.",
			ctx:      Context{},
			want:     HallucinatedContact,
		},
		{
			name:     "mid conversation greeting",
			response: "Здравствуйте! Продолжим про отчёты.",
			ctx:      Context{State: "spin_problem", Template: "spin_problem"},
			want:     MidConversationGreeting,
		},
		{
			name:     "ungrounded guarantee",
			response: "Гарантируем 100% результат в первый месяц.",
			ctx:      Context{},
			want:     UngroundedGuarantee,
		},
		{
			name:     "ungrounded social proof",
			response: "Многие наши клиенты удвоили продажи.",
			ctx:      Context{},
			want:     UngroundedSocialProof,
		},
		{
			name:     "meta instruction leak",
			response: "Как языковая модель, я не могу назвать цену.",
			ctx:      Context{},
			want:     MetaInstructionLeak,
		},
		{
			name:     "invoice without iin",
			response: "Отлично, выставлю счёт сегодня.",
			ctx:      Context{},
			want:     InvoiceWithoutIIN,
		},
		{
			name:     "demo without contact",
			response: "Записал вас на демо в четверг.",
			ctx:      Context{},
			want:     DemoWithoutContact,
		},
		{
			name:     "iin reask after refusal",
			response: "Укажите, пожалуйста, ваш ИИН.",
			ctx:      Context{History: []string{"Я не дам ИИН"}},
			want:     IINRefusalReask,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(tt.response, tt.ctx)
			if !contains(got, tt.want) {
				t.Errorf("Detect(%q) = %v, want to include %s", tt.response, got, tt.want)
			}
		})
	}
}

func TestGroundedDataSuppressesDetection(t *testing.T) {
	ctx := Context{
		UserMessage: "Мой номер 8 777 123 45 67, ИИН 990123456789",
		CollectedData: map[string]any{
			"iin":          "990123456789",
			"contact_info": "+7 777 123 45 67",
		},
	}

	// Same phone with a different prefix still matches on the last 10
	// digits.
	got := Detect("Принял, ваш номер +7 777 123 45 67, счёт выставлен на ИИН 990123456789.", ctx)
	for _, v := range got {
		switch v {
		case HallucinatedPhone, HallucinatedIIN, InvoiceWithoutIIN, HallucinatedInvoice:
			t.Errorf("grounded data flagged as %s", v)
		}
	}
}

func TestGreetingStateAllowsGreeting(t *testing.T) {
	got := Detect("Здравствуйте! Чем занимаетесь?", Context{State: "greeting", Template: "greeting"})
	if contains(got, MidConversationGreeting) {
		t.Error("greeting flagged in greeting state")
	}
}

func TestSanitizeCurrencyAndContraction(t *testing.T) {
	in := "Тариф «Старт» стоит 25 000 рублей в месяц."
	out := Sanitize(in, []string{CurrencyLocale}, Context{})
	if strings.Contains(out, "руб") || !strings.Contains(out, "₸") {
		t.Errorf("Sanitize = %q, want tenge", out)
	}
	if len([]rune(out)) > len([]rune(in)) {
		t.Errorf("sanitized output grew: %d > %d runes", len([]rune(out)), len([]rune(in)))
	}
}

func TestSanitizeDropsViolatingSentenceOnly(t *testing.T) {
	in := "Система ведёт заявки и сделки. Отправлю вам презентацию вечером. Какая задача главная?"
	out := Sanitize(in, []string{HallucinatedSendPromise}, Context{})
	if strings.Contains(out, "презентацию") {
		t.Errorf("promise survived: %q", out)
	}
	if !strings.Contains(out, "заявки") || !strings.Contains(out, "главная") {
		t.Errorf("clean sentences dropped: %q", out)
	}
}

func TestValidateCleanPassthrough(t *testing.T) {
	r := &fakeRepairer{}
	v := newValidator(r)

	res := v.Validate(context.Background(), "Расскажите, чем занимаетесь?", Context{State: "greeting", Template: "greeting"})
	if len(res.Violations) != 0 || res.RepairUsed || res.FallbackUsed {
		t.Fatalf("clean response mangled: %+v", res)
	}
	if r.calls != 0 {
		t.Error("repairer called for a clean response")
	}
}

func TestClientNameVocative(t *testing.T) {
	tests := []struct {
		name     string
		response string
		ctx      Context
		flagged  bool
	}{
		{"discourse opener", "Конечно, расскажу подробнее о возможностях.", Context{}, false},
		{"question opener", "Скажите, сколько человек в отделе продаж?", Context{}, false},
		{"grounded name", "Алексей, спасибо за номер!", Context{
			CollectedData: map[string]any{"contact_name": "Алексей"},
		}, false},
		{"invented name", "Гульнара, вернёмся к вашим задачам.", Context{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(tt.response, tt.ctx)
			has := false
			for _, v := range got {
				if v == HallucinatedClientName {
					has = true
				}
			}
			if has != tt.flagged {
				t.Fatalf("violations = %v, want name flag %v", got, tt.flagged)
			}
		})
	}
}

func TestValidateRepairPath(t *testing.T) {
	r := &fakeRepairer{out: "Продолжим про отчёты: какие метрики вам важны?"}
	v := newValidator(r)

	res := v.Validate(context.Background(), "Здравствуйте! Продолжим про отчёты.",
		Context{State: "spin_problem", Template: "spin_problem"})
	if !res.RepairUsed {
		t.Fatalf("repair not used: %+v", res)
	}
	if res.Response != r.out {
		t.Errorf("response = %q", res.Response)
	}
}

func TestHardHallucinationSkipsRepair(t *testing.T) {
	r := &fakeRepairer{out: "чистый ответ"}
	v := newValidator(r)

	v.Validate(context.Background(), "Как мы обсуждали ранее, тариф подходит. Какая задача для вас главная сейчас?", Context{})
	if r.calls != 0 {
		t.Error("repairer called for a hard hallucination")
	}
}

func TestFailedRepairFallsBackToSanitize(t *testing.T) {
	r := &fakeRepairer{err: errors.New("backend down")}
	v := newValidator(r)

	res := v.Validate(context.Background(), "Здравствуйте! Продолжим: какие отчёты вам нужны чаще всего?",
		Context{State: "spin_problem", Template: "spin_problem"})
	if res.RepairUsed {
		t.Error("failed repair marked as used")
	}
	if strings.HasPrefix(res.Response, "Здравствуйте") {
		t.Errorf("greeting survived sanitization: %q", res.Response)
	}
}

func TestValidateFallbackWhenNothingUsable(t *testing.T) {
	v := newValidator(nil)

	// The whole response is one hallucinated sentence.
	res := v.Validate(context.Background(), "Позвоните нам по номеру +7 701 555 44 33.",
		Context{State: "presentation"})
	if !res.FallbackUsed {
		t.Fatalf("fallback not used: %+v", res)
	}
	if res.Response != fallbackByState["presentation"] {
		t.Errorf("fallback = %q", res.Response)
	}
}

func TestFallbackFlagOffShipsSanitizedRemnant(t *testing.T) {
	flags := config.NewFlags(nil)
	flags.Set(config.FlagBoundaryFallback, false)
	v := NewValidator(flags, nil, nil)

	res := v.Validate(context.Background(), "Позвоните нам по номеру +7 701 555 44 33.",
		Context{State: "presentation"})
	if res.FallbackUsed {
		t.Error("fallback used with flag off")
	}
}

func TestFallbackRespectsRefusals(t *testing.T) {
	got := Fallback(Context{UserMessage: "Я не буду давать ИИН", State: "close"})
	if !strings.Contains(got, "не обязателен") {
		t.Errorf("refusal fallback = %q", got)
	}

	got = Fallback(Context{Intent: "question_pricing"})
	if !strings.Contains(got, "тариф") {
		t.Errorf("pricing fallback = %q", got)
	}
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
