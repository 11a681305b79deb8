// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package boundary is the final guardrail on drafted responses: it
// detects locale, hallucination, and leak violations, repairs or
// sanitizes them, and falls back to deterministic text when repair
// fails.
package boundary

import (
	"regexp"
	"strings"
)

// Violation types.
const (
	CurrencyLocale          = "currency_locale"
	OpeningPunctuation      = "opening_punctuation"
	KnownTypos              = "known_typos"
	HallucinatedIIN         = "hallucinated_iin"
	HallucinatedPhone       = "hallucinated_phone"
	HallucinatedSendPromise = "hallucinated_send_promise"
	HallucinatedPastAction  = "hallucinated_past_action"
	HallucinatedClientName  = "hallucinated_client_name"
	FalseCompanyPolicy      = "false_company_policy"
	OffTopicRecommendation  = "off_topic_recommendation"
	PolicyDisclosure        = "policy_disclosure"
	HallucinatedManagerTel  = "hallucinated_manager_contact"
	HallucinatedIINStatus   = "hallucinated_iin_status"
	HallucinatedInvoice     = "hallucinated_invoice_status"
	HallucinatedContact     = "hallucinated_contact_claim"
	MidConversationGreeting = "mid_conversation_greeting"
	UngroundedQuantClaim    = "ungrounded_quant_claim"
	UngroundedGuarantee     = "ungrounded_guarantee"
	UngroundedSocialProof   = "ungrounded_social_proof"
	MetaInstructionLeak     = "meta_instruction_leak"
	MetaNarrationLeak       = "meta_narration_leak"
	InvoiceWithoutIIN       = "invoice_without_iin"
	DemoWithoutContact      = "demo_without_contact"
	IINRefusalReask         = "iin_refusal_reask"
)

// hardHallucinations skip LLM repair: a model that invented them once
// is not asked to fix them.
var hardHallucinations = map[string]bool{
	HallucinatedIIN:        true,
	HallucinatedPhone:      true,
	HallucinatedPastAction: true,
	HallucinatedClientName: true,
	HallucinatedManagerTel: true,
	PolicyDisclosure:       true,
	HallucinatedContact:    true,
	MetaNarrationLeak:      true,
	OffTopicRecommendation: true,
	FalseCompanyPolicy:     true,
}

var (
	rubleRe          = regexp.MustCompile(`(?i)руб[а-яё]*|₽`)
	pricingDigitRe   = regexp.MustCompile(`\d`)
	openingPunctRe   = regexp.MustCompile(`^\s*[—–:]\s*`)
	afterSentenceRe  = regexp.MustCompile(`([.!?])\s*[—–:]\s+`)
	iinRe            = regexp.MustCompile(`\b\d{12}\b`)
	phoneRe          = regexp.MustCompile(`(?:\+7|8)[\s\-(]*\d{3}[\s\-)]*\d{3}[\s\-]*\d{2}[\s\-]*\d{2}`)
	digitsOnlyRe     = regexp.MustCompile(`\D`)
	sendPromiseRe    = regexp.MustCompile(`(?i)(?:отправ|выш|приш)л[юе][^.!?]{0,30}(?:файл|презентаци|документ|каталог|видео|скриншот)`)
	pastActionRe     = regexp.MustCompile(`(?i)(?:как мы (?:уже )?обсуждали|я (?:уже )?(?:отправил|выслал|настроил|создал)|мы (?:уже )?созванивались)`)
	managerPhoneRe   = regexp.MustCompile(`(?i)(?:номер|телефон)\s+(?:нашего\s+)?менеджера`)
	iinStatusRe      = regexp.MustCompile(`(?i)(?:ваш\s+)?ИИН\s+(?:уже\s+)?(?:сохран|записан|принят|получен)`)
	invoiceStatusRe  = regexp.MustCompile(`(?i)сч[её]т[а-яё]*\s+(?:уже\s+)?(?:выставлен|сформирован|отправлен)`)
	contactClaimRe   = regexp.MustCompile(`(?i)(?:записал|сохранил)\s+ваш[а-яё]*\s+(?:номер|контакт|телефон|почт)`)
	greetingOpenRe   = regexp.MustCompile(`(?i)^\s*(?:здравствуйте|добрый день|добрый вечер|доброе утро|привет)`)
	quantClaimRe     = regexp.MustCompile(`(?i)(?:на|до)\s+\d{1,3}\s*%|\d{1,3}\s*%\s+(?:рост|экономи|клиент)`)
	guaranteeRe      = regexp.MustCompile(`(?i)гарантиру[а-яё]+\s+(?:100\s*%|стопроцентн|результат)|абсолютно гарантированно`)
	socialProofRe    = regexp.MustCompile(`(?i)многие (?:наши )?клиенты|тысячи компаний|большинство клиентов`)
	metaInstructRe   = regexp.MustCompile(`(?i)(?:как (?:ИИ|языковая модель|ассистент ИИ)|согласно (?:моей )?инструкци|в моём промпте|system prompt)`)
	metaNarrationRe  = regexp.MustCompile(`(?i)^\s*[\[(*].{0,60}[\])*]\s*$|\*[а-яa-z ]{3,40}\*`)
	policyLeakRe     = regexp.MustCompile(`(?i)мне (?:запрещено|не разрешено|нельзя говорить)|мои правила (?:не позволяют|запрещают)`)
	offTopicRe       = regexp.MustCompile(`(?i)рекоменду[а-яё]+\s+(?:обратиться\s+к\s+(?:конкурент|другим поставщикам)|попробовать\s+(?:excel|гугл.таблиц))`)
	falsePolicyRe    = regexp.MustCompile(`(?i)(?:наша компания|мы)\s+(?:всегда|никогда не)\s+(?:делаем скидку 50|работаем бесплатно|возвращаем деньги без условий)`)
	invoiceOfferRe   = regexp.MustCompile(`(?i)(?:выстав|отправ)[а-яё]+\s+сч[её]т`)
	demoScheduleRe   = regexp.MustCompile(`(?i)заброниров\w+\s+(?:время|слот)|записал\s+вас\s+на\s+демо|демо\s+назначен`)
	iinAskRe         = regexp.MustCompile(`(?i)(?:укажите|назовите|пришлите|продиктуйте)[^.!?]{0,30}ИИН`)
	iinRefuseRe      = regexp.MustCompile(`(?i)(?:не (?:дам|буду давать|хочу указывать)|без)\s+ИИН`)
	// Case-sensitive on purpose: only a capitalized opener reads as a
	// name vocative, and RE2 (?i) would erase that distinction.
	clientNameVocRe = regexp.MustCompile(`^([А-ЯЁ][а-яё]+(?:\s[А-ЯЁ][а-яё]+)?),\s`)
)

// discourseOpeners are capitalized sentence starters that look like a
// name vocative but are ordinary discourse words.
var discourseOpeners = map[string]bool{
	"Конечно": true, "Хорошо": true, "Отлично": true, "Спасибо": true,
	"Да": true, "Нет": true, "Понимаю": true, "Понял": true, "Поняла": true,
	"Здравствуйте": true, "Привет": true, "Итак": true, "Кстати": true,
	"Смотрите": true, "Слушайте": true, "Скажите": true, "Расскажите": true,
	"Подскажите": true, "Например": true, "Возможно": true, "Согласен": true,
	"Согласна": true, "Верно": true, "Безусловно": true, "Разумеется": true,
	"Договорились": true, "Извините": true, "Простите": true, "Давайте": true,
}

// Context is everything detection compares the response against.
type Context struct {
	Intent         string
	State          string
	Template       string
	UserMessage    string
	RetrievedFacts string
	// TrustedText is deterministic template text already approved for
	// this turn; claims appearing in it are grounded by definition.
	TrustedText   string
	CollectedData map[string]any
	History       []string
}

// grounding returns the blob legitimate numbers and claims may come
// from.
func (c Context) grounding() string {
	var b strings.Builder
	b.WriteString(c.RetrievedFacts)
	b.WriteByte('\n')
	b.WriteString(c.TrustedText)
	b.WriteByte('\n')
	b.WriteString(c.UserMessage)
	for _, v := range c.CollectedData {
		if s, ok := v.(string); ok {
			b.WriteByte('\n')
			b.WriteString(s)
		}
	}
	return b.String()
}

func (c Context) pricingContext() bool {
	return c.Intent == "question_pricing" || c.Intent == "objection_price" ||
		strings.Contains(c.Template, "pricing")
}

// Detect runs every deterministic detector in a single pass and
// returns the violation types found, in catalogue order.
func Detect(response string, ctx Context) []string {
	var out []string
	add := func(v string) { out = append(out, v) }

	if ctx.pricingContext() || pricingDigitRe.MatchString(response) {
		if rubleRe.MatchString(response) {
			add(CurrencyLocale)
		}
	}
	if openingPunctRe.MatchString(response) || afterSentenceRe.MatchString(response) {
		add(OpeningPunctuation)
	}
	if hasKnownTypo(response) {
		add(KnownTypos)
	}

	grounding := ctx.grounding()
	if hasUngroundedIIN(response, grounding) {
		add(HallucinatedIIN)
	}
	if _, ok := hasUngroundedPhone(response, grounding); ok {
		if managerPhoneRe.MatchString(response) {
			add(HallucinatedManagerTel)
		} else {
			add(HallucinatedPhone)
		}
	}
	if sendPromiseRe.MatchString(response) {
		add(HallucinatedSendPromise)
	}
	if pastActionRe.MatchString(response) {
		add(HallucinatedPastAction)
	}
	if name := clientNameVocRe.FindStringSubmatch(response); name != nil && !discourseOpeners[name[1]] {
		if !strings.Contains(strings.ToLower(grounding), strings.ToLower(name[1])) {
			add(HallucinatedClientName)
		}
	}
	if falsePolicyRe.MatchString(response) {
		add(FalseCompanyPolicy)
	}
	if offTopicRe.MatchString(response) {
		add(OffTopicRecommendation)
	}
	if policyLeakRe.MatchString(response) {
		add(PolicyDisclosure)
	}
	if iinStatusRe.MatchString(response) && !collectedHas(ctx.CollectedData, "iin") {
		add(HallucinatedIINStatus)
	}
	if invoiceStatusRe.MatchString(response) && !collectedHas(ctx.CollectedData, "iin") {
		add(HallucinatedInvoice)
	}
	if contactClaimRe.MatchString(response) && !collectedHas(ctx.CollectedData, "contact_info") {
		add(HallucinatedContact)
	}
	if ctx.Template != "greeting" && ctx.State != "greeting" && greetingOpenRe.MatchString(response) {
		add(MidConversationGreeting)
	}
	if m := quantClaimRe.FindString(response); m != "" && !strings.Contains(grounding, strings.TrimSpace(m)) {
		add(UngroundedQuantClaim)
	}
	if guaranteeRe.MatchString(response) {
		add(UngroundedGuarantee)
	}
	if m := socialProofRe.FindString(response); m != "" && !strings.Contains(strings.ToLower(grounding), strings.ToLower(m)) {
		add(UngroundedSocialProof)
	}
	if metaInstructRe.MatchString(response) {
		add(MetaInstructionLeak)
	}
	if metaNarrationRe.MatchString(response) {
		add(MetaNarrationLeak)
	}
	if invoiceOfferRe.MatchString(response) && !collectedHas(ctx.CollectedData, "iin") {
		add(InvoiceWithoutIIN)
	}
	if demoScheduleRe.MatchString(response) && !collectedHas(ctx.CollectedData, "contact_info") {
		add(DemoWithoutContact)
	}
	if iinAskRe.MatchString(response) && userRefusedIIN(ctx.History) {
		add(IINRefusalReask)
	}

	return out
}

// HasHard reports whether any violation belongs to the hard set.
func HasHard(violations []string) bool {
	for _, v := range violations {
		if hardHallucinations[v] {
			return true
		}
	}
	return false
}

func collectedHas(data map[string]any, key string) bool {
	if data == nil {
		return false
	}
	v, ok := data[key]
	if !ok {
		return false
	}
	if s, isStr := v.(string); isStr {
		return s != ""
	}
	return true
}

func userRefusedIIN(history []string) bool {
	for _, msg := range history {
		if iinRefuseRe.MatchString(msg) {
			return true
		}
	}
	return false
}

// hasUngroundedIIN finds a 12-digit sequence absent from grounding.
func hasUngroundedIIN(response, grounding string) bool {
	groundDigits := digitsOnlyRe.ReplaceAllString(grounding, "")
	for _, m := range iinRe.FindAllString(response, -1) {
		if !strings.Contains(groundDigits, m) {
			return true
		}
	}
	return false
}

// hasUngroundedPhone compares phones digit-normalized with the
// last-10-digits heuristic.
func hasUngroundedPhone(response, grounding string) (string, bool) {
	groundDigits := digitsOnlyRe.ReplaceAllString(grounding, "")
	for _, m := range phoneRe.FindAllString(response, -1) {
		digits := digitsOnlyRe.ReplaceAllString(m, "")
		if len(digits) > 10 {
			digits = digits[len(digits)-10:]
		}
		if !strings.Contains(groundDigits, digits) {
			return m, true
		}
	}
	return "", false
}

// knownTypos is the closed replacement list.
var knownTypos = map[string]string{
	"вообщем":      "в общем",
	"зделать":      "сделать",
	"расчитать":    "рассчитать",
	"придти":       "прийти",
	"координально": "кардинально",
}

func hasKnownTypo(response string) bool {
	lower := strings.ToLower(response)
	for typo := range knownTypos {
		if strings.Contains(lower, typo) {
			return true
		}
	}
	return false
}
