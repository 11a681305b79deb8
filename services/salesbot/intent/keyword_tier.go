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
	"regexp"
	"strings"
)

// intentPattern binds an intent to its trigger patterns. The slice
// order is the resolution priority for multi-match messages.
type intentPattern struct {
	intent     string
	confidence float64
	patterns   []*regexp.Regexp
}

// RE2 \b is ASCII-only and never fires next to Cyrillic letters;
// whole-word patterns spell the boundary out instead.
var keywordPatterns = []intentPattern{
	{Rejection, 0.92, compile(
		`(?i)не интересно`,
		`(?i)нам не нужно`,
		`(?i)не надо`,
		`(?i)откажусь`,
		`(?i)прекратите`,
		`(?i)отстаньте`,
		`(?i)больше не звоните`,
		`(?i)^нет,? спасибо`,
	)},
	{DemoRequest, 0.92, compile(
		`(?i)(?:^|[^а-яё])демо(?:[^а-яё]|$)`,
		`(?i)демонстрац`,
		`(?i)покажите,? как`,
		`(?i)презентац`,
		`(?i)хочу посмотреть`,
	)},
	{CallbackRequest, 0.90, compile(
		`(?i)перезвоните`,
		`(?i)позвоните (?:позже|завтра|мне)`,
		`(?i)наберите меня`,
	)},
	{Greeting, 0.90, compile(
		`(?i)^здравствуйте`,
		`(?i)^добрый (?:день|вечер)`,
		`(?i)^доброе утро`,
		`(?i)^привет`,
	)},
	{QuestionPricing, 0.90, compile(
		`(?i)сколько (?:это )?стоит`,
		`(?i)(?:^|[^а-яё])цен[аыу](?:[^а-яё]|$)`,
		`(?i)стоимость`,
		`(?i)тариф`,
		`(?i)прайс`,
	)},
	{ObjectionPrice, 0.90, compile(
		`(?i)(?:^|[^а-яё])дорого(?:[^а-яё]|$)`,
		`(?i)дороговато`,
		`(?i)не потянем`,
		`(?i)нет (?:такого )?бюджета`,
	)},
	{ObjectionCompetitor, 0.90, compile(
		`(?i)уже (?:пользуемся|используем|работаем с)`,
		`(?i)у нас уже есть (?:система|решение|программа)`,
	)},
	{ObjectionNoTime, 0.88, compile(
		`(?i)нет времени (?:на это|этим заниматься)`,
		`(?i)некогда этим заниматься`,
	)},
	{ObjectionThink, 0.88, compile(
		`(?i)надо подумать`,
		`(?i)я подумаю`,
		`(?i)мы подумаем`,
		`(?i)взвесить`,
	)},
	{ObjectionTrust, 0.88, compile(
		`(?i)не доверяю`,
		`(?i)вас не знаем`,
		`(?i)первый раз (?:о вас )?слышу`,
	)},
	{ObjectionTiming, 0.86, compile(
		`(?i)не сейчас`,
		`(?i)давайте позже`,
		`(?i)после (?:нового года|отпуска|сезона)`,
	)},
	{ObjectionComplexity, 0.86, compile(
		`(?i)слишком сложно`,
		`(?i)сложно внедрять`,
		`(?i)долго настраивать`,
	)},
	{QuestionFeatures, 0.88, compile(
		`(?i)какие (?:функции|возможности)`,
		`(?i)что (?:умеет|может) (?:система|платформа|сервис)`,
		`(?i)есть ли интеграц`,
		`(?i)как (?:это )?работает`,
	)},
	{Agreement, 0.85, compile(
		`(?i)^да[,.!]?$`,
		`(?i)^давайте`,
		`(?i)^согласен`,
		`(?i)^согласна`,
		`(?i)^хорошо[,.!]?$`,
		`(?i)^ок[,.!]?$`,
		`(?i)подходит`,
		`(?i)договорились`,
	)},
}

var questionOpenerRe = regexp.MustCompile(`(?i)^(?:а |и )?(?:какие|какой|как|кто|что|когда|где|почему|зачем|сколько|можно ли)(?:[^а-яё]|$)`)

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// classifyKeyword is tier 1: ordered pattern matching plus extraction.
//
// Messages that match no pattern but yield extracted data classify as
// info_provided; very short remainders classify as short_response with
// low confidence so a later tier or refinement layer can take over.
func classifyKeyword(message string) Result {
	trimmed := strings.TrimSpace(message)
	extracted := ExtractData(trimmed)

	if trimmed == "" {
		return Result{Intent: Unclear, Confidence: 0.3, ExtractedData: extracted, MethodUsed: MethodKeyword}
	}

	var alternatives []Alternative
	best := Result{Intent: Unclear, Confidence: 0, MethodUsed: MethodKeyword}
	for _, ip := range keywordPatterns {
		for _, p := range ip.patterns {
			if p.MatchString(trimmed) {
				if best.Confidence == 0 {
					best.Intent = ip.intent
					best.Confidence = ip.confidence
				} else if best.Intent != ip.intent {
					alternatives = append(alternatives, Alternative{Intent: ip.intent, Confidence: ip.confidence - 0.05})
				}
				break
			}
		}
	}

	if best.Confidence > 0 {
		// Contact details override topical matches: a message carrying a
		// phone or email is a contact handoff first.
		if _, ok := extracted[FieldContactInfo]; ok && best.Intent != Rejection {
			alternatives = append(alternatives, Alternative{Intent: best.Intent, Confidence: best.Confidence})
			best.Intent = ContactProvided
			best.Confidence = 0.95
		}
		best.ExtractedData = extracted
		best.Alternatives = alternatives
		return best
	}

	if _, ok := extracted[FieldContactInfo]; ok {
		return Result{Intent: ContactProvided, Confidence: 0.95, ExtractedData: extracted, MethodUsed: MethodKeyword}
	}
	if len(extracted) > 0 {
		return Result{Intent: InfoProvided, Confidence: 0.85, ExtractedData: extracted, MethodUsed: MethodKeyword}
	}
	if questionOpenerRe.MatchString(trimmed) || strings.HasSuffix(trimmed, "?") {
		return Result{Intent: QuestionGeneral, Confidence: 0.75, ExtractedData: extracted, MethodUsed: MethodKeyword}
	}
	if len(strings.Fields(trimmed)) <= 3 {
		return Result{Intent: ShortResponse, Confidence: 0.55, ExtractedData: extracted, MethodUsed: MethodKeyword}
	}
	return Result{Intent: Unclear, Confidence: 0.3, ExtractedData: extracted, MethodUsed: MethodKeyword}
}
