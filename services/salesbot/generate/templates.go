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
	"regexp"

	"github.com/AleutianAI/salespilot/services/salesbot/flow"
)

// Template keys beyond the raw state-machine actions.
const (
	TemplateCompareCompetitor = "compare_with_competitor"
	TemplateShortenConfirm    = "shorten_and_confirm"
)

// reasonCodeTemplates swaps the selected template when policy attached
// the matching reason code.
var reasonCodeTemplates = map[string]string{
	"frustrated_pricing_direct": flow.ActionAnswerPricing,
	"competitor_comparison":     TemplateCompareCompetitor,
	"rushed_shorten":            TemplateShortenConfirm,
}

// promptTemplates holds the per-template task instruction. The rest of
// the prompt (facts, directives, history, missing data) is assembled
// around it.
var promptTemplates = map[string]string{
	flow.ActionContinueGoal: "Продолжи диалог, двигаясь к цели этапа. Задай один уместный вопрос или развей тему клиента.",
	flow.ActionAskMissing:   "Мягко спроси недостающие данные, не превращая диалог в анкету. Один вопрос за раз.",
	flow.ActionAnswerPricing: "Клиент спрашивает о цене. Ответь прямо, с конкретными цифрами из фактов, без ухода от вопроса. " +
		"После цифр — один уточняющий вопрос о задачах клиента.",
	flow.ActionPresent: "Представь решение через пользу для клиента, опираясь на собранные данные о его болях. " +
		"Не перечисляй функции списком.",
	flow.ActionCollectContact:  "Предложи следующий шаг и попроси контакт для связи. Не дави, дай выбор канала.",
	flow.ActionSoftClose:       "Вежливо заверши разговор, оставив дверь открытой. Поблагодари за время, не извиняйся чрезмерно.",
	flow.ActionClarifyIntent:   "Уточни, что именно имел в виду клиент. Сформулируй варианты коротко.",
	flow.ActionGoBack:          "Вернись к предыдущей теме, которую клиент хочет обсудить ещё раз. Подхвати её без повторного приветствия.",
	flow.ActionHandleObjection: "Отработай возражение клиента: признай его, приведи аргумент из фактов и задай встречный вопрос.",
	TemplateCompareCompetitor: "Клиент сравнивает нас с конкурентом. Сравни честно по критериям, важным для клиента, " +
		"без принижения конкурента. Заверши вопросом о приоритетах клиента.",
	TemplateShortenConfirm: "Клиент торопится. Ответь в одно-два коротких предложения и подтверди договорённость.",
}

// infoSeekingTemplates trigger KB retrieval before prompt assembly.
var infoSeekingTemplates = map[string]bool{
	flow.ActionAnswerPricing:   true,
	flow.ActionPresent:         true,
	flow.ActionHandleObjection: true,
	TemplateCompareCompetitor:  true,
}

// greetingPrefixRe strips a leading salutation from retrieved facts so
// injected text cannot re-greet mid-conversation.
var greetingPrefixRe = regexp.MustCompile(`(?i)^\s*(?:здравствуйте|добрый день|добрый вечер|доброе утро|привет)[!,.]?\s*`)

// templateKey maps the machine action plus policy reason codes to the
// final template. First matching reason code wins.
func templateKey(action string, reasonCodes []string) string {
	for _, code := range reasonCodes {
		if tpl, ok := reasonCodeTemplates[code]; ok {
			return tpl
		}
	}
	if _, ok := promptTemplates[action]; ok {
		return action
	}
	return flow.ActionContinueGoal
}
