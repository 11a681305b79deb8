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

import "strings"

// Deterministic last-resort texts, keyed by what the turn was about.
// Used when repair fails or sanitization leaves nothing usable.

var fallbackByIntent = map[string]string{
	"question_pricing":  "Стоимость зависит от тарифа и числа пользователей. Могу рассказать подробнее про тарифы — что вам важнее: цена или функциональность?",
	"question_features": "Система закрывает учёт заявок, сделок и клиентов, есть отчёты и интеграции. Какая задача для вас сейчас главная?",
	"demo_request":      "Могу организовать короткую демонстрацию онлайн. Как с вами удобнее связаться?",
	"contact_provided":  "Спасибо, передам коллегам, они свяжутся с вами в рабочее время.",
	"rejection":         "Понимаю. Если вопрос станет актуальным — будем рады помочь. Хорошего дня!",
}

var fallbackByState = map[string]string{
	"greeting":           "Здравствуйте! Помогаю компаниям навести порядок в продажах. Расскажите, чем занимаетесь?",
	"spin_situation":     "Расскажите немного о компании: чем занимаетесь и сколько человек в команде?",
	"spin_problem":       "С какими сложностями в работе с клиентами сталкиваетесь чаще всего?",
	"spin_implication":   "Как эти сложности сказываются на продажах?",
	"spin_need_payoff":   "Если бы эта проблема решилась, что бы это дало вашему бизнесу?",
	"presentation":       "Могу показать, как система решает похожие задачи. Что для вас важнее всего?",
	"objection_handling": "Понимаю ваши сомнения. Давайте разберём, что именно смущает?",
	"close":              "Предлагаю следующий шаг — короткое демо. Как с вами удобнее связаться?",
	"contact_collection": "Оставьте, пожалуйста, телефон или почту, и мы договоримся о времени.",
}

const fallbackDefault = "Давайте продолжим: расскажите, что для вас сейчас самое важное в работе с клиентами?"

// Fallback picks deterministic replacement text for the turn. Refusal
// markers in the user message route to a respectful non-push variant.
func Fallback(ctx Context) string {
	if iinRefuseRe.MatchString(ctx.UserMessage) {
		return "Хорошо, ИИН не обязателен на этом этапе. Продолжим без него."
	}
	if strings.Contains(strings.ToLower(ctx.UserMessage), "не звоните") {
		return "Понял вас, звонить не будем. Если удобнее — можем продолжить в переписке."
	}
	if text, ok := fallbackByIntent[ctx.Intent]; ok {
		return text
	}
	if text, ok := fallbackByState[ctx.State]; ok {
		return text
	}
	return fallbackDefault
}
