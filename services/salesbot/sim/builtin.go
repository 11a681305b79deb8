// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sim

import (
	"github.com/AleutianAI/salespilot/services/salesbot/bot"
	"github.com/AleutianAI/salespilot/services/salesbot/flow"
	"github.com/AleutianAI/salespilot/services/salesbot/intent"
)

// Builtin returns the named built-in scenario, or false.
func Builtin(name string) (Scenario, bool) {
	for _, sc := range BuiltinScenarios() {
		if sc.Name == name {
			return sc, true
		}
	}
	return Scenario{}, false
}

// BuiltinScenarios lists the shipped regression personas.
func BuiltinScenarios() []Scenario {
	return []Scenario{
		priceObjectionPersona(),
		contactFastPath(),
		factProbingPersona(),
	}
}

// priceObjectionPersona exhausts the price-objection budget and
// expects the graceful exit.
func priceObjectionPersona() Scenario {
	return Scenario{
		Name:        "price_objection_budget",
		Description: "три ценовых возражения подряд приводят к мягкому закрытию",
		Steps: []Step{
			{Message: "Здравствуйте", ExpectIntent: intent.Greeting, ExpectState: flow.StateSpinSituation},
			{Message: "Это дорого для нас", ExpectIntent: intent.ObjectionPrice, ExpectState: flow.StateObjectionHandling},
			{Message: "Дороговато выходит", ExpectIntent: intent.ObjectionPrice},
			{Message: "Нет бюджета на это", ExpectOutcome: bot.OutcomeSoftClose, ExpectState: flow.StateClose},
		},
	}
}

// contactFastPath checks that a volunteered phone number reaches the
// terminal success state immediately.
func contactFastPath() Scenario {
	return Scenario{
		Name:        "contact_fast_path",
		Description: "клиент сразу оставляет телефон",
		Steps: []Step{
			{Message: "Здравствуйте", ExpectState: flow.StateSpinSituation},
			{
				Message:       "Мой телефон +7 777 123 45 67",
				ExpectIntent:  intent.ContactProvided,
				ExpectState:   flow.StateContactCollection,
				ExpectOutcome: bot.OutcomeSuccess,
			},
		},
	}
}

// factProbingPersona is the long-dialogue memory check: facts given in
// early turns must resurface when probed later. Meaningful only
// against a real model backend; expectations on probe turns are
// keyword-based.
func factProbingPersona() Scenario {
	return Scenario{
		Name:        "fact_probing_18",
		Description: "18 ходов: факты из начала диалога всплывают при проверках",
		Steps: []Step{
			{Message: "Здравствуйте! Меня зовут Алексей Петрович, компания НефтеТрансСервис"},
			{Message: "У нас работает 450 человек"},
			{Message: "Главная беда — ручной учёт заявок в Excel"},
			{Message: "Да, это отнимает кучу времени"},
			{Message: "Бюджет примерно 2 миллиона тенге в год"},
			{Message: "Расскажите подробнее про вашу систему"},
			{Message: "А как с интеграциями?"},
			{Message: "Напомните, как называется моя компания?", ExpectAny: []string{"НефтеТрансСервис"}},
			{Message: "Сколько у нас сотрудников, я говорил?", ExpectAny: []string{"450"}},
			{Message: "Какую проблему мы обсуждали?", ExpectAny: []string{"Excel", "учёт"}},
			{Message: "А бюджет я называл?", ExpectAny: []string{"2", "миллион"}},
			{Message: "Как вы ко мне обращаетесь?", ExpectAny: []string{"Алексей"}},
			{Message: "Что ваша система даст именно нам?", ExpectAny: []string{"Excel", "учёт", "заяв"}},
			{Message: "Хорошо, допустим"},
			{Message: "Какие тарифы есть?"},
			{Message: "Это вписывается в наш бюджет?", ExpectAny: []string{"миллион", "тенге", "₸"}},
			{Message: "Повторите, о какой компании речь?", ExpectAny: []string{"НефтеТрансСервис"}},
			{Message: "Ладно, пришлите детали. Мой телефон +7 701 555 44 33", ExpectIntent: intent.ContactProvided},
		},
	}
}
