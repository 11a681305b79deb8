// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

// fallbackTexts maps dialogue states to canned replies used when the
// backend is exhausted or the circuit is open. The map is closed: states
// not listed here get defaultFallbackText.
var fallbackTexts = map[string]string{
	"greeting":          "Здравствуйте! Я помогу подобрать решение для вашей компании. Расскажите, чем вы занимаетесь?",
	"spin_situation":    "Расскажите, пожалуйста, немного о вашей компании — сколько сотрудников и в какой отрасли работаете?",
	"spin_problem":      "Какие задачи сейчас отнимают у вашей команды больше всего времени?",
	"spin_implication":  "Как эти сложности влияют на работу компании в целом?",
	"spin_need_payoff":  "Что изменилось бы для вас, если бы эта задача решалась автоматически?",
	"presentation":      "Наше решение автоматизирует учёт и освобождает время команды. Хотите, расскажу подробнее?",
	"objection_handling": "Понимаю ваши сомнения. Давайте разберём, что именно вызывает вопросы?",
	"close":             "Готов предложить удобный следующий шаг — короткую демонстрацию. Когда вам удобно?",
	"contact_collection": "Оставьте, пожалуйста, контакт, и мы согласуем удобное время.",
}

const defaultFallbackText = "Извините, я не совсем понял. Могли бы вы переформулировать?"

// FallbackText returns the canned reply for a dialogue state.
func FallbackText(state string) string {
	if text, ok := fallbackTexts[state]; ok {
		return text
	}
	return defaultFallbackText
}
