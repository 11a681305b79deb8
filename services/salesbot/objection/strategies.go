// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package objection

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"

	"github.com/AleutianAI/salespilot/services/salesbot/intent"
)

// Strategy frameworks. Rational objections get 4Ps (Postpone, Probe,
// Present, Propose); emotional ones get 3Fs (Feel, Felt, Found).
const (
	Framework4P = "4ps"
	Framework3F = "3fs"
)

// Strategy is the scripted handling for one objection type.
type Strategy struct {
	Framework    string `json:"framework"`
	Template     string `json:"template"`
	FollowUp     string `json:"follow_up"`
	MaxAttempts  int    `json:"max_attempts"`
	CanSoftClose bool   `json:"can_soft_close"`
}

// Result is the outcome of handling one objection turn.
type Result struct {
	Type            string    `json:"type"`
	Strategy        *Strategy `json:"strategy,omitempty"`
	AttemptNumber   int       `json:"attempt_number"`
	ShouldSoftClose bool      `json:"should_soft_close"`
	ResponseParts   []string  `json:"response_parts"`
}

var strategies = map[string]Strategy{
	intent.ObjectionPrice: {
		Framework:    Framework4P,
		Template:     "Понимаю, цена — важный вопрос. Давайте посчитаем: при автоматизации рутины {company} экономит в среднем 20 часов работы менеджера в месяц, и подписка окупается уже в первый квартал.",
		FollowUp:     "Какой бюджет на автоматизацию был бы для вас комфортным?",
		MaxAttempts:  2,
		CanSoftClose: true,
	},
	intent.ObjectionCompetitor: {
		Framework:    Framework4P,
		Template:     "Хорошо, что процесс у вас уже выстроен. Многие клиенты переходили к нам с других систем — чаще всего из-за скорости поддержки и открытого API. Миграцию данных мы берём на себя.",
		FollowUp:     "Чего вам не хватает в текущей системе?",
		MaxAttempts:  2,
		CanSoftClose: true,
	},
	intent.ObjectionNoNeed: {
		Framework:    Framework4P,
		Template:     "Возможно, сейчас процессы справляются. Обычно потребность проявляется на росте: заявки теряются, отчёты собираются вручную. Именно это мы закрываем в первую очередь.",
		FollowUp:     "Как вы сейчас отслеживаете, что ни одна заявка не потерялась?",
		MaxAttempts:  2,
		CanSoftClose: true,
	},
	intent.ObjectionNoTime: {
		Framework:    Framework4P,
		Template:     "Понимаю, времени всегда не хватает. Поэтому запуск мы сделали коротким: базовая настройка занимает один день, и заниматься ею будет наш специалист, а не ваша команда.",
		FollowUp:     "Если внедрение займёт один день без вашего участия, это снимает вопрос?",
		MaxAttempts:  2,
		CanSoftClose: true,
	},
	intent.ObjectionComplexity: {
		Framework:    Framework4P,
		Template:     "Интерфейс мы специально делали для людей без технического бэкграунда. Сотрудники осваивают основные сценарии за одну короткую сессию, а обучение входит в подписку.",
		FollowUp:     "Сколько человек у вас будет работать в системе?",
		MaxAttempts:  2,
		CanSoftClose: true,
	},
	intent.ObjectionTrust: {
		Framework:    Framework3F,
		Template:     "Понимаю ваши сомнения — незнакомому поставщику доверять сложно. Многие наши клиенты чувствовали то же самое, а потом убедились на бесплатном периоде: данные остаются у вас, договор прозрачный.",
		FollowUp:     "Что помогло бы вам убедиться — отзывы клиентов или тестовый доступ?",
		MaxAttempts:  2,
		CanSoftClose: true,
	},
	intent.ObjectionThink: {
		Framework:    Framework3F,
		Template:     "Конечно, решение стоит обдумать. Клиенты на вашем месте часто говорили так же, и им помогал короткий разбор под их процессы — после него решение принимается проще.",
		FollowUp:     "Какой информации вам не хватает, чтобы принять решение?",
		MaxAttempts:  2,
		CanSoftClose: true,
	},
	intent.ObjectionTiming: {
		Framework:    Framework3F,
		Template:     "Понимаю, момент кажется неподходящим. Так чувствовали себя и другие клиенты, но оказалось, что запуск в спокойный сезон как раз удобнее: команда успевает привыкнуть до пиковой нагрузки.",
		FollowUp:     "Когда у вас ближайший спокойный период, чтобы спланировать запуск?",
		MaxAttempts:  2,
		CanSoftClose: true,
	},
}

var softCloseTemplates = []string{
	"Похоже, сейчас не самое удачное время. Давайте я пришлю короткое резюме на почту, а вы вернётесь к нам, когда будет актуально?",
	"Не буду настаивать. Оставлю вам материалы и контакты — будем рады продолжить, когда появится потребность.",
	"Понимаю вас. Предлагаю поставить разговор на паузу: напишите нам, когда тема станет актуальной, и мы продолжим с того же места.",
}

// Handler applies strategies and tracks per-type attempt budgets for
// one conversation.
type Handler struct {
	mu       sync.Mutex
	attempts map[string]int

	pick   func(n int) int
	logger *slog.Logger
}

// NewHandler creates a per-conversation handler.
func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		attempts: map[string]int{},
		pick:     rand.Intn,
		logger:   logger,
	}
}

// Handle produces the response for a detected objection. The attempt
// counter for the type advances on every call; once the budget is
// spent the strategy is suppressed and a soft close is returned.
func (h *Handler) Handle(objType string, collectedData map[string]any) Result {
	strategy, ok := strategies[objType]
	if !ok {
		return Result{Type: objType, AttemptNumber: 1, ShouldSoftClose: true,
			ResponseParts: []string{h.softClose()}}
	}

	h.mu.Lock()
	h.attempts[objType]++
	attempt := h.attempts[objType]
	h.mu.Unlock()

	if attempt > strategy.MaxAttempts {
		h.logger.Info("objection budget exhausted",
			"type", objType, "attempt", attempt)
		return Result{
			Type:            objType,
			AttemptNumber:   attempt,
			ShouldSoftClose: strategy.CanSoftClose,
			ResponseParts:   []string{h.softClose()},
		}
	}

	return Result{
		Type:          objType,
		Strategy:      &strategy,
		AttemptNumber: attempt,
		ResponseParts: []string{
			personalize(strategy.Template, collectedData),
			strategy.FollowUp,
		},
	}
}

// Attempts reports the counter for one type.
func (h *Handler) Attempts(objType string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts[objType]
}

// RestoreAttempts reloads counters from a snapshot.
func (h *Handler) RestoreAttempts(counts map[string]int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts = map[string]int{}
	for k, v := range counts {
		h.attempts[k] = v
	}
}

// SnapshotAttempts exports the counters for persistence.
func (h *Handler) SnapshotAttempts() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]int, len(h.attempts))
	for k, v := range h.attempts {
		out[k] = v
	}
	return out
}

func (h *Handler) softClose() string {
	return softCloseTemplates[h.pick(len(softCloseTemplates))]
}

// personalize fills template placeholders from collected data.
func personalize(template string, data map[string]any) string {
	company := "ваша компания"
	if v, ok := data[intent.FieldCompanyName].(string); ok && v != "" {
		company = fmt.Sprintf("«%s»", v)
	}
	return strings.ReplaceAll(template, "{company}", company)
}
