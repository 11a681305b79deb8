// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fallback turns guard interventions into user-facing recovery
// responses, rotating templates per tier and tailoring option labels
// from conversation context.
package fallback

import (
	"log/slog"
	"sync"

	"github.com/AleutianAI/salespilot/services/salesbot/config"
	"github.com/AleutianAI/salespilot/services/salesbot/guard"
	"github.com/AleutianAI/salespilot/services/salesbot/intent"
)

// Fallback actions.
const (
	ActionRephrase     = "rephrase"
	ActionOfferOptions = "offer_options"
	ActionSkip         = "skip"
	ActionClose        = "close"
)

// Response is one fallback emission.
type Response struct {
	Message   string   `json:"message"`
	Options   []string `json:"options,omitempty"`
	Action    string   `json:"action"`
	NextState string   `json:"next_state,omitempty"`
}

// Context is what the handler may personalize from.
type Context struct {
	PainCategory string
	Competitor   string
	Frustration  int
}

var tierTemplates = map[string][]string{
	guard.Tier1: {
		"Кажется, я неудачно сформулировал вопрос. Попробую иначе: что в вашей текущей работе отнимает больше всего времени?",
		"Давайте зайду с другой стороны: какую задачу вы хотели бы решить в первую очередь?",
		"Возможно, я спросил слишком общо. Что для вас сейчас самое важное в автоматизации?",
	},
	guard.Tier2: {
		"Чтобы не ходить кругами, выберите, что вам ближе:",
		"Давайте упростим. Что из этого вам интереснее всего?",
		"Предлагаю сузить тему. С чего начнём?",
	},
	guard.Tier3: {
		"Вижу, текущая тема не очень заходит. Давайте перейду сразу к сути — покажу, что система даёт на практике.",
		"Не буду вас мучить вопросами. Коротко о главном, а детали обсудим по ходу.",
		"Давайте сменим формат: я кратко расскажу о главном, а вы остановите меня вопросом.",
	},
	guard.SoftClose: {
		"Похоже, сейчас не лучший момент для разговора. Оставлю контакты — возвращайтесь, когда будет удобно. Спасибо за время!",
		"Не буду больше отнимать ваше время. Если тема станет актуальной, напишите нам — продолжим с того же места. Хорошего дня!",
	},
}

var staticOptions = []string{
	"Узнать стоимость",
	"Посмотреть возможности",
	"Запросить демонстрацию",
}

// dynamicCTAStates are the states where option labels follow context.
var dynamicCTAStates = map[string]bool{
	"spin_problem":       true,
	"spin_implication":   true,
	"presentation":       true,
	"objection_handling": true,
}

// Stats mirrors the handler's counters for snapshots and diagnostics.
type Stats struct {
	Total       int            `json:"total"`
	ByTier      map[string]int `json:"by_tier"`
	ByState     map[string]int `json:"by_state"`
	LastTier    string         `json:"last_tier"`
	LastState   string         `json:"last_state"`
	DynamicCTA  map[string]int `json:"dynamic_cta"`
	UsedIndices map[string]int `json:"used_indices"`
}

// Handler serves per-tier fallback templates with rotation.
type Handler struct {
	mu sync.Mutex

	flags      *config.Flags
	thresholds config.FrustrationThresholds
	logger     *slog.Logger

	// used rotates through each tier's pool so consecutive fallbacks in
	// one tier never repeat the same template.
	used           map[string]int
	stats          Stats
	tier3NextState string
}

// New creates a handler. tier3NextState, when non-empty, is the state
// tier-3 skips forward to.
func New(flags *config.Flags, thresholds config.FrustrationThresholds, tier3NextState string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		flags:      flags,
		thresholds: thresholds,
		logger:     logger,
		used:       map[string]int{},
		stats: Stats{
			ByTier:     map[string]int{},
			ByState:    map[string]int{},
			DynamicCTA: map[string]int{},
		},
		tier3NextState: tier3NextState,
	}
}

// Get produces the fallback response for one intervention.
func (h *Handler) Get(tier, state string, ctx Context) Response {
	h.mu.Lock()
	defer h.mu.Unlock()

	pool := tierTemplates[tier]
	if len(pool) == 0 {
		pool = tierTemplates[guard.Tier1]
		tier = guard.Tier1
	}
	idx := h.used[tier] % len(pool)
	h.used[tier]++
	message := pool[idx]

	h.stats.Total++
	h.stats.ByTier[tier]++
	h.stats.ByState[state]++
	h.stats.LastTier = tier
	h.stats.LastState = state

	resp := Response{Message: message}
	switch tier {
	case guard.Tier1:
		resp.Action = ActionRephrase
	case guard.Tier2:
		resp.Action = ActionOfferOptions
		resp.Options = h.optionsLocked(state, ctx)
	case guard.Tier3:
		resp.Action = ActionSkip
		resp.NextState = h.tier3NextState
	case guard.SoftClose:
		resp.Action = ActionClose
	}

	h.logger.Info("fallback emitted", "tier", tier, "state", state, "action", resp.Action)
	return resp
}

// optionsLocked applies the dynamic CTA rule.
func (h *Handler) optionsLocked(state string, ctx Context) []string {
	dynamic := h.flags == nil || h.flags.Enabled(config.FlagDynamicCTA)
	if !dynamic || !dynamicCTAStates[state] {
		return append([]string(nil), staticOptions...)
	}

	var options []string
	if ctx.PainCategory != "" {
		options = append(options, "Как мы решаем: "+ctx.PainCategory)
		h.stats.DynamicCTA["pain:"+ctx.PainCategory]++
	}
	if ctx.Competitor != "" {
		options = append(options, "Чем мы отличаемся от "+ctx.Competitor)
		h.stats.DynamicCTA["competitor:"+ctx.Competitor]++
	}
	if len(options) == 0 {
		return append([]string(nil), staticOptions...)
	}
	options = append(options, "Узнать стоимость")
	return options
}

// ContextFrom extracts CTA context out of collected data.
func ContextFrom(collected map[string]any, frustration int) Context {
	ctx := Context{Frustration: frustration}
	if v, ok := collected[intent.FieldPainCategory].(string); ok {
		ctx.PainCategory = v
	}
	if v, ok := collected[intent.FieldCompetitor].(string); ok {
		ctx.Competitor = v
	}
	return ctx
}

// Snapshot returns a copy of the statistics plus rotation positions.
func (h *Handler) Snapshot() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := Stats{
		Total:       h.stats.Total,
		ByTier:      copyCounts(h.stats.ByTier),
		ByState:     copyCounts(h.stats.ByState),
		LastTier:    h.stats.LastTier,
		LastState:   h.stats.LastState,
		DynamicCTA:  copyCounts(h.stats.DynamicCTA),
		UsedIndices: copyCounts(h.used),
	}
	return out
}

// Restore reloads statistics and rotation positions from a snapshot.
func (h *Handler) Restore(st Stats) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats = Stats{
		Total:      st.Total,
		ByTier:     copyCounts(st.ByTier),
		ByState:    copyCounts(st.ByState),
		LastTier:   st.LastTier,
		LastState:  st.LastState,
		DynamicCTA: copyCounts(st.DynamicCTA),
	}
	if h.stats.ByTier == nil {
		h.stats.ByTier = map[string]int{}
	}
	if h.stats.ByState == nil {
		h.stats.ByState = map[string]int{}
	}
	if h.stats.DynamicCTA == nil {
		h.stats.DynamicCTA = map[string]int{}
	}
	h.used = copyCounts(st.UsedIndices)
	if h.used == nil {
		h.used = map[string]int{}
	}
}

func copyCounts(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
