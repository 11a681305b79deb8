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
	"fmt"
	"strconv"
	"strings"
)

// Disambiguation actions.
const (
	ActionExecute      = "execute"
	ActionConfirm      = "confirm"
	ActionDisambiguate = "disambiguate"
	ActionFallback     = "fallback"
)

// OptionOther is the escape hatch appended to every option list.
const OptionOther = "other"

// DisambigConfig holds the confidence bands and the attempt cap.
type DisambigConfig struct {
	HighConfidence   float64
	MediumConfidence float64
	LowConfidence    float64
	MinConfidence    float64
	GapThreshold     float64
	MaxAttempts      int
}

// DefaultDisambigConfig returns the production thresholds.
func DefaultDisambigConfig() DisambigConfig {
	return DisambigConfig{
		HighConfidence:   0.8,
		MediumConfidence: 0.6,
		LowConfidence:    0.4,
		MinConfidence:    0.3,
		GapThreshold:     0.15,
		MaxAttempts:      2,
	}
}

// Option is one candidate presented to the user.
type Option struct {
	Index  int    `json:"index"`
	Intent string `json:"intent"`
	Label  string `json:"label"`
}

// Decision is the routing verdict for one classification.
type Decision struct {
	Action   string   `json:"action"`
	Intent   string   `json:"intent"`
	Question string   `json:"question,omitempty"`
	Options  []Option `json:"options,omitempty"`
	Reason   string   `json:"reason"`
}

// DisambigEngine applies the confidence x gap matrix and resolves the
// user's answer on the following turn.
type DisambigEngine struct {
	cfg DisambigConfig
}

// NewDisambigEngine builds the engine; zero-value fields fall back to
// defaults.
func NewDisambigEngine(cfg DisambigConfig) *DisambigEngine {
	def := DefaultDisambigConfig()
	if cfg.HighConfidence == 0 {
		cfg.HighConfidence = def.HighConfidence
	}
	if cfg.MediumConfidence == 0 {
		cfg.MediumConfidence = def.MediumConfidence
	}
	if cfg.LowConfidence == 0 {
		cfg.LowConfidence = def.LowConfidence
	}
	if cfg.MinConfidence == 0 {
		cfg.MinConfidence = def.MinConfidence
	}
	if cfg.GapThreshold == 0 {
		cfg.GapThreshold = def.GapThreshold
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return &DisambigEngine{cfg: cfg}
}

// Decide maps (confidence, gap-to-runner-up) onto an action.
func (e *DisambigEngine) Decide(res Result) Decision {
	gap := 1.0
	if len(res.Alternatives) > 0 {
		gap = res.Confidence - res.Alternatives[0].Confidence
	}

	switch {
	case res.Confidence >= e.cfg.HighConfidence && gap >= e.cfg.GapThreshold:
		return Decision{Action: ActionExecute, Intent: res.Intent, Reason: "high confidence, clear gap"}
	case res.Confidence >= e.cfg.HighConfidence:
		return e.confirm(res, "high confidence, narrow gap")
	case res.Confidence >= e.cfg.MediumConfidence && gap >= e.cfg.GapThreshold:
		return Decision{Action: ActionExecute, Intent: res.Intent, Reason: "medium confidence, clear gap"}
	case res.Confidence >= e.cfg.MediumConfidence:
		return e.confirm(res, "medium confidence, narrow gap")
	case res.Confidence >= e.cfg.LowConfidence:
		return e.disambiguate(res)
	default:
		return Decision{Action: ActionFallback, Intent: Unclear, Reason: "confidence below minimum"}
	}
}

func (e *DisambigEngine) confirm(res Result, reason string) Decision {
	label := Labels[res.Intent]
	if label == "" {
		label = res.Intent
	}
	return Decision{
		Action:   ActionConfirm,
		Intent:   res.Intent,
		Question: fmt.Sprintf("Правильно понимаю: %s?", label),
		Reason:   reason,
	}
}

func (e *DisambigEngine) disambiguate(res Result) Decision {
	options := []Option{{Index: 1, Intent: res.Intent, Label: labelFor(res.Intent)}}
	for _, alt := range res.Alternatives {
		if len(options) >= 3 {
			break
		}
		if alt.Intent == res.Intent {
			continue
		}
		options = append(options, Option{Index: len(options) + 1, Intent: alt.Intent, Label: labelFor(alt.Intent)})
	}
	options = append(options, Option{Index: len(options) + 1, Intent: OptionOther, Label: "Другое"})

	var b strings.Builder
	b.WriteString("Уточните, пожалуйста, что вы имели в виду:\n")
	for _, opt := range options {
		fmt.Fprintf(&b, "%d. %s\n", opt.Index, opt.Label)
	}

	return Decision{
		Action:   ActionDisambiguate,
		Intent:   res.Intent,
		Question: strings.TrimRight(b.String(), "\n"),
		Options:  options,
		Reason:   "low confidence, presenting candidates",
	}
}

// ordinalWords maps spelled-out Russian ordinals to option indices.
var ordinalWords = map[string]int{
	"первое": 1, "первый": 1, "первая": 1,
	"второе": 2, "второй": 2, "вторая": 2,
	"третье": 3, "третий": 3, "третья": 3,
	"четвертое": 4, "четвёртое": 4, "четвертый": 4, "четвёртый": 4,
}

// Resolve matches the user's reply against the presented options.
//
// Critical intents in the fresh classification interrupt the
// sub-dialogue. Otherwise matching tries option index, spelled-out
// ordinal, exact label, then free-text reclassification. attempt is
// 1-based; past MaxAttempts the resolution is unclear and the
// sub-dialogue ends.
func (e *DisambigEngine) Resolve(reply string, options []Option, fresh Result, attempt int) (string, bool) {
	if IsCritical(fresh.Intent) {
		return fresh.Intent, true
	}
	if attempt > e.cfg.MaxAttempts {
		return Unclear, true
	}

	trimmed := strings.ToLower(strings.TrimSpace(reply))
	trimmed = strings.TrimRight(trimmed, ".!)")

	if n, err := strconv.Atoi(trimmed); err == nil {
		if opt, ok := optionByIndex(options, n); ok {
			return resolveOption(opt)
		}
	}
	if n, ok := ordinalWords[trimmed]; ok {
		if opt, ok := optionByIndex(options, n); ok {
			return resolveOption(opt)
		}
	}
	for _, opt := range options {
		if strings.EqualFold(strings.TrimSpace(opt.Label), strings.TrimSpace(reply)) {
			return resolveOption(opt)
		}
	}

	// Free text: accept the fresh classification when it lands on one
	// of the presented candidates with usable confidence.
	if fresh.Confidence >= e.cfg.MediumConfidence {
		for _, opt := range options {
			if opt.Intent == fresh.Intent {
				return fresh.Intent, true
			}
		}
	}

	if attempt >= e.cfg.MaxAttempts {
		return Unclear, true
	}
	return "", false
}

// MaxAttempts exposes the attempt cap for the state machine.
func (e *DisambigEngine) MaxAttempts() int {
	return e.cfg.MaxAttempts
}

func optionByIndex(options []Option, n int) (Option, bool) {
	for _, opt := range options {
		if opt.Index == n {
			return opt, true
		}
	}
	return Option{}, false
}

func resolveOption(opt Option) (string, bool) {
	if opt.Intent == OptionOther {
		return Unclear, true
	}
	return opt.Intent, true
}

func labelFor(intent string) string {
	if label, ok := Labels[intent]; ok {
		return label
	}
	return intent
}
