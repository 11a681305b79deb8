// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package objection detects sales objections with a two-tier cascade
// and answers them with framework-based strategies that track per-type
// attempt budgets.
package objection

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/AleutianAI/salespilot/services/salesbot/intent"
)

// Detection methods.
const (
	MethodRegex    = "regex"
	MethodSemantic = "semantic"
)

// Regex tier confidence and semantic tier gates.
const (
	regexConfidence = 0.95
	semanticTop     = 0.75
	semanticGap     = 0.10
	semanticDamping = 0.85
	objectionPrefix = "objection_"
)

// Detection is one detector verdict.
type Detection struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

// detectPriority resolves multi-match messages. Price complaints
// dominate because they are the most actionable; complexity concerns
// are last because they co-occur with almost everything.
var detectPriority = []string{
	intent.ObjectionPrice,
	intent.ObjectionThink,
	intent.ObjectionNoNeed,
	intent.ObjectionCompetitor,
	intent.ObjectionNoTime,
	intent.ObjectionTrust,
	intent.ObjectionTiming,
	intent.ObjectionComplexity,
}

// RE2 \b is ASCII-only and never fires next to Cyrillic letters;
// whole-word patterns spell the boundary out instead.
var objectionPatterns = map[string][]*regexp.Regexp{
	intent.ObjectionPrice: compile(
		`(?i)(?:^|[^а-яё])дорого(?:[^а-яё]|$)`,
		`(?i)дороговато`,
		`(?i)не потянем`,
		`(?i)нет (?:такого )?бюджета`,
		`(?i)слишком больш(?:ие|ая) (?:деньги|сумма)`,
		`(?i)дешевле`,
	),
	intent.ObjectionThink: compile(
		`(?i)надо подумать`,
		`(?i)(?:я|мы) подума(?:ю|ем)`,
		`(?i)посовету(?:юсь|емся)`,
		`(?i)взвесить`,
	),
	intent.ObjectionNoNeed: compile(
		`(?i)нам (?:это )?не нужно`,
		`(?i)не вижу смысла`,
		`(?i)справляемся (?:и )?без`,
		`(?i)зачем нам это`,
	),
	intent.ObjectionCompetitor: compile(
		`(?i)уже (?:пользуемся|используем|работаем с)`,
		`(?i)у нас уже есть (?:система|решение|программа)`,
		`(?i)перешли на друг(?:ую|ое)`,
	),
	intent.ObjectionNoTime: compile(
		`(?i)нет времени`,
		`(?i)некогда`,
		`(?i)сейчас завал`,
		`(?i)не до (?:этого|внедрений)`,
	),
	intent.ObjectionTrust: compile(
		`(?i)не доверяю`,
		`(?i)вас не знаем`,
		`(?i)первый раз (?:о вас )?слыш(?:у|им)`,
		`(?i)почему (?:я|мы) должн(?:ы|а|ен) (?:вам )?верить`,
	),
	intent.ObjectionTiming: compile(
		`(?i)не сейчас`,
		`(?i)давайте позже`,
		`(?i)после (?:нового года|отпуска|сезона)`,
		`(?i)через пол ?года`,
		`(?i)не лучший момент`,
	),
	intent.ObjectionComplexity: compile(
		`(?i)слишком сложно`,
		`(?i)сложно внедрять`,
		`(?i)долго настраивать`,
		`(?i)не освоят`,
		`(?i)запутанно`,
	),
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// Detector runs the regex tier and, when it misses, the semantic tier
// borrowed from the intent classifier.
type Detector struct {
	semantic *intent.SemanticClassifier
	logger   *slog.Logger
}

// NewDetector builds the cascade. A nil semantic classifier disables
// tier 2.
func NewDetector(semantic *intent.SemanticClassifier, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{semantic: semantic, logger: logger}
}

// Detect classifies the message as an objection, or reports none.
func (d *Detector) Detect(ctx context.Context, message string) (Detection, bool) {
	if det, ok := detectRegex(message); ok {
		return det, true
	}
	return d.detectSemantic(ctx, message)
}

func detectRegex(message string) (Detection, bool) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return Detection{}, false
	}
	for _, typ := range detectPriority {
		for _, p := range objectionPatterns[typ] {
			if p.MatchString(trimmed) {
				return Detection{Type: typ, Confidence: regexConfidence, Method: MethodRegex}, true
			}
		}
	}
	return Detection{}, false
}

// detectSemantic scores the message against the intent example bank and
// keeps only objection-prefixed intents.
func (d *Detector) detectSemantic(ctx context.Context, message string) (Detection, bool) {
	if d.semantic == nil {
		return Detection{}, false
	}
	scores, err := d.semantic.Scores(ctx, message)
	if err != nil {
		d.logger.Warn("semantic objection tier failed", "error", err)
		return Detection{}, false
	}

	var objections []intent.Alternative
	bestOther := 0.0
	for _, s := range scores {
		if strings.HasPrefix(s.Intent, objectionPrefix) {
			objections = append(objections, s)
		} else if s.Confidence > bestOther {
			bestOther = s.Confidence
		}
	}
	if len(objections) == 0 || objections[0].Confidence < semanticTop {
		return Detection{}, false
	}
	if len(objections) > 1 && objections[0].Confidence-objections[1].Confidence < semanticGap {
		return Detection{}, false
	}

	// A non-objection intent scoring nearly as high makes the call
	// ambiguous; keep it but damp the confidence.
	confidence := objections[0].Confidence
	if confidence-bestOther < semanticGap {
		confidence *= semanticDamping
	}
	return Detection{Type: objections[0].Intent, Confidence: confidence, Method: MethodSemantic}, true
}
