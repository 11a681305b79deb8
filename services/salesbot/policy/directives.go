// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy

import (
	"strings"

	"github.com/AleutianAI/salespilot/services/salesbot/config"
	"github.com/AleutianAI/salespilot/services/salesbot/tone"
)

// ResponseDirectives is the compact generation guidance derived from
// the envelope. The generator prefers these over raw tone output.
type ResponseDirectives struct {
	ToneInstruction  string `json:"tone_instruction"`
	StyleInstruction string `json:"style_instruction"`
	MaxWords         int    `json:"max_words,omitempty"`
	ShouldApologize  bool   `json:"should_apologize"`
	ShouldOfferExit  bool   `json:"should_offer_exit"`

	// Instruction is the single prompt-ready line combining the above.
	Instruction string `json:"instruction"`
}

// Directives derives the generation guidance for one turn.
func Directives(env ContextEnvelope, thresholds config.FrustrationThresholds) ResponseDirectives {
	d := ResponseDirectives{}

	switch env.Tone.Tone {
	case tone.Frustrated:
		d.ToneInstruction = "Отвечай спокойно и по делу, без давления."
		d.ShouldApologize = thresholds.IsModerate(env.FrustrationLevel)
	case tone.Rushed:
		d.ToneInstruction = "Отвечай максимально коротко, только суть."
		d.MaxWords = 25
	case tone.Skeptical:
		d.ToneInstruction = "Подкрепляй каждое утверждение фактом, избегай громких обещаний."
	case tone.Confused:
		d.ToneInstruction = "Объясняй простыми словами, без терминов, по одному шагу."
	case tone.Positive, tone.Interested:
		d.ToneInstruction = "Поддерживай темп, предлагай следующий шаг."
	default:
		d.ToneInstruction = "Держи нейтральный деловой тон."
	}

	if env.Tone.Style == tone.StyleInformal {
		d.StyleInstruction = "Пиши живым разговорным языком, но на вы."
	} else {
		d.StyleInstruction = "Пиши деловым языком, обращение на вы."
	}

	if env.Tone.InterventionUrgency == tone.UrgencyHigh || env.Tone.InterventionUrgency == tone.UrgencyCritical {
		d.MaxWords = 25
	}
	d.ShouldOfferExit = env.Tone.ShouldOfferExit

	var parts []string
	parts = append(parts, d.ToneInstruction, d.StyleInstruction)
	if d.MaxWords > 0 {
		parts = append(parts, "Не больше 25 слов.")
	}
	if d.ShouldApologize {
		parts = append(parts, "Начни с короткого извинения.")
	}
	if d.ShouldOfferExit {
		parts = append(parts, "Предложи завершить разговор, если клиенту неудобно.")
	}
	d.Instruction = strings.Join(parts, " ")
	return d
}
