// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tone

import (
	"context"
	"strings"
)

// llmToneConfidence is fixed: the model reports no calibrated
// confidence for a single-word classification.
const llmToneConfidence = 0.75

// Generator is the minimal LLM surface the tier-3 classifier needs.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GeneratorOpts) string
}

// GeneratorOpts mirrors llm.GenerateOpts without importing the package,
// keeping tone free of the llm dependency for tests.
type GeneratorOpts struct {
	State         string
	AllowFallback bool
}

const llmTonePrompt = `Определи тон сообщения клиента одним словом из списка:
neutral, positive, frustrated, skeptical, rushed, confused, interested.

Сообщение: "%s"

Ответь ровно одним словом.`

// classifyLLM maps the model's single-word reply to a tone. A partial
// match (reply containing a tone name) is accepted; anything else
// fails the tier.
func classifyLLM(reply string) (Tone, bool) {
	reply = strings.ToLower(strings.TrimSpace(reply))
	if reply == "" {
		return Neutral, false
	}
	all := []Tone{Neutral, Positive, Frustrated, Skeptical, Rushed, Confused, Interested}
	for _, t := range all {
		if reply == string(t) {
			return t, true
		}
	}
	for _, t := range all {
		if strings.Contains(reply, string(t)) {
			return t, true
		}
	}
	return Neutral, false
}
