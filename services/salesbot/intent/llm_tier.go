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
	"context"
	"fmt"
	"strings"
)

// StructuredGenerator is the LLM surface the tier-2 classifier needs.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, prompt string, out any) error
}

// llmReply is the strict schema the model must fill.
type llmReply struct {
	Intent        string           `json:"intent"`
	Confidence    float64          `json:"confidence"`
	ExtractedData map[string]any   `json:"extracted_data"`
	Alternatives  []llmAlternative `json:"alternatives"`
}

type llmAlternative struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

const llmIntentPrompt = `Ты — классификатор намерений в B2B-диалоге о продаже системы автоматизации.

Текущий этап диалога: %s
Последнее действие бота: %s
Сообщение клиента: "%s"

Допустимые намерения: greeting, info_provided, question_features,
question_pricing, question_general, demo_request, contact_provided,
agreement, rejection, callback_request, short_response, unclear,
objection_price, objection_competitor, objection_no_time,
objection_think, objection_no_need, objection_trust, objection_timing,
objection_complexity.

Ответь строго JSON-объектом:
{"intent": "...", "confidence": 0.0-1.0,
 "extracted_data": {}, "alternatives": [{"intent": "...", "confidence": 0.0}]}`

// classifyLLM is tier 2: structured classification. ok=false means the
// tier abstained (generation or parse failure, or an intent outside
// the closed domain).
func classifyLLM(ctx context.Context, gen StructuredGenerator, message string, c Context) (Result, bool) {
	prompt := fmt.Sprintf(llmIntentPrompt, c.CurrentState, c.LastAction, message)

	var reply llmReply
	if err := gen.GenerateStructured(ctx, prompt, &reply); err != nil {
		return Result{}, false
	}

	reply.Intent = strings.TrimSpace(reply.Intent)
	if !knownIntent(reply.Intent) {
		return Result{}, false
	}
	if reply.Confidence < 0 {
		reply.Confidence = 0
	}
	if reply.Confidence > 1 {
		reply.Confidence = 1
	}

	alts := make([]Alternative, 0, len(reply.Alternatives))
	for _, a := range reply.Alternatives {
		if knownIntent(a.Intent) && a.Intent != reply.Intent {
			alts = append(alts, Alternative{Intent: a.Intent, Confidence: a.Confidence})
		}
	}

	// The deterministic extractor always runs; model-provided data only
	// fills keys the extractor missed.
	extracted := ExtractData(message)
	for k, v := range reply.ExtractedData {
		if _, ok := extracted[k]; !ok && validField(k) {
			extracted[k] = v
		}
	}

	return Result{
		Intent:        reply.Intent,
		Confidence:    reply.Confidence,
		ExtractedData: extracted,
		Alternatives:  alts,
		MethodUsed:    MethodLLM,
	}, true
}

func knownIntent(intent string) bool {
	switch intent {
	case Greeting, InfoProvided, QuestionFeatures, QuestionPricing, QuestionGeneral,
		DemoRequest, ContactProvided, Agreement, Rejection, CallbackRequest,
		ShortResponse, Unclear:
		return true
	}
	return IsObjection(intent)
}

func validField(name string) bool {
	switch name {
	case FieldCompanyName, FieldCompanySize, FieldIndustry, FieldRole,
		FieldPainCategory, FieldPainPoints, FieldBudgetRange, FieldTimeline,
		FieldContactInfo, FieldContactName, FieldInterestedFeatures,
		FieldObjectionTypes, FieldCompetitor:
		return true
	}
	return false
}
