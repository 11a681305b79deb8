// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package intent classifies user messages with a cascaded
// keyword -> LLM -> semantic strategy, refines the result through an
// ordered pipeline, and drives disambiguation when confidence is too
// low to act.
package intent

// The closed intent domain.
const (
	Greeting         = "greeting"
	InfoProvided     = "info_provided"
	QuestionFeatures = "question_features"
	QuestionPricing  = "question_pricing"
	QuestionGeneral  = "question_general"
	DemoRequest      = "demo_request"
	ContactProvided  = "contact_provided"
	Agreement        = "agreement"
	Rejection        = "rejection"
	CallbackRequest  = "callback_request"
	ShortResponse    = "short_response"
	Unclear          = "unclear"

	ObjectionPrice      = "objection_price"
	ObjectionCompetitor = "objection_competitor"
	ObjectionNoTime     = "objection_no_time"
	ObjectionThink      = "objection_think"
	ObjectionNoNeed     = "objection_no_need"
	ObjectionTrust      = "objection_trust"
	ObjectionTiming     = "objection_timing"
	ObjectionComplexity = "objection_complexity"
)

// IsObjection reports whether the intent is an objection.
func IsObjection(intent string) bool {
	switch intent {
	case ObjectionPrice, ObjectionCompetitor, ObjectionNoTime, ObjectionThink,
		ObjectionNoNeed, ObjectionTrust, ObjectionTiming, ObjectionComplexity:
		return true
	}
	return false
}

// IsCritical reports whether the intent interrupts disambiguation.
func IsCritical(intent string) bool {
	switch intent {
	case ContactProvided, Rejection, DemoRequest:
		return true
	}
	return false
}

// IsEngagement reports whether the intent signals the user is still
// participating (any classifiable intent other than unclear).
func IsEngagement(intent string) bool {
	return intent != "" && intent != Unclear
}

// Labels maps intents to the user-facing option labels used by the
// disambiguation engine. The mapping is closed; intents without a label
// are never offered as options.
var Labels = map[string]string{
	QuestionPricing:  "Узнать стоимость",
	QuestionFeatures: "Узнать о возможностях",
	QuestionGeneral:  "Задать вопрос",
	DemoRequest:      "Посмотреть демонстрацию",
	InfoProvided:     "Рассказать о компании",
	Agreement:        "Продолжить",
	CallbackRequest:  "Запросить звонок",
	ObjectionPrice:   "Обсудить цену",
	ObjectionThink:   "Взять паузу подумать",
}

// Alternative is a runner-up classification.
type Alternative struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Result is the classifier output consumed by the state machine.
type Result struct {
	Intent        string         `json:"intent"`
	Confidence    float64        `json:"confidence"`
	ExtractedData map[string]any `json:"extracted_data"`
	Alternatives  []Alternative  `json:"alternatives"`
	MethodUsed    string         `json:"method_used"`

	// Refinements records the decision of every refinement layer for
	// the per-turn trace.
	Refinements []RefinementDecision `json:"refinements,omitempty"`
}

// RefinementDecision is one refinement layer's verdict.
type RefinementDecision struct {
	Layer     string `json:"layer"`
	Applied   bool   `json:"applied"`
	Reason    string `json:"reason"`
	OldIntent string `json:"old_intent,omitempty"`
	NewIntent string `json:"new_intent,omitempty"`
}

// WindowSummary carries the context-window aggregates the classifier
// and refinement layers read.
type WindowSummary struct {
	IntentHistory    []string `json:"intent_history"`
	ObjectionCount   int      `json:"objection_count"`
	PositiveCount    int      `json:"positive_count"`
	QuestionCount    int      `json:"question_count"`
	UnclearCount     int      `json:"unclear_count"`
	Oscillating      bool     `json:"oscillating"`
	Stuck            bool     `json:"stuck"`
	RepeatedQuestion bool     `json:"repeated_question"`
	ConfidenceTrend  float64  `json:"confidence_trend"`
}

// Context is the read-only classification context.
type Context struct {
	CurrentState     string
	CurrentPhase     string
	CollectedData    map[string]any
	MissingData      []string
	LastAction       string
	LastIntent       string
	TurnCount        int
	InDisambiguation bool
	Summary          WindowSummary
}

// classification method names.
const (
	MethodKeyword  = "keyword"
	MethodLLM      = "llm"
	MethodSemantic = "semantic"
)
