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
	"regexp"
	"strings"

	"github.com/AleutianAI/salespilot/services/salesbot/config"
)

// Refinement layer names, in published order. The order is part of the
// contract: layers see the rewrites of earlier layers.
const (
	LayerClassification = "classification_refinement"
	LayerComposite      = "composite_refinement"
	LayerObjection      = "objection_refinement"
	LayerCalibration    = "confidence_calibration"
	LayerFirstContact   = "first_contact_refinement"
	LayerDataAware      = "data_aware_refinement"
)

// objectionCeiling: objections classified above it are trusted as-is
// and the question rewrite never fires.
const objectionCeiling = 0.90

var interrogationRe = regexp.MustCompile(`(?i)(?:\?|^(?:а|но)?\s*(?:сколько|как|что|какие|какой|почему|зачем|когда|можно ли)\b)`)

var affirmativeShortRe = regexp.MustCompile(`(?i)^(?:да|ага|угу|конечно|давайте|хорошо|ок|окей)[,.!]?$`)

// compositeMarkers split a message into clauses that may carry a
// second, more actionable intent than the clause that matched first.
var compositeSplitRe = regexp.MustCompile(`(?i)\s+(?:но|однако|кстати|и ещё|и еще|а также)\s+|[.;!]\s+`)

// refine runs the pipeline over the raw cascade result. Every layer
// appends its decision, applied or not, so the trace shows the whole
// pipeline.
func (c *Classifier) refine(res Result, message string, cctx Context) Result {
	if !c.flags.Enabled(config.FlagRefinementPipeline) {
		return res
	}
	if res.ExtractedData == nil {
		res.ExtractedData = map[string]any{}
	}

	res = c.refineClassification(res, message, cctx)
	res = c.refineComposite(res, message, cctx)
	res = c.refineObjection(res, message)
	res = c.recordCalibration(res)
	res = c.refineFirstContact(res, message, cctx)
	res = c.refineDataAware(res, message, cctx)
	return res
}

func record(res Result, layer string, applied bool, reason, oldIntent, newIntent string) Result {
	res.Refinements = append(res.Refinements, RefinementDecision{
		Layer:     layer,
		Applied:   applied,
		Reason:    reason,
		OldIntent: oldIntent,
		NewIntent: newIntent,
	})
	return res
}

// refineClassification fixes the two cheapest misclassifications:
// unclear messages that actually carried data, and short responses
// whose meaning the dialogue context pins down.
func (c *Classifier) refineClassification(res Result, message string, cctx Context) Result {
	if res.Intent == Unclear && len(res.ExtractedData) > 0 {
		old := res.Intent
		res.Intent = InfoProvided
		if res.Confidence < 0.70 {
			res.Confidence = 0.70
		}
		return record(res, LayerClassification, true, "non-empty extraction promotes unclear to info_provided", old, res.Intent)
	}

	if res.Intent == ShortResponse && affirmativeShortRe.MatchString(strings.TrimSpace(message)) {
		old := res.Intent
		res.Intent = Agreement
		if res.Confidence < 0.75 {
			res.Confidence = 0.75
		}
		return record(res, LayerClassification, true, "affirmative short response reads as agreement", old, res.Intent)
	}

	if res.Intent == ShortResponse && cctx.LastIntent != "" && res.Confidence < 0.70 {
		res.Confidence += 0.10
		return record(res, LayerClassification, true, "short response confidence lifted by dialogue context", res.Intent, res.Intent)
	}

	return record(res, LayerClassification, false, "no rewrite conditions met", "", "")
}

// refineComposite looks for a second clause carrying a more actionable
// intent than the primary. "Дорого, но покажите демо" should route to
// the demo, not the price objection.
func (c *Classifier) refineComposite(res Result, message string, cctx Context) Result {
	clauses := compositeSplitRe.Split(message, -1)
	if len(clauses) < 2 {
		return record(res, LayerComposite, false, "single-clause message", "", "")
	}

	for _, clause := range clauses[1:] {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		secondary := classifyKeyword(clause)
		if secondary.Confidence < keywordFloor || secondary.Intent == res.Intent {
			continue
		}
		if actionPriority(secondary.Intent) > actionPriority(res.Intent) {
			old := res.Intent
			res.Alternatives = append([]Alternative{{Intent: old, Confidence: res.Confidence}}, res.Alternatives...)
			res.Intent = secondary.Intent
			res.Confidence = secondary.Confidence
			res = mergeExtraction(res, secondary)
			return record(res, LayerComposite, true, "secondary clause carries a more actionable intent", old, res.Intent)
		}
	}
	return record(res, LayerComposite, false, "no actionable secondary clause", "", "")
}

// actionPriority orders intents by how urgently the dialogue must act
// on them when they co-occur in one message.
func actionPriority(intent string) int {
	switch {
	case intent == ContactProvided:
		return 6
	case intent == Rejection:
		return 5
	case intent == DemoRequest:
		return 4
	case intent == CallbackRequest:
		return 3
	case intent == QuestionPricing || intent == QuestionFeatures:
		return 2
	case IsObjection(intent):
		return 1
	}
	return 0
}

// refineObjection rewrites borderline objections that are really
// questions. "Дорого, а сколько именно?" wants a price answer, not the
// objection script.
func (c *Classifier) refineObjection(res Result, message string) Result {
	if !IsObjection(res.Intent) {
		return record(res, LayerObjection, false, "not an objection", "", "")
	}
	if res.Confidence >= objectionCeiling {
		return record(res, LayerObjection, false, "objection confidence above rewrite ceiling", "", "")
	}
	if !interrogationRe.MatchString(message) {
		return record(res, LayerObjection, false, "no interrogation markers", "", "")
	}

	old := res.Intent
	if old == ObjectionPrice {
		res.Intent = QuestionPricing
	} else {
		res.Intent = QuestionGeneral
	}
	if res.Confidence < 0.70 {
		res.Confidence = 0.70
	}
	return record(res, LayerObjection, true, "interrogative borderline objection rewritten to question", old, res.Intent)
}

// recordCalibration puts the calibration decision in its published
// pipeline slot; the remap itself happens before tier thresholding.
func (c *Classifier) recordCalibration(res Result) Result {
	if res.MethodUsed == MethodLLM && c.flags.Enabled(config.FlagConfidenceCalib) {
		return record(res, LayerCalibration, true, "llm self-reported confidence remapped pre-threshold", res.Intent, res.Intent)
	}
	return record(res, LayerCalibration, false, "no llm confidence to calibrate", "", "")
}

// refineFirstContact handles the opening turn, where "Добрый день,
// интересует ваша система" is a greeting plus engagement, not unclear.
func (c *Classifier) refineFirstContact(res Result, message string, cctx Context) Result {
	if cctx.TurnCount > 1 {
		return record(res, LayerFirstContact, false, "not the first contact", "", "")
	}
	if res.Intent != Unclear && res.Intent != ShortResponse {
		return record(res, LayerFirstContact, false, "first turn already classified", "", "")
	}

	old := res.Intent
	res.Intent = Greeting
	if res.Confidence < 0.60 {
		res.Confidence = 0.60
	}
	return record(res, LayerFirstContact, true, "ambiguous opening turn treated as greeting", old, res.Intent)
}

// refineDataAware uses what the bot just asked for. A low-confidence
// reply that supplies a missing field is an answer, whatever the
// surface form looked like.
func (c *Classifier) refineDataAware(res Result, message string, cctx Context) Result {
	if res.Intent == InfoProvided || res.Intent == ContactProvided || IsCritical(res.Intent) {
		return record(res, LayerDataAware, false, "intent already data-bearing", "", "")
	}
	if len(cctx.MissingData) == 0 || len(res.ExtractedData) == 0 {
		return record(res, LayerDataAware, false, "no missing fields answered", "", "")
	}

	for _, field := range cctx.MissingData {
		if _, ok := res.ExtractedData[field]; ok {
			old := res.Intent
			res.Intent = InfoProvided
			if res.Confidence < 0.80 {
				res.Confidence = 0.80
			}
			return record(res, LayerDataAware, true, "reply supplies the missing field "+field, old, res.Intent)
		}
	}
	return record(res, LayerDataAware, false, "extraction does not cover missing fields", "", "")
}
