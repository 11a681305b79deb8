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
	"log/slog"
	"strings"

	"github.com/AleutianAI/salespilot/services/salesbot/config"
)

// Tier confidence floors: the first tier to clear its floor wins.
const (
	keywordFloor = 0.80
	llmFloor     = 0.60
)

// Classifier runs the cascaded intent classification plus the
// refinement pipeline.
type Classifier struct {
	flags     *config.Flags
	generator StructuredGenerator
	semantic  *SemanticClassifier
	logger    *slog.Logger
}

// NewClassifier builds the cascade. generator and semantic may be nil;
// the corresponding tiers then abstain.
func NewClassifier(flags *config.Flags, generator StructuredGenerator,
	semantic *SemanticClassifier, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		flags:     flags,
		generator: generator,
		semantic:  semantic,
		logger:    logger,
	}
}

// Classify produces the refined classification for one user message.
//
// Cascade order: keyword -> LLM (structured) -> semantic. The first
// tier that clears its confidence floor returns; otherwise the best
// candidate across tiers is kept, bottoming out at unclear/0.3.
func (c *Classifier) Classify(ctx context.Context, message string, cctx Context) Result {
	if strings.TrimSpace(message) == "" {
		return c.refine(Result{
			Intent:        Unclear,
			Confidence:    0.3,
			ExtractedData: map[string]any{},
			MethodUsed:    MethodKeyword,
		}, message, cctx)
	}

	best := classifyKeyword(message)
	if best.Confidence >= keywordFloor {
		return c.refine(best, message, cctx)
	}

	if c.generator != nil && c.flags.Enabled(config.FlagLLMIntent) {
		if res, ok := classifyLLM(ctx, c.generator, message, cctx); ok {
			// Calibration runs before thresholding; the pipeline records
			// the decision in its published slot.
			if c.flags.Enabled(config.FlagConfidenceCalib) {
				res.Confidence = calibrateConfidence(res.Confidence)
			}
			if res.Confidence >= llmFloor {
				// Keep the keyword tier's extraction merged in.
				return c.refine(mergeExtraction(res, best), message, cctx)
			}
			if res.Confidence > best.Confidence {
				best = mergeExtraction(res, best)
			}
		}
	}

	if c.semantic != nil && c.flags.Enabled(config.FlagSemanticIntent) {
		if res, ok := c.semantic.classify(ctx, message); ok {
			res.ExtractedData = best.ExtractedData
			if res.Confidence >= semanticFloor {
				return c.refine(res, message, cctx)
			}
			if res.Confidence > best.Confidence {
				best = res
			}
		}
	}

	if best.Confidence < 0.3 {
		best.Intent = Unclear
		best.Confidence = 0.3
	}
	return c.refine(best, message, cctx)
}

func mergeExtraction(primary, secondary Result) Result {
	if primary.ExtractedData == nil {
		primary.ExtractedData = map[string]any{}
	}
	for k, v := range secondary.ExtractedData {
		if _, ok := primary.ExtractedData[k]; !ok {
			primary.ExtractedData[k] = v
		}
	}
	return primary
}
