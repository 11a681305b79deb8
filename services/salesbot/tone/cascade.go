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
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/salespilot/services/salesbot/config"
	"github.com/AleutianAI/salespilot/services/salesbot/embed"
)

// Cascade short-circuit and floor constants.
const (
	regexShortCircuit = 0.85
	minConfidence     = 0.30
)

// Analyzer runs the three-tier tone cascade and owns the session's
// frustration tracker.
//
// Tier order: regex (always) -> semantic (flag-gated) -> LLM
// (flag-gated). The first tier confident enough wins; if nothing clears
// the minimum, the tone is forced neutral.
type Analyzer struct {
	flags      *config.Flags
	thresholds config.FrustrationThresholds
	semantic   *semanticTier
	generator  Generator
	tracker    *FrustrationTracker
	logger     *slog.Logger
}

// NewAnalyzer builds an analyzer. embedder and generator may be nil;
// the corresponding tiers then simply never run.
func NewAnalyzer(flags *config.Flags, thresholds config.FrustrationThresholds,
	embedder embed.Embedder, generator Generator, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Analyzer{
		flags:      flags,
		thresholds: thresholds,
		generator:  generator,
		tracker:    NewFrustrationTracker(thresholds),
		logger:     logger,
	}
	if embedder != nil {
		a.semantic = newSemanticTier(embedder, logger)
	}
	return a
}

// Analyze classifies one user message and updates the frustration
// accumulator.
func (a *Analyzer) Analyze(ctx context.Context, message string) Analysis {
	start := time.Now()

	tier1 := analyzeRegex(message)
	tierScores := map[string]float64{"regex": tier1.confidence}

	result := Analysis{
		Tone:        tier1.tone,
		Style:       tier1.style,
		Confidence:  tier1.confidence,
		Signals:     tier1.signals,
		SignalCount: tier1.signalCount,
		TierUsed:    tierRegex,
	}

	decided := tier1.confidence >= regexShortCircuit && len(tier1.signals) > 0

	if !decided && a.semantic != nil && a.flags.Enabled(config.FlagSemanticTone) {
		best, score, ambiguous, scores, ok := a.semantic.classify(ctx, message)
		if ok {
			for k, v := range scores {
				tierScores["semantic:"+k] = v
			}
			if !ambiguous {
				result.Tone = best
				result.Confidence = score
				result.TierUsed = tierSemantic
				decided = true
			} else if score > result.Confidence {
				// Keep as candidate; a later tier may still win.
				result.Tone = best
				result.Confidence = score
				result.TierUsed = tierSemantic
			}
		}
	}

	if !decided && a.generator != nil && a.flags.Enabled(config.FlagLLMTone) {
		prompt := fmt.Sprintf(llmTonePrompt, message)
		reply := a.generator.Generate(ctx, prompt, GeneratorOpts{AllowFallback: false})
		if mapped, ok := classifyLLM(reply); ok {
			tierScores["llm"] = llmToneConfidence
			if llmToneConfidence > result.Confidence {
				result.Tone = mapped
				result.Confidence = llmToneConfidence
				result.TierUsed = tierLLM
			}
			decided = true
		}
	}

	if result.Confidence < minConfidence {
		result.Tone = Neutral
		result.Confidence = minConfidence
	}

	// Frustration accounting happens exactly once per turn, after the
	// final tone is known. signalCount for non-regex wins is taken from
	// the regex scan of the winning tone.
	signalCount := result.SignalCount
	if result.TierUsed != tierRegex {
		signalCount = tier1.perTone[result.Tone]
		if signalCount == 0 {
			signalCount = 1
		}
		result.SignalCount = signalCount
	}
	result.PreInterventionTriggered = a.tracker.preIntervention(result.Tone, signalCount)
	result.FrustrationLevel = a.tracker.Update(result.Tone, signalCount)
	// Pre-intervention also fires when the update itself pushed the
	// level over the warning line.
	if !result.PreInterventionTriggered {
		result.PreInterventionTriggered = a.tracker.preIntervention(result.Tone, signalCount)
	}
	result.InterventionUrgency = a.tracker.urgency(result.Tone, signalCount)
	result.ConsecutiveNegativeTurns = a.tracker.ConsecutiveNegative()
	result.ShouldOfferExit = a.thresholds.IsHigh(result.FrustrationLevel) ||
		result.InterventionUrgency == UrgencyHigh ||
		result.InterventionUrgency == UrgencyCritical

	result.TierScores = tierScores
	result.Latency = time.Since(start)
	return result
}

// FrustrationLevel returns the current accumulated level.
func (a *Analyzer) FrustrationLevel() int { return a.tracker.Level() }

// =============================================================================
// Snapshot
// =============================================================================

// State is the serializable analyzer state.
type State struct {
	FrustrationLevel    int   `json:"frustration_level"`
	ConsecutiveNegative int   `json:"consecutive_negative"`
	History             []int `json:"history"`
}

// ToState captures the analyzer for a snapshot.
func (a *Analyzer) ToState() State {
	return State{
		FrustrationLevel:    a.tracker.Level(),
		ConsecutiveNegative: a.tracker.ConsecutiveNegative(),
		History:             a.tracker.History(),
	}
}

// LoadState restores the analyzer from a snapshot.
func (a *Analyzer) LoadState(s State) {
	a.tracker.RestoreState(s.FrustrationLevel, s.ConsecutiveNegative, s.History)
}
