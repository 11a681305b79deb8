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
	"math"

	"github.com/AleutianAI/salespilot/services/salesbot/config"
)

// Base per-tone frustration weights. Positive tones carry negative
// weights and decay the level.
var frustrationWeights = map[Tone]int{
	Frustrated: 3,
	Rushed:     2,
	Skeptical:  1,
	Confused:   1,
	Positive:   -2,
	Interested: -1,
}

// consecutiveNegativeThreshold turns on the streak multiplier once the
// user has been negative this many turns in a row.
const (
	consecutiveNegativeThreshold  = 3
	consecutiveNegativeMultiplier = 1.5
)

// intensityMultiplier scales the base weight by how loudly the tone
// showed up in the message.
func intensityMultiplier(signalCount int) float64 {
	switch {
	case signalCount >= 3:
		return 2.0
	case signalCount == 2:
		return 1.5
	default:
		return 1.0
	}
}

// FrustrationTracker accumulates the session frustration level.
//
// Not safe for concurrent use on its own; the session lock serializes
// all access.
type FrustrationTracker struct {
	thresholds config.FrustrationThresholds

	level            int
	consecutiveNeg   int
	history          []int
	maxHistoryLength int
}

// NewFrustrationTracker creates a tracker at level 0.
func NewFrustrationTracker(thresholds config.FrustrationThresholds) *FrustrationTracker {
	return &FrustrationTracker{
		thresholds:       thresholds,
		maxHistoryLength: 50,
	}
}

// Update applies one turn's tone and returns the new level.
//
// Delta = baseWeight x intensityMultiplier(signalCount), further scaled
// by the streak multiplier once consecutive negative turns reach the
// threshold, rounded to int. The level is clamped to
// [0, config.MaxFrustration].
func (f *FrustrationTracker) Update(t Tone, signalCount int) int {
	weight, ok := frustrationWeights[t]
	if !ok {
		// Neutral turns neither build nor decay.
		f.consecutiveNeg = 0
		f.pushHistory()
		return f.level
	}

	if t.IsNegative() {
		f.consecutiveNeg++
	} else {
		f.consecutiveNeg = 0
	}

	delta := float64(weight) * intensityMultiplier(signalCount)
	if t.IsNegative() && f.consecutiveNeg >= consecutiveNegativeThreshold {
		delta *= consecutiveNegativeMultiplier
	}

	f.level += int(math.Round(delta))
	if f.level < 0 {
		f.level = 0
	}
	if f.level > config.MaxFrustration {
		f.level = config.MaxFrustration
	}
	f.pushHistory()
	return f.level
}

func (f *FrustrationTracker) pushHistory() {
	f.history = append(f.history, f.level)
	if len(f.history) > f.maxHistoryLength {
		f.history = f.history[len(f.history)-f.maxHistoryLength:]
	}
}

// Level returns the current frustration level.
func (f *FrustrationTracker) Level() int { return f.level }

// ConsecutiveNegative returns the current negative-turn streak.
func (f *FrustrationTracker) ConsecutiveNegative() int { return f.consecutiveNeg }

// History returns the level trace (most recent last).
func (f *FrustrationTracker) History() []int {
	out := make([]int, len(f.history))
	copy(out, f.history)
	return out
}

// preIntervention reports whether this turn warrants preemptive
// de-escalation before the guard's own thresholds fire.
func (f *FrustrationTracker) preIntervention(t Tone, signalCount int) bool {
	if t == Rushed && signalCount >= 2 {
		return true
	}
	return t.IsNegative() && f.thresholds.IsWarning(f.level)
}

// urgency maps the current level and tone to an intervention urgency.
func (f *FrustrationTracker) urgency(t Tone, signalCount int) Urgency {
	switch {
	case f.thresholds.IsCritical(f.level):
		return UrgencyCritical
	case f.thresholds.IsHigh(f.level) || (t == Rushed && signalCount >= 3):
		return UrgencyHigh
	case f.thresholds.IsWarning(f.level):
		return UrgencyMedium
	case f.thresholds.IsElevated(f.level):
		return UrgencyLow
	default:
		return UrgencyNone
	}
}

// RestoreState reloads tracker state from a snapshot.
func (f *FrustrationTracker) RestoreState(level, consecutiveNeg int, history []int) {
	if level < 0 {
		level = 0
	}
	if level > config.MaxFrustration {
		level = config.MaxFrustration
	}
	f.level = level
	f.consecutiveNeg = consecutiveNeg
	f.history = append([]int(nil), history...)
}
