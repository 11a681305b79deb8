// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import "fmt"

// MaxFrustration is the ceiling of the frustration scale.
const MaxFrustration = 10

// FrustrationThresholds is the single source of truth for frustration
// gating. Every component that asks "is the user frustrated enough"
// (guard, fallback handler, policy rules, directives) compares against
// these values so the answer is identical everywhere.
//
// Invariant: Elevated < Moderate < Warning < High < Critical <= MaxFrustration.
type FrustrationThresholds struct {
	Elevated int `yaml:"elevated"`
	Moderate int `yaml:"moderate"`
	Warning  int `yaml:"warning"`
	High     int `yaml:"high"`
	Critical int `yaml:"critical"`
}

// DefaultFrustrationThresholds returns the production values.
func DefaultFrustrationThresholds() FrustrationThresholds {
	return FrustrationThresholds{
		Elevated: 3,
		Moderate: 4,
		Warning:  5,
		High:     7,
		Critical: 9,
	}
}

// Validate checks the strictly-increasing invariant.
func (t FrustrationThresholds) Validate() error {
	if !(t.Elevated < t.Moderate && t.Moderate < t.Warning &&
		t.Warning < t.High && t.High < t.Critical) {
		return fmt.Errorf("frustration thresholds must be strictly increasing: %+v", t)
	}
	if t.Critical > MaxFrustration {
		return fmt.Errorf("critical threshold %d exceeds max %d", t.Critical, MaxFrustration)
	}
	if t.Elevated < 0 {
		return fmt.Errorf("elevated threshold must be non-negative")
	}
	return nil
}

// IsElevated reports level >= Elevated.
func (t FrustrationThresholds) IsElevated(level int) bool { return level >= t.Elevated }

// IsModerate reports level >= Moderate.
func (t FrustrationThresholds) IsModerate(level int) bool { return level >= t.Moderate }

// IsWarning reports level >= Warning.
func (t FrustrationThresholds) IsWarning(level int) bool { return level >= t.Warning }

// IsHigh reports level >= High.
func (t FrustrationThresholds) IsHigh(level int) bool { return level >= t.High }

// IsCritical reports level >= Critical.
func (t FrustrationThresholds) IsCritical(level int) bool { return level >= t.Critical }
