// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFlagsDefaults(t *testing.T) {
	f := NewFlags(nil)

	if !f.Enabled(FlagSemanticTone) {
		t.Error("semantic_tone should default on")
	}
	if f.Enabled(FlagPolicyShadowMode) {
		t.Error("policy_shadow_mode should default off")
	}
	if f.Enabled("no_such_flag") {
		t.Error("unknown flags should be off")
	}
}

func TestFlagsEnvOverride(t *testing.T) {
	t.Setenv("FF_SEMANTIC_TONE", "false")
	t.Setenv("FF_POLICY_SHADOW_MODE", "true")
	t.Setenv("FF_LLM_TONE", "garbage") // malformed, ignored

	f := NewFlags(nil)

	if f.Enabled(FlagSemanticTone) {
		t.Error("env override to false not applied")
	}
	if !f.Enabled(FlagPolicyShadowMode) {
		t.Error("env override to true not applied")
	}
	if !f.Enabled(FlagLLMTone) {
		t.Error("malformed env override should keep the default")
	}
}

func TestFlagsRuntimeOverrideWins(t *testing.T) {
	t.Setenv("FF_SEMANTIC_TONE", "false")
	f := NewFlags(nil)

	f.Set(FlagSemanticTone, true)
	if !f.Enabled(FlagSemanticTone) {
		t.Error("runtime override should win over env")
	}

	f.Clear(FlagSemanticTone)
	if f.Enabled(FlagSemanticTone) {
		t.Error("clearing the override should restore the env value")
	}
}

func TestFlagsSnapshot(t *testing.T) {
	f := NewFlags(nil)
	snap := f.Snapshot()
	if len(snap) == 0 {
		t.Fatal("empty snapshot")
	}
	if snap[FlagBoundaryFallback] != true {
		t.Error("snapshot should reflect defaults")
	}
}

func TestWatchOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flags.yaml")

	f := NewFlags(nil)
	closer, err := f.WatchOverrides(path)
	if err != nil {
		t.Fatalf("WatchOverrides: %v", err)
	}
	defer closer()

	if err := os.WriteFile(path, []byte("semantic_tone: false\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !f.Enabled(FlagSemanticTone) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("file override was not applied")
}

func TestThresholdsValidate(t *testing.T) {
	if err := DefaultFrustrationThresholds().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	bad := FrustrationThresholds{Elevated: 5, Moderate: 4, Warning: 6, High: 7, Critical: 9}
	if err := bad.Validate(); err == nil {
		t.Error("non-increasing thresholds must fail validation")
	}

	over := FrustrationThresholds{Elevated: 3, Moderate: 4, Warning: 5, High: 7, Critical: 11}
	if err := over.Validate(); err == nil {
		t.Error("critical above MaxFrustration must fail validation")
	}
}

func TestThresholdConsistency(t *testing.T) {
	// Every accessor must agree with direct comparison for every level.
	th := DefaultFrustrationThresholds()
	for level := 0; level <= MaxFrustration; level++ {
		if th.IsHigh(level) != (level >= th.High) {
			t.Errorf("IsHigh(%d) inconsistent", level)
		}
		if th.IsWarning(level) != (level >= th.Warning) {
			t.Errorf("IsWarning(%d) inconsistent", level)
		}
		if th.IsCritical(level) != (level >= th.Critical) {
			t.Errorf("IsCritical(%d) inconsistent", level)
		}
	}
}
