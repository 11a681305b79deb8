// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds process-wide settings, feature flags, and the
// frustration thresholds shared by the guard, fallback handler, and
// personalization rules.
//
// Flags are explicit dependencies: construct one Flags value at bootstrap
// and inject it into the components that need it. There are no package
// globals.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Flag names. The closed set of known feature flags.
const (
	FlagSemanticTone       = "semantic_tone"
	FlagLLMTone            = "llm_tone"
	FlagSemanticIntent     = "semantic_intent"
	FlagLLMIntent          = "llm_intent"
	FlagRefinementPipeline = "refinement_pipeline_all"
	FlagConfidenceCalib    = "confidence_calibration"
	FlagDisambiguation     = "disambiguation"
	FlagPolicyOverlay      = "policy_overlay"
	FlagPolicyShadowMode   = "policy_shadow_mode"
	FlagBoundaryRepair     = "boundary_llm_repair"
	FlagBoundaryFallback   = "boundary_fallback"
	FlagHistoryCompaction  = "history_compaction"
	FlagDynamicCTA         = "dynamic_cta"
	FlagLeadPhaseSkipping  = "lead_phase_skipping"
)

// envPrefix is the environment override prefix: FF_SEMANTIC_TONE=false.
const envPrefix = "FF_"

// defaultFlags returns the base map for a production process.
func defaultFlags() map[string]bool {
	return map[string]bool{
		FlagSemanticTone:       true,
		FlagLLMTone:            true,
		FlagSemanticIntent:     true,
		FlagLLMIntent:          true,
		FlagRefinementPipeline: true,
		FlagConfidenceCalib:    true,
		FlagDisambiguation:     true,
		FlagPolicyOverlay:      true,
		FlagPolicyShadowMode:   false,
		FlagBoundaryRepair:     true,
		FlagBoundaryFallback:   true,
		FlagHistoryCompaction:  true,
		FlagDynamicCTA:         true,
		FlagLeadPhaseSkipping:  true,
	}
}

// Flags holds process-wide feature toggles with three layers of precedence:
// runtime override > environment override > base defaults.
//
// Thread Safety: safe for concurrent use; the override map is guarded by
// a mutex, the base and env maps are immutable after construction.
type Flags struct {
	base map[string]bool
	env  map[string]bool

	mu        sync.RWMutex
	overrides map[string]bool

	logger *slog.Logger
}

// NewFlags builds a Flags set from defaults plus one-shot environment
// overrides (FF_<NAME>=true|false, name upper-cased).
func NewFlags(logger *slog.Logger) *Flags {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Flags{
		base:      defaultFlags(),
		env:       map[string]bool{},
		overrides: map[string]bool{},
		logger:    logger,
	}
	for name := range f.base {
		envKey := envPrefix + strings.ToUpper(name)
		if raw, ok := os.LookupEnv(envKey); ok {
			val, err := strconv.ParseBool(strings.TrimSpace(raw))
			if err != nil {
				logger.Warn("ignoring malformed feature flag env override",
					"env", envKey, "value", raw)
				continue
			}
			f.env[name] = val
		}
	}
	return f
}

// Enabled reports whether the named flag is on. Unknown flags are off.
func (f *Flags) Enabled(name string) bool {
	f.mu.RLock()
	if val, ok := f.overrides[name]; ok {
		f.mu.RUnlock()
		return val
	}
	f.mu.RUnlock()

	if val, ok := f.env[name]; ok {
		return val
	}
	return f.base[name]
}

// Set installs a runtime override. Overrides win over env and defaults
// until Clear or process restart.
func (f *Flags) Set(name string, value bool) {
	f.mu.Lock()
	f.overrides[name] = value
	f.mu.Unlock()
	f.logger.Info("feature flag override set", "flag", name, "value", value)
}

// Clear removes a runtime override.
func (f *Flags) Clear(name string) {
	f.mu.Lock()
	delete(f.overrides, name)
	f.mu.Unlock()
}

// Snapshot returns the effective value of every known flag.
func (f *Flags) Snapshot() map[string]bool {
	out := make(map[string]bool, len(f.base))
	for name := range f.base {
		out[name] = f.Enabled(name)
	}
	return out
}

// =============================================================================
// Overrides File Watcher
// =============================================================================

// WatchOverrides watches a YAML file of flag overrides and applies it on
// every change. The file is a flat map of flag name to bool:
//
//	semantic_tone: false
//	policy_shadow_mode: true
//
// The watcher stops when the returned closer is called. A missing file is
// not an error; overrides apply once the file appears.
func (f *Flags) WatchOverrides(path string) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory so we catch atomic rename-into-place writes.
	dir := path
	if i := strings.LastIndexByte(path, '/'); i > 0 {
		dir = path[:i]
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	f.applyOverridesFile(path)

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					f.applyOverridesFile(path)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				f.logger.Warn("flag watcher error", "error", err)
			}
		}
	}()

	return watcher.Close, nil
}

func (f *Flags) applyOverridesFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			f.logger.Warn("cannot read flag overrides file", "path", path, "error", err)
		}
		return
	}
	parsed := map[string]bool{}
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		f.logger.Warn("malformed flag overrides file", "path", path, "error", err)
		return
	}
	f.mu.Lock()
	f.overrides = parsed
	f.mu.Unlock()
	f.logger.Info("flag overrides reloaded", "path", path, "count", len(parsed))
}
