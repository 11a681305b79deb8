// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bot

import (
	"context"

	"github.com/AleutianAI/salespilot/services/salesbot/compact"
	"github.com/AleutianAI/salespilot/services/salesbot/config"
	"github.com/AleutianAI/salespilot/services/salesbot/convo"
	"github.com/AleutianAI/salespilot/services/salesbot/fallback"
	"github.com/AleutianAI/salespilot/services/salesbot/flow"
	"github.com/AleutianAI/salespilot/services/salesbot/generate"
	"github.com/AleutianAI/salespilot/services/salesbot/guard"
	"github.com/AleutianAI/salespilot/services/salesbot/lead"
	"github.com/AleutianAI/salespilot/services/salesbot/tone"
)

// SnapshotVersion tags the snapshot schema.
const SnapshotVersion = 2

// Snapshot serializes every stateful component of a bot. History is
// empty by contract; the tail travels next to the snapshot and is
// handed to FromSnapshot separately.
type Snapshot struct {
	Version        int    `json:"version"`
	ClientID       string `json:"client_id"`
	ConversationID string `json:"conversation_id"`
	FlowName       string `json:"flow_name"`
	ConfigName     string `json:"config_name"`

	StateMachine  flow.State        `json:"state_machine"`
	Guard         guard.State       `json:"conversation_guard"`
	LeadScorer    lead.State        `json:"lead_scorer"`
	Fallback      fallback.Stats    `json:"fallback_handler"`
	Objections    map[string]int    `json:"objection_handler"`
	ToneAnalyzer  tone.State        `json:"tone_analyzer"`
	ContextWindow convo.WindowState `json:"context_window"`
	Metrics       Metrics           `json:"metrics"`
	IntentTracker IntentTracker     `json:"intent_tracker"`

	Diversity generate.RingState `json:"diversity,omitempty"`

	History        []compact.Turn   `json:"history"`
	HistoryCompact *compact.Compact `json:"history_compact,omitempty"`
	HistoryMeta    *compact.Meta    `json:"history_compact_meta,omitempty"`
}

// ToSnapshot serializes the bot. With compactHistory set (and the
// compaction flag on), turns before the tail are folded into the
// structured compact; the returned tail is the verbatim last tailSize
// turns. Without compaction the whole history is returned as the tail.
func (b *Bot) ToSnapshot(ctx context.Context, compactHistory bool, tailSize int) (Snapshot, []compact.Turn) {
	snap := Snapshot{
		Version:        SnapshotVersion,
		ClientID:       b.opts.ClientID,
		ConversationID: b.opts.ConversationID,
		FlowName:       b.opts.FlowName,
		ConfigName:     b.opts.ConfigName,
		StateMachine:   b.machine.ToState(),
		Guard:          b.guard.ToState(),
		LeadScorer:     b.scorer.ToState(),
		Fallback:       b.fallback.Snapshot(),
		Objections:     b.objHandler.SnapshotAttempts(),
		ToneAnalyzer:   b.tone.ToState(),
		ContextWindow:  b.window.ToState(),
		Metrics:        *b.metrics,
		IntentTracker:  *b.tracker,
		Diversity:      b.generator.Diversity().State(),
		History:        []compact.Turn{},
		HistoryCompact: b.historyCompact,
		HistoryMeta:    b.historyMeta,
	}

	tail := append([]compact.Turn(nil), b.history...)
	if compactHistory && b.compactor != nil && b.deps.Flags.Enabled(config.FlagHistoryCompaction) {
		c, meta := b.compactor.Compact(ctx, b.history, tailSize, b.historyCompact, b.historyMeta,
			compact.FallbackContext{
				CollectedData: b.machine.CollectedData(),
				Objections:    b.window.Episodic().Objections(),
				State:         b.machine.Current(),
			})
		snap.HistoryCompact = &c
		snap.HistoryMeta = &meta
		if tailSize >= 0 && len(tail) > tailSize {
			tail = tail[len(tail)-tailSize:]
		}
	}
	return snap, tail
}

// FromSnapshot rebuilds a bot from a snapshot plus its history tail.
// The flow config must match snap.FlowName; the caller resolves it.
func FromSnapshot(snap Snapshot, tail []compact.Turn, flowCfg flow.Config, deps Deps) *Bot {
	b := New(Options{
		ConversationID: snap.ConversationID,
		ClientID:       snap.ClientID,
		FlowName:       snap.FlowName,
		ConfigName:     snap.ConfigName,
	}, flowCfg, deps)

	b.machine.LoadState(snap.StateMachine)
	b.guard.LoadState(snap.Guard)
	b.scorer.LoadState(snap.LeadScorer)
	b.fallback.Restore(snap.Fallback)
	b.objHandler.RestoreAttempts(snap.Objections)
	b.tone.LoadState(snap.ToneAnalyzer)
	b.window.LoadState(snap.ContextWindow)
	b.generator.Diversity().LoadState(snap.Diversity)

	metrics := snap.Metrics
	metrics.ensure()
	b.metrics = &metrics

	tracker := snap.IntentTracker
	if tracker.Counts == nil {
		tracker.Counts = map[string]int{}
	}
	b.tracker = &tracker

	b.history = append([]compact.Turn(nil), tail...)
	b.historyCompact = snap.HistoryCompact
	b.historyMeta = snap.HistoryMeta
	return b
}
