// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compact summarizes old conversation turns into a structured
// digest so snapshots stay bounded while keeping the facts that matter
// for resuming a sale.
package compact

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// SchemaVersion tags the compact structure in snapshots.
const SchemaVersion = 1

// maxListItems caps every list in the compact.
const maxListItems = 10

// StructuredGenerator is the LLM surface for structured summarization.
// *llm.Client satisfies it.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, prompt string, out any) error
}

// Turn is one user/bot exchange from the full history.
type Turn struct {
	User string `json:"user"`
	Bot  string `json:"bot"`
}

// Compact is the structured digest of compacted turns.
type Compact struct {
	Summary       string   `json:"summary"`
	KeyFacts      []string `json:"key_facts"`
	Objections    []string `json:"objections"`
	Decisions     []string `json:"decisions"`
	OpenQuestions []string `json:"open_questions"`
	NextSteps     []string `json:"next_steps"`
}

// Meta describes how a compact was produced.
type Meta struct {
	CompactedTurns int       `json:"compacted_turns"`
	TailSize       int       `json:"tail_size"`
	Timestamp      time.Time `json:"timestamp"`
	SchemaVersion  int       `json:"schema_version"`
	Model          string    `json:"model,omitempty"`
}

// FallbackContext feeds the deterministic merger when the LLM is
// unavailable.
type FallbackContext struct {
	CollectedData map[string]any
	Objections    []string
	State         string
}

// Compactor produces compacts. llm may be nil, forcing the
// deterministic path.
type Compactor struct {
	llm    StructuredGenerator
	model  string
	now    func() time.Time
	logger *slog.Logger
}

// New wires a compactor. model labels Meta and may be empty.
func New(llm StructuredGenerator, model string, logger *slog.Logger) *Compactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compactor{llm: llm, model: model, now: time.Now, logger: logger}
}

// Compact splits the last tailSize turns off and summarizes everything
// before them, extending previous when given. The tail itself is never
// compacted; callers keep it verbatim.
func (c *Compactor) Compact(ctx context.Context, history []Turn, tailSize int,
	previous *Compact, previousMeta *Meta, fctx FallbackContext) (Compact, Meta) {

	if tailSize < 0 {
		tailSize = 0
	}
	cut := len(history) - tailSize
	if cut < 0 {
		cut = 0
	}

	// Only the turns not covered by the previous compact are new.
	seen := 0
	if previousMeta != nil {
		seen = previousMeta.CompactedTurns
	}
	if seen > cut {
		seen = cut
	}
	fresh := history[seen:cut]

	meta := Meta{
		CompactedTurns: cut,
		TailSize:       tailSize,
		Timestamp:      c.now(),
		SchemaVersion:  SchemaVersion,
	}

	if len(fresh) == 0 {
		if previous != nil {
			return *previous, meta
		}
		return Compact{}, meta
	}

	if c.llm != nil {
		if out, err := c.compactLLM(ctx, fresh, previous); err == nil {
			meta.Model = c.model
			return normalize(out), meta
		} else {
			c.logger.Warn("structured compaction failed, using deterministic merge", "error", err)
		}
	}
	return normalize(c.compactDeterministic(fresh, previous, fctx)), meta
}

func (c *Compactor) compactLLM(ctx context.Context, fresh []Turn, previous *Compact) (Compact, error) {
	var b strings.Builder
	b.WriteString("Сожми фрагмент диалога менеджера по продажам с клиентом в JSON со схемой:\n")
	b.WriteString(`{"summary": "...", "key_facts": [], "objections": [], "decisions": [], "open_questions": [], "next_steps": []}` + "\n")
	b.WriteString("Пиши только факты из диалога, ничего не добавляй.\n\n")
	if previous != nil && previous.Summary != "" {
		fmt.Fprintf(&b, "Сводка предыдущих реплик: %s\n\n", previous.Summary)
	}
	for _, t := range fresh {
		if t.User != "" {
			fmt.Fprintf(&b, "Клиент: %s\n", t.User)
		}
		if t.Bot != "" {
			fmt.Fprintf(&b, "Менеджер: %s\n", t.Bot)
		}
	}

	var out Compact
	if err := c.llm.GenerateStructured(ctx, b.String(), &out); err != nil {
		return Compact{}, err
	}
	if previous != nil {
		out = merge(*previous, out)
	}
	return out, nil
}

// compactDeterministic extends the previous compact with counted facts
// from the fallback context. No text understanding is attempted.
func (c *Compactor) compactDeterministic(fresh []Turn, previous *Compact, fctx FallbackContext) Compact {
	out := Compact{}
	if previous != nil {
		out = *previous
	}
	out.Summary = fmt.Sprintf("Сжато %d реплик без LLM; этап: %s.", len(fresh), orUnknown(fctx.State))
	for key, val := range fctx.CollectedData {
		if s, ok := val.(string); ok && s != "" {
			out.KeyFacts = appendUnique(out.KeyFacts, fmt.Sprintf("%s: %s", key, s))
		}
	}
	for _, obj := range fctx.Objections {
		out.Objections = appendUnique(out.Objections, obj)
	}
	return out
}

// merge extends prev with next, deduplicating while preserving order.
func merge(prev, next Compact) Compact {
	out := Compact{Summary: next.Summary}
	if out.Summary == "" {
		out.Summary = prev.Summary
	}
	out.KeyFacts = mergeLists(prev.KeyFacts, next.KeyFacts)
	out.Objections = mergeLists(prev.Objections, next.Objections)
	out.Decisions = mergeLists(prev.Decisions, next.Decisions)
	out.OpenQuestions = mergeLists(prev.OpenQuestions, next.OpenQuestions)
	out.NextSteps = mergeLists(prev.NextSteps, next.NextSteps)
	return out
}

func normalize(c Compact) Compact {
	c.KeyFacts = cap10(dedup(c.KeyFacts))
	c.Objections = cap10(dedup(c.Objections))
	c.Decisions = cap10(dedup(c.Decisions))
	c.OpenQuestions = cap10(dedup(c.OpenQuestions))
	c.NextSteps = cap10(dedup(c.NextSteps))
	return c
}

func mergeLists(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, item := range b {
		out = appendUnique(out, item)
	}
	return out
}

func dedup(list []string) []string {
	var out []string
	for _, item := range list {
		out = appendUnique(out, item)
	}
	return out
}

func appendUnique(list []string, item string) []string {
	item = strings.TrimSpace(item)
	if item == "" {
		return list
	}
	for _, have := range list {
		if have == item {
			return list
		}
	}
	return append(list, item)
}

func cap10(list []string) []string {
	if len(list) > maxListItems {
		return list[:maxListItems]
	}
	return list
}

func orUnknown(s string) string {
	if s == "" {
		return "неизвестен"
	}
	return s
}
