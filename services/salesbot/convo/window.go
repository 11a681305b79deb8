// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package convo holds the short-term context window and the long-term
// episodic memory of one conversation. The window rotates; episodic
// memory never drops a fact because of rotation.
package convo

import (
	"strings"
	"sync"

	"github.com/AleutianAI/salespilot/services/salesbot/intent"
)

// Turn types.
const (
	TurnProgress = "progress"
	TurnRegress  = "regress"
	TurnLateral  = "lateral"
	TurnStuck    = "stuck"
	TurnNeutral  = "neutral"
)

// DefaultWindowSize is the default turn capacity.
const DefaultWindowSize = 5

// Turn is one recorded exchange. Turns reference each other only by
// Index; no pointers cross the window boundary.
type Turn struct {
	Index            int            `json:"index"`
	UserMessage      string         `json:"user_message"`
	BotResponse      string         `json:"bot_response"`
	Intent           string         `json:"intent"`
	Confidence       float64        `json:"confidence"`
	Method           string         `json:"method,omitempty"`
	Action           string         `json:"action"`
	PrevState        string         `json:"prev_state"`
	State            string         `json:"state"`
	Extracted        map[string]any `json:"extracted_data,omitempty"`
	IsDisambiguation bool           `json:"is_disambiguation,omitempty"`
	IsFallback       bool           `json:"is_fallback,omitempty"`
	FallbackTier     string         `json:"fallback_tier,omitempty"`
	TurnType         string         `json:"turn_type"`
	FunnelDelta      int            `json:"funnel_delta"`
}

// TurnInput is the raw per-turn record handed to Add; the window
// derives Index, TurnType, and FunnelDelta.
type TurnInput struct {
	UserMessage      string
	BotResponse      string
	Intent           string
	Confidence       float64
	Method           string
	Action           string
	PrevState        string
	NextState        string
	Extracted        map[string]any
	IsDisambiguation bool
	IsFallback       bool
	FallbackTier     string
}

// Window is the bounded recent-turn store with aggregate queries.
type Window struct {
	mu       sync.Mutex
	turns    []Turn
	maxSize  int
	nextIdx  int
	episodic *Memory

	// stateOrder positions states on the funnel for delta computation.
	stateOrder map[string]int
}

// NewWindow creates a window owning a fresh episodic memory.
// stateOrder may be nil; funnel deltas are then always 0.
func NewWindow(maxSize int, stateOrder map[string]int) *Window {
	if maxSize <= 0 {
		maxSize = DefaultWindowSize
	}
	return &Window{
		maxSize:    maxSize,
		episodic:   NewMemory(),
		stateOrder: stateOrder,
	}
}

// Episodic exposes the memory owned by this window.
func (w *Window) Episodic() *Memory {
	return w.episodic
}

// Add records a turn and derives its type. Objections and rejections
// are regress regardless of the funnel delta; a state change without a
// funnel move is lateral; a second consecutive turn that stays in the
// same state is stuck.
func (w *Window) Add(in TurnInput) Turn {
	w.mu.Lock()
	defer w.mu.Unlock()

	delta := w.funnelDelta(in.PrevState, in.NextState)
	turnType := TurnNeutral
	switch {
	case intent.IsObjection(in.Intent) || in.Intent == intent.Rejection:
		turnType = TurnRegress
	case delta > 0:
		turnType = TurnProgress
	case delta < 0:
		turnType = TurnRegress
	case in.PrevState != in.NextState:
		turnType = TurnLateral
	case len(w.turns) > 0 && w.turns[len(w.turns)-1].State == in.NextState:
		turnType = TurnStuck
	}

	t := Turn{
		Index:            w.nextIdx,
		UserMessage:      in.UserMessage,
		BotResponse:      in.BotResponse,
		Intent:           in.Intent,
		Confidence:       in.Confidence,
		Method:           in.Method,
		Action:           in.Action,
		PrevState:        in.PrevState,
		State:            in.NextState,
		Extracted:        in.Extracted,
		IsDisambiguation: in.IsDisambiguation,
		IsFallback:       in.IsFallback,
		FallbackTier:     in.FallbackTier,
		TurnType:         turnType,
		FunnelDelta:      delta,
	}
	w.nextIdx++

	w.turns = append(w.turns, t)
	if len(w.turns) > w.maxSize {
		w.turns = w.turns[len(w.turns)-w.maxSize:]
	}

	w.episodic.observeTurn(t)
	return t
}

func (w *Window) funnelDelta(prev, next string) int {
	if w.stateOrder == nil {
		return 0
	}
	pi, pok := w.stateOrder[prev]
	ni, nok := w.stateOrder[next]
	// Unknown states carry no ordering; the delta stays 0.
	if !pok || !nok {
		return 0
	}
	return ni - pi
}

// IntentHistory returns the window's intents, oldest first.
func (w *Window) IntentHistory() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.turns))
	for i, t := range w.turns {
		out[i] = t.Intent
	}
	return out
}

// ActionHistory returns the window's actions, oldest first.
func (w *Window) ActionHistory() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.turns))
	for i, t := range w.turns {
		out[i] = t.Action
	}
	return out
}

// LastTurnType returns the most recent turn's type, or "".
func (w *Window) LastTurnType() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.turns) == 0 {
		return ""
	}
	return w.turns[len(w.turns)-1].TurnType
}

// Turns returns a copy of the window contents.
func (w *Window) Turns() []Turn {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Turn(nil), w.turns...)
}

// Summary computes every aggregate in one pass for the classifier
// context.
func (w *Window) Summary() intent.WindowSummary {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := intent.WindowSummary{}
	for _, t := range w.turns {
		s.IntentHistory = append(s.IntentHistory, t.Intent)
		switch {
		case intent.IsObjection(t.Intent):
			s.ObjectionCount++
		case t.Intent == intent.Agreement || t.Intent == intent.DemoRequest || t.Intent == intent.ContactProvided:
			s.PositiveCount++
		case strings.HasPrefix(t.Intent, "question_"):
			s.QuestionCount++
		case t.Intent == intent.Unclear:
			s.UnclearCount++
		}
	}
	s.Oscillating = w.oscillating()
	s.Stuck = w.stuck(3)
	s.RepeatedQuestion = w.repeatedQuestion()
	s.ConfidenceTrend = w.confidenceTrend()
	return s
}

// oscillating reports alternating progress/regress over the last four
// turns.
func (w *Window) oscillating() bool {
	if len(w.turns) < 4 {
		return false
	}
	tail := w.turns[len(w.turns)-4:]
	for i := 1; i < len(tail); i++ {
		a, b := tail[i-1].TurnType, tail[i].TurnType
		opposite := (a == TurnProgress && b == TurnRegress) || (a == TurnRegress && b == TurnProgress)
		if !opposite {
			return false
		}
	}
	return true
}

// stuck reports k consecutive identical intents at the tail.
func (w *Window) stuck(k int) bool {
	if len(w.turns) < k {
		return false
	}
	tail := w.turns[len(w.turns)-k:]
	for _, t := range tail[1:] {
		if t.Intent != tail[0].Intent {
			return false
		}
	}
	return true
}

// repeatedQuestion reports the same normalized question asked twice
// within the window.
func (w *Window) repeatedQuestion() bool {
	seen := map[string]bool{}
	for _, t := range w.turns {
		if !strings.HasPrefix(t.Intent, "question_") {
			continue
		}
		norm := normalizeMessage(t.UserMessage)
		if seen[norm] {
			return true
		}
		seen[norm] = true
	}
	return false
}

// confidenceTrend is the least-squares slope of confidence over the
// window; positive means the dialogue is getting clearer.
func (w *Window) confidenceTrend() float64 {
	n := len(w.turns)
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, t := range w.turns {
		x := float64(i)
		sumX += x
		sumY += t.Confidence
		sumXY += x * t.Confidence
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (fn*sumXY - sumX*sumY) / denom
}

func normalizeMessage(msg string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(msg))), " ")
}

// WindowState is the serializable window.
type WindowState struct {
	Turns    []Turn      `json:"turns"`
	NextIdx  int         `json:"next_idx"`
	MaxSize  int         `json:"max_size"`
	Episodic MemoryState `json:"episodic"`
}

// ToState exports the window and its episodic memory.
func (w *Window) ToState() WindowState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WindowState{
		Turns:    append([]Turn(nil), w.turns...),
		NextIdx:  w.nextIdx,
		MaxSize:  w.maxSize,
		Episodic: w.episodic.ToState(),
	}
}

// LoadState restores a snapshot.
func (w *Window) LoadState(st WindowState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns = append([]Turn(nil), st.Turns...)
	w.nextIdx = st.NextIdx
	if st.MaxSize > 0 {
		w.maxSize = st.MaxSize
	}
	w.episodic.LoadState(st.Episodic)
}
