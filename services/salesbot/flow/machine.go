// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package flow

import (
	"log/slog"

	"github.com/AleutianAI/salespilot/services/salesbot/intent"
	"github.com/AleutianAI/salespilot/services/salesbot/policy"
)

// ProgressRecorder is the guard surface the machine notifies on state
// change.
type ProgressRecorder interface {
	RecordProgress()
}

// Result is the outcome of one state-machine step.
type Result struct {
	PrevState     string         `json:"prev_state"`
	NextState     string         `json:"next_state"`
	Action        string         `json:"action"`
	Goal          string         `json:"goal"`
	CollectedData map[string]any `json:"collected_data"`
	MissingData   []string       `json:"missing_data"`
	OptionalData  []string       `json:"optional_data"`
	IsFinal       bool           `json:"is_final"`
	SpinPhase     string         `json:"spin_phase"`
}

// Machine advances one conversation through a flow graph.
type Machine struct {
	flow Config

	current   string
	phase     string
	collected map[string]any

	inDisambiguation   bool
	preDisambigState   string
	disambigAttempts   int
	disambigOptions    []intent.Option
	turnsSinceDisambig int

	circular *Circular
	progress ProgressRecorder
	logger   *slog.Logger
}

// NewMachine starts a machine at the flow's entry state for the given
// persona. progress may be nil.
func NewMachine(flow Config, persona string, progress ProgressRecorder, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	entry := flow.Entry(persona)
	return &Machine{
		flow:      flow,
		current:   entry,
		phase:     flow.PhaseFor(entry),
		collected: map[string]any{},
		circular:  NewCircular(),
		progress:  progress,
		logger:    logger,
	}
}

// Process performs one step. Transition priority: policy override,
// disambiguation routing, data gates, intent transitions, continue.
func (m *Machine) Process(intentName string, extracted map[string]any, override *policy.Override) Result {
	prev := m.current
	m.mergeData(extracted)

	sc, _ := m.flow.Get(m.current)
	missing := m.missingLocked(sc)

	res := Result{
		PrevState:    prev,
		NextState:    m.current,
		Action:       ActionContinueGoal,
		Goal:         sc.Goal,
		MissingData:  missing,
		OptionalData: append([]string(nil), sc.OptionalData...),
	}

	switch {
	case override != nil && override.Decision == policy.DecisionOverride:
		if override.Action == "" {
			// Invalid by contract: a bare next_state never applies.
			m.logger.Warn("ignoring policy override without action",
				"next_state", override.NextState)
			m.selectTransition(intentName, missing, &res)
		} else {
			res.Action = override.Action
			if override.NextState != "" {
				res.NextState = override.NextState
			}
		}

	case m.inDisambiguation:
		// The orchestrator resolves the reply before calling Process;
		// reaching here mid-disambiguation means keep clarifying.
		res.Action = ActionClarifyIntent

	default:
		m.selectTransition(intentName, missing, &res)
	}

	if next, ok := m.flow.Get(res.NextState); ok {
		res.IsFinal = next.IsFinal
	} else {
		m.logger.Warn("transition to unknown state, staying put", "state", res.NextState)
		res.NextState = m.current
	}

	if res.NextState != m.current {
		m.circular.Observe(m.flow, m.current, res.NextState)
		m.current = res.NextState
		m.phase = m.flow.PhaseFor(m.current)
		if m.progress != nil {
			m.progress.RecordProgress()
		}
	}
	if m.inDisambiguation {
		m.turnsSinceDisambig = 0
	} else {
		m.turnsSinceDisambig++
	}

	res.SpinPhase = m.phase
	res.CollectedData = m.CollectedData()
	// Recompute against the state we ended in.
	if endSC, ok := m.flow.Get(m.current); ok {
		res.MissingData = m.missingLocked(endSC)
	}
	return res
}

// selectTransition routes by intent. Critical intents and objections
// consult the transition map before the data gate: a contact handoff,
// a rejection, or a live objection cannot wait for company fields.
func (m *Machine) selectTransition(intentName string, missing []string, res *Result) {
	sc, _ := m.flow.Get(m.current)
	tr, mapped := sc.Transitions[intentName]
	if mapped && (intent.IsCritical(intentName) || intent.IsObjection(intentName)) {
		res.NextState = tr.NextState
		res.Action = tr.Action
		return
	}
	if len(missing) > 0 {
		res.Action = ActionAskMissing
		return
	}
	if mapped {
		res.NextState = tr.NextState
		res.Action = tr.Action
		return
	}
	res.Action = ActionContinueGoal
}

// mergeData applies extraction monotonically: scalars overwrite with
// newer non-empty values, lists append with de-dup.
func (m *Machine) mergeData(extracted map[string]any) {
	for key, val := range extracted {
		switch v := val.(type) {
		case []string:
			m.collected[key] = mergeList(m.collected[key], v)
		case []any:
			var items []string
			for _, item := range v {
				if s, ok := item.(string); ok {
					items = append(items, s)
				}
			}
			m.collected[key] = mergeList(m.collected[key], items)
		case string:
			if v != "" {
				m.collected[key] = v
			}
		default:
			if v != nil {
				m.collected[key] = v
			}
		}
	}
}

func mergeList(existing any, items []string) []string {
	var list []string
	switch e := existing.(type) {
	case []string:
		list = e
	case []any:
		for _, item := range e {
			if s, ok := item.(string); ok {
				list = append(list, s)
			}
		}
	}
	for _, item := range items {
		dup := false
		for _, have := range list {
			if have == item {
				dup = true
				break
			}
		}
		if !dup && item != "" {
			list = append(list, item)
		}
	}
	return list
}

func (m *Machine) missingLocked(sc StateConfig) []string {
	var missing []string
	for _, field := range sc.RequiredData {
		if _, ok := m.collected[field]; !ok {
			missing = append(missing, field)
		}
	}
	return missing
}

// Current returns the current state name.
func (m *Machine) Current() string { return m.current }

// Phase returns the current phase label.
func (m *Machine) Phase() string { return m.phase }

// CollectedData returns a copy of the collected data.
func (m *Machine) CollectedData() map[string]any {
	out := make(map[string]any, len(m.collected))
	for k, v := range m.collected {
		out[k] = v
	}
	return out
}

// MissingData returns the current state's unmet required fields.
func (m *Machine) MissingData() []string {
	sc, _ := m.flow.Get(m.current)
	return m.missingLocked(sc)
}

// IsTerminalSuccess reports whether the current state closes the deal.
func (m *Machine) IsTerminalSuccess() bool {
	sc, _ := m.flow.Get(m.current)
	return sc.IsTerminalSuccess
}

// InDisambiguation reports disambiguation mode.
func (m *Machine) InDisambiguation() bool { return m.inDisambiguation }

// DisambigOptions returns the options presented to the user.
func (m *Machine) DisambigOptions() []intent.Option {
	return append([]intent.Option(nil), m.disambigOptions...)
}

// DisambigAttempts returns the 1-based attempt counter.
func (m *Machine) DisambigAttempts() int { return m.disambigAttempts }

// EnterDisambiguation remembers the pre-disambiguation state and the
// option set; repeated entry advances the attempt counter.
func (m *Machine) EnterDisambiguation(options []intent.Option) {
	if !m.inDisambiguation {
		m.inDisambiguation = true
		m.preDisambigState = m.current
		m.disambigAttempts = 0
	}
	m.disambigAttempts++
	m.disambigOptions = append([]intent.Option(nil), options...)
}

// ExitDisambiguation returns to normal routing.
func (m *Machine) ExitDisambiguation() {
	m.inDisambiguation = false
	m.preDisambigState = ""
	m.disambigAttempts = 0
	m.disambigOptions = nil
}

// JumpTo force-moves the machine, used by fallback skip transitions.
func (m *Machine) JumpTo(state string) bool {
	if _, ok := m.flow.Get(state); !ok {
		return false
	}
	if state != m.current {
		m.circular.Observe(m.flow, m.current, state)
		m.current = state
		m.phase = m.flow.PhaseFor(state)
		if m.progress != nil {
			m.progress.RecordProgress()
		}
	}
	return true
}

// GoBackCount exposes the circular flow counter.
func (m *Machine) GoBackCount() int { return m.circular.Count() }

// State is the serializable machine state.
type State struct {
	Current            string          `json:"current_state"`
	Phase              string          `json:"current_phase"`
	Collected          map[string]any  `json:"collected_data"`
	InDisambiguation   bool            `json:"in_disambiguation"`
	PreDisambigState   string          `json:"pre_disambiguation_state"`
	DisambigAttempts   int             `json:"disambiguation_attempts"`
	DisambigOptions    []intent.Option `json:"disambiguation_options,omitempty"`
	TurnsSinceDisambig int             `json:"turns_since_last_disambiguation"`
	Circular           CircularState   `json:"circular_flow_manager"`
}

// ToState exports the machine for a snapshot.
func (m *Machine) ToState() State {
	return State{
		Current:            m.current,
		Phase:              m.phase,
		Collected:          m.CollectedData(),
		InDisambiguation:   m.inDisambiguation,
		PreDisambigState:   m.preDisambigState,
		DisambigAttempts:   m.disambigAttempts,
		DisambigOptions:    append([]intent.Option(nil), m.disambigOptions...),
		TurnsSinceDisambig: m.turnsSinceDisambig,
		Circular:           m.circular.ToState(),
	}
}

// LoadState restores a snapshot. The phase is re-derived from the
// state to hold the phase invariant even across flow edits.
func (m *Machine) LoadState(st State) {
	m.current = st.Current
	m.phase = m.flow.PhaseFor(st.Current)
	m.collected = map[string]any{}
	for k, v := range st.Collected {
		m.collected[k] = v
	}
	m.inDisambiguation = st.InDisambiguation
	m.preDisambigState = st.PreDisambigState
	m.disambigAttempts = st.DisambigAttempts
	m.disambigOptions = append([]intent.Option(nil), st.DisambigOptions...)
	m.turnsSinceDisambig = st.TurnsSinceDisambig
	m.circular.LoadState(st.Circular)
}
