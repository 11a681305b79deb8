// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package convo

import (
	"sync"

	"github.com/AleutianAI/salespilot/services/salesbot/intent"
)

// Episode kinds.
const (
	EpisodeFirstObjection = "first_objection"
	EpisodeBreakthrough   = "breakthrough"
)

// Episode is a notable moment, anchored by turn index.
type Episode struct {
	Kind      string `json:"kind"`
	TurnIndex int    `json:"turn_index"`
	Detail    string `json:"detail"`
}

// ActionOutcome records how one action performed at one turn.
type ActionOutcome struct {
	Action    string `json:"action"`
	TurnIndex int    `json:"turn_index"`
	Success   bool   `json:"success"`
}

// Memory is the long-term per-session store. Nothing here is ever
// dropped by window rotation.
type Memory struct {
	mu sync.Mutex

	episodes []Episode
	outcomes []ActionOutcome

	profile    map[string]string
	painPoints []string
	features   []string
	objections []string

	sawRegress        bool
	sawFirstObjection bool
}

// NewMemory creates an empty memory.
func NewMemory() *Memory {
	return &Memory{profile: map[string]string{}}
}

// observeTurn derives episodes from the turn stream: the first
// objection, and the first progress after any regress (breakthrough).
func (m *Memory) observeTurn(t Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if intent.IsObjection(t.Intent) {
		if !m.sawFirstObjection {
			m.sawFirstObjection = true
			m.episodes = append(m.episodes, Episode{
				Kind:      EpisodeFirstObjection,
				TurnIndex: t.Index,
				Detail:    t.Intent,
			})
		}
		m.objections = appendUnique(m.objections, t.Intent)
	}

	switch t.TurnType {
	case TurnRegress:
		m.sawRegress = true
	case TurnProgress:
		if m.sawRegress {
			m.sawRegress = false
			m.episodes = append(m.episodes, Episode{
				Kind:      EpisodeBreakthrough,
				TurnIndex: t.Index,
				Detail:    t.Action,
			})
		}
	}
}

// RecordActionOutcome notes whether an action moved the dialogue
// forward at the given turn.
func (m *Memory) RecordActionOutcome(action string, turnIndex int, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, ActionOutcome{Action: action, TurnIndex: turnIndex, Success: success})
}

// UpdateProfile merges scalar client-profile fields and accumulates the
// list-valued ones with deduplication.
func (m *Memory) UpdateProfile(data map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, val := range data {
		switch key {
		case intent.FieldPainPoints, intent.FieldPainCategory:
			for _, s := range asStrings(val) {
				m.painPoints = appendUnique(m.painPoints, s)
			}
		case intent.FieldInterestedFeatures:
			for _, s := range asStrings(val) {
				m.features = appendUnique(m.features, s)
			}
		case intent.FieldObjectionTypes:
			for _, s := range asStrings(val) {
				m.objections = appendUnique(m.objections, s)
			}
		default:
			if s, ok := val.(string); ok && s != "" {
				m.profile[key] = s
			}
		}
	}
}

// Profile returns a copy of the scalar profile fields.
func (m *Memory) Profile() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.profile))
	for k, v := range m.profile {
		out[k] = v
	}
	return out
}

// Objections returns every objection seen, in first-seen order.
func (m *Memory) Objections() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.objections...)
}

// PainPoints returns the accumulated pain points.
func (m *Memory) PainPoints() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.painPoints...)
}

// Features returns the accumulated feature interests.
func (m *Memory) Features() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.features...)
}

// Episodes returns the episode list.
func (m *Memory) Episodes() []Episode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Episode(nil), m.episodes...)
}

// EffectiveActions returns the set of actions that succeeded at least
// once, in first-success order.
func (m *Memory) EffectiveActions() []string {
	return m.actionSet(true)
}

// IneffectiveActions returns actions that failed and never succeeded.
func (m *Memory) IneffectiveActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	succeeded := map[string]bool{}
	for _, o := range m.outcomes {
		if o.Success {
			succeeded[o.Action] = true
		}
	}
	var out []string
	for _, o := range m.outcomes {
		if !o.Success && !succeeded[o.Action] {
			out = appendUnique(out, o.Action)
		}
	}
	return out
}

func (m *Memory) actionSet(success bool) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, o := range m.outcomes {
		if o.Success == success {
			out = appendUnique(out, o.Action)
		}
	}
	return out
}

// MemoryState is the serializable memory.
type MemoryState struct {
	Episodes          []Episode         `json:"episodes"`
	Outcomes          []ActionOutcome   `json:"outcomes"`
	Profile           map[string]string `json:"profile"`
	PainPoints        []string          `json:"pain_points"`
	Features          []string          `json:"features"`
	Objections        []string          `json:"objections"`
	SawRegress        bool              `json:"saw_regress"`
	SawFirstObjection bool              `json:"saw_first_objection"`
}

// ToState exports the memory for a snapshot.
func (m *Memory) ToState() MemoryState {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile := make(map[string]string, len(m.profile))
	for k, v := range m.profile {
		profile[k] = v
	}
	return MemoryState{
		Episodes:          append([]Episode(nil), m.episodes...),
		Outcomes:          append([]ActionOutcome(nil), m.outcomes...),
		Profile:           profile,
		PainPoints:        append([]string(nil), m.painPoints...),
		Features:          append([]string(nil), m.features...),
		Objections:        append([]string(nil), m.objections...),
		SawRegress:        m.sawRegress,
		SawFirstObjection: m.sawFirstObjection,
	}
}

// LoadState restores a snapshot.
func (m *Memory) LoadState(st MemoryState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.episodes = append([]Episode(nil), st.Episodes...)
	m.outcomes = append([]ActionOutcome(nil), st.Outcomes...)
	m.profile = map[string]string{}
	for k, v := range st.Profile {
		m.profile[k] = v
	}
	m.painPoints = append([]string(nil), st.PainPoints...)
	m.features = append([]string(nil), st.Features...)
	m.objections = append([]string(nil), st.Objections...)
	m.sawRegress = st.SawRegress
	m.sawFirstObjection = st.SawFirstObjection
}

func appendUnique(list []string, item string) []string {
	if item == "" {
		return list
	}
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}

func asStrings(val any) []string {
	switch v := val.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
