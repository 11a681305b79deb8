// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package flow models a sales dialogue as a typed state graph and
// advances through it one classified intent at a time.
package flow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/salespilot/services/salesbot/intent"
)

// State machine actions. Policy overrides may substitute any of these.
const (
	ActionContinueGoal    = "continue_current_goal"
	ActionAskMissing      = "ask_missing_data"
	ActionHandleObjection = "handle_objection"
	ActionAnswerPricing   = "answer_with_pricing_direct"
	ActionPresent         = "present_solution"
	ActionCollectContact  = "collect_contact"
	ActionSoftClose       = "soft_close"
	ActionClarifyIntent   = "clarify_intent"
	ActionGoBack          = "go_back"
)

// Canonical SPIN state names.
const (
	StateGreeting          = "greeting"
	StateSpinSituation     = "spin_situation"
	StateSpinProblem       = "spin_problem"
	StateSpinImplication   = "spin_implication"
	StateSpinNeedPayoff    = "spin_need_payoff"
	StatePresentation      = "presentation"
	StateObjectionHandling = "objection_handling"
	StateClose             = "close"
	StateContactCollection = "contact_collection"
)

// Transition is one outgoing edge keyed by intent.
type Transition struct {
	NextState string `yaml:"next_state"`
	Action    string `yaml:"action"`
}

// StateConfig declares one state of the graph.
type StateConfig struct {
	Phase             string                `yaml:"phase"`
	Goal              string                `yaml:"goal"`
	RequiredData      []string              `yaml:"required_data"`
	OptionalData      []string              `yaml:"optional_data"`
	Transitions       map[string]Transition `yaml:"transitions"`
	IsFinal           bool                  `yaml:"is_final"`
	IsTerminalSuccess bool                  `yaml:"is_terminal_success"`
}

// Config is a named flow graph.
type Config struct {
	Name        string                 `yaml:"name"`
	EntryPoints map[string]string      `yaml:"entry_points"`
	PhaseOrder  []string               `yaml:"phase_order"`
	StateOrder  []string               `yaml:"state_order"`
	States      map[string]StateConfig `yaml:"states"`
}

// Get returns a state's config.
func (c Config) Get(state string) (StateConfig, bool) {
	sc, ok := c.States[state]
	return sc, ok
}

// Entry resolves the entry state for a persona, falling back to the
// default entry point.
func (c Config) Entry(persona string) string {
	if s, ok := c.EntryPoints[persona]; ok {
		return s
	}
	return c.EntryPoints["default"]
}

// PhaseFor returns the phase label of a state, or "".
func (c Config) PhaseFor(state string) string {
	if sc, ok := c.States[state]; ok {
		return sc.Phase
	}
	return ""
}

// StateIndex positions each state on the funnel for delta computation.
func (c Config) StateIndex() map[string]int {
	out := make(map[string]int, len(c.StateOrder))
	for i, s := range c.StateOrder {
		out[s] = i
	}
	return out
}

// Validate checks referential integrity of the graph.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("flow has no name")
	}
	entry := c.Entry("default")
	if _, ok := c.States[entry]; !ok {
		return fmt.Errorf("flow %s: default entry point %q is not a state", c.Name, entry)
	}
	for name, sc := range c.States {
		for in, tr := range sc.Transitions {
			if _, ok := c.States[tr.NextState]; !ok {
				return fmt.Errorf("flow %s: state %s transition %s targets unknown state %q",
					c.Name, name, in, tr.NextState)
			}
		}
	}
	for _, s := range c.StateOrder {
		if _, ok := c.States[s]; !ok {
			return fmt.Errorf("flow %s: state_order references unknown state %q", c.Name, s)
		}
	}
	return nil
}

// Load reads a flow definition from a YAML file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading flow config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parsing flow config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// SpinSelling returns the built-in default flow.
func SpinSelling() Config {
	advanceOn := func(next string, extra map[string]Transition) map[string]Transition {
		out := map[string]Transition{
			intent.Agreement:       {NextState: next, Action: ActionContinueGoal},
			intent.InfoProvided:    {NextState: next, Action: ActionContinueGoal},
			intent.DemoRequest:     {NextState: StatePresentation, Action: ActionPresent},
			intent.ContactProvided: {NextState: StateContactCollection, Action: ActionCollectContact},
			intent.Rejection:       {NextState: StateClose, Action: ActionSoftClose},
			intent.QuestionPricing: {NextState: StatePresentation, Action: ActionAnswerPricing},
		}
		for _, obj := range []string{
			intent.ObjectionPrice, intent.ObjectionCompetitor, intent.ObjectionNoTime,
			intent.ObjectionThink, intent.ObjectionNoNeed, intent.ObjectionTrust,
			intent.ObjectionTiming, intent.ObjectionComplexity,
		} {
			out[obj] = Transition{NextState: StateObjectionHandling, Action: ActionHandleObjection}
		}
		for k, v := range extra {
			out[k] = v
		}
		return out
	}

	return Config{
		Name:        "spin_selling",
		EntryPoints: map[string]string{"default": StateGreeting},
		PhaseOrder:  []string{"greeting", "situation", "problem", "implication", "need_payoff", "presentation", "close", "contact"},
		StateOrder: []string{
			StateGreeting, StateSpinSituation, StateSpinProblem, StateSpinImplication,
			StateSpinNeedPayoff, StatePresentation, StateObjectionHandling, StateClose,
			StateContactCollection,
		},
		States: map[string]StateConfig{
			StateGreeting: {
				Phase:       "greeting",
				Goal:        "установить контакт и узнать компанию",
				Transitions: advanceOn(StateSpinSituation, map[string]Transition{
					intent.Greeting: {NextState: StateSpinSituation, Action: ActionContinueGoal},
				}),
			},
			StateSpinSituation: {
				Phase:        "situation",
				Goal:         "понять контекст бизнеса клиента",
				RequiredData: []string{intent.FieldCompanyName, intent.FieldCompanySize},
				OptionalData: []string{intent.FieldIndustry, intent.FieldRole},
				Transitions:  advanceOn(StateSpinProblem, nil),
			},
			StateSpinProblem: {
				Phase:        "problem",
				Goal:         "выявить главную боль",
				RequiredData: []string{intent.FieldPainCategory},
				OptionalData: []string{intent.FieldPainPoints},
				Transitions:  advanceOn(StateSpinImplication, nil),
			},
			StateSpinImplication: {
				Phase:       "implication",
				Goal:        "показать цену бездействия",
				Transitions: advanceOn(StateSpinNeedPayoff, nil),
			},
			StateSpinNeedPayoff: {
				Phase:       "need_payoff",
				Goal:        "сформировать ценность решения",
				Transitions: advanceOn(StatePresentation, nil),
			},
			StatePresentation: {
				Phase:       "presentation",
				Goal:        "показать решение под боль клиента",
				Transitions: advanceOn(StateClose, nil),
			},
			StateObjectionHandling: {
				Phase: "presentation",
				Goal:  "снять возражение и вернуться к презентации",
				Transitions: advanceOn(StatePresentation, map[string]Transition{
					intent.Agreement: {NextState: StatePresentation, Action: ActionContinueGoal},
				}),
			},
			StateClose: {
				Phase:   "close",
				Goal:    "договориться о следующем шаге",
				IsFinal: false,
				Transitions: advanceOn(StateContactCollection, map[string]Transition{
					intent.Agreement: {NextState: StateContactCollection, Action: ActionCollectContact},
				}),
			},
			StateContactCollection: {
				Phase:             "contact",
				Goal:              "получить контакт для связи",
				RequiredData:      []string{intent.FieldContactInfo},
				IsFinal:           true,
				IsTerminalSuccess: true,
				Transitions:       map[string]Transition{},
			},
		},
	}
}
