// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bot glues the per-turn pipeline together: tone, guard,
// classification, objection handling, lead scoring, policy, the state
// machine, generation, and the boundary validator.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/salespilot/services/salesbot/boundary"
	"github.com/AleutianAI/salespilot/services/salesbot/compact"
	"github.com/AleutianAI/salespilot/services/salesbot/config"
	"github.com/AleutianAI/salespilot/services/salesbot/convo"
	"github.com/AleutianAI/salespilot/services/salesbot/embed"
	"github.com/AleutianAI/salespilot/services/salesbot/fallback"
	"github.com/AleutianAI/salespilot/services/salesbot/flow"
	"github.com/AleutianAI/salespilot/services/salesbot/generate"
	"github.com/AleutianAI/salespilot/services/salesbot/guard"
	"github.com/AleutianAI/salespilot/services/salesbot/intent"
	"github.com/AleutianAI/salespilot/services/salesbot/kb"
	"github.com/AleutianAI/salespilot/services/salesbot/lead"
	"github.com/AleutianAI/salespilot/services/salesbot/llm"
	"github.com/AleutianAI/salespilot/services/salesbot/objection"
	"github.com/AleutianAI/salespilot/services/salesbot/policy"
	"github.com/AleutianAI/salespilot/services/salesbot/tone"
)

// Conversation outcomes.
const (
	OutcomeSuccess   = "SUCCESS"
	OutcomeSoftClose = "SOFT_CLOSE"
	OutcomeRejected  = "REJECTED"
	OutcomeAbandoned = "ABANDONED"
)

// TurnResult is the per-turn answer of the pipeline.
type TurnResult struct {
	Response          string   `json:"response"`
	Intent            string   `json:"intent"`
	Action            string   `json:"action"`
	State             string   `json:"state"`
	IsFinal           bool     `json:"is_final"`
	SpinPhase         string   `json:"spin_phase"`
	Tone              string   `json:"tone"`
	FrustrationLevel  int      `json:"frustration_level"`
	LeadScore         int      `json:"lead_score"`
	LeadTemperature   string   `json:"lead_temperature"`
	ObjectionDetected bool     `json:"objection_detected"`
	ObjectionType     string   `json:"objection_type,omitempty"`
	FallbackUsed      bool     `json:"fallback_used"`
	FallbackTier      string   `json:"fallback_tier,omitempty"`
	KBUsed            bool     `json:"kb_used"`
	Options           []string `json:"options,omitempty"`
	Outcome           string   `json:"outcome,omitempty"`
	Trace             *Trace   `json:"decision_trace,omitempty"`
}

// Options identifies one conversation.
type Options struct {
	ConversationID string
	ClientID       string
	FlowName       string
	ConfigName     string
	Persona        string
}

// Deps are the shared services a bot is wired with. LLM must be
// non-nil; Embedder and Retriever may be nil, disabling the semantic
// tiers and fact injection respectively.
type Deps struct {
	Flags      *config.Flags
	Thresholds config.FrustrationThresholds
	LLM        *llm.Client
	Embedder   embed.Embedder
	Retriever  kb.Retriever
	Compactor  *compact.Compactor
	GuardCfg   *guard.Config
	LeadCfg    *lead.Config
	Logger     *slog.Logger
}

// Bot owns all per-session state. Not safe for concurrent use; the
// session manager serializes access under the session lock.
type Bot struct {
	opts    Options
	flowCfg flow.Config
	deps    Deps
	leadCfg lead.Config

	tone        *tone.Analyzer
	classifier  *intent.Classifier
	disambig    *intent.DisambigEngine
	objDetector *objection.Detector
	objHandler  *objection.Handler
	scorer      *lead.Scorer
	window      *convo.Window
	guard       *guard.Guard
	fallback    *fallback.Handler
	policy      *policy.DialoguePolicy
	machine     *flow.Machine
	generator   *generate.Generator
	validator   *boundary.Validator
	compactor   *compact.Compactor

	tracker *IntentTracker
	metrics *Metrics

	history        []compact.Turn
	historyCompact *compact.Compact
	historyMeta    *compact.Meta

	logger *slog.Logger
}

// toneLLM adapts the resilient client to the tone tier interface.
type toneLLM struct{ c *llm.Client }

func (t toneLLM) Generate(ctx context.Context, prompt string, opts tone.GeneratorOpts) string {
	return t.c.Generate(ctx, prompt, llm.GenerateOpts{State: opts.State, AllowFallback: opts.AllowFallback})
}

// llmRepairer is the boundary validator's single-attempt repair path.
type llmRepairer struct{ c *llm.Client }

func (r llmRepairer) Repair(ctx context.Context, response string, violations []string, bctx boundary.Context) (string, error) {
	out := r.c.Generate(ctx, boundary.RepairPrompt(response, violations, bctx),
		llm.GenerateOpts{AllowFallback: false})
	if strings.TrimSpace(out) == "" {
		return "", errors.New("repair generation returned nothing")
	}
	return out, nil
}

// New wires a fresh bot at the flow's entry state.
func New(opts Options, flowCfg flow.Config, deps Deps) *Bot {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("conversation_id", opts.ConversationID, "client_id", opts.ClientID)

	var semantic *intent.SemanticClassifier
	if deps.Embedder != nil {
		semantic = intent.NewSemanticClassifier(deps.Embedder, logger)
	}

	var toneGen tone.Generator
	var structGen intent.StructuredGenerator
	var repairer boundary.Repairer
	if deps.LLM != nil {
		toneGen = toneLLM{c: deps.LLM}
		structGen = deps.LLM
		repairer = llmRepairer{c: deps.LLM}
	}

	guardCfg := guard.DefaultConfig()
	if deps.GuardCfg != nil {
		guardCfg = *deps.GuardCfg
	}
	leadCfg := lead.DefaultConfig()
	if deps.LeadCfg != nil {
		leadCfg = *deps.LeadCfg
	}

	compactor := deps.Compactor
	if compactor == nil && deps.LLM != nil {
		compactor = compact.New(deps.LLM, "", logger)
	}

	b := &Bot{
		opts:        opts,
		flowCfg:     flowCfg,
		deps:        deps,
		leadCfg:     leadCfg,
		tone:        tone.NewAnalyzer(deps.Flags, deps.Thresholds, deps.Embedder, toneGen, logger),
		classifier:  intent.NewClassifier(deps.Flags, structGen, semantic, logger),
		disambig:    intent.NewDisambigEngine(intent.DefaultDisambigConfig()),
		objDetector: objection.NewDetector(semantic, logger),
		objHandler:  objection.NewHandler(logger),
		scorer:      lead.NewScorer(leadCfg, logger),
		window:      convo.NewWindow(convo.DefaultWindowSize, flowCfg.StateIndex()),
		guard:       guard.New(guardCfg, deps.Thresholds, logger),
		fallback:    fallback.New(deps.Flags, deps.Thresholds, flow.StatePresentation, logger),
		policy:      policy.New(deps.Flags, deps.Thresholds, logger),
		generator:   generate.New(deps.LLM, deps.Retriever, logger),
		compactor:   compactor,
		tracker:     NewIntentTracker(),
		metrics:     NewMetrics(),
		logger:      logger,
	}
	b.validator = boundary.NewValidator(deps.Flags, repairer, logger)
	b.machine = flow.NewMachine(flowCfg, opts.Persona, b.guard, logger)
	return b
}

// Process runs the full pipeline for one user message.
func (b *Bot) Process(ctx context.Context, userMessage string) TurnResult {
	start := time.Now()
	b.metrics.recordTurn()
	b.scorer.ApplyTurnDecay()
	defer b.scorer.EndTurn()

	prevState := b.machine.Current()
	toneRes := b.tone.Analyze(ctx, userMessage)
	verdict := b.guard.Check(prevState, userMessage, toneRes.FrustrationLevel,
		b.tracker.LastIntent, toneRes.PreInterventionTriggered)

	trace := &Trace{TurnNumber: b.guard.TurnCount(), Tone: toneRes, Guard: verdict}

	if verdict.Intervention != "" {
		if res, done := b.handleIntervention(verdict, toneRes, userMessage, prevState, trace, start); done {
			return res
		}
		// A skip intervention moved the machine; the turn continues.
		prevState = b.machine.Current()
	}

	intentRes := b.classifier.Classify(ctx, userMessage, b.intentContext())
	trace.Intent = intentRes

	if b.machine.InDisambiguation() {
		resolved, ok := b.disambig.Resolve(userMessage, b.machine.DisambigOptions(),
			intentRes, b.machine.DisambigAttempts())
		if !ok {
			return b.reaskDisambiguation(userMessage, prevState, toneRes, trace, start)
		}
		b.machine.ExitDisambiguation()
		intentRes.Intent = resolved
	} else if b.deps.Flags.Enabled(config.FlagDisambiguation) {
		decision := b.disambig.Decide(intentRes)
		trace.Disambiguation = &decision
		switch decision.Action {
		case intent.ActionConfirm, intent.ActionDisambiguate:
			b.machine.EnterDisambiguation(decision.Options)
			return b.finishTurn(userMessage, decision.Question, intentRes,
				flow.ActionClarifyIntent, prevState, toneRes, nil, optionLabels(decision.Options), "", trace, start)
		case intent.ActionFallback:
			intentRes.Intent = intent.Unclear
		}
	}

	var det *objection.Detection
	if d, ok := b.objDetector.Detect(ctx, userMessage); ok {
		det = &d
		trace.Objection = det
		b.metrics.recordObjection(d.Type)
		if !intent.IsObjection(intentRes.Intent) {
			intentRes.Intent = d.Type
		}
	}

	if sig, ok := lead.SignalForIntent(intentRes.Intent); ok {
		b.scorer.AddSignal(sig)
	}
	trace.LeadScore = b.scorer.Score()
	trace.LeadTemperature = b.scorer.Temperature()

	env := b.buildEnvelope(intentRes.Intent, toneRes, verdict)
	override := b.policy.MaybeOverride(env)
	trace.PolicyOverride = override

	machineRes := b.machine.Process(intentRes.Intent, intentRes.ExtractedData, override)
	b.applyPhaseSkipping(&machineRes)
	trace.Transition = machineRes

	// Objection strategy, including the soft close on budget exhaustion.
	var objectionParts []string
	outcome := ""
	action := machineRes.Action
	if action == flow.ActionHandleObjection {
		objType := intentRes.Intent
		if det != nil {
			objType = det.Type
		}
		handled := b.objHandler.Handle(objType, machineRes.CollectedData)
		objectionParts = handled.ResponseParts
		if handled.ShouldSoftClose {
			action = flow.ActionSoftClose
			outcome = OutcomeSoftClose
			b.machine.JumpTo(flow.StateClose)
			machineRes.NextState = b.machine.Current()
			machineRes.SpinPhase = b.machine.Phase()
			machineRes.IsFinal = true
		}
	}

	directives := policy.Directives(env, b.deps.Thresholds)
	var reasonCodes []string
	if override != nil && override.Decision == policy.DecisionOverride {
		reasonCodes = override.ReasonCodes
	}

	text := b.generator.Generate(ctx, action, generate.Context{
		UserMessage:     userMessage,
		Intent:          intentRes.Intent,
		State:           machineRes.NextState,
		Goal:            machineRes.Goal,
		History:         b.promptHistory(),
		CollectedData:   machineRes.CollectedData,
		MissingData:     machineRes.MissingData,
		Directives:      directives,
		ReasonCodes:     reasonCodes,
		ObjectionParts:  objectionParts,
		LastBotResponse: b.lastBotResponse(),
	})

	bres := b.validator.Validate(ctx, text, boundary.Context{
		Intent:        intentRes.Intent,
		State:         prevState,
		Template:      action,
		UserMessage:   userMessage,
		TrustedText:   strings.Join(objectionParts, " "),
		CollectedData: machineRes.CollectedData,
		History:       b.userHistory(),
	})
	b.metrics.recordBoundary(bres.Violations, bres.RepairUsed, bres.FallbackUsed)
	trace.Violations = bres.Violations
	trace.RepairUsed = bres.RepairUsed
	trace.FallbackUsed = bres.FallbackUsed

	if outcome == "" {
		outcome = b.terminalOutcome(machineRes, intentRes.Intent)
	}

	res := b.finishTurn(userMessage, bres.Response, intentRes, action,
		prevState, toneRes, det, nil, "", trace, start)
	res.KBUsed = b.generator.FactsInjected()
	res.Outcome = outcome
	res.IsFinal = res.IsFinal || outcome != ""
	return res
}

// handleIntervention asks the fallback handler what to do with a guard
// verdict. Skip interventions move the machine and let the turn rejoin
// the pipeline; everything else answers the turn directly.
func (b *Bot) handleIntervention(verdict guard.Verdict, toneRes tone.Analysis,
	userMessage, prevState string, trace *Trace, start time.Time) (TurnResult, bool) {

	b.metrics.recordIntervention(verdict.Intervention)
	fctx := fallback.ContextFrom(b.machine.CollectedData(), toneRes.FrustrationLevel)
	fb := b.fallback.Get(verdict.Intervention, prevState, fctx)

	if fb.Action == fallback.ActionSkip && fb.NextState != "" {
		b.machine.JumpTo(fb.NextState)
		b.logger.Info("guard skip intervention",
			"tier", verdict.Intervention, "next_state", fb.NextState)
		return TurnResult{}, false
	}

	b.metrics.recordFallback(verdict.Intervention)
	outcome := ""
	if fb.Action == fallback.ActionClose {
		outcome = OutcomeSoftClose
	}

	res := b.finishTurn(userMessage, fb.Message,
		intent.Result{Intent: intent.Unclear}, fb.Action, prevState, toneRes,
		nil, fb.Options, verdict.Intervention, trace, start)
	res.FallbackUsed = true
	res.FallbackTier = verdict.Intervention
	res.Outcome = outcome
	res.IsFinal = res.IsFinal || outcome != ""
	return res, true
}

// reaskDisambiguation repeats the clarification question when the
// user's reply resolved nothing.
func (b *Bot) reaskDisambiguation(userMessage, prevState string, toneRes tone.Analysis,
	trace *Trace, start time.Time) TurnResult {

	options := b.machine.DisambigOptions()
	b.machine.EnterDisambiguation(options)
	question := disambigQuestion(options)
	return b.finishTurn(userMessage, question,
		intent.Result{Intent: intent.Unclear}, flow.ActionClarifyIntent,
		prevState, toneRes, nil, optionLabels(options), "", trace, start)
}

// finishTurn records history, episodic memory, and the tracker, and
// assembles the TurnResult. fallbackTier is empty except on fallback
// turns.
func (b *Bot) finishTurn(userMessage, response string,
	intentRes intent.Result, action, prevState string, toneRes tone.Analysis,
	det *objection.Detection, options []string, fallbackTier string,
	trace *Trace, start time.Time) TurnResult {

	nextState := b.machine.Current()
	turn := b.window.Add(convo.TurnInput{
		UserMessage:      userMessage,
		BotResponse:      response,
		Intent:           intentRes.Intent,
		Confidence:       intentRes.Confidence,
		Method:           intentRes.MethodUsed,
		Action:           action,
		PrevState:        prevState,
		NextState:        nextState,
		Extracted:        intentRes.ExtractedData,
		IsDisambiguation: action == flow.ActionClarifyIntent,
		IsFallback:       fallbackTier != "",
		FallbackTier:     fallbackTier,
	})
	b.window.Episodic().UpdateProfile(intentRes.ExtractedData)
	b.window.Episodic().RecordActionOutcome(action, turn.Index, turn.TurnType == convo.TurnProgress)

	b.history = append(b.history, compact.Turn{User: userMessage, Bot: response})
	b.tracker.Record(intentRes.Intent, action)

	trace.DurationMillis = time.Since(start).Milliseconds()

	res := TurnResult{
		Response:         response,
		Intent:           intentRes.Intent,
		Action:           action,
		State:            nextState,
		IsFinal:          b.machine.IsTerminalSuccess(),
		SpinPhase:        b.machine.Phase(),
		Tone:             string(toneRes.Tone),
		FrustrationLevel: toneRes.FrustrationLevel,
		LeadScore:        b.scorer.Score(),
		LeadTemperature:  b.scorer.Temperature(),
		Options:          options,
		Trace:            trace,
	}
	if det != nil {
		res.ObjectionDetected = true
		res.ObjectionType = det.Type
	}
	return res
}

// applyPhaseSkipping jumps over SPIN phases a hot lead does not need.
func (b *Bot) applyPhaseSkipping(machineRes *flow.Result) {
	if !b.deps.Flags.Enabled(config.FlagLeadPhaseSkipping) {
		return
	}
	if machineRes.NextState == machineRes.PrevState {
		return
	}
	phase := b.machine.Phase()
	if !containsString(b.leadCfg.SkipPhases[b.scorer.Temperature()], phase) {
		return
	}
	prevPhase := b.flowCfg.PhaseFor(machineRes.PrevState)
	target, ok := b.scorer.NextPhase(prevPhase, b.flowCfg.PhaseOrder)
	if !ok {
		return
	}
	if state := b.stateForPhase(target); state != "" && b.machine.JumpTo(state) {
		b.logger.Info("phase skipped for hot lead",
			"skipped", phase, "target", target, "temperature", b.scorer.Temperature())
		machineRes.NextState = b.machine.Current()
		machineRes.SpinPhase = b.machine.Phase()
	}
}

func (b *Bot) stateForPhase(phase string) string {
	for _, state := range b.flowCfg.StateOrder {
		if b.flowCfg.PhaseFor(state) == phase {
			return state
		}
	}
	return ""
}

func (b *Bot) buildEnvelope(intentName string, toneRes tone.Analysis, verdict guard.Verdict) policy.ContextEnvelope {
	state := b.machine.Current()
	return policy.ContextEnvelope{
		State:             state,
		Phase:             b.machine.Phase(),
		CollectedData:     b.machine.CollectedData(),
		MissingData:       b.machine.MissingData(),
		TurnCount:         b.guard.TurnCount(),
		StateAttempts:     b.guard.StateAttempts(state),
		Tone:              toneRes,
		FrustrationLevel:  toneRes.FrustrationLevel,
		PreIntervention:   toneRes.PreInterventionTriggered,
		LastAction:        b.tracker.LastAction,
		LastIntent:        b.tracker.LastIntent,
		Intent:            intentName,
		Summary:           b.window.Summary(),
		LeadScore:         b.scorer.Score(),
		LeadTemperature:   b.scorer.Temperature(),
		GuardIntervention: verdict.Intervention,
	}
}

func (b *Bot) intentContext() intent.Context {
	return intent.Context{
		CurrentState:     b.machine.Current(),
		CurrentPhase:     b.machine.Phase(),
		CollectedData:    b.machine.CollectedData(),
		MissingData:      b.machine.MissingData(),
		LastAction:       b.tracker.LastAction,
		LastIntent:       b.tracker.LastIntent,
		TurnCount:        b.guard.TurnCount(),
		InDisambiguation: b.machine.InDisambiguation(),
		Summary:          b.window.Summary(),
	}
}

func (b *Bot) terminalOutcome(machineRes flow.Result, intentName string) string {
	if !machineRes.IsFinal {
		return ""
	}
	switch {
	case b.machine.IsTerminalSuccess():
		return OutcomeSuccess
	case intentName == intent.Rejection:
		return OutcomeRejected
	default:
		return OutcomeSoftClose
	}
}

// Reset reinitializes all per-session state, logging an abandoned
// outcome when the conversation had any turns.
func (b *Bot) Reset() {
	if b.guard.TurnCount() > 0 {
		b.logger.Info("conversation reset", "outcome", OutcomeAbandoned,
			"turns", b.guard.TurnCount())
	}
	fresh := New(b.opts, b.flowCfg, b.deps)
	*b = *fresh
}

func (b *Bot) promptHistory() []generate.HistoryTurn {
	out := make([]generate.HistoryTurn, 0, len(b.history))
	for _, t := range b.history {
		out = append(out, generate.HistoryTurn{User: t.User, Bot: t.Bot})
	}
	return out
}

func (b *Bot) lastBotResponse() string {
	if len(b.history) == 0 {
		return ""
	}
	return b.history[len(b.history)-1].Bot
}

func (b *Bot) userHistory() []string {
	out := make([]string, 0, len(b.history))
	for _, t := range b.history {
		out = append(out, t.User)
	}
	return out
}

// ConversationID returns the conversation identifier.
func (b *Bot) ConversationID() string { return b.opts.ConversationID }

// ClientID returns the owning tenant.
func (b *Bot) ClientID() string { return b.opts.ClientID }

// FlowName returns the flow this bot runs.
func (b *Bot) FlowName() string { return b.opts.FlowName }

// ConfigName returns the config label this bot was built with.
func (b *Bot) ConfigName() string { return b.opts.ConfigName }

// TurnCount exposes the guard's turn counter.
func (b *Bot) TurnCount() int { return b.guard.TurnCount() }

func disambigQuestion(options []intent.Option) string {
	var b strings.Builder
	b.WriteString("Уточните, пожалуйста, что вы имеете в виду:\n")
	for _, opt := range options {
		fmt.Fprintf(&b, "%d. %s\n", opt.Index, opt.Label)
	}
	return strings.TrimSpace(b.String())
}

func optionLabels(options []intent.Option) []string {
	out := make([]string, 0, len(options))
	for _, opt := range options {
		out = append(out, opt.Label)
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
