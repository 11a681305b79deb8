// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package generate turns a state-machine action into Russian response
// text: template selection, KB fact injection, LLM drafting, then a
// deterministic post-processing chain.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/AleutianAI/salespilot/services/salesbot/flow"
	"github.com/AleutianAI/salespilot/services/salesbot/intent"
	"github.com/AleutianAI/salespilot/services/salesbot/kb"
	"github.com/AleutianAI/salespilot/services/salesbot/llm"
	"github.com/AleutianAI/salespilot/services/salesbot/policy"
)

// historyTail bounds the compact history block in the prompt.
const historyTail = 4

// TextGenerator is the LLM surface the generator drafts with.
// *llm.Client satisfies it.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, opts llm.GenerateOpts) string
}

// HistoryTurn is one user/bot exchange for prompt assembly.
type HistoryTurn struct {
	User string
	Bot  string
}

// Context carries everything one generation needs.
type Context struct {
	UserMessage     string
	Intent          string
	State           string
	Goal            string
	History         []HistoryTurn
	CollectedData   map[string]any
	MissingData     []string
	Directives      policy.ResponseDirectives
	ReasonCodes     []string
	ObjectionParts  []string
	LastBotResponse string
}

// Generator drafts and post-processes responses.
type Generator struct {
	llm            TextGenerator
	retriever      kb.Retriever
	diversity      *Diversity
	dedupThreshold float64
	logger         *slog.Logger
	factsInjected  bool
}

// New wires a generator. retriever may be nil; facts are then omitted.
func New(llmClient TextGenerator, retriever kb.Retriever, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		llm:            llmClient,
		retriever:      retriever,
		diversity:      NewDiversity(),
		dedupThreshold: DefaultDedupThreshold,
		logger:         logger,
	}
}

// Diversity exposes the rotation engine for snapshotting.
func (g *Generator) Diversity() *Diversity { return g.diversity }

// FactsInjected reports whether the most recent Generate call put
// retrieved KB facts into the prompt.
func (g *Generator) FactsInjected() bool { return g.factsInjected }

// Generate produces the response text for one turn.
func (g *Generator) Generate(ctx context.Context, action string, gctx Context) string {
	key := templateKey(action, gctx.ReasonCodes)

	g.factsInjected = false
	var draft string
	if len(gctx.ObjectionParts) > 0 && (key == flow.ActionHandleObjection || key == flow.ActionSoftClose) {
		// The objection handler already produced deterministic parts.
		draft = strings.Join(gctx.ObjectionParts, " ")
	} else {
		facts := g.retrieveFacts(ctx, key, gctx)
		prompt := buildPrompt(key, gctx, facts)
		draft = g.llm.Generate(ctx, prompt, llm.GenerateOpts{State: gctx.State, AllowFallback: true})
	}
	if draft == "" {
		draft = llm.FallbackText(gctx.State)
	}

	return g.postProcess(draft, gctx)
}

func (g *Generator) retrieveFacts(ctx context.Context, key string, gctx Context) string {
	if g.retriever == nil || !infoSeekingTemplates[key] {
		return ""
	}
	facts, _, err := g.retriever.RetrieveWithURLs(ctx, kb.Query{
		Message: gctx.UserMessage,
		Intent:  gctx.Intent,
		State:   gctx.State,
		TopK:    3,
	})
	if err != nil {
		g.logger.Warn("fact retrieval failed", "intent", gctx.Intent, "error", err)
		return ""
	}
	facts = greetingPrefixRe.ReplaceAllString(facts, "")
	g.factsInjected = facts != ""
	return facts
}

func buildPrompt(key string, gctx Context, facts string) string {
	var b strings.Builder
	b.WriteString("Ты — менеджер по продажам CRM-системы для бизнеса в Казахстане. Пиши по-русски, кратко, без канцелярита.\n\n")
	fmt.Fprintf(&b, "Задача: %s\n", promptTemplates[key])
	if gctx.Goal != "" {
		fmt.Fprintf(&b, "Цель этапа: %s\n", gctx.Goal)
	}
	if gctx.Directives.Instruction != "" {
		fmt.Fprintf(&b, "Стиль: %s\n", gctx.Directives.Instruction)
	}
	if facts != "" {
		fmt.Fprintf(&b, "\nФакты (только из них бери цифры и названия):\n%s\n", facts)
	}
	if len(gctx.MissingData) > 0 {
		fmt.Fprintf(&b, "\nЕщё не известно: %s\n", strings.Join(gctx.MissingData, ", "))
	}
	if tail := historyBlock(gctx.History); tail != "" {
		fmt.Fprintf(&b, "\nПоследние реплики:\n%s", tail)
	}
	fmt.Fprintf(&b, "\nКлиент: %s\nМенеджер:", gctx.UserMessage)
	return b.String()
}

func historyBlock(history []HistoryTurn) string {
	if len(history) > historyTail {
		history = history[len(history)-historyTail:]
	}
	var b strings.Builder
	for _, turn := range history {
		if turn.User != "" {
			fmt.Fprintf(&b, "Клиент: %s\n", turn.User)
		}
		if turn.Bot != "" {
			fmt.Fprintf(&b, "Менеджер: %s\n", turn.Bot)
		}
	}
	return b.String()
}

// postProcess applies, in order: opening diversity, repeat rephrasing,
// question de-duplication, apology insertion, CTA suffix.
func (g *Generator) postProcess(draft string, gctx Context) string {
	out := g.diversity.ReplaceBannedOpening(draft)

	if gctx.LastBotResponse != "" && Jaccard(out, gctx.LastBotResponse) > g.dedupThreshold {
		out = g.diversity.RephraseRepeat(out)
	}

	out = stripKnownQuestions(out, gctx.CollectedData)

	if gctx.Directives.ShouldApologize && !apologyRe.MatchString(out) {
		out = "Извините, если что-то прозвучало неясно. " + out
	}

	if cta := ctaFor(gctx.State, gctx.CollectedData); cta != "" && !strings.HasSuffix(strings.TrimSpace(out), "?") {
		out = strings.TrimSpace(out) + " " + cta
	}
	return strings.TrimSpace(out)
}

var apologyRe = regexp.MustCompile(`(?i)извин|прошу прощения|приношу извинения`)

// questionProbes recognizes questions that re-ask for data we already
// hold. Sentence-level: a matching question sentence is dropped.
var questionProbes = map[string]*regexp.Regexp{
	intent.FieldCompanyName:  regexp.MustCompile(`(?i)как называется|название (?:вашей )?компании`),
	intent.FieldCompanySize:  regexp.MustCompile(`(?i)сколько (?:человек|сотрудников)|размер (?:команды|компании)`),
	intent.FieldPainCategory: regexp.MustCompile(`(?i)какие (?:сложности|проблемы|трудности)`),
	intent.FieldContactInfo:  regexp.MustCompile(`(?i)(?:оставьте|пришлите|продиктуйте)[^.!?]{0,30}(?:телефон|контакт|почту)|как с вами связаться`),
	intent.FieldIndustry:     regexp.MustCompile(`(?i)в какой (?:сфере|отрасли)`),
}

var sentenceRe = regexp.MustCompile(`(?m)[^.!?\n]+[.!?]?\s*`)

func stripKnownQuestions(text string, collected map[string]any) string {
	if len(collected) == 0 {
		return text
	}
	var toStrip []*regexp.Regexp
	for field, re := range questionProbes {
		if v, ok := collected[field]; ok && v != nil && v != "" {
			toStrip = append(toStrip, re)
		}
	}
	if len(toStrip) == 0 {
		return text
	}
	var b strings.Builder
	for _, sentence := range sentenceRe.FindAllString(text, -1) {
		if strings.Contains(sentence, "?") && matchesAny(sentence, toStrip) {
			continue
		}
		b.WriteString(sentence)
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		// Never strip a response down to nothing.
		return text
	}
	return out
}

func matchesAny(s string, res []*regexp.Regexp) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// ctaStates get a closing call-to-action when the draft does not
// already end in a question.
var ctaStates = map[string]bool{
	flow.StateSpinNeedPayoff: true,
	flow.StatePresentation:   true,
	flow.StateClose:          true,
}

func ctaFor(state string, collected map[string]any) string {
	if !ctaStates[state] {
		return ""
	}
	if pain, ok := collected[intent.FieldPainCategory].(string); ok && pain != "" {
		return "Показать на примере, как это закрывает вашу задачу?"
	}
	if state == flow.StateClose {
		return "Договоримся о коротком демо?"
	}
	return "Хотите посмотреть, как это работает вживую?"
}
