// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package boundary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/salespilot/services/salesbot/config"
)

// minUsableRunes is the floor below which a sanitized response is
// replaced by the deterministic fallback.
const minUsableRunes = 15

// Repairer is the LLM surface the validator uses for the single repair
// attempt. An empty return means the repair failed.
type Repairer interface {
	Repair(ctx context.Context, response string, violations []string, bctx Context) (string, error)
}

// Result is the validation outcome for one drafted response.
type Result struct {
	Response     string   `json:"response"`
	Violations   []string `json:"violations,omitempty"`
	RepairUsed   bool     `json:"repair_used,omitempty"`
	FallbackUsed bool     `json:"fallback_used,omitempty"`
}

// Validator is the last gate before a response leaves the bot.
type Validator struct {
	flags    *config.Flags
	repairer Repairer
	logger   *slog.Logger

	violationCtr metric.Int64Counter
	fallbackCtr  metric.Int64Counter
}

// NewValidator wires the validator. repairer may be nil, which
// disables LLM repair regardless of the flag.
func NewValidator(flags *config.Flags, repairer Repairer, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.GetMeterProvider().Meter("salespilot/boundary")
	violationCtr, _ := meter.Int64Counter("salesbot_boundary_violations_total",
		metric.WithDescription("Boundary violations detected, by type"))
	fallbackCtr, _ := meter.Int64Counter("salesbot_boundary_fallbacks_total",
		metric.WithDescription("Responses replaced by the deterministic fallback"))
	return &Validator{
		flags:        flags,
		repairer:     repairer,
		logger:       logger,
		violationCtr: violationCtr,
		fallbackCtr:  fallbackCtr,
	}
}

// Validate detects violations and resolves them. Clean responses pass
// through untouched. Soft violations get one LLM repair attempt; hard
// hallucinations and failed repairs are sanitized deterministically.
// The result is never longer than the input unless it is the fallback.
func (v *Validator) Validate(ctx context.Context, response string, bctx Context) Result {
	violations := Detect(response, bctx)
	if len(violations) == 0 {
		return Result{Response: response}
	}
	for _, viol := range violations {
		v.violationCtr.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", viol),
			attribute.String("state", bctx.State),
		))
	}
	v.logger.Warn("boundary violations detected",
		"violations", violations, "state", bctx.State, "intent", bctx.Intent)

	res := Result{Violations: violations}

	if v.repairable(violations) {
		if repaired := v.tryRepair(ctx, response, violations, bctx); repaired != "" {
			if left := Detect(repaired, bctx); len(left) == 0 {
				res.Response = repaired
				res.RepairUsed = true
				return res
			}
			v.logger.Warn("repair attempt left violations, sanitizing original")
		}
	}

	sanitized := Sanitize(response, violations, bctx)
	if len([]rune(sanitized)) >= minUsableRunes && !exceeds(sanitized, response) {
		res.Response = sanitized
		return res
	}

	if v.flags != nil && !v.flags.Enabled(config.FlagBoundaryFallback) {
		// Fallback disabled: ship the sanitized remnant as-is.
		res.Response = sanitized
		return res
	}
	res.Response = Fallback(bctx)
	res.FallbackUsed = true
	v.fallbackCtr.Add(ctx, 1, metric.WithAttributes(attribute.String("state", bctx.State)))
	return res
}

// repairable reports whether the LLM repair path is open: the flag is
// on, a repairer is wired, and no hard hallucination is present.
func (v *Validator) repairable(violations []string) bool {
	if v.repairer == nil {
		return false
	}
	if v.flags != nil && !v.flags.Enabled(config.FlagBoundaryRepair) {
		return false
	}
	return !HasHard(violations)
}

func (v *Validator) tryRepair(ctx context.Context, response string, violations []string, bctx Context) string {
	repaired, err := v.repairer.Repair(ctx, response, violations, bctx)
	if err != nil {
		v.logger.Warn("boundary repair failed", "error", err)
		return ""
	}
	return strings.TrimSpace(repaired)
}

// exceeds guards the contraction property: sanitized output must not
// outgrow its input.
func exceeds(sanitized, original string) bool {
	return len([]rune(sanitized)) > len([]rune(original))
}

// RepairPrompt builds the single-attempt repair instruction.
func RepairPrompt(response string, violations []string, bctx Context) string {
	var b strings.Builder
	b.WriteString("Перепиши ответ менеджера по продажам, устранив перечисленные проблемы. ")
	b.WriteString("Сохрани смысл и тон, ничего не придумывай, не добавляй новых фактов, цен и контактов.\n\n")
	fmt.Fprintf(&b, "Проблемы: %s\n", strings.Join(violations, ", "))
	if bctx.RetrievedFacts != "" {
		fmt.Fprintf(&b, "Разрешённые факты:\n%s\n", bctx.RetrievedFacts)
	}
	fmt.Fprintf(&b, "\nОтвет:\n%s\n\nИсправленный ответ:", response)
	return b.String()
}
