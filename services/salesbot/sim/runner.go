// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sim

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/AleutianAI/salespilot/services/salesbot/bot"
	"github.com/AleutianAI/salespilot/services/salesbot/session"
)

// StepResult records one executed turn and any failed expectations.
type StepResult struct {
	Turn     int
	Message  string
	Result   bot.TurnResult
	Failures []string
}

// Report is the outcome of one scenario run.
type Report struct {
	Scenario  string
	SessionID string
	Steps     []StepResult
	Failed    int
}

// Passed reports whether every expectation held.
func (r Report) Passed() bool { return r.Failed == 0 }

// Runner drives scenarios through a session manager.
type Runner struct {
	manager *session.Manager
	logger  *slog.Logger
}

// NewRunner wires a runner.
func NewRunner(manager *session.Manager, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{manager: manager, logger: logger}
}

// Run executes the scenario against a fresh session and evaluates
// every step. A session-level error aborts the run; expectation
// failures do not.
func (r *Runner) Run(ctx context.Context, sc Scenario) (Report, error) {
	sessionID := "sim-" + uuid.NewString()
	clientID := sc.ClientID
	if clientID == "" {
		clientID = "sim"
	}
	opts := session.Options{ClientID: clientID, FlowName: sc.Flow}

	report := Report{Scenario: sc.Name, SessionID: sessionID}
	for i, step := range sc.Steps {
		res, err := r.manager.Process(ctx, sessionID, opts, step.Message)
		if err != nil {
			return report, fmt.Errorf("scenario %s turn %d: %w", sc.Name, i+1, err)
		}
		failures := step.evaluate(res)
		report.Steps = append(report.Steps, StepResult{
			Turn:     i + 1,
			Message:  step.Message,
			Result:   res,
			Failures: failures,
		})
		report.Failed += len(failures)

		r.logger.Debug("scenario turn",
			"scenario", sc.Name, "turn", i+1, "intent", res.Intent,
			"state", res.State, "failures", len(failures))
		if res.IsFinal && i < len(sc.Steps)-1 {
			r.logger.Info("scenario ended early",
				"scenario", sc.Name, "turn", i+1, "outcome", res.Outcome)
			break
		}
	}
	return report, nil
}

func (s Step) evaluate(res bot.TurnResult) []string {
	var fails []string
	if s.ExpectIntent != "" && res.Intent != s.ExpectIntent {
		fails = append(fails, fmt.Sprintf("intent = %q, want %q", res.Intent, s.ExpectIntent))
	}
	if s.ExpectState != "" && res.State != s.ExpectState {
		fails = append(fails, fmt.Sprintf("state = %q, want %q", res.State, s.ExpectState))
	}
	if s.ExpectTier != "" && res.FallbackTier != s.ExpectTier {
		fails = append(fails, fmt.Sprintf("tier = %q, want %q", res.FallbackTier, s.ExpectTier))
	}
	if s.ExpectOutcome != "" && res.Outcome != s.ExpectOutcome {
		fails = append(fails, fmt.Sprintf("outcome = %q, want %q", res.Outcome, s.ExpectOutcome))
	}
	if len(s.ExpectAny) > 0 && !containsAny(res.Response, s.ExpectAny) {
		fails = append(fails, fmt.Sprintf("reply mentions none of %v", s.ExpectAny))
	}
	return fails
}

func containsAny(text string, needles []string) bool {
	lower := strings.ToLower(text)
	for _, n := range needles {
		if strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// Summary renders a one-line-per-turn report for the CLI.
func (r Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario %s (session %s)\n", r.Scenario, r.SessionID)
	for _, step := range r.Steps {
		status := "ok"
		if len(step.Failures) > 0 {
			status = strings.Join(step.Failures, "; ")
		}
		fmt.Fprintf(&b, "  turn %2d  %-22s  %-24s  %s\n",
			step.Turn, step.Result.Intent, step.Result.State, status)
	}
	if r.Passed() {
		b.WriteString("PASS\n")
	} else {
		fmt.Fprintf(&b, "FAIL (%d failed expectations)\n", r.Failed)
	}
	return b.String()
}
