// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeBackend scripts a sequence of replies and errors.
type fakeBackend struct {
	replies []string
	errs    []error
	calls   int
	healthy bool
}

func (f *fakeBackend) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return "ok", nil
}

func (f *fakeBackend) HealthCheck(ctx context.Context) bool { return f.healthy }
func (f *fakeBackend) ModelName() string                    { return "fake-model" }

func newTestClient(backend Backend, breaker BreakerConfig) *Client {
	c := NewClient(backend, RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		Multiplier:   2,
		MaxDelay:     time.Millisecond,
	}, breaker, nil)
	c.sleep = func(time.Duration) {}
	return c
}

func TestGenerateSuccess(t *testing.T) {
	backend := &fakeBackend{replies: []string{"привет"}}
	c := newTestClient(backend, DefaultBreakerConfig())

	got := c.Generate(context.Background(), "prompt", GenerateOpts{State: "greeting", AllowFallback: true})
	if got != "привет" {
		t.Errorf("Generate = %q", got)
	}
	if s := c.Stats(); s.Successes != 1 || s.SuccessRate != 100 {
		t.Errorf("stats = %+v", s)
	}
}

func TestGenerateRetriesThenSucceeds(t *testing.T) {
	backend := &fakeBackend{
		errs:    []error{errors.New("timeout"), nil},
		replies: []string{"", "готово"},
	}
	c := newTestClient(backend, DefaultBreakerConfig())

	got := c.Generate(context.Background(), "p", GenerateOpts{AllowFallback: true})
	if got != "готово" {
		t.Errorf("Generate = %q", got)
	}
	if s := c.Stats(); s.Retries != 1 {
		t.Errorf("expected one retry, stats = %+v", s)
	}
}

func TestGenerateExhaustionUsesStateFallback(t *testing.T) {
	backend := &fakeBackend{errs: []error{
		errors.New("e1"), errors.New("e2"), errors.New("e3"),
	}}
	c := newTestClient(backend, BreakerConfig{Threshold: 100, Timeout: time.Minute})

	got := c.Generate(context.Background(), "p", GenerateOpts{State: "greeting", AllowFallback: true})
	if got != FallbackText("greeting") {
		t.Errorf("expected greeting fallback, got %q", got)
	}
	if s := c.Stats(); s.FallbackUses != 1 {
		t.Errorf("fallback not counted: %+v", s)
	}
}

func TestGenerateNoFallbackReturnsEmpty(t *testing.T) {
	backend := &fakeBackend{errs: []error{
		errors.New("e1"), errors.New("e2"), errors.New("e3"),
	}}
	c := newTestClient(backend, BreakerConfig{Threshold: 100, Timeout: time.Minute})

	if got := c.Generate(context.Background(), "p", GenerateOpts{AllowFallback: false}); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestCircuitOpensAndShortCircuits(t *testing.T) {
	backend := &fakeBackend{errs: []error{
		errors.New("e"), errors.New("e"), errors.New("e"),
	}}
	c := newTestClient(backend, BreakerConfig{Threshold: 3, Timeout: time.Hour})

	c.Generate(context.Background(), "p", GenerateOpts{AllowFallback: true})
	if c.BreakerState() != BreakerOpen {
		t.Fatalf("breaker state = %v, want open", c.BreakerState())
	}

	// Subsequent calls must not touch the backend while the window holds.
	callsBefore := backend.calls
	c.Generate(context.Background(), "p", GenerateOpts{AllowFallback: true})
	if backend.calls != callsBefore {
		t.Errorf("backend called while circuit open: %d -> %d", callsBefore, backend.calls)
	}
}

func TestHalfOpenSuccessClosesCircuit(t *testing.T) {
	b := NewCircuitBreaker(BreakerConfig{Threshold: 1, Timeout: time.Minute})
	now := time.Now()
	b.now = func() time.Time { return now }

	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatal("breaker should be open")
	}
	if b.Allow() {
		t.Fatal("open breaker must not allow before timeout")
	}

	now = now.Add(2 * time.Minute)
	if !b.Allow() {
		t.Fatal("breaker should allow a probe after timeout")
	}
	if b.State() != BreakerHalfOpen {
		t.Fatalf("state = %v, want half_open", b.State())
	}

	b.RecordSuccess()
	if b.State() != BreakerClosed {
		t.Fatal("success in half-open should close the circuit")
	}
	if b.failures != 0 {
		t.Fatal("failure count should be zeroed")
	}
}

func TestGenerateStructured(t *testing.T) {
	backend := &fakeBackend{replies: []string{"Вот ответ:\n```json\n{\"intent\": \"greeting\", \"confidence\": 0.9}\n```"}}
	c := newTestClient(backend, DefaultBreakerConfig())

	var out struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	if err := c.GenerateStructured(context.Background(), "p", &out); err != nil {
		t.Fatalf("GenerateStructured: %v", err)
	}
	if out.Intent != "greeting" || out.Confidence != 0.9 {
		t.Errorf("decoded %+v", out)
	}
}

func TestGenerateStructuredMalformed(t *testing.T) {
	backend := &fakeBackend{replies: []string{"no json here"}}
	c := newTestClient(backend, DefaultBreakerConfig())

	var out map[string]any
	if err := c.GenerateStructured(context.Background(), "p", &out); err == nil {
		t.Error("expected error for reply without JSON")
	}
}

func TestSuccessRateZeroTraffic(t *testing.T) {
	s := &Stats{}
	if got := s.Snapshot(0).SuccessRate; got != 100 {
		t.Errorf("success rate on zero traffic = %v, want 100", got)
	}
}

func TestFallbackTextUnknownState(t *testing.T) {
	if FallbackText("nonexistent_state") != defaultFallbackText {
		t.Error("unknown state should get the default fallback")
	}
	if FallbackText("greeting") == defaultFallbackText {
		t.Error("greeting should have its own fallback")
	}
}
