// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/salespilot/services/salesbot/bot"
	"github.com/AleutianAI/salespilot/services/salesbot/config"
	"github.com/AleutianAI/salespilot/services/salesbot/flow"
	"github.com/AleutianAI/salespilot/services/salesbot/handlers"
	"github.com/AleutianAI/salespilot/services/salesbot/intent"
	"github.com/AleutianAI/salespilot/services/salesbot/llm"
	"github.com/AleutianAI/salespilot/services/salesbot/middleware"
	"github.com/AleutianAI/salespilot/services/salesbot/session"
)

const testAPIKey = "secret-key"

type staticBackend struct{ reply string }

func (s staticBackend) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return s.reply, nil
}
func (s staticBackend) HealthCheck(ctx context.Context) bool { return true }
func (s staticBackend) ModelName() string                    { return "static" }

func botDepsFor(t *testing.T) bot.Deps {
	t.Helper()
	flags := config.NewFlags(nil)
	for _, name := range []string{
		config.FlagSemanticTone, config.FlagLLMTone,
		config.FlagSemanticIntent, config.FlagLLMIntent,
		config.FlagBoundaryRepair, config.FlagHistoryCompaction,
	} {
		flags.Set(name, false)
	}
	client := llm.NewClient(staticBackend{reply: "Расскажите, пожалуйста, немного о вашей компании."},
		llm.RetryConfig{MaxRetries: 0, InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: time.Millisecond},
		llm.DefaultBreakerConfig(), nil)
	return bot.Deps{
		Flags:      flags,
		Thresholds: config.DefaultFrustrationThresholds(),
		LLM:        client,
	}
}

func testEngine(t *testing.T) (*gin.Engine, *session.SQLStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	deps := botDepsFor(t)
	dir := t.TempDir()
	buffer, err := session.OpenBuffer(filepath.Join(dir, "buffer.db"), nil)
	if err != nil {
		t.Fatalf("open buffer: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	locks, err := session.NewLockManager(filepath.Join(dir, "locks"), nil)
	if err != nil {
		t.Fatalf("lock manager: %v", err)
	}
	store, err := session.OpenSQLStore(filepath.Join(dir, "store.db"), nil)
	if err != nil {
		t.Fatalf("open sql store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	mgr := session.NewManager(session.DefaultManagerConfig(), deps, nil, buffer, store, locks, nil)
	h := handlers.New(mgr, store, deps.LLM, "test", nil)
	return New(h, testAPIKey, nil), store
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func processBody(sessionID, userID, text string) map[string]any {
	return map[string]any{
		"channel":    "web",
		"session_id": sessionID,
		"user_id":    userID,
		"message":    map[string]any{"text": text, "timestamp_ms": time.Now().UnixMilli()},
	}
}

func TestHealthIsPublic(t *testing.T) {
	engine, _ := testEngine(t)

	w := doJSON(t, engine, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["model"] != "static" {
		t.Errorf("body = %v", body)
	}
}

func TestMetricsIsPublic(t *testing.T) {
	engine, _ := testEngine(t)

	w := doJSON(t, engine, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestProcessRejectsMissingBearer(t *testing.T) {
	engine, _ := testEngine(t)

	for _, tc := range []struct {
		name  string
		token string
	}{
		{"no token", ""},
		{"wrong token", "not-the-key"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, engine, http.MethodPost, "/api/v1/process", tc.token,
				processBody("s-1", "acme", "Здравствуйте"))
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			var body middleware.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Code != middleware.CodeUnauthorized {
				t.Errorf("code = %q", body.Error.Code)
			}
		})
	}
}

func TestProcessRejectsBadSchema(t *testing.T) {
	engine, _ := testEngine(t)

	body := processBody("s-1", "acme", "Здравствуйте")
	delete(body, "session_id")
	w := doJSON(t, engine, http.MethodPost, "/api/v1/process", testAPIKey, body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp middleware.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != middleware.CodeBadRequest {
		t.Errorf("code = %q", resp.Error.Code)
	}
}

func TestProcessServesTurn(t *testing.T) {
	engine, _ := testEngine(t)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/process", testAPIKey,
		processBody("s-1", "acme", "Здравствуйте"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp handlers.ProcessResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer == "" {
		t.Error("empty answer")
	}
	if resp.Meta.Model != "static" {
		t.Errorf("model = %q", resp.Meta.Model)
	}
}

func TestProcessResetCommand(t *testing.T) {
	engine, _ := testEngine(t)

	if w := doJSON(t, engine, http.MethodPost, "/api/v1/process", testAPIKey,
		processBody("s-1", "acme", "Здравствуйте")); w.Code != http.StatusOK {
		t.Fatalf("turn status = %d", w.Code)
	}
	w := doJSON(t, engine, http.MethodPost, "/api/v1/process", testAPIKey,
		processBody("s-1", "acme", "/reset"))
	if w.Code != http.StatusOK {
		t.Fatalf("reset status = %d", w.Code)
	}
	var resp handlers.ProcessResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer == "" {
		t.Error("empty reset answer")
	}
}

func TestUserProfileEndpoint(t *testing.T) {
	engine, store := testEngine(t)
	ctx := context.Background()

	// Drive a turn so a snapshot exists, then project it to the store.
	if w := doJSON(t, engine, http.MethodPost, "/api/v1/process", testAPIKey,
		processBody("s-1", "acme", "Здравствуйте")); w.Code != http.StatusOK {
		t.Fatalf("turn status = %d", w.Code)
	}

	b := bot.New(bot.Options{ConversationID: "s-1", ClientID: "acme", FlowName: "spin_selling"},
		flow.SpinSelling(), botDepsFor(t))
	b.Process(ctx, "Здравствуйте")
	snap, tail := b.ToSnapshot(ctx, false, 0)
	snap.StateMachine.Collected = map[string]any{intent.FieldCompanyName: "Ромашка"}
	if err := store.Put(ctx, session.TenantKey("acme", "s-1"),
		session.Entry{Snapshot: snap, Tail: tail}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	w := doJSON(t, engine, http.MethodGet, "/api/v1/users/acme/profile", testAPIKey, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp handlers.ProfileResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.UserID != "acme" || len(resp.Profiles) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Profiles[0].CompanyName != "Ромашка" {
		t.Errorf("company = %q", resp.Profiles[0].CompanyName)
	}

	if w := doJSON(t, engine, http.MethodGet, "/api/v1/users/nobody/profile", testAPIKey, nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown user status = %d, want 404", w.Code)
	}
}
