// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

// OpenAIBackend talks to any OpenAI-compatible chat completion endpoint
// (OpenAI, vLLM, Ollama's /v1, llama.cpp server).
type OpenAIBackend struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// OpenAIBackendConfig configures the backend connection.
type OpenAIBackendConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Logger  *slog.Logger
}

// NewOpenAIBackend creates a backend for the configured endpoint.
func NewOpenAIBackend(cfg OpenAIBackendConfig) (*OpenAIBackend, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model name is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	cfg.Logger.Info("initializing LLM backend", "model", cfg.Model, "base_url", cfg.BaseURL)
	return &OpenAIBackend{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: cfg.Logger,
	}, nil
}

// Generate implements the Backend interface.
func (o *OpenAIBackend) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	o.logger.Debug("LLM response received",
		"finish_reason", resp.Choices[0].FinishReason, "model", o.model)
	return resp.Choices[0].Message.Content, nil
}

// HealthCheck implements the Backend interface via the models endpoint.
func (o *OpenAIBackend) HealthCheck(ctx context.Context) bool {
	_, err := o.client.ListModels(ctx)
	if err != nil {
		o.logger.Warn("LLM health check failed", "error", err)
		return false
	}
	return true
}

// ModelName implements the Backend interface.
func (o *OpenAIBackend) ModelName() string { return o.model }
