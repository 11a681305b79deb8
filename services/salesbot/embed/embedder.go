// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embed provides sentence embeddings for the semantic tone and
// intent tiers. The production implementation rides on langchaingo's
// Ollama embedder; tests use a deterministic fake.
package embed

import (
	"context"
	"fmt"
	"math"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Embedder turns a sentence into a normalized dense vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// OllamaEmbedder wraps a langchaingo Ollama embedding model.
type OllamaEmbedder struct {
	inner *embeddings.EmbedderImpl
}

// NewOllamaEmbedder connects to an Ollama server for the given model.
func NewOllamaEmbedder(serverURL, model string) (*OllamaEmbedder, error) {
	client, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("embed: connecting to ollama: %w", err)
	}
	inner, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("embed: creating embedder: %w", err)
	}
	return &OllamaEmbedder{inner: inner}, nil
}

// EmbedQuery implements Embedder. The returned vector is L2-normalized
// so cosine similarity reduces to a dot product.
func (e *OllamaEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: query embedding: %w", err)
	}
	Normalize(vec)
	return vec, nil
}

// Normalize scales vec to unit length in place. Zero vectors are left
// untouched.
func Normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

// Cosine returns the cosine similarity of two normalized vectors.
// Mismatched lengths yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
