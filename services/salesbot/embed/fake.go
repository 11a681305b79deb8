// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embed

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// FakeEmbedder is a deterministic bag-of-words embedder for tests.
// Sentences sharing tokens get high cosine similarity; disjoint
// sentences get near zero. No network, no model.
type FakeEmbedder struct {
	// Dim is the vector dimensionality (default 256).
	Dim int
}

// EmbedQuery implements Embedder.
func (f *FakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	dim := f.Dim
	if dim <= 0 {
		dim = 256
	}
	vec := make([]float32, dim)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%dim] += 1
	}
	Normalize(vec)
	return vec, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
