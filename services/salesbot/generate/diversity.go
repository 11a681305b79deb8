// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generate

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultDedupThreshold is the Jaccard similarity above which a draft
// counts as a repeat of the previous bot response.
const DefaultDedupThreshold = 0.6

// bannedOpenings are filler openers models gravitate to. They are
// replaced with a rotated alternative.
var bannedOpenings = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^отличный вопрос[!.,]?\s*`),
	regexp.MustCompile(`(?i)^хороший вопрос[!.,]?\s*`),
	regexp.MustCompile(`(?i)^спасибо за (?:ваш )?вопрос[!.,]?\s*`),
	regexp.MustCompile(`(?i)^конечно[!.,]\s*`),
	regexp.MustCompile(`(?i)^безусловно[!.,]\s*`),
}

// Diversity rotates opening phrases per category so consecutive
// responses do not start the same way. Move-to-back on use.
type Diversity struct {
	rings map[string][]string
}

// Opening categories.
const (
	CategoryOpening = "opening"
	CategoryDedup   = "dedup"
)

// NewDiversity seeds the default rings.
func NewDiversity() *Diversity {
	return &Diversity{
		rings: map[string][]string{
			CategoryOpening: {
				"Смотрите:",
				"Если коротко:",
				"По сути:",
				"Давайте по порядку:",
			},
			CategoryDedup: {
				"Другими словами,",
				"Поясню иначе:",
				"Если взглянуть с другой стороны,",
			},
		},
	}
}

// Next returns the front phrase of the category ring and rotates it to
// the back. Unknown categories return "".
func (d *Diversity) Next(category string) string {
	ring, ok := d.rings[category]
	if !ok || len(ring) == 0 {
		return ""
	}
	head := ring[0]
	d.rings[category] = append(ring[1:], head)
	return head
}

// ReplaceBannedOpening swaps a filler opener for a rotated phrase.
func (d *Diversity) ReplaceBannedOpening(response string) string {
	for _, re := range bannedOpenings {
		if loc := re.FindStringIndex(response); loc != nil {
			rest := capitalizeFirst(strings.TrimSpace(response[loc[1]:]))
			opener := d.Next(CategoryOpening)
			if opener == "" {
				return rest
			}
			return opener + " " + lowerFirst(rest)
		}
	}
	return response
}

// RephraseRepeat prefixes a rotated reformulation marker when the draft
// repeats the previous response.
func (d *Diversity) RephraseRepeat(response string) string {
	opener := d.Next(CategoryDedup)
	if opener == "" {
		return response
	}
	return opener + " " + lowerFirst(response)
}

// Jaccard computes word-set similarity of two texts, case-folded.
func Jaccard(a, b string) float64 {
	as := wordSet(a)
	bs := wordSet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}
	inter := 0
	for w := range as {
		if bs[w] {
			inter++
		}
	}
	union := len(as) + len(bs) - inter
	return float64(inter) / float64(union)
}

var wordRe = regexp.MustCompile(`[\p{L}\d]+`)

func wordSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		set[w] = true
	}
	return set
}

// RingState serializes the rotation positions.
type RingState map[string][]string

// State exports the rings for a snapshot.
func (d *Diversity) State() RingState {
	out := RingState{}
	for cat, ring := range d.rings {
		out[cat] = append([]string(nil), ring...)
	}
	return out
}

// LoadState restores rotation positions; unknown categories are kept.
func (d *Diversity) LoadState(st RingState) {
	for cat, ring := range st {
		if len(ring) > 0 {
			d.rings[cat] = append([]string(nil), ring...)
		}
	}
}

func capitalizeFirst(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func lowerFirst(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
