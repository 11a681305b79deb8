// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tone

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/AleutianAI/salespilot/services/salesbot/embed"
)

// semanticThreshold and semanticMargin gate an unambiguous tier-2 win.
const (
	semanticThreshold = 0.70
	semanticMargin    = 0.15
	ambiguityDamping  = 0.85
)

// toneExamples is the labeled bank the semantic tier compares against.
var toneExamples = map[Tone][]string{
	Frustrated: {
		"Я уже третий раз повторяю одно и то же",
		"Меня это очень раздражает",
		"Почему вы не отвечаете на мой вопрос",
		"Это просто невыносимо, ничего не получается",
	},
	Rushed: {
		"Давайте побыстрее, у меня мало времени",
		"Говорите сразу суть, без лишних слов",
		"У меня через пять минут встреча",
		"Можно сразу к делу",
	},
	Skeptical: {
		"Что-то мне не верится в такие обещания",
		"Все продавцы так говорят",
		"Чем докажете, что это работает",
		"Слишком хорошо, чтобы быть правдой",
	},
	Confused: {
		"Я не совсем понимаю, о чём речь",
		"Можете объяснить попроще",
		"Что вы имеете в виду",
		"Запутался в ваших тарифах",
	},
	Positive: {
		"Отлично, это то что нужно",
		"Спасибо, очень полезно",
		"Здорово, мне нравится",
		"Хорошо, договорились",
	},
	Interested: {
		"Расскажите подробнее про интеграции",
		"А как это работает с нашей системой",
		"Интересно, хочу узнать больше",
		"Какие ещё возможности есть",
	},
	Neutral: {
		"У нас компания из пятидесяти человек",
		"Мы работаем в сфере логистики",
		"Понятно",
		"Хорошо, я подумаю",
	},
}

// semanticTier scores a message against the example bank by cosine
// similarity of normalized embeddings, averaging the top-3 per tone.
type semanticTier struct {
	embedder embed.Embedder
	logger   *slog.Logger

	mu   sync.Mutex
	bank map[Tone][][]float32
}

func newSemanticTier(embedder embed.Embedder, logger *slog.Logger) *semanticTier {
	return &semanticTier{embedder: embedder, logger: logger}
}

// ensureBank lazily embeds the example sentences once.
func (s *semanticTier) ensureBank(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bank != nil {
		return nil
	}
	bank := make(map[Tone][][]float32, len(toneExamples))
	for toneName, examples := range toneExamples {
		vecs := make([][]float32, 0, len(examples))
		for _, ex := range examples {
			vec, err := s.embedder.EmbedQuery(ctx, ex)
			if err != nil {
				return err
			}
			vecs = append(vecs, vec)
		}
		bank[toneName] = vecs
	}
	s.bank = bank
	return nil
}

// classify returns the best tone, its (possibly damped) score, whether
// the result was ambiguous, and per-tone scores. ok=false means the
// tier failed outright (embedding error).
func (s *semanticTier) classify(ctx context.Context, message string) (best Tone, score float64, ambiguous bool, scores map[string]float64, ok bool) {
	if err := s.ensureBank(ctx); err != nil {
		s.logger.Warn("semantic tone bank unavailable", "error", err)
		return Neutral, 0, false, nil, false
	}
	query, err := s.embedder.EmbedQuery(ctx, message)
	if err != nil {
		s.logger.Warn("semantic tone embedding failed", "error", err)
		return Neutral, 0, false, nil, false
	}

	scores = make(map[string]float64, len(s.bank))
	for toneName, vecs := range s.bank {
		sims := make([]float64, 0, len(vecs))
		for _, v := range vecs {
			sims = append(sims, embed.Cosine(query, v))
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(sims)))
		top := sims
		if len(top) > 3 {
			top = top[:3]
		}
		var sum float64
		for _, v := range top {
			sum += v
		}
		scores[string(toneName)] = sum / float64(len(top))
	}

	best, second := Neutral, float64(0)
	bestScore := float64(-1)
	for toneName, sc := range scores {
		if sc > bestScore {
			second = bestScore
			bestScore = sc
			best = Tone(toneName)
		} else if sc > second {
			second = sc
		}
	}

	if bestScore >= semanticThreshold && bestScore-second >= semanticMargin {
		return best, bestScore, false, scores, true
	}
	return best, bestScore * ambiguityDamping, true, scores, true
}
