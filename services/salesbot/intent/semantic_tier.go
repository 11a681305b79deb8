// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/AleutianAI/salespilot/services/salesbot/embed"
)

// intentExamples is the labeled nearest-neighbor bank for tier 3.
var intentExamples = map[string][]string{
	Greeting: {
		"Здравствуйте, увидел вашу рекламу",
		"Добрый день, расскажите о продукте",
	},
	InfoProvided: {
		"У нас компания на сто человек, занимаемся доставкой",
		"Мы небольшой производитель мебели",
		"Работаем в рознице, три магазина",
	},
	QuestionPricing: {
		"Сколько будет стоить для нашей команды",
		"Какая цена подписки в месяц",
	},
	QuestionFeatures: {
		"Какие интеграции поддерживаются",
		"Умеет ли система строить отчёты",
	},
	QuestionGeneral: {
		"А как происходит внедрение",
		"Кто занимается обучением сотрудников",
	},
	DemoRequest: {
		"Хотелось бы увидеть систему вживую",
		"Можете показать, как это выглядит",
	},
	ContactProvided: {
		"Запишите мой номер восемь семьсот",
		"Пишите на почту, обсудим детали",
	},
	Agreement: {
		"Да, давайте попробуем",
		"Хорошо, согласен на ваши условия",
	},
	Rejection: {
		"Нам это не подходит, спасибо",
		"Не вижу смысла продолжать разговор",
	},
	CallbackRequest: {
		"Наберите меня завтра после обеда",
		"Позвоните в конце недели",
	},
	ObjectionPrice: {
		"Для нас это слишком большие деньги",
		"Бюджет такого не предусматривает",
	},
	ObjectionCompetitor: {
		"Мы уже работаем в другой системе",
		"У нас всё настроено в текущей программе",
	},
	ObjectionNoTime: {
		"Совсем нет времени этим заниматься",
		"Сейчас завал, не до внедрений",
	},
	ObjectionThink: {
		"Мне нужно всё обдумать",
		"Давайте я посоветуюсь с партнёрами",
	},
	ObjectionNoNeed: {
		"Нам это в принципе не нужно",
		"Мы прекрасно справляемся без таких систем",
	},
	ObjectionTrust: {
		"Я про вас ничего не слышал",
		"Почему я должен вам верить",
	},
	ObjectionTiming: {
		"Вернёмся к этому через полгода",
		"Сейчас не лучший момент для перемен",
	},
	ObjectionComplexity: {
		"Боюсь, сотрудники не освоят",
		"Выглядит слишком запутанно для нас",
	},
}

// Semantic tier acceptance gates.
const (
	semanticFloor   = 0.55
	semanticTop     = 0.75
	semanticGap     = 0.10
	semanticDamping = 0.85
)

// SemanticClassifier scores a message against the intent example bank.
// The objection detector reuses it for its own second tier.
type SemanticClassifier struct {
	embedder embed.Embedder
	logger   *slog.Logger

	mu   sync.Mutex
	bank map[string][][]float32
}

// NewSemanticClassifier creates the tier. A nil embedder disables it.
func NewSemanticClassifier(embedder embed.Embedder, logger *slog.Logger) *SemanticClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &SemanticClassifier{embedder: embedder, logger: logger}
}

func (s *SemanticClassifier) ensureBank(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bank != nil {
		return nil
	}
	bank := make(map[string][][]float32, len(intentExamples))
	for name, examples := range intentExamples {
		vecs := make([][]float32, 0, len(examples))
		for _, ex := range examples {
			vec, err := s.embedder.EmbedQuery(ctx, ex)
			if err != nil {
				return err
			}
			vecs = append(vecs, vec)
		}
		bank[name] = vecs
	}
	s.bank = bank
	return nil
}

// Scores returns the per-intent similarity scores, sorted descending.
func (s *SemanticClassifier) Scores(ctx context.Context, message string) ([]Alternative, error) {
	if s.embedder == nil {
		return nil, nil
	}
	if err := s.ensureBank(ctx); err != nil {
		return nil, err
	}
	query, err := s.embedder.EmbedQuery(ctx, message)
	if err != nil {
		return nil, err
	}

	out := make([]Alternative, 0, len(s.bank))
	for name, vecs := range s.bank {
		best := 0.0
		for _, v := range vecs {
			if sim := embed.Cosine(query, v); sim > best {
				best = sim
			}
		}
		out = append(out, Alternative{Intent: name, Confidence: best})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Intent < out[j].Intent
	})
	return out, nil
}

// classify runs nearest-neighbor classification. ok=false means the
// tier abstained (error, empty bank, or nothing above the floor).
func (s *SemanticClassifier) classify(ctx context.Context, message string) (Result, bool) {
	scores, err := s.Scores(ctx, message)
	if err != nil {
		s.logger.Warn("semantic intent tier failed", "error", err)
		return Result{}, false
	}
	if len(scores) == 0 || scores[0].Confidence < semanticFloor {
		return Result{}, false
	}

	top := scores[0]
	confidence := top.Confidence
	if len(scores) > 1 && (top.Confidence < semanticTop || top.Confidence-scores[1].Confidence < semanticGap) {
		confidence *= semanticDamping
	}

	alts := scores[1:]
	if len(alts) > 3 {
		alts = alts[:3]
	}
	return Result{
		Intent:       top.Intent,
		Confidence:   confidence,
		Alternatives: append([]Alternative(nil), alts...),
		MethodUsed:   MethodSemantic,
	}, true
}
