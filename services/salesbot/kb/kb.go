// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package kb defines the knowledge-base surface the response generator
// consumes. The service treats the KB as an external dependency; the
// static retriever here backs tests and deployments without one.
package kb

import "context"

// Query scopes one retrieval.
type Query struct {
	Message    string
	Intent     string
	State      string
	Categories []string
	TopK       int
}

// Retriever serves grounded facts for response generation.
type Retriever interface {
	// RetrieveWithURLs returns a facts blob plus source URLs. An empty
	// blob means nothing relevant was found.
	RetrieveWithURLs(ctx context.Context, q Query) (string, []string, error)
	// CompanyInfo returns the static company description.
	CompanyInfo(ctx context.Context) (string, error)
}

// Static is a fixed-content retriever keyed by intent.
type Static struct {
	// Facts maps intent name to a facts blob.
	Facts       map[string]string
	Company     string
	DefaultFact string
}

// NewStatic returns a retriever with the built-in product facts.
func NewStatic() *Static {
	return &Static{
		Facts: map[string]string{
			"question_pricing":  "Тариф «Старт» — 25 000 ₸ в месяц до 10 пользователей. Тариф «Бизнес» — 60 000 ₸ в месяц до 50 пользователей. Внедрение и обучение включены.",
			"question_features": "Система ведёт заявки, сделки и клиентскую базу, строит отчёты, интегрируется с телефонией и мессенджерами, работает с мобильного.",
			"demo_request":      "Демонстрация занимает 30 минут онлайн, показываем систему на примерах из отрасли клиента.",
		},
		Company: "Мы разрабатываем систему автоматизации продаж для малого и среднего бизнеса Казахстана с 2019 года.",
	}
}

// RetrieveWithURLs implements Retriever.
func (s *Static) RetrieveWithURLs(_ context.Context, q Query) (string, []string, error) {
	if facts, ok := s.Facts[q.Intent]; ok {
		return facts, nil, nil
	}
	return s.DefaultFact, nil, nil
}

// CompanyInfo implements Retriever.
func (s *Static) CompanyInfo(context.Context) (string, error) {
	return s.Company, nil
}
