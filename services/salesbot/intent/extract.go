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
	"regexp"
	"strings"
)

// Collected-data field names. The domain is closed; the state machine
// only gates on fields listed here.
const (
	FieldCompanyName        = "company_name"
	FieldCompanySize        = "company_size"
	FieldIndustry           = "industry"
	FieldRole               = "role"
	FieldPainCategory       = "pain_category"
	FieldPainPoints         = "pain_points"
	FieldBudgetRange        = "budget_range"
	FieldTimeline           = "timeline"
	FieldContactInfo        = "contact_info"
	FieldContactName        = "contact_name"
	FieldInterestedFeatures = "interested_features"
	FieldObjectionTypes     = "objection_types"
	FieldCompetitor         = "competitor"
)

// ListFields enumerates the list-valued fields that accumulate with
// de-duplication instead of being replaced.
var ListFields = map[string]bool{
	FieldPainPoints:         true,
	FieldInterestedFeatures: true,
	FieldObjectionTypes:     true,
}

var (
	companyNameRe = regexp.MustCompile(`(?i)(?:компани[яию]|мы из|ооо|тоо|ао)\s+[«"]?([А-ЯЁ][А-Яа-яЁёA-Za-z\d-]+)[»"]?`)
	quotedNameRe  = regexp.MustCompile(`[«"]([А-ЯЁ][А-Яа-яЁёA-Za-z\d\s-]{2,40})[»"]`)
	companySizeRe = regexp.MustCompile(`(?i)(\d{1,6})\s*(?:сотрудник\w*|человек|работник\w*|чел\.)`)
	contactNameRe = regexp.MustCompile(`(?:[Мм]еня зовут|[Яя]\s*[-—]\s*)\s*([А-ЯЁ][а-яё]+(?:\s+[А-ЯЁ][а-яё]+)?)`)
	phoneRe       = regexp.MustCompile(`(?:\+7|8)[\s(-]?\d{3}[\s)-]?\d{3}[\s-]?\d{2}[\s-]?\d{2}`)
	emailRe       = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	budgetRe      = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(млн|миллион\w*|тыс\w*|тысяч\w*)?\s*(?:тенге|₸)?`)
	timelineRe    = regexp.MustCompile(`(?i)(в этом месяце|в следующем месяце|до конца (?:года|квартала|месяца)|в течение \S+|на следующей неделе|в этом квартале)`)
)

// keywordEntry pairs a lowercase substring with its canonical value.
// Slices keep matching deterministic (first hit wins).
type keywordEntry struct {
	keyword string
	value   string
}

var industryKeywords = []keywordEntry{
	{"логистик", "логистика"},
	{"перевозк", "логистика"},
	{"строитель", "строительство"},
	{"торгов", "торговля"},
	{"ритейл", "торговля"},
	{"производств", "производство"},
	{"нефт", "нефтегаз"},
	{"айти", "IT"},
	{"финанс", "финансы"},
}

var roleKeywords = []keywordEntry{
	{"директор", "директор"},
	{"руководител", "руководитель"},
	{"владелец", "владелец"},
	{"собственник", "владелец"},
	{"менеджер", "менеджер"},
	{"бухгалтер", "бухгалтер"},
	{"снабжен", "снабжение"},
}

var painKeywords = []keywordEntry{
	{"ручной учёт", "manual_work"},
	{"ручной учет", "manual_work"},
	{"вручную", "manual_work"},
	{"excel", "manual_work"},
	{"эксел", "manual_work"},
	{"теряем лид", "lost_leads"},
	{"потеря лидов", "lost_leads"},
	{"теряются заявк", "lost_leads"},
	{"не успеваем", "overload"},
	{"ошибк", "errors"},
	{"путаниц", "errors"},
	{"медленно", "slow_process"},
}

var featureKeywords = []keywordEntry{
	{"интеграц", "integrations"},
	{"отчёт", "reports"},
	{"отчет", "reports"},
	{"аналитик", "analytics"},
	{"автоматизац", "automation"},
	{"уведомлен", "notifications"},
	{"склад", "warehouse"},
	{"crm", "crm"},
}

var competitorNames = []string{"1С", "1C", "Битрикс", "amoCRM", "амо", "SAP", "Мой Склад"}

// ExtractData pulls every collected-data field visible in the message.
// Absent fields are simply not present in the returned map.
func ExtractData(message string) map[string]any {
	out := map[string]any{}
	lower := strings.ToLower(message)

	if m := companyNameRe.FindStringSubmatch(message); m != nil {
		out[FieldCompanyName] = m[1]
	} else if m := quotedNameRe.FindStringSubmatch(message); m != nil {
		out[FieldCompanyName] = strings.TrimSpace(m[1])
	}
	if m := companySizeRe.FindStringSubmatch(message); m != nil {
		out[FieldCompanySize] = m[1]
	}
	if m := contactNameRe.FindStringSubmatch(message); m != nil {
		out[FieldContactName] = m[1]
	}
	if m := phoneRe.FindString(message); m != "" {
		out[FieldContactInfo] = m
	} else if m := emailRe.FindString(message); m != "" {
		out[FieldContactInfo] = m
	}
	if strings.Contains(lower, "бюджет") || strings.Contains(lower, "миллион") ||
		strings.Contains(lower, "млн") || strings.Contains(lower, "готовы потратить") {
		if m := budgetRe.FindStringSubmatch(message); m != nil && m[1] != "" {
			unit := strings.TrimSpace(m[2])
			if unit == "" {
				out[FieldBudgetRange] = m[1]
			} else {
				out[FieldBudgetRange] = m[1] + " " + unit
			}
		}
	}
	if m := timelineRe.FindStringSubmatch(message); m != nil {
		out[FieldTimeline] = strings.ToLower(m[1])
	}

	for _, e := range industryKeywords {
		if strings.Contains(lower, e.keyword) {
			out[FieldIndustry] = e.value
			break
		}
	}
	for _, e := range roleKeywords {
		if strings.Contains(lower, e.keyword) {
			out[FieldRole] = e.value
			break
		}
	}

	var pains []string
	category := ""
	for _, e := range painKeywords {
		if strings.Contains(lower, e.keyword) {
			pains = append(pains, e.keyword)
			if category == "" {
				category = e.value
			}
		}
	}
	if len(pains) > 0 {
		out[FieldPainPoints] = pains
		out[FieldPainCategory] = category
	}

	var features []string
	for _, e := range featureKeywords {
		if strings.Contains(lower, e.keyword) {
			features = append(features, e.value)
		}
	}
	if len(features) > 0 {
		out[FieldInterestedFeatures] = features
	}

	for _, name := range competitorNames {
		if strings.Contains(lower, strings.ToLower(name)) {
			out[FieldCompetitor] = name
			break
		}
	}

	return out
}
