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
	"regexp"
	"unicode/utf8"
)

// tonePatterns maps each tone to its marker patterns. Matching counts
// every pattern (no early break) so signal counts feed the intensity
// multiplier.
var tonePatterns = map[Tone][]*regexp.Regexp{
	Frustrated: compileAll(
		`(?i)надоел`,
		`(?i)сколько можно`,
		`(?i)задолбал`,
		`(?i)бесит`,
		`(?i)хватит`,
		`(?i)опять (то же|одно и то же|вы)`,
		`(?i)ничего не работает`,
		`(?i)я уже (говорил|отвечал|писал)`,
		`(?i)вы меня не слуша`,
	),
	Rushed: compileAll(
		`(?i)быстрее`,
		`(?i)некогда`,
		`(?i)не тяни`,
		`(?i)времени нет`,
		`(?i)нет времени`,
		`(?i)давай(те)? быстро`,
		`(?i)срочно`,
		`(?i)^коротко`,
		`(?i)по делу`,
		`(?i)покороче`,
	),
	Skeptical: compileAll(
		`(?i)сомневаюсь`,
		`(?i)не верю`,
		`(?i)докажите`,
		`(?i)правда что ли`,
		`(?i)ну да,? конечно`,
		`(?i)звучит слишком`,
		`(?i)так не бывает`,
		`(?i)все так говорят`,
	),
	Confused: compileAll(
		`(?i)не понял`,
		`(?i)не понимаю`,
		`(?i)что это значит`,
		`(?i)как это`,
		`(?i)запутал`,
		`(?i)поясните`,
		`(?i)объясните проще`,
		`(?i)в смысле`,
	),
	Positive: compileAll(
		`(?i)отлично`,
		`(?i)супер`,
		`(?i)спасибо`,
		`(?i)здорово`,
		`(?i)класс`,
		`(?i)замечательно`,
		`(?i)то что нужно`,
	),
	Interested: compileAll(
		`(?i)интересно`,
		`(?i)расскажите подробнее`,
		`(?i)подробнее`,
		`(?i)хочу узнать`,
		`(?i)любопытно`,
		`(?i)а как (это|у вас)`,
		`(?i)а можно`,
	),
}

// tonePriority resolves multi-tone messages. Fixed order, checked first
// to last.
var tonePriority = []Tone{Frustrated, Rushed, Skeptical, Confused, Positive, Interested}

// RE2 \b is ASCII-only and never fires next to Cyrillic letters; the
// short markers spell their boundaries out instead.
var informalMarkers = compileAll(
	`(?i)привет`,
	`(?i)(?:^|[^а-яё])ага(?:[^а-яё]|$)`,
	`(?i)(?:^|[^а-яё])ок(?:[^а-яё]|$)`,
	`(?i)(?:^|[^а-яё])норм(?:[^а-яё]|$)`,
	`(?i)(?:^|[^а-яё])ч[её](?:[^а-яё]|$)`,
	`(?i)короче`,
	`(?i)давай(?:[^а-яё]|$)`,
	`\)\)`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// regexResult is the tier-1 output.
type regexResult struct {
	tone        Tone
	style       Style
	confidence  float64
	signals     []string
	signalCount int
	// perTone keeps the full marker counts for the intensity multiplier
	// and tier scores.
	perTone map[Tone]int
}

// analyzeRegex runs the tier-1 marker scan.
//
// Counting covers all patterns of all tones; the primary tone is chosen
// by fixed priority among tones with at least one marker. Confidence
// starts at 0.80 and grows 0.05 per signal up to 0.95; a message with
// no markers reports neutral at 0.30.
func analyzeRegex(message string) regexResult {
	res := regexResult{
		tone:    Neutral,
		style:   StyleFormal,
		perTone: map[Tone]int{},
	}

	for toneName, patterns := range tonePatterns {
		for _, p := range patterns {
			if match := p.FindString(message); match != "" {
				res.perTone[toneName]++
				res.signals = append(res.signals, string(toneName)+":"+match)
			}
		}
	}

	for _, t := range tonePriority {
		if res.perTone[t] > 0 {
			res.tone = t
			res.signalCount = res.perTone[t]
			break
		}
	}

	informal := 0
	for _, p := range informalMarkers {
		if p.MatchString(message) {
			informal++
		}
	}
	if informal >= 2 || (informal >= 1 && utf8.RuneCountInString(message) < 50) {
		res.style = StyleInformal
	}

	total := 0
	for _, n := range res.perTone {
		total += n
	}
	if total == 0 {
		res.confidence = 0.30
		return res
	}
	res.confidence = 0.80 + 0.05*float64(total)
	if res.confidence > 0.95 {
		res.confidence = 0.95
	}
	return res
}
