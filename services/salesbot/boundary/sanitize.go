// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package boundary

import (
	"regexp"
	"strings"
	"unicode"
)

// Sanitizers remove or rewrite the violating spans in place. A
// sanitizer never grows the response; the validator enforces the
// contraction property after the full pass.

var (
	sentenceSplitRe = regexp.MustCompile(`(?m)[^.!?\n]+[.!?]?\s*`)
	multiSpaceRe    = regexp.MustCompile(`[ \t]{2,}`)
)

// Sanitize applies the sanitizer for each detected violation, in the
// order detected. Unknown types pass through untouched.
func Sanitize(response string, violations []string, ctx Context) string {
	out := response
	for _, v := range violations {
		switch v {
		case CurrencyLocale:
			out = rubleRe.ReplaceAllString(out, "₸")
		case OpeningPunctuation:
			out = openingPunctRe.ReplaceAllString(out, "")
			out = afterSentenceRe.ReplaceAllString(out, "$1 ")
		case KnownTypos:
			out = fixTypos(out)
		case HallucinatedIIN:
			out = dropSentencesMatching(out, iinRe)
		case HallucinatedPhone, HallucinatedManagerTel:
			out = dropSentencesMatching(out, phoneRe)
			out = dropSentencesMatching(out, managerPhoneRe)
		case HallucinatedSendPromise:
			out = dropSentencesMatching(out, sendPromiseRe)
		case HallucinatedPastAction:
			out = dropSentencesMatching(out, pastActionRe)
		case HallucinatedClientName:
			out = clientNameVocRe.ReplaceAllString(out, "")
		case FalseCompanyPolicy:
			out = dropSentencesMatching(out, falsePolicyRe)
		case OffTopicRecommendation:
			out = dropSentencesMatching(out, offTopicRe)
		case PolicyDisclosure:
			out = dropSentencesMatching(out, policyLeakRe)
		case HallucinatedIINStatus:
			out = dropSentencesMatching(out, iinStatusRe)
		case HallucinatedInvoice, InvoiceWithoutIIN:
			out = dropSentencesMatching(out, invoiceStatusRe)
			out = dropSentencesMatching(out, invoiceOfferRe)
		case HallucinatedContact:
			out = dropSentencesMatching(out, contactClaimRe)
		case MidConversationGreeting:
			out = greetingOpenRe.ReplaceAllString(out, "")
			out = capitalizeFirst(strings.TrimLeft(out, " ,.!"))
		case UngroundedQuantClaim:
			out = dropSentencesMatching(out, quantClaimRe)
		case UngroundedGuarantee:
			out = dropSentencesMatching(out, guaranteeRe)
		case UngroundedSocialProof:
			out = dropSentencesMatching(out, socialProofRe)
		case MetaInstructionLeak:
			out = dropSentencesMatching(out, metaInstructRe)
		case MetaNarrationLeak:
			out = metaNarrationRe.ReplaceAllString(out, "")
		case DemoWithoutContact:
			out = dropSentencesMatching(out, demoScheduleRe)
		case IINRefusalReask:
			out = dropSentencesMatching(out, iinAskRe)
		}
	}
	return tidy(out)
}

// dropSentencesMatching removes every sentence containing a match.
func dropSentencesMatching(text string, re *regexp.Regexp) string {
	if !re.MatchString(text) {
		return text
	}
	var b strings.Builder
	for _, sentence := range sentenceSplitRe.FindAllString(text, -1) {
		if re.MatchString(sentence) {
			continue
		}
		b.WriteString(sentence)
	}
	return b.String()
}

func fixTypos(text string) string {
	lower := strings.ToLower(text)
	for typo, fix := range knownTypos {
		for {
			idx := strings.Index(strings.ToLower(lower), typo)
			if idx < 0 {
				break
			}
			text = text[:idx] + fix + text[idx+len(typo):]
			lower = strings.ToLower(text)
		}
	}
	return text
}

func capitalizeFirst(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func tidy(s string) string {
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
