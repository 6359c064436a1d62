package keyword

import (
	"slices"
	"strings"
)

// Checks tokenized text for any of the configured keywords, returning the first keyword matched (as configured, not normalized).
//
// Keywords are tokenized the same way as the text, so a multi-word keyword ("free mint") matches only as a consecutive token sequence, and matching is case and accent insensitive.
func MatchKeywords(text string, keywords []string) (string, bool) {
	toks := TokenizeText(text)
	if len(toks) == 0 {
		return "", false
	}
	for _, kw := range keywords {
		kwToks := TokenizeText(kw)
		if len(kwToks) == 0 {
			continue
		}
		if containsSequence(toks, kwToks) {
			return kw, true
		}
	}
	return "", false
}

func containsSequence(toks, seq []string) bool {
	for i := 0; i+len(seq) <= len(toks); i++ {
		if slices.Equal(toks[i:i+len(seq)], seq) {
			return true
		}
	}
	return false
}

// Splits a comma or newline separated keyword list, as typed in to a rule config form
func ParseKeywordList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
