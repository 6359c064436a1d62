package keyword

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// anything which isn't a letter, digit, or whitespace separates tokens; "$degen" and "degen!" both tokenize to "degen"
var separatorChars = regexp.MustCompile(`[^\pL\pN\s]+`)

// Splits cast or profile text in to lower-case tokens, with accents folded ("Café" and "cafe" tokenize the same).
func TokenizeText(text string) []string {
	// transformers carry state, so build one per call
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	spaced := strings.ToLower(separatorChars.ReplaceAllString(text, " "))
	folded, _, err := transform.String(fold, spaced)
	if err != nil {
		slog.Warn("unicode normalization error", "err", err)
		folded = spaced
	}
	return strings.Fields(folded)
}
