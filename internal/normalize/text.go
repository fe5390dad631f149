package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonTokenRe = regexp.MustCompile(`[^0-9a-z :]+`)

// foldAccents strips combining marks ("Févr." -> "Fevr.").
// The transformer is stateful, so one is built per call.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// normalizeText lowercases, folds accents, drops apostrophes and punctuation and
// collapses whitespace: "Aujourd'hui, à 21h00" -> "aujourdhui a 21h00".
func normalizeText(s string) string {
	s = foldAccents(strings.ToLower(strings.TrimSpace(s)))
	s = strings.NewReplacer("'", "", "’", "", ".", " ").Replace(s)
	s = nonTokenRe.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}
