package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	whitespace = regexp.MustCompile(`\s+`)
	folder     = cases.Fold()

	// ł and Ł do not decompose under NFD.
	strokeReplacer = strings.NewReplacer("ł", "l", "Ł", "L", "đ", "d", "Đ", "D", "ø", "o", "Ø", "O")
)

// CleanText trims, collapses whitespace and composes the text to NFC.
func CleanText(s string) string {
	s = whitespace.ReplaceAllString(s, " ")
	return norm.NFC.String(strings.TrimSpace(s))
}

// Fold returns s case folded with diacritics removed, for matching
// ("Wiadomości" and "WIADOMOSCI" fold to the same string).
func Fold(s string) string {
	s = strokeReplacer.Replace(CleanText(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return folder.String(stripped)
}

// Words splits folded text into words, dropping punctuation.
func Words(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
