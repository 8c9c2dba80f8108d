package normalize

import (
	"regexp"
	"slices"
	"strings"

	"github.com/programista/programista/internal/domain"
)

var markerPrefixes = []string{"icon-", "ico-", "access-", "a11y-"}

// titleMarker matches a trailing "(AD)", "[JM, N]" style annotation.
var titleMarker = regexp.MustCompile(`\s*[\(\[]((?:AD|JM|N)(?:\s*[,/ ]\s*(?:AD|JM|N))*)[\)\]]\s*$`)

// Flags infers the accessibility flags of a raw item from its markers and
// from annotations at the end of its title or subtitle. The result is in
// canonical order without duplicates.
func Flags(raw domain.RawItem) []domain.AccessibilityFlag {
	found := make(map[domain.AccessibilityFlag]bool)
	for _, m := range raw.Markers {
		if f, ok := markerFlag(m); ok {
			found[f] = true
		}
	}
	for _, text := range []string{raw.Title, raw.Subtitle} {
		_, flags := splitTitleMarker(text)
		for _, f := range flags {
			found[f] = true
		}
	}

	var out []domain.AccessibilityFlag
	for _, f := range domain.AccessibilityFlags {
		if found[f] {
			out = append(out, f)
		}
	}
	return out
}

// markerFlag maps a folded marker token to a flag. CSS prefixes such as
// "icon-" are stripped first.
func markerFlag(marker string) (domain.AccessibilityFlag, bool) {
	m := Fold(marker)
	for _, p := range markerPrefixes {
		m = strings.TrimPrefix(m, p)
	}
	switch m {
	case "ad", "audiodeskrypcja", "audio-description":
		return domain.FlagAudioDescription, true
	case "jm", "jezyk migowy", "jezyk-migowy", "migowy":
		return domain.FlagSignLanguage, true
	case "n", "napisy", "napisy dla nieslyszacych", "subtitles":
		return domain.FlagSubtitles, true
	default:
		return "", false
	}
}

// splitTitleMarker removes a trailing flag annotation from text.
func splitTitleMarker(text string) (string, []domain.AccessibilityFlag) {
	match := titleMarker.FindStringSubmatchIndex(text)
	if match == nil {
		return text, nil
	}
	var flags []domain.AccessibilityFlag
	for _, tok := range strings.FieldsFunc(text[match[2]:match[3]], func(r rune) bool {
		return r == ',' || r == '/' || r == ' '
	}) {
		f := domain.AccessibilityFlag(tok)
		if slices.Contains(domain.AccessibilityFlags, f) {
			flags = append(flags, f)
		}
	}
	return strings.TrimSpace(text[:match[0]]), flags
}
