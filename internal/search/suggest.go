package search

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/programista/programista/internal/normalize"
)

// Suggest proposes up to limit titles close to text, for "did you mean"
// hints when a search finds nothing. Titles containing the query letters in
// order come first, then titles within a few typos.
func Suggest(text string, titles []string, limit int) []string {
	q := normalize.Fold(text)
	if q == "" || limit <= 0 {
		return nil
	}

	type candidate struct {
		title string
		score int
	}
	var candidates []candidate
	seen := make(map[string]bool)

	folded := make([]string, len(titles))
	for i, t := range titles {
		folded[i] = normalize.Fold(t)
	}

	for _, r := range fuzzy.RankFindNormalizedFold(q, folded) {
		if seen[r.Target] || r.Target == q {
			continue
		}
		seen[r.Target] = true
		candidates = append(candidates, candidate{title: titles[r.OriginalIndex], score: r.Distance})
	}

	for i, t := range folded {
		if seen[t] || t == q {
			continue
		}
		if d, ok := typoDistance(q, t); ok {
			seen[t] = true
			candidates = append(candidates, candidate{title: titles[i], score: 1000 + d})
		}
	}

	slices.SortStableFunc(candidates, func(a, b candidate) int {
		if a.score != b.score {
			return a.score - b.score
		}
		return strings.Compare(a.title, b.title)
	})

	var out []string
	for _, c := range candidates[:min(limit, len(candidates))] {
		out = append(out, c.title)
	}
	return out
}

// typoDistance matches every query word to a distinct title word within the
// typo allowance of its length, returning the summed edit distance.
func typoDistance(q, title string) (int, bool) {
	titleWords := strings.Fields(title)
	used := make([]bool, len(titleWords))
	total := 0
	for _, w := range strings.Fields(q) {
		best, bestIdx := -1, -1
		for i, tw := range titleWords {
			if used[i] {
				continue
			}
			d := fuzzy.LevenshteinDistance(w, tw)
			if d <= allowedTypos(utf8.RuneCountInString(w)) && (best < 0 || d < best) {
				best, bestIdx = d, i
			}
		}
		if bestIdx < 0 {
			return 0, false
		}
		used[bestIdx] = true
		total += best
	}
	return total, true
}

// allowedTypos: 1-3 letters none, 4-6 one, longer two.
func allowedTypos(length int) int {
	switch {
	case length <= 3:
		return 0
	case length <= 6:
		return 1
	default:
		return 2
	}
}
