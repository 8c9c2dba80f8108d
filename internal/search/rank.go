package search

import (
	"slices"
	"strings"

	"github.com/programista/programista/internal/domain"
	"github.com/programista/programista/internal/normalize"
)

// Match tiers, lower is better.
const (
	tierExact = iota
	tierPrefix
	tierSubstring
	tierKeyword
	tierRemote // remote rows the local rules do not match
	noMatch    = -1
)

// query is a search text prepared for matching.
type query struct {
	folded string
	words  []string
}

func newQuery(text string) (query, bool) {
	q := query{folded: normalize.Fold(text), words: normalize.Words(text)}
	if q.folded == "" || len(q.words) == 0 {
		return query{}, false
	}
	return q, true
}

// doc is the searchable projection of one schedule item.
type doc struct {
	item  domain.ScheduleItem
	title string   // folded title
	text  string   // folded subtitle and description
	words []string // words of title, subtitle and description
}

func newDoc(item domain.ScheduleItem) doc {
	text := normalize.Fold(strings.TrimSpace(item.Subtitle + " " + item.Description))
	return doc{
		item:  item,
		title: normalize.Fold(item.Title),
		text:  text,
		words: normalize.Words(item.Title + " " + item.Subtitle + " " + item.Description),
	}
}

// tier scores d against q.
//
//  1. exact title
//  2. title starts with the query
//  3. query found anywhere in the title or the description
//  4. every query word starts some word of the item, in any order
func (q query) tier(d doc) int {
	switch {
	case d.title == q.folded:
		return tierExact
	case strings.HasPrefix(d.title, q.folded):
		return tierPrefix
	case strings.Contains(d.title, q.folded), strings.Contains(d.text, q.folded):
		return tierSubstring
	}

	for _, w := range q.words {
		if !slices.ContainsFunc(d.words, func(dw string) bool { return strings.HasPrefix(dw, w) }) {
			return noMatch
		}
	}
	return tierKeyword
}

type scored struct {
	doc
	tier int
}

// sortScored orders by tier, then start time, then title.
func sortScored(s []scored) {
	slices.SortStableFunc(s, func(a, b scored) int {
		if a.tier != b.tier {
			return a.tier - b.tier
		}
		if c := a.item.Start.Compare(b.item.Start); c != 0 {
			return c
		}
		return strings.Compare(a.title, b.title)
	})
}

func items(s []scored) []domain.ScheduleItem {
	out := make([]domain.ScheduleItem, len(s))
	for i, sc := range s {
		out[i] = sc.item
	}
	return out
}
