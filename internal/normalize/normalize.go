// Package normalize turns raw provider rows into canonical schedule items:
// wall clock times become UTC instants, missing end times are inferred,
// duplicates are collapsed and accessibility markers become flags. Nothing is
// dropped silently; every discarded row is counted by reason.
package normalize

import (
	"regexp"
	"sort"
	"strconv"
	"time"
	_ "time/tzdata" // source zones must resolve on systems without zoneinfo

	"github.com/programista/programista/internal/domain"
)

// DefaultZone is the zone Polish broadcasters print their times in.
const DefaultZone = "Europe/Warsaw"

// DiscardReason explains why a raw row did not become an item.
type DiscardReason string

const (
	DiscardNone           DiscardReason = ""
	DiscardMissingTitle   DiscardReason = "missing_title"
	DiscardMalformedStart DiscardReason = "malformed_start"
	DiscardMalformedDay   DiscardReason = "malformed_day"
	DiscardEndNotAfter    DiscardReason = "end_not_after_start"
	DiscardDuplicate      DiscardReason = "duplicate"
)

// Result is the outcome of normalizing a batch.
type Result struct {
	Items    []domain.ScheduleItem
	Discards map[DiscardReason]int
}

// Discarded returns the total number of discarded rows.
func (r Result) Discarded() int {
	n := 0
	for _, c := range r.Discards {
		n += c
	}
	return n
}

// Normalizer converts raw rows printed in one source zone.
type Normalizer struct {
	loc *time.Location
}

// New returns a Normalizer for times printed in loc. A nil loc selects DefaultZone.
func New(loc *time.Location) *Normalizer {
	if loc == nil {
		var err error
		if loc, err = time.LoadLocation(DefaultZone); err != nil {
			loc = time.UTC
		}
	}
	return &Normalizer{loc: loc}
}

// clockPattern accepts "18:10", "7.00", "18 10", "5.45-9.00" (start part).
var clockPattern = regexp.MustCompile(`^\s*(\d{1,2})\s*[:.\s]\s*(\d{2})`)

// parseClock returns minutes after midnight. Hours up to 29 are accepted for
// guides that print after-midnight broadcasts as 24:30, 25:00 and so on.
func parseClock(s string) (int, bool) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	if h > 29 || mins > 59 {
		return 0, false
	}
	return h*60 + mins, true
}

// at returns the instant minutes after midnight of day, in UTC.
func (n *Normalizer) at(day domain.Date, minutes int) time.Time {
	midnight := day.In(n.loc)
	return time.Date(midnight.Year(), midnight.Month(), midnight.Day(), 0, minutes, 0, 0, n.loc).UTC()
}

// Item normalizes a single row without batch context: no rollover, no end
// inference and no de-duplication.
func (n *Normalizer) Item(provider domain.ProviderID, raw domain.RawItem) (domain.ScheduleItem, DiscardReason) {
	start, ok := parseClock(raw.Start)
	if !ok {
		return domain.ScheduleItem{}, DiscardMalformedStart
	}
	return n.build(provider, raw, start)
}

func (n *Normalizer) build(provider domain.ProviderID, raw domain.RawItem, startMin int) (domain.ScheduleItem, DiscardReason) {
	if !raw.Day.Valid() {
		return domain.ScheduleItem{}, DiscardMalformedDay
	}

	title, _ := splitTitleMarker(CleanText(raw.Title))
	subtitle, _ := splitTitleMarker(CleanText(raw.Subtitle))
	if title == "" {
		return domain.ScheduleItem{}, DiscardMissingTitle
	}

	item := domain.ScheduleItem{
		ProviderID:    provider,
		SourceID:      raw.SourceID,
		SourceName:    CleanText(raw.SourceName),
		Day:           raw.Day,
		Title:         title,
		Subtitle:      subtitle,
		Description:   CleanText(raw.Description),
		Start:         n.at(raw.Day, startMin),
		Accessibility: Flags(raw),
		DetailsRef:    raw.DetailsRef,
	}
	if item.SourceName == "" {
		item.SourceName = string(raw.SourceID)
	}

	if endMin, ok := parseClock(raw.End); ok {
		if endMin == startMin {
			return domain.ScheduleItem{}, DiscardEndNotAfter
		}
		if endMin < startMin {
			// Overnight broadcast ends on the next day.
			endMin += 24 * 60
		}
		item.End = n.at(raw.Day, endMin)
	}
	return item, DiscardNone
}

// Batch normalizes rows of one provider. Within each (source, day) group the
// rows are taken in the order the provider listed them: a clock time earlier
// than the previous one continues on the next calendar day.
func (n *Normalizer) Batch(provider domain.ProviderID, raws []domain.RawItem) Result {
	res := Result{Discards: make(map[DiscardReason]int)}

	type group struct {
		source domain.SourceID
		day    domain.Date
	}
	var order []group
	rows := make(map[group][]domain.RawItem)
	for _, raw := range raws {
		g := group{raw.SourceID, raw.Day}
		if _, ok := rows[g]; !ok {
			order = append(order, g)
		}
		rows[g] = append(rows[g], raw)
	}

	bySource := make(map[domain.SourceID][]domain.ScheduleItem)
	var sources []domain.SourceID
	for _, g := range order {
		offset, prev := 0, -1
		for _, raw := range rows[g] {
			start, ok := parseClock(raw.Start)
			if !ok {
				res.Discards[DiscardMalformedStart]++
				continue
			}
			// 24:30 style times are already past midnight
			if start < 24*60 {
				start += offset
				if prev >= 0 && start < prev {
					offset += 24 * 60
					start += 24 * 60
				}
			}
			prev = start

			item, reason := n.build(provider, raw, start)
			if reason != DiscardNone {
				res.Discards[reason]++
				continue
			}
			if _, ok := bySource[g.source]; !ok {
				sources = append(sources, g.source)
			}
			bySource[g.source] = append(bySource[g.source], item)
		}
	}

	for _, src := range sources {
		items := bySource[src]
		sort.SliceStable(items, func(i, j int) bool { return items[i].Start.Before(items[j].Start) })
		inferEnds(items)
		kept, dropped := dedupe(items)
		res.Discards[DiscardDuplicate] += dropped
		res.Items = append(res.Items, kept...)
	}

	for reason, c := range res.Discards {
		if c == 0 {
			delete(res.Discards, reason)
		}
	}
	return res
}

// maxInferredDuration bounds end times inferred from the next item, so a gap
// in the listing does not turn into a broadcast lasting hours.
const maxInferredDuration = 6 * time.Hour

// inferEnds fills missing end times from the next later start. items must be
// sorted by start.
func inferEnds(items []domain.ScheduleItem) {
	for i := range items {
		if items[i].HasEnd() {
			continue
		}
		for j := i + 1; j < len(items); j++ {
			next := items[j].Start
			if !next.After(items[i].Start) {
				continue
			}
			if next.Sub(items[i].Start) <= maxInferredDuration {
				items[i].End = next
			}
			break
		}
	}
}

// dedupe collapses entries with the same folded title whose windows overlap,
// keeping the metadata of the richer one. The earlier entry's window is kept,
// so the result stays sorted by start. items must be sorted by start.
func dedupe(items []domain.ScheduleItem) ([]domain.ScheduleItem, int) {
	kept := make([]domain.ScheduleItem, 0, len(items))
	dropped := 0
	for _, item := range items {
		dup := -1
		for j := len(kept) - 1; j >= 0; j-- {
			if overlaps(kept[j], item) && Fold(kept[j].Title) == Fold(item.Title) {
				dup = j
				break
			}
		}
		if dup < 0 {
			kept = append(kept, item)
			continue
		}
		dropped++
		if richness(item) > richness(kept[dup]) {
			kept[dup] = mergeInto(kept[dup], item)
		}
	}
	return kept, dropped
}

// mergeInto returns richer placed in base's slot: base's start and day stay,
// and base's end unless it has none.
func mergeInto(base, richer domain.ScheduleItem) domain.ScheduleItem {
	richer.Start = base.Start
	richer.Day = base.Day
	if base.HasEnd() || !richer.End.After(base.Start) {
		richer.End = base.End
	}
	return richer
}

// windowEnd treats an item without an end as one minute long.
func windowEnd(item domain.ScheduleItem) time.Time {
	if item.HasEnd() {
		return item.End
	}
	return item.Start.Add(time.Minute)
}

func overlaps(a, b domain.ScheduleItem) bool {
	return a.Start.Before(windowEnd(b)) && b.Start.Before(windowEnd(a))
}

func richness(item domain.ScheduleItem) int {
	score := len(item.Accessibility)
	for _, s := range []string{item.Subtitle, item.Description, item.DetailsRef} {
		if s != "" {
			score++
		}
	}
	if item.HasEnd() {
		score++
	}
	return score
}
