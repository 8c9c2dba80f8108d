package fandom

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/programista/programista/internal/domain"
	"github.com/programista/programista/internal/normalize"
)

// defaultChannel is assumed for pages that list a single, unnamed channel.
const defaultChannel = "TVP 1"

var months = [...]string{
	"stycznia", "lutego", "marca", "kwietnia", "maja", "czerwca",
	"lipca", "sierpnia", "września", "października", "listopada", "grudnia",
}

var (
	headingPattern  = regexp.MustCompile(`(?m)^\s*={2,}\s*(.+?)\s*={2,}\s*$`)
	categoryPattern = regexp.MustCompile(`\[\[\s*Kategoria:\s*Ramówki\s+(.+?)\s+z\s+(\d{4})\s+roku\s*\]\]`)
	filePattern     = regexp.MustCompile(`(?i)\[\[\s*(?:File|Plik|Image|Grafika):[^\]]*\]\]`)
	linkPattern     = regexp.MustCompile(`\[\[(?:[^\]|]*\|)?([^\]]*)\]\]`)
	breakPattern    = regexp.MustCompile(`(?i)<br\s*/?>`)
	tagPattern      = regexp.MustCompile(`<[^>]+>`)
	entryPattern    = regexp.MustCompile(`^(\d{1,2})\s*[:.\s]\s*(\d{2})(?:\s*-\s*(\d{1,2})[:.](\d{2}))?\s*(?:[-–]\s*)?(.*)$`)
	weekdayPattern  = regexp.MustCompile(`(?i)^(poniedziałek|wtorek|środa|czwartek|piątek|sobota|niedziela)\b`)
)

// pageTitles returns the archive page titles that may hold day, most common
// spelling first.
func pageTitles(day domain.Date) []string {
	t := day.In(time.UTC)
	if t.IsZero() {
		return nil
	}
	month := months[t.Month()-1]
	capital := strings.ToUpper(month[:1]) + month[1:]

	days := []string{fmt.Sprintf("%02d", t.Day())}
	if t.Day() < 10 {
		days = append(days, fmt.Sprint(t.Day()))
	}
	var titles []string
	for _, m := range []string{capital, month} {
		for _, d := range days {
			titles = append(titles, fmt.Sprintf("%s %s %d", d, m, t.Year()))
		}
	}
	return titles
}

// section is the part of a page listing one channel.
type section struct {
	heading string
	body    string
}

// channelSections splits a page into channels and their schedule text.
// Headings win; otherwise categories name the channels and the page is
// split positionally on logos or plain channel lines; otherwise plain
// channel lines name them; a page with none of these is one channel.
func channelSections(wikitext string) []section {
	if locs := headingPattern.FindAllStringSubmatchIndex(wikitext, -1); len(locs) > 0 {
		var out []section
		for i, loc := range locs {
			end := len(wikitext)
			if i+1 < len(locs) {
				end = locs[i+1][0]
			}
			out = append(out, section{heading: wikitext[loc[2]:loc[3]], body: wikitext[loc[1]:end]})
		}
		return out
	}

	var categories []string
	for _, m := range categoryPattern.FindAllStringSubmatch(wikitext, -1) {
		categories = append(categories, m[1])
	}
	text := categoryPattern.ReplaceAllString(wikitext, "")

	var parts []section
	if locs := filePattern.FindAllStringIndex(text, -1); len(locs) > 0 {
		for i, loc := range locs {
			end := len(text)
			if i+1 < len(locs) {
				end = locs[i+1][0]
			}
			parts = append(parts, section{body: text[loc[1]:end]})
		}
	} else {
		parts = plainSections(text)
	}

	switch {
	case len(categories) > 0 && len(parts) == len(categories):
		for i := range parts {
			parts[i].heading = categories[i]
		}
		return parts
	case len(categories) > 0 && len(parts) == 0:
		return []section{{heading: categories[0], body: text}}
	case len(parts) > 0 && parts[0].heading != "":
		return parts
	default:
		return []section{{heading: defaultChannel, body: text}}
	}
}

// plainSections finds channel names written as a plain line followed by a
// timed entry, at the start of the page or after a blank line.
func plainSections(text string) []section {
	lines := strings.Split(breakPattern.ReplaceAllString(text, "\n"), "\n")

	var out []section
	var body []string
	flush := func() {
		if len(out) > 0 {
			out[len(out)-1].body = strings.Join(body, "\n")
		}
		body = nil
	}

	blank := true
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			blank = true
			body = append(body, "")
			continue
		}
		if blank && isChannelLine(line) && nextIsEntry(lines[i+1:]) {
			flush()
			out = append(out, section{heading: line})
		} else {
			body = append(body, line)
		}
		blank = false
	}
	flush()
	return out
}

func isChannelLine(line string) bool {
	if len(line) > 40 || strings.HasPrefix(line, "'") || strings.HasPrefix(line, "[[") {
		return false
	}
	if entryPattern.MatchString(line) || weekdayPattern.MatchString(line) {
		return false
	}
	return true
}

func nextIsEntry(lines []string) bool {
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			return entryPattern.MatchString(l)
		}
	}
	return false
}

// channels lists the channel names of a page in page order.
func channels(wikitext string) []string {
	var out []string
	for _, s := range channelSections(wikitext) {
		out = append(out, s.heading)
	}
	return out
}

// channelSchedule returns the schedule text of one channel, or "".
func channelSchedule(wikitext, channel string) string {
	want := normalize.Fold(channel)
	for _, s := range channelSections(wikitext) {
		if normalize.Fold(s.heading) == want {
			return s.body
		}
	}
	return ""
}

// splitEntries breaks schedule text into timed entries.
func splitEntries(block string) []string {
	var out []string
	for _, line := range strings.Split(breakPattern.ReplaceAllString(block, "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" && entryPattern.MatchString(line) {
			out = append(out, line)
		}
	}
	return out
}

// parseEntry splits "18 10 - Studio Sport" or "5.45-9.00 Blok" into start,
// optional end and the rest.
func parseEntry(entry string) (start, end, rest string, ok bool) {
	m := entryPattern.FindStringSubmatch(strings.TrimSpace(entry))
	if m == nil {
		return "", "", "", false
	}
	start = m[1] + ":" + m[2]
	if m[3] != "" {
		end = m[3] + ":" + m[4]
	}
	return start, end, strings.TrimSpace(m[5]), true
}

// splitTitle separates "Title - subtitle".
func splitTitle(rest string) (string, string) {
	title, subtitle, found := strings.Cut(rest, " - ")
	if !found {
		return strings.TrimSpace(rest), ""
	}
	return strings.TrimSpace(title), strings.TrimSpace(subtitle)
}

// plain removes wiki markup from a title.
func plain(s string) string {
	s = linkPattern.ReplaceAllString(s, "$1")
	s = tagPattern.ReplaceAllString(s, "")
	return strings.NewReplacer("'''", "", "''", "").Replace(s)
}

// rawItems converts a channel's schedule text.
func rawItems(block string) []domain.RawItem {
	var items []domain.RawItem
	for _, entry := range splitEntries(block) {
		start, end, rest, ok := parseEntry(entry)
		if !ok {
			continue
		}
		title, subtitle := splitTitle(plain(rest))
		items = append(items, domain.RawItem{Start: start, End: end, Title: title, Subtitle: subtitle})
	}
	return items
}

// sourceID derives a stable id from a channel name ("TVP 1 HD" -> "tvp-1-hd").
func sourceID(channel string) domain.SourceID {
	return domain.SourceID(strings.Join(normalize.Words(channel), "-"))
}
