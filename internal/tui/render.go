// Package tui renders schedules and search results for the terminal and
// drives the interactive sync progress view.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/programista/programista/internal/domain"
	"github.com/programista/programista/internal/tui/styles"
)

const defaultWidth = 80

// RenderSchedule formats one cached day of one source.
func RenderSchedule(entry domain.CacheEntry, loc *time.Location, now time.Time, width int) string {
	if width <= 0 {
		width = defaultWidth
	}
	var b strings.Builder

	name := string(entry.Key.SourceID)
	if len(entry.Items) > 0 && entry.Items[0].SourceName != "" {
		name = entry.Items[0].SourceName
	}
	b.WriteString(styles.HeaderStyle.Render(fmt.Sprintf("%s · %s", name, entry.Key.Day)))
	b.WriteString("\n")

	if note := entry.Note(now); note != "" {
		b.WriteString(styles.NoteStyle.Render(note))
		b.WriteString("\n")
	}
	if len(entry.Items) == 0 {
		b.WriteString(styles.DimStyle.Render("no broadcasts"))
		b.WriteString("\n")
		return b.String()
	}

	for _, it := range entry.Items {
		b.WriteString(renderItem(it, loc, width))
		b.WriteString("\n")
	}
	return b.String()
}

func renderItem(it domain.ScheduleItem, loc *time.Location, width int) string {
	start := styles.TimeStyle.Render(it.Start.In(loc).Format("15:04"))
	title := styles.TitleStyle.Render(styles.Truncate(it.Title, width-8))

	line := lipgloss.JoinHorizontal(lipgloss.Top, start, title)
	if flags := renderFlags(it.Accessibility); flags != "" {
		line += " " + flags
	}
	if it.Subtitle != "" {
		line += "\n      " + styles.SubtitleStyle.Render(styles.Truncate(it.Subtitle, width-6))
	}
	return line
}

func renderFlags(flags []domain.AccessibilityFlag) string {
	parts := make([]string, 0, len(flags))
	for _, f := range flags {
		parts = append(parts, styles.FlagStyle.Render(string(f)))
	}
	return strings.Join(parts, " ")
}

// RenderSearch formats a merged search result.
func RenderSearch(res domain.SearchResult, loc *time.Location, width int) string {
	if width <= 0 {
		width = defaultWidth
	}
	var b strings.Builder

	if res.RemoteError != "" {
		b.WriteString(styles.NoteStyle.Render("remote search unavailable, showing cached results only"))
		b.WriteString("\n")
	}
	if len(res.Items) == 0 {
		b.WriteString(styles.DimStyle.Render("nothing found"))
		b.WriteString("\n")
		if len(res.Suggestions) > 0 {
			b.WriteString("did you mean: ")
			b.WriteString(styles.AccentStyle.Render(strings.Join(res.Suggestions, ", ")))
			b.WriteString("\n")
		}
		return b.String()
	}

	for _, it := range res.Items {
		when := it.Start.In(loc).Format("2006-01-02 15:04")
		source := it.SourceName
		if source == "" {
			source = string(it.SourceID)
		}
		b.WriteString(styles.DimStyle.Render(when))
		b.WriteString("  ")
		b.WriteString(styles.SourceStyle.Render(styles.Truncate(source, 16)))
		b.WriteString("  ")
		b.WriteString(styles.TitleStyle.Render(styles.Truncate(it.Title, width-36)))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderSources formats a provider catalog, one source per line.
func RenderSources(sources []domain.Source) string {
	var b strings.Builder
	for _, s := range sources {
		b.WriteString(styles.SourceStyle.Render(string(s.ID)))
		b.WriteString("  ")
		b.WriteString(s.Name)
		b.WriteString("\n")
	}
	return b.String()
}

// RenderFavorites formats the favorites list in its stored order.
func RenderFavorites(favs []domain.FavoriteRef) string {
	if len(favs) == 0 {
		return styles.DimStyle.Render("no favorites") + "\n"
	}
	var b strings.Builder
	for i, f := range favs {
		fmt.Fprintf(&b, "%2d. %s %s\n", i+1,
			styles.DimStyle.Render(fmt.Sprintf("[%s] %s/%s", f.Kind, f.ProviderID, f.SourceID)),
			styles.TitleStyle.Render(f.Name))
	}
	return b.String()
}
