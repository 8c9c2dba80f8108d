package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/programista/programista/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func warsaw(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)
	return loc
}

func TestRenderSchedule(t *testing.T) {
	loc := warsaw(t)
	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	entry := domain.CacheEntry{
		Key:         domain.CacheKey{ProviderID: domain.ProviderTeleman, SourceID: "TVP-1", Day: "2026-02-15"},
		LastSuccess: now.Add(-time.Hour),
		TTL:         6 * time.Hour,
		Items: []domain.ScheduleItem{
			{SourceName: "TVP 1", Title: "Wiadomości", Start: time.Date(2026, 2, 15, 18, 30, 0, 0, time.UTC),
				Accessibility: []domain.AccessibilityFlag{domain.FlagAudioDescription}},
			{SourceName: "TVP 1", Title: "Pogoda", Subtitle: "Prognoza na jutro", Start: time.Date(2026, 2, 15, 19, 5, 0, 0, time.UTC)},
		},
	}

	out := RenderSchedule(entry, loc, now, 80)
	assert.Contains(t, out, "TVP 1 · 2026-02-15")
	assert.Contains(t, out, "19:30")
	assert.Contains(t, out, "Wiadomości")
	assert.Contains(t, out, "AD")
	assert.Contains(t, out, "Prognoza na jutro")
	assert.Less(t, strings.Index(out, "Wiadomości"), strings.Index(out, "Pogoda"))
}

func TestRenderScheduleNotes(t *testing.T) {
	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	entry := domain.CacheEntry{
		Key:       domain.CacheKey{ProviderID: domain.ProviderTeleman, SourceID: "TVN", Day: "2026-02-15"},
		LastError: &domain.EntryError{Class: domain.ClassTransient, Message: "timeout", At: now},
	}

	out := RenderSchedule(entry, time.UTC, now, 80)
	assert.Contains(t, out, "TVN · 2026-02-15")
	assert.Contains(t, out, "temporarily unavailable")
	assert.Contains(t, out, "no broadcasts")
}

func TestRenderSearch(t *testing.T) {
	res := domain.SearchResult{
		Items:       []domain.ScheduleItem{{SourceID: "TVP-INFO", Title: "Wiadomości", Start: time.Date(2026, 2, 15, 11, 0, 0, 0, time.UTC)}},
		RemoteError: "remote search unavailable",
	}
	out := RenderSearch(res, time.UTC, 80)
	assert.Contains(t, out, "cached results only")
	assert.Contains(t, out, "2026-02-15 11:00")
	assert.Contains(t, out, "TVP-INFO")

	out = RenderSearch(domain.SearchResult{Suggestions: []string{"Sport"}}, time.UTC, 80)
	assert.Contains(t, out, "nothing found")
	assert.Contains(t, out, "did you mean: ")
	assert.Contains(t, out, "Sport")
}

func TestRenderFavorites(t *testing.T) {
	assert.Contains(t, RenderFavorites(nil), "no favorites")

	out := RenderFavorites([]domain.FavoriteRef{
		{Kind: domain.KindRadio, ProviderID: domain.ProviderPolskieRadio, SourceID: "trojka", Name: "Trójka"},
	})
	assert.Contains(t, out, " 1. ")
	assert.Contains(t, out, "[radio] polskieradio/trojka")
	assert.Contains(t, out, "Trójka")
}

func TestObserveDropsWhenFull(t *testing.T) {
	obs, ch := Observe(1)
	obs.OnProgress(domain.SyncProgress{Stage: "tv", Done: 1})
	obs.OnProgress(domain.SyncProgress{Stage: "tv", Done: 2})

	require.Len(t, ch, 1)
	assert.Equal(t, 1, (<-ch).Done)
}

func TestSyncModelTracksStages(t *testing.T) {
	cancelled := false
	m := NewSyncModel(nil, nil, func() { cancelled = true })

	step := func(msg tea.Msg) {
		next, _ := m.Update(msg)
		m = next.(SyncModel)
	}

	step(ProgressMsg{Stage: "tv", Total: 4, Done: 0})
	step(ProgressMsg{Stage: "tv", Total: 4, Done: 3})
	step(ProgressMsg{Stage: "tv", Total: 4, Done: 2})
	assert.Equal(t, 3, m.stages["tv"].done)
	assert.Contains(t, m.View(), "3/4")

	step(ProgressMsg{Stage: "radio", Total: 2, Done: 1, Errors: 1})
	view := m.View()
	assert.Contains(t, view, "✓ ")
	assert.Contains(t, view, "radio")
	assert.Equal(t, []string{"tv", "radio"}, m.order)

	step(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, cancelled)

	next, cmd := m.Update(SyncDoneMsg{Err: context.Canceled})
	m = next.(SyncModel)
	require.NotNil(t, cmd)
	assert.True(t, m.finished)
	assert.Contains(t, m.Summary(), "sync cancelled")
	assert.NoError(t, m.Err())
}

func TestSyncModelSummary(t *testing.T) {
	m := NewSyncModel(nil, nil, nil)
	next, _ := m.Update(ProgressMsg{Finished: true, Errors: 2, Message: "done"})
	next, _ = next.Update(SyncDoneMsg{})
	assert.Contains(t, next.(SyncModel).Summary(), "finished with 2 errors")

	boom := errors.New("boom")
	next, _ = NewSyncModel(nil, nil, nil).Update(SyncDoneMsg{Err: boom})
	assert.ErrorIs(t, next.(SyncModel).Err(), boom)
	assert.Contains(t, next.(SyncModel).View(), "sync failed: boom")
}
