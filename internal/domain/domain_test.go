package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheEntryIsFresh(t *testing.T) {
	base := time.Date(2026, 1, 6, 12, 0, 0, 0, time.UTC)
	entry := CacheEntry{LastSuccess: base, TTL: time.Hour}

	assert.True(t, entry.IsFresh(base))
	assert.True(t, entry.IsFresh(base.Add(59*time.Minute)))
	assert.False(t, entry.IsFresh(base.Add(time.Hour)))

	t.Run("never succeeded is never fresh", func(t *testing.T) {
		e := CacheEntry{LastAttempt: base, TTL: time.Hour, LastError: &EntryError{Class: ClassTransient}}
		assert.False(t, e.IsFresh(base))
	})

	t.Run("monotonic once stale", func(t *testing.T) {
		offsets := []time.Duration{-2 * time.Hour, 0, 30 * time.Minute, time.Hour, 90 * time.Minute, 48 * time.Hour}
		stale := false
		for _, off := range offsets {
			fresh := entry.IsFresh(base.Add(off))
			if stale {
				assert.False(t, fresh, "offset %s", off)
			}
			if !fresh {
				stale = true
			}
		}
	})
}

func TestCacheKeyString(t *testing.T) {
	key := CacheKey{ProviderID: ProviderTeleman, SourceID: "TVP-1", Day: "2026-01-06"}
	assert.Equal(t, "schedule:v1:teleman:TVP-1:2026-01-06", key.String())
	require.NoError(t, key.Validate())

	bad := CacheKey{ProviderID: ProviderTeleman, SourceID: "TVP-1", Day: "06.01.2026"}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRange)
}

func TestDateRange(t *testing.T) {
	r := DateRange{From: "2026-01-30", To: "2026-02-02"}
	require.NoError(t, r.Validate(MaxRangeDays))
	assert.Equal(t, []Date{"2026-01-30", "2026-01-31", "2026-02-01", "2026-02-02"}, r.Days())

	tests := []struct {
		name string
		r    DateRange
	}{
		{"inverted", DateRange{From: "2026-01-02", To: "2026-01-01"}},
		{"too long", DateRange{From: "2026-01-01", To: "2026-01-20"}},
		{"malformed", DateRange{From: "yesterday", To: "2026-01-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.r.Validate(MaxRangeDays), ErrInvalidRange)
		})
	}
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"provider error", NewProviderError(ClassParse, ProviderTeleman, "fetch", errors.New("no list")), ClassParse},
		{"wrapped provider error", fmt.Errorf("resolve: %w", NewProviderError(ClassPermanent, ProviderFandom, "fetch", nil)), ClassPermanent},
		{"unknown source", fmt.Errorf("%w: X", ErrUnknownSource), ClassPermanent},
		{"deadline", context.DeadlineExceeded, ClassTransient},
		{"anything else", errors.New("boom"), ClassTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassOf(tt.err))
		})
	}
}

func TestProviderErrorMatchesSentinel(t *testing.T) {
	err := NewProviderError(ClassTransient, ProviderPolskieRadio, "fetch", errors.New("status 503"))
	assert.ErrorIs(t, err, ErrTransientProvider)
	assert.NotErrorIs(t, err, ErrParse)
	assert.Contains(t, err.Error(), "polskieradio fetch: transient")

	entryErr := &EntryError{Class: ClassParse, Message: "missing list"}
	assert.ErrorIs(t, entryErr.Err(), ErrParse)
}

func TestCacheEntryNote(t *testing.T) {
	now := time.Date(2026, 1, 6, 12, 0, 0, 0, time.UTC)

	fresh := CacheEntry{LastSuccess: now, TTL: time.Hour}
	assert.Empty(t, fresh.Note(now))

	failed := CacheEntry{LastAttempt: now, LastError: &EntryError{Class: ClassPermanent}}
	assert.Equal(t, "this schedule is not available from the provider", failed.Note(now))

	stale := CacheEntry{LastSuccess: now.Add(-3 * time.Hour), TTL: time.Hour, LastError: &EntryError{Class: ClassTransient}}
	assert.Contains(t, stale.Note(now), "temporarily unavailable; showing schedule from")
}

func TestScopeFilter(t *testing.T) {
	item := ScheduleItem{ProviderID: ProviderPolskieRadio, SourceID: "trojka", Day: "2026-01-06"}

	assert.True(t, ScopeFilter{}.Matches(item))
	assert.True(t, ScopeFilter{Kinds: []Kind{KindRadio}}.Matches(item))
	assert.False(t, ScopeFilter{Kinds: []Kind{KindTV}}.Matches(item))
	assert.False(t, ScopeFilter{Sources: []SourceID{"jedynka"}}.Matches(item))

	assert.True(t, DateFilter{From: "2026-01-06"}.Matches(item.Day))
	assert.False(t, DateFilter{To: "2026-01-05"}.Matches(item.Day))
}
