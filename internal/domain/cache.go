package domain

import (
	"fmt"
	"time"
)

// CacheKey identifies one cached schedule: a provider's source on one day.
type CacheKey struct {
	ProviderID ProviderID `json:"provider_id"`
	SourceID   SourceID   `json:"source_id"`
	Day        Date       `json:"day"`
}

// String renders the key in its persisted form.
func (k CacheKey) String() string {
	return fmt.Sprintf("schedule:v1:%s:%s:%s", k.ProviderID, k.SourceID, k.Day)
}

// Validate checks that every component of the key is present.
func (k CacheKey) Validate() error {
	if k.ProviderID == "" || k.SourceID == "" {
		return fmt.Errorf("incomplete cache key %q", k.String())
	}
	if !k.Day.Valid() {
		return fmt.Errorf("%w: day %q", ErrInvalidRange, k.Day)
	}
	return nil
}

// EntryError is the persisted annotation of the last failed fetch.
type EntryError struct {
	Class   ErrorClass `json:"class"`
	Message string     `json:"message"`
	At      time.Time  `json:"at"`
}

// Err converts the annotation back into an error matching its class sentinel.
func (e *EntryError) Err() error {
	if e == nil {
		return nil
	}
	return fmt.Errorf("%w: %s", e.Class.Sentinel(), e.Message)
}

// CacheEntry is the persisted result of the most recent fetch attempts for a key.
// An entry that never succeeded has no items and a non-nil LastError.
type CacheEntry struct {
	Key         CacheKey       `json:"key"`
	Items       []ScheduleItem `json:"items"`
	LastSuccess time.Time      `json:"last_success,omitzero"`
	LastAttempt time.Time      `json:"last_attempt,omitzero"`
	LastError   *EntryError    `json:"last_error,omitempty"`
	TTL         time.Duration  `json:"ttl"`
	Failures    int            `json:"failures,omitempty"`
	ETag        string         `json:"etag,omitempty"`
	ContentHash string         `json:"content_hash,omitempty"`
	Discarded   int            `json:"discarded,omitempty"`
}

// HasSucceeded reports whether any fetch for the key ever succeeded.
func (e CacheEntry) HasSucceeded() bool {
	return !e.LastSuccess.IsZero()
}

// IsFresh reports whether the entry can be served without a fetch.
// Once false for some now it stays false for every later now.
func (e CacheEntry) IsFresh(now time.Time) bool {
	if !e.HasSucceeded() || e.TTL <= 0 {
		return false
	}
	return now.Sub(e.LastSuccess) < e.TTL
}

// Age returns how long ago the last successful fetch happened.
func (e CacheEntry) Age(now time.Time) time.Duration {
	if !e.HasSucceeded() {
		return 0
	}
	return now.Sub(e.LastSuccess)
}

// Note renders a short staleness or failure note for display, or "" when
// the entry is fresh and healthy.
func (e CacheEntry) Note(now time.Time) string {
	if e.LastError == nil {
		if e.HasSucceeded() && !e.IsFresh(now) {
			return fmt.Sprintf("schedule last updated %s", e.LastSuccess.Local().Format("2006-01-02 15:04"))
		}
		return ""
	}

	var reason string
	switch e.LastError.Class {
	case ClassPermanent:
		reason = "this schedule is not available from the provider"
	case ClassParse:
		reason = "the provider page could not be read"
	default:
		reason = "the provider is temporarily unavailable"
	}
	if !e.HasSucceeded() {
		return reason
	}
	return fmt.Sprintf("%s; showing schedule from %s", reason, e.LastSuccess.Local().Format("2006-01-02 15:04"))
}
