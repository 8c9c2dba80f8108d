package domain

import (
	"fmt"
	"slices"
	"time"
)

// Kind groups providers by what they broadcast.
type Kind string

const (
	KindTV              Kind = "tv"
	KindRadio           Kind = "radio"
	KindTVAccessibility Kind = "tv_accessibility"
	KindArchive         Kind = "archive"
)

// Kinds lists every kind in display order.
var Kinds = []Kind{KindTV, KindTVAccessibility, KindRadio, KindArchive}

// ProviderID identifies one external schedule source.
type ProviderID string

const (
	ProviderTeleman      ProviderID = "teleman"
	ProviderTelemanA11y  ProviderID = "teleman-a11y"
	ProviderPolskieRadio ProviderID = "polskieradio"
	ProviderFandom       ProviderID = "fandom"
)

// Kind returns the kind of schedule the provider publishes.
func (p ProviderID) Kind() Kind {
	switch p {
	case ProviderTelemanA11y:
		return KindTVAccessibility
	case ProviderPolskieRadio:
		return KindRadio
	case ProviderFandom:
		return KindArchive
	default:
		return KindTV
	}
}

// SourceID identifies a channel or station within a provider.
type SourceID string

// Source is one entry of a provider's scope catalog.
type Source struct {
	ProviderID ProviderID `json:"provider_id"`
	ID         SourceID   `json:"id"`
	Name       string     `json:"name"`
}

// AccessibilityFlag marks an accessibility feature of a broadcast.
type AccessibilityFlag string

const (
	FlagAudioDescription AccessibilityFlag = "AD"
	FlagSignLanguage     AccessibilityFlag = "JM"
	FlagSubtitles        AccessibilityFlag = "N"
)

// AccessibilityFlags lists the known flags in canonical order.
var AccessibilityFlags = []AccessibilityFlag{FlagAudioDescription, FlagSignLanguage, FlagSubtitles}

// Label returns the human readable name of the flag.
func (f AccessibilityFlag) Label() string {
	switch f {
	case FlagAudioDescription:
		return "audio description"
	case FlagSignLanguage:
		return "sign language"
	case FlagSubtitles:
		return "subtitles"
	default:
		return string(f)
	}
}

// DateLayout is the wire and key format of a broadcast day.
const DateLayout = "2006-01-02"

// Date is a civil broadcast day (YYYY-MM-DD) without a zone.
type Date string

// DateOf returns the civil day of t in t's location.
func DateOf(t time.Time) Date {
	return Date(t.Format(DateLayout))
}

// ParseDate validates s as a broadcast day.
func ParseDate(s string) (Date, error) {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date(s), nil
}

// Valid reports whether d is a well formed day.
func (d Date) Valid() bool {
	_, err := time.Parse(DateLayout, string(d))
	return err == nil
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	t, err := time.ParseInLocation(DateLayout, string(d), loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// AddDays returns the day n days after d.
func (d Date) AddDays(n int) Date {
	t := d.In(time.UTC)
	if t.IsZero() {
		return d
	}
	return DateOf(t.AddDate(0, 0, n))
}

// Before reports whether d is earlier than other. Both must be valid.
func (d Date) Before(other Date) bool {
	return d < other
}

func (d Date) String() string {
	return string(d)
}

// ScheduleItem is one broadcast in canonical form. Start and End are stored
// in UTC; End is zero when the source did not publish it and it could not be
// inferred.
type ScheduleItem struct {
	ProviderID    ProviderID          `json:"provider_id"`
	SourceID      SourceID            `json:"source_id"`
	SourceName    string              `json:"source_name"`
	Day           Date                `json:"day"`
	Title         string              `json:"title"`
	Subtitle      string              `json:"subtitle,omitempty"`
	Description   string              `json:"description,omitempty"`
	Start         time.Time           `json:"start"`
	End           time.Time           `json:"end,omitzero"`
	Accessibility []AccessibilityFlag `json:"accessibility,omitempty"`
	DetailsRef    string              `json:"details_ref,omitempty"`
}

// HasEnd reports whether the item carries an end time.
func (i ScheduleItem) HasEnd() bool {
	return !i.End.IsZero()
}

// HasFlag reports whether the item carries the accessibility flag.
func (i ScheduleItem) HasFlag(f AccessibilityFlag) bool {
	return slices.Contains(i.Accessibility, f)
}

// Duration returns the broadcast length, or zero when End is unknown.
func (i ScheduleItem) Duration() time.Duration {
	if !i.HasEnd() {
		return 0
	}
	return i.End.Sub(i.Start)
}

// DateRange is an inclusive range of broadcast days.
type DateRange struct {
	From Date `json:"from"`
	To   Date `json:"to"`
}

// SingleDay returns the range covering only d.
func SingleDay(d Date) DateRange {
	return DateRange{From: d, To: d}
}

// Days expands the range into its individual days.
func (r DateRange) Days() []Date {
	if !r.From.Valid() || !r.To.Valid() {
		return nil
	}
	var days []Date
	for d := r.From; !r.To.Before(d); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// Validate rejects malformed, inverted and oversized ranges.
func (r DateRange) Validate(maxDays int) error {
	if !r.From.Valid() || !r.To.Valid() {
		return fmt.Errorf("%w: malformed range %s..%s", ErrInvalidRange, r.From, r.To)
	}
	if r.To.Before(r.From) {
		return fmt.Errorf("%w: %s is before %s", ErrInvalidRange, r.To, r.From)
	}
	span := r.To.In(time.UTC).Sub(r.From.In(time.UTC))
	if int(span.Hours()/24)+1 > maxDays {
		return fmt.Errorf("%w: more than %d days", ErrInvalidRange, maxDays)
	}
	return nil
}
