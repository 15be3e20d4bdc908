// Package normalize converts provider event values into the shapes stored
// on show_date records: local timestamps, derived flags and publication
// status.
package normalize

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/locales"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/en_CA"
	"github.com/go-playground/locales/fr"
	"github.com/go-playground/locales/fr_CA"

	"showsync/internal/model"
	"showsync/internal/tuxedo"
)

// Provider flag values carried in Event.OtherStatus.
const (
	OtherStatusSoldOut = "soldOut"
	OtherStatusSchool  = "Scolaire"
)

// DefaultLocale formats title dates when none is configured.
const DefaultLocale = "fr_CA"

// layouts accepted for provider dates, tried in order. Layouts without an
// offset are read in the target location.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// ParseError reports a provider date that could not be read.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("normalize: cannot parse date %q: %v", e.Raw, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Normalizer holds the fixed target timezone and title locale.
type Normalizer struct {
	loc *time.Location
	tr  locales.Translator
}

// New builds a Normalizer for an IANA zone name and a locale tag
// (fr_CA, fr, en_CA, en).
func New(zone, locale string) (*Normalizer, error) {
	if zone == "" {
		zone = model.DefaultDisplayZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("normalize: load timezone %q: %w", zone, err)
	}
	tr, err := translator(locale)
	if err != nil {
		return nil, err
	}
	return &Normalizer{loc: loc, tr: tr}, nil
}

func translator(locale string) (locales.Translator, error) {
	switch strings.ReplaceAll(strings.TrimSpace(locale), "-", "_") {
	case "", "fr_CA":
		return fr_CA.New(), nil
	case "fr":
		return fr.New(), nil
	case "en_CA":
		return en_CA.New(), nil
	case "en":
		return en.New(), nil
	default:
		return nil, fmt.Errorf("normalize: unsupported locale %q", locale)
	}
}

// Location returns the target timezone.
func (n *Normalizer) Location() *time.Location { return n.loc }

// Date parses a provider timestamp and converts it to the target timezone.
func (n *Normalizer) Date(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, &ParseError{Raw: raw, Err: fmt.Errorf("empty value")}
	}
	var firstErr error
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, raw, n.loc)
		if err == nil {
			return t.In(n.loc), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, &ParseError{Raw: raw, Err: firstErr}
}

// StoredDate formats t the way the date field is stored.
func (n *Normalizer) StoredDate(t time.Time) string {
	return t.In(n.loc).Format(model.DateLayout)
}

// LongDate renders t as a localized long date followed by the short time,
// e.g. "1 janvier 2030 20 h 00".
func (n *Normalizer) LongDate(t time.Time) string {
	t = t.In(n.loc)
	return n.tr.FmtDateLong(t) + " " + n.tr.FmtTimeShort(t)
}

// Title builds a show_date title from the show title and performance time.
func (n *Normalizer) Title(showTitle string, t time.Time) string {
	return showTitle + " @ " + n.LongDate(t)
}

// IsSoldOut is true when the provider flags the event sold out either way.
func IsSoldOut(e tuxedo.Event) bool {
	return e.IsSoldOut || e.OtherStatus == OtherStatusSoldOut
}

// IsSchoolOnly is true for school-only performances.
func IsSchoolOnly(e tuxedo.Event) bool {
	return e.OtherStatus == OtherStatusSchool
}

// PostStatus is draft for closed events and publish otherwise.
func PostStatus(e tuxedo.Event) model.PostStatus {
	if e.IsClosed {
		return model.StatusDraft
	}
	return model.StatusPublish
}

// IsPast reports whether t is strictly before now.
func IsPast(t, now time.Time) bool {
	return t.Before(now)
}
