// Package ics renders imported show dates as an iCalendar feed.
package ics

import (
	"io"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "showsync/internal/log"
	"showsync/internal/model"
)

// DefaultDuration is the event length used when none is configured. The
// provider sends only start times.
const DefaultDuration = 2 * time.Hour

// FeedOptions controls which show dates appear in the feed.
type FeedOptions struct {
	Name     string
	Duration time.Duration
	// Now selects upcoming dates; defaults to time.Now.
	Now func() time.Time
	// IncludeDrafts also lists closed (draft) dates, marked tentative.
	IncludeDrafts bool
}

// BuildFeed returns a calendar of upcoming show dates ordered by start
// time. Shells without a start time are left out.
func BuildFeed(dates []model.ShowDate, opts FeedOptions) *ical.Calendar {
	if opts.Duration <= 0 {
		opts.Duration = DefaultDuration
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Name == "" {
		opts.Name = "Show dates"
	}
	now := opts.Now()

	upcoming := make([]model.ShowDate, 0, len(dates))
	for _, sd := range dates {
		if sd.Start.IsZero() || sd.Start.Before(now) {
			continue
		}
		if sd.Status != model.StatusPublish && !opts.IncludeDrafts {
			continue
		}
		upcoming = append(upcoming, sd)
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].Start.Before(upcoming[j].Start)
	})

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//showsync//show dates//FR")
	cal.SetName(opts.Name)
	cal.SetXWRCalName(opts.Name)
	cal.SetRefreshInterval("PT12H")

	for _, sd := range upcoming {
		ev := cal.AddEvent(sd.UUID + "@showsync")
		ev.SetDtStampTime(now.UTC())
		ev.SetStartAt(sd.Start.UTC())
		ev.SetEndAt(sd.Start.Add(opts.Duration).UTC())
		ev.SetSummary(sd.Title)
		if sd.TuxedoURL != "" {
			ev.SetURL(sd.TuxedoURL)
		}
		if desc := describe(sd); desc != "" {
			ev.SetDescription(desc)
		}
		if sd.Status == model.StatusDraft {
			ev.SetStatus(ical.ObjectStatusTentative)
		} else {
			ev.SetStatus(ical.ObjectStatusConfirmed)
		}
	}

	appLog.Debug("ics feed built", "event_count", len(upcoming), "candidates", len(dates))
	return cal
}

func describe(sd model.ShowDate) string {
	var notes []string
	if sd.SoldOut {
		notes = append(notes, "Sold out")
	}
	if sd.SchoolOnly {
		notes = append(notes, "School performance")
	}
	if sd.TuxedoURL != "" && !sd.SoldOut {
		notes = append(notes, "Tickets: "+sd.TuxedoURL)
	}
	return strings.Join(notes, "\n")
}

// WriteFeed serializes cal to w.
func WriteFeed(w io.Writer, cal *ical.Calendar) error {
	_, err := io.WriteString(w, cal.Serialize())
	return err
}
