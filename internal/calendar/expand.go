// Package calendar turns stored events into concrete occurrences for a date
// window and renders them as an iCalendar feed.
package calendar

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/intermernet/clubportal/internal/database"
)

const (
	dateLayout = "2006-01-02"

	// MaxWindowDays caps a window so a single request stays cheap.
	MaxWindowDays = 366
)

var (
	ErrWindowInverted = errors.New("calendar: window end is before window start")
	ErrWindowTooLarge = fmt.Errorf("calendar: window exceeds %d days", MaxWindowDays)
)

// Window is a closed range of calendar dates interpreted in Location.
type Window struct {
	From     time.Time // midnight of the first day
	To       time.Time // midnight of the last day
	Location *time.Location
}

// NewWindow builds a window from two instants; only their calendar dates in
// loc matter.
func NewWindow(from, to time.Time, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.Local
	}
	w := Window{
		From:     midnight(from.In(loc)),
		To:       midnight(to.In(loc)),
		Location: loc,
	}
	if w.To.Before(w.From) {
		return Window{}, ErrWindowInverted
	}
	if daysBetween(w.From, w.To) >= MaxWindowDays {
		return Window{}, ErrWindowTooLarge
	}
	return w, nil
}

// ParseWindow builds a window from two YYYY-MM-DD strings.
func ParseWindow(from, to string, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.Local
	}
	f, err := time.ParseInLocation(dateLayout, from, loc)
	if err != nil {
		return Window{}, fmt.Errorf("calendar: bad from date %q", from)
	}
	t, err := time.ParseInLocation(dateLayout, to, loc)
	if err != nil {
		return Window{}, fmt.Errorf("calendar: bad to date %q", to)
	}
	return NewWindow(f, t, loc)
}

// Start is the first instant of the window.
func (w Window) Start() time.Time { return w.From }

// End is the last whole second of the window's final day.
func (w Window) End() time.Time { return w.To.AddDate(0, 0, 1).Add(-time.Second) }

// Contains reports whether t's calendar date in the window's location lies
// inside the window.
func (w Window) Contains(t time.Time) bool {
	d := t.In(w.Location).Format(dateLayout)
	return d >= w.From.Format(dateLayout) && d <= w.To.Format(dateLayout)
}

// Occurrence is one materialized instance of an event. It is never stored.
type Occurrence struct {
	Key       string            `json:"key"`
	EventID   int64             `json:"eventId"`
	Title     string            `json:"title"`
	Category  database.Category `json:"category"`
	Location  string            `json:"location"`
	Start     time.Time         `json:"start"`
	Recurring bool              `json:"recurring"`
}

// Expand materializes the occurrences of events inside w, sorted by start.
// Events with equal starts keep their input order.
func Expand(events []*database.Event, w Window) []Occurrence {
	out := make([]Occurrence, 0, len(events))
	for _, ev := range events {
		switch ev.Recurrence {
		case database.RecurrenceWeekly:
			out = append(out, expandWeekly(ev, w)...)
		default:
			if w.Contains(ev.StartAt) {
				out = append(out, makeOccurrence(ev, ev.StartAt.In(w.Location)))
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// expandWeekly steps a weekly event through w. The first candidate is found
// arithmetically, so the cost depends on the weeks inside the window and not
// on how long ago the series started.
func expandWeekly(ev *database.Event, w Window) []Occurrence {
	start := firstCandidate(ev.StartAt.In(w.Location), w.From)
	if !start.Before(w.To.AddDate(0, 0, 1)) {
		return nil
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.WEEKLY,
		Dtstart: start,
		Until:   w.End(),
	})
	if err != nil {
		log.Printf("WARN: could not build recurrence for event %d: %v", ev.ID, err)
		return nil
	}

	skip := make(map[string]struct{}, len(ev.Exceptions))
	for _, d := range ev.Exceptions {
		skip[strings.TrimSpace(d)] = struct{}{}
	}

	var out []Occurrence
	for _, t := range r.All() {
		if !w.Contains(t) {
			continue
		}
		if _, excluded := skip[t.Format(dateLayout)]; excluded {
			continue
		}
		out = append(out, makeOccurrence(ev, t))
	}
	return out
}

// firstCandidate returns the first weekly step of start that falls on or
// after the calendar day windowStart. Wall-clock time is kept across DST.
func firstCandidate(start, windowStart time.Time) time.Time {
	startDay := midnight(start)
	if !startDay.Before(windowStart) {
		return start
	}
	days := daysBetween(startDay, windowStart)
	weeks := (days + 6) / 7
	return start.AddDate(0, 0, 7*weeks)
}

func makeOccurrence(ev *database.Event, start time.Time) Occurrence {
	return Occurrence{
		Key:       fmt.Sprintf("%d-%s", ev.ID, start.UTC().Format(time.RFC3339)),
		EventID:   ev.ID,
		Title:     ev.Title,
		Category:  ev.Category,
		Location:  ev.Location,
		Start:     start,
		Recurring: ev.Recurrence == database.RecurrenceWeekly,
	}
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// daysBetween counts calendar days from a to b, ignoring DST length changes.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
