package calendar

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/intermernet/clubportal/internal/database"
)

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func mustWindow(t *testing.T, from, to string, loc *time.Location) Window {
	t.Helper()
	w, err := ParseWindow(from, to, loc)
	if err != nil {
		t.Fatalf("ParseWindow(%s, %s): %v", from, to, err)
	}
	return w
}

func dates(occ []Occurrence) []string {
	out := make([]string, len(occ))
	for i, o := range occ {
		out[i] = o.Start.Format(dateLayout)
	}
	return out
}

func TestExpandWeeklyFromFarPast(t *testing.T) {
	loc := berlin(t)
	ev := &database.Event{
		ID:         7,
		Title:      "Training",
		StartAt:    time.Date(2024, 6, 3, 18, 30, 0, 0, loc), // Monday
		Category:   database.CategoryTraining,
		Recurrence: database.RecurrenceWeekly,
		Exceptions: []string{"2025-01-13", "2025-01-15", "2023-01-02"},
	}

	got := Expand([]*database.Event{ev}, mustWindow(t, "2025-01-01", "2025-01-31", loc))

	want := []string{"2025-01-06", "2025-01-20", "2025-01-27"}
	if strings.Join(dates(got), ",") != strings.Join(want, ",") {
		t.Fatalf("dates = %v, want %v", dates(got), want)
	}
	for _, o := range got {
		if o.Start.Weekday() != time.Monday || o.Start.Hour() != 18 || o.Start.Minute() != 30 {
			t.Errorf("occurrence %v lost weekday or clock time", o.Start)
		}
		if daysBetween(ev.StartAt, o.Start)%7 != 0 {
			t.Errorf("occurrence %v is not a whole number of weeks after the start", o.Start)
		}
		if !o.Recurring || o.EventID != 7 || o.Title != "Training" {
			t.Errorf("occurrence fields not copied: %+v", o)
		}
	}
}

func TestFirstCandidateSkipsElapsedWeeks(t *testing.T) {
	start := time.Date(1990, 1, 1, 19, 0, 0, 0, time.UTC) // Monday
	windowStart := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	got := firstCandidate(start, windowStart)

	want := time.Date(2025, 1, 6, 19, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("firstCandidate = %v, want %v", got, want)
	}
}

func TestExpandWeeklyKeepsClockAcrossDST(t *testing.T) {
	loc := berlin(t)
	ev := &database.Event{
		ID:         1,
		StartAt:    time.Date(2025, 3, 17, 19, 0, 0, 0, loc),
		Recurrence: database.RecurrenceWeekly,
	}

	got := Expand([]*database.Event{ev}, mustWindow(t, "2025-03-20", "2025-04-08", loc))

	if len(got) != 3 {
		t.Fatalf("got %d occurrences, want 3: %v", len(got), dates(got))
	}
	for _, o := range got {
		if o.Start.Hour() != 19 {
			t.Errorf("occurrence %v is not at 19:00 local", o.Start)
		}
	}
}

func TestExpandWeeklyStartingInsideWindow(t *testing.T) {
	ev := &database.Event{
		ID:         2,
		StartAt:    time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
		Recurrence: database.RecurrenceWeekly,
	}

	got := Expand([]*database.Event{ev}, mustWindow(t, "2025-01-01", "2025-01-31", time.UTC))

	want := "2025-01-15,2025-01-22,2025-01-29"
	if strings.Join(dates(got), ",") != want {
		t.Fatalf("dates = %v, want %s", dates(got), want)
	}
}

func TestExpandWeeklyStartingAfterWindow(t *testing.T) {
	ev := &database.Event{
		StartAt:    time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Recurrence: database.RecurrenceWeekly,
	}
	if got := Expand([]*database.Event{ev}, mustWindow(t, "2025-01-01", "2025-01-31", time.UTC)); len(got) != 0 {
		t.Fatalf("got %v, want nothing", dates(got))
	}
}

func TestExpandSingleEvents(t *testing.T) {
	w := mustWindow(t, "2025-01-01", "2025-01-31", time.UTC)
	tests := []struct {
		name  string
		start time.Time
		want  int
	}{
		{"inside", time.Date(2025, 1, 10, 19, 0, 0, 0, time.UTC), 1},
		{"first day", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 1},
		{"last second", time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC), 1},
		{"before", time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC), 0},
		{"after", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := &database.Event{StartAt: tt.start, Recurrence: database.RecurrenceNone, Exceptions: []string{"2025-01-10"}}
			got := Expand([]*database.Event{ev}, w)
			if len(got) != tt.want {
				t.Fatalf("got %d occurrences, want %d", len(got), tt.want)
			}
			if tt.want == 1 && !got[0].Start.Equal(tt.start) {
				t.Errorf("start = %v, want %v", got[0].Start, tt.start)
			}
		})
	}
}

func TestExpandSortsByStart(t *testing.T) {
	w := mustWindow(t, "2025-01-01", "2025-01-14", time.UTC)
	events := []*database.Event{
		{ID: 1, Title: "Party", StartAt: time.Date(2025, 1, 9, 20, 0, 0, 0, time.UTC), Recurrence: database.RecurrenceNone},
		{ID: 2, Title: "Training", StartAt: time.Date(2024, 12, 5, 18, 0, 0, 0, time.UTC), Recurrence: database.RecurrenceWeekly},
		{ID: 3, Title: "Same time", StartAt: time.Date(2025, 1, 9, 18, 0, 0, 0, time.UTC), Recurrence: database.RecurrenceNone},
	}

	got := Expand(events, w)

	var ids []int64
	for _, o := range got {
		ids = append(ids, o.EventID)
	}
	want := []int64{2, 2, 3, 1}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
	if got[1].Key == got[2].Key {
		t.Error("occurrence keys must be unique")
	}
}

func TestWindowValidation(t *testing.T) {
	if _, err := ParseWindow("2025-02-01", "2025-01-01", time.UTC); !errors.Is(err, ErrWindowInverted) {
		t.Errorf("inverted window: err = %v", err)
	}
	if _, err := ParseWindow("2024-01-01", "2025-06-01", time.UTC); !errors.Is(err, ErrWindowTooLarge) {
		t.Errorf("large window: err = %v", err)
	}
	if _, err := ParseWindow("01.01.2025", "2025-01-31", time.UTC); err == nil {
		t.Error("expected error for non-ISO date")
	}
}

func TestRenderICS(t *testing.T) {
	w := mustWindow(t, "2025-01-01", "2025-01-31", time.UTC)
	ev := &database.Event{
		ID: 9, Title: "Training", Location: "Sportplatz", Category: database.CategoryTraining,
		StartAt: time.Date(2025, 1, 6, 18, 0, 0, 0, time.UTC), Recurrence: database.RecurrenceWeekly,
	}

	out := RenderICS(Expand([]*database.Event{ev}, w), "TSV Test", "club.example")

	if n := strings.Count(out, "BEGIN:VEVENT"); n != 4 {
		t.Errorf("VEVENT count = %d, want 4", n)
	}
	for _, want := range []string{"SUMMARY:Training", "LOCATION:Sportplatz", "DTSTART:20250106T180000Z", "UID:9-2025-01-06T18:00:00Z@club.example"} {
		if !strings.Contains(out, want) {
			t.Errorf("ICS output lacks %q", want)
		}
	}
}
