package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := NewService(filepath.Join(t.TempDir(), "club.db"))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func mustMember(t *testing.T, s *Service, first, last string, hidden bool) *Member {
	t.Helper()
	m, err := s.SaveMember(context.Background(), &Member{
		FirstName: first,
		LastName:  last,
		Role:      RoleMember,
		Status:    StatusActive,
		Hidden:    hidden,
	})
	if err != nil {
		t.Fatalf("SaveMember(%s %s): %v", first, last, err)
	}
	return m
}

func mustEvent(t *testing.T, s *Service, title string, start time.Time) int64 {
	t.Helper()
	id, err := s.CreateImportedEvent(context.Background(), Event{
		Title:      title,
		StartAt:    start,
		Category:   CategoryTraining,
		Recurrence: RecurrenceNone,
	})
	if err != nil {
		t.Fatalf("CreateImportedEvent: %v", err)
	}
	return id
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestService(t)
	if err := s.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestUpsertAttendanceOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	m := mustMember(t, s, "Max", "Mustermann", false)
	ev := mustEvent(t, s, "Training", time.Date(2025, 2, 1, 18, 0, 0, 0, time.UTC))

	if err := s.SaveAttendance(ctx, ev, m.ID, AttendanceAbsent); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveAttendance(ctx, ev, m.ID, AttendanceActive); err != nil {
		t.Fatal(err)
	}

	records, err := s.GetAttendanceByEvent(ctx, s.DB(), ev)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Status != AttendanceActive {
		t.Errorf("status = %q, want active", records[0].Status)
	}
}

func TestFindEventOnDayPicksEarliestCreated(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	day := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)

	first := mustEvent(t, s, "Legacy", day.Add(20*time.Hour))
	mustEvent(t, s, "Newer", day.Add(10*time.Hour))
	mustEvent(t, s, "Next day", day.Add(30*time.Hour))

	id, found, err := s.FindEventOnDay(ctx, day, day.Add(24*time.Hour-time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if !found || id != first {
		t.Fatalf("got (%d, %v), want (%d, true)", id, found, first)
	}

	_, found, err = s.FindEventOnDay(ctx, day.AddDate(0, 0, 5), day.AddDate(0, 0, 6))
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("expected no event on an empty day")
	}
}

func TestExceptionsOnlyForWeeklyEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	var single, weekly *Event
	err := s.Write(ctx, func(tx *sql.Tx) error {
		var err error
		single, err = s.CreateEvent(ctx, tx, &Event{
			Title: "Party", StartAt: time.Date(2025, 5, 1, 19, 0, 0, 0, time.UTC),
			Category: CategoryParty, Recurrence: RecurrenceNone, Exceptions: []string{"2025-05-01"},
		})
		if err != nil {
			return err
		}
		weekly, err = s.CreateEvent(ctx, tx, &Event{
			Title: "Training", StartAt: time.Date(2024, 6, 3, 17, 0, 0, 0, time.UTC),
			Category: CategoryTraining, Recurrence: RecurrenceWeekly, Exceptions: []string{"2025-01-13"},
		})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(single.Exceptions) != 0 {
		t.Errorf("single event kept exceptions %v", single.Exceptions)
	}
	if len(weekly.Exceptions) != 1 || weekly.Exceptions[0] != "2025-01-13" {
		t.Errorf("weekly exceptions = %v", weekly.Exceptions)
	}

	err = s.Write(ctx, func(tx *sql.Tx) error {
		return s.SetEventExceptions(ctx, tx, single.ID, []string{"2025-05-08"})
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("SetEventExceptions on single event: err = %v, want ErrNotFound", err)
	}

	events, err := s.ListEventsForWindow(ctx, s.DB(),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].ID != weekly.ID {
		t.Fatalf("ListEventsForWindow = %v, want only the weekly event", events)
	}
}

func TestDeleteEventCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	m := mustMember(t, s, "Erika", "Musterfrau", false)
	ev := mustEvent(t, s, "Spiel", time.Date(2025, 2, 1, 18, 0, 0, 0, time.UTC))
	if err := s.SaveAttendance(ctx, ev, m.ID, AttendanceActive); err != nil {
		t.Fatal(err)
	}

	if err := s.Write(ctx, func(tx *sql.Tx) error { return s.DeleteEvent(ctx, tx, ev) }); err != nil {
		t.Fatal(err)
	}

	var n int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM attendance`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("attendance rows after delete = %d, want 0", n)
	}
}

func TestMatchResultMarksPlayersActiveAndCountsGoals(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	scorer := mustMember(t, s, "Max", "Mustermann", false)
	keeper := mustMember(t, s, "Tom", "Torwart", false)
	hidden := mustMember(t, s, "Geist", "Versteckt", true)
	start := time.Date(2025, 2, 1, 18, 0, 0, 0, time.UTC)
	ev := mustEvent(t, s, "Turnier", start)

	var result *MatchResult
	err := s.Write(ctx, func(tx *sql.Tx) error {
		var err error
		result, err = s.CreateMatchResult(ctx, tx, &MatchResult{
			EventID: ev, Opponent: "FC Nachbarort", ScoreHome: 3, ScoreAway: 1,
			Goals: []Goal{{MemberID: scorer.ID, Goals: 2}, {MemberID: hidden.ID, Goals: 1}},
		}, []int64{keeper.ID})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Goals) != 2 || result.Goals[0].MemberID != scorer.ID {
		t.Fatalf("goals = %+v", result.Goals)
	}

	stats, err := s.GetMemberStats(ctx, s.DB(), start.Add(-time.Hour), start.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 {
		t.Fatalf("stats for %d members, want 2 visible", len(stats))
	}
	for _, st := range stats {
		if st.Counts[AttendanceActive] != 1 {
			t.Errorf("member %d active = %d, want 1", st.MemberID, st.Counts[AttendanceActive])
		}
		if st.MemberID == scorer.ID && st.Goals != 2 {
			t.Errorf("scorer goals = %d, want 2", st.Goals)
		}
	}
}

func TestImportRunsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	run := ImportRun{
		ID: "run-1", Kind: "attendance", FileName: "saison.csv",
		StartedAt: time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC), DateColumns: 3, RecordsWritten: 12,
	}
	if err := s.RecordImportRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	runs, err := s.ListImportRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	got := runs[0]
	if got.ID != run.ID || got.RecordsWritten != 12 || got.DateColumns != 3 || !got.StartedAt.Equal(run.StartedAt) {
		t.Fatalf("run = %+v", got)
	}
}
