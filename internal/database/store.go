package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// The methods in this file are the context-only surface the CSV importers
// and the CLI work against. Reads use the shared connection; each write is
// its own short transaction so one failing cell never blocks the next.

// FindEventOnDay returns the earliest-created event whose start falls in
// [dayStart, dayEnd].
func (s *Service) FindEventOnDay(ctx context.Context, dayStart, dayEnd time.Time) (int64, bool, error) {
	e, err := s.FindFirstEventBetween(ctx, s.db, dayStart, dayEnd)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return e.ID, true, nil
}

// CreateImportedEvent inserts ev and returns its new ID.
func (s *Service) CreateImportedEvent(ctx context.Context, ev Event) (int64, error) {
	var id int64
	err := s.Write(ctx, func(tx *sql.Tx) error {
		created, err := s.CreateEvent(ctx, tx, &ev)
		if err != nil {
			return err
		}
		id = created.ID
		return nil
	})
	return id, err
}

// ListVisibleMembers returns the roster without hidden members.
func (s *Service) ListVisibleMembers(ctx context.Context) ([]*Member, error) {
	return s.ListMembers(ctx, s.db, false)
}

// ListAllMembers returns the roster including hidden members.
func (s *Service) ListAllMembers(ctx context.Context) ([]*Member, error) {
	return s.ListMembers(ctx, s.db, true)
}

// SaveAttendance upserts one attendance record.
func (s *Service) SaveAttendance(ctx context.Context, eventID, memberID int64, status AttendanceStatus) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		return s.UpsertAttendance(ctx, tx, eventID, memberID, status)
	})
}

// SaveMember creates m when its ID is zero and updates it otherwise.
func (s *Service) SaveMember(ctx context.Context, m *Member) (*Member, error) {
	var saved *Member
	err := s.Write(ctx, func(tx *sql.Tx) error {
		if m.ID == 0 {
			created, err := s.CreateMember(ctx, tx, m)
			saved = created
			return err
		}
		if err := s.UpdateMember(ctx, tx, m); err != nil {
			return err
		}
		saved = m
		return nil
	})
	return saved, err
}

// RecordImportRun persists an import summary.
func (s *Service) RecordImportRun(ctx context.Context, run ImportRun) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO import_runs (id, kind, file_name, started_at, date_columns, records_written, members_not_found, errors)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?);`,
			run.ID, run.Kind, run.FileName, formatTime(run.StartedAt),
			run.DateColumns, run.RecordsWritten, run.MembersNotFound, run.Errors,
		)
		return err
	})
}

// ListImportRuns returns the most recent runs first.
func (s *Service) ListImportRuns(ctx context.Context, limit int) ([]*ImportRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, file_name, started_at, date_columns, records_written, members_not_found, errors
		 FROM import_runs ORDER BY started_at DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*ImportRun
	for rows.Next() {
		r := &ImportRun{}
		var startedAt string
		if err := rows.Scan(&r.ID, &r.Kind, &r.FileName, &startedAt, &r.DateColumns, &r.RecordsWritten, &r.MembersNotFound, &r.Errors); err != nil {
			return nil, err
		}
		r.StartedAt, _ = parseTime(startedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
