package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DBorTx is an interface that allows functions to accept either a `*sql.DB` for single queries
// or a `*sql.Tx` for operations within a transaction. This promotes code reuse.
type DBorTx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// timeLayout stores instants as UTC RFC3339 text so that string comparison
// in SQL orders them chronologically.
const timeLayout = "2006-01-02T15:04:05Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	// created_at columns carry fractional seconds.
	return time.Parse(time.RFC3339Nano, s)
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Member Queries ---

const memberColumns = `id, first_name, last_name, email, phone, role, status, hidden,
	birth_date, city, joined_on, left_on, password_hash, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*Member, error) {
	m := &Member{}
	var createdAt string
	err := row.Scan(
		&m.ID, &m.FirstName, &m.LastName, &m.Email, &m.Phone, &m.Role, &m.Status, &m.Hidden,
		&m.BirthDate, &m.City, &m.JoinedOn, &m.LeftOn, &m.PasswordHash, &createdAt,
	)
	if err != nil {
		return nil, err // Returns sql.ErrNoRows if not found
	}
	m.CreatedAt, _ = parseTime(createdAt)
	return m, nil
}

func (s *Service) CreateMember(ctx context.Context, db DBorTx, m *Member) (*Member, error) {
	query := `INSERT INTO members (first_name, last_name, email, phone, role, status, hidden, birth_date, city, joined_on, left_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
	res, err := db.ExecContext(ctx, query,
		m.FirstName, m.LastName, m.Email, m.Phone, m.Role, m.Status, m.Hidden,
		m.BirthDate, m.City, m.JoinedOn, m.LeftOn,
	)
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	return s.GetMemberByID(ctx, db, id)
}

func (s *Service) GetMemberByID(ctx context.Context, db DBorTx, id int64) (*Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = ?;`
	return scanMember(db.QueryRowContext(ctx, query, id))
}

func (s *Service) GetMemberByEmail(ctx context.Context, db DBorTx, email string) (*Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE email = ? COLLATE NOCASE;`
	return scanMember(db.QueryRowContext(ctx, query, email))
}

// ListMembers returns the roster ordered by name. Hidden members are only
// included when includeHidden is set.
func (s *Service) ListMembers(ctx context.Context, db DBorTx, includeHidden bool) ([]*Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members`
	if !includeHidden {
		query += ` WHERE hidden = 0`
	}
	query += ` ORDER BY last_name, first_name, id;`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// UpdateMember overwrites all editable columns of a member.
func (s *Service) UpdateMember(ctx context.Context, db DBorTx, m *Member) error {
	query := `UPDATE members SET first_name = ?, last_name = ?, email = ?, phone = ?, role = ?, status = ?,
		hidden = ?, birth_date = ?, city = ?, joined_on = ?, left_on = ? WHERE id = ?;`
	res, err := db.ExecContext(ctx, query,
		m.FirstName, m.LastName, m.Email, m.Phone, m.Role, m.Status,
		m.Hidden, m.BirthDate, m.City, m.JoinedOn, m.LeftOn, m.ID,
	)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (s *Service) SetMemberPassword(ctx context.Context, db DBorTx, memberID int64, passwordHash string) error {
	res, err := db.ExecContext(ctx, `UPDATE members SET password_hash = ? WHERE id = ?;`, passwordHash, memberID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (s *Service) DeleteMember(ctx context.Context, db DBorTx, memberID int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM members WHERE id = ?;`, memberID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// --- Event Queries ---

const eventColumns = `id, title, start_at, category, location, recurrence, exceptions, created_at`

func scanEvent(row rowScanner) (*Event, error) {
	e := &Event{}
	var startAt, exceptions, createdAt string
	if err := row.Scan(&e.ID, &e.Title, &startAt, &e.Category, &e.Location, &e.Recurrence, &exceptions, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if e.StartAt, err = parseTime(startAt); err != nil {
		return nil, fmt.Errorf("event %d: bad start_at %q: %w", e.ID, startAt, err)
	}
	if err := json.Unmarshal([]byte(exceptions), &e.Exceptions); err != nil {
		return nil, fmt.Errorf("event %d: bad exceptions: %w", e.ID, err)
	}
	e.CreatedAt, _ = parseTime(createdAt)
	return e, nil
}

// encodeExceptions normalizes the exception list for storage. Non-recurring
// events never carry exceptions.
func encodeExceptions(e *Event) (string, error) {
	if e.Recurrence != RecurrenceWeekly || e.Exceptions == nil {
		e.Exceptions = []string{}
	}
	b, err := json.Marshal(e.Exceptions)
	return string(b), err
}

func (s *Service) CreateEvent(ctx context.Context, db DBorTx, e *Event) (*Event, error) {
	exceptions, err := encodeExceptions(e)
	if err != nil {
		return nil, err
	}
	query := `INSERT INTO events (title, start_at, category, location, recurrence, exceptions) VALUES (?, ?, ?, ?, ?, ?);`
	res, err := db.ExecContext(ctx, query, e.Title, formatTime(e.StartAt), e.Category, e.Location, e.Recurrence, exceptions)
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	return s.GetEventByID(ctx, db, id)
}

func (s *Service) GetEventByID(ctx context.Context, db DBorTx, id int64) (*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = ?;`
	return scanEvent(db.QueryRowContext(ctx, query, id))
}

// ListEventsForWindow returns every event that can produce an occurrence
// before end: all weekly events starting before end and all single events
// inside [start, end].
func (s *Service) ListEventsForWindow(ctx context.Context, db DBorTx, start, end time.Time) ([]*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events
		WHERE (recurrence = 'weekly' AND start_at <= ?)
		   OR (recurrence = 'none' AND start_at BETWEEN ? AND ?)
		ORDER BY start_at, id;`
	return s.queryEvents(ctx, db, query, formatTime(end), formatTime(start), formatTime(end))
}

// FindFirstEventBetween returns the earliest-created event starting in
// [from, to], or sql.ErrNoRows.
func (s *Service) FindFirstEventBetween(ctx context.Context, db DBorTx, from, to time.Time) (*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events
		WHERE start_at BETWEEN ? AND ?
		ORDER BY created_at, id
		LIMIT 1;`
	return scanEvent(db.QueryRowContext(ctx, query, formatTime(from), formatTime(to)))
}

func (s *Service) queryEvents(ctx context.Context, db DBorTx, query string, args ...any) ([]*Event, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// UpdateEvent overwrites title, time, category, location, recurrence and exceptions.
func (s *Service) UpdateEvent(ctx context.Context, db DBorTx, e *Event) error {
	exceptions, err := encodeExceptions(e)
	if err != nil {
		return err
	}
	query := `UPDATE events SET title = ?, start_at = ?, category = ?, location = ?, recurrence = ?, exceptions = ? WHERE id = ?;`
	res, err := db.ExecContext(ctx, query, e.Title, formatTime(e.StartAt), e.Category, e.Location, e.Recurrence, exceptions, e.ID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// SetEventExceptions replaces the exception list of an event.
func (s *Service) SetEventExceptions(ctx context.Context, db DBorTx, eventID int64, dates []string) error {
	if dates == nil {
		dates = []string{}
	}
	b, err := json.Marshal(dates)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `UPDATE events SET exceptions = ? WHERE id = ? AND recurrence = 'weekly';`, string(b), eventID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// DeleteEvent removes an event; attendance and match results cascade.
func (s *Service) DeleteEvent(ctx context.Context, db DBorTx, eventID int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM events WHERE id = ?;`, eventID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return "?" + strings.Repeat(", ?", n-1)
}
