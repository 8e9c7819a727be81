package database

import (
	"context"
	"time"
)

// --- Attendance Queries ---

// UpsertAttendance writes the status for an (event, member) pair, overwriting
// any earlier status. The unique constraint on the pair is the upsert target.
func (s *Service) UpsertAttendance(ctx context.Context, db DBorTx, eventID, memberID int64, status AttendanceStatus) error {
	query := `INSERT INTO attendance (event_id, member_id, status, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (event_id, member_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at;`
	_, err := db.ExecContext(ctx, query, eventID, memberID, status, formatTime(time.Now()))
	return err
}

// GetAttendanceByEvent returns all records of one event for visible members.
func (s *Service) GetAttendanceByEvent(ctx context.Context, db DBorTx, eventID int64) ([]*Attendance, error) {
	query := `SELECT a.id, a.event_id, a.member_id, a.status, a.updated_at
		FROM attendance a
		JOIN members m ON m.id = a.member_id
		WHERE a.event_id = ? AND m.hidden = 0
		ORDER BY m.last_name, m.first_name;`

	rows, err := db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Attendance
	for rows.Next() {
		a := &Attendance{}
		var updatedAt string
		if err := rows.Scan(&a.ID, &a.EventID, &a.MemberID, &a.Status, &updatedAt); err != nil {
			return nil, err
		}
		a.UpdatedAt, _ = parseTime(updatedAt)
		records = append(records, a)
	}
	return records, rows.Err()
}

// DeleteAttendance removes one record. Only explicit edits call this; imports
// never delete.
func (s *Service) DeleteAttendance(ctx context.Context, db DBorTx, eventID, memberID int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM attendance WHERE event_id = ? AND member_id = ?;`, eventID, memberID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// GetMemberStats aggregates attendance and goals per visible member for
// events starting in [from, to]. Members without any record are included
// with zero counts.
func (s *Service) GetMemberStats(ctx context.Context, db DBorTx, from, to time.Time) ([]*MemberStats, error) {
	members, err := s.ListMembers(ctx, db, false)
	if err != nil {
		return nil, err
	}

	stats := make([]*MemberStats, 0, len(members))
	byID := make(map[int64]*MemberStats, len(members))
	for _, m := range members {
		st := &MemberStats{
			MemberID:  m.ID,
			FirstName: m.FirstName,
			LastName:  m.LastName,
			Counts:    make(map[AttendanceStatus]int),
		}
		stats = append(stats, st)
		byID[m.ID] = st
	}

	query := `SELECT a.member_id, a.status, COUNT(*)
		FROM attendance a
		JOIN events e ON e.id = a.event_id
		WHERE e.start_at BETWEEN ? AND ?
		GROUP BY a.member_id, a.status;`
	rows, err := db.QueryContext(ctx, query, formatTime(from), formatTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var memberID int64
		var status AttendanceStatus
		var n int
		if err := rows.Scan(&memberID, &status, &n); err != nil {
			return nil, err
		}
		if st, ok := byID[memberID]; ok {
			st.Counts[status] = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	goalQuery := `SELECT g.member_id, SUM(g.goals)
		FROM match_goals g
		JOIN match_results r ON r.id = g.match_result_id
		JOIN events e ON e.id = r.event_id
		WHERE e.start_at BETWEEN ? AND ?
		GROUP BY g.member_id;`
	goalRows, err := db.QueryContext(ctx, goalQuery, formatTime(from), formatTime(to))
	if err != nil {
		return nil, err
	}
	defer goalRows.Close()
	for goalRows.Next() {
		var memberID int64
		var goals int
		if err := goalRows.Scan(&memberID, &goals); err != nil {
			return nil, err
		}
		if st, ok := byID[memberID]; ok {
			st.Goals = goals
		}
	}
	return stats, goalRows.Err()
}
