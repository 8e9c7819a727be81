package database

import (
	"context"
	"database/sql"
)

// --- Match Result Queries ---

// CreateMatchResult stores a result with its scorers and marks every player
// in lineup (and every scorer) as active for the parent event. It must run
// inside a transaction so the three writes land together.
func (s *Service) CreateMatchResult(ctx context.Context, tx *sql.Tx, r *MatchResult, lineup []int64) (*MatchResult, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO match_results (event_id, opponent, score_home, score_away) VALUES (?, ?, ?, ?);`,
		r.EventID, r.Opponent, r.ScoreHome, r.ScoreAway,
	)
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()

	players := make(map[int64]struct{}, len(lineup)+len(r.Goals))
	for _, memberID := range lineup {
		players[memberID] = struct{}{}
	}
	for _, g := range r.Goals {
		if g.Goals <= 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO match_goals (match_result_id, member_id, goals) VALUES (?, ?, ?)
			 ON CONFLICT (match_result_id, member_id) DO UPDATE SET goals = goals + excluded.goals;`,
			id, g.MemberID, g.Goals,
		); err != nil {
			return nil, err
		}
		players[g.MemberID] = struct{}{}
	}

	for memberID := range players {
		if err := s.UpsertAttendance(ctx, tx, r.EventID, memberID, AttendanceActive); err != nil {
			return nil, err
		}
	}

	return s.GetMatchResultByID(ctx, tx, id)
}

func (s *Service) GetMatchResultByID(ctx context.Context, db DBorTx, id int64) (*MatchResult, error) {
	r := &MatchResult{}
	var createdAt string
	err := db.QueryRowContext(ctx,
		`SELECT id, event_id, opponent, score_home, score_away, created_at FROM match_results WHERE id = ?;`, id,
	).Scan(&r.ID, &r.EventID, &r.Opponent, &r.ScoreHome, &r.ScoreAway, &createdAt)
	if err != nil {
		return nil, err
	}
	r.CreatedAt, _ = parseTime(createdAt)
	if err := s.loadGoals(ctx, db, []*MatchResult{r}); err != nil {
		return nil, err
	}
	return r, nil
}

// GetMatchResultsByEvent lists all games of one event, oldest first. A
// tournament day has several.
func (s *Service) GetMatchResultsByEvent(ctx context.Context, db DBorTx, eventID int64) ([]*MatchResult, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, event_id, opponent, score_home, score_away, created_at
		 FROM match_results WHERE event_id = ? ORDER BY id;`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*MatchResult
	for rows.Next() {
		r := &MatchResult{}
		var createdAt string
		if err := rows.Scan(&r.ID, &r.EventID, &r.Opponent, &r.ScoreHome, &r.ScoreAway, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = parseTime(createdAt)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadGoals(ctx, db, results); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) loadGoals(ctx context.Context, db DBorTx, results []*MatchResult) error {
	if len(results) == 0 {
		return nil
	}
	ids := make([]any, len(results))
	byID := make(map[int64]*MatchResult, len(results))
	for i, r := range results {
		ids[i] = r.ID
		r.Goals = []Goal{}
		byID[r.ID] = r
	}

	rows, err := db.QueryContext(ctx,
		`SELECT match_result_id, member_id, goals FROM match_goals
		 WHERE match_result_id IN (`+placeholders(len(ids))+`) ORDER BY goals DESC, member_id;`, ids...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var resultID int64
		var g Goal
		if err := rows.Scan(&resultID, &g.MemberID, &g.Goals); err != nil {
			return err
		}
		byID[resultID].Goals = append(byID[resultID].Goals, g)
	}
	return rows.Err()
}

func (s *Service) DeleteMatchResult(ctx context.Context, db DBorTx, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM match_results WHERE id = ?;`, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}
