package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/intermernet/clubportal/internal/database"
	"github.com/intermernet/clubportal/internal/realtime"
)

type matchResultPayload struct {
	Opponent  string          `json:"opponent"`
	ScoreHome int             `json:"scoreHome"`
	ScoreAway int             `json:"scoreAway"`
	Goals     []database.Goal `json:"goals"`
	Lineup    []int64         `json:"lineup"`
}

// handleCreateMatchResult records a result for a match event. Everyone in
// the lineup and every scorer is marked active in the same transaction.
func (s *Server) handleCreateMatchResult(w http.ResponseWriter, r *http.Request) {
	eventID, err := idParam(r, "eventID")
	if err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	var payload matchResultPayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	payload.Opponent = strings.TrimSpace(payload.Opponent)
	if payload.Opponent == "" {
		s.errorJSON(w, errors.New("opponent is required"), http.StatusBadRequest)
		return
	}
	if payload.ScoreHome < 0 || payload.ScoreAway < 0 {
		s.errorJSON(w, errors.New("scores cannot be negative"), http.StatusBadRequest)
		return
	}
	total := 0
	for _, g := range payload.Goals {
		if g.MemberID <= 0 || g.Goals < 0 {
			s.errorJSON(w, errors.New("each goal line needs a memberId and a non-negative count"), http.StatusBadRequest)
			return
		}
		total += g.Goals
	}
	if total > payload.ScoreHome {
		s.errorJSON(w, errors.New("more goals attributed than scored"), http.StatusBadRequest)
		return
	}

	var created *database.MatchResult
	err = s.db.Write(r.Context(), func(tx *sql.Tx) error {
		event, txErr := s.db.GetEventByID(r.Context(), tx, eventID)
		if txErr != nil {
			return txErr
		}
		if event.Category != database.CategoryMatch {
			return &validationError{errors.New("results can only be recorded for match events")}
		}
		if txErr := s.checkPlayers(r, tx, payload); txErr != nil {
			return txErr
		}
		created, txErr = s.db.CreateMatchResult(r.Context(), tx, &database.MatchResult{
			EventID:   eventID,
			Opponent:  payload.Opponent,
			ScoreHome: payload.ScoreHome,
			ScoreAway: payload.ScoreAway,
			Goals:     payload.Goals,
		}, payload.Lineup)
		return txErr
	})
	var verr *validationError
	switch {
	case errors.As(err, &verr):
		s.errorJSON(w, verr.err, http.StatusConflict)
		return
	case errors.Is(err, errUnknownPlayer), err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed"):
		s.errorJSON(w, errors.New("lineup or goals reference an unknown member"), http.StatusBadRequest)
		return
	case err != nil:
		s.storeError(w, err, "event not found")
		return
	}

	s.notify(realtime.TypeAttendanceUpdated, envelope{"eventId": eventID})
	s.writeJSON(w, http.StatusCreated, envelope{"result": created})
}

var errUnknownPlayer = errors.New("unknown player")

// checkPlayers rejects lineups and scorers that name a missing or hidden
// member.
func (s *Server) checkPlayers(r *http.Request, tx *sql.Tx, payload matchResultPayload) error {
	ids := append([]int64(nil), payload.Lineup...)
	for _, g := range payload.Goals {
		ids = append(ids, g.MemberID)
	}
	for _, id := range ids {
		m, err := s.db.GetMemberByID(r.Context(), tx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return errUnknownPlayer
		}
		if err != nil {
			return err
		}
		if m.Hidden {
			return errUnknownPlayer
		}
	}
	return nil
}

func (s *Server) handleGetMatchResults(w http.ResponseWriter, r *http.Request) {
	eventID, err := idParam(r, "eventID")
	if err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	results, err := s.db.GetMatchResultsByEvent(r.Context(), s.db.DB(), eventID)
	if err != nil {
		s.errorJSON(w, err)
		return
	}
	if results == nil {
		results = []*database.MatchResult{}
	}
	s.writeJSON(w, http.StatusOK, envelope{"results": results})
}

// handleDeleteMatchResult removes a result and its goals. Attendance set
// when the result was recorded stays.
func (s *Server) handleDeleteMatchResult(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "resultID")
	if err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	err = s.db.Write(r.Context(), func(tx *sql.Tx) error {
		return s.db.DeleteMatchResult(r.Context(), tx, id)
	})
	if err != nil {
		s.storeError(w, err, "result not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
