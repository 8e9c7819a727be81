package api

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/intermernet/clubportal/internal/auth"
	"github.com/intermernet/clubportal/internal/calendar"
	"github.com/intermernet/clubportal/internal/database"
	"github.com/intermernet/clubportal/internal/realtime"
)

type attendancePayload struct {
	Status database.AttendanceStatus `json:"status"`
}

// handleGetAttendance lists the records of one event. Hidden members are
// never included.
func (s *Server) handleGetAttendance(w http.ResponseWriter, r *http.Request) {
	eventID, err := idParam(r, "eventID")
	if err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	if _, err := s.db.GetEventByID(r.Context(), s.db.DB(), eventID); err != nil {
		s.storeError(w, err, "event not found")
		return
	}
	records, err := s.db.GetAttendanceByEvent(r.Context(), s.db.DB(), eventID)
	if err != nil {
		s.errorJSON(w, err)
		return
	}
	if records == nil {
		records = []*database.Attendance{}
	}
	s.writeJSON(w, http.StatusOK, envelope{"attendance": records})
}

// attendanceTarget resolves the member a write applies to. Members may edit
// their own record; everyone else needs ManageEvents.
func (s *Server) attendanceTarget(r *http.Request) (eventID, memberID int64, status int, err error) {
	p, err := principalFromContext(r)
	if err != nil {
		return 0, 0, http.StatusUnauthorized, err
	}
	if eventID, err = idParam(r, "eventID"); err != nil {
		return 0, 0, http.StatusBadRequest, err
	}
	if memberID, err = idParam(r, "memberID"); err != nil {
		return 0, 0, http.StatusBadRequest, err
	}
	if memberID != p.MemberID && !p.Can(auth.ManageEvents) {
		return 0, 0, http.StatusForbidden, errors.New("forbidden: you can only change your own attendance")
	}
	return eventID, memberID, 0, nil
}

// handlePutAttendance creates or overwrites one (event, member) record.
// Hidden members are treated as unknown.
func (s *Server) handlePutAttendance(w http.ResponseWriter, r *http.Request) {
	eventID, memberID, status, err := s.attendanceTarget(r)
	if err != nil {
		s.errorJSON(w, err, status)
		return
	}
	var payload attendancePayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	if !payload.Status.Valid() {
		s.errorJSON(w, errors.New("status must be active, passive, absent, helper or excused"), http.StatusBadRequest)
		return
	}

	err = s.db.Write(r.Context(), func(tx *sql.Tx) error {
		if _, txErr := s.db.GetEventByID(r.Context(), tx, eventID); txErr != nil {
			return txErr
		}
		m, txErr := s.db.GetMemberByID(r.Context(), tx, memberID)
		if txErr != nil {
			return txErr
		}
		if m.Hidden {
			return database.ErrNotFound
		}
		return s.db.UpsertAttendance(r.Context(), tx, eventID, memberID, payload.Status)
	})
	if err != nil {
		s.storeError(w, err, "event or member not found")
		return
	}

	s.notify(realtime.TypeAttendanceUpdated, envelope{"eventId": eventID, "memberId": memberID})
	s.writeJSON(w, http.StatusOK, envelope{"eventId": eventID, "memberId": memberID, "status": payload.Status})
}

func (s *Server) handleDeleteAttendance(w http.ResponseWriter, r *http.Request) {
	eventID, memberID, status, err := s.attendanceTarget(r)
	if err != nil {
		s.errorJSON(w, err, status)
		return
	}
	err = s.db.Write(r.Context(), func(tx *sql.Tx) error {
		return s.db.DeleteAttendance(r.Context(), tx, eventID, memberID)
	})
	if err != nil {
		s.storeError(w, err, "attendance record not found")
		return
	}
	s.notify(realtime.TypeAttendanceUpdated, envelope{"eventId": eventID, "memberId": memberID})
	w.WriteHeader(http.StatusNoContent)
}

// handleGetStats aggregates attendance per visible member. Without a
// window it covers the current calendar year up to today.
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	loc := s.config.Location
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")

	var win calendar.Window
	var err error
	if from == "" && to == "" {
		now := time.Now().In(loc)
		win, err = calendar.NewWindow(time.Date(now.Year(), 1, 1, 0, 0, 0, 0, loc), now, loc)
	} else {
		win, err = calendar.ParseWindow(from, to, loc)
	}
	if err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}

	stats, err := s.db.GetMemberStats(r.Context(), s.db.DB(), win.Start(), win.End())
	if err != nil {
		s.errorJSON(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{
		"from":  win.From.Format("2006-01-02"),
		"to":    win.To.Format("2006-01-02"),
		"stats": stats,
	})
}
