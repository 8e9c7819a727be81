package api

import (
	"database/sql"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/intermernet/clubportal/internal/calendar"
	"github.com/intermernet/clubportal/internal/database"
	"github.com/intermernet/clubportal/internal/realtime"
)

// eventPayload is the body for creating or replacing an event. StartAt
// accepts RFC3339 or a local "2006-01-02T15:04" in the club timezone.
type eventPayload struct {
	Title      string              `json:"title"`
	StartAt    string              `json:"startAt"`
	Category   database.Category   `json:"category"`
	Location   string              `json:"location"`
	Recurrence database.Recurrence `json:"recurrence"`
	Exceptions []string            `json:"exceptions"`
}

type exceptionPayload struct {
	Date string `json:"date"`
}

func (p *eventPayload) toEvent(loc *time.Location) (*database.Event, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return nil, errors.New("title is required")
	}
	start, err := time.Parse(time.RFC3339, p.StartAt)
	if err != nil {
		start, err = time.ParseInLocation("2006-01-02T15:04", p.StartAt, loc)
		if err != nil {
			return nil, errors.New("invalid startAt format, use RFC3339")
		}
	}
	if p.Recurrence == "" {
		p.Recurrence = database.RecurrenceNone
	}
	if !p.Category.Valid() {
		return nil, errors.New("unknown category")
	}
	if !p.Recurrence.Valid() {
		return nil, errors.New("recurrence must be 'none' or 'weekly'")
	}
	exceptions, err := normalizeDates(p.Exceptions)
	if err != nil {
		return nil, err
	}
	return &database.Event{
		Title:      title,
		StartAt:    start,
		Category:   p.Category,
		Location:   strings.TrimSpace(p.Location),
		Recurrence: p.Recurrence,
		Exceptions: exceptions,
	}, nil
}

// normalizeDates validates YYYY-MM-DD strings and returns them sorted and
// deduplicated.
func normalizeDates(dates []string) ([]string, error) {
	seen := make(map[string]struct{}, len(dates))
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return nil, errors.New("exception dates must use YYYY-MM-DD")
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

// calendarWindow reads ?from=&to= or falls back to today plus the
// configured horizon.
func (s *Server) calendarWindow(r *http.Request) (calendar.Window, error) {
	loc := s.config.Location
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from == "" && to == "" {
		now := time.Now().In(loc)
		return calendar.NewWindow(now, now.AddDate(0, 0, s.config.Settings.HorizonDays-1), loc)
	}
	if from == "" || to == "" {
		return calendar.Window{}, errors.New("from and to must be given together")
	}
	return calendar.ParseWindow(from, to, loc)
}

func (s *Server) occurrences(r *http.Request) ([]calendar.Occurrence, calendar.Window, error) {
	w, err := s.calendarWindow(r)
	if err != nil {
		return nil, w, &validationError{err}
	}
	events, err := s.db.ListEventsForWindow(r.Context(), s.db.DB(), w.Start(), w.End())
	if err != nil {
		return nil, w, err
	}
	return calendar.Expand(events, w), w, nil
}

// handleGetCalendar returns the expanded occurrences for a window.
func (s *Server) handleGetCalendar(w http.ResponseWriter, r *http.Request) {
	occ, win, err := s.occurrences(r)
	var verr *validationError
	if errors.As(err, &verr) {
		s.errorJSON(w, verr.err, http.StatusBadRequest)
		return
	}
	if err != nil {
		s.errorJSON(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{
		"from":        win.From.Format("2006-01-02"),
		"to":          win.To.Format("2006-01-02"),
		"occurrences": occ,
	})
}

// handleGetCalendarICS serves the same window as an iCalendar feed.
func (s *Server) handleGetCalendarICS(w http.ResponseWriter, r *http.Request) {
	occ, _, err := s.occurrences(r)
	var verr *validationError
	if errors.As(err, &verr) {
		s.errorJSON(w, verr.err, http.StatusBadRequest)
		return
	}
	if err != nil {
		s.errorJSON(w, err)
		return
	}

	domain := s.config.ParsedFrontendURL.Hostname()
	if domain == "" {
		domain = "localhost"
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(calendar.RenderICS(occ, s.config.Settings.ClubName, domain)))
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "eventID")
	if err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	event, err := s.db.GetEventByID(r.Context(), s.db.DB(), id)
	if err != nil {
		s.storeError(w, err, "event not found")
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"event": toEventResponse(event, s.config.Location)})
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var payload eventPayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	event, err := payload.toEvent(s.config.Location)
	if err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}

	var created *database.Event
	err = s.db.Write(r.Context(), func(tx *sql.Tx) error {
		var txErr error
		created, txErr = s.db.CreateEvent(r.Context(), tx, event)
		return txErr
	})
	if err != nil {
		s.errorJSON(w, err)
		return
	}

	s.notify(realtime.TypeCalendarUpdated, envelope{"eventId": created.ID})
	s.writeJSON(w, http.StatusCreated, envelope{"event": toEventResponse(created, s.config.Location)})
}

// handleUpdateEvent replaces an event. Switching to a single event clears
// its exceptions.
func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "eventID")
	if err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	var payload eventPayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	event, err := payload.toEvent(s.config.Location)
	if err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	event.ID = id

	var updated *database.Event
	err = s.db.Write(r.Context(), func(tx *sql.Tx) error {
		if txErr := s.db.UpdateEvent(r.Context(), tx, event); txErr != nil {
			return txErr
		}
		var txErr error
		updated, txErr = s.db.GetEventByID(r.Context(), tx, id)
		return txErr
	})
	if err != nil {
		s.storeError(w, err, "event not found")
		return
	}

	s.notify(realtime.TypeCalendarUpdated, envelope{"eventId": id})
	s.writeJSON(w, http.StatusOK, envelope{"event": toEventResponse(updated, s.config.Location)})
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "eventID")
	if err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	err = s.db.Write(r.Context(), func(tx *sql.Tx) error {
		return s.db.DeleteEvent(r.Context(), tx, id)
	})
	if err != nil {
		s.storeError(w, err, "event not found")
		return
	}
	s.notify(realtime.TypeCalendarUpdated, envelope{"eventId": id})
	w.WriteHeader(http.StatusNoContent)
}

// handleAddException skips one date of a weekly event.
func (s *Server) handleAddException(w http.ResponseWriter, r *http.Request) {
	var payload exceptionPayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	s.editExceptions(w, r, payload.Date, func(dates []string, d string) []string {
		return append(dates, d)
	})
}

// handleRemoveException restores a previously skipped date.
func (s *Server) handleRemoveException(w http.ResponseWriter, r *http.Request) {
	s.editExceptions(w, r, chi.URLParam(r, "date"), func(dates []string, d string) []string {
		out := dates[:0]
		for _, x := range dates {
			if x != d {
				out = append(out, x)
			}
		}
		return out
	})
}

func (s *Server) editExceptions(w http.ResponseWriter, r *http.Request, date string, edit func([]string, string) []string) {
	id, err := idParam(r, "eventID")
	if err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		s.errorJSON(w, errors.New("date must use YYYY-MM-DD"), http.StatusBadRequest)
		return
	}

	var updated *database.Event
	err = s.db.Write(r.Context(), func(tx *sql.Tx) error {
		event, txErr := s.db.GetEventByID(r.Context(), tx, id)
		if txErr != nil {
			return txErr
		}
		if event.Recurrence != database.RecurrenceWeekly {
			return &validationError{errors.New("only weekly events have exceptions")}
		}
		dates, txErr := normalizeDates(edit(event.Exceptions, date))
		if txErr != nil {
			return txErr
		}
		if txErr = s.db.SetEventExceptions(r.Context(), tx, id, dates); txErr != nil {
			return txErr
		}
		event.Exceptions = dates
		updated = event
		return nil
	})
	var verr *validationError
	if errors.As(err, &verr) {
		s.errorJSON(w, verr.err, http.StatusConflict)
		return
	}
	if err != nil {
		s.storeError(w, err, "event not found")
		return
	}

	s.notify(realtime.TypeCalendarUpdated, envelope{"eventId": id})
	s.writeJSON(w, http.StatusOK, envelope{"event": toEventResponse(updated, s.config.Location)})
}
