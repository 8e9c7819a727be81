package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"github.com/intermernet/clubportal/internal/cms"
	"github.com/intermernet/clubportal/internal/config"
	"github.com/intermernet/clubportal/internal/database"
	"github.com/intermernet/clubportal/internal/email"
	"github.com/intermernet/clubportal/internal/realtime"
)

// Server holds every dependency the HTTP handlers need.
type Server struct {
	config *config.Config
	db     *database.Service
	broker *realtime.Broker
	email  *email.EmailService
	cms    *cms.Client

	// oauth is nil when Google sign-in is not configured.
	oauth *oauth2.Config
}

// NewServer wires the handlers to their dependencies.
func NewServer(cfg *config.Config, db *database.Service, broker *realtime.Broker, mail *email.EmailService, pages *cms.Client) *Server {
	s := &Server{
		config: cfg,
		db:     db,
		broker: broker,
		email:  mail,
		cms:    pages,
	}
	if cfg.GoogleLoginEnabled() {
		s.oauth = newGoogleOAuthConfig(cfg)
	}
	return s
}

// envelope is a named map type for wrapping JSON responses, e.g.
// `envelope{"member": m}`.
type envelope map[string]interface{}

// writeJSON marshals data and writes it with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}, headers ...http.Header) {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		http.Error(w, "Internal Server Error: Failed to marshal JSON", http.StatusInternalServerError)
		return
	}

	if len(headers) > 0 {
		for key, value := range headers[0] {
			w.Header()[key] = value
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(js)
}

// errorJSON writes `{"error": "message"}`, defaulting to a 500.
func (s *Server) errorJSON(w http.ResponseWriter, err error, status ...int) {
	statusCode := http.StatusInternalServerError
	if len(status) > 0 {
		statusCode = status[0]
	}
	if statusCode >= http.StatusInternalServerError {
		log.Printf("ERROR: %v", err)
		err = errors.New("internal server error")
	}
	s.writeJSON(w, statusCode, envelope{"error": err.Error()})
}

// storeError maps a database error to a response: missing rows become 404
// with notFoundMsg, everything else a 500.
func (s *Server) storeError(w http.ResponseWriter, err error, notFoundMsg string) {
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, database.ErrNotFound) {
		s.errorJSON(w, errors.New(notFoundMsg), http.StatusNotFound)
		return
	}
	s.errorJSON(w, err)
}

// readJSON decodes a request body of at most 1 MB into dst, rejecting
// unknown fields.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("bad request: could not decode JSON: %w", err)
	}
	return nil
}

// idParam parses a positive integer URL parameter.
func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// notify broadcasts a change to every connected portal client.
func (s *Server) notify(msgType string, payload interface{}) {
	if s.broker == nil {
		return
	}
	s.broker.Broadcast(realtime.Message{Type: msgType, Payload: payload})
}
