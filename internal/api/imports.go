package api

import (
	"encoding/csv"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/intermernet/clubportal/internal/database"
	"github.com/intermernet/clubportal/internal/email"
	"github.com/intermernet/clubportal/internal/importer"
	"github.com/intermernet/clubportal/internal/realtime"
)

// maxImportSize caps uploaded CSV files.
const maxImportSize = 5 << 20

// readUpload returns the "file" part of a multipart upload.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (multipart.File, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)
	if err := r.ParseMultipartForm(maxImportSize); err != nil {
		return nil, "", errors.New("file is too large (max 5MB) or not a multipart upload")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", errors.New("invalid file upload, send the CSV in the 'file' field")
	}
	return file, filepath.Base(header.Filename), nil
}

// handleImportAttendance runs the attendance matrix importer on an upload.
func (s *Server) handleImportAttendance(w http.ResponseWriter, r *http.Request) {
	file, name, err := s.readUpload(w, r)
	if err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	defer file.Close()

	im := &importer.Importer{
		Store:           s.db,
		Location:        s.config.Location,
		DefaultLocation: s.config.Settings.ImportLocation,
		StartHour:       s.config.Settings.ImportStartHour,
	}
	sum, err := im.Run(r.Context(), file)
	if err != nil {
		s.importFailed(w, err)
		return
	}

	run := sum.Record(name)
	s.finishImport(r, run, sum.NotFoundNames)
	s.writeJSON(w, http.StatusOK, envelope{"summary": sum, "errors": errorStrings(sum.Errs.WrappedErrors())})
}

// handleImportRoster runs the roster importer on an upload.
func (s *Server) handleImportRoster(w http.ResponseWriter, r *http.Request) {
	file, name, err := s.readUpload(w, r)
	if err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	defer file.Close()

	ri := &importer.RosterImporter{Store: s.db, Location: s.config.Location}
	sum, err := ri.Run(r.Context(), file)
	if err != nil {
		s.importFailed(w, err)
		return
	}

	s.finishImport(r, sum.Record(name), nil)
	s.writeJSON(w, http.StatusOK, envelope{"summary": sum, "errors": errorStrings(sum.Errs.WrappedErrors())})
}

// handleListImports returns the most recent import runs.
func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			s.errorJSON(w, errors.New("limit must be between 1 and 500"), http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := s.db.ListImportRuns(r.Context(), limit)
	if err != nil {
		s.errorJSON(w, err)
		return
	}
	if runs == nil {
		runs = []*database.ImportRun{}
	}
	s.writeJSON(w, http.StatusOK, envelope{"imports": runs})
}

// importFailed maps an aborted run to a status. Problems with the file
// itself are 422; anything else came from the store and is a 500.
func (s *Server) importFailed(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	var parseErr *csv.ParseError
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.errorJSON(w, errors.New("upload was cut off"), http.StatusBadRequest)
	case errors.As(err, &maxErr):
		s.errorJSON(w, errors.New("file is too large (max 5MB)"), http.StatusBadRequest)
	case errors.Is(err, importer.ErrNoDateColumns),
		errors.Is(err, importer.ErrEmptyFile),
		errors.Is(err, importer.ErrMissingNameColumns),
		errors.As(err, &parseErr):
		s.errorJSON(w, err, http.StatusUnprocessableEntity)
	default:
		s.errorJSON(w, err)
	}
}

// finishImport persists the run, tells connected clients and mails the
// report to the uploader when mail is configured.
func (s *Server) finishImport(r *http.Request, run database.ImportRun, notFound []string) {
	if err := s.db.RecordImportRun(r.Context(), run); err != nil {
		log.Printf("ERROR: could not record import run %s: %v", run.ID, err)
	}
	s.notify(realtime.TypeImportFinished, run)
	if run.Kind == "attendance" && run.RecordsWritten > 0 {
		s.notify(realtime.TypeCalendarUpdated, envelope{"importId": run.ID})
	}

	if !s.email.Enabled() {
		return
	}
	p, err := principalFromContext(r)
	if err != nil {
		return
	}
	member, err := s.db.GetMemberByID(r.Context(), s.db.DB(), p.MemberID)
	if err != nil || !member.Email.Valid {
		return
	}
	go func(mail *email.EmailService, to string) {
		if err := mail.SendImportReport(to, run, notFound); err != nil {
			log.Printf("WARN: import report for %s not sent: %v", run.ID, err)
		}
	}(s.email, member.Email.String)
}

func errorStrings(errs []error) []string {
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}
