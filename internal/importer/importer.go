// Package importer ingests CSV exports kept by the club's coaches: the
// attendance matrix (people by dates) and the member roster.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/intermernet/clubportal/internal/database"
)

var (
	// ErrNoDateColumns aborts an attendance import whose header has no
	// parseable date after the two name columns. An empty file wraps both
	// this and ErrEmptyFile.
	ErrNoDateColumns = errors.New("import: no date columns found in header")
	ErrEmptyFile     = errors.New("import: file is empty")
)

// maxReportedNames caps how many unmatched names are logged and returned.
const maxReportedNames = 5

// Store is the persistence the attendance importer needs.
type Store interface {
	FindEventOnDay(ctx context.Context, dayStart, dayEnd time.Time) (int64, bool, error)
	CreateImportedEvent(ctx context.Context, ev database.Event) (int64, error)
	ListVisibleMembers(ctx context.Context) ([]*database.Member, error)
	SaveAttendance(ctx context.Context, eventID, memberID int64, status database.AttendanceStatus) error
}

// Importer turns an attendance matrix into events and attendance records.
type Importer struct {
	Store Store

	// Location is the club timezone dates are interpreted in.
	Location *time.Location
	// DefaultLocation is the venue written on events the importer creates.
	DefaultLocation string
	// StartHour is the local start hour of created events.
	StartHour int
}

// Summary reports what one run did. It is always returned once the header
// has been accepted, even when every row failed.
type Summary struct {
	RunID              string    `json:"runId"`
	StartedAt          time.Time `json:"startedAt"`
	DateColumns        int       `json:"dateColumns"`
	EventsCreated      int       `json:"eventsCreated"`
	EventsReused       int       `json:"eventsReused"`
	RowsSkipped        int       `json:"rowsSkipped"`
	MembersNotFound    int       `json:"membersNotFound"`
	NotFoundNames      []string  `json:"notFoundNames"`
	RecordsWritten     int       `json:"recordsWritten"`
	UnrecognizedTokens int       `json:"unrecognizedTokens"`

	// Errs collects store failures; each one cost a single cell, a column or,
	// for the roster read, every row.
	Errs *multierror.Error `json:"-"`
}

// ErrorCount is the number of store failures during the run.
func (s *Summary) ErrorCount() int {
	if s.Errs == nil {
		return 0
	}
	return len(s.Errs.Errors)
}

// Record converts the summary into a persisted import run.
func (s *Summary) Record(fileName string) database.ImportRun {
	return database.ImportRun{
		ID:              s.RunID,
		Kind:            "attendance",
		FileName:        fileName,
		StartedAt:       s.StartedAt,
		DateColumns:     s.DateColumns,
		RecordsWritten:  s.RecordsWritten,
		MembersNotFound: s.MembersNotFound,
		Errors:          s.ErrorCount(),
	}
}

// Run imports one file. Only a header without date columns aborts the run
// (an empty file has no header, so it counts as one); every other failure
// is collected in the summary and processing continues.
func (im *Importer) Run(ctx context.Context, r io.Reader) (*Summary, error) {
	loc := im.Location
	if loc == nil {
		loc = time.Local
	}

	records, err := readRecords(r)
	if errors.Is(err, ErrEmptyFile) {
		return nil, fmt.Errorf("%w: %w", ErrNoDateColumns, err)
	}
	if err != nil {
		return nil, err
	}
	header, rows := records[0], records[1:]

	cols := findDateColumns(header, loc)
	if len(cols) == 0 {
		return nil, ErrNoDateColumns
	}
	for _, c := range cols {
		c.category, c.title = inferKind(rows, c.index, c.date)
	}

	sum := &Summary{
		RunID:         uuid.NewString(),
		StartedAt:     time.Now(),
		DateColumns:   len(cols),
		NotFoundNames: []string{},
	}

	members, err := im.Store.ListVisibleMembers(ctx)
	if err != nil {
		sum.Errs = multierror.Append(sum.Errs, fmt.Errorf("load roster: %w", err))
		log.Printf("ERROR: import %s: could not load roster, no row will match: %v", sum.RunID, err)
		members = nil
	}
	index := newRoster(members)

	// Every date column gets its event up front. A column whose event could
	// not be resolved is left out of the map and its cells are skipped.
	events := make(map[*dateColumn]int64, len(cols))
	cache := make(map[string]int64, len(cols))
	for _, c := range cols {
		id, err := im.resolveEvent(ctx, c, cache, sum)
		if err != nil {
			sum.Errs = multierror.Append(sum.Errs, fmt.Errorf("%s: %w", c.header, err))
			continue
		}
		events[c] = id
	}

	for _, row := range rows {
		given, family := cell(row, 0), cell(row, 1)
		if given == "" || family == "" {
			sum.RowsSkipped++
			continue
		}

		member, ok := index.match(given, family)
		if !ok {
			sum.MembersNotFound++
			if len(sum.NotFoundNames) < maxReportedNames {
				name := given + " " + family
				sum.NotFoundNames = append(sum.NotFoundNames, name)
				log.Printf("WARN: import %s: no member named %q", sum.RunID, name)
			}
			continue
		}

		for _, c := range cols {
			v := cell(row, c.index)
			if isPlaceholder(v) {
				continue
			}
			status, ok := ParseStatus(v)
			if !ok {
				sum.UnrecognizedTokens++
				continue
			}

			eventID, ok := events[c]
			if !ok {
				continue
			}
			if err := im.Store.SaveAttendance(ctx, eventID, member.ID, status); err != nil {
				sum.Errs = multierror.Append(sum.Errs,
					fmt.Errorf("%s %s on %s: %w", member.FirstName, member.LastName, c.header, err))
				continue
			}
			sum.RecordsWritten++
		}
	}

	log.Printf("INFO: import %s finished: %d date columns, %d records, %d members not found, %d unrecognized, %d errors",
		sum.RunID, sum.DateColumns, sum.RecordsWritten, sum.MembersNotFound, sum.UnrecognizedTokens, sum.ErrorCount())
	return sum, nil
}

// resolveEvent returns the event for a date column, reusing an existing
// event on that day or creating one. Lookups are cached per day, so two
// columns with the same date share one event.
func (im *Importer) resolveEvent(ctx context.Context, c *dateColumn, cache map[string]int64, sum *Summary) (int64, error) {
	key := c.date.Format("2006-01-02")
	if id, ok := cache[key]; ok {
		return id, nil
	}

	dayStart := c.date
	dayEnd := dayStart.AddDate(0, 0, 1).Add(-time.Second)
	id, found, err := im.Store.FindEventOnDay(ctx, dayStart, dayEnd)
	if err != nil {
		return 0, fmt.Errorf("find event: %w", err)
	}
	if found {
		sum.EventsReused++
		cache[key] = id
		return id, nil
	}

	hour := im.StartHour
	if hour <= 0 || hour > 23 {
		hour = 19
	}
	y, m, d := c.date.Date()
	id, err = im.Store.CreateImportedEvent(ctx, database.Event{
		Title:      c.title,
		StartAt:    time.Date(y, m, d, hour, 0, 0, 0, c.date.Location()),
		Category:   c.category,
		Location:   im.DefaultLocation,
		Recurrence: database.RecurrenceNone,
	})
	if err != nil {
		return 0, fmt.Errorf("create event: %w", err)
	}
	sum.EventsCreated++
	cache[key] = id
	return id, nil
}
