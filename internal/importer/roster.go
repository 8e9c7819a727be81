package importer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/intermernet/clubportal/internal/database"
)

// ErrMissingNameColumns aborts a roster import whose header lacks a first
// or last name column.
var ErrMissingNameColumns = errors.New("import: roster header lacks a name column")

// RosterStore is the persistence the roster importer needs.
type RosterStore interface {
	ListAllMembers(ctx context.Context) ([]*database.Member, error)
	SaveMember(ctx context.Context, m *database.Member) (*database.Member, error)
}

// rosterHeaders maps accepted header spellings to a field name.
var rosterHeaders = map[string]string{
	"vorname": "first", "first_name": "first", "firstname": "first",
	"nachname": "last", "last_name": "last", "lastname": "last", "name": "last",
	"email": "email", "e-mail": "email", "mail": "email",
	"telefon": "phone", "phone": "phone", "handy": "phone",
	"rolle": "role", "role": "role",
	"status":       "status",
	"geburtsdatum": "birth", "birth_date": "birth", "geburtstag": "birth",
	"ort": "city", "city": "city", "wohnort": "city",
	"eintritt": "joined", "joined_on": "joined", "eintrittsdatum": "joined",
}

// RosterSummary reports what one roster import did.
type RosterSummary struct {
	RunID     string            `json:"runId"`
	StartedAt time.Time         `json:"startedAt"`
	Created   int               `json:"created"`
	Updated   int               `json:"updated"`
	Skipped   int               `json:"skipped"`
	Errs      *multierror.Error `json:"-"`
}

func (s *RosterSummary) ErrorCount() int {
	if s.Errs == nil {
		return 0
	}
	return len(s.Errs.Errors)
}

func (s *RosterSummary) Record(fileName string) database.ImportRun {
	return database.ImportRun{
		ID:             s.RunID,
		Kind:           "roster",
		FileName:       fileName,
		StartedAt:      s.StartedAt,
		RecordsWritten: s.Created + s.Updated,
		Errors:         s.ErrorCount(),
	}
}

// RosterImporter creates or updates members from a roster export.
type RosterImporter struct {
	Store    RosterStore
	Location *time.Location
}

// Run imports one roster file. Existing members, hidden ones included, are
// matched by normalized name and only non-empty cells overwrite their data.
func (ri *RosterImporter) Run(ctx context.Context, r io.Reader) (*RosterSummary, error) {
	loc := ri.Location
	if loc == nil {
		loc = time.Local
	}

	records, err := readRecords(r)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]int)
	for i, h := range records[0] {
		if f, ok := rosterHeaders[strings.ToLower(strings.TrimSpace(h))]; ok {
			if _, seen := fields[f]; !seen {
				fields[f] = i
			}
		}
	}
	if _, ok := fields["first"]; !ok {
		return nil, fmt.Errorf("%w: first name", ErrMissingNameColumns)
	}
	if _, ok := fields["last"]; !ok {
		return nil, fmt.Errorf("%w: last name", ErrMissingNameColumns)
	}

	members, err := ri.Store.ListAllMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("import: load roster: %w", err)
	}
	existing := make(map[string]*database.Member, len(members))
	for _, m := range members {
		existing[nameKey(m.LastName, m.FirstName)] = m
	}

	sum := &RosterSummary{RunID: uuid.NewString(), StartedAt: time.Now()}
	get := func(row []string, f string) string {
		i, ok := fields[f]
		if !ok {
			return ""
		}
		return cell(row, i)
	}

	for n, row := range records[1:] {
		line := n + 2
		first, last := get(row, "first"), get(row, "last")
		if first == "" || last == "" {
			sum.Skipped++
			continue
		}

		key := nameKey(last, first)
		m, found := existing[key]
		if !found {
			m = &database.Member{
				FirstName: first,
				LastName:  last,
				Role:      database.RoleMember,
				Status:    database.StatusActive,
			}
		}

		if err := applyRosterRow(m, row, get, loc); err != nil {
			sum.Errs = multierror.Append(sum.Errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}

		saved, err := ri.Store.SaveMember(ctx, m)
		if err != nil {
			sum.Errs = multierror.Append(sum.Errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if found {
			sum.Updated++
		} else {
			sum.Created++
			existing[key] = saved
		}
	}

	log.Printf("INFO: roster import %s finished: %d created, %d updated, %d skipped, %d errors",
		sum.RunID, sum.Created, sum.Updated, sum.Skipped, sum.ErrorCount())
	return sum, nil
}

// applyRosterRow copies the non-empty cells of row onto m.
func applyRosterRow(m *database.Member, row []string, get func([]string, string) string, loc *time.Location) error {
	if v := get(row, "email"); v != "" {
		m.Email = sql.NullString{String: strings.ToLower(v), Valid: true}
	}
	if v := get(row, "phone"); v != "" {
		m.Phone = v
	}
	if v := get(row, "city"); v != "" {
		m.City = v
	}
	if v := get(row, "role"); v != "" {
		role := database.Role(strings.ToLower(v))
		if !role.Valid() {
			return fmt.Errorf("unknown role %q", v)
		}
		m.Role = role
	}
	if v := get(row, "status"); v != "" {
		status := database.MemberStatus(strings.ToLower(v))
		if !status.Valid() {
			return fmt.Errorf("unknown status %q", v)
		}
		m.Status = status
	}
	for _, f := range []struct {
		name string
		dst  *sql.NullString
	}{{"birth", &m.BirthDate}, {"joined", &m.JoinedOn}} {
		v := get(row, f.name)
		if v == "" {
			continue
		}
		d, ok := ParseDate(v, loc)
		if !ok {
			return fmt.Errorf("bad date %q", v)
		}
		*f.dst = sql.NullString{String: d.Format("2006-01-02"), Valid: true}
	}
	return nil
}
