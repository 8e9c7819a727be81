package importer

import (
	"context"
	"time"

	"github.com/intermernet/clubportal/internal/database"
)

// readStore is what DryRun needs from the real store: reads only.
type readStore interface {
	FindEventOnDay(ctx context.Context, dayStart, dayEnd time.Time) (int64, bool, error)
	ListVisibleMembers(ctx context.Context) ([]*database.Member, error)
	ListAllMembers(ctx context.Context) ([]*database.Member, error)
}

// DryRun passes reads through to the real store and swallows writes, so an
// import can be previewed. Created events get negative placeholder IDs.
type DryRun struct {
	Reads readStore

	nextID int64
	Events []database.Event
	Writes int
}

func (d *DryRun) FindEventOnDay(ctx context.Context, dayStart, dayEnd time.Time) (int64, bool, error) {
	return d.Reads.FindEventOnDay(ctx, dayStart, dayEnd)
}

func (d *DryRun) ListVisibleMembers(ctx context.Context) ([]*database.Member, error) {
	return d.Reads.ListVisibleMembers(ctx)
}

func (d *DryRun) ListAllMembers(ctx context.Context) ([]*database.Member, error) {
	return d.Reads.ListAllMembers(ctx)
}

func (d *DryRun) CreateImportedEvent(_ context.Context, ev database.Event) (int64, error) {
	d.nextID--
	ev.ID = d.nextID
	d.Events = append(d.Events, ev)
	return ev.ID, nil
}

func (d *DryRun) SaveAttendance(context.Context, int64, int64, database.AttendanceStatus) error {
	d.Writes++
	return nil
}

func (d *DryRun) SaveMember(_ context.Context, m *database.Member) (*database.Member, error) {
	d.Writes++
	return m, nil
}
