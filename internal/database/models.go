package database

import (
	"database/sql"
	"time"
)

// Role is a member's function in the club. It drives portal capabilities.
type Role string

const (
	RoleMember Role = "member"
	RoleCoach  Role = "coach"
	RoleBoard  Role = "board"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleCoach, RoleBoard, RoleAdmin:
		return true
	}
	return false
}

// MemberStatus is the membership state.
type MemberStatus string

const (
	StatusActive  MemberStatus = "active"
	StatusPassive MemberStatus = "passive"
	StatusGuest   MemberStatus = "guest"
	StatusLeft    MemberStatus = "left"
)

func (s MemberStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPassive, StatusGuest, StatusLeft:
		return true
	}
	return false
}

// Category classifies an event.
type Category string

const (
	CategoryTraining      Category = "training"
	CategoryMatch         Category = "match"
	CategoryParty         Category = "party"
	CategoryGeneral       Category = "general"
	CategoryAnnualMeeting Category = "annual_meeting"
	CategoryCardGame      Category = "card_game"
	CategoryTrip          Category = "trip"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryTraining, CategoryMatch, CategoryParty, CategoryGeneral,
		CategoryAnnualMeeting, CategoryCardGame, CategoryTrip:
		return true
	}
	return false
}

// Recurrence is how an event repeats.
type Recurrence string

const (
	RecurrenceNone   Recurrence = "none"
	RecurrenceWeekly Recurrence = "weekly"
)

func (r Recurrence) Valid() bool {
	return r == RecurrenceNone || r == RecurrenceWeekly
}

// AttendanceStatus is the closed vocabulary stored per (event, member).
type AttendanceStatus string

const (
	AttendanceActive  AttendanceStatus = "active"
	AttendancePassive AttendanceStatus = "passive"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceHelper  AttendanceStatus = "helper"
	AttendanceExcused AttendanceStatus = "excused"
)

func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceActive, AttendancePassive, AttendanceAbsent, AttendanceHelper, AttendanceExcused:
		return true
	}
	return false
}

// Member represents a record in the 'members' table.
// Nullable columns use sql.Null* types; the API layer maps them to pointers.
type Member struct {
	ID           int64          `json:"id"`
	FirstName    string         `json:"firstName"`
	LastName     string         `json:"lastName"`
	Email        sql.NullString `json:"-"`
	Phone        string         `json:"-"`
	Role         Role           `json:"role"`
	Status       MemberStatus   `json:"status"`
	Hidden       bool           `json:"hidden"`
	BirthDate    sql.NullString `json:"-"`
	City         string         `json:"city"`
	JoinedOn     sql.NullString `json:"-"`
	LeftOn       sql.NullString `json:"-"`
	PasswordHash sql.NullString `json:"-"` // Never exposed
	CreatedAt    time.Time      `json:"createdAt"`
}

// Event represents a record in the 'events' table. Exceptions holds the
// skipped calendar dates (YYYY-MM-DD) of a weekly event.
type Event struct {
	ID         int64      `json:"id"`
	Title      string     `json:"title"`
	StartAt    time.Time  `json:"startAt"`
	Category   Category   `json:"category"`
	Location   string     `json:"location"`
	Recurrence Recurrence `json:"recurrence"`
	Exceptions []string   `json:"exceptions"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Attendance represents a record in the 'attendance' table.
type Attendance struct {
	ID        int64            `json:"id"`
	EventID   int64            `json:"eventId"`
	MemberID  int64            `json:"memberId"`
	Status    AttendanceStatus `json:"status"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// MatchResult represents a record in 'match_results' together with its goals.
type MatchResult struct {
	ID        int64     `json:"id"`
	EventID   int64     `json:"eventId"`
	Opponent  string    `json:"opponent"`
	ScoreHome int       `json:"scoreHome"`
	ScoreAway int       `json:"scoreAway"`
	Goals     []Goal    `json:"goals"`
	CreatedAt time.Time `json:"createdAt"`
}

// Goal is one scorer line of a match result.
type Goal struct {
	MemberID int64 `json:"memberId"`
	Goals    int   `json:"goals"`
}

// MemberStats aggregates attendance counts for one visible member.
type MemberStats struct {
	MemberID  int64                    `json:"memberId"`
	FirstName string                   `json:"firstName"`
	LastName  string                   `json:"lastName"`
	Counts    map[AttendanceStatus]int `json:"counts"`
	Goals     int                      `json:"goals"`
}

// ImportRun is the persisted summary of one CSV import.
type ImportRun struct {
	ID              string    `json:"id"`
	Kind            string    `json:"kind"`
	FileName        string    `json:"fileName"`
	StartedAt       time.Time `json:"startedAt"`
	DateColumns     int       `json:"dateColumns"`
	RecordsWritten  int       `json:"recordsWritten"`
	MembersNotFound int       `json:"membersNotFound"`
	Errors          int       `json:"errors"`
}
