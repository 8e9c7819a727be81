package api

import (
	"database/sql"
	"time"

	"github.com/intermernet/clubportal/internal/database"
)

// MemberResponse is the roster entry sent to the portal. Contact fields are
// only filled for the member themself and for roster managers.
type MemberResponse struct {
	ID          int64                 `json:"id"`
	FirstName   string                `json:"firstName"`
	LastName    string                `json:"lastName"`
	Role        database.Role         `json:"role"`
	Status      database.MemberStatus `json:"status"`
	Hidden      bool                  `json:"hidden"`
	City        string                `json:"city"`
	Email       *string               `json:"email"`
	Phone       *string               `json:"phone"`
	BirthDate   *string               `json:"birthDate"`
	JoinedOn    *string               `json:"joinedOn"`
	LeftOn      *string               `json:"leftOn"`
	HasPassword bool                  `json:"hasPassword"`
	CreatedAt   time.Time             `json:"createdAt"`
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func toNullString(p *string) sql.NullString {
	if p == nil || *p == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

// toMemberResponse maps a database member; withContact controls whether
// email, phone and dates are exposed.
func toMemberResponse(m *database.Member, withContact bool) MemberResponse {
	resp := MemberResponse{
		ID:        m.ID,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		Role:      m.Role,
		Status:    m.Status,
		Hidden:    m.Hidden,
		City:      m.City,
		JoinedOn:  nullable(m.JoinedOn),
		CreatedAt: m.CreatedAt,
	}
	if withContact {
		resp.Email = nullable(m.Email)
		if m.Phone != "" {
			phone := m.Phone
			resp.Phone = &phone
		}
		resp.BirthDate = nullable(m.BirthDate)
		resp.LeftOn = nullable(m.LeftOn)
		resp.HasPassword = m.PasswordHash.Valid && m.PasswordHash.String != ""
	}
	return resp
}

func toMemberResponseList(members []*database.Member, withContact bool) []MemberResponse {
	list := make([]MemberResponse, len(members))
	for i, m := range members {
		list[i] = toMemberResponse(m, withContact)
	}
	return list
}

// EventResponse renders an event with its start in the club timezone.
type EventResponse struct {
	ID         int64               `json:"id"`
	Title      string              `json:"title"`
	StartAt    string              `json:"startAt"`
	Category   database.Category   `json:"category"`
	Location   string              `json:"location"`
	Recurrence database.Recurrence `json:"recurrence"`
	Exceptions []string            `json:"exceptions"`
	CreatedAt  time.Time           `json:"createdAt"`
}

func toEventResponse(e *database.Event, loc *time.Location) EventResponse {
	exceptions := e.Exceptions
	if exceptions == nil {
		exceptions = []string{}
	}
	return EventResponse{
		ID:         e.ID,
		Title:      e.Title,
		StartAt:    e.StartAt.In(loc).Format(time.RFC3339),
		Category:   e.Category,
		Location:   e.Location,
		Recurrence: e.Recurrence,
		Exceptions: exceptions,
		CreatedAt:  e.CreatedAt,
	}
}
