package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/intermernet/clubportal/internal/auth"
	"github.com/intermernet/clubportal/internal/database"
)

// memberPayload is the editable part of a member. Pointers distinguish
// "not sent" from "cleared" on updates.
type memberPayload struct {
	FirstName *string                `json:"firstName"`
	LastName  *string                `json:"lastName"`
	Email     *string                `json:"email"`
	Phone     *string                `json:"phone"`
	Role      *database.Role         `json:"role"`
	Status    *database.MemberStatus `json:"status"`
	Hidden    *bool                  `json:"hidden"`
	City      *string                `json:"city"`
	BirthDate *string                `json:"birthDate"`
	JoinedOn  *string                `json:"joinedOn"`
	LeftOn    *string                `json:"leftOn"`
}

// apply copies the sent fields onto m and validates the result.
func (p *memberPayload) apply(m *database.Member) error {
	if p.FirstName != nil {
		m.FirstName = strings.TrimSpace(*p.FirstName)
	}
	if p.LastName != nil {
		m.LastName = strings.TrimSpace(*p.LastName)
	}
	if p.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*p.Email))
		m.Email = toNullString(&e)
	}
	if p.Phone != nil {
		m.Phone = strings.TrimSpace(*p.Phone)
	}
	if p.Role != nil {
		m.Role = *p.Role
	}
	if p.Status != nil {
		m.Status = *p.Status
	}
	if p.Hidden != nil {
		m.Hidden = *p.Hidden
	}
	if p.City != nil {
		m.City = strings.TrimSpace(*p.City)
	}
	for _, d := range []struct {
		in  *string
		out *sql.NullString
	}{{p.BirthDate, &m.BirthDate}, {p.JoinedOn, &m.JoinedOn}, {p.LeftOn, &m.LeftOn}} {
		if d.in == nil {
			continue
		}
		if *d.in != "" {
			if _, err := time.Parse("2006-01-02", *d.in); err != nil {
				return errors.New("dates must use YYYY-MM-DD")
			}
		}
		*d.out = toNullString(d.in)
	}

	switch {
	case m.FirstName == "" || m.LastName == "":
		return errors.New("firstName and lastName are required")
	case !m.Role.Valid():
		return errors.New("role must be member, coach, board or admin")
	case !m.Status.Valid():
		return errors.New("status must be active, passive, guest or left")
	case m.Email.Valid && !strings.Contains(m.Email.String, "@"):
		return errors.New("email is not valid")
	}
	return nil
}

// handleGetMe returns the caller's own roster entry.
func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	p, err := principalFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusUnauthorized)
		return
	}
	member, err := s.db.GetMemberByID(r.Context(), s.db.DB(), p.MemberID)
	if err != nil {
		s.storeError(w, err, "member not found")
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"member": toMemberResponse(member, true)})
}

// handleListMembers returns the roster. Hidden members only appear for
// callers who may see them.
func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	p, err := principalFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusUnauthorized)
		return
	}
	members, err := s.db.ListMembers(r.Context(), s.db.DB(), p.Can(auth.ViewHidden))
	if err != nil {
		s.errorJSON(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"members": toMemberResponseList(members, p.Can(auth.ManageMembers))})
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	p, err := principalFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusUnauthorized)
		return
	}
	id, err := idParam(r, "memberID")
	if err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	member, err := s.db.GetMemberByID(r.Context(), s.db.DB(), id)
	if err != nil {
		s.storeError(w, err, "member not found")
		return
	}
	if member.Hidden && !p.Can(auth.ViewHidden) && member.ID != p.MemberID {
		s.errorJSON(w, errors.New("member not found"), http.StatusNotFound)
		return
	}
	withContact := p.Can(auth.ManageMembers) || member.ID == p.MemberID
	s.writeJSON(w, http.StatusOK, envelope{"member": toMemberResponse(member, withContact)})
}

func (s *Server) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	var payload memberPayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	m := &database.Member{Role: database.RoleMember, Status: database.StatusActive}
	if err := payload.apply(m); err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	if err := s.guardRoleChange(r, m.Role); err != nil {
		s.errorJSON(w, err, http.StatusForbidden)
		return
	}

	var created *database.Member
	err := s.db.Write(r.Context(), func(tx *sql.Tx) error {
		var txErr error
		created, txErr = s.db.CreateMember(r.Context(), tx, m)
		return txErr
	})
	if err != nil {
		if isUniqueViolation(err) {
			s.errorJSON(w, errors.New("a member with this email address already exists"), http.StatusConflict)
			return
		}
		s.errorJSON(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, envelope{"member": toMemberResponse(created, true)})
}

func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "memberID")
	if err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	var payload memberPayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	if payload.Role != nil {
		if err := s.guardRoleChange(r, *payload.Role); err != nil {
			s.errorJSON(w, err, http.StatusForbidden)
			return
		}
	}

	var updated *database.Member
	err = s.db.Write(r.Context(), func(tx *sql.Tx) error {
		m, txErr := s.db.GetMemberByID(r.Context(), tx, id)
		if txErr != nil {
			return txErr
		}
		if txErr = payload.apply(m); txErr != nil {
			return &validationError{txErr}
		}
		if txErr = s.db.UpdateMember(r.Context(), tx, m); txErr != nil {
			return txErr
		}
		updated = m
		return nil
	})
	var verr *validationError
	switch {
	case errors.As(err, &verr):
		s.errorJSON(w, verr.err, http.StatusBadRequest)
	case isUniqueViolation(err):
		s.errorJSON(w, errors.New("a member with this email address already exists"), http.StatusConflict)
	case err != nil:
		s.storeError(w, err, "member not found")
	default:
		s.writeJSON(w, http.StatusOK, envelope{"member": toMemberResponse(updated, true)})
	}
}

func (s *Server) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r)
	id, err := idParam(r, "memberID")
	if err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	if id == p.MemberID {
		s.errorJSON(w, errors.New("you cannot delete yourself"), http.StatusBadRequest)
		return
	}
	err = s.db.Write(r.Context(), func(tx *sql.Tx) error {
		return s.db.DeleteMember(r.Context(), tx, id)
	})
	if err != nil {
		s.storeError(w, err, "member not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// guardRoleChange keeps non-admins from handing out the admin role.
func (s *Server) guardRoleChange(r *http.Request, role database.Role) error {
	p, err := principalFromContext(r)
	if err != nil {
		return err
	}
	if role == database.RoleAdmin && p.Role != database.RoleAdmin {
		return errors.New("forbidden: only admins may grant the admin role")
	}
	return nil
}

// validationError marks a bad-request failure raised inside a transaction.
type validationError struct{ err error }

func (v *validationError) Error() string { return v.err.Error() }

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
