package api

import (
	"errors"
	"log"
	"net/http"
)

// handleInviteMember mails a roster member the portal sign-in link.
func (s *Server) handleInviteMember(w http.ResponseWriter, r *http.Request) {
	if !s.email.Enabled() {
		s.errorJSON(w, errors.New("email is not configured on this server"), http.StatusServiceUnavailable)
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
	if !member.Email.Valid {
		s.errorJSON(w, errors.New("member has no email address"), http.StatusUnprocessableEntity)
		return
	}

	if err := s.email.SendPortalInvite(member, s.config.FrontendURL); err != nil {
		log.Printf("ERROR: portal invite for member %d failed: %v", member.ID, err)
		s.errorJSON(w, errors.New("the invitation could not be sent"), http.StatusBadGateway)
		return
	}
	log.Printf("INFO: portal invite sent to member %d", member.ID)
	s.writeJSON(w, http.StatusAccepted, envelope{"message": "invitation sent"})
}
