package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/intermernet/clubportal/internal/cms"
)

// handleGetPage proxies a public page from the CMS.
func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	if !s.cms.Enabled() {
		s.errorJSON(w, errors.New("page not found"), http.StatusNotFound)
		return
	}
	page, err := s.cms.Page(r.Context(), chi.URLParam(r, "slug"))
	switch {
	case errors.Is(err, cms.ErrInvalidSlug):
		s.errorJSON(w, err, http.StatusBadRequest)
	case errors.Is(err, cms.ErrPageNotFound):
		s.errorJSON(w, errors.New("page not found"), http.StatusNotFound)
	case err != nil:
		s.errorJSON(w, err, http.StatusBadGateway)
	default:
		s.writeJSON(w, http.StatusOK, envelope{"page": page})
	}
}
