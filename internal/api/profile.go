package api

import (
	"net/http"

	"jobtracker/internal/models"
)

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.profiles.Get(r.Context(), sessionFrom(r.Context()).UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*models.Profile{"profile": p})
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	var p models.Profile
	if err := decodeJSON(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	p.UserID = sessionFrom(r.Context()).UserID
	saved, err := s.profiles.Upsert(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]models.Profile{"profile": saved})
}
