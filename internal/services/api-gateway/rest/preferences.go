package rest

import (
	"fmt"
	"net/http"

	"github.com/NordCoder/Herald/internal/domain/preference"
	"github.com/go-chi/chi/v5"
)

type preferencesResponse struct {
	*preference.Preferences
	Default bool `json:"default,omitempty"`
}

func (s *Server) getPreferences(w http.ResponseWriter, r *http.Request) {
	p, isDefault, err := s.deps.Preferences.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preferencesResponse{Preferences: p, Default: isDefault})
}

// putPreferences replaces the record. The path wins over any user_id in the body.
func (s *Server) putPreferences(w http.ResponseWriter, r *http.Request) {
	var p preference.Preferences
	if err := decode(w, r, &p); err != nil {
		s.fail(w, r, err)
		return
	}
	p.UserID = chi.URLParam(r, "userID")
	stored, err := s.deps.Preferences.Update(r.Context(), &p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preferencesResponse{Preferences: stored})
}

type deviceRequest struct {
	Token    string              `json:"token"`
	Platform preference.Platform `json:"platform"`
}

func (s *Server) postDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, fmt.Errorf("%w: %v", preference.ErrInvalid, err))
		return
	}
	added, err := s.deps.Preferences.RegisterDevice(r.Context(), chi.URLParam(r, "userID"), req.Token, req.Platform)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"added": added})
}
