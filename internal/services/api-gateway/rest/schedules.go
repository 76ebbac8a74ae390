package rest

import (
	"net/http"

	"github.com/NordCoder/Herald/internal/domain/schedule"
	"github.com/go-chi/chi/v5"
)

// cancelSchedule is best effort: false means the entry already fired or never existed.
func (s *Server) cancelSchedule(w http.ResponseWriter, r *http.Request) {
	ok, err := s.deps.Scheduler.Cancel(r.Context(), chi.URLParam(r, "scheduleID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": ok})
}

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Scheduler.Pending(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []schedule.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
