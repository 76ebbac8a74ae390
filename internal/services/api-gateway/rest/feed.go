package rest

import (
	"net/http"
	"strconv"

	"github.com/NordCoder/Herald/internal/domain/inapp"
	"github.com/go-chi/chi/v5"
)

const feedPage = 50

func (s *Server) listFeed(w http.ResponseWriter, r *http.Request) {
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	limit, _, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if limit <= 0 || limit > 500 {
		limit = feedPage
	}
	items, err := s.deps.Feed.List(r.Context(), chi.URLParam(r, "userID"), unread, int(limit))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if items == nil {
		items = []inapp.FeedItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) readFeedItem(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Feed.MarkRead(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "id"), s.deps.Clock.Now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) readAllFeed(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Feed.MarkAllRead(r.Context(), chi.URLParam(r, "userID"), s.deps.Clock.Now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": n})
}
