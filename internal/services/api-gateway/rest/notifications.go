package rest

import (
	"fmt"
	"net/http"
	"time"

	"github.com/NordCoder/Herald/internal/domain/delivery"
	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/NordCoder/Herald/internal/services/dispatcher"
	"github.com/go-chi/chi/v5"
)

type sendResponse struct {
	Accepted       bool                `json:"accepted"`
	NotificationID string              `json:"notification_id"`
	Results        []dispatcher.Result `json:"results"`
}

func (s *Server) postNotification(w http.ResponseWriter, r *http.Request) {
	var req dispatcher.Request
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	ns, err := req.Build(s.deps.Clock.Now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	results, err := s.deps.Dispatcher.SendMany(r.Context(), ns)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := sendResponse{NotificationID: ns[0].Common().ID, Results: results}
	for _, res := range results {
		if res.Outcome == dispatcher.OutcomeSent || res.Outcome == dispatcher.OutcomeScheduled {
			resp.Accepted = true
		}
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) getDeliveries(w http.ResponseWriter, r *http.Request) {
	recs, err := s.deps.Tracker.Query(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

type receiptRequest struct {
	Status delivery.Status `json:"status"`
	Reason string          `json:"reason,omitempty"`
}

type receiptResponse struct {
	Record  delivery.Record  `json:"record"`
	Applied delivery.Applied `json:"applied"`
}

// postReceipt takes provider callbacks. Only the terminal-side statuses are accepted;
// pending and sent are owned by the dispatcher.
func (s *Server) postReceipt(w http.ResponseWriter, r *http.Request) {
	ch, err := notification.ParseChannel(chi.URLParam(r, "channel"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req receiptRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	switch req.Status {
	case delivery.StatusDelivered, delivery.StatusRead, delivery.StatusFailed:
	default:
		s.fail(w, r, fmt.Errorf("%w: receipt status %q", delivery.ErrUnknownStatus, req.Status))
		return
	}

	var meta *delivery.Meta
	if req.Reason != "" {
		meta = &delivery.Meta{Reason: req.Reason}
	}
	rec, applied, err := s.deps.Tracker.Record(r.Context(), chi.URLParam(r, "id"), ch, req.Status, meta)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receiptResponse{Record: rec, Applied: applied})
}

type statsResponse struct {
	From   time.Time                 `json:"from"`
	To     time.Time                 `json:"to"`
	Counts map[delivery.Status]int64 `json:"counts"`
}

// getStats counts status transitions in [from, to). The window defaults to the last day.
func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	to := s.deps.Clock.Now()
	from := to.Add(-24 * time.Hour)
	q := r.URL.Query()
	var err error
	if v := q.Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			s.fail(w, r, fmt.Errorf("%w: to: %v", notification.ErrInvalid, err))
			return
		}
		if q.Get("from") == "" {
			from = to.Add(-24 * time.Hour)
		}
	}
	if v := q.Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			s.fail(w, r, fmt.Errorf("%w: from: %v", notification.ErrInvalid, err))
			return
		}
	}

	counts, err := s.deps.Tracker.Stats(r.Context(), from, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{From: from, To: to, Counts: counts})
}
