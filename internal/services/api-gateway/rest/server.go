package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/NordCoder/Herald/internal/domain/delivery"
	"github.com/NordCoder/Herald/internal/domain/inapp"
	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/NordCoder/Herald/internal/domain/preference"
	"github.com/NordCoder/Herald/internal/domain/schedule"
	"github.com/NordCoder/Herald/internal/obs"
	"github.com/NordCoder/Herald/internal/services/dispatcher"
	"github.com/NordCoder/Herald/internal/services/inappbus"
	prefsvc "github.com/NordCoder/Herald/internal/services/preference"
	"github.com/NordCoder/Herald/internal/services/scheduler"
	"github.com/NordCoder/Herald/internal/services/tracker"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Deps are the services behind the API.
type Deps struct {
	Dispatcher  *dispatcher.Dispatcher
	Preferences *prefsvc.Service
	Scheduler   *scheduler.Usecase
	Tracker     *tracker.Tracker
	Bus         *inappbus.Bus
	Feed        inapp.FeedRepo
	Clock       notification.Clock
	Health      func(ctx context.Context) error
}

type Server struct {
	deps    Deps
	log     *zap.Logger
	origins []string
}

func NewServer(log *zap.Logger, deps Deps, allowedOrigins []string) *Server {
	if deps.Clock == nil {
		deps.Clock = notification.SystemClock{}
	}
	if deps.Health == nil {
		deps.Health = func(context.Context) error { return nil }
	}
	return &Server{deps: deps, log: log.With(zap.String("component", "http")), origins: allowedOrigins}
}

// Handler is the full HTTP surface, traced with otelhttp.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.Router(), "api-gateway",
		otelhttp.WithFilter(func(r *http.Request) bool { return r.URL.Path != "/healthz" && r.URL.Path != "/metrics" }))
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", obs.HealthHandler(s.deps.Health))
	r.Handle("/metrics", obs.MetricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/notifications", s.postNotification)
		r.Get("/notifications/{id}/deliveries", s.getDeliveries)
		r.Post("/notifications/{id}/deliveries/{channel}", s.postReceipt)
		r.Get("/stats/deliveries", s.getStats)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/preferences", s.getPreferences)
			r.Put("/preferences", s.putPreferences)
			r.Post("/devices", s.postDevice)
			r.Get("/schedules", s.listSchedules)
			r.Get("/feed", s.listFeed)
			r.Put("/feed/read-all", s.readAllFeed)
			r.Put("/feed/{id}/read", s.readFeedItem)
		})

		r.Delete("/schedules/{scheduleID}", s.cancelSchedule)

		r.Get("/inbox/{group}", s.readInbox)
		r.Get("/inbox/{group}/ws", s.streamInbox)
	})
	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		obs.WithTrace(r.Context(), s.log).Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return errors.Join(notification.ErrInvalid, err)
	}
	return nil
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, notification.ErrInvalid),
		errors.Is(err, notification.ErrUnknownChannel),
		errors.Is(err, preference.ErrInvalid),
		errors.Is(err, delivery.ErrUnknownStatus):
		return http.StatusBadRequest
	case errors.Is(err, schedule.ErrNotFound),
		errors.Is(err, inapp.ErrFeedNotFound),
		errors.Is(err, delivery.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, inapp.ErrResync):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail maps err to a status. Server errors are logged and not echoed.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		obs.WithTrace(r.Context(), s.log).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = http.StatusText(code)
	}
	writeJSON(w, code, errorBody{Error: msg})
}
