package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"speech-relay-service/internal/observability"
	"speech-relay-service/internal/observability/metrics"
	"speech-relay-service/internal/service/recognition"
)

// Handlers are the service endpoints mounted by NewRouter. A nil handler
// leaves its route unmounted.
type Handlers struct {
	Relay   http.Handler
	Session http.Handler
	Metrics *metrics.Metrics
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observability.RequestLogger(h.Metrics))

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		if h.Relay != nil {
			// All methods reach the relay so it can answer 405 itself.
			r.Handle("/function", h.Relay)
		}
		r.Get("/languages", languages)
		if h.Session != nil {
			r.Get("/session", h.Session.ServeHTTP)
		}
	})

	return r
}

func languages(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"default":   recognition.DefaultLanguage,
		"languages": recognition.Languages,
	})
}
