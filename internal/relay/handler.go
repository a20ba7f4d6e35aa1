// Package relay implements the prompt relay endpoint and its client.
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"speech-relay-service/internal/observability/logging"
	"speech-relay-service/internal/observability/metrics"
	"speech-relay-service/internal/service/generation"
)

// Error bodies returned by the relay endpoint.
const (
	MsgMethodNotAllowed = "Method Not Allowed. Use POST."
	MsgMissingKey       = "API Key is missing on the server."
	MsgMissingPrompt    = "Please provide a prompt."
	MsgInternal         = "Internal Server Error"
)

const defaultMaxBodyBytes = 1 << 20

// Request is the relay request body.
type Request struct {
	Prompt string `json:"prompt"`
}

// Response is the relay response body. Successful replies always carry
// answer, even when it is empty; error replies carry only error.
type Response struct {
	Answer string `json:"answer"`
	Error  string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Config is built once at startup and injected into the handler.
type Config struct {
	APIKey       string
	Provider     string
	Model        string
	Timeout      time.Duration
	MaxBodyBytes int64
}

// Handler serves POST /api/function. It keeps no state between requests.
type Handler struct {
	cfg     Config
	gen     generation.Generator
	metrics *metrics.Metrics
	tracer  trace.Tracer
	log     zerolog.Logger
}

// NewHandler validates cfg once. A missing credential or generator does not
// fail construction; every request is answered with 500 instead.
func NewHandler(cfg Config, gen generation.Generator, m *metrics.Metrics) *Handler {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	h := &Handler{
		cfg:     cfg,
		gen:     gen,
		metrics: m,
		tracer:  otel.Tracer("speech-relay-service/relay"),
		log:     logging.WithComponent("relay"),
	}

	if !h.configured() {
		h.log.Error().
			Bool("hasKey", cfg.APIKey != "").
			Bool("hasGenerator", gen != nil).
			Msg("Relay credential missing, requests will fail")
	} else {
		h.log.Info().
			Str("provider", cfg.Provider).
			Str("model", cfg.Model).
			Dur("timeout", cfg.Timeout).
			Msg("Relay configured")
	}
	return h
}

func (h *Handler) configured() bool {
	return h.cfg.APIKey != "" && h.gen != nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logging.WithRequest(middleware.GetReqID(r.Context()))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.reply(w, http.StatusMethodNotAllowed, errorResponse{Error: MsgMethodNotAllowed})
		return
	}

	if !h.configured() {
		log.Error().Msg("Relay request rejected, API key missing")
		h.reply(w, http.StatusInternalServerError, errorResponse{Error: MsgMissingKey})
		return
	}

	var body struct {
		Prompt *string `json:"prompt"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Prompt == nil || strings.TrimSpace(*body.Prompt) == "" {
		h.reply(w, http.StatusBadRequest, errorResponse{Error: MsgMissingPrompt})
		return
	}
	prompt := *body.Prompt

	ctx, span := h.tracer.Start(r.Context(), "relay.generate",
		trace.WithAttributes(
			attribute.String("relay.provider", h.cfg.Provider),
			attribute.String("relay.model", h.cfg.Model),
			attribute.Int("relay.prompt_length", len(prompt)),
		),
	)
	defer span.End()

	if h.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	answer, err := h.gen.Generate(ctx, prompt)
	h.metrics.RecordProviderCall(h.cfg.Provider, err, time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Str("provider", h.cfg.Provider).Msg("Generation provider failed")

		msg := err.Error()
		if msg == "" {
			msg = MsgInternal
		}
		h.reply(w, http.StatusInternalServerError, errorResponse{Error: msg})
		return
	}

	log.Info().
		Int("promptLength", len(prompt)).
		Int("answerLength", len(answer)).
		Dur("latency", time.Since(start)).
		Msg("Relay request served")
	h.reply(w, http.StatusOK, Response{Answer: answer})
}

func (h *Handler) reply(w http.ResponseWriter, status int, body any) {
	h.metrics.RecordRelayRequest(http.StatusText(status))
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
