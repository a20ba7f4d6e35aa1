package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"speech-relay-service/internal/api/ws"
	"speech-relay-service/internal/app"
	"speech-relay-service/internal/config"
	httpapi "speech-relay-service/internal/http"
	"speech-relay-service/internal/observability"
	"speech-relay-service/internal/observability/metrics"
	"speech-relay-service/internal/relay"
)

func main() {
	cfg := config.Load()
	application := app.New(cfg)
	logger := application.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		ServiceName:  cfg.Service.Principal,
		Environment:  cfg.Service.Env,
		OTLPEndpoint: cfg.Observability.OTLPEndpoint,
		OTLPInsecure: cfg.Observability.OTLPInsecure,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to set up tracing")
	}

	gen, err := app.Generator(ctx, cfg.Relay)
	if err != nil {
		logger.Fatal().Err(err).Str("provider", cfg.Relay.Provider).Msg("Failed to create generation provider")
	}
	relayHandler := relay.NewHandler(relay.Config{
		APIKey:   cfg.Relay.APIKey,
		Provider: cfg.Relay.Provider,
		Model:    cfg.Relay.Model,
		Timeout:  cfg.Relay.Timeout,
	}, gen, metrics.DefaultMetrics)

	factory, err := app.RecognitionFactory(cfg.STT)
	if err != nil {
		logger.Fatal().Err(err).Str("provider", cfg.STT.Provider).Msg("Failed to create recognition provider")
	}

	sink, err := app.EventSink(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create event publishers")
	}
	defer sink.Close()

	sessionHandler := ws.NewHandler(ws.Config{
		Factory:   factory,
		Provider:  cfg.STT.Provider,
		Language:  cfg.STT.LanguageCode,
		Publisher: sink,
		Sender:    relay.NewClient(cfg.Relay.ClientEndpoint, cfg.Relay.ClientTimeout),
		Metrics:   metrics.DefaultMetrics,
	})

	router := httpapi.NewRouter(httpapi.Handlers{
		Relay:   relayHandler,
		Session: sessionHandler,
		Metrics: metrics.DefaultMetrics,
	})

	obs := observability.NewServer(cfg.Service.MetricsAddr)
	obs.Start()

	server := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := application.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start application")
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("Speech relay service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()
	obs.SetReady(true)

	<-ctx.Done()

	logger.Info().Msg("Shutting down HTTP server")
	obs.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Observability server shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Tracing shutdown failed")
	}
	application.Shutdown()
}
