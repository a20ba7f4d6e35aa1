// Package app wires configuration into the service's components.
package app

import (
	"context"
	"errors"
	"fmt"

	"speech-relay-service/internal/config"
	"speech-relay-service/internal/events"
	"speech-relay-service/internal/service/generation"
	"speech-relay-service/internal/service/recognition"
	"speech-relay-service/internal/service/recognition/google"
	"speech-relay-service/internal/service/recognition/mock"
)

// RecognitionFactory returns the factory for cfg.Provider. A nil factory
// with a nil error means recognition is deliberately unavailable.
func RecognitionFactory(cfg config.STTConfig) (recognition.Factory, error) {
	switch cfg.Provider {
	case "mock", "":
		script := mock.DefaultScript()
		if cfg.ScriptPath != "" {
			s, err := mock.LoadScript(cfg.ScriptPath)
			if err != nil {
				return nil, err
			}
			script = s
		}
		return mock.Factory(script), nil
	case "google":
		gcfg := google.DefaultConfig()
		if cfg.SampleRateHz > 0 {
			gcfg.SampleRateHz = int32(cfg.SampleRateHz)
		}
		if cfg.AudioEncoding != "" {
			gcfg.AudioEncoding = cfg.AudioEncoding
		}
		gcfg.InterimResults = cfg.InterimResults
		gcfg.CredentialsFile = cfg.CredentialsFile
		return google.Factory(gcfg), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.Provider)
	}
}

// Generator builds the relay's generation provider. A missing credential is
// not an error here: the relay reports it per request.
func Generator(ctx context.Context, cfg config.RelayConfig) (generation.Generator, error) {
	gen, err := generation.New(ctx, generation.Config{
		Provider: cfg.Provider,
		APIKey:   cfg.APIKey,
		Model:    cfg.Model,
		BaseURL:  cfg.BaseURL,
		Command:  cfg.Command,
	})
	if errors.Is(err, generation.ErrMissingCredential) {
		return nil, nil
	}
	return gen, err
}

// EventSink builds the transcript event fan-out. Kafka runs in log-only mode
// when disabled; NATS is added only when configured.
func EventSink(cfg *config.Config) (events.Sink, error) {
	sinks := events.Fanout{
		events.New(&events.Config{
			Enabled:      cfg.Kafka.Enabled,
			Brokers:      cfg.Kafka.Brokers,
			TopicInterim: cfg.Kafka.TopicInterim,
			TopicFinal:   cfg.Kafka.TopicFinal,
			Principal:    cfg.Kafka.Principal,
		}),
	}

	if cfg.NATS.URL != "" {
		np, err := events.NewNATS(events.NATSConfig{
			URL:            cfg.NATS.URL,
			SubjectInterim: cfg.NATS.SubjectInterim,
			SubjectFinal:   cfg.NATS.SubjectFinal,
			Name:           cfg.Service.Principal,
		})
		if err != nil {
			sinks.Close()
			return nil, err
		}
		sinks = append(sinks, np)
	}
	return sinks, nil
}
