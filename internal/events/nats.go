package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"speech-relay-service/internal/models"
	"speech-relay-service/internal/observability/metrics"
	"speech-relay-service/internal/schema"
)

// Default NATS subjects for transcript events.
const (
	DefaultSubjectInterim = "speech.transcript.interim"
	DefaultSubjectFinal   = "speech.transcript.final"
)

// NATSConfig holds NATS publisher configuration.
type NATSConfig struct {
	URL            string
	SubjectInterim string
	SubjectFinal   string
	Name           string
}

// NATSPublisher publishes transcript events as NATS messages. With no URL it
// is disabled and every publish is a no-op.
type NATSPublisher struct {
	conn           *nats.Conn
	subjectInterim string
	subjectFinal   string
	validator      *schema.Validator
	metrics        *metrics.Metrics
}

// NewNATS connects to NATS when cfg.URL is set.
func NewNATS(cfg NATSConfig) (*NATSPublisher, error) {
	p := &NATSPublisher{
		subjectInterim: DefaultSubjectInterim,
		subjectFinal:   DefaultSubjectFinal,
		validator:      schema.New(),
		metrics:        metrics.DefaultMetrics,
	}
	if cfg.SubjectInterim != "" {
		p.subjectInterim = cfg.SubjectInterim
	}
	if cfg.SubjectFinal != "" {
		p.subjectFinal = cfg.SubjectFinal
	}

	if cfg.URL == "" {
		log.Info().Msg("NATS disabled")
		return p, nil
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	p.conn = conn

	log.Info().
		Str("url", cfg.URL).
		Str("subjectInterim", p.subjectInterim).
		Str("subjectFinal", p.subjectFinal).
		Msg("NATS publisher initialized")
	return p, nil
}

// PublishInterim publishes an interim fragment.
func (p *NATSPublisher) PublishInterim(ctx context.Context, ev models.TranscriptInterim) error {
	return p.publish(p.subjectInterim, "interim", ev)
}

// PublishFinal publishes a finalized result.
func (p *NATSPublisher) PublishFinal(ctx context.Context, ev models.TranscriptFinal) error {
	return p.publish(p.subjectFinal, "final", ev)
}

func (p *NATSPublisher) publish(subject, eventType string, event any) error {
	if p.conn == nil {
		return nil
	}
	start := time.Now()

	if err := p.validator.Validate(event); err != nil {
		p.metrics.RecordPublish("nats", eventType, err, time.Since(start).Seconds())
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = p.conn.Publish(subject, payload)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("Failed to publish to NATS")
	}
	p.metrics.RecordPublish("nats", eventType, err, time.Since(start).Seconds())
	return err
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
