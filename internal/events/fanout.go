package events

import (
	"context"
	"errors"

	"speech-relay-service/internal/models"
)

// Sink is anything that accepts transcript events.
type Sink interface {
	PublishInterim(ctx context.Context, ev models.TranscriptInterim) error
	PublishFinal(ctx context.Context, ev models.TranscriptFinal) error
	Close() error
}

// Fanout delivers every event to all sinks and joins their errors.
type Fanout []Sink

func (f Fanout) PublishInterim(ctx context.Context, ev models.TranscriptInterim) error {
	var errs []error
	for _, s := range f {
		errs = append(errs, s.PublishInterim(ctx, ev))
	}
	return errors.Join(errs...)
}

func (f Fanout) PublishFinal(ctx context.Context, ev models.TranscriptFinal) error {
	var errs []error
	for _, s := range f {
		errs = append(errs, s.PublishFinal(ctx, ev))
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, s := range f {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
