// Package recognition defines the event source contract between a speech
// recognizer and the session controller.
package recognition

import (
	"context"
	"errors"
)

// ErrCapabilityUnavailable is returned when no recognizer can be constructed
// in this environment.
var ErrCapabilityUnavailable = errors.New("speech recognition is not available")

// Result is one recognized segment.
type Result struct {
	Text       string
	IsFinal    bool
	Confidence float64
}

// Batch is a single emission from a recognizer. Results holds the source's
// result list as of this emission; entries before StartIndex were delivered
// in earlier batches and must not be folded again.
type Batch struct {
	StartIndex int
	Results    []Result
}

// Pending returns the results that are new in this batch.
func (b Batch) Pending() []Result {
	start := b.StartIndex
	if start < 0 {
		start = 0
	}
	if start >= len(b.Results) {
		return nil
	}
	return b.Results[start:]
}

// Event is what a Source delivers on its channel. Exactly one of Batch or Err
// is meaningful: a non-nil Err reports a runtime recognition failure.
type Event struct {
	Batch Batch
	Err   error
}

// Source produces recognition events for one listening session.
//
// Start returns a channel that is closed when the source ends, either on its
// own, after Stop, or when ctx is cancelled. A Source is used for a single
// session and is discarded after Stop.
type Source interface {
	Start(ctx context.Context, language string) (<-chan Event, error)
	Stop() error
}

// AudioSink is implemented by sources fed with raw audio frames.
type AudioSink interface {
	SendAudio(ctx context.Context, audio []byte) error
}

// Factory constructs a fresh Source for each session start.
type Factory func(ctx context.Context) (Source, error)
