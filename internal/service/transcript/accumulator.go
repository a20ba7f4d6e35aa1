// Package transcript folds recognition batches into finalized and interim
// text and implements the clear, copy and send actions.
package transcript

import (
	"context"
	"errors"
	"strings"
	"sync"

	"speech-relay-service/internal/service/recognition"
)

// ErrNothingToSend is returned by Send when no finalized text exists.
var ErrNothingToSend = errors.New("no finalized transcript to send")

// State is a snapshot of the accumulated transcript.
type State struct {
	Finalized string `json:"finalized"`
	Interim   string `json:"interim"`
}

// Fold describes what a single Apply changed.
type Fold struct {
	Finals  []recognition.Result
	Interim string
}

// ClipboardWriter receives the trimmed transcript on Copy.
type ClipboardWriter interface {
	WriteText(text string) error
}

// Sender relays finalized text and returns a display string.
type Sender interface {
	Send(ctx context.Context, prompt string) string
}

// Accumulator holds the transcript for one controller. It is safe for
// concurrent use; writes come from the single session consumer and from
// user actions.
type Accumulator struct {
	mu        sync.RWMutex
	finalized strings.Builder
	interim   string
}

// New returns an empty accumulator.
func New() *Accumulator {
	return &Accumulator{}
}

// Apply folds one batch. Each final result at or after StartIndex is appended
// to the finalized text followed by a single space. Non-final results are
// concatenated into the new interim, which replaces the previous one even when
// empty. Re-applying a batch appends its finals again.
func (a *Accumulator) Apply(batch recognition.Batch) Fold {
	var (
		fold    Fold
		interim strings.Builder
	)

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, r := range batch.Pending() {
		if r.IsFinal {
			a.finalized.WriteString(r.Text)
			a.finalized.WriteByte(' ')
			fold.Finals = append(fold.Finals, r)
			continue
		}
		interim.WriteString(r.Text)
	}

	a.interim = interim.String()
	fold.Interim = a.interim
	return fold
}

// State returns the current transcript.
func (a *Accumulator) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return State{Finalized: a.finalized.String(), Interim: a.interim}
}

// Clear empties both finalized and interim text.
func (a *Accumulator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalized.Reset()
	a.interim = ""
}

// Copy writes the trimmed finalized text to w. It reports false and skips the
// write when there is nothing to copy.
func (a *Accumulator) Copy(w ClipboardWriter) (bool, error) {
	text := strings.TrimSpace(a.State().Finalized)
	if text == "" {
		return false, nil
	}
	if err := w.WriteText(text); err != nil {
		return false, err
	}
	return true, nil
}

// Send hands the finalized text, untrimmed, to s. The lock is not held while
// s runs.
func (a *Accumulator) Send(ctx context.Context, s Sender) (string, error) {
	text := a.State().Finalized
	if text == "" {
		return "", ErrNothingToSend
	}
	return s.Send(ctx, text), nil
}
