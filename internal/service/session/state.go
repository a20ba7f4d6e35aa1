// Package session owns the listening state machine and the single consumer
// that folds recognition events into a transcript.
package session

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// State is the listening state of a controller.
type State int

const (
	// StateIdle - no recognizer is running. Initial state.
	StateIdle State = iota
	// StateListening - a recognizer is running and its events are being folded.
	StateListening
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// MarshalText renders the state for JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Errors returned by Controller operations.
var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrLanguageLocked      = errors.New("language can only change while idle")
	ErrNotListening        = errors.New("session is not listening")
	ErrAudioUnsupported    = errors.New("recognition source does not accept audio")
	ErrNoSender            = errors.New("no relay configured")
)

// IDGenerator issues session IDs scoped to an owner, one per listening start.
type IDGenerator struct {
	counter uint64
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

func (g *IDGenerator) Next(owner string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-ses-%d", owner, n)
}
