// Package models defines the data structures for transcript events.
package models

// Event types carried in the eventType field and in message headers.
const (
	EventTypeInterim = "session.transcript.interim"
	EventTypeFinal   = "session.transcript.final"
)

// TranscriptInterim is the latest interim fragment of a listening session.
// It is superseded by the next interim or final event for the same session.
type TranscriptInterim struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Language  string `json:"language"`
	Timestamp int64  `json:"timestamp"`
	Text      string `json:"text"`
}

// TranscriptFinal is one finalized result appended to a session transcript.
type TranscriptFinal struct {
	EventType  string  `json:"eventType"`
	SessionID  string  `json:"sessionId"`
	Language   string  `json:"language"`
	Timestamp  int64   `json:"timestamp"`
	Sequence   int     `json:"sequence"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}
