// Package ws serves live transcript sessions over WebSocket. Each connection
// owns one session controller.
package ws

import (
	"errors"

	"speech-relay-service/internal/service/recognition"
	"speech-relay-service/internal/service/session"
	"speech-relay-service/internal/service/transcript"
)

// Client command types.
const (
	CmdStart    = "start"
	CmdStop     = "stop"
	CmdClear    = "clear"
	CmdCopy     = "copy"
	CmdSend     = "send"
	CmdLanguage = "language"
)

// Server message types.
const (
	MsgTranscript = "transcript"
	MsgClipboard  = "clipboard"
	MsgAnswer     = "answer"
	MsgError      = "error"
)

// Error codes carried by MsgError.
const (
	CodeCapabilityUnavailable = "capability_unavailable"
	CodeUnsupportedLanguage   = "unsupported_language"
	CodeLanguageLocked        = "language_locked"
	CodeNothingToSend         = "nothing_to_send"
	CodeInvalidCommand        = "invalid_command"
	CodeRecognitionFailed     = "recognition_failed"
)

// Command is a client text frame.
type Command struct {
	Type     string `json:"type"`
	Language string `json:"language,omitempty"`
}

// Message is a server frame. Fields are populated per Type.
type Message struct {
	Type string `json:"type"`

	// transcript
	SessionID  string            `json:"sessionId,omitempty"`
	State      string            `json:"state,omitempty"`
	Language   string            `json:"language,omitempty"`
	Transcript *transcript.State `json:"transcript,omitempty"`

	// clipboard
	Text string `json:"text,omitempty"`

	// answer
	Answer string `json:"answer,omitempty"`

	// error
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

func transcriptMessage(s session.Snapshot) Message {
	ts := s.Transcript
	return Message{
		Type:       MsgTranscript,
		SessionID:  s.SessionID,
		State:      s.State.String(),
		Language:   s.Language,
		Transcript: &ts,
	}
}

func errorMessage(code string, err error) Message {
	return Message{Type: MsgError, Code: code, Error: err.Error()}
}

// errorCode maps controller errors onto protocol codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, recognition.ErrCapabilityUnavailable), errors.Is(err, session.ErrNoSender):
		return CodeCapabilityUnavailable
	case errors.Is(err, session.ErrUnsupportedLanguage):
		return CodeUnsupportedLanguage
	case errors.Is(err, session.ErrLanguageLocked):
		return CodeLanguageLocked
	case errors.Is(err, transcript.ErrNothingToSend):
		return CodeNothingToSend
	default:
		return CodeRecognitionFailed
	}
}
