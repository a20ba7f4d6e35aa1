// Package schema checks transcript events before they leave the process.
package schema

import (
	"errors"
	"fmt"

	"speech-relay-service/internal/models"
)

// ErrInvalidEvent wraps every validation failure.
var ErrInvalidEvent = errors.New("invalid event")

// Validator checks required fields and ranges on transcript events.
type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate returns nil for a well-formed event. Unknown event types are
// rejected.
func (v *Validator) Validate(event any) error {
	var errs []error

	switch ev := event.(type) {
	case models.TranscriptInterim:
		errs = checkCommon(ev.EventType, models.EventTypeInterim, ev.SessionID, ev.Language, ev.Timestamp)
	case *models.TranscriptInterim:
		return v.Validate(*ev)
	case models.TranscriptFinal:
		errs = checkCommon(ev.EventType, models.EventTypeFinal, ev.SessionID, ev.Language, ev.Timestamp)
		if ev.Text == "" {
			errs = append(errs, errors.New("text is required"))
		}
		if ev.Confidence < 0 || ev.Confidence > 1 {
			errs = append(errs, fmt.Errorf("confidence %v out of range [0,1]", ev.Confidence))
		}
		if ev.Sequence < 0 {
			errs = append(errs, fmt.Errorf("sequence %d is negative", ev.Sequence))
		}
	case *models.TranscriptFinal:
		return v.Validate(*ev)
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalidEvent, event)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, errors.Join(errs...))
	}
	return nil
}

func checkCommon(eventType, wantType, sessionID, language string, ts int64) []error {
	var errs []error
	if eventType != wantType {
		errs = append(errs, fmt.Errorf("eventType %q, want %q", eventType, wantType))
	}
	if sessionID == "" {
		errs = append(errs, errors.New("sessionId is required"))
	}
	if language == "" {
		errs = append(errs, errors.New("language is required"))
	}
	if ts <= 0 {
		errs = append(errs, errors.New("timestamp must be positive"))
	}
	return errs
}
