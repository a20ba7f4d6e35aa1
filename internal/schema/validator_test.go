package schema

import (
	"errors"
	"testing"
	"time"

	"speech-relay-service/internal/models"
)

func validFinal() models.TranscriptFinal {
	return models.TranscriptFinal{
		EventType:  models.EventTypeFinal,
		SessionID:  "c1-ses-1",
		Language:   "en-US",
		Timestamp:  time.Now().UnixMilli(),
		Text:       "hello",
		Confidence: 0.9,
	}
}

func TestValidate_Valid(t *testing.T) {
	v := New()

	if err := v.Validate(validFinal()); err != nil {
		t.Errorf("expected valid final, got %v", err)
	}

	f := validFinal()
	if err := v.Validate(&f); err != nil {
		t.Errorf("expected valid final pointer, got %v", err)
	}

	interim := models.TranscriptInterim{
		EventType: models.EventTypeInterim,
		SessionID: "c1-ses-1",
		Language:  "en-US",
		Timestamp: 1,
		Text:      "",
	}
	if err := v.Validate(interim); err != nil {
		t.Errorf("expected empty interim text to be valid, got %v", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.TranscriptFinal)
	}{
		{"wrong type", func(f *models.TranscriptFinal) { f.EventType = models.EventTypeInterim }},
		{"no session", func(f *models.TranscriptFinal) { f.SessionID = "" }},
		{"no language", func(f *models.TranscriptFinal) { f.Language = "" }},
		{"no timestamp", func(f *models.TranscriptFinal) { f.Timestamp = 0 }},
		{"no text", func(f *models.TranscriptFinal) { f.Text = "" }},
		{"confidence high", func(f *models.TranscriptFinal) { f.Confidence = 1.5 }},
		{"confidence negative", func(f *models.TranscriptFinal) { f.Confidence = -0.1 }},
		{"negative sequence", func(f *models.TranscriptFinal) { f.Sequence = -1 }},
	}

	v := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validFinal()
			tt.mutate(&f)
			err := v.Validate(f)
			if !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("expected ErrInvalidEvent, got %v", err)
			}
		})
	}
}

func TestValidate_UnsupportedType(t *testing.T) {
	err := New().Validate(map[string]string{"text": "x"})
	if !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("expected ErrInvalidEvent, got %v", err)
	}
}
