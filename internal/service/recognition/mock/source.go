// Package mock provides a scripted recognition source for running the service
// without cloud credentials. It replays batches the way a continuous browser
// recognizer emits them: the result list grows, interim results are revised
// in place and then finalized, and StartIndex points at the first changed
// entry.
package mock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"speech-relay-service/internal/service/recognition"
)

// ErrAlreadyStarted is returned when Start is called twice on one source.
var ErrAlreadyStarted = errors.New("mock source already started")

const defaultInterval = 400 * time.Millisecond

// ScriptResult is one result entry in a scripted batch.
type ScriptResult struct {
	Text       string  `yaml:"text"`
	Final      bool    `yaml:"final"`
	Confidence float64 `yaml:"confidence"`
}

// Step is one scripted emission. A non-empty Error ends the script with a
// runtime error event.
type Step struct {
	StartIndex int            `yaml:"start_index"`
	Results    []ScriptResult `yaml:"results"`
	Error      string         `yaml:"error"`
}

// Script drives a Source.
type Script struct {
	IntervalMS int    `yaml:"interval_ms"`
	HoldOpen   bool   `yaml:"hold_open"` // keep listening after the last step until Stop
	Steps      []Step `yaml:"batches"`
}

// Interval returns the delay between steps.
func (s Script) Interval() time.Duration {
	if s.IntervalMS <= 0 {
		return defaultInterval
	}
	return time.Duration(s.IntervalMS) * time.Millisecond
}

// SimulatedUtterance is a phrase revealed through progressive interim text.
type SimulatedUtterance struct {
	Partials   []string
	Final      string
	Confidence float64
}

// DefaultUtterances is the phrase set used by DefaultScript.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"I want", "I want to", "I want to cancel"},
		Final:      "I want to cancel my subscription",
		Confidence: 0.94,
	},
	{
		Partials:   []string{"Yes", "Yes please"},
		Final:      "Yes please go ahead",
		Confidence: 0.97,
	},
	{
		Partials:   []string{"Can you", "Can you help", "Can you help me with"},
		Final:      "Can you help me with my account",
		Confidence: 0.91,
	},
	{
		Partials:   []string{"Thank you"},
		Final:      "Thank you very much",
		Confidence: 0.98,
	},
}

// ScriptFromUtterances builds a script whose result list grows by one entry
// per utterance. Each partial revises the tail entry and the final replaces it.
func ScriptFromUtterances(utts []SimulatedUtterance) Script {
	var (
		steps  []Step
		closed []ScriptResult
	)
	for _, u := range utts {
		idx := len(closed)
		for _, p := range u.Partials {
			results := append(append([]ScriptResult{}, closed...), ScriptResult{Text: p})
			steps = append(steps, Step{StartIndex: idx, Results: results})
		}
		closed = append(closed, ScriptResult{Text: u.Final, Final: true, Confidence: u.Confidence})
		steps = append(steps, Step{StartIndex: idx, Results: append([]ScriptResult{}, closed...)})
	}
	return Script{Steps: steps}
}

// DefaultScript replays DefaultUtterances and then stays open until stopped.
func DefaultScript() Script {
	s := ScriptFromUtterances(DefaultUtterances)
	s.HoldOpen = true
	return s
}

// ParseScript decodes a YAML script.
func ParseScript(data []byte) (Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Script{}, fmt.Errorf("parse script: %w", err)
	}
	for i, step := range s.Steps {
		if step.Error == "" && len(step.Results) == 0 {
			return Script{}, fmt.Errorf("parse script: batch %d has no results", i)
		}
	}
	return s, nil
}

// LoadScript reads a YAML script from path.
func LoadScript(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("read script: %w", err)
	}
	return ParseScript(data)
}

// Source implements recognition.Source by replaying a Script.
type Source struct {
	script Script

	mu          sync.Mutex
	cancel      context.CancelFunc
	started     bool
	language    string
	audioFrames int
}

// New creates a source for one session.
func New(script Script) *Source {
	return &Source{script: script}
}

// Factory returns a recognition.Factory producing a fresh Source per start.
func Factory(script Script) recognition.Factory {
	return func(context.Context) (recognition.Source, error) {
		return New(script), nil
	}
}

// Start begins replaying the script.
func (s *Source) Start(ctx context.Context, language string) (<-chan recognition.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil, ErrAlreadyStarted
	}
	s.started = true
	s.language = language

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	events := make(chan recognition.Event)
	go s.run(runCtx, events)
	return events, nil
}

func (s *Source) run(ctx context.Context, events chan<- recognition.Event) {
	defer close(events)

	ticker := time.NewTicker(s.script.Interval())
	defer ticker.Stop()

	for _, step := range s.script.Steps {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ev := recognition.Event{Batch: toBatch(step)}
		if step.Error != "" {
			ev = recognition.Event{Err: errors.New(step.Error)}
		}

		select {
		case <-ctx.Done():
			return
		case events <- ev:
		}

		if ev.Err != nil {
			return
		}
	}

	if s.script.HoldOpen {
		<-ctx.Done()
	}
}

func toBatch(step Step) recognition.Batch {
	results := make([]recognition.Result, len(step.Results))
	for i, r := range step.Results {
		results[i] = recognition.Result{Text: r.Text, IsFinal: r.Final, Confidence: r.Confidence}
	}
	return recognition.Batch{StartIndex: step.StartIndex, Results: results}
}

// SendAudio accepts and counts audio frames. The script does not depend on them.
func (s *Source) SendAudio(ctx context.Context, audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioFrames++
	return nil
}

// AudioFrames returns how many frames SendAudio received.
func (s *Source) AudioFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioFrames
}

// Language returns the language passed to Start.
func (s *Source) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// Stop ends the replay. The event channel closes shortly after.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}
