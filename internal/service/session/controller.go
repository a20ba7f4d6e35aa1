package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"speech-relay-service/internal/models"
	"speech-relay-service/internal/observability/logging"
	"speech-relay-service/internal/observability/metrics"
	"speech-relay-service/internal/service/recognition"
	"speech-relay-service/internal/service/transcript"
)

const (
	defaultStopTimeout    = 5 * time.Second
	defaultPublishTimeout = 5 * time.Second
)

// Publisher receives transcript events produced by folds.
type Publisher interface {
	PublishInterim(ctx context.Context, ev models.TranscriptInterim) error
	PublishFinal(ctx context.Context, ev models.TranscriptFinal) error
}

// Options configures a Controller. A nil Factory means recognition is not
// available in this environment.
type Options struct {
	Factory   recognition.Factory
	Publisher Publisher
	Sender    transcript.Sender
	Provider  string // recognition provider label for logs and metrics
	OwnerID   string // prefix for session IDs; a UUID when empty
	Language  string // initial language; DefaultLanguage when empty
	Metrics   *metrics.Metrics
	IDs       *IDGenerator

	// OnError is called on the consumer goroutine for each recognition
	// runtime error, before the controller returns to Idle.
	OnError func(err error)

	StopTimeout time.Duration
}

// Snapshot is a consistent view of a controller.
type Snapshot struct {
	SessionID  string
	State      State
	Language   string
	Transcript transcript.State
}

// Controller drives one user's live transcript. Start creates a fresh
// recognition source and a single consumer goroutine that folds its events in
// order; Stop tears the source down and waits for the consumer to drain.
//
// State transitions:
//
//	IDLE ──Start──▶ LISTENING ──Stop / source error / source end──▶ IDLE
//
// Subscribers are called one at a time, in the order snapshots are taken.
// They must not call Start, Stop, SetLanguage or Clear.
type Controller struct {
	opts    Options
	acc     *transcript.Accumulator
	ids     *IDGenerator
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu        sync.Mutex
	state     State
	language  string
	sessionID string
	source    recognition.Source
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
	sequence  int
	// starting is set while a source is being built outside mu; aborted
	// records a Stop that arrived in that window.
	starting bool
	aborted  bool

	subsMu   sync.RWMutex
	subs     []func(Snapshot)
	notifyMu sync.Mutex
}

// NewController returns an idle controller with an empty transcript.
func NewController(opts Options) *Controller {
	if opts.OwnerID == "" {
		opts.OwnerID = uuid.NewString()
	}
	if opts.Language == "" {
		opts.Language = recognition.DefaultLanguage
	}
	if opts.Provider == "" {
		opts.Provider = "unknown"
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}

	m := opts.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}
	ids := opts.IDs
	if ids == nil {
		ids = NewIDGenerator()
	}

	return &Controller{
		opts:     opts,
		acc:      transcript.New(),
		ids:      ids,
		metrics:  m,
		log:      logging.WithComponent("session").With().Str("owner", opts.OwnerID).Logger(),
		state:    StateIdle,
		language: opts.Language,
	}
}

// Available reports whether a recognizer can be requested at all.
func (c *Controller) Available() bool {
	return c.opts.Factory != nil
}

// Start begins listening in language. ctx bounds the lifetime of the
// recognizer. Calling Start while listening leaves the live recognizer
// untouched and records a supported language for the next start. The source
// is built without holding the controller lock.
func (c *Controller) Start(ctx context.Context, language string) error {
	c.mu.Lock()

	if c.state == StateListening || c.starting {
		if recognition.IsSupported(language) {
			c.language = language
		}
		c.mu.Unlock()
		c.log.Debug().Str("language", language).Msg("Start ignored while listening")
		return nil
	}

	if !recognition.IsSupported(language) {
		c.mu.Unlock()
		c.metrics.RecordStartFailure("unsupported_language")
		return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
	}

	if c.opts.Factory == nil {
		c.mu.Unlock()
		c.metrics.RecordStartFailure("capability_unavailable")
		return recognition.ErrCapabilityUnavailable
	}

	c.starting = true
	c.aborted = false
	c.mu.Unlock()

	src, events, cancel, err := c.open(ctx, language)

	c.mu.Lock()
	c.starting = false
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if c.aborted {
		c.mu.Unlock()
		cancel()
		if err := src.Stop(); err != nil {
			c.log.Warn().Err(err).Msg("Failed to stop recognition source")
		}
		c.log.Info().Str("language", language).Msg("Start abandoned, stopped while starting")
		return nil
	}

	sessionID := c.ids.Next(c.opts.OwnerID)
	done := make(chan struct{})

	c.state = StateListening
	c.language = language
	c.sessionID = sessionID
	c.source = src
	c.cancel = cancel
	c.done = done
	c.startedAt = time.Now()
	c.mu.Unlock()

	c.metrics.RecordSessionStart()
	sessionLog := logging.WithSession(sessionID, language)
	sessionLog.Info().Str("provider", c.opts.Provider).Msg("Listening started")

	go c.consume(events, src, sessionID, language, done, sessionLog)

	c.notify()
	return nil
}

// open builds and starts a fresh source.
func (c *Controller) open(ctx context.Context, language string) (recognition.Source, <-chan recognition.Event, context.CancelFunc, error) {
	src, err := c.opts.Factory(ctx)
	if err != nil {
		c.metrics.RecordStartFailure("factory")
		return nil, nil, nil, fmt.Errorf("create recognition source: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	events, err := src.Start(runCtx, language)
	if err != nil {
		cancel()
		c.metrics.RecordStartFailure("start")
		return nil, nil, nil, fmt.Errorf("start recognition: %w", err)
	}
	return src, events, cancel, nil
}

// consume folds events in arrival order until the source closes its channel.
func (c *Controller) consume(events <-chan recognition.Event, src recognition.Source, sessionID, language string, done chan struct{}, log zerolog.Logger) {
	defer close(done)

	for ev := range events {
		if ev.Err != nil {
			log.Error().Err(ev.Err).Str("provider", c.opts.Provider).Msg("Recognition error")
			c.metrics.RecordRecognitionError(c.opts.Provider)
			if c.opts.OnError != nil {
				c.opts.OnError(ev.Err)
			}
			c.finish(src, "error")
			continue
		}

		fold := c.acc.Apply(ev.Batch)
		interims := 0
		if fold.Interim != "" {
			interims = 1
		}
		c.metrics.RecordBatch(len(fold.Finals), interims)
		c.publish(sessionID, language, fold, log)
		c.notify()
	}

	c.finish(src, "ended")
	log.Info().Msg("Recognition source closed")
}

// finish moves the controller to Idle if src is still the live source.
func (c *Controller) finish(src recognition.Source, reason string) {
	c.mu.Lock()
	if c.source != src {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	started := c.startedAt
	sessionID := c.sessionID
	c.state = StateIdle
	c.source = nil
	c.cancel = nil
	c.mu.Unlock()

	if err := src.Stop(); err != nil {
		c.log.Warn().Err(err).Str("sessionId", sessionID).Msg("Failed to stop recognition source")
	}
	cancel()

	c.metrics.RecordSessionEnd(time.Since(started).Seconds())
	c.log.Info().Str("sessionId", sessionID).Str("reason", reason).Msg("Listening ended")
	c.notify()
}

// Stop ends listening. Results the source delivers while shutting down are
// still folded. Stop from Idle is a no-op; Stop during Start makes that
// Start tear its new source down.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.starting {
		c.aborted = true
		c.mu.Unlock()
		return nil
	}
	if c.state != StateListening {
		c.mu.Unlock()
		return nil
	}
	src := c.source
	cancel := c.cancel
	done := c.done
	started := c.startedAt
	sessionID := c.sessionID
	c.state = StateIdle
	c.source = nil
	c.cancel = nil
	c.mu.Unlock()

	stopErr := src.Stop()

	select {
	case <-done:
	case <-time.After(c.opts.StopTimeout):
		c.log.Warn().Str("sessionId", sessionID).Msg("Recognition source did not drain, cancelling")
		cancel()
		<-done
	}
	cancel()

	c.metrics.RecordSessionEnd(time.Since(started).Seconds())
	c.log.Info().Str("sessionId", sessionID).Str("reason", "stopped").Msg("Listening ended")
	c.notify()

	if stopErr != nil {
		return fmt.Errorf("stop recognition: %w", stopErr)
	}
	return nil
}

// SetLanguage selects the language for the next start.
func (c *Controller) SetLanguage(language string) error {
	if !recognition.IsSupported(language) {
		return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
	}

	c.mu.Lock()
	if c.state == StateListening || c.starting {
		c.mu.Unlock()
		return ErrLanguageLocked
	}
	c.language = language
	c.mu.Unlock()

	c.notify()
	return nil
}

// SendAudio forwards a raw audio frame to the live source.
func (c *Controller) SendAudio(ctx context.Context, audio []byte) error {
	c.mu.Lock()
	src := c.source
	c.mu.Unlock()

	if src == nil {
		return ErrNotListening
	}
	sink, ok := src.(recognition.AudioSink)
	if !ok {
		return ErrAudioUnsupported
	}
	c.metrics.RecordAudioReceived(len(audio))
	return sink.SendAudio(ctx, audio)
}

// Clear empties the transcript. It is allowed in any state.
func (c *Controller) Clear() {
	c.acc.Clear()
	c.metrics.RecordAction("clear", "ok")
	c.notify()
}

// Copy writes the trimmed transcript to w. It reports false when there was
// nothing to copy.
func (c *Controller) Copy(w transcript.ClipboardWriter) (bool, error) {
	ok, err := c.acc.Copy(w)
	switch {
	case err != nil:
		c.metrics.RecordAction("copy", "error")
	case !ok:
		c.metrics.RecordAction("copy", "empty")
	default:
		c.metrics.RecordAction("copy", "ok")
	}
	return ok, err
}

// Send relays the finalized transcript and returns the display string. Each
// call is independent; concurrent sends are neither queued nor cancelled.
func (c *Controller) Send(ctx context.Context) (string, error) {
	if c.opts.Sender == nil {
		c.metrics.RecordAction("send", "unavailable")
		return "", ErrNoSender
	}
	answer, err := c.acc.Send(ctx, c.opts.Sender)
	if errors.Is(err, transcript.ErrNothingToSend) {
		c.metrics.RecordAction("send", "empty")
		return "", err
	}
	c.metrics.RecordAction("send", "ok")
	return answer, err
}

// Snapshot returns the current state, language and transcript.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		SessionID: c.sessionID,
		State:     c.state,
		Language:  c.language,
	}
	c.mu.Unlock()
	snap.Transcript = c.acc.State()
	return snap
}

// Subscribe registers fn to receive a snapshot after every change.
func (c *Controller) Subscribe(fn func(Snapshot)) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.subs = append(c.subs, fn)
}

func (c *Controller) notify() {
	c.subsMu.RLock()
	subs := append([]func(Snapshot){}, c.subs...)
	c.subsMu.RUnlock()

	if len(subs) == 0 {
		return
	}

	// Taking the snapshot under notifyMu keeps deliveries in state order.
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	snap := c.Snapshot()
	for _, fn := range subs {
		fn(snap)
	}
}

func (c *Controller) publish(sessionID, language string, fold transcript.Fold, log zerolog.Logger) {
	if c.opts.Publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
	defer cancel()

	now := time.Now().UnixMilli()
	for _, r := range fold.Finals {
		c.mu.Lock()
		seq := c.sequence
		c.sequence++
		c.mu.Unlock()

		ev := models.TranscriptFinal{
			EventType:  models.EventTypeFinal,
			SessionID:  sessionID,
			Language:   language,
			Timestamp:  now,
			Sequence:   seq,
			Text:       r.Text,
			Confidence: r.Confidence,
		}
		if err := c.opts.Publisher.PublishFinal(ctx, ev); err != nil {
			log.Warn().Err(err).Msg("Failed to publish final transcript")
		}
	}

	if fold.Interim == "" {
		return
	}
	ev := models.TranscriptInterim{
		EventType: models.EventTypeInterim,
		SessionID: sessionID,
		Language:  language,
		Timestamp: now,
		Text:      fold.Interim,
	}
	if err := c.opts.Publisher.PublishInterim(ctx, ev); err != nil {
		log.Warn().Err(err).Msg("Failed to publish interim transcript")
	}
}
