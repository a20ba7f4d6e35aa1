package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"speech-relay-service/internal/models"
	"speech-relay-service/internal/observability/metrics"
	"speech-relay-service/internal/service/recognition"
)

var testMetrics = metrics.NewWithRegistry(prometheus.NewRegistry())

// testSource is a recognition.Source driven by the test through events.
type testSource struct {
	mu        sync.Mutex
	events    chan recognition.Event
	language  string
	starts    int
	stops     int
	audio     [][]byte
	startErr  error
	closeOnce sync.Once
	// pending is delivered during Stop before the channel closes.
	pending []recognition.Event
}

func newTestSource() *testSource {
	return &testSource{events: make(chan recognition.Event, 16)}
}

func (s *testSource) Start(_ context.Context, language string) (<-chan recognition.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.starts++
	s.language = language
	return s.events, nil
}

func (s *testSource) Stop() error {
	s.mu.Lock()
	s.stops++
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	s.closeOnce.Do(func() {
		for _, ev := range pending {
			s.events <- ev
		}
		close(s.events)
	})
	return nil
}

// end closes the channel as if the recognizer ended on its own.
func (s *testSource) end() {
	s.closeOnce.Do(func() { close(s.events) })
}

func (s *testSource) SendAudio(_ context.Context, audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, audio)
	return nil
}

func (s *testSource) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// sourceQueue hands out prepared sources, one per Start.
type sourceQueue struct {
	mu      sync.Mutex
	sources []*testSource
	calls   int
}

func (q *sourceQueue) factory(context.Context) (recognition.Source, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if len(q.sources) == 0 {
		return newTestSource(), nil
	}
	s := q.sources[0]
	q.sources = q.sources[1:]
	return s, nil
}

func newController(t *testing.T, sources ...*testSource) (*Controller, *sourceQueue) {
	t.Helper()
	q := &sourceQueue{sources: sources}
	c := NewController(Options{
		Factory:  q.factory,
		Provider: "test",
		OwnerID:  "owner",
		Metrics:  testMetrics,
	})
	return c, q
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func finalBatch(start int, texts ...string) recognition.Batch {
	b := recognition.Batch{StartIndex: start}
	for _, text := range texts {
		b.Results = append(b.Results, recognition.Result{Text: text, IsFinal: true, Confidence: 0.9})
	}
	return b
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateIdle, "IDLE"},
		{StateListening, "LISTENING"},
		{State(99), "UNKNOWN(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestIDGenerator(t *testing.T) {
	g := NewIDGenerator()
	if got := g.Next("abc"); got != "abc-ses-1" {
		t.Errorf("expected abc-ses-1, got %s", got)
	}
	if got := g.Next("abc"); got != "abc-ses-2" {
		t.Errorf("expected abc-ses-2, got %s", got)
	}
}

func TestNewController_Defaults(t *testing.T) {
	c := NewController(Options{Metrics: testMetrics})
	snap := c.Snapshot()

	if snap.State != StateIdle {
		t.Errorf("expected IDLE, got %s", snap.State)
	}
	if snap.Language != recognition.DefaultLanguage {
		t.Errorf("expected default language, got %s", snap.Language)
	}
	if snap.Transcript.Finalized != "" || snap.Transcript.Interim != "" {
		t.Errorf("expected empty transcript, got %+v", snap.Transcript)
	}
	if c.Available() {
		t.Error("expected no capability without a factory")
	}
}

func TestStart_NoCapability(t *testing.T) {
	c := NewController(Options{Metrics: testMetrics})

	err := c.Start(context.Background(), "en-US")
	if !errors.Is(err, recognition.ErrCapabilityUnavailable) {
		t.Errorf("expected ErrCapabilityUnavailable, got %v", err)
	}
	if c.Snapshot().State != StateIdle {
		t.Error("expected to remain IDLE")
	}
}

func TestStart_FactoryReportsNoCapability(t *testing.T) {
	c := NewController(Options{
		Factory: func(context.Context) (recognition.Source, error) {
			return nil, recognition.ErrCapabilityUnavailable
		},
		Metrics: testMetrics,
	})

	err := c.Start(context.Background(), "en-US")
	if !errors.Is(err, recognition.ErrCapabilityUnavailable) {
		t.Errorf("expected ErrCapabilityUnavailable, got %v", err)
	}
	if c.Snapshot().State != StateIdle {
		t.Error("expected to remain IDLE")
	}
}

func TestStart_SourceStartError(t *testing.T) {
	src := newTestSource()
	src.startErr = errors.New("mic denied")
	c, _ := newController(t, src)

	if err := c.Start(context.Background(), "en-US"); err == nil {
		t.Fatal("expected error")
	}
	if c.Snapshot().State != StateIdle {
		t.Error("expected to remain IDLE")
	}
}

func TestStart_UnsupportedLanguage(t *testing.T) {
	c, q := newController(t)

	err := c.Start(context.Background(), "xx-XX")
	if !errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("expected ErrUnsupportedLanguage, got %v", err)
	}
	if q.calls != 0 {
		t.Error("expected no source to be created")
	}
}

func TestStartStop(t *testing.T) {
	src := newTestSource()
	c, _ := newController(t, src)

	if err := c.Start(context.Background(), "fr-FR"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := c.Snapshot()
	if snap.State != StateListening {
		t.Fatalf("expected LISTENING, got %s", snap.State)
	}
	if snap.SessionID != "owner-ses-1" {
		t.Errorf("expected session ID owner-ses-1, got %s", snap.SessionID)
	}
	if src.language != "fr-FR" {
		t.Errorf("expected source language fr-FR, got %s", src.language)
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Snapshot().State != StateIdle {
		t.Error("expected IDLE after stop")
	}
	if src.stopCount() != 1 {
		t.Errorf("expected source stopped once, got %d", src.stopCount())
	}
}

func TestStop_FromIdleIsNoOp(t *testing.T) {
	c, _ := newController(t)
	if err := c.Stop(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if c.Snapshot().State != StateIdle {
		t.Error("expected IDLE")
	}
}

func TestStart_WhileListeningIsNoOp(t *testing.T) {
	src := newTestSource()
	c, q := newController(t, src)

	c.Start(context.Background(), "en-US")
	if err := c.Start(context.Background(), "de-DE"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if q.calls != 1 {
		t.Errorf("expected one source, got %d", q.calls)
	}
	if src.starts != 1 {
		t.Errorf("expected live source started once, got %d", src.starts)
	}
	if src.language != "en-US" {
		t.Errorf("expected live source to keep en-US, got %s", src.language)
	}
	if got := c.Snapshot().Language; got != "de-DE" {
		t.Errorf("expected de-DE saved for next start, got %s", got)
	}
	c.Stop()
}

func TestStart_WhileListeningIgnoresUnsupportedLanguage(t *testing.T) {
	c, q := newController(t)

	c.Start(context.Background(), "fr-FR")
	defer c.Stop()

	if err := c.Start(context.Background(), "xx-XX"); err != nil {
		t.Fatalf("expected nil while listening, got %v", err)
	}
	if got := c.Snapshot().Language; got != "fr-FR" {
		t.Errorf("expected language fr-FR, got %s", got)
	}
	if q.calls != 1 {
		t.Errorf("expected one source, got %d", q.calls)
	}
}

// gatedFactory blocks inside the factory until release is closed.
func gatedFactory(src *testSource) (recognition.Factory, chan struct{}, chan struct{}) {
	entered := make(chan struct{})
	release := make(chan struct{})
	return func(context.Context) (recognition.Source, error) {
		close(entered)
		<-release
		return src, nil
	}, entered, release
}

func TestStart_SlowFactoryDoesNotBlockController(t *testing.T) {
	src := newTestSource()
	factory, entered, release := gatedFactory(src)
	c := NewController(Options{Factory: factory, OwnerID: "owner", Metrics: testMetrics})

	started := make(chan error, 1)
	go func() { started <- c.Start(context.Background(), "en-US") }()
	<-entered

	calls := make(chan struct{})
	go func() {
		c.Snapshot()
		c.Clear()
		if err := c.SetLanguage("de-DE"); !errors.Is(err, ErrLanguageLocked) {
			t.Errorf("expected ErrLanguageLocked while starting, got %v", err)
		}
		if err := c.Start(context.Background(), "de-DE"); err != nil {
			t.Errorf("expected nil from Start while starting, got %v", err)
		}
		close(calls)
	}()

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("controller blocked while the factory was running")
	}

	close(release)
	if err := <-started; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := c.Snapshot().State; got != StateListening {
		t.Errorf("expected LISTENING, got %s", got)
	}
	c.Stop()
}

func TestStop_WhileStartingAbandonsSource(t *testing.T) {
	src := newTestSource()
	factory, entered, release := gatedFactory(src)
	c := NewController(Options{Factory: factory, OwnerID: "owner", Metrics: testMetrics})

	started := make(chan error, 1)
	go func() { started <- c.Start(context.Background(), "en-US") }()
	<-entered

	if err := c.Stop(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(release)
	if err := <-started; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := c.Snapshot()
	if snap.State != StateIdle {
		t.Errorf("expected IDLE, got %s", snap.State)
	}
	if snap.SessionID != "" {
		t.Errorf("expected no session, got %s", snap.SessionID)
	}
	if src.stopCount() != 1 {
		t.Errorf("expected abandoned source stopped once, got %d", src.stopCount())
	}
}

func TestStart_FreshSourcePerSession(t *testing.T) {
	first, second := newTestSource(), newTestSource()
	c, q := newController(t, first, second)

	c.Start(context.Background(), "en-US")
	c.Stop()
	c.Start(context.Background(), "en-US")
	defer c.Stop()

	if q.calls != 2 {
		t.Errorf("expected 2 sources, got %d", q.calls)
	}
	if second.starts != 1 {
		t.Error("expected second source to be started")
	}
	if got := c.Snapshot().SessionID; got != "owner-ses-2" {
		t.Errorf("expected owner-ses-2, got %s", got)
	}
}

func TestConsumer_FoldsInOrder(t *testing.T) {
	src := newTestSource()
	c, _ := newController(t, src)
	c.Start(context.Background(), "en-US")

	src.events <- recognition.Event{Batch: recognition.Batch{Results: []recognition.Result{{Text: "hel"}}}}
	src.events <- recognition.Event{Batch: finalBatch(0, "hello")}
	src.events <- recognition.Event{Batch: recognition.Batch{StartIndex: 1, Results: []recognition.Result{
		{Text: "hello", IsFinal: true}, {Text: "wor"},
	}}}

	waitFor(t, func() bool { return c.Snapshot().Transcript.Interim == "wor" }, "interim 'wor'")
	if got := c.Snapshot().Transcript.Finalized; got != "hello " {
		t.Errorf("expected 'hello ', got %q", got)
	}
	c.Stop()
}

func TestStop_FoldsPendingResults(t *testing.T) {
	src := newTestSource()
	src.pending = []recognition.Event{{Batch: finalBatch(0, "last words")}}
	c, _ := newController(t, src)
	c.Start(context.Background(), "en-US")

	if err := c.Stop(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Stop waits for the consumer, so the final is already folded.
	if got := c.Snapshot().Transcript.Finalized; got != "last words " {
		t.Errorf("expected pending final folded, got %q", got)
	}
}

func TestSourceError_GoesIdleAndKeepsTranscript(t *testing.T) {
	src := newTestSource()
	c, _ := newController(t, src)
	c.Start(context.Background(), "en-US")

	src.events <- recognition.Event{Batch: finalBatch(0, "kept")}
	src.events <- recognition.Event{Err: errors.New("network")}

	waitFor(t, func() bool { return c.Snapshot().State == StateIdle }, "IDLE after error")
	if got := c.Snapshot().Transcript.Finalized; got != "kept " {
		t.Errorf("expected transcript preserved, got %q", got)
	}
	waitFor(t, func() bool { return src.stopCount() == 1 }, "source stop")

	// Stop after an error-driven transition is a no-op.
	if err := c.Stop(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestSourceError_CallsOnError(t *testing.T) {
	src := newTestSource()
	q := &sourceQueue{sources: []*testSource{src}}

	var (
		mu  sync.Mutex
		got []error
	)
	c := NewController(Options{
		Factory: q.factory,
		Metrics: testMetrics,
		OnError: func(err error) {
			mu.Lock()
			got = append(got, err)
			mu.Unlock()
		},
	})
	c.Start(context.Background(), "en-US")

	boom := errors.New("quota")
	src.events <- recognition.Event{Err: boom}

	waitFor(t, func() bool { return c.Snapshot().State == StateIdle }, "IDLE after error")
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || !errors.Is(got[0], boom) {
		t.Errorf("expected one OnError call with %v, got %v", boom, got)
	}
}

func TestSourceEnd_GoesIdle(t *testing.T) {
	src := newTestSource()
	c, _ := newController(t, src)
	c.Start(context.Background(), "en-US")

	src.events <- recognition.Event{Batch: finalBatch(0, "done")}
	src.end()

	waitFor(t, func() bool { return c.Snapshot().State == StateIdle }, "IDLE after end")
	if got := c.Snapshot().Transcript.Finalized; got != "done " {
		t.Errorf("expected 'done ', got %q", got)
	}
}

func TestSetLanguage(t *testing.T) {
	src := newTestSource()
	c, _ := newController(t, src)

	if err := c.SetLanguage("ja-JP"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := c.Snapshot().Language; got != "ja-JP" {
		t.Errorf("expected ja-JP, got %s", got)
	}

	if err := c.SetLanguage("klingon"); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("expected ErrUnsupportedLanguage, got %v", err)
	}

	c.Start(context.Background(), "ja-JP")
	if err := c.SetLanguage("en-GB"); !errors.Is(err, ErrLanguageLocked) {
		t.Errorf("expected ErrLanguageLocked, got %v", err)
	}
	if got := c.Snapshot().Language; got != "ja-JP" {
		t.Errorf("expected language unchanged while listening, got %s", got)
	}
	c.Stop()

	if err := c.SetLanguage("en-GB"); err != nil {
		t.Errorf("expected language change after stop, got %v", err)
	}
}

func TestClear_AnyState(t *testing.T) {
	src := newTestSource()
	c, _ := newController(t, src)
	c.Start(context.Background(), "en-US")

	src.events <- recognition.Event{Batch: finalBatch(0, "gone")}
	waitFor(t, func() bool { return c.Snapshot().Transcript.Finalized != "" }, "fold")

	c.Clear()
	if got := c.Snapshot().Transcript; got.Finalized != "" || got.Interim != "" {
		t.Errorf("expected empty transcript, got %+v", got)
	}
	if c.Snapshot().State != StateListening {
		t.Error("expected clear to leave state unchanged")
	}
	c.Stop()
}

type testClipboard struct{ text string }

func (c *testClipboard) WriteText(text string) error {
	c.text = text
	return nil
}

func TestCopy(t *testing.T) {
	src := newTestSource()
	c, _ := newController(t, src)
	c.Start(context.Background(), "en-US")
	src.events <- recognition.Event{Batch: finalBatch(0, "copy", "me")}
	c.Stop()

	cb := &testClipboard{}
	ok, err := c.Copy(cb)
	if err != nil || !ok {
		t.Fatalf("expected copy, got ok=%v err=%v", ok, err)
	}
	if cb.text != "copy me" {
		t.Errorf("expected trimmed 'copy me', got %q", cb.text)
	}
}

type testSender struct {
	mu      sync.Mutex
	prompts []string
}

func (s *testSender) Send(_ context.Context, prompt string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	return "answer: " + strings.TrimSpace(prompt)
}

func TestSend(t *testing.T) {
	src := newTestSource()
	sender := &testSender{}
	c := NewController(Options{
		Factory: func(context.Context) (recognition.Source, error) { return src, nil },
		Sender:  sender,
		Metrics: testMetrics,
	})

	if _, err := c.Send(context.Background()); err == nil {
		t.Error("expected error for empty transcript")
	}

	c.Start(context.Background(), "en-US")
	src.events <- recognition.Event{Batch: finalBatch(0, "hello")}
	c.Stop()

	got, err := c.Send(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "answer: hello" {
		t.Errorf("expected 'answer: hello', got %q", got)
	}
	if sender.prompts[0] != "hello " {
		t.Errorf("expected untrimmed prompt 'hello ', got %q", sender.prompts[0])
	}
}

func TestSend_NoSender(t *testing.T) {
	c, _ := newController(t)
	if _, err := c.Send(context.Background()); !errors.Is(err, ErrNoSender) {
		t.Errorf("expected ErrNoSender, got %v", err)
	}
}

func TestSendAudio(t *testing.T) {
	src := newTestSource()
	c, _ := newController(t, src)

	if err := c.SendAudio(context.Background(), []byte("a")); !errors.Is(err, ErrNotListening) {
		t.Errorf("expected ErrNotListening, got %v", err)
	}

	c.Start(context.Background(), "en-US")
	if err := c.SendAudio(context.Background(), []byte("frame")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	c.Stop()

	if len(src.audio) != 1 || string(src.audio[0]) != "frame" {
		t.Errorf("expected frame forwarded, got %v", src.audio)
	}
}

// eventsOnlySource does not implement recognition.AudioSink.
type eventsOnlySource struct{ ch chan recognition.Event }

func (s *eventsOnlySource) Start(context.Context, string) (<-chan recognition.Event, error) {
	return s.ch, nil
}

func (s *eventsOnlySource) Stop() error {
	close(s.ch)
	return nil
}

func TestSendAudio_Unsupported(t *testing.T) {
	src := &eventsOnlySource{ch: make(chan recognition.Event)}
	c := NewController(Options{
		Factory: func(context.Context) (recognition.Source, error) { return src, nil },
		Metrics: testMetrics,
	})
	c.Start(context.Background(), "en-US")
	defer c.Stop()

	if err := c.SendAudio(context.Background(), []byte("a")); !errors.Is(err, ErrAudioUnsupported) {
		t.Errorf("expected ErrAudioUnsupported, got %v", err)
	}
}

func TestSubscribe(t *testing.T) {
	src := newTestSource()
	c, _ := newController(t, src)

	var (
		mu    sync.Mutex
		snaps []Snapshot
	)
	c.Subscribe(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		snaps = append(snaps, s)
	})

	c.Start(context.Background(), "en-US")
	src.events <- recognition.Event{Batch: finalBatch(0, "hi")}
	c.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(snaps) < 3 {
		t.Fatalf("expected at least 3 notifications, got %d", len(snaps))
	}
	if snaps[0].State != StateListening {
		t.Errorf("expected first notification LISTENING, got %s", snaps[0].State)
	}
	last := snaps[len(snaps)-1]
	if last.State != StateIdle || last.Transcript.Finalized != "hi " {
		t.Errorf("expected final IDLE snapshot with transcript, got %+v", last)
	}
}

func TestSubscribe_SnapshotsArriveInOrder(t *testing.T) {
	src := newTestSource()
	c, _ := newController(t, src)

	var (
		mu    sync.Mutex
		snaps []Snapshot
		once  sync.Once
	)
	entered := make(chan struct{})
	c.Subscribe(func(s Snapshot) {
		if s.Transcript.Finalized == "hello " {
			once.Do(func() {
				close(entered)
				// Hold the delivery so a concurrent Clear races it.
				time.Sleep(100 * time.Millisecond)
			})
		}
		mu.Lock()
		defer mu.Unlock()
		snaps = append(snaps, s)
	})

	c.Start(context.Background(), "en-US")
	defer c.Stop()
	src.events <- recognition.Event{Batch: finalBatch(0, "hello")}
	<-entered
	c.Clear()

	mu.Lock()
	defer mu.Unlock()
	last := snaps[len(snaps)-1]
	if last.Transcript.Finalized != "" {
		t.Errorf("expected last snapshot after Clear to be empty, got %q", last.Transcript.Finalized)
	}
}

type testPublisher struct {
	mu       sync.Mutex
	interims []models.TranscriptInterim
	finals   []models.TranscriptFinal
}

func (p *testPublisher) PublishInterim(_ context.Context, ev models.TranscriptInterim) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interims = append(p.interims, ev)
	return nil
}

func (p *testPublisher) PublishFinal(_ context.Context, ev models.TranscriptFinal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finals = append(p.finals, ev)
	return nil
}

func TestPublishesEvents(t *testing.T) {
	src := newTestSource()
	pub := &testPublisher{}
	c := NewController(Options{
		Factory:   func(context.Context) (recognition.Source, error) { return src, nil },
		Publisher: pub,
		OwnerID:   "p",
		Metrics:   testMetrics,
	})

	c.Start(context.Background(), "es-ES")
	src.events <- recognition.Event{Batch: recognition.Batch{Results: []recognition.Result{
		{Text: "hola", IsFinal: true, Confidence: 0.8},
		{Text: "mun"},
	}}}
	src.events <- recognition.Event{Batch: finalBatch(1, "hola", "mundo")}
	c.Stop()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.finals) != 2 {
		t.Fatalf("expected 2 final events, got %d", len(pub.finals))
	}
	if pub.finals[0].Text != "hola" || pub.finals[1].Text != "mundo" {
		t.Errorf("unexpected finals %+v", pub.finals)
	}
	if pub.finals[0].Sequence != 0 || pub.finals[1].Sequence != 1 {
		t.Errorf("expected sequences 0,1 got %d,%d", pub.finals[0].Sequence, pub.finals[1].Sequence)
	}
	if pub.finals[0].SessionID != "p-ses-1" || pub.finals[0].Language != "es-ES" {
		t.Errorf("unexpected session fields %+v", pub.finals[0])
	}
	if pub.finals[0].EventType != models.EventTypeFinal {
		t.Errorf("expected final event type, got %s", pub.finals[0].EventType)
	}
	if len(pub.interims) != 1 || pub.interims[0].Text != "mun" {
		t.Errorf("expected one interim 'mun', got %+v", pub.interims)
	}
}
