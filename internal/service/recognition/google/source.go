// Package google provides a recognition source backed by Google Cloud
// Speech-to-Text streaming recognition.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"speech-relay-service/internal/observability/logging"
	"speech-relay-service/internal/service/recognition"
)

// ErrStreamClosed is returned by SendAudio before Start or after Stop.
var ErrStreamClosed = errors.New("recognition stream is closed")

// Config holds Google STT streaming settings.
type Config struct {
	SampleRateHz    int32
	InterimResults  bool
	AudioEncoding   string
	CredentialsFile string
	// DrainTimeout bounds how long Stop waits for the final responses after
	// half-closing the stream.
	DrainTimeout time.Duration
}

// DefaultConfig returns settings matching a telephony-grade LINEAR16 stream.
func DefaultConfig() Config {
	return Config{
		SampleRateHz:   16000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
		DrainTimeout:   3 * time.Second,
	}
}

func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}

// Factory returns a recognition.Factory that opens a new Speech client for
// every session. Client construction failures are reported as
// recognition.ErrCapabilityUnavailable.
func Factory(cfg Config) recognition.Factory {
	return func(ctx context.Context) (recognition.Source, error) {
		var opts []option.ClientOption
		if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
		c, err := speech.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", recognition.ErrCapabilityUnavailable, err)
		}
		return &Source{cfg: cfg, client: c, log: logging.WithComponent("google-stt")}, nil
	}
}

type streamReceiver interface {
	Recv() (*speechpb.StreamingRecognizeResponse, error)
}

// Source implements recognition.Source and recognition.AudioSink.
type Source struct {
	cfg    Config
	client *speech.Client
	log    zerolog.Logger

	mu     sync.Mutex
	stream speechpb.Speech_StreamingRecognizeClient
	cancel context.CancelFunc
	closed bool
}

// Start opens the stream and sends the recognition config as the first message.
func (s *Source) Start(ctx context.Context, language string) (<-chan recognition.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	stream, err := s.client.StreamingRecognize(runCtx)
	if err != nil {
		cancel()
		_ = s.client.Close()
		return nil, fmt.Errorf("open stream: %w", err)
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        parseAudioEncoding(s.cfg.AudioEncoding),
					SampleRateHertz: s.cfg.SampleRateHz,
					LanguageCode:    language,
				},
				InterimResults: s.cfg.InterimResults,
			},
		},
	})
	if err != nil {
		cancel()
		_ = s.client.Close()
		return nil, fmt.Errorf("send streaming config: %w", err)
	}

	s.stream = stream
	s.cancel = cancel

	events := make(chan recognition.Event)
	go func() {
		listen(runCtx, stream, events)
		cancel()
		if err := s.client.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to close speech client")
		}
	}()

	s.log.Info().Str("language", language).Msg("Streaming recognition started")
	return events, nil
}

// listen forwards responses until the stream ends, then closes events.
func listen(ctx context.Context, r streamReceiver, events chan<- recognition.Event) {
	defer close(events)
	for {
		resp, err := r.Recv()
		if err != nil {
			if isNormalEnd(err) {
				return
			}
			select {
			case events <- recognition.Event{Err: err}:
			case <-ctx.Done():
			}
			return
		}

		if resp.Error != nil && resp.Error.Code != int32(codes.OK) {
			select {
			case events <- recognition.Event{Err: fmt.Errorf("recognition error: %s", resp.Error.Message)}:
			case <-ctx.Done():
			}
			return
		}

		batch, ok := toBatch(resp)
		if !ok {
			continue
		}
		select {
		case events <- recognition.Event{Batch: batch}:
		case <-ctx.Done():
			return
		}
	}
}

// toBatch maps a streaming response to a batch. Google reports only the
// results that changed, so every response is folded from index zero.
func toBatch(resp *speechpb.StreamingRecognizeResponse) (recognition.Batch, bool) {
	var results []recognition.Result
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		results = append(results, recognition.Result{
			Text:       alt.Transcript,
			IsFinal:    r.IsFinal,
			Confidence: float64(alt.Confidence),
		})
	}
	if len(results) == 0 {
		return recognition.Batch{}, false
	}
	return recognition.Batch{Results: results}, true
}

func isNormalEnd(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return true
	}
	switch status.Code(err) {
	case codes.Canceled, codes.OutOfRange:
		return true
	}
	return false
}

// SendAudio streams one audio chunk.
func (s *Source) SendAudio(ctx context.Context, audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil || s.closed {
		return ErrStreamClosed
	}
	return s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Stop half-closes the stream so pending finals are still delivered, and
// cancels it if the server has not finished within DrainTimeout.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.stream == nil {
		return s.client.Close()
	}

	err := s.stream.CloseSend()
	drain := s.cfg.DrainTimeout
	if drain <= 0 {
		drain = DefaultConfig().DrainTimeout
	}
	time.AfterFunc(drain, s.cancel)
	return err
}
