package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"speech-relay-service/internal/observability/logging"
	"speech-relay-service/internal/observability/metrics"
)

// Display strings returned by Client.Send.
const (
	FallbackError   = "Error fetching response from AI."
	FallbackPrefix  = "Error fetching response from AI: "
	FallbackNetwork = "Network error while fetching response from AI."
)

var (
	// ErrNetwork wraps failures where no response was received.
	ErrNetwork = errors.New("relay unreachable")
	// ErrMalformedResponse is returned for a 2xx body without an answer.
	ErrMalformedResponse = errors.New("malformed relay response")
)

// StatusError is a non-2xx relay response.
type StatusError struct {
	Code    int
	Message string // the body's error field, possibly empty
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("relay returned %d", e.Code)
	}
	return fmt.Sprintf("relay returned %d: %s", e.Code, e.Message)
}

// Client posts prompts to a relay endpoint. It makes exactly one attempt per
// call.
type Client struct {
	endpoint string
	http     *http.Client
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// NewClient returns a client for endpoint, e.g. http://localhost:8080/api/function.
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		metrics:  metrics.DefaultMetrics,
		log:      logging.WithComponent("relay-client"),
	}
}

// Do sends prompt and returns the answer or a typed error.
func (c *Client) Do(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(Request{Prompt: prompt})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}

	var body struct {
		Answer *string `json:"answer"`
		Error  string  `json:"error"`
	}
	decodeErr := json.Unmarshal(data, &body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Code: resp.StatusCode, Message: body.Error}
	}
	if decodeErr != nil || body.Answer == nil {
		return "", ErrMalformedResponse
	}
	return *body.Answer, nil
}

// Send is Do with every failure mapped to a display string.
func (c *Client) Send(ctx context.Context, prompt string) string {
	answer, err := c.Do(ctx, prompt)
	if err == nil {
		c.metrics.RecordClientCall("ok")
		return answer
	}

	c.log.Warn().Err(err).Str("endpoint", c.endpoint).Msg("Relay call failed")

	var se *StatusError
	switch {
	case errors.As(err, &se):
		c.metrics.RecordClientCall("status")
		if se.Message != "" {
			return FallbackPrefix + se.Message
		}
		return FallbackError
	case errors.Is(err, ErrNetwork):
		c.metrics.RecordClientCall("network")
		return FallbackNetwork
	default:
		c.metrics.RecordClientCall("malformed")
		return FallbackError
	}
}
