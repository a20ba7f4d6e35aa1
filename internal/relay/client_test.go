package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func serve(status int, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestClient_Send(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected string
	}{
		{"success", http.StatusOK, `{"answer":"Hi there"}`, "Hi there"},
		{"empty answer", http.StatusOK, `{"answer":""}`, ""},
		{"error with message", http.StatusInternalServerError, `{"error":"quota exceeded"}`, "Error fetching response from AI: quota exceeded"},
		{"bad request", http.StatusBadRequest, `{"error":"Please provide a prompt."}`, "Error fetching response from AI: Please provide a prompt."},
		{"error without message", http.StatusBadGateway, `{}`, "Error fetching response from AI."},
		{"error with non-json body", http.StatusBadGateway, `<html>bad gateway</html>`, "Error fetching response from AI."},
		{"success without answer", http.StatusOK, `{}`, "Error fetching response from AI."},
		{"success with malformed body", http.StatusOK, `not json`, "Error fetching response from AI."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(tt.status, tt.body)
			defer srv.Close()

			got := NewClient(srv.URL, time.Second).Send(context.Background(), "Hello")
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestClient_SendNetworkError(t *testing.T) {
	srv := serve(http.StatusOK, `{"answer":"x"}`)
	url := srv.URL
	srv.Close()

	got := NewClient(url, time.Second).Send(context.Background(), "Hello")
	if got != FallbackNetwork {
		t.Errorf("expected %q, got %q", FallbackNetwork, got)
	}
}

func TestClient_SendTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	// Close waits for active handlers, so release them first.
	defer close(release)

	got := NewClient(srv.URL, 20*time.Millisecond).Send(context.Background(), "Hello")
	if got != FallbackNetwork {
		t.Errorf("expected %q, got %q", FallbackNetwork, got)
	}
}

func TestClient_DoTypedErrors(t *testing.T) {
	srv := serve(http.StatusInternalServerError, `{"error":"boom"}`)
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Do(context.Background(), "Hello")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusInternalServerError || se.Message != "boom" {
		t.Errorf("unexpected status error %+v", se)
	}

	ok := serve(http.StatusOK, `{}`)
	defer ok.Close()
	_, err = NewClient(ok.URL, time.Second).Do(context.Background(), "Hello")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestClient_SinglePostWithPrompt(t *testing.T) {
	var (
		calls  int
		method string
		ct     string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		method = r.Method
		ct = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	NewClient(srv.URL, time.Second).Send(context.Background(), "Hello")

	if calls != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", calls)
	}
	if method != http.MethodPost {
		t.Errorf("expected POST, got %s", method)
	}
	if ct != "application/json" {
		t.Errorf("expected application/json, got %s", ct)
	}
}

func TestClient_AgainstHandler(t *testing.T) {
	h := NewHandler(Config{APIKey: "key"}, &testGenerator{answer: "relayed"}, testMetrics)
	srv := httptest.NewServer(h)
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if got := c.Send(context.Background(), "Hello"); got != "relayed" {
		t.Errorf("expected 'relayed', got %q", got)
	}
	if got := c.Send(context.Background(), ""); got != "Error fetching response from AI: Please provide a prompt." {
		t.Errorf("unexpected empty-prompt display %q", got)
	}

	noKey := httptest.NewServer(NewHandler(Config{}, nil, testMetrics))
	defer noKey.Close()
	if got := NewClient(noKey.URL, time.Second).Send(context.Background(), "Hello"); got != "Error fetching response from AI: API Key is missing on the server." {
		t.Errorf("unexpected missing-key display %q", got)
	}
}
