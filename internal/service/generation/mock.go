package generation

import (
	"context"
	"fmt"
	"time"
)

type mockGenerator struct {
	delay time.Duration
}

// NewMock returns a generator that echoes the prompt after delay.
func NewMock(delay time.Duration) Generator { return &mockGenerator{delay: delay} }

func (m *mockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return fmt.Sprintf("[mock completion for %q]", prompt), nil
}
