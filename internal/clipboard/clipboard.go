// Package clipboard provides the writers used by the copy action.
package clipboard

import (
	"errors"
	"sync"

	cb "github.com/atotto/clipboard"
)

// ErrUnsupported is returned when the host has no clipboard utility.
var ErrUnsupported = errors.New("clipboard not supported on this host")

// System writes to the host clipboard.
type System struct{}

func (System) WriteText(text string) error {
	if cb.Unsupported {
		return ErrUnsupported
	}
	return cb.WriteAll(text)
}

// Capture keeps the last written text in memory. Remote clients use it to
// receive the copied text instead of the server's clipboard.
type Capture struct {
	mu   sync.Mutex
	text string
}

func (c *Capture) WriteText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
	return nil
}

// Text returns the last written text.
func (c *Capture) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}
