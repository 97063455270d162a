// Package clipboard reads the system clipboard for ${clipboard} placeholders.
package clipboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
)

var (
	// ErrEmpty is returned when the clipboard holds no text.
	ErrEmpty = errors.New("clipboard is empty")

	// ErrUnavailable is returned when no clipboard backend can be used,
	// e.g. no xclip/xsel/wl-paste on linux.
	ErrUnavailable = errors.New("clipboard unavailable")
)

// System reads text from the OS clipboard.
type System struct {
	// readAll and available are swapped in tests.
	readAll   func() (string, error)
	available func() bool
}

// NewSystem returns a reader for the OS clipboard.
func NewSystem() *System {
	return &System{readAll: clipboard.ReadAll, available: Available}
}

// Available reports whether a clipboard backend was found.
func Available() bool {
	return !clipboard.Unsupported
}

type result struct {
	text string
	err  error
}

// ReadText returns the clipboard text. The read runs on its own goroutine so
// a hung helper process cannot hold the caller past ctx; on cancellation
// ReadText returns ctx.Err() and the late result is discarded.
func (s *System) ReadText(ctx context.Context) (string, error) {
	if s.readAll == nil || (s.available != nil && !s.available()) {
		return "", ErrUnavailable
	}

	done := make(chan result, 1)
	go func() {
		text, err := s.readAll()
		done <- result{text, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, r.err)
		}
		if r.text == "" {
			return "", ErrEmpty
		}
		return r.text, nil
	}
}

// Static is a fixed clipboard for tests.
type Static struct {
	Text string
	Err  error
}

// ReadText returns Text, or Err when set. An empty Text is ErrEmpty.
func (s Static) ReadText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Err != nil {
		return "", s.Err
	}
	if s.Text == "" {
		return "", ErrEmpty
	}
	return s.Text, nil
}
