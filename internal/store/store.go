// Package store persists the snippet collection and announces changes to it.
//
// Three backends share one contract: a JSON file (the default, also the
// import/export format), SQLite, and an in-memory store for tests and
// simulation. Every backend preserves insertion order, which is the order
// the directory uses to break ties between duplicate shortcuts.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"copyx/internal/snippet"
)

var (
	// ErrNotFound is returned when no snippet has the given id or shortcut.
	ErrNotFound = errors.New("snippet not found")

	// ErrDuplicateShortcut is returned when a write would give two snippets
	// the same shortcut.
	ErrDuplicateShortcut = errors.New("shortcut already in use")

	// ErrInvalidSnippet is returned for a snippet that could never be typed.
	ErrInvalidSnippet = errors.New("invalid snippet")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")
)

// Store is a persistent, ordered snippet collection.
type Store interface {
	snippet.Source

	// Put inserts s, or replaces the snippet with the same ID in place.
	// An empty ID is assigned a fresh one. The stored snippet is returned.
	Put(ctx context.Context, s snippet.Snippet) (snippet.Snippet, error)

	// Delete removes the snippet whose ID, or failing that shortcut, equals key.
	Delete(ctx context.Context, key string) (snippet.Snippet, error)

	// ReplaceAll swaps the whole collection for items, in order.
	ReplaceAll(ctx context.Context, items []snippet.Snippet) error

	// Changes delivers a notification after the collection changes. Bursts
	// coalesce into one pending notification.
	Changes() <-chan struct{}

	Close() error
}

// Backend types accepted by Open.
const (
	TypeJSON   = "json"
	TypeSQLite = "sqlite"
)

// Open opens the backend named by kind at path. JSON stores are returned
// without a file watcher; call Watch on the *File to see outside edits.
func Open(kind, path string, opts SQLiteOptions) (Store, error) {
	switch kind {
	case TypeJSON, "":
		f, err := OpenFile(path, opts.Logger)
		if err != nil {
			return nil, err
		}
		return f, nil
	case TypeSQLite:
		db, err := OpenSQLite(path, opts)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	return nil, fmt.Errorf("unknown storage type %q", kind)
}

// Watcher is implemented by stores that need to be told to watch for
// changes made outside the process.
type Watcher interface {
	Watch() error
}

var _ Watcher = (*File)(nil)

// Validate rejects snippets whose shortcut is empty or contains whitespace;
// a separator key would end the shortcut before it could be typed.
func Validate(s snippet.Snippet) error {
	if s.Shortcut == "" {
		return fmt.Errorf("%w: empty shortcut", ErrInvalidSnippet)
	}
	if strings.IndexFunc(s.Shortcut, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: shortcut %q contains whitespace", ErrInvalidSnippet, s.Shortcut)
	}
	return nil
}

// put applies Put semantics to items and returns the new collection and
// the stored snippet. items is not modified.
func put(items []snippet.Snippet, s snippet.Snippet, now time.Time) ([]snippet.Snippet, snippet.Snippet, error) {
	if err := Validate(s); err != nil {
		return nil, snippet.Snippet{}, err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	pos := -1
	for i, existing := range items {
		if existing.ID == s.ID {
			pos = i
			continue
		}
		if existing.Shortcut == s.Shortcut {
			return nil, snippet.Snippet{}, fmt.Errorf("%w: %s", ErrDuplicateShortcut, s.Shortcut)
		}
	}

	out := append([]snippet.Snippet(nil), items...)
	if pos >= 0 {
		if s.CreatedAt.IsZero() {
			s.CreatedAt = out[pos].CreatedAt
		}
		out[pos] = s
		return out, s, nil
	}

	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	return append(out, s), s, nil
}

// remove returns items without the snippet matching key by ID, or by
// shortcut when no ID matches.
func remove(items []snippet.Snippet, key string) ([]snippet.Snippet, snippet.Snippet, error) {
	pos := -1
	for i, s := range items {
		if s.ID == key {
			pos = i
			break
		}
	}
	if pos < 0 {
		for i, s := range items {
			if s.Shortcut == key {
				pos = i
				break
			}
		}
	}
	if pos < 0 {
		return nil, snippet.Snippet{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	removed := items[pos]
	out := make([]snippet.Snippet, 0, len(items)-1)
	out = append(out, items[:pos]...)
	out = append(out, items[pos+1:]...)
	return out, removed, nil
}

// normalize validates a full replacement collection: every snippet must be
// valid, IDs are filled in, and shortcuts and IDs must be unique.
func normalize(items []snippet.Snippet, now time.Time) ([]snippet.Snippet, error) {
	out := make([]snippet.Snippet, len(items))
	shortcuts := make(map[string]struct{}, len(items))
	ids := make(map[string]struct{}, len(items))

	for i, s := range items {
		if err := Validate(s); err != nil {
			return nil, err
		}
		if _, dup := shortcuts[s.Shortcut]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateShortcut, s.Shortcut)
		}
		shortcuts[s.Shortcut] = struct{}{}

		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		if _, dup := ids[s.ID]; dup {
			s.ID = uuid.NewString()
		}
		ids[s.ID] = struct{}{}

		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		out[i] = s
	}
	return out, nil
}

// Merge puts every snippet of incoming into st. Snippets whose shortcut is
// already taken by a different snippet are skipped and returned. Positional
// legacy ids only identify a record within its own file, so those snippets
// are added under fresh ids instead of replacing whatever st holds under the
// same id.
func Merge(ctx context.Context, st Store, incoming []snippet.Snippet) (added int, skipped []snippet.Snippet, err error) {
	for _, s := range incoming {
		if s.HasLegacyID() {
			s.ID = ""
		}
		if _, err := st.Put(ctx, s); err != nil {
			if errors.Is(err, ErrDuplicateShortcut) {
				skipped = append(skipped, s)
				continue
			}
			return added, skipped, err
		}
		added++
	}
	return added, skipped, nil
}

// Filter returns the snippets matching query, in stored order.
func Filter(items []snippet.Snippet, query string) []snippet.Snippet {
	var out []snippet.Snippet
	for _, s := range items {
		if s.Matches(query) {
			out = append(out, s)
		}
	}
	return out
}

// notifier coalesces change notifications into a one-slot channel.
type notifier chan struct{}

func newNotifier() notifier {
	return make(notifier, 1)
}

func (n notifier) notify() {
	select {
	case n <- struct{}{}:
	default:
	}
}
