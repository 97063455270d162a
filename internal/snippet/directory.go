package snippet

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"copyx/internal/logging"
)

// Source supplies the full, ordered snippet collection.
type Source interface {
	GetAll(ctx context.Context) ([]Snippet, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]Snippet, error)

// GetAll calls f.
func (f SourceFunc) GetAll(ctx context.Context) ([]Snippet, error) {
	return f(ctx)
}

// catalog is an immutable copy of the collection. It is never mutated
// after publication.
type catalog struct {
	items []Snippet
	index map[string]int // shortcut -> first position in items
}

func newCatalog(items []Snippet) *catalog {
	c := &catalog{
		items: items,
		index: make(map[string]int, len(items)),
	}
	for i, s := range items {
		if _, dup := c.index[s.Shortcut]; !dup {
			c.index[s.Shortcut] = i
		}
	}
	return c
}

// Directory is the in-memory, read-mostly view of the snippet collection.
//
// Lookups never block: a reload builds a new catalog and publishes it with
// one atomic pointer swap, so a lookup sees either the old or the new
// collection in full.
type Directory struct {
	src    Source
	logger *slog.Logger

	current  atomic.Pointer[catalog]
	onReload atomic.Pointer[func(int)]
}

// NewDirectory returns an empty directory backed by src.
func NewDirectory(src Source, logger *slog.Logger) *Directory {
	d := &Directory{
		src:    src,
		logger: logging.OrDiscard(logger),
	}
	d.current.Store(newCatalog(nil))
	return d
}

// OnReload registers fn to run after every successful Load with the new
// snippet count.
func (d *Directory) OnReload(fn func(count int)) {
	d.onReload.Store(&fn)
}

// Load fetches the collection from the source and replaces the in-memory
// copy. On error the previous copy stays in place.
func (d *Directory) Load(ctx context.Context) error {
	items, err := d.src.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load snippets: %w", err)
	}

	owned := append([]Snippet(nil), items...)
	d.current.Store(newCatalog(owned))
	d.logger.Debug("snippet directory loaded", "count", len(owned))

	if fn := d.onReload.Load(); fn != nil {
		(*fn)(len(owned))
	}
	return nil
}

// Lookup returns the snippet whose shortcut equals trigger exactly. With
// duplicate shortcuts the first in stored order wins.
func (d *Directory) Lookup(trigger string) (Snippet, bool) {
	if trigger == "" {
		return Snippet{}, false
	}
	c := d.current.Load()
	i, ok := c.index[trigger]
	if !ok {
		return Snippet{}, false
	}
	return c.items[i], true
}

// OnExternalChange reacts to one store change notification by reloading.
// Failures are logged and the stale copy keeps serving lookups.
func (d *Directory) OnExternalChange(ctx context.Context) {
	if err := d.Load(ctx); err != nil {
		d.logger.Warn("snippet reload failed, keeping previous copy", "error", err)
	}
}

// Watch calls OnExternalChange for every notification on changes until ctx
// is done or changes is closed.
func (d *Directory) Watch(ctx context.Context, changes <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			d.OnExternalChange(ctx)
		}
	}
}

// Len returns the number of snippets currently held.
func (d *Directory) Len() int {
	return len(d.current.Load().items)
}

// Snapshot returns a copy of the current collection in stored order.
func (d *Directory) Snapshot() []Snippet {
	return append([]Snippet(nil), d.current.Load().items...)
}
