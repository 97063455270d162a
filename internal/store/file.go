package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"copyx/internal/logging"
	"copyx/internal/snippet"
)

// File is a Store backed by a JSON collection file.
//
// The file is re-read on every GetAll so edits made by another process (or
// by hand) are picked up. Writes go to a temporary file that is renamed
// over the original. Watch turns on change notifications for edits that do
// not go through this File.
type File struct {
	path   string
	logger *slog.Logger

	mu       sync.Mutex
	closed   bool
	changes  notifier
	now      func() time.Time
	debounce time.Duration

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// OpenFile opens the collection at path, creating its directory if needed.
// A missing file is an empty collection.
func OpenFile(path string, logger *slog.Logger) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create snippet directory: %w", err)
	}
	return &File{
		path:     path,
		logger:   logging.OrDiscard(logger),
		changes:  newNotifier(),
		now:      time.Now,
		debounce: 50 * time.Millisecond,
		done:     make(chan struct{}),
	}, nil
}

// Path returns the collection file path.
func (f *File) Path() string {
	return f.path
}

func (f *File) read() ([]snippet.Snippet, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snippets: %w", err)
	}
	items, err := snippet.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.path, err)
	}
	return items, nil
}

// writeAtomic writes items to a temp file then renames it over the
// collection. Caller holds f.mu.
func (f *File) writeAtomic(items []snippet.Snippet) error {
	data, err := snippet.Encode(items)
	if err != nil {
		return fmt.Errorf("encode snippets: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write snippets: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace snippets: %w", err)
	}
	f.changes.notify()
	return nil
}

func (f *File) GetAll(ctx context.Context) ([]snippet.Snippet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	return f.read()
}

func (f *File) Put(ctx context.Context, s snippet.Snippet) (snippet.Snippet, error) {
	if err := ctx.Err(); err != nil {
		return snippet.Snippet{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return snippet.Snippet{}, ErrClosed
	}

	items, err := f.read()
	if err != nil {
		return snippet.Snippet{}, err
	}
	items, stored, err := put(items, s, f.now())
	if err != nil {
		return snippet.Snippet{}, err
	}
	if err := f.writeAtomic(items); err != nil {
		return snippet.Snippet{}, err
	}
	return stored, nil
}

func (f *File) Delete(ctx context.Context, key string) (snippet.Snippet, error) {
	if err := ctx.Err(); err != nil {
		return snippet.Snippet{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return snippet.Snippet{}, ErrClosed
	}

	items, err := f.read()
	if err != nil {
		return snippet.Snippet{}, err
	}
	items, removed, err := remove(items, key)
	if err != nil {
		return snippet.Snippet{}, err
	}
	if err := f.writeAtomic(items); err != nil {
		return snippet.Snippet{}, err
	}
	return removed, nil
}

func (f *File) ReplaceAll(ctx context.Context, items []snippet.Snippet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	normalized, err := normalize(items, f.now())
	if err != nil {
		return err
	}
	return f.writeAtomic(normalized)
}

func (f *File) Changes() <-chan struct{} {
	return f.changes
}

// Watch starts notifying Changes when the collection file is modified on
// disk by anyone. The directory is watched so atomic replacements are seen.
func (f *File) Watch() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if f.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch snippet directory: %w", err)
	}
	f.watcher = watcher

	f.wg.Add(1)
	go f.eventLoop()
	return nil
}

func (f *File) eventLoop() {
	defer f.wg.Done()

	name := filepath.Base(f.path)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-f.done:
			return

		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(f.debounce, f.changes.notify)

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn("snippet file watch error", "path", f.path, "error", err)
		}
	}
}

// Close stops the watcher, if any. Further operations return ErrClosed.
func (f *File) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	watcher := f.watcher
	f.mu.Unlock()

	if watcher == nil {
		return nil
	}
	close(f.done)
	f.wg.Wait()
	return watcher.Close()
}
