// Package expander turns completed shortcuts into snippet text. It owns the
// keystroke buffer and runs the match, resolve and commit steps for every
// separator key.
package expander

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"copyx/internal/keystroke"
	"copyx/internal/logging"
	"copyx/internal/metrics"
	"copyx/internal/placeholder"
	"copyx/internal/snippet"
	"copyx/internal/surface"
)

// Directory finds the snippet for a typed shortcut.
type Directory interface {
	Lookup(trigger string) (snippet.Snippet, bool)
}

// KeyEvent is a key press together with the element that has focus.
type KeyEvent struct {
	keystroke.Event

	// Target is the focused element, classified with surface.Classify.
	Target any
}

// Decision is the answer to the event producer.
type Decision struct {
	// Suppress means the key's default action must not run: the separator
	// is replaced by the expansion.
	Suppress bool

	// Shortcut is the matched shortcut, empty when nothing matched.
	Shortcut string
}

// Options configures an Engine.
type Options struct {
	Directory Directory
	Resolver  *placeholder.Resolver
	Buffer    keystroke.Options
	Metrics   *metrics.Expander
	Logger    *slog.Logger
}

// Engine is the keydown handler. Events must be delivered in order; HandleKey
// serializes callers so expansions never interleave.
type Engine struct {
	mu       sync.Mutex
	buf      *keystroke.Buffer
	dir      Directory
	resolver *placeholder.Resolver
	metrics  *metrics.Expander
	logger   *slog.Logger
}

// New returns an Engine. Without a Resolver a default one with no clipboard
// is used; without Metrics the counters go to a private registry.
func New(opts Options) *Engine {
	e := &Engine{
		buf:      keystroke.NewBuffer(opts.Buffer),
		dir:      opts.Directory,
		resolver: opts.Resolver,
		metrics:  opts.Metrics,
		logger:   logging.OrDiscard(opts.Logger),
	}
	if e.resolver == nil {
		e.resolver = placeholder.New(placeholder.Options{Logger: opts.Logger})
	}
	if e.metrics == nil {
		e.metrics = metrics.NewExpander(nil)
	}
	return e
}

// pending is a matched shortcut whose edit has not been made yet.
type pending struct {
	snippet snippet.Snippet
	trigger string
	target  surface.Surface
	started time.Time
}

// HandleKey processes one key press to completion, including any edit.
func (e *Engine) HandleKey(ctx context.Context, ev KeyEvent) (Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, p := e.decide(ev)
	if p == nil {
		return d, nil
	}
	return d, e.complete(ctx, p)
}

// decide updates the buffer and, for a separator that completes a known
// shortcut on a surface that can take the edit, returns the work left to do.
func (e *Engine) decide(ev KeyEvent) (Decision, *pending) {
	target := surface.Classify(ev.Target)
	kev := ev.Event
	if target == nil {
		kev.Surface = keystroke.NoSurface
	}

	step := e.buf.Process(kev)
	if step.Action == keystroke.ActionReset || step.Action == keystroke.ActionIgnore {
		return Decision{}, nil
	}
	e.metrics.Keystrokes.Inc()
	if step.Action != keystroke.ActionEvaluate {
		return Decision{}, nil
	}

	sn, ok := e.dir.Lookup(step.Candidate)
	if !ok {
		e.metrics.SeparatorPassthrough.Inc()
		return Decision{}, nil
	}

	triggerLen := utf8.RuneCountInString(step.Candidate)
	if err := surface.Check(target, triggerLen); err != nil {
		e.abort(step.Candidate, target, err)
		return Decision{}, nil
	}

	return Decision{Suppress: true, Shortcut: sn.Shortcut}, &pending{
		snippet: sn,
		trigger: step.Candidate,
		target:  target,
		started: time.Now(),
	}
}

// complete resolves the template and commits the edit. It runs after the
// producer has been told to suppress the separator.
func (e *Engine) complete(ctx context.Context, p *pending) error {
	exp, diag := e.resolver.Resolve(ctx, p.snippet.Body, p.trigger)
	if diag.ClipboardSkipped {
		e.metrics.ClipboardFailures.Inc()
	}

	if err := surface.Commit(p.target, utf8.RuneCountInString(p.trigger), exp); err != nil {
		e.abort(p.trigger, p.target, err)
		return err
	}

	e.metrics.Expansions.Inc()
	e.metrics.ExpansionDuration.Since(p.started)
	e.logger.Debug("shortcut expanded",
		"shortcut", p.trigger,
		"surface", surface.KindOf(p.target),
		"caret", exp.Caret,
	)
	return nil
}

func (e *Engine) abort(trigger string, target surface.Surface, err error) {
	e.metrics.ExpansionsAborted.Inc()
	level := slog.LevelWarn
	if !errors.Is(err, surface.ErrDesync) && !errors.Is(err, surface.ErrNoSelection) {
		level = slog.LevelError
	}
	e.logger.Log(context.Background(), level, "expansion aborted, surface left untouched",
		"shortcut", trigger,
		"surface", surface.KindOf(target),
		"error", err,
	)
}

// Reset clears the keystroke buffer, e.g. when the input method loses focus.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buf.Reset()
}

// SetResolver replaces the placeholder resolver once the expansion in
// progress, if any, has been committed.
func (e *Engine) SetResolver(r *placeholder.Resolver) {
	if r == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resolver = r
}

// Buffered returns the characters typed since the last separator.
func (e *Engine) Buffered() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.String()
}

// Metrics returns the engine's metrics.
func (e *Engine) Metrics() *metrics.Expander { return e.metrics }
