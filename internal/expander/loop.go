package expander

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"copyx/internal/logging"
)

// ErrStopped is returned by Dispatch after the loop has been stopped.
var ErrStopped = errors.New("expander loop stopped")

// Request states. The loop claims a request before answering it; a producer
// that gives up first abandons it.
const (
	requestQueued int32 = iota
	requestClaimed
	requestAbandoned
)

type requestKind int

const (
	kindKey requestKind = iota
	kindBarrier
	kindReset
)

type request struct {
	kind  requestKind
	ev    KeyEvent
	reply chan Decision
	state *atomic.Int32
}

func newRequest(kind requestKind, ev KeyEvent) request {
	return request{kind: kind, ev: ev, reply: make(chan Decision, 1), state: new(atomic.Int32)}
}

// claim marks req as answered by the loop. It fails once the producer has
// given up on req.
func (r request) claim() bool {
	return r.state.CompareAndSwap(requestQueued, requestClaimed)
}

// abandon marks req as given up by the producer. It fails once the loop has
// claimed req, in which case its Decision is on the way.
func (r request) abandon() bool {
	return r.state.CompareAndSwap(requestQueued, requestAbandoned)
}

// Loop feeds key events from any number of producers through one Engine in
// arrival order. A producer gets its Decision as soon as it is known; the
// edit for a matched shortcut finishes before the next event is taken, so
// keys typed meanwhile queue behind it.
type Loop struct {
	engine *Engine
	logger *slog.Logger

	requests chan request

	// Control
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewLoop returns a stopped loop around e. queue bounds how many events may
// wait while an expansion is in flight.
func NewLoop(e *Engine, queue int, logger *slog.Logger) *Loop {
	if queue < 1 {
		queue = 64
	}
	return &Loop{
		engine:   e,
		logger:   logging.OrDiscard(logger),
		requests: make(chan request, queue),
		done:     make(chan struct{}),
	}
}

// Start launches the loop goroutine.
func (l *Loop) Start() {
	l.wg.Add(1)
	go l.run()
}

// Stop waits for the event being handled, including its edit, and stops the
// loop. Queued events are dropped.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
		l.wg.Wait()
	})
}

func (l *Loop) run() {
	defer l.wg.Done()

	for {
		select {
		case <-l.done:
			return
		case req := <-l.requests:
			l.handle(req)
		}
	}
}

func (l *Loop) handle(req request) {
	switch req.kind {
	case kindBarrier:
		req.reply <- Decision{}
		return
	case kindReset:
		l.engine.Reset()
		req.reply <- Decision{}
		return
	}

	e := l.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	d, p := e.decide(req.ev)
	if !req.claim() {
		// The producer passed the key through to the application; the
		// buffer saw it but no edit may follow.
		if p != nil {
			l.logger.Warn("expansion dropped, key was handled before the loop reached it",
				"shortcut", p.trigger,
			)
		}
		return
	}
	req.reply <- d
	if p == nil {
		return
	}
	// The producer may already have returned; the edit is not tied to its
	// context.
	if err := e.complete(context.Background(), p); err != nil {
		l.logger.Debug("dispatched expansion failed", "shortcut", p.trigger, "error", err)
	}
}

// Dispatch queues ev and returns its Decision. It does not wait for the
// resulting edit. When ctx ends first the event is still fed to the buffer,
// but it never triggers an edit: the caller is expected to let the key
// through.
func (l *Loop) Dispatch(ctx context.Context, ev KeyEvent) (Decision, error) {
	return l.send(ctx, newRequest(kindKey, ev))
}

// Flush returns once every event dispatched before it has been handled
// completely.
func (l *Loop) Flush(ctx context.Context) error {
	_, err := l.send(ctx, newRequest(kindBarrier, KeyEvent{}))
	return err
}

// Reset clears the engine's keystroke buffer once every event dispatched
// before it has been handled.
func (l *Loop) Reset(ctx context.Context) error {
	_, err := l.send(ctx, newRequest(kindReset, KeyEvent{}))
	return err
}

func (l *Loop) send(ctx context.Context, req request) (Decision, error) {
	select {
	case <-l.done:
		return Decision{}, ErrStopped
	default:
	}

	select {
	case l.requests <- req:
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	case <-l.done:
		return Decision{}, ErrStopped
	}

	select {
	case d := <-req.reply:
		return d, nil
	case <-ctx.Done():
		if req.abandon() {
			return Decision{}, ctx.Err()
		}
		// Claimed meanwhile: the Decision is already being sent.
		return <-req.reply, nil
	case <-l.done:
		// Stopped with the request still queued, or being handled.
		if req.abandon() {
			return Decision{}, ErrStopped
		}
		return <-req.reply, nil
	}
}
