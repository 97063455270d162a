package expander

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copyx/internal/keystroke"
	"copyx/internal/snippet"
	"copyx/internal/surface"
)

// slowClipboard blocks until released so a test can observe the loop while
// an expansion is in flight.
type slowClipboard struct {
	release chan struct{}
	once    sync.Once
}

func (c *slowClipboard) ReadText(ctx context.Context) (string, error) {
	select {
	case <-c.release:
		return "CLIP", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *slowClipboard) Release() { c.once.Do(func() { close(c.release) }) }

func TestLoopDecidesBeforeEditCompletes(t *testing.T) {
	clip := &slowClipboard{release: make(chan struct{})}
	defer clip.Release()
	f := newFixture(t, clip, snippet.Snippet{ID: "c", Shortcut: "cb", Body: "[${clipboard}]"})

	loop := NewLoop(f.engine, 16, nil)
	loop.Start()
	defer loop.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	field := surface.NewTextField("text", "")
	for _, ev := range keystroke.TextEvents("cb", "in", t0, 10*time.Millisecond) {
		d, err := loop.Dispatch(ctx, KeyEvent{Event: ev, Target: field})
		require.NoError(t, err)
		require.False(t, d.Suppress)
		applyKey(field, ev)
	}

	d, err := loop.Dispatch(ctx, KeyEvent{Event: keystroke.RuneEvent(' ', "in", t0.Add(30*time.Millisecond)), Target: field})
	require.NoError(t, err)
	assert.True(t, d.Suppress)
	assert.Equal(t, "cb", field.Value(), "edit waits on the clipboard")

	// A key dispatched now queues behind the expansion.
	next := make(chan Decision, 1)
	go func() {
		d, _ := loop.Dispatch(ctx, KeyEvent{Event: keystroke.RuneEvent('x', "in", t0.Add(40*time.Millisecond)), Target: field})
		next <- d
	}()
	select {
	case <-next:
		t.Fatal("event handled while an expansion was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	clip.Release()
	select {
	case <-next:
	case <-ctx.Done():
		t.Fatal("queued event never handled")
	}
	require.NoError(t, loop.Flush(ctx))
	assert.Equal(t, "[CLIP]", field.Value())
}

func TestLoopOrdersProducers(t *testing.T) {
	f := newFixture(t, nil, email)
	loop := NewLoop(f.engine, 0, nil)
	loop.Start()
	defer loop.Stop()

	ctx := context.Background()
	field := surface.NewTextField("text", "")
	for _, ev := range keystroke.TextEvents("@em ", "in", t0, 10*time.Millisecond) {
		d, err := loop.Dispatch(ctx, KeyEvent{Event: ev, Target: field})
		require.NoError(t, err)
		if !d.Suppress {
			applyKey(field, ev)
		}
	}
	require.NoError(t, loop.Flush(ctx))
	assert.Equal(t, "you@example.com", field.Value())
}

func TestLoopStop(t *testing.T) {
	f := newFixture(t, nil, email)
	loop := NewLoop(f.engine, 4, nil)
	loop.Start()
	loop.Stop()
	loop.Stop()

	_, err := loop.Dispatch(context.Background(), KeyEvent{Event: keystroke.RuneEvent('a', "in", t0)})
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, loop.Flush(context.Background()), ErrStopped)
}

func TestLoopDispatchHonoursContext(t *testing.T) {
	f := newFixture(t, nil, email)
	// Never started: nothing drains the queue.
	loop := NewLoop(f.engine, 1, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := loop.Dispatch(ctx, KeyEvent{Event: keystroke.RuneEvent('a', "in", t0)})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoopAbandonedEventNeverEdits(t *testing.T) {
	clip := &slowClipboard{release: make(chan struct{})}
	defer clip.Release()
	f := newFixture(t, clip, snippet.Snippet{ID: "c", Shortcut: "cb", Body: "[${clipboard}]"})

	loop := NewLoop(f.engine, 16, nil)
	loop.Start()
	defer loop.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	field := surface.NewTextField("text", "")
	for _, ev := range keystroke.TextEvents("cb ", "in", t0, 10*time.Millisecond) {
		d, err := loop.Dispatch(ctx, KeyEvent{Event: ev, Target: field})
		require.NoError(t, err)
		if !d.Suppress {
			applyKey(field, ev)
		}
	}

	// The expansion waits on the clipboard; these producers give up and
	// would let their keys through.
	for _, ev := range keystroke.TextEvents("cb ", "in", t0.Add(40*time.Millisecond), 10*time.Millisecond) {
		short, stop := context.WithTimeout(ctx, 30*time.Millisecond)
		_, err := loop.Dispatch(short, KeyEvent{Event: ev, Target: field})
		stop()
		require.ErrorIs(t, err, context.DeadlineExceeded)
	}

	clip.Release()
	require.NoError(t, loop.Flush(ctx))
	assert.Equal(t, "[CLIP]", field.Value())
	assert.Equal(t, uint64(1), f.engine.Metrics().Expansions.Value())
	assert.Empty(t, f.engine.Buffered())
}

func TestLoopTimedOutKeyStillFeedsBuffer(t *testing.T) {
	f := newFixture(t, nil, email)
	// Not started yet: the first event times out while queued.
	loop := NewLoop(f.engine, 4, nil)

	short, stop := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer stop()
	_, err := loop.Dispatch(short, KeyEvent{Event: keystroke.RuneEvent('@', "in", t0), Target: surface.NewTextField("text", "")})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	loop.Start()
	defer loop.Stop()
	require.NoError(t, loop.Flush(context.Background()))
	assert.Equal(t, "@", f.engine.Buffered())
}

func TestLoopResetClearsBuffer(t *testing.T) {
	f := newFixture(t, nil, email)
	loop := NewLoop(f.engine, 0, nil)
	loop.Start()
	defer loop.Stop()

	ctx := context.Background()
	field := surface.NewTextField("text", "")
	for _, ev := range keystroke.TextEvents("@e", "in", t0, 10*time.Millisecond) {
		_, err := loop.Dispatch(ctx, KeyEvent{Event: ev, Target: field})
		require.NoError(t, err)
		applyKey(field, ev)
	}
	require.NoError(t, loop.Reset(ctx))
	assert.Empty(t, f.engine.Buffered())

	for _, ev := range keystroke.TextEvents("m ", "in", t0.Add(50*time.Millisecond), 10*time.Millisecond) {
		d, err := loop.Dispatch(ctx, KeyEvent{Event: ev, Target: field})
		require.NoError(t, err)
		assert.False(t, d.Suppress)
	}
}
