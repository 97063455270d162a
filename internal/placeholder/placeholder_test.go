package placeholder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, time.March, 14, 21, 5, 7, 0, time.UTC)

func clock() time.Time { return fixedNow }

type fakeClipboard struct {
	text  string
	err   error
	delay time.Duration
	calls int
}

func (f *fakeClipboard) ReadText(ctx context.Context) (string, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

func TestResolve(t *testing.T) {
	clip := &fakeClipboard{text: "PASTED"}
	r := New(Options{Now: clock, Clipboard: clip})

	tests := []struct {
		name     string
		template string
		text     string
		caret    int
	}{
		{"plain", "you@example.com", "you@example.com", CaretEnd},
		{"empty", "", "", CaretEnd},
		{"unknown token untouched", "cost: ${price}", "cost: ${price}", CaretEnd},
		{"cursor", "Hi ${cursor}!", "Hi !", 3},
		{"cursor at start", "${cursor}tail", "tail", 0},
		{"only first cursor", "a${cursor}b${cursor}c", "ab${cursor}c", 1},
		{"date every occurrence", "${date} and ${date}", "3/14/2025 and 3/14/2025", CaretEnd},
		{"time", "at ${time}", "at 9:05:07 PM", CaretEnd},
		{"datetime", "${datetime}", "3/14/2025, 9:05:07 PM", CaretEnd},
		{"clipboard first occurrence only", "${clipboard}/${clipboard}", "PASTED/${clipboard}", CaretEnd},
		{"caret counts runes", "héllo ${cursor}wörld", "héllo wörld", 6},
		{"caret after substitution", "${date} ${cursor}", "3/14/2025 ", 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp, diag := r.Resolve(context.Background(), tt.template, "x")
			assert.Equal(t, tt.text, exp.Text)
			assert.Equal(t, tt.caret, exp.Caret)
			assert.False(t, diag.ClipboardSkipped)
		})
	}
}

func TestResolveNoPlaceholdersIsIdentity(t *testing.T) {
	r := New(Options{Now: func() time.Time {
		t.Fatal("clock must not be read")
		return time.Time{}
	}})
	exp, _ := r.Resolve(context.Background(), "plain text, nothing else", "pt")
	assert.Equal(t, Expansion{Text: "plain text, nothing else", Caret: CaretEnd}, exp)
}

func TestResolveClipboardLiteral(t *testing.T) {
	// $-sequences in clipboard text are inserted verbatim.
	r := New(Options{Now: clock, Clipboard: &fakeClipboard{text: "$& $1 ${cursor}"}})
	exp, _ := r.Resolve(context.Background(), "[${clipboard}]", "x")
	assert.Equal(t, "[$& $1 ]", exp.Text)
	assert.Equal(t, 7, exp.Caret, "cursor step runs after clipboard substitution")
}

func TestResolveClipboardFailureLeavesPlaceholder(t *testing.T) {
	denied := errors.New("permission denied")
	tests := []struct {
		name    string
		clip    Clipboard
		wantErr error
	}{
		{"rejecting", &fakeClipboard{err: denied}, denied},
		{"empty", &fakeClipboard{}, errEmptyClipboard},
		{"none configured", nil, errNoClipboard},
		{"timeout", &fakeClipboard{text: "late", delay: time.Second}, context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(Options{Now: clock, Clipboard: tt.clip, ClipboardTimeout: 20 * time.Millisecond})

			exp, diag := r.Resolve(context.Background(), "${clipboard}", "cb")
			assert.Equal(t, "${clipboard}", exp.Text)
			assert.Equal(t, CaretEnd, exp.Caret)
			require.True(t, diag.ClipboardSkipped)
			assert.ErrorIs(t, diag.ClipboardErr, tt.wantErr)
		})
	}
}

func TestResolveReadsClipboardOnce(t *testing.T) {
	clip := &fakeClipboard{text: "x"}
	r := New(Options{Now: clock, Clipboard: clip})

	r.Resolve(context.Background(), "no clipboard here", "a")
	assert.Equal(t, 0, clip.calls)

	r.Resolve(context.Background(), "${clipboard}${clipboard}", "a")
	assert.Equal(t, 1, clip.calls)
}

func TestCustomLayouts(t *testing.T) {
	r := New(Options{Now: clock, Layouts: Layouts{Date: "2006-01-02", Time: "15:04"}})
	exp, _ := r.Resolve(context.Background(), "${date} ${time} ${datetime}", "d")
	assert.Equal(t, "2025-03-14 21:05 3/14/2025, 9:05:07 PM", exp.Text)
}

func TestCaretOffset(t *testing.T) {
	assert.Equal(t, 4, Expansion{Text: "héll", Caret: CaretEnd}.CaretOffset())
	assert.Equal(t, 2, Expansion{Text: "héll", Caret: 2}.CaretOffset())
}

func TestNeedsClipboard(t *testing.T) {
	assert.True(t, NeedsClipboard("x ${clipboard}"))
	assert.False(t, NeedsClipboard("x ${cursor}"))
}
