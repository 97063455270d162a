package keystroke

import (
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// Defaults for Options.
const (
	DefaultIdleTimeout = time.Second
	DefaultMaxLen      = 64
)

// Action tells the caller what a key press did to the buffer.
type Action int

const (
	// ActionIgnore: modifier or composition; nothing changed.
	ActionIgnore Action = iota

	// ActionReset: the target is not editable; the buffer was cleared.
	ActionReset

	// ActionAccept: the key was recorded (appended, erased, or just timed).
	ActionAccept

	// ActionEvaluate: a separator was pressed. Step.Candidate holds the
	// buffer contents and the buffer is now empty.
	ActionEvaluate
)

func (a Action) String() string {
	switch a {
	case ActionIgnore:
		return "ignore"
	case ActionReset:
		return "reset"
	case ActionAccept:
		return "accept"
	case ActionEvaluate:
		return "evaluate"
	}
	return "unknown"
}

// State of the buffer.
type State int

const (
	Idle State = iota
	Accumulating
)

// Step is the outcome of one key press.
type Step struct {
	Action    Action
	Candidate string
}

// Options configures a Buffer. Zero fields take defaults.
type Options struct {
	IdleTimeout time.Duration
	MaxLen      int // runes
	Separators  []Key
	Now         func() time.Time
}

// Buffer accumulates the characters typed into one surface. It is not safe
// for concurrent use; the expansion engine owns it.
type Buffer struct {
	chars   []rune
	last    time.Time
	surface SurfaceID

	idle       time.Duration
	maxLen     int
	separators map[Key]bool
	now        func() time.Time
}

// NewBuffer returns an empty buffer.
func NewBuffer(opts Options) *Buffer {
	b := &Buffer{
		idle:       opts.IdleTimeout,
		maxLen:     opts.MaxLen,
		separators: make(map[Key]bool),
		now:        opts.Now,
	}
	if b.idle <= 0 {
		b.idle = DefaultIdleTimeout
	}
	if b.maxLen <= 0 {
		b.maxLen = DefaultMaxLen
	}
	if b.now == nil {
		b.now = time.Now
	}
	seps := opts.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	for _, k := range seps {
		b.separators[k] = true
	}
	return b
}

// Process applies one key press. The rules are checked in order and the
// first that applies decides the outcome.
func (b *Buffer) Process(ev Event) Step {
	if ev.Surface == NoSurface {
		b.Reset()
		b.surface = NoSurface
		return Step{Action: ActionReset}
	}
	if ev.Key == KeyModifier || ev.Composing {
		return Step{Action: ActionIgnore}
	}

	at := ev.Time
	if at.IsZero() {
		at = b.now()
	}

	b.bind(ev.Surface)

	separator := b.separators[ev.Key]
	if !separator && !b.last.IsZero() && at.Sub(b.last) > b.idle {
		b.chars = b.chars[:0]
	}
	b.last = at

	switch {
	case separator:
		candidate := string(b.chars)
		b.chars = b.chars[:0]
		return Step{Action: ActionEvaluate, Candidate: candidate}
	case ev.Key == KeyBackspace:
		b.chars = []rune(dropLastGrapheme(string(b.chars)))
	case printable(ev):
		b.chars = append(b.chars, ev.Rune)
		if over := len(b.chars) - b.maxLen; over > 0 {
			b.chars = append(b.chars[:0], b.chars[over:]...)
		}
	}
	return Step{Action: ActionAccept}
}

// bind clears the buffer when focus moved to a different surface.
func (b *Buffer) bind(id SurfaceID) {
	if id != b.surface {
		b.chars = b.chars[:0]
		b.surface = id
	}
}

func printable(ev Event) bool {
	if ev.Rune == 0 || ev.Modifiers.Chord() {
		return false
	}
	if ev.Key != KeyCharacter && ev.Key != KeySpace {
		return false
	}
	return unicode.IsPrint(ev.Rune)
}

func dropLastGrapheme(s string) string {
	state := -1
	rest := s
	pos, last := 0, 0
	for len(rest) > 0 {
		var cluster string
		cluster, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
		last = pos
		pos += len(cluster)
	}
	return s[:last]
}

// Reset clears the buffer. The bound surface is kept.
func (b *Buffer) Reset() {
	b.chars = b.chars[:0]
	b.last = time.Time{}
}

// String returns the buffered characters.
func (b *Buffer) String() string { return string(b.chars) }

// Len returns the number of buffered runes.
func (b *Buffer) Len() int { return len(b.chars) }

// Surface returns the surface the buffer is bound to.
func (b *Buffer) Surface() SurfaceID { return b.surface }

// State reports whether anything is buffered.
func (b *Buffer) State() State {
	if len(b.chars) == 0 {
		return Idle
	}
	return Accumulating
}

// MaxLen returns the buffer's length limit in runes.
func (b *Buffer) MaxLen() int { return b.maxLen }

// Fits reports whether shortcut could ever be recognized given the buffer's
// length limit.
func (b *Buffer) Fits(shortcut string) bool {
	return utf8.RuneCountInString(shortcut) <= b.maxLen
}
