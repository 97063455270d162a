// Package keystroke tracks what the user has typed into the focused surface
// since the last separator, so a completed shortcut can be recognized.
package keystroke

import (
	"fmt"
	"strings"
	"time"
)

// Key categorizes a key press.
type Key int

const (
	KeyUnknown    Key = iota
	KeyCharacter      // printable characters, carried in Event.Rune
	KeySpace
	KeyEnter
	KeyTab
	KeyBackspace
	KeyDelete
	KeyNavigation // arrows, Home, End, Page Up/Down
	KeyModifier   // Shift, Control, Alt, Meta, CapsLock on their own
	KeyFunction
	KeyEscape
)

var keyNames = map[Key]string{
	KeyUnknown:    "unknown",
	KeyCharacter:  "character",
	KeySpace:      "space",
	KeyEnter:      "enter",
	KeyTab:        "tab",
	KeyBackspace:  "backspace",
	KeyDelete:     "delete",
	KeyNavigation: "navigation",
	KeyModifier:   "modifier",
	KeyFunction:   "function",
	KeyEscape:     "escape",
}

func (k Key) String() string {
	if name, ok := keyNames[k]; ok {
		return name
	}
	return fmt.Sprintf("key(%d)", int(k))
}

// ParseKey returns the key named by s, case-insensitively. "return" is
// accepted for Enter.
func ParseKey(s string) (Key, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "return" {
		return KeyEnter, nil
	}
	for k, n := range keyNames {
		if n == name && k != KeyUnknown {
			return k, nil
		}
	}
	return KeyUnknown, fmt.Errorf("unknown key %q", s)
}

// ParseSeparators converts configured separator names into keys.
func ParseSeparators(names []string) ([]Key, error) {
	keys := make([]Key, 0, len(names))
	for _, name := range names {
		k, err := ParseKey(name)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// DefaultSeparators are the keys that complete a shortcut.
var DefaultSeparators = []Key{KeySpace, KeyEnter, KeyTab}

// Modifiers tracks modifier keys held during a key press.
type Modifiers struct {
	Shift    bool `json:"shift,omitempty"`
	Control  bool `json:"control,omitempty"`
	Alt      bool `json:"alt,omitempty"`
	Command  bool `json:"command,omitempty"` // Super / Meta / Cmd
	CapsLock bool `json:"caps_lock,omitempty"`
}

// Chord reports whether a non-text modifier is held, which turns a character
// key into a shortcut for the host application rather than typed text.
func (m Modifiers) Chord() bool {
	return m.Control || m.Alt || m.Command
}

// SurfaceID identifies the focused editable surface. NoSurface means the
// focused element is not editable.
type SurfaceID string

const NoSurface SurfaceID = ""

// Event is a single key press.
type Event struct {
	Key       Key       `json:"key"`
	Rune      rune      `json:"rune,omitempty"`
	Modifiers Modifiers `json:"modifiers,omitempty"`

	// Composing is set while an input method is building a character.
	Composing bool `json:"composing,omitempty"`

	Surface SurfaceID `json:"surface,omitempty"`
	Time    time.Time `json:"time"`
}

// RuneEvent returns the event for typing r, mapping space to KeySpace.
func RuneEvent(r rune, surface SurfaceID, at time.Time) Event {
	ev := Event{Key: KeyCharacter, Rune: r, Surface: surface, Time: at}
	switch r {
	case ' ':
		ev.Key = KeySpace
	case '\n', '\r':
		ev.Key, ev.Rune = KeyEnter, 0
	case '\t':
		ev.Key, ev.Rune = KeyTab, 0
	case '\b':
		ev.Key, ev.Rune = KeyBackspace, 0
	}
	return ev
}

// TextEvents returns one event per rune of text, spaced by step.
func TextEvents(text string, surface SurfaceID, start time.Time, step time.Duration) []Event {
	var events []Event
	at := start
	for _, r := range text {
		events = append(events, RuneEvent(r, surface, at))
		at = at.Add(step)
	}
	return events
}
