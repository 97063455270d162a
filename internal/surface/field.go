package surface

import "github.com/rivo/uniseg"

// Input types that take free text. Anything else (password, number, date...)
// is not a place shortcuts should expand.
var textInputTypes = map[string]bool{
	"":         true,
	"text":     true,
	"search":   true,
	"email":    true,
	"url":      true,
	"tel":      true,
	"textarea": true,
}

// TextField is an in-memory text input or textarea.
type TextField struct {
	Type     string
	ReadOnly bool
	Disabled bool

	value    []rune
	selStart int
	selEnd   int
}

// NewTextField returns a field holding value with the caret at its end.
func NewTextField(inputType, value string) *TextField {
	f := &TextField{Type: inputType}
	f.SetValue(value)
	return f
}

// Editable reports whether the field accepts typed text.
func (f *TextField) Editable() bool {
	if f == nil || f.ReadOnly || f.Disabled {
		return false
	}
	return textInputTypes[f.Type]
}

func (f *TextField) Value() string { return string(f.value) }

// SetValue replaces the text and moves the caret to the end, like assigning
// an input's value.
func (f *TextField) SetValue(value string) {
	f.value = []rune(value)
	f.selStart, f.selEnd = len(f.value), len(f.value)
}

func (f *TextField) SelectionStart() int { return f.selStart }
func (f *TextField) SelectionEnd() int   { return f.selEnd }

// SetSelectionRange clamps both ends into the value.
func (f *TextField) SetSelectionRange(start, end int) {
	f.selStart, f.selEnd = f.clamp(start), f.clamp(end)
	if f.selStart > f.selEnd {
		f.selStart = f.selEnd
	}
}

func (f *TextField) clamp(i int) int {
	switch {
	case i < 0:
		return 0
	case i > len(f.value):
		return len(f.value)
	}
	return i
}

// TypeText inserts text at the caret, replacing any selection, the way a key
// press would.
func (f *TextField) TypeText(text string) {
	ins := []rune(text)
	out := make([]rune, 0, len(f.value)+len(ins))
	out = append(out, f.value[:f.selStart]...)
	out = append(out, ins...)
	out = append(out, f.value[f.selEnd:]...)
	caret := f.selStart + len(ins)
	f.value = out
	f.selStart, f.selEnd = caret, caret
}

// Backspace deletes the selection, or the grapheme cluster before the caret.
func (f *TextField) Backspace() {
	if f.selStart == f.selEnd {
		if f.selStart == 0 {
			return
		}
		f.selStart -= lastGraphemeRunes(f.value[:f.selStart])
	}
	f.value = append(f.value[:f.selStart], f.value[f.selEnd:]...)
	f.selEnd = f.selStart
}

// lastGraphemeRunes returns how many runes the last grapheme cluster of
// runes spans.
func lastGraphemeRunes(runes []rune) int {
	rest := string(runes)
	state, n := -1, 0
	for len(rest) > 0 {
		var cluster string
		cluster, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
		n = len([]rune(cluster))
	}
	return n
}
