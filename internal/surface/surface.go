// Package surface edits the text of the focused element: it removes a typed
// trigger, inserts an expansion in its place and puts the caret where the
// expansion asks.
//
// Two models are supported. A value surface exposes its whole text and an
// integer selection, like a text input. A range surface exposes a selection
// of ranges over text nodes, like a content-editable document or an input
// method's surrounding text. All offsets are in runes.
package surface

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"copyx/internal/placeholder"
)

var (
	// ErrDesync means the surface does not hold the trigger where the
	// buffer says it should be. The surface is left untouched.
	ErrDesync = errors.New("surface out of sync with typed trigger")

	// ErrNoSelection means a range surface has no selection to edit.
	ErrNoSelection = errors.New("surface has no selection")
)

// Kind classifies a focused element.
type Kind int

const (
	KindNone Kind = iota
	KindValue
	KindRange
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindRange:
		return "range"
	}
	return "none"
}

// ValueControl is a control holding its text as a single value.
type ValueControl interface {
	Value() string
	SelectionEnd() int
	SetValue(value string)
	SetSelectionRange(start, end int)
}

// RangeDocument is an editable document addressed through a selection.
type RangeDocument interface {
	Selection() Selection
}

// Selection is the document's current set of ranges.
type Selection interface {
	RangeCount() int
	RangeAt(i int) Range
}

// Range is a span inside one text node.
type Range interface {
	// StartOffset is the start position within the range's text node.
	StartOffset() int
	SetStartOffset(offset int)
	DeleteContents()

	// InsertText inserts each part as its own text node at the range start
	// and collapses the selection to the end of the first part.
	InsertText(parts ...string)
}

// Editability is implemented by elements that can refuse edits, e.g.
// read-only or password inputs.
type Editability interface {
	Editable() bool
}

// Surface is a ValueSurface or a RangeSurface.
type Surface interface {
	Kind() Kind
	isSurface()
}

// ValueSurface wraps a ValueControl.
type ValueSurface struct {
	Control ValueControl
}

func (ValueSurface) Kind() Kind { return KindValue }
func (ValueSurface) isSurface() {}

// RangeSurface wraps a RangeDocument.
type RangeSurface struct {
	Document RangeDocument
}

func (RangeSurface) Kind() Kind { return KindRange }
func (RangeSurface) isSurface() {}

// Classify decides how el can be edited. It returns nil for anything that is
// not an editable surface.
func Classify(el any) Surface {
	if el == nil {
		return nil
	}
	if e, ok := el.(Editability); ok && !e.Editable() {
		return nil
	}
	switch c := el.(type) {
	case Surface:
		return c
	case ValueControl:
		return ValueSurface{Control: c}
	case RangeDocument:
		return RangeSurface{Document: c}
	}
	return nil
}

// KindOf returns the kind of s, KindNone for nil.
func KindOf(s Surface) Kind {
	if s == nil {
		return KindNone
	}
	return s.Kind()
}

// Check reports whether Commit could replace a trigger of triggerLen runes
// without changing s.
func Check(s Surface, triggerLen int) error {
	switch v := s.(type) {
	case ValueSurface:
		_, _, err := valueSpan(v.Control, triggerLen)
		return err
	case RangeSurface:
		_, err := firstRange(v.Document, triggerLen)
		return err
	}
	return fmt.Errorf("unsupported surface %T", s)
}

// Commit replaces the triggerLen runes before the caret with exp.Text and
// moves the caret to exp's caret position. On error s is unchanged.
func Commit(s Surface, triggerLen int, exp placeholder.Expansion) error {
	switch v := s.(type) {
	case ValueSurface:
		return commitValue(v.Control, triggerLen, exp)
	case RangeSurface:
		return commitRange(v.Document, triggerLen, exp)
	}
	return fmt.Errorf("unsupported surface %T", s)
}

func valueSpan(c ValueControl, triggerLen int) (value []rune, start int, err error) {
	value = []rune(c.Value())
	end := c.SelectionEnd()
	start = end - triggerLen
	if triggerLen < 0 || start < 0 || end > len(value) {
		return nil, 0, fmt.Errorf("%w: caret %d, trigger %d, length %d", ErrDesync, end, triggerLen, len(value))
	}
	return value, start, nil
}

func commitValue(c ValueControl, triggerLen int, exp placeholder.Expansion) error {
	value, start, err := valueSpan(c, triggerLen)
	if err != nil {
		return err
	}
	end := start + triggerLen
	before, after := string(value[:start]), string(value[end:])

	c.SetValue(before + exp.Text + after)
	p := start + exp.CaretOffset()
	c.SetSelectionRange(p, p)
	return nil
}

func firstRange(d RangeDocument, triggerLen int) (Range, error) {
	sel := d.Selection()
	if sel == nil || sel.RangeCount() == 0 {
		return nil, ErrNoSelection
	}
	r := sel.RangeAt(0)
	if triggerLen < 0 || r.StartOffset() < triggerLen {
		return nil, fmt.Errorf("%w: range starts at %d, trigger %d", ErrDesync, r.StartOffset(), triggerLen)
	}
	return r, nil
}

func commitRange(d RangeDocument, triggerLen int, exp placeholder.Expansion) error {
	r, err := firstRange(d, triggerLen)
	if err != nil {
		return err
	}
	r.SetStartOffset(r.StartOffset() - triggerLen)
	r.DeleteContents()

	if exp.Caret == placeholder.CaretEnd || exp.Caret >= utf8.RuneCountInString(exp.Text) {
		r.InsertText(exp.Text)
		return nil
	}
	runes := []rune(exp.Text)
	r.InsertText(string(runes[:exp.Caret]), string(runes[exp.Caret:]))
	return nil
}
