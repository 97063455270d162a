package ime

import (
	"strings"
	"sync"
	"unicode/utf8"

	"copyx/internal/surface"
)

// Editor applies edits to the client application's text.
type Editor interface {
	// DeleteSurroundingText deletes n characters starting offset characters
	// from the cursor.
	DeleteSurroundingText(offset, n int)
	CommitText(text string)
	// MoveCaret moves the cursor by n characters, left when negative.
	MoveCaret(n int)
}

// SurroundingText is the client text around the cursor as reported by the
// input method framework. It is a range document with a single text node,
// edited through an Editor.
type SurroundingText struct {
	mu            sync.Mutex
	editor        Editor
	skipPasswords bool

	text           []rune
	cursor, anchor int
	known          bool
	purpose        uint32
}

// NewSurroundingText returns a document with no known text.
func NewSurroundingText(editor Editor, skipPasswords bool) *SurroundingText {
	return &SurroundingText{editor: editor, skipPasswords: skipPasswords}
}

// Update records the text and the cursor and anchor positions, in
// characters.
func (s *SurroundingText) Update(text string, cursor, anchor int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = []rune(text)
	s.cursor = clampInt(cursor, 0, len(s.text))
	s.anchor = clampInt(anchor, 0, len(s.text))
	s.known = true
}

// Forget drops the recorded text, e.g. when focus moves.
func (s *SurroundingText) Forget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text, s.cursor, s.anchor, s.known = nil, 0, 0, false
	s.purpose = PurposeFreeForm
}

// SetPurpose records the input purpose of the focused field.
func (s *SurroundingText) SetPurpose(purpose uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purpose = purpose
}

// Editable reports false for password and PIN fields when those are
// skipped.
func (s *SurroundingText) Editable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.skipPasswords && (s.purpose == PurposePassword || s.purpose == PurposePIN) {
		return false
	}
	return true
}

// Text returns the recorded text and cursor.
func (s *SurroundingText) Text() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.text), s.cursor
}

// Selection returns one range spanning cursor and anchor, or none when the
// client never reported its text.
func (s *SurroundingText) Selection() surface.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.known {
		return surroundingSelection{}
	}
	start, end := s.cursor, s.anchor
	if start > end {
		start, end = end, start
	}
	return surroundingSelection{r: &surroundingRange{doc: s, start: start, end: end}}
}

type surroundingSelection struct {
	r *surroundingRange
}

func (sel surroundingSelection) RangeCount() int {
	if sel.r == nil {
		return 0
	}
	return 1
}

func (sel surroundingSelection) RangeAt(int) surface.Range { return sel.r }

type surroundingRange struct {
	doc        *SurroundingText
	start, end int
}

func (r *surroundingRange) StartOffset() int { return r.start }

func (r *surroundingRange) SetStartOffset(offset int) {
	r.doc.mu.Lock()
	defer r.doc.mu.Unlock()
	r.start = clampInt(offset, 0, len(r.doc.text))
	if r.start > r.end {
		r.end = r.start
	}
}

func (r *surroundingRange) DeleteContents() {
	s := r.doc
	s.mu.Lock()
	defer s.mu.Unlock()

	n := r.end - r.start
	if n <= 0 {
		return
	}
	s.editor.DeleteSurroundingText(r.start-s.cursor, n)
	s.text = append(s.text[:r.start:r.start], s.text[r.end:]...)
	s.cursor, s.anchor = r.start, r.start
	r.end = r.start
}

// InsertText commits all parts as one string and then walks the cursor back
// to the end of the first part.
func (r *surroundingRange) InsertText(parts ...string) {
	if len(parts) == 0 {
		return
	}
	s := r.doc
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor != r.start {
		s.editor.MoveCaret(r.start - s.cursor)
		s.cursor = r.start
	}

	joined := strings.Join(parts, "")
	ins := []rune(joined)
	if len(ins) > 0 {
		s.editor.CommitText(joined)
	}
	text := make([]rune, 0, len(s.text)+len(ins))
	text = append(text, s.text[:r.start]...)
	text = append(text, ins...)
	text = append(text, s.text[r.start:]...)
	s.text = text

	caret := r.start + utf8.RuneCountInString(parts[0])
	if back := r.start + len(ins) - caret; back > 0 {
		s.editor.MoveCaret(-back)
	}
	s.cursor, s.anchor = caret, caret
	r.start, r.end = caret, caret
}

func clampInt(v, lo, hi int) int {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
