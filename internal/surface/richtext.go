package surface

import "unicode/utf8"

// RichText is an in-memory content-editable container: a flat list of text
// nodes and a selection of ranges over them.
type RichText struct {
	ContentEditable bool

	nodes  []string
	ranges []*textRange
}

// NewRichText returns an editable container of the given text nodes with the
// caret at the end of the last one.
func NewRichText(nodes ...string) *RichText {
	if len(nodes) == 0 {
		nodes = []string{""}
	}
	d := &RichText{ContentEditable: true, nodes: append([]string(nil), nodes...)}
	last := len(d.nodes) - 1
	d.SetCaret(last, utf8.RuneCountInString(d.nodes[last]))
	return d
}

func (d *RichText) Editable() bool { return d != nil && d.ContentEditable }

func (d *RichText) Selection() Selection { return richSelection{d} }

// Text returns the concatenated text of all nodes.
func (d *RichText) Text() string {
	var n int
	for _, s := range d.nodes {
		n += len(s)
	}
	buf := make([]byte, 0, n)
	for _, s := range d.nodes {
		buf = append(buf, s...)
	}
	return string(buf)
}

// Nodes returns a copy of the text nodes.
func (d *RichText) Nodes() []string {
	return append([]string(nil), d.nodes...)
}

// SetCaret replaces the selection with a collapsed range at offset in node.
func (d *RichText) SetCaret(node, offset int) {
	d.ranges = nil
	d.AddRange(node, offset, offset)
}

// AddRange adds a range within one node. Offsets are clamped to the node.
func (d *RichText) AddRange(node, start, end int) {
	if node < 0 || node >= len(d.nodes) {
		return
	}
	r := &textRange{doc: d, node: node}
	r.end = r.clamp(end)
	r.start = r.clamp(start)
	if r.start > r.end {
		r.start = r.end
	}
	d.ranges = append(d.ranges, r)
}

// ClearSelection removes all ranges.
func (d *RichText) ClearSelection() { d.ranges = nil }

// Caret returns the node and offset of the first range start.
func (d *RichText) Caret() (node, offset int, ok bool) {
	if len(d.ranges) == 0 {
		return 0, 0, false
	}
	return d.ranges[0].node, d.ranges[0].start, true
}

// CaretOffset returns the caret as a rune offset into Text, or -1 without a
// selection.
func (d *RichText) CaretOffset() int {
	node, offset, ok := d.Caret()
	if !ok {
		return -1
	}
	for _, s := range d.nodes[:node] {
		offset += utf8.RuneCountInString(s)
	}
	return offset
}

// TypeText replaces the first range with text inside the same node and
// leaves the caret after it.
func (d *RichText) TypeText(text string) {
	if len(d.ranges) == 0 {
		return
	}
	r := d.ranges[0]
	r.DeleteContents()
	runes := []rune(d.nodes[r.node])
	ins := []rune(text)
	d.nodes[r.node] = string(runes[:r.start]) + text + string(runes[r.start:])
	d.SetCaret(r.node, r.start+len(ins))
}

// Backspace deletes the first range, or the grapheme cluster before it within
// its node.
func (d *RichText) Backspace() {
	if len(d.ranges) == 0 {
		return
	}
	r := d.ranges[0]
	if r.start == r.end {
		if r.start == 0 {
			return
		}
		r.start -= lastGraphemeRunes([]rune(d.nodes[r.node])[:r.start])
	}
	r.DeleteContents()
	d.SetCaret(r.node, r.start)
}

type richSelection struct{ d *RichText }

func (s richSelection) RangeCount() int     { return len(s.d.ranges) }
func (s richSelection) RangeAt(i int) Range { return s.d.ranges[i] }

type textRange struct {
	doc        *RichText
	node       int
	start, end int
}

func (r *textRange) clamp(i int) int {
	n := utf8.RuneCountInString(r.doc.nodes[r.node])
	switch {
	case i < 0:
		return 0
	case i > n:
		return n
	}
	return i
}

func (r *textRange) StartOffset() int { return r.start }

func (r *textRange) SetStartOffset(offset int) {
	r.start = r.clamp(offset)
	if r.start > r.end {
		r.end = r.start
	}
}

func (r *textRange) DeleteContents() {
	runes := []rune(r.doc.nodes[r.node])
	r.doc.nodes[r.node] = string(runes[:r.start]) + string(runes[r.end:])
	r.end = r.start
}

// InsertText splits the range's node at the start offset and puts each part
// between the halves as a node of its own.
func (r *textRange) InsertText(parts ...string) {
	if len(parts) == 0 {
		return
	}
	d := r.doc
	runes := []rune(d.nodes[r.node])
	left, right := string(runes[:r.start]), string(runes[r.start:])

	nodes := make([]string, 0, len(d.nodes)+len(parts)+1)
	nodes = append(nodes, d.nodes[:r.node]...)
	nodes = append(nodes, left)
	nodes = append(nodes, parts...)
	if right != "" {
		nodes = append(nodes, right)
	}
	nodes = append(nodes, d.nodes[r.node+1:]...)
	d.nodes = nodes

	d.SetCaret(r.node+1, utf8.RuneCountInString(parts[0]))
}
