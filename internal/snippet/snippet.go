// Package snippet defines the snippet model, its persisted JSON form, and
// the in-memory Directory the expander consults on every separator key.
package snippet

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Snippet is one shortcut and the template it expands to.
type Snippet struct {
	ID        string
	Shortcut  string
	Body      string
	Label     string
	CreatedAt time.Time
}

// Matches reports whether query appears in the shortcut, label or body,
// ignoring case. An empty query matches everything.
func (s Snippet) Matches(query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(s.Shortcut), q) ||
		strings.Contains(strings.ToLower(s.Label), q) ||
		strings.Contains(strings.ToLower(s.Body), q)
}

// Record is the persisted JSON form of a Snippet.
type Record struct {
	ID        string   `json:"id,omitempty"`
	Shortcut  string   `json:"shortcut"`
	Snippet   string   `json:"snippet"`
	Label     string   `json:"label"`
	Timestamp *float64 `json:"timestamp,omitempty"`
}

// ToRecord converts s to its persisted form. A zero CreatedAt omits the
// timestamp.
func (s Snippet) ToRecord() Record {
	r := Record{
		ID:       s.ID,
		Shortcut: s.Shortcut,
		Snippet:  s.Body,
		Label:    s.Label,
	}
	if !s.CreatedAt.IsZero() {
		ms := float64(s.CreatedAt.UnixMilli())
		r.Timestamp = &ms
	}
	return r
}

// LegacyIDPrefix starts the ids ToSnippet makes up for records without one.
const LegacyIDPrefix = "legacy-"

// HasLegacyID reports whether s carries an id derived from its position in
// a legacy collection rather than one of its own.
func (s Snippet) HasLegacyID() bool {
	return strings.HasPrefix(s.ID, LegacyIDPrefix)
}

// ToSnippet converts r. index is the record's position in its collection
// and fills a missing id with LegacyIDPrefix followed by index.
func (r Record) ToSnippet(index int) Snippet {
	s := Snippet{
		ID:       r.ID,
		Shortcut: r.Shortcut,
		Body:     r.Snippet,
		Label:    r.Label,
	}
	if s.ID == "" {
		s.ID = fmt.Sprintf("%s%d", LegacyIDPrefix, index)
	}
	if r.Timestamp != nil {
		s.CreatedAt = time.UnixMilli(int64(*r.Timestamp))
	}
	return s
}

// ErrInvalidCollection is returned when a snippet collection fails schema
// validation.
var ErrInvalidCollection = errors.New("invalid snippet collection")

//go:embed schema/snippets.schema.json
var schemaJSON []byte

const schemaURL = "snippets.schema.json"

var (
	compiledOnce sync.Once
	compiled     *jsonschema.Schema
	compileErr   error
)

func collectionSchema() (*jsonschema.Schema, error) {
	compiledOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile(schemaURL)
	})
	return compiled, compileErr
}

// Validate checks data against the collection schema. Both a bare array of
// records and an object with a "snippets" array are accepted.
func Validate(data []byte) error {
	schema, err := collectionSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCollection, err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCollection, err)
	}
	return nil
}

// Decode validates and parses a persisted collection, preserving order.
// Empty input decodes to an empty collection.
func Decode(data []byte) ([]Snippet, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if err := Validate(data); err != nil {
		return nil, err
	}

	var records []Record
	if trimmed := bytes.TrimSpace(data); trimmed[0] == '{' {
		var wrapped struct {
			Snippets []Record `json:"snippets"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("decode snippets: %w", err)
		}
		records = wrapped.Snippets
	} else if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode snippets: %w", err)
	}

	out := make([]Snippet, len(records))
	for i, r := range records {
		out[i] = r.ToSnippet(i)
	}
	return out, nil
}

// Encode writes snippets as an indented JSON array of records.
func Encode(snippets []Snippet) ([]byte, error) {
	records := make([]Record, len(snippets))
	for i, s := range snippets {
		records[i] = s.ToRecord()
	}
	return json.MarshalIndent(records, "", "  ")
}
