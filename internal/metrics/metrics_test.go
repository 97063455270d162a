package metrics

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	r := NewRegistry("test")
	c := r.Counter("events_total", "events")
	c.Inc()
	c.Add(4)
	assert.Equal(t, uint64(5), c.Value())

	// Same name returns the same counter.
	assert.Same(t, c, r.Counter("events_total", "ignored"))
}

func TestGauge(t *testing.T) {
	g := NewRegistry("").Gauge("depth", "queue depth")
	g.Set(10)
	g.Add(-3)
	assert.Equal(t, int64(7), g.Value())
}

func TestHistogram(t *testing.T) {
	h := NewRegistry("test").Histogram("latency_seconds", "latency", []float64{0.5, 0.1, 1})
	h.Observe(0.05)
	h.Observe(0.3)
	h.Observe(2)
	h.ObserveDuration(100 * time.Millisecond)

	assert.Equal(t, uint64(4), h.Count())
	assert.InDelta(t, (0.05+0.3+2+0.1)/4, h.Mean(), 1e-9)

	h.mu.Lock()
	cum := h.cumulative()
	h.mu.Unlock()
	// buckets sorted to 0.1, 0.5, 1, +Inf
	assert.Equal(t, []uint64{2, 3, 3, 4}, cum)
}

func TestHistogramEmptyMean(t *testing.T) {
	h := NewRegistry("").Histogram("x", "x", nil)
	assert.Zero(t, h.Mean())
	assert.Equal(t, DurationBuckets, h.buckets)
}

func TestWritePrometheus(t *testing.T) {
	r := NewRegistry("copyx")
	r.Counter("b_total", "second").Add(2)
	r.Counter("a_total", "first").Inc()
	r.Gauge("size", "size").Set(3)
	r.Histogram("dur_seconds", "dur", []float64{1}).Observe(0.5)

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	out := buf.String()

	assert.Contains(t, out, "# TYPE copyx_a_total counter\ncopyx_a_total 1\n")
	assert.Contains(t, out, "copyx_b_total 2\n")
	assert.Contains(t, out, "copyx_size 3\n")
	assert.Contains(t, out, `copyx_dur_seconds_bucket{le="1"} 1`)
	assert.Contains(t, out, `copyx_dur_seconds_bucket{le="+Inf"} 1`)
	assert.Contains(t, out, "copyx_dur_seconds_count 1\n")
	assert.Less(t, strings.Index(out, "copyx_a_total"), strings.Index(out, "copyx_b_total"))
}

func TestWriteJSON(t *testing.T) {
	m := NewExpander(nil)
	m.Expansions.Inc()
	m.DirectorySnippets.Set(12)
	m.ExpansionDuration.Observe(0.01)

	var buf bytes.Buffer
	require.NoError(t, m.Registry.WriteJSON(&buf))

	var snap map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &snap))
	assert.Equal(t, float64(1), snap["copyx_expansions_total"])
	assert.Equal(t, float64(12), snap["copyx_directory_snippets"])
	assert.Equal(t, float64(1), snap["copyx_expansion_duration_seconds_count"])
	assert.Equal(t, float64(0), snap["copyx_keystrokes_total"])
}

func TestNewExpanderSharesRegistry(t *testing.T) {
	r := NewRegistry(Namespace)
	a := NewExpander(r)
	b := NewExpander(r)
	a.Keystrokes.Inc()
	assert.Equal(t, uint64(1), b.Keystrokes.Value())
}
