package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copyx/internal/config"
	"copyx/internal/logging"
	"copyx/internal/metrics"
	"copyx/internal/snippet"
)

func TestIMEConfigOutlastsClipboardTimeout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Placeholders.ClipboardTimeoutMs = 3000
	cfg.IME.EngineName = "copyx-test"

	c := imeConfig(cfg)
	assert.Greater(t, c.DispatchTimeout, cfg.ClipboardTimeout())
	assert.Equal(t, "copyx-test", c.EngineName)
}

func TestApplyLogLevel(t *testing.T) {
	log, err := logging.New(&logging.Config{
		Level:    logging.LevelWarn,
		Format:   logging.FormatJSON,
		Output:   "file",
		FilePath: filepath.Join(t.TempDir(), "copyxd.log"),
		MaxSize:  1,
	})
	require.NoError(t, err)
	defer log.Close()
	ctx := context.Background()

	_, err = applyLogLevel(log, "loud")
	assert.Error(t, err)
	assert.False(t, log.Enabled(ctx, logging.LevelInfo))

	level, err := applyLogLevel(log, "debug")
	require.NoError(t, err)
	assert.Equal(t, logging.LevelDebug, level)
	assert.True(t, log.Enabled(ctx, logging.LevelDebug))
}

func TestUnreachable(t *testing.T) {
	items := []snippet.Snippet{
		{Shortcut: "abcd"},
		{Shortcut: "abcde"},
		{Shortcut: "ab"},
	}
	assert.Equal(t, []string{"abcde"}, unreachable(items, 4))
	assert.Empty(t, unreachable(items, 0))
}

func TestWriteSnapshot(t *testing.T) {
	dir := t.TempDir()
	m := metrics.NewExpander(nil)
	m.Expansions.Add(2)

	prom := filepath.Join(dir, "data", "metrics.prom")
	require.NoError(t, writeSnapshot(prom, m.Registry.WritePrometheus))
	data, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(data), "copyx_expansions_total 2")

	err = writeSnapshot(prom, func(io.Writer) error { return errors.New("boom") })
	assert.Error(t, err)
	data, err = os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(data), "copyx_expansions_total 2", "failed write keeps the old snapshot")

	entries, err := os.ReadDir(filepath.Dir(prom))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".metrics-"), e.Name())
	}
}
