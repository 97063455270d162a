package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copyx/internal/snippet"
)

type backend struct {
	name string
	open func(t *testing.T) Store
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) Store {
			return NewMemory()
		}},
		{"file", func(t *testing.T) Store {
			s, err := OpenFile(filepath.Join(t.TempDir(), "snippets.json"), nil)
			require.NoError(t, err)
			return s
		}},
		{"sqlite", func(t *testing.T) Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "snippets.db"), SQLiteOptions{})
			require.NoError(t, err)
			return s
		}},
	}
}

func drain(ch <-chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func shortcuts(items []snippet.Snippet) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = s.Shortcut
	}
	return out
}

func TestStoreContract(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			st := b.open(t)
			defer st.Close()

			all, err := st.GetAll(ctx)
			require.NoError(t, err)
			assert.Empty(t, all)

			em, err := st.Put(ctx, snippet.Snippet{Shortcut: "@em", Body: "you@example.com", Label: "Email"})
			require.NoError(t, err)
			assert.NotEmpty(t, em.ID)
			assert.False(t, em.CreatedAt.IsZero())

			select {
			case <-st.Changes():
			default:
				t.Fatal("Put should notify")
			}

			_, err = st.Put(ctx, snippet.Snippet{Shortcut: "sig", Body: "Regards"})
			require.NoError(t, err)
			_, err = st.Put(ctx, snippet.Snippet{Shortcut: "addr", Body: "1 Main St"})
			require.NoError(t, err)

			all, err = st.GetAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"@em", "sig", "addr"}, shortcuts(all), "insertion order")

			// Duplicate shortcut on a new snippet is rejected.
			_, err = st.Put(ctx, snippet.Snippet{Shortcut: "sig", Body: "other"})
			assert.ErrorIs(t, err, ErrDuplicateShortcut)

			// Updating in place keeps position and creation time.
			em.Body = "me@example.com"
			em.CreatedAt = time.Time{}
			updated, err := st.Put(ctx, em)
			require.NoError(t, err)
			assert.Equal(t, em.ID, updated.ID)
			all, err = st.GetAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"@em", "sig", "addr"}, shortcuts(all))
			assert.Equal(t, "me@example.com", all[0].Body)
			assert.False(t, all[0].CreatedAt.IsZero())

			// Delete by shortcut, then by id.
			drain(st.Changes())
			removed, err := st.Delete(ctx, "sig")
			require.NoError(t, err)
			assert.Equal(t, "Regards", removed.Body)
			select {
			case <-st.Changes():
			default:
				t.Fatal("Delete should notify")
			}
			_, err = st.Delete(ctx, em.ID)
			require.NoError(t, err)
			_, err = st.Delete(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			all, err = st.GetAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"addr"}, shortcuts(all))

			// A new snippet may take a freed shortcut and lands at the end.
			_, err = st.Put(ctx, snippet.Snippet{Shortcut: "sig", Body: "Cheers"})
			require.NoError(t, err)
			all, err = st.GetAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"addr", "sig"}, shortcuts(all))
		})
	}
}

func TestStoreReplaceAll(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			st := b.open(t)
			defer st.Close()

			_, err := st.Put(ctx, snippet.Snippet{Shortcut: "old", Body: "x"})
			require.NoError(t, err)

			err = st.ReplaceAll(ctx, []snippet.Snippet{
				{Shortcut: "z", Body: "last letter"},
				{ID: "legacy-1", Shortcut: "a", Body: "first letter"},
			})
			require.NoError(t, err)

			all, err := st.GetAll(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, []string{"z", "a"}, shortcuts(all))
			assert.NotEmpty(t, all[0].ID)
			assert.Equal(t, "legacy-1", all[1].ID)

			err = st.ReplaceAll(ctx, []snippet.Snippet{
				{Shortcut: "dup", Body: "1"},
				{Shortcut: "dup", Body: "2"},
			})
			assert.ErrorIs(t, err, ErrDuplicateShortcut)

			all, err = st.GetAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"z", "a"}, shortcuts(all), "failed replace leaves collection intact")
		})
	}
}

func TestStoreRejectsInvalid(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			st := b.open(t)
			defer st.Close()

			_, err := st.Put(context.Background(), snippet.Snippet{Shortcut: "", Body: "x"})
			assert.ErrorIs(t, err, ErrInvalidSnippet)
			_, err = st.Put(context.Background(), snippet.Snippet{Shortcut: "two words", Body: "x"})
			assert.ErrorIs(t, err, ErrInvalidSnippet)
		})
	}
}

func TestMergeSkipsTakenShortcuts(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	_, err := st.Put(ctx, snippet.Snippet{Shortcut: "sig", Body: "mine"})
	require.NoError(t, err)

	added, skipped, err := Merge(ctx, st, []snippet.Snippet{
		{Shortcut: "sig", Body: "theirs"},
		{Shortcut: "brb", Body: "be right back"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	require.Len(t, skipped, 1)
	assert.Equal(t, "theirs", skipped[0].Body)

	all, err := st.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sig", "brb"}, shortcuts(all))
	assert.Equal(t, "mine", all[0].Body)
}

func TestMergeLegacyCollections(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			st := b.open(t)
			defer st.Close()

			for _, doc := range []string{
				`[{"shortcut": "@a", "snippet": "AAA", "label": ""}]`,
				`[{"shortcut": "@b", "snippet": "BBB", "label": ""}]`,
			} {
				items, err := snippet.Decode([]byte(doc))
				require.NoError(t, err)
				require.True(t, items[0].HasLegacyID())

				added, skipped, err := Merge(ctx, st, items)
				require.NoError(t, err)
				assert.Equal(t, 1, added)
				assert.Empty(t, skipped)
			}

			all, err := st.GetAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"@a", "@b"}, shortcuts(all))
			assert.Equal(t, "AAA", all[0].Body)
			for _, s := range all {
				assert.False(t, s.HasLegacyID(), s.ID)
			}
		})
	}
}

func TestFilter(t *testing.T) {
	items := []snippet.Snippet{
		{Shortcut: "@em", Body: "you@example.com", Label: "Email"},
		{Shortcut: "sig", Body: "Regards", Label: "Signature"},
	}
	assert.Len(t, Filter(items, ""), 2)
	assert.Equal(t, []string{"sig"}, shortcuts(Filter(items, "regard")))
	assert.Empty(t, Filter(items, "nope"))
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Close())
	_, err := m.GetAll(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	f, err := OpenFile(filepath.Join(t.TempDir(), "s.json"), nil)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
	_, err = f.Put(ctx, snippet.Snippet{Shortcut: "x"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFileReadsLegacyCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snippets.json")
	legacy := `{"snippets": [{"shortcut": "ty", "snippet": "thank you", "label": ""}]}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0600))

	f, err := OpenFile(path, nil)
	require.NoError(t, err)
	defer f.Close()

	all, err := f.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "legacy-0", all[0].ID)

	// The next write rewrites it as a plain array.
	_, err = f.Put(context.Background(), snippet.Snippet{Shortcut: "np", Body: "no problem"})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, byte('['), data[0])
}

func TestFileRejectsCorruptCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snippets.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"shortcut": ""}]`), 0600))

	f, err := OpenFile(path, nil)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.GetAll(context.Background())
	assert.True(t, errors.Is(err, snippet.ErrInvalidCollection), "got %v", err)
}

func TestFileWatchSeesExternalEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snippets.json")
	f, err := OpenFile(path, nil)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.Watch())

	data, err := snippet.Encode([]snippet.Snippet{{ID: "1", Shortcut: "ext", Body: "external"}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))

	select {
	case <-f.Changes():
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification for external write")
	}

	all, err := f.GetAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ext"}, shortcuts(all))
}

func TestSQLiteMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snippets.db")
	s, err := OpenSQLite(path, SQLiteOptions{})
	require.NoError(t, err)

	version, err := SchemaVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, LatestVersion(), version)
	require.NoError(t, s.Close())

	// Reopening does not reapply.
	s, err = OpenSQLite(path, SQLiteOptions{})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, MigrateDB(s.db))
}

func TestSQLitePollSeesOtherConnections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snippets.db")
	s, err := OpenSQLite(path, SQLiteOptions{PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	defer s.Close()

	// Let the poller record the initial data_version.
	time.Sleep(50 * time.Millisecond)
	drain(s.Changes())

	other, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	require.NoError(t, err)
	defer other.Close()
	_, err = other.Exec(`INSERT INTO snippets (id, shortcut, body, label, created_at, position) VALUES ('x', 'ext', 'external', '', 0, 99)`)
	require.NoError(t, err)

	select {
	case <-s.Changes():
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification for write from another connection")
	}

	all, err := s.GetAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ext"}, shortcuts(all))
}

func TestOpenByType(t *testing.T) {
	dir := t.TempDir()

	js, err := Open(TypeJSON, filepath.Join(dir, "snippets.json"), SQLiteOptions{})
	require.NoError(t, err)
	defer js.Close()
	_, ok := js.(Watcher)
	assert.True(t, ok, "json store can watch its file")

	db, err := Open(TypeSQLite, filepath.Join(dir, "snippets.db"), SQLiteOptions{})
	require.NoError(t, err)
	defer db.Close()
	_, ok = db.(Watcher)
	assert.False(t, ok)

	_, err = Open("xml", filepath.Join(dir, "snippets.xml"), SQLiteOptions{})
	assert.Error(t, err)
}
