package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"copyx/internal/logging"
	"copyx/internal/snippet"
)

// SQLiteOptions tunes a SQLite store.
type SQLiteOptions struct {
	// BusyTimeout is how long a write waits on a locked database.
	BusyTimeout time.Duration

	// PollInterval is how often the store checks for commits made by other
	// connections. Zero disables polling; the store's own writes always
	// notify.
	PollInterval time.Duration

	Logger *slog.Logger
}

// SQLite is a Store backed by a SQLite database.
type SQLite struct {
	db      *sql.DB
	logger  *slog.Logger
	changes notifier
	now     func() time.Time

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// OpenSQLite opens or creates the database at path and runs migrations.
func OpenSQLite(path string, opts SQLiteOptions) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d", path, busy.Milliseconds())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	s := &SQLite{
		db:      db,
		logger:  logging.OrDiscard(opts.Logger),
		changes: newNotifier(),
		now:     time.Now,
		done:    make(chan struct{}),
	}

	if opts.PollInterval > 0 {
		conn, err := db.Conn(context.Background())
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("open poll connection: %w", err)
		}
		s.wg.Add(1)
		go s.pollLoop(conn, opts.PollInterval)
	}

	return s, nil
}

// pollLoop watches PRAGMA data_version on a dedicated connection. The value
// changes whenever another connection commits.
func (s *SQLite) pollLoop(conn *sql.Conn, interval time.Duration) {
	defer s.wg.Done()
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.done
		cancel()
	}()

	var last int64 = -1
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		var version int64
		if err := conn.QueryRowContext(ctx, "PRAGMA data_version").Scan(&version); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("poll snippet database", "error", err)
		} else {
			if last >= 0 && version != last {
				s.changes.notify()
			}
			last = version
		}

		select {
		case <-s.done:
			return
		case <-ticker.C:
		}
	}
}

func (s *SQLite) GetAll(ctx context.Context) ([]snippet.Snippet, error) {
	return queryAll(ctx, s.db)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryAll(ctx context.Context, q querier) ([]snippet.Snippet, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, shortcut, body, label, created_at FROM snippets ORDER BY position, rowid`)
	if err != nil {
		return nil, fmt.Errorf("query snippets: %w", err)
	}
	defer rows.Close()

	var out []snippet.Snippet
	for rows.Next() {
		var (
			sn      snippet.Snippet
			created int64
		)
		if err := rows.Scan(&sn.ID, &sn.Shortcut, &sn.Body, &sn.Label, &created); err != nil {
			return nil, fmt.Errorf("scan snippet: %w", err)
		}
		if created > 0 {
			sn.CreatedAt = time.UnixMilli(created)
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func (s *SQLite) Put(ctx context.Context, sn snippet.Snippet) (snippet.Snippet, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return snippet.Snippet{}, fmt.Errorf("begin put: %w", err)
	}
	defer tx.Rollback()

	existing, err := queryAll(ctx, tx)
	if err != nil {
		return snippet.Snippet{}, err
	}
	_, stored, err := put(existing, sn, s.now())
	if err != nil {
		return snippet.Snippet{}, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE snippets SET shortcut = ?, body = ?, label = ?, created_at = ? WHERE id = ?`,
		stored.Shortcut, stored.Body, stored.Label, millis(stored.CreatedAt), stored.ID)
	if err != nil {
		return snippet.Snippet{}, fmt.Errorf("update snippet: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO snippets (id, shortcut, body, label, created_at, position)
			 VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM snippets))`,
			stored.ID, stored.Shortcut, stored.Body, stored.Label, millis(stored.CreatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return snippet.Snippet{}, fmt.Errorf("%w: %s", ErrDuplicateShortcut, stored.Shortcut)
			}
			return snippet.Snippet{}, fmt.Errorf("insert snippet: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return snippet.Snippet{}, fmt.Errorf("commit put: %w", err)
	}
	s.changes.notify()
	return stored, nil
}

func (s *SQLite) Delete(ctx context.Context, key string) (snippet.Snippet, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return snippet.Snippet{}, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	existing, err := queryAll(ctx, tx)
	if err != nil {
		return snippet.Snippet{}, err
	}
	_, removed, err := remove(existing, key)
	if err != nil {
		return snippet.Snippet{}, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM snippets WHERE id = ?`, removed.ID); err != nil {
		return snippet.Snippet{}, fmt.Errorf("delete snippet: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return snippet.Snippet{}, fmt.Errorf("commit delete: %w", err)
	}
	s.changes.notify()
	return removed, nil
}

func (s *SQLite) ReplaceAll(ctx context.Context, items []snippet.Snippet) error {
	normalized, err := normalize(items, s.now())
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM snippets`); err != nil {
		return fmt.Errorf("clear snippets: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snippets (id, shortcut, body, label, created_at, position) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, sn := range normalized {
		if _, err := stmt.ExecContext(ctx, sn.ID, sn.Shortcut, sn.Body, sn.Label, millis(sn.CreatedAt), i+1); err != nil {
			return fmt.Errorf("insert snippet %s: %w", sn.Shortcut, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	s.changes.notify()
	return nil
}

func (s *SQLite) Changes() <-chan struct{} {
	return s.changes
}

// Close stops polling and closes the database.
func (s *SQLite) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}
