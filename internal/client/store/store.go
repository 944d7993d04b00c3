package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/survivalcodex/codex/internal/client/migrations"
	"github.com/survivalcodex/codex/internal/dbx"
	"github.com/survivalcodex/codex/internal/logging"
)

// Reader is satisfied by both *Store and *Tx.
type Reader interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
}

// Writer is satisfied by both *Store and *Tx.
type Writer interface {
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

type ReadWriter interface {
	Reader
	Writer
}

type Store struct {
	kv
	db *sql.DB
}

// Tx is the handle passed to Update; all its writes commit or roll back
// together.
type Tx struct {
	kv
}

type kv struct {
	q   dbx.DBTX
	log logging.Logger
}

// Open opens (creating if needed) the SQLite database at dsn and applies the
// embedded migrations. ":memory:" gives a private in-process store.
func Open(ctx context.Context, dsn string, l logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single connection: SQLite has one writer and ":memory:" is per-connection
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return New(db, l), nil
}

// New wraps an already migrated database.
func New(db *sql.DB, l logging.Logger) *Store {
	if l == nil {
		l = logging.Discard()
	}
	l = l.With("module", "store")
	return &Store{kv: kv{q: db, log: l}, db: db}
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.Migrations)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migrations up: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Update runs fn in one transaction.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, q dbx.DBTX) error {
		return fn(&Tx{kv: kv{q: q, log: s.log}})
	})
}

// Keys lists stored keys starting with prefix, sorted.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT key FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key`, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	return dbx.CollectRows(rows, func(r *sql.Rows) (string, error) {
		var k string
		err := r.Scan(&k)
		return k, err
	})
}

// Clear removes every key.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM kv`); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	return nil
}

// Get decodes the value under key into dst. It reports false when the key is
// absent or the stored value does not decode (logged as a warning); in that
// case dst must be ignored.
func (k kv) Get(ctx context.Context, key string, dst any) (bool, error) {
	var raw []byte
	err := k.q.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		k.log.Warn(ctx, "corrupt value ignored", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

// Set stores value as JSON. A nil value (including typed nil pointers, maps
// and slices) removes the key.
func (k kv) Set(ctx context.Context, key string, value any) error {
	if isNil(value) {
		return k.Delete(ctx, key)
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = k.q.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, b)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (k kv) Delete(ctx context.Context, key string) error {
	if _, err := k.q.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// Load returns the value under key, or def when it is absent, corrupt or
// unreadable. Read errors are logged, never returned.
func Load[T any](ctx context.Context, r Reader, key string, def T) T {
	var v T
	ok, err := r.Get(ctx, key, &v)
	if err != nil {
		if l, has := r.(interface{ logger() logging.Logger }); has {
			l.logger().Warn(ctx, "read failed, using default", "key", key, "error", err)
		}
		return def
	}
	if !ok {
		return def
	}
	return v
}

func (k kv) logger() logging.Logger { return k.log }
