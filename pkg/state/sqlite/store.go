// Package sqlite provides a SQLite-backed realization store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	ensemble "github.com/goliatone/go-ensemble"
	"github.com/goliatone/go-ensemble/pkg/state"
)

const schema = `CREATE TABLE IF NOT EXISTS realizations (
  ensemble    TEXT    NOT NULL,
  idx         INTEGER NOT NULL,
  snapshot_id TEXT    NOT NULL,
  updated_at  INTEGER NOT NULL,
  extra       TEXT    NOT NULL DEFAULT '{}',
  document    TEXT    NOT NULL,
  PRIMARY KEY (ensemble, idx)
)`

// Store persists realizations in SQLite, one row per realization holding
// the single-document rendering from state.Marshal.
type Store struct {
	sqlDB *sql.DB
	opts  []ensemble.Option
	now   func() time.Time
}

var _ state.Store = (*Store)(nil)
var _ state.Lister = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store at path and creates its table. Use ":memory:"
// for a throwaway store. opts configure the restored realizations.
func Open(path string, opts ...ensemble.Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}
	// one connection keeps ":memory:" databases alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite: ping db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB, opts: opts, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Load(ctx context.Context, ref state.Ref) (*ensemble.DetachedRealization, state.Meta, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, state.Meta{}, false, err
	}
	if _, err := ref.Identifier(); err != nil {
		return nil, state.Meta{}, false, err
	}
	var (
		meta      state.Meta
		updatedAt int64
		extra     string
		document  string
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT snapshot_id, updated_at, extra, document FROM realizations WHERE ensemble = ? AND idx = ?`,
		strings.TrimSpace(ref.Ensemble), ref.Index,
	).Scan(&meta.SnapshotID, &updatedAt, &extra, &document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, state.Meta{}, false, nil
	}
	if err != nil {
		return nil, state.Meta{}, false, fmt.Errorf("sqlite: load %s/%d: %w", ref.Ensemble, ref.Index, err)
	}
	meta.UpdatedAt = fromMillis(updatedAt)
	if err := json.Unmarshal([]byte(extra), &meta.Extra); err != nil {
		return nil, state.Meta{}, false, fmt.Errorf("sqlite: decode extra: %w", err)
	}
	r, err := state.Unmarshal([]byte(document), s.opts...)
	if err != nil {
		return nil, state.Meta{}, false, err
	}
	return r, meta, true, nil
}

func (s *Store) Save(ctx context.Context, ref state.Ref, r ensemble.Realization, meta state.Meta) (state.Meta, error) {
	if err := ctx.Err(); err != nil {
		return state.Meta{}, err
	}
	if _, err := ref.Identifier(); err != nil {
		return state.Meta{}, err
	}
	if r == nil || r.Index() != ref.Index {
		return state.Meta{}, fmt.Errorf("%w: realization does not match index %d", state.ErrInvalidRef, ref.Index)
	}
	document, err := state.Marshal(r)
	if err != nil {
		return state.Meta{}, err
	}
	saved := meta
	if saved.UpdatedAt.IsZero() {
		saved.UpdatedAt = s.now().UTC()
	}
	if saved.SnapshotID == "" {
		saved.SnapshotID = uuid.NewString()
	}
	extra := []byte("{}")
	if len(saved.Extra) > 0 {
		if extra, err = json.Marshal(saved.Extra); err != nil {
			return state.Meta{}, fmt.Errorf("sqlite: encode extra: %w", err)
		}
	}

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO realizations (ensemble, idx, snapshot_id, updated_at, extra, document)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(ensemble, idx) DO UPDATE SET
		   snapshot_id = excluded.snapshot_id,
		   updated_at = excluded.updated_at,
		   extra = excluded.extra,
		   document = excluded.document`,
		strings.TrimSpace(ref.Ensemble), ref.Index, saved.SnapshotID, toMillis(saved.UpdatedAt), string(extra), string(document),
	)
	if err != nil {
		return state.Meta{}, fmt.Errorf("sqlite: save %s/%d: %w", ref.Ensemble, ref.Index, err)
	}
	saved.UpdatedAt = fromMillis(toMillis(saved.UpdatedAt))
	return saved, nil
}

// List returns the saved indices of the named ensemble in ascending order.
func (s *Store) List(ctx context.Context, name string) ([]int, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT idx FROM realizations WHERE ensemble = ? ORDER BY idx`, strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list %s: %w", name, err)
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var index int
		if err := rows.Scan(&index); err != nil {
			return nil, fmt.Errorf("sqlite: list %s: %w", name, err)
		}
		out = append(out, index)
	}
	return out, rows.Err()
}
