package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vanpelt/livesync/internal/models"

	_ "modernc.org/sqlite"
)

// SQLite is a Store backed by a single SQLite database file
type SQLite struct {
	db *sql.DB
	// writes read-modify-write the fields blob, so they are serialized here
	// rather than relying on SQLite lock upgrades
	writeMu sync.Mutex
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens (creating if needed) the database at path
func NewSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set store journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set store busy timeout: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS resources (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL DEFAULT '',
	fields_json TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize store schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*models.Resource, error) {
	return s.get(ctx, s.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLite) get(ctx context.Context, q queryRower, id string) (*models.Resource, error) {
	var kind, fieldsJSON, updatedAt string
	err := q.QueryRowContext(ctx,
		`SELECT kind, fields_json, updated_at FROM resources WHERE id = ?`, id,
	).Scan(&kind, &fieldsJSON, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("query resource %q: %w", id, err)
	}
	return decodeRow(id, kind, fieldsJSON, updatedAt)
}

func (s *SQLite) List(ctx context.Context) ([]*models.Resource, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, kind, fields_json, updated_at FROM resources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Resource, 0)
	for rows.Next() {
		var id, kind, fieldsJSON, updatedAt string
		if err := rows.Scan(&id, &kind, &fieldsJSON, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan resource row: %w", err)
		}
		res, err := decodeRow(id, kind, fieldsJSON, updatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resource rows: %w", err)
	}
	return out, nil
}

func (s *SQLite) Put(ctx context.Context, res *models.Resource) (*models.Resource, error) {
	if res == nil || res.ID == "" {
		return nil, fmt.Errorf("put: resource id is required")
	}
	stored := res.Clone()
	stored.UpdatedAt = time.Now().UTC()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.save(ctx, s.db, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *SQLite) Apply(ctx context.Context, id string, fields map[string]any, resetSection string) (*models.Resource, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin apply: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := s.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	applyFields(res, fields, resetSection)
	if err := s.save(ctx, tx, res); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit apply %q: %w", id, err)
	}
	return res, nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete resource %q: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete resource %q: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLite) save(ctx context.Context, e execer, res *models.Resource) error {
	payload, err := json.Marshal(res.Fields)
	if err != nil {
		return fmt.Errorf("marshal resource %q fields: %w", res.ID, err)
	}

	_, err = e.ExecContext(ctx,
		`INSERT INTO resources (id, kind, fields_json, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		 kind = excluded.kind,
		 fields_json = excluded.fields_json,
		 updated_at = excluded.updated_at`,
		res.ID,
		res.Kind,
		string(payload),
		res.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save resource %q: %w", res.ID, err)
	}
	return nil
}

func decodeRow(id, kind, fieldsJSON, updatedAt string) (*models.Resource, error) {
	res := &models.Resource{ID: id, Kind: kind, Fields: make(map[string]any)}
	if err := json.Unmarshal([]byte(fieldsJSON), &res.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal resource %q fields: %w", id, err)
	}
	if res.Fields == nil {
		res.Fields = make(map[string]any)
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		res.UpdatedAt = t
	}
	return res, nil
}
