package modelstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"nlud/internal/common/fsutil"
	"nlud/pkg/types"
)

// SQLiteStore keeps models in a single SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, errors.New("sqlite store: empty path")
	}
	p, err := fsutil.ExpandHome(dbPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", p+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS models (
		id          TEXT PRIMARY KEY,
		hash        TEXT NOT NULL,
		language    TEXT NOT NULL,
		started_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		input       TEXT NOT NULL,
		output      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_models_language ON models(language);
	`)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) HasModel(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM models WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetModel(ctx context.Context, id string) (*types.Model, error) {
	var m types.Model
	var started, finished string
	err := s.db.QueryRowContext(ctx,
		`SELECT hash, language, started_at, finished_at, input, output FROM models WHERE id = ?`, id).
		Scan(&m.Hash, &m.LanguageCode, &started, &finished, &m.Data.Input, &m.Data.Output)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrModelNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	m.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	m.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
	return &m, nil
}

func (s *SQLiteStore) PutModel(ctx context.Context, id string, m types.Model) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO models (id, hash, language, started_at, finished_at, input, output)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		hash = excluded.hash,
		language = excluded.language,
		started_at = excluded.started_at,
		finished_at = excluded.finished_at,
		input = excluded.input,
		output = excluded.output`,
		id, m.Hash, m.LanguageCode,
		m.StartedAt.UTC().Format(time.RFC3339Nano), m.FinishedAt.UTC().Format(time.RFC3339Nano),
		m.Data.Input, m.Data.Output)
	return err
}

func (s *SQLiteStore) DeleteModel(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM models WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) ListModels(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM models WHERE substr(id, 1, length(?)) = ? ORDER BY id`, prefix, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
