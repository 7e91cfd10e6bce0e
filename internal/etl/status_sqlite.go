package etl

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStatusStore is a durable StatusStore. It is a drop-in replacement for
// MemoryStatusStore for deployments that need task state to survive restarts.
type SQLiteStatusStore struct {
	db *sql.DB
}

const statusMigration = `
CREATE TABLE IF NOT EXISTS etl_tasks (
	task_id    TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	detail     TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// NewSQLiteStatusStore opens (or creates) the status database at dsn and
// configures WAL mode.
func NewSQLiteStatusStore(dsn string) (*SQLiteStatusStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "status: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "status: exec %s", pragma)
		}
	}
	if _, err := db.Exec(statusMigration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "status: migrate")
	}
	return &SQLiteStatusStore{db: db}, nil
}

func (s *SQLiteStatusStore) Get(ctx context.Context, taskID string) (*StatusDoc, error) {
	var status, detailJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT status, detail FROM etl_tasks WHERE task_id = ?`, taskID,
	).Scan(&status, &detailJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "status: get task %s", taskID)
	}

	doc := &StatusDoc{Status: Phase(status)}
	if err := json.Unmarshal([]byte(detailJSON), &doc.Detail); err != nil {
		return nil, eris.Wrapf(err, "status: decode detail for task %s", taskID)
	}
	return doc, nil
}

func (s *SQLiteStatusStore) Set(ctx context.Context, taskID string, phase Phase, detail Detail) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return eris.Wrap(err, "status: encode detail")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO etl_tasks (task_id, status, detail, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(task_id) DO UPDATE SET status = excluded.status,
		 detail = excluded.detail, updated_at = excluded.updated_at`,
		taskID, string(phase), string(detailJSON), time.Now().UTC(),
	)
	return eris.Wrapf(err, "status: set task %s", taskID)
}

// Close closes the underlying database.
func (s *SQLiteStatusStore) Close() error {
	return s.db.Close()
}
