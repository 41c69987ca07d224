package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed implementation of Store[S].
//
// Suited to single-node deployments that need checkpoints to survive process
// restarts without running a database server. Uses WAL mode so reads do not
// block the writer.
//
// Type parameter S must be JSON-serializable.
type SQLiteStore[S any] struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at path and prepares
// the checkpoint schema. Use ":memory:" for an ephemeral store.
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// SQLite allows one writer at a time; a pool of connections would
	// trade SQLITE_BUSY errors for no benefit.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS checkpoints (
			checkpoint_id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			state TEXT NOT NULL,
			next TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_checkpoints_task ON checkpoints (task_id, step);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create checkpoint schema: %w", err)
	}

	return &SQLiteStore[S]{db: db}, nil
}

// Save appends a checkpoint record.
func (s *SQLiteStore[S]) Save(ctx context.Context, rec Record[S]) error {
	stateJSON, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	nextJSON, err := json.Marshal(rec.Next)
	if err != nil {
		return fmt.Errorf("marshal next: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (checkpoint_id, task_id, step, node_id, state, next, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.CheckpointID, rec.TaskID, rec.Step, rec.NodeID, stateJSON, nextJSON, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// Latest returns the record with the highest step for a task.
func (s *SQLiteStore[S]) Latest(ctx context.Context, taskID string) (Record[S], error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT checkpoint_id, task_id, step, node_id, state, next, created_at
		FROM checkpoints WHERE task_id = ?
		ORDER BY step DESC LIMIT 1`, taskID)
	return scanRecord[S](row)
}

// List returns a task's records in ascending step order.
func (s *SQLiteStore[S]) List(ctx context.Context, taskID string) ([]Record[S], error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT checkpoint_id, task_id, step, node_id, state, next, created_at
		FROM checkpoints WHERE task_id = ?
		ORDER BY step ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	var recs []Record[S]
	for rows.Next() {
		rec, err := scanRecord[S](rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs, nil
}

// TaskIDs returns all task IDs ordered by most recent activity first.
func (s *SQLiteStore[S]) TaskIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id FROM checkpoints
		GROUP BY task_id
		ORDER BY MAX(checkpoint_id) DESC`)
	if err != nil {
		return nil, fmt.Errorf("query task ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan task id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task ids: %w", err)
	}
	return ids, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore[S]) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord[S any](row rowScanner) (Record[S], error) {
	var (
		rec       Record[S]
		stateJSON []byte
		nextJSON  []byte
		createdAt time.Time
	)
	err := row.Scan(&rec.CheckpointID, &rec.TaskID, &rec.Step, &rec.NodeID, &stateJSON, &nextJSON, &createdAt)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("scan checkpoint: %w", err)
	}
	if err := json.Unmarshal(stateJSON, &rec.State); err != nil {
		return rec, fmt.Errorf("decode state: %w", err)
	}
	if err := json.Unmarshal(nextJSON, &rec.Next); err != nil {
		return rec, fmt.Errorf("decode next: %w", err)
	}
	rec.CreatedAt = createdAt
	return rec, nil
}
