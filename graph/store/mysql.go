package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store[S].
//
// Suited to deployments where multiple workers share checkpoint history or
// tasks must survive host failures. Uses connection pooling.
//
// The DSN follows the go-sql-driver format, e.g.
//
//	user:pass@tcp(localhost:3306)/autoscholar?parseTime=true
//
// parseTime=true is required so created_at scans into time.Time.
//
// Type parameter S must be JSON-serializable.
type MySQLStore[S any] struct {
	db *sql.DB
}

// NewMySQLStore opens a MySQL-backed store and prepares the checkpoint schema.
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS checkpoints (
			checkpoint_id VARCHAR(26) PRIMARY KEY,
			task_id VARCHAR(64) NOT NULL,
			step INT NOT NULL,
			node_id VARCHAR(64) NOT NULL,
			state JSON NOT NULL,
			next JSON NOT NULL,
			created_at TIMESTAMP(6) NOT NULL,
			INDEX idx_task_step (task_id, step)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create checkpoint schema: %w", err)
	}

	return &MySQLStore[S]{db: db}, nil
}

// Save appends a checkpoint record.
func (m *MySQLStore[S]) Save(ctx context.Context, rec Record[S]) error {
	stateJSON, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	nextJSON, err := json.Marshal(rec.Next)
	if err != nil {
		return fmt.Errorf("marshal next: %w", err)
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO checkpoints (checkpoint_id, task_id, step, node_id, state, next, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.CheckpointID, rec.TaskID, rec.Step, rec.NodeID, stateJSON, nextJSON, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// Latest returns the record with the highest step for a task.
func (m *MySQLStore[S]) Latest(ctx context.Context, taskID string) (Record[S], error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT checkpoint_id, task_id, step, node_id, state, next, created_at
		FROM checkpoints WHERE task_id = ?
		ORDER BY step DESC LIMIT 1`, taskID)
	return scanRecord[S](row)
}

// List returns a task's records in ascending step order.
func (m *MySQLStore[S]) List(ctx context.Context, taskID string) ([]Record[S], error) {
	rows, err := m.db.QueryContext(ctx, `
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
func (m *MySQLStore[S]) TaskIDs(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `
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

// Close releases the underlying connection pool.
func (m *MySQLStore[S]) Close() error {
	return m.db.Close()
}
