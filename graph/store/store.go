// Package store provides persistence backends for workflow checkpoints.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested task has no persisted checkpoints.
var ErrNotFound = errors.New("not found")

// Record is a single checkpoint: the full state after one node executed,
// plus the nodes pending execution. A task's history is the ordered list of
// its records; the latest record is sufficient to resume the task.
type Record[S any] struct {
	// CheckpointID uniquely identifies this record. IDs are lexically
	// sortable (ULID) so insertion order matches ID order.
	CheckpointID string `json:"checkpoint_id"`

	// TaskID groups records belonging to one workflow execution.
	TaskID string `json:"task_id"`

	// Step is the sequential step number within the task, starting at 1.
	Step int `json:"step"`

	// NodeID is the node that produced this state. The synthetic value
	// "start" marks records written before any node ran, such as the
	// initial state or an externally injected update.
	NodeID string `json:"node_id"`

	// State is the full workflow state after the step completed.
	State S `json:"state"`

	// Next lists node IDs pending execution. Empty means the task is
	// finished; a non-empty list means it is paused or in flight.
	Next []string `json:"next"`

	CreatedAt time.Time `json:"created_at"`
}

// Store persists checkpoint records for workflow tasks.
//
// Implementations must be safe for concurrent use.
type Store[S any] interface {
	// Save appends a checkpoint record. Records for the same task must
	// be retrievable in step order.
	Save(ctx context.Context, rec Record[S]) error

	// Latest returns the record with the highest step for a task.
	// Returns ErrNotFound if the task has no records.
	Latest(ctx context.Context, taskID string) (Record[S], error)

	// List returns all records for a task in ascending step order.
	// Returns ErrNotFound if the task has no records.
	List(ctx context.Context, taskID string) ([]Record[S], error)

	// TaskIDs returns the IDs of all tasks with at least one record,
	// ordered by most recent activity first.
	TaskIDs(ctx context.Context) ([]string, error)
}
