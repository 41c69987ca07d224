// Package emit defines the observability event stream produced by the
// workflow engine.
package emit

// Event is an observability event emitted during workflow execution.
type Event struct {
	// TaskID identifies the workflow execution that emitted this event.
	TaskID string

	// Step is the sequential step number (1-indexed). Zero for
	// task-level events such as start and pause.
	Step int

	// NodeID identifies the node involved, empty for task-level events.
	NodeID string

	// Msg is a short machine-checkable label, e.g. "node_completed",
	// "checkpoint_saved", "paused", "task_completed".
	Msg string

	// Meta carries additional structured data. Common keys:
	//   - "duration_ms": node execution duration
	//   - "error": failure details
	//   - "next": pending node IDs after a pause
	Meta map[string]any
}
