// Package graph provides the checkpointed workflow engine: nodes, edges,
// merge-policy state updates, pause/resume, and per-step persistence.
package graph

import "errors"

// ErrMaxStepsExceeded indicates the run reached the step limit without
// terminating. Guards against routing loops.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// ErrUnknownField indicates a node delta referenced a field that is not
// declared in the merge schema.
var ErrUnknownField = errors.New("delta field not declared in merge schema")

// ErrNotPaused indicates a resume was requested for a task that has no
// pending node to resume into.
var ErrNotPaused = errors.New("task has no pending node")

// EngineError is a structured error from engine operations.
type EngineError struct {
	Message string
	Code    string
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// NodeError wraps a failure inside a node execution.
type NodeError struct {
	NodeID  string
	Message string
	Cause   error
}

func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

func (e *NodeError) Unwrap() error { return e.Cause }
