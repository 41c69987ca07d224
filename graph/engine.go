package graph

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/CAICAIIs/Auto-Scholar/graph/emit"
	"github.com/CAICAIIs/Auto-Scholar/graph/store"
)

// StartNodeID is the synthetic node ID recorded for state written before any
// workflow node ran: the initial state of a fresh task, and updates injected
// from outside the graph (user approvals, follow-up turns).
const StartNodeID = "start"

// RunStatus reports how a Run ended.
type RunStatus int

const (
	// StatusCompleted means the workflow reached a terminal route.
	StatusCompleted RunStatus = iota

	// StatusPaused means the workflow stopped before an interrupt node
	// and can be resumed with another Run call.
	StatusPaused
)

// RunResult is the outcome of a Run call.
type RunResult[S any] struct {
	State  S
	Status RunStatus

	// Next lists the nodes pending execution when Status is StatusPaused.
	Next []string

	// Step is the last persisted step number.
	Step int
}

// StepInfo describes one completed node execution, delivered to the Run
// callback before the engine moves on.
type StepInfo[S any] struct {
	TaskID string
	Step   int
	NodeID string
	State  S
	Delta  Delta
}

// StepFunc observes completed steps during a Run. Called synchronously from
// the execution loop, so it must return promptly.
type StepFunc[S any] func(info StepInfo[S])

// Options configures Engine execution behavior.
type Options struct {
	// MaxSteps limits a single Run to prevent routing loops.
	// If 0, no limit is enforced.
	MaxSteps int

	// Metrics receives execution metrics. Optional.
	Metrics *Metrics
}

// Engine orchestrates checkpointed workflow execution.
//
// The engine owns the graph topology (nodes and edges), merges node deltas
// into the state under the declared merge schema, persists a checkpoint after
// every step, and pauses before nodes registered via InterruptBefore so a
// human can inspect or amend the state before execution continues.
//
// Type parameter S is the state type shared across the workflow. It must be
// JSON-serializable.
type Engine[S any] struct {
	mu sync.RWMutex

	schema     Schema
	nodes      map[string]Node[S]
	edges      []Edge[S]
	startNode  string
	interrupts map[string]bool

	store   store.Store[S]
	emitter emit.Emitter
	opts    Options
}

// New creates an Engine with the given merge schema, checkpoint store, and
// emitter. The emitter may be nil. Validation of the topology happens on Run.
func New[S any](schema Schema, st store.Store[S], emitter emit.Emitter, opts Options) *Engine[S] {
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	return &Engine[S]{
		schema:     schema,
		nodes:      make(map[string]Node[S]),
		edges:      make([]Edge[S], 0),
		interrupts: make(map[string]bool),
		store:      st,
		emitter:    emitter,
		opts:       opts,
	}
}

// Add registers a node. Node IDs must be unique and non-empty.
func (e *Engine[S]) Add(nodeID string, node Node[S]) error {
	if nodeID == "" {
		return &EngineError{Message: "node ID cannot be empty"}
	}
	if nodeID == StartNodeID {
		return &EngineError{Message: "node ID is reserved: " + StartNodeID, Code: "RESERVED_NODE"}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; exists {
		return &EngineError{Message: "duplicate node ID: " + nodeID, Code: "DUPLICATE_NODE"}
	}
	e.nodes[nodeID] = node
	return nil
}

// StartAt sets the entry node for fresh tasks.
func (e *Engine[S]) StartAt(nodeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; !exists {
		return &EngineError{Message: "start node does not exist: " + nodeID, Code: "NODE_NOT_FOUND"}
	}
	e.startNode = nodeID
	return nil
}

// Connect adds an edge between two nodes. A nil predicate makes the edge
// unconditional. Edges are evaluated in registration order; explicit routing
// via NodeResult.Route takes precedence.
func (e *Engine[S]) Connect(from, to string, predicate Predicate[S]) error {
	if from == "" || to == "" {
		return &EngineError{Message: "edge endpoints cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.edges = append(e.edges, Edge[S]{From: from, To: to, When: predicate})
	return nil
}

// InterruptBefore marks nodes the engine pauses in front of. When execution
// is about to enter a marked node, the engine checkpoints and returns
// StatusPaused instead; a subsequent Run with nil initial state resumes into
// the marked node without pausing again.
func (e *Engine[S]) InterruptBefore(nodeIDs ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range nodeIDs {
		e.interrupts[id] = true
	}
}

// Run executes a task until it completes, pauses, or fails.
//
// A non-nil initial starts a fresh task: the initial state is checkpointed
// as step 0 with the start node pending. A nil initial resumes the task from
// its latest checkpoint; the first pending node executes even if it is an
// interrupt node, so resuming a paused task makes progress.
//
// onStep, if non-nil, observes each completed step after its checkpoint has
// been persisted.
func (e *Engine[S]) Run(ctx context.Context, taskID string, initial *S, onStep StepFunc[S]) (RunResult[S], error) {
	var zero RunResult[S]

	e.mu.RLock()
	startNode := e.startNode
	e.mu.RUnlock()

	if e.schema == nil {
		return zero, &EngineError{Message: "merge schema is required", Code: "MISSING_SCHEMA"}
	}
	if e.store == nil {
		return zero, &EngineError{Message: "store is required", Code: "MISSING_STORE"}
	}
	if startNode == "" {
		return zero, &EngineError{Message: "start node not set (call StartAt before Run)", Code: "NO_START_NODE"}
	}

	var (
		state   S
		pending []string
		step    int
	)

	if initial != nil {
		state = *initial
		pending = []string{startNode}
		if err := e.saveCheckpoint(ctx, taskID, 0, StartNodeID, state, pending); err != nil {
			return zero, err
		}
	} else {
		rec, err := e.store.Latest(ctx, taskID)
		if errors.Is(err, store.ErrNotFound) {
			return zero, &EngineError{Message: "task not found: " + taskID, Code: "TASK_NOT_FOUND"}
		}
		if err != nil {
			return zero, &EngineError{Message: "load checkpoint: " + err.Error(), Code: "STORE_ERROR"}
		}
		if len(rec.Next) == 0 {
			return zero, ErrNotPaused
		}
		state = rec.State
		pending = rec.Next
		step = rec.Step
	}

	// On resume the first pending node runs even if it is an interrupt
	// node; pausing again immediately would make resumption a no-op.
	skipInterrupt := initial == nil

	for {
		if len(pending) == 0 {
			e.emitter.Emit(emit.Event{TaskID: taskID, Step: step, Msg: "task_completed"})
			if e.opts.Metrics != nil {
				e.opts.Metrics.TaskFinished("completed")
			}
			return RunResult[S]{State: state, Status: StatusCompleted, Step: step}, nil
		}

		current := pending[0]

		if e.isInterrupt(current) && !skipInterrupt {
			e.emitter.Emit(emit.Event{
				TaskID: taskID,
				Step:   step,
				NodeID: current,
				Msg:    "paused",
				Meta:   map[string]any{"next": pending},
			})
			if e.opts.Metrics != nil {
				e.opts.Metrics.TaskFinished("paused")
			}
			return RunResult[S]{State: state, Status: StatusPaused, Next: pending, Step: step}, nil
		}
		skipInterrupt = false

		step++
		if e.opts.MaxSteps > 0 && step > e.opts.MaxSteps {
			return zero, ErrMaxStepsExceeded
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		e.mu.RLock()
		nodeImpl, exists := e.nodes[current]
		e.mu.RUnlock()
		if !exists {
			return zero, &EngineError{Message: "node not found during execution: " + current, Code: "NODE_NOT_FOUND"}
		}

		started := time.Now()
		result := nodeImpl.Run(ctx, state)
		if e.opts.Metrics != nil {
			status := "success"
			if result.Err != nil {
				status = "error"
			}
			e.opts.Metrics.ObserveStep(current, time.Since(started), status)
		}
		if result.Err != nil {
			return zero, &NodeError{NodeID: current, Message: result.Err.Error(), Cause: result.Err}
		}

		next, err := Apply(state, result.Delta, e.schema)
		if err != nil {
			return zero, &NodeError{NodeID: current, Message: "merge delta: " + err.Error(), Cause: err}
		}
		state = next

		pending = e.route(current, result.Route, state)

		if err := e.saveCheckpoint(ctx, taskID, step, current, state, pending); err != nil {
			return zero, err
		}

		if onStep != nil {
			onStep(StepInfo[S]{TaskID: taskID, Step: step, NodeID: current, State: state, Delta: result.Delta})
		}
		e.emitter.Emit(emit.Event{
			TaskID: taskID,
			Step:   step,
			NodeID: current,
			Msg:    "node_completed",
			Meta:   map[string]any{"duration_ms": time.Since(started).Milliseconds()},
		})
	}
}

// UpdateState injects a delta into a task's latest checkpoint from outside
// the graph, writing a new checkpoint as if asNode had produced the delta.
//
// The pending nodes of the new checkpoint follow from asNode: StartNodeID
// routes to the graph's start node, any other node ID routes through its
// outgoing edges against the updated state, and an empty asNode keeps the
// previous checkpoint's pending nodes.
func (e *Engine[S]) UpdateState(ctx context.Context, taskID string, delta Delta, asNode string) error {
	rec, err := e.store.Latest(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return &EngineError{Message: "task not found: " + taskID, Code: "TASK_NOT_FOUND"}
	}
	if err != nil {
		return &EngineError{Message: "load checkpoint: " + err.Error(), Code: "STORE_ERROR"}
	}

	state, err := Apply(rec.State, delta, e.schema)
	if err != nil {
		return err
	}

	var next []string
	nodeID := asNode
	switch asNode {
	case "":
		nodeID = StartNodeID
		next = rec.Next
	case StartNodeID:
		e.mu.RLock()
		next = []string{e.startNode}
		e.mu.RUnlock()
	default:
		if to := e.evaluateEdges(asNode, state); to != "" {
			next = []string{to}
		}
	}

	if err := e.saveCheckpoint(ctx, taskID, rec.Step+1, nodeID, state, next); err != nil {
		return err
	}
	e.emitter.Emit(emit.Event{
		TaskID: taskID,
		Step:   rec.Step + 1,
		NodeID: nodeID,
		Msg:    "state_updated",
		Meta:   map[string]any{"next": next},
	})
	return nil
}

// Latest returns the most recent checkpoint for a task.
func (e *Engine[S]) Latest(ctx context.Context, taskID string) (store.Record[S], error) {
	return e.store.Latest(ctx, taskID)
}

// History returns all checkpoints for a task in step order.
func (e *Engine[S]) History(ctx context.Context, taskID string) ([]store.Record[S], error) {
	return e.store.List(ctx, taskID)
}

// Tasks returns the IDs of all known tasks, most recent first.
func (e *Engine[S]) Tasks(ctx context.Context) ([]string, error) {
	return e.store.TaskIDs(ctx)
}

func (e *Engine[S]) isInterrupt(nodeID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.interrupts[nodeID]
}

// route resolves the pending nodes after a node completes. Explicit routing
// wins; otherwise the node's outgoing edges are evaluated. No route means
// the workflow is done.
func (e *Engine[S]) route(current string, route Next, state S) []string {
	if route.Terminal {
		return nil
	}
	if route.To != "" {
		return []string{route.To}
	}
	if to := e.evaluateEdges(current, state); to != "" {
		return []string{to}
	}
	return nil
}

// evaluateEdges returns the destination of the first matching outgoing edge,
// or empty if none match. An edge with a nil predicate always matches.
func (e *Engine[S]) evaluateEdges(fromNode string, state S) string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, edge := range e.edges {
		if edge.From != fromNode {
			continue
		}
		if edge.When == nil || edge.When(state) {
			return edge.To
		}
	}
	return ""
}

func (e *Engine[S]) saveCheckpoint(ctx context.Context, taskID string, step int, nodeID string, state S, next []string) error {
	rec := store.Record[S]{
		CheckpointID: ulid.Make().String(),
		TaskID:       taskID,
		Step:         step,
		NodeID:       nodeID,
		State:        state,
		Next:         next,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.store.Save(ctx, rec); err != nil {
		return &EngineError{Message: "save checkpoint: " + err.Error(), Code: "STORE_ERROR"}
	}
	return nil
}
