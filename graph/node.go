package graph

import "context"

// Node is a processing unit in the workflow graph. It receives the current
// state, performs its work (LM calls, retrieval, validation), and returns a
// NodeResult carrying a partial state update and a routing decision.
//
// Nodes must treat the state as read-only: all mutations travel through the
// Delta and are applied by the engine under the declared merge schema.
type Node[S any] interface {
	Run(ctx context.Context, state S) NodeResult[S]
}

// NodeResult is the output of a node execution.
type NodeResult[S any] struct {
	// Delta is the partial state update produced by this node, keyed by
	// field name. Fields not present are left unchanged.
	Delta Delta

	// Route specifies the next hop. Zero value falls back to edge routing.
	Route Next

	// Err halts the run when non-nil.
	Err error
}

// Next specifies where execution goes after a node completes.
//
//   - Terminal: stop the run.
//   - To: go to a specific node, overriding edges.
//   - zero value: evaluate the node's outgoing edges.
type Next struct {
	To       string
	Terminal bool
}

// Stop returns a terminal routing decision.
func Stop() Next { return Next{Terminal: true} }

// Goto routes explicitly to nodeID, bypassing edge predicates.
func Goto(nodeID string) Next { return Next{To: nodeID} }

// NodeFunc adapts a plain function to the Node interface.
type NodeFunc[S any] func(ctx context.Context, state S) NodeResult[S]

// Run implements Node.
func (f NodeFunc[S]) Run(ctx context.Context, state S) NodeResult[S] {
	return f(ctx, state)
}
