package graph

// Edge is a connection between two nodes in the workflow graph.
//
// Edges are evaluated in registration order after a node completes without an
// explicit route. An edge with a nil predicate is unconditional; the first
// matching edge wins.
type Edge[S any] struct {
	From string
	To   string
	When Predicate[S]
}

// Predicate evaluates state to decide whether an edge should be traversed.
// Predicates must be pure: deterministic and free of side effects.
type Predicate[S any] func(state S) bool
