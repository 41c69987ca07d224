package emit

// Emitter receives observability events from workflow execution.
//
// Implementations must be safe for concurrent use and must not block node
// execution; slow backends should buffer or drop.
type Emitter interface {
	// Emit sends an event to the configured backend. Emit must not panic;
	// backend errors are handled internally.
	Emit(event Event)
}
