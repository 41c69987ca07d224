package emit

// NullEmitter discards all events. Useful as a default when observability
// is not wired up.
type NullEmitter struct{}

// NewNullEmitter creates an emitter that drops every event.
func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

// Emit discards the event.
func (n *NullEmitter) Emit(Event) {}
