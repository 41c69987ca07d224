package emit

import "sync"

// BufferedEmitter stores events in memory, organized by task ID.
//
// Intended for tests and post-execution analysis. Events accumulate without
// bound, so long-lived processes should Clear finished tasks.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// NewBufferedEmitter creates an empty in-memory emitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit stores the event under its task ID.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.TaskID] = append(b.events[event.TaskID], event)
}

// History returns all events for a task in emission order.
func (b *BufferedEmitter) History(taskID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[taskID]
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// Clear removes events for one task, or for all tasks when taskID is empty.
func (b *BufferedEmitter) Clear(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if taskID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, taskID)
}
