// Package stream provides the event pipeline between workflow execution and
// SSE consumers: a debounced token queue that coalesces model tokens into
// readable chunks, and an incremental JSON field extractor for streaming a
// single field out of a structured response.
package stream

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Event is one item on the stream: a workflow log, a token chunk, a plan,
// a cost update, a heartbeat, or the completion payload.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Standard event types.
const (
	EventLog        = "log"
	EventToken      = "token"
	EventPlan       = "research_plan"
	EventReflection = "reflection"
	EventCost       = "cost_update"
	EventCompleted  = "completed"
	EventError      = "error"
	EventHeartbeat  = "heartbeat"
)

const (
	// debounceWindow is how long tokens accumulate before a timer flush.
	debounceWindow = 200 * time.Millisecond

	// heartbeatInterval is how long a consumer waits in silence before
	// receiving a keepalive.
	heartbeatInterval = 15 * time.Second

	defaultBuffer = 256
)

// boundaryChars end a sentence or line; a token containing one flushes the
// pending buffer immediately so chunks break at natural points.
const boundaryChars = ".!?。！？\n"

// Stats counts queue throughput. The point of debouncing is fewer, larger
// deliveries; TokensIn/Flushes is the coalescing ratio.
type Stats struct {
	TokensIn int
	Flushes  int
}

// Ratio returns tokens delivered per flush, 0 when nothing flushed yet.
func (s Stats) Ratio() float64 {
	if s.Flushes == 0 {
		return 0
	}
	return float64(s.TokensIn) / float64(s.Flushes)
}

// Queue is a debounced event queue for one streaming consumer.
//
// Model tokens pushed via PushToken accumulate until a boundary character
// arrives or the debounce window elapses, then flush as a single token
// event. Non-token events flush pending tokens first so ordering between
// tokens and logs is preserved. Close performs a final flush and terminates
// the consumer stream.
type Queue struct {
	mu        sync.Mutex
	ch        chan Event
	pending   strings.Builder
	lastFlush time.Time
	timer     *time.Timer
	closed    bool
	stats     Stats

	window    time.Duration
	heartbeat time.Duration
}

// NewQueue creates a queue with the default buffer, debounce window, and
// heartbeat interval.
func NewQueue() *Queue {
	return &Queue{
		ch:        make(chan Event, defaultBuffer),
		lastFlush: time.Now(),
		window:    debounceWindow,
		heartbeat: heartbeatInterval,
	}
}

// Publish enqueues a non-token event, flushing any pending tokens first.
// Events published after Close are dropped.
func (q *Queue) Publish(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.flushLocked()
	q.send(ev)
}

// PushToken adds a model token to the pending buffer. Tokens containing a
// boundary character flush immediately; otherwise a timer flush fires once
// the debounce window has elapsed.
func (q *Queue) PushToken(token string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.pending.WriteString(token)
	q.stats.TokensIn++

	if strings.ContainsAny(token, boundaryChars) {
		q.flushLocked()
		return
	}
	if q.timer == nil {
		q.timer = time.AfterFunc(q.window, q.onTimer)
	}
}

// onTimer flushes the buffer if the window has truly elapsed. A flush
// triggered by a boundary character in the meantime resets the clock, in
// which case the timer re-arms for the remainder.
func (q *Queue) onTimer() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.timer = nil
	if q.closed || q.pending.Len() == 0 {
		return
	}
	if elapsed := time.Since(q.lastFlush); elapsed < q.window {
		q.timer = time.AfterFunc(q.window-elapsed, q.onTimer)
		return
	}
	q.flushLocked()
}

// Close flushes remaining tokens and ends the consumer stream.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.flushLocked()
	q.closed = true
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	close(q.ch)
}

// Next blocks until an event is available. In silence it returns a
// heartbeat event every heartbeat interval so SSE connections stay alive.
// Returns false when the queue is closed and drained, or the context ends.
func (q *Queue) Next(ctx context.Context) (Event, bool) {
	timer := time.NewTimer(q.heartbeat)
	defer timer.Stop()

	select {
	case ev, ok := <-q.ch:
		return ev, ok
	case <-timer.C:
		return Event{Type: EventHeartbeat}, true
	case <-ctx.Done():
		return Event{}, false
	}
}

// Stats returns a snapshot of throughput counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

func (q *Queue) flushLocked() {
	if q.pending.Len() == 0 {
		return
	}
	chunk := q.pending.String()
	q.pending.Reset()
	q.lastFlush = time.Now()
	q.stats.Flushes++
	q.send(Event{Type: EventToken, Data: map[string]any{"content": chunk}})
}

// send enqueues without blocking the producer. A consumer that has fallen
// a full buffer behind loses the oldest event rather than stalling the
// workflow.
func (q *Queue) send(ev Event) {
	select {
	case q.ch <- ev:
	default:
		select {
		case <-q.ch:
		default:
		}
		select {
		case q.ch <- ev:
		default:
		}
	}
}
