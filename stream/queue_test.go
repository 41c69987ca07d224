package stream

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func drain(q *Queue) []Event {
	var events []Event
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		ev, ok := q.Next(ctx)
		cancel()
		if !ok {
			return events
		}
		events = append(events, ev)
	}
}

func tokenEvents(events []Event) []string {
	var chunks []string
	for _, ev := range events {
		if ev.Type == EventToken {
			chunks = append(chunks, ev.Data["content"].(string))
		}
	}
	return chunks
}

func TestQueueDebounce(t *testing.T) {
	t.Run("boundary character flushes one chunk", func(t *testing.T) {
		q := NewQueue()
		q.PushToken("你")
		q.PushToken("好")
		q.PushToken("。")
		q.Close()

		chunks := tokenEvents(drain(q))
		if len(chunks) != 1 {
			t.Fatalf("expected 1 chunk, got %d: %v", len(chunks), chunks)
		}
		if chunks[0] != "你好。" {
			t.Errorf("chunk = %q", chunks[0])
		}
	})

	t.Run("boundary-free tokens coalesce", func(t *testing.T) {
		q := NewQueue()
		for i := 0; i < 100; i++ {
			q.PushToken("word ")
		}
		q.Close()

		chunks := tokenEvents(drain(q))
		if len(chunks) > 20 {
			t.Errorf("expected at most 20 chunks for 100 tokens, got %d", len(chunks))
		}

		stats := q.Stats()
		if stats.TokensIn != 100 {
			t.Errorf("tokens in = %d", stats.TokensIn)
		}
		if stats.Ratio() < 5 {
			t.Errorf("coalescing ratio %.1f below 5x", stats.Ratio())
		}
	})

	t.Run("sentence stream breaks at boundaries", func(t *testing.T) {
		q := NewQueue()
		for i := 0; i < 3; i++ {
			q.PushToken("Attention")
			q.PushToken(" is all")
			q.PushToken(" you need.")
		}
		q.Close()

		chunks := tokenEvents(drain(q))
		if len(chunks) != 3 {
			t.Fatalf("expected 3 sentence chunks, got %d: %v", len(chunks), chunks)
		}
		for _, c := range chunks {
			if c != "Attention is all you need." {
				t.Errorf("chunk = %q", c)
			}
		}
	})

	t.Run("timer flush after window", func(t *testing.T) {
		q := NewQueue()
		q.PushToken("no boundary here")

		deadline := time.After(2 * time.Second)
		select {
		case ev := <-q.ch:
			if ev.Type != EventToken {
				t.Errorf("unexpected event %v", ev)
			}
		case <-deadline:
			t.Fatal("timer flush never fired")
		}
		q.Close()
	})

	t.Run("close flushes remainder", func(t *testing.T) {
		q := NewQueue()
		q.PushToken("tail without boundary")
		q.Close()

		chunks := tokenEvents(drain(q))
		if len(chunks) != 1 || chunks[0] != "tail without boundary" {
			t.Errorf("remainder not flushed: %v", chunks)
		}
	})
}

func TestQueueOrdering(t *testing.T) {
	t.Run("publish flushes pending tokens first", func(t *testing.T) {
		q := NewQueue()
		q.PushToken("partial draft")
		q.Publish(Event{Type: EventLog, Data: map[string]any{"node": "writer"}})
		q.Close()

		events := drain(q)
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		if events[0].Type != EventToken || events[1].Type != EventLog {
			t.Errorf("order wrong: %v then %v", events[0].Type, events[1].Type)
		}
	})

	t.Run("events after close dropped", func(t *testing.T) {
		q := NewQueue()
		q.Close()
		q.Publish(Event{Type: EventLog})
		q.PushToken("late")

		if events := drain(q); len(events) != 0 {
			t.Errorf("late events delivered: %v", events)
		}
	})

	t.Run("double close safe", func(t *testing.T) {
		q := NewQueue()
		q.Close()
		q.Close()
	})
}

func TestQueueHeartbeat(t *testing.T) {
	q := NewQueue()
	q.heartbeat = 20 * time.Millisecond
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ev, ok := q.Next(ctx)
	if !ok {
		t.Fatal("Next returned closed")
	}
	if ev.Type != EventHeartbeat {
		t.Errorf("expected heartbeat, got %v", ev.Type)
	}
}

func TestQueueBackpressure(t *testing.T) {
	// A stalled consumer must not block the workflow; oldest events drop.
	q := NewQueue()
	for i := 0; i < defaultBuffer+50; i++ {
		q.Publish(Event{Type: EventLog, Data: map[string]any{"i": fmt.Sprint(i)}})
	}
	q.Close()

	events := drain(q)
	if len(events) == 0 || len(events) > defaultBuffer {
		t.Errorf("unexpected event count %d", len(events))
	}
}
