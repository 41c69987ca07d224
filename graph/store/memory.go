package store

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory implementation of Store[S].
//
// Designed for tests and single-process deployments where checkpoints do not
// need to survive a restart. Thread-safe.
type MemStore[S any] struct {
	mu      sync.RWMutex
	records map[string][]Record[S] // taskID -> records in save order
}

// NewMemStore creates an empty in-memory store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		records: make(map[string][]Record[S]),
	}
}

// Save appends a checkpoint record.
func (m *MemStore[S]) Save(_ context.Context, rec Record[S]) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[rec.TaskID] = append(m.records[rec.TaskID], rec)
	return nil
}

// Latest returns the record with the highest step for a task.
func (m *MemStore[S]) Latest(_ context.Context, taskID string) (Record[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs, ok := m.records[taskID]
	if !ok || len(recs) == 0 {
		var zero Record[S]
		return zero, ErrNotFound
	}

	latest := recs[0]
	for _, rec := range recs[1:] {
		if rec.Step > latest.Step {
			latest = rec
		}
	}
	return latest, nil
}

// List returns a task's records in ascending step order.
func (m *MemStore[S]) List(_ context.Context, taskID string) ([]Record[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs, ok := m.records[taskID]
	if !ok || len(recs) == 0 {
		return nil, ErrNotFound
	}

	out := make([]Record[S], len(recs))
	copy(out, recs)
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}

// TaskIDs returns all task IDs ordered by most recent activity first.
func (m *MemStore[S]) TaskIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type activity struct {
		id     string
		latest string
	}
	tasks := make([]activity, 0, len(m.records))
	for id, recs := range m.records {
		if len(recs) == 0 {
			continue
		}
		last := recs[0].CheckpointID
		for _, rec := range recs[1:] {
			if rec.CheckpointID > last {
				last = rec.CheckpointID
			}
		}
		tasks = append(tasks, activity{id: id, latest: last})
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].latest > tasks[j].latest })

	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.id
	}
	return ids, nil
}
