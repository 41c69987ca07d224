package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

type memState struct {
	Value string `json:"value"`
}

func record(taskID string, step int, nodeID, value string, next []string) Record[memState] {
	return Record[memState]{
		CheckpointID: ulid.Make().String(),
		TaskID:       taskID,
		Step:         step,
		NodeID:       nodeID,
		State:        memState{Value: value},
		Next:         next,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestMemStore(t *testing.T) {
	ctx := context.Background()

	t.Run("latest returns highest step", func(t *testing.T) {
		st := NewMemStore[memState]()
		st.Save(ctx, record("t1", 1, "plan", "a", []string{"write"}))
		st.Save(ctx, record("t1", 2, "write", "b", nil))

		rec, err := st.Latest(ctx, "t1")
		if err != nil {
			t.Fatalf("Latest failed: %v", err)
		}
		if rec.Step != 2 || rec.State.Value != "b" {
			t.Errorf("wrong latest record: %+v", rec)
		}
	})

	t.Run("latest of unknown task", func(t *testing.T) {
		st := NewMemStore[memState]()
		_, err := st.Latest(ctx, "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("list returns step order", func(t *testing.T) {
		st := NewMemStore[memState]()
		st.Save(ctx, record("t2", 2, "write", "b", nil))
		st.Save(ctx, record("t2", 1, "plan", "a", []string{"write"}))

		recs, err := st.List(ctx, "t2")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(recs) != 2 || recs[0].Step != 1 || recs[1].Step != 2 {
			t.Errorf("wrong order: %+v", recs)
		}
	})

	t.Run("task ids ordered by recency", func(t *testing.T) {
		st := NewMemStore[memState]()
		st.Save(ctx, record("old", 1, "plan", "a", nil))
		st.Save(ctx, record("new", 1, "plan", "b", nil))

		ids, err := st.TaskIDs(ctx)
		if err != nil {
			t.Fatalf("TaskIDs failed: %v", err)
		}
		if len(ids) != 2 || ids[0] != "new" || ids[1] != "old" {
			t.Errorf("wrong task order: %v", ids)
		}
	})
}
