package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// fakeInvoker returns scripted responses in order.
type fakeInvoker struct {
	responses []string
	errs      []error
	calls     int
	lastReq   Request
}

func (f *fakeInvoker) Complete(ctx context.Context, req Request) (Response, error) {
	f.lastReq = req
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return Response{}, f.errs[i]
	}
	if i >= len(f.responses) {
		return Response{}, ErrEmptyResponse
	}
	return Response{Text: f.responses[i], Model: "fake", PromptTokens: 10, CompletionTokens: 5}, nil
}

type keywordPlan struct {
	Keywords []string `json:"keywords"`
	Language string   `json:"language"`
}

func TestStructured(t *testing.T) {
	ctx := context.Background()

	t.Run("valid json decodes", func(t *testing.T) {
		inv := &fakeInvoker{responses: []string{`{"keywords": ["rag", "llm"], "language": "en"}`}}
		out, err := Structured[keywordPlan](ctx, inv, Request{Task: TaskPlanning})
		if err != nil {
			t.Fatalf("Structured failed: %v", err)
		}
		if len(out.Keywords) != 2 || out.Language != "en" {
			t.Errorf("decoded wrong: %+v", out)
		}
	})

	t.Run("schema hint appended to system message", func(t *testing.T) {
		inv := &fakeInvoker{responses: []string{`{"keywords": [], "language": "en"}`}}
		_, err := Structured[keywordPlan](ctx, inv, Request{
			Task:     TaskPlanning,
			Messages: []Message{{Role: RoleSystem, Content: "You plan searches."}, {Role: RoleUser, Content: "q"}},
		})
		if err != nil {
			t.Fatalf("Structured failed: %v", err)
		}
		sys := inv.lastReq.Messages[0]
		if sys.Role != RoleSystem {
			t.Fatalf("first message role %q", sys.Role)
		}
		if !strings.Contains(sys.Content, "You plan searches.") || !strings.Contains(sys.Content, "keywords") {
			t.Errorf("schema hint not appended: %q", sys.Content)
		}
		if !inv.lastReq.JSONMode {
			t.Error("json mode not requested")
		}
	})

	t.Run("fenced json repaired", func(t *testing.T) {
		inv := &fakeInvoker{responses: []string{"```json\n{\"keywords\": [\"a\"], \"language\": \"zh\"}\n```"}}
		out, err := Structured[keywordPlan](ctx, inv, Request{Task: TaskPlanning})
		if err != nil {
			t.Fatalf("Structured failed: %v", err)
		}
		if out.Language != "zh" {
			t.Errorf("decoded wrong: %+v", out)
		}
	})

	t.Run("pure schema echo rejected", func(t *testing.T) {
		inv := &fakeInvoker{responses: []string{`{"type": "object", "properties": {"keywords": {"type": "array"}}, "required": ["keywords"]}`}}
		_, err := Structured[keywordPlan](ctx, inv, Request{Task: TaskPlanning})
		if !errors.Is(err, ErrSchemaEcho) {
			t.Errorf("expected ErrSchemaEcho, got %v", err)
		}
	})

	t.Run("mixed echo cleaned", func(t *testing.T) {
		inv := &fakeInvoker{responses: []string{`{"keywords": ["a"], "language": "en", "type": "object", "properties": {}}`}}
		out, err := Structured[keywordPlan](ctx, inv, Request{Task: TaskPlanning})
		if err != nil {
			t.Fatalf("Structured failed: %v", err)
		}
		if len(out.Keywords) != 1 {
			t.Errorf("payload lost: %+v", out)
		}
	})

	t.Run("unparseable response errors", func(t *testing.T) {
		inv := &fakeInvoker{responses: []string{"I cannot produce JSON today."}}
		_, err := Structured[keywordPlan](ctx, inv, Request{Task: TaskPlanning})
		if err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("invocation error propagates", func(t *testing.T) {
		boom := errors.New("boom")
		inv := &fakeInvoker{errs: []error{boom}}
		_, err := Structured[keywordPlan](ctx, inv, Request{Task: TaskPlanning})
		if !errors.Is(err, boom) {
			t.Errorf("expected boom, got %v", err)
		}
	})
}

func TestComputeBackoff(t *testing.T) {
	base := time.Second
	max := 30 * time.Second

	for attempt := 0; attempt < 6; attempt++ {
		delay := computeBackoff(attempt, base, max)
		expMin := base * (1 << attempt)
		if expMin > max {
			expMin = max
		}
		if delay < expMin || delay > expMin+base {
			t.Errorf("attempt %d: delay %v outside [%v, %v]", attempt, delay, expMin, expMin+base)
		}
	}
}

func TestAppendToSystem(t *testing.T) {
	t.Run("no system message prepends one", func(t *testing.T) {
		out := appendToSystem([]Message{{Role: RoleUser, Content: "hi"}}, "hint")
		if len(out) != 2 || out[0].Role != RoleSystem || out[0].Content != "hint" {
			t.Errorf("unexpected messages: %+v", out)
		}
	})

	t.Run("existing system message extended without mutating input", func(t *testing.T) {
		in := []Message{{Role: RoleSystem, Content: "base"}}
		out := appendToSystem(in, "hint")
		if !strings.Contains(out[0].Content, "base") || !strings.Contains(out[0].Content, "hint") {
			t.Errorf("system not extended: %+v", out)
		}
		if in[0].Content != "base" {
			t.Error("input mutated")
		}
	})
}

func TestConcurrencyLimit(t *testing.T) {
	tests := []struct {
		env  string
		want int
	}{
		{"", 2},
		{"5", 5},
		{"0", 1},
		{"-3", 1},
		{"100", 20},
		{"garbage", 2},
	}
	for _, tt := range tests {
		t.Setenv("LLM_CONCURRENCY", tt.env)
		if got := concurrencyLimit(); got != tt.want {
			t.Errorf("LLM_CONCURRENCY=%q: got %d, want %d", tt.env, got, tt.want)
		}
	}
}
