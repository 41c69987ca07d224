package review

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/CAICAIIs/Auto-Scholar/llm"
	"github.com/CAICAIIs/Auto-Scholar/scholar"
)

// rule is one canned model behavior: the first rule whose task matches and
// whose match string appears in any request message wins.
type rule struct {
	task  llm.TaskType
	match string
	text  string
	err   error
}

// fakeModel is a scripted chat backend. Safe for concurrent calls.
type fakeModel struct {
	mu    sync.Mutex
	rules []rule
	calls []llm.Request
}

func (f *fakeModel) on(task llm.TaskType, match, text string) *fakeModel {
	f.rules = append(f.rules, rule{task: task, match: match, text: text})
	return f
}

func (f *fakeModel) fail(task llm.TaskType, match string, err error) *fakeModel {
	f.rules = append(f.rules, rule{task: task, match: match, err: err})
	return f
}

func (f *fakeModel) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	rules := make([]rule, len(f.rules))
	copy(rules, f.rules)
	f.mu.Unlock()

	for _, r := range rules {
		if r.task != req.Task {
			continue
		}
		if r.match != "" && !requestContains(req, r.match) {
			continue
		}
		if r.err != nil {
			return llm.Response{}, r.err
		}
		if req.OnToken != nil {
			req.OnToken(r.text)
		}
		return llm.Response{Text: r.text, Model: "fake"}, nil
	}
	return llm.Response{}, fmt.Errorf("no scripted response for task %q", req.Task)
}

func requestContains(req llm.Request, match string) bool {
	for _, m := range req.Messages {
		if strings.Contains(m.Content, match) {
			return true
		}
	}
	return false
}

func (f *fakeModel) callCount(task llm.TaskType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Task == task {
			n++
		}
	}
	return n
}

func newTestRouter() *llm.Router {
	reg := llm.NewRegistry()
	reg.Add(&llm.ModelConfig{
		ID:        "test-model",
		Provider:  "openai",
		ModelName: "test",
		Enabled:   true,
		Capabilities: llm.Capabilities{
			Reasoning: 3, Creativity: 3, Latency: 3, CostRank: 1, JSONMode: true,
		},
	})
	return llm.NewRouter(reg)
}

func newTestAgents(t *testing.T, fm *fakeModel, adapters ...scholar.Adapter) *Agents {
	t.Helper()
	return NewAgents(Config{
		Invoker: fm,
		Router:  newTestRouter(),
		Search:  scholar.NewClient(nil, nil, adapters...),
		Logger:  zap.NewNop(),
	})
}

func testPaper(id, title string) scholar.Paper {
	return scholar.Paper{
		PaperID:  id,
		Title:    title,
		Authors:  []string{"A. Author"},
		Year:     2023,
		Abstract: "An abstract about " + title + ".",
		Source:   scholar.SourceArxiv,
	}
}
