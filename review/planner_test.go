package review

import (
	"context"
	"testing"

	"github.com/CAICAIIs/Auto-Scholar/llm"
	"github.com/CAICAIIs/Auto-Scholar/scholar"
)

func TestPlanner(t *testing.T) {
	t.Run("substantial query gets a research plan", func(t *testing.T) {
		fm := (&fakeModel{}).on(llm.TaskPlanning, "", `{
			"reasoning": "Two facets: architectures and efficiency.",
			"sub_questions": [
				{"question": "What architectures dominate?", "keywords": ["transformer", "attention"], "preferred_source": "arxiv", "priority": 1, "estimated_papers": 5},
				{"question": "How is efficiency improved?", "keywords": ["distillation", "pruning"], "preferred_source": "semantic_scholar", "priority": 2, "estimated_papers": 4}
			],
			"total_estimated_papers": 9
		}`)
		a := newTestAgents(t, fm)

		res := a.Planner(context.Background(), State{UserQuery: "recent advances in efficient transformer architectures"})
		if res.Err != nil {
			t.Fatalf("planner: %v", res.Err)
		}

		keywords, _ := res.Delta["search_keywords"].([]string)
		want := []string{"transformer", "attention", "distillation", "pruning"}
		if len(keywords) != len(want) {
			t.Fatalf("keywords = %v, want %v", keywords, want)
		}
		for i := range want {
			if keywords[i] != want[i] {
				t.Errorf("keywords[%d] = %q, want %q", i, keywords[i], want[i])
			}
		}
		if res.Delta["research_plan"] == nil {
			t.Error("expected a research plan in the delta")
		}
		logs, _ := res.Delta["logs"].([]string)
		if len(logs) != 3 {
			t.Errorf("logs = %v", logs)
		}
	})

	t.Run("keyword flattening respects the cap", func(t *testing.T) {
		fm := (&fakeModel{}).on(llm.TaskPlanning, "", `{
			"reasoning": "r",
			"sub_questions": [
				{"question": "q1", "keywords": ["a", "b", "c"], "preferred_source": "arxiv", "priority": 1, "estimated_papers": 3},
				{"question": "q2", "keywords": ["c", "d", "e", "f"], "preferred_source": "arxiv", "priority": 2, "estimated_papers": 3}
			],
			"total_estimated_papers": 6
		}`)
		a := newTestAgents(t, fm)

		res := a.Planner(context.Background(), State{UserQuery: "a query long enough for planning"})
		if res.Err != nil {
			t.Fatalf("planner: %v", res.Err)
		}
		keywords, _ := res.Delta["search_keywords"].([]string)
		if len(keywords) != MaxKeywords {
			t.Fatalf("keywords = %v, want %d entries", keywords, MaxKeywords)
		}
		// Duplicate "c" collapses; first occurrence order holds.
		if keywords[2] != "c" || keywords[3] != "d" {
			t.Errorf("keywords = %v", keywords)
		}
	})

	t.Run("short query skips decomposition", func(t *testing.T) {
		fm := (&fakeModel{}).on(llm.TaskPlanning, "", `{"keywords": ["crispr", "gene editing"]}`)
		a := newTestAgents(t, fm)

		res := a.Planner(context.Background(), State{UserQuery: "crispr"})
		if res.Err != nil {
			t.Fatalf("planner: %v", res.Err)
		}
		keywords, _ := res.Delta["search_keywords"].([]string)
		if len(keywords) != 2 {
			t.Fatalf("keywords = %v", keywords)
		}
		if plan, _ := res.Delta["research_plan"].(*scholar.ResearchPlan); plan != nil {
			t.Error("keyword mode must not produce a plan")
		}
	})

	t.Run("continuation includes the conversation and skips planning", func(t *testing.T) {
		fm := (&fakeModel{}).on(llm.TaskPlanning, "earlier research session", `{"keywords": ["focus", "narrow"]}`)
		a := newTestAgents(t, fm)

		res := a.Planner(context.Background(), State{
			UserQuery:      "now focus only on the medical applications",
			IsContinuation: true,
			Messages: []ConversationMessage{
				{Role: RoleUser, Content: "survey transformers"},
				{Role: RoleAssistant, Content: "Here is the review."},
			},
		})
		if res.Err != nil {
			t.Fatalf("planner: %v", res.Err)
		}
		keywords, _ := res.Delta["search_keywords"].([]string)
		if len(keywords) != 2 || keywords[0] != "focus" {
			t.Errorf("keywords = %v", keywords)
		}
	})

	t.Run("model failure halts the node", func(t *testing.T) {
		fm := (&fakeModel{}).fail(llm.TaskPlanning, "", context.DeadlineExceeded)
		a := newTestAgents(t, fm)

		res := a.Planner(context.Background(), State{UserQuery: "anything long enough here"})
		if res.Err == nil {
			t.Fatal("want error")
		}
	})
}
