package review

import (
	"strings"
	"testing"

	"github.com/CAICAIIs/Auto-Scholar/scholar"
)

func TestBuildPaperContext(t *testing.T) {
	t.Run("numbered blocks with contributions", func(t *testing.T) {
		papers := []scholar.Paper{
			{
				PaperID: "p1", Title: "Attention Is All You Need", Year: 2017,
				Authors:          []string{"Vaswani", "Shazeer", "Parmar", "Uszkoreit"},
				CoreContribution: "Introduces the Transformer.",
				StructuredContribution: &scholar.Contribution{
					Problem: "RNNs are sequential.",
					Method:  "Self-attention.",
				},
			},
			{
				PaperID: "p2", Title: "Untitled Preprint",
				CoreContribution: "Something.",
				Abstract:         "A long abstract about nothing in particular.",
			},
		}

		out := buildPaperContext(papers, ContextTokenBudget, nil)
		if !strings.Contains(out, "[1] Attention Is All You Need (Year: 2017)") {
			t.Errorf("missing numbered header:\n%s", out)
		}
		if !strings.Contains(out, "Authors: Vaswani, Shazeer, Parmar...") {
			t.Errorf("author list not truncated:\n%s", out)
		}
		if !strings.Contains(out, "Problem: RNNs are sequential.") || !strings.Contains(out, "Method: Self-attention.") {
			t.Errorf("aspects missing:\n%s", out)
		}
		if !strings.Contains(out, "[2] Untitled Preprint (Year: N/A)") {
			t.Errorf("missing year fallback:\n%s", out)
		}
		// No structured contribution: abstract preview instead.
		if !strings.Contains(out, "Abstract: A long abstract") {
			t.Errorf("abstract preview missing:\n%s", out)
		}
	})

	t.Run("budget cuts the tail but keeps one paper", func(t *testing.T) {
		papers := make([]scholar.Paper, 10)
		for i := range papers {
			papers[i] = testPaper("p", "A paper with a reasonably long title about transformers")
			papers[i].CoreContribution = strings.Repeat("detail ", 50)
		}
		out := buildPaperContext(papers, 100, nil)
		if !strings.Contains(out, "[1] ") {
			t.Error("at least one paper must survive a tight budget")
		}
		if strings.Contains(out, "[3] ") {
			t.Errorf("budget not enforced:\n%s", out)
		}
	})

	t.Run("input order becomes the numbering", func(t *testing.T) {
		papers := []scholar.Paper{
			{PaperID: "p1", Title: "First in state", CoreContribution: "x"},
			{PaperID: "p2", Title: "Second in state", CoreContribution: "y"},
		}
		out := buildPaperContext(papers, ContextTokenBudget, nil)
		if !strings.Contains(out, "[1] First in state") || !strings.Contains(out, "[2] Second in state") {
			t.Errorf("numbering diverges from input order:\n%s", out)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if out := buildPaperContext(nil, 0, nil); out != "" {
			t.Errorf("out = %q", out)
		}
	})
}

func TestPrioritizeBySubQuestions(t *testing.T) {
	t.Run("plan priorities reorder the front", func(t *testing.T) {
		papers := []scholar.Paper{
			{PaperID: "p1", Title: "Unrelated work"},
			{PaperID: "p2", Title: "A survey of retrieval augmentation"},
		}
		plan := &scholar.ResearchPlan{SubQuestions: []scholar.SubQuestion{
			{Keywords: []string{"retrieval"}, Priority: 1},
		}}
		out := prioritizeBySubQuestions(papers, plan)
		if out[0].PaperID != "p2" || out[1].PaperID != "p1" {
			t.Errorf("order = [%s %s]", out[0].PaperID, out[1].PaperID)
		}
	})

	t.Run("no plan keeps arrival order", func(t *testing.T) {
		papers := []scholar.Paper{{PaperID: "p1"}, {PaperID: "p2"}}
		out := prioritizeBySubQuestions(papers, nil)
		if out[0].PaperID != "p1" || out[1].PaperID != "p2" {
			t.Errorf("order = [%s %s]", out[0].PaperID, out[1].PaperID)
		}
	})
}

func TestBestKeywordMatch(t *testing.T) {
	papers := []scholar.Paper{
		{Title: "Graph neural networks"},
		{Title: "Retrieval augmented generation with transformers"},
		{Title: "Transformers for vision"},
	}

	t.Run("most distinct hits wins", func(t *testing.T) {
		if got := bestKeywordMatch(papers, []string{"retrieval", "transformers"}); got != 1 {
			t.Errorf("idx = %d, want 1", got)
		}
	})
	t.Run("zero score falls back to first", func(t *testing.T) {
		if got := bestKeywordMatch(papers, []string{"quantum"}); got != 0 {
			t.Errorf("idx = %d, want 0", got)
		}
	})
	t.Run("empty input", func(t *testing.T) {
		if got := bestKeywordMatch(nil, []string{"x"}); got != -1 {
			t.Errorf("idx = %d, want -1", got)
		}
		if got := bestKeywordMatch(papers, nil); got != -1 {
			t.Errorf("idx = %d, want -1", got)
		}
	})
}

func TestBuildConversationContext(t *testing.T) {
	t.Run("labels roles and keeps recent turns", func(t *testing.T) {
		var messages []ConversationMessage
		for i := 0; i < MaxConversationTurns*2+4; i++ {
			role := RoleUser
			if i%2 == 1 {
				role = RoleAssistant
			}
			messages = append(messages, ConversationMessage{Role: role, Content: strings.Repeat("m", i+1)})
		}
		out := buildConversationContext(messages)
		lines := strings.Split(out, "\n")
		if len(lines) != MaxConversationTurns*2 {
			t.Fatalf("lines = %d", len(lines))
		}
		if !strings.HasPrefix(lines[0], "User: ") && !strings.HasPrefix(lines[0], "Assistant: ") {
			t.Errorf("line = %q", lines[0])
		}
	})

	t.Run("empty conversation", func(t *testing.T) {
		if out := buildConversationContext(nil); out != "" {
			t.Errorf("out = %q", out)
		}
	})
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Errorf("got %q", got)
	}
	if got := truncate("hello world", 5); got != "hello..." {
		t.Errorf("got %q", got)
	}
	// Rune-safe on multibyte text.
	if got := truncate("注意力机制研究", 3); got != "注意力..." {
		t.Errorf("got %q", got)
	}
}
