package review

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/CAICAIIs/Auto-Scholar/llm"
	"github.com/CAICAIIs/Auto-Scholar/rag"
	"github.com/CAICAIIs/Auto-Scholar/scholar"
)

// fakeChunkStore serves canned chunk results per paper id.
type fakeChunkStore struct {
	results map[string][]rag.Result
	err     error
	queries []string
}

func (f *fakeChunkStore) UpsertChunks(ctx context.Context, chunks []rag.Chunk) error { return nil }

func (f *fakeChunkStore) Search(ctx context.Context, paperID, query string, topK int, minScore float32) ([]rag.Result, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[paperID], nil
}

func (f *fakeChunkStore) DeleteByPaper(ctx context.Context, paperID string) error { return nil }

func TestExtractClaims(t *testing.T) {
	t.Run("batch extraction covers citing sections only", func(t *testing.T) {
		fm := (&fakeModel{}).on(llm.TaskQA, "several sections as JSON", `{"sections": [
			{"section_index": 0, "claims": ["A beats B {cite:1}.", "no citation here"]},
			{"section_index": 2, "claims": ["C follows D {cite:2} {cite:2}."]}
		]}`)
		a := newTestAgents(t, fm)

		draft := &Draft{Sections: []Section{
			{Heading: "S0", Content: "x {cite:1}"},
			{Heading: "S1", Content: "no markers"},
			{Heading: "S2", Content: "y {cite:2}"},
		}}
		claims, err := a.extractClaims(context.Background(), "", draft)
		if err != nil {
			t.Fatalf("extractClaims: %v", err)
		}
		if len(claims) != 2 {
			t.Fatalf("claims = %+v", claims)
		}
		if claims[0].ClaimID != "s0_c0" || claims[1].ClaimID != "s2_c0" {
			t.Errorf("claim ids = %q, %q", claims[0].ClaimID, claims[1].ClaimID)
		}
		if len(claims[1].CitationIndices) != 1 || claims[1].CitationIndices[0] != 2 {
			t.Errorf("citations = %v", claims[1].CitationIndices)
		}
		if got := fm.callCount(llm.TaskQA); got != 1 {
			t.Errorf("calls = %d, want 1 batch call", got)
		}
	})

	t.Run("failed batch falls back per section", func(t *testing.T) {
		fm := (&fakeModel{}).
			fail(llm.TaskQA, "several sections as JSON", context.Canceled).
			on(llm.TaskQA, `Section "S0"`, `{"claims": ["one {cite:1}"]}`).
			on(llm.TaskQA, `Section "S1"`, `{"claims": ["two {cite:1}"]}`)
		a := newTestAgents(t, fm)

		draft := &Draft{Sections: []Section{
			{Heading: "S0", Content: "x {cite:1}"},
			{Heading: "S1", Content: "y {cite:1}"},
		}}
		claims, err := a.extractClaims(context.Background(), "", draft)
		if err != nil {
			t.Fatalf("extractClaims: %v", err)
		}
		if len(claims) != 2 || claims[1].ClaimID != "s1_c0" {
			t.Errorf("claims = %+v", claims)
		}
	})
}

func TestVerifyDraftClaims(t *testing.T) {
	papers := []scholar.Paper{
		testPaper("p1", "Attention"),
		testPaper("p2", "Retrieval"),
	}

	t.Run("aggregates labels into the summary", func(t *testing.T) {
		fm := (&fakeModel{}).
			on(llm.TaskQA, "several sections as JSON", `{"sections": [
				{"section_index": 0, "claims": ["good {cite:1}.", "shaky {cite:2}."]}
			]}`).
			on(llm.TaskQA, "good", `{"label": "Entails", "confidence": 0.95, "evidence": "e", "rationale": "r"}`).
			on(llm.TaskQA, "shaky", `{"label": "unknown-label", "confidence": 1.7, "evidence": "e2", "rationale": "r2"}`)
		a := newTestAgents(t, fm)

		st := State{FinalDraft: &Draft{Sections: []Section{
			{Heading: "S", Content: "good {cite:1}. shaky {cite:2}."},
		}}}
		summary, err := a.verifyDraftClaims(context.Background(), st, papers)
		if err != nil {
			t.Fatalf("verifyDraftClaims: %v", err)
		}
		if summary.TotalClaims != 2 || summary.TotalVerifications != 2 {
			t.Fatalf("summary = %+v", summary)
		}
		if summary.EntailsCount != 1 || summary.InsufficientCount != 1 {
			t.Errorf("summary = %+v", summary)
		}
		if len(summary.FailedVerifications) != 1 {
			t.Fatalf("failed = %+v", summary.FailedVerifications)
		}
		// Out-of-range confidence clamps.
		if got := summary.FailedVerifications[0].Confidence; got != 1 {
			t.Errorf("confidence = %v", got)
		}
	})

	t.Run("chunk evidence wins over the abstract", func(t *testing.T) {
		chunks := &fakeChunkStore{results: map[string][]rag.Result{
			"p1": {{Chunk: rag.Chunk{PaperID: "p1", Text: "full-text evidence"}, Score: 0.9}},
		}}
		fm := (&fakeModel{}).
			on(llm.TaskQA, "several sections as JSON",
				`{"sections": [{"section_index": 0, "claims": ["claim {cite:1}."]}]}`).
			on(llm.TaskQA, "full-text evidence",
				`{"label": "entails", "confidence": 0.9, "evidence": "full-text evidence", "rationale": "r"}`)
		a := NewAgents(Config{
			Invoker: fm,
			Router:  newTestRouter(),
			Search:  scholar.NewClient(nil, nil),
			Chunks:  chunks,
			Logger:  zap.NewNop(),
		})

		st := State{FinalDraft: &Draft{Sections: []Section{{Heading: "S", Content: "claim {cite:1}."}}}}
		summary, err := a.verifyDraftClaims(context.Background(), st, papers)
		if err != nil {
			t.Fatalf("verifyDraftClaims: %v", err)
		}
		if summary.EntailsCount != 1 {
			t.Errorf("summary = %+v", summary)
		}
		if len(chunks.queries) != 1 {
			t.Errorf("chunk queries = %v", chunks.queries)
		}
	})

	t.Run("failed verification calls are dropped from the counts", func(t *testing.T) {
		fm := (&fakeModel{}).
			on(llm.TaskQA, "several sections as JSON", `{"sections": [
				{"section_index": 0, "claims": ["good {cite:1}.", "flaky {cite:2}."]}
			]}`).
			on(llm.TaskQA, "good", `{"label": "entails", "confidence": 0.9, "evidence": "e", "rationale": "r"}`).
			fail(llm.TaskQA, "flaky", context.Canceled)
		a := newTestAgents(t, fm)

		st := State{FinalDraft: &Draft{Sections: []Section{
			{Heading: "S", Content: "good {cite:1}. flaky {cite:2}."},
		}}}
		summary, err := a.verifyDraftClaims(context.Background(), st, papers)
		if err != nil {
			t.Fatalf("verifyDraftClaims: %v", err)
		}
		// The dropped pair must not depress the entailment ratio.
		if summary.TotalVerifications != 1 || summary.EntailsCount != 1 {
			t.Fatalf("summary = %+v", summary)
		}
		if len(summary.FailedVerifications) != 0 {
			t.Errorf("failed = %+v", summary.FailedVerifications)
		}
		if summary.EntailmentRatio() != 1 {
			t.Errorf("ratio = %v", summary.EntailmentRatio())
		}
	})

	t.Run("out-of-range citations are not verified", func(t *testing.T) {
		fm := (&fakeModel{}).on(llm.TaskQA, "several sections as JSON",
			`{"sections": [{"section_index": 0, "claims": ["bad {cite:9}."]}]}`)
		a := newTestAgents(t, fm)

		st := State{FinalDraft: &Draft{Sections: []Section{{Heading: "S", Content: "bad {cite:9}."}}}}
		summary, err := a.verifyDraftClaims(context.Background(), st, papers)
		if err != nil {
			t.Fatalf("verifyDraftClaims: %v", err)
		}
		if summary.TotalClaims != 1 || summary.TotalVerifications != 0 {
			t.Errorf("summary = %+v", summary)
		}
		if summary.EntailmentRatio() != 1 {
			t.Errorf("ratio = %v", summary.EntailmentRatio())
		}
	})

	t.Run("draft without citations yields an empty summary", func(t *testing.T) {
		a := newTestAgents(t, &fakeModel{})
		st := State{FinalDraft: &Draft{Sections: []Section{{Heading: "S", Content: "plain text"}}}}
		summary, err := a.verifyDraftClaims(context.Background(), st, papers)
		if err != nil {
			t.Fatalf("verifyDraftClaims: %v", err)
		}
		if summary.TotalClaims != 0 {
			t.Errorf("summary = %+v", summary)
		}
	})
}
