package review

import (
	"testing"

	"github.com/CAICAIIs/Auto-Scholar/scholar"
)

func TestNormalizeDraftCitations(t *testing.T) {
	papers := []scholar.Paper{
		testPaper("p1", "Attention"),
		testPaper("p2", "Retrieval"),
	}

	t.Run("valid markers become bracket citations", func(t *testing.T) {
		draft := &Draft{Title: "T", Sections: []Section{
			{Heading: "S", Content: "First {cite:1}, then {cite:2}, then {cite:1} again."},
		}}
		out := NormalizeDraftCitations(draft, papers, nil)
		if got := out.Sections[0].Content; got != "First [1], then [2], then [1] again." {
			t.Errorf("content = %q", got)
		}
		ids := out.Sections[0].CitedPaperIDs
		if len(ids) != 2 || ids[0] != "p1" || ids[1] != "p2" {
			t.Errorf("cited ids = %v", ids)
		}
	})

	t.Run("out-of-range markers are removed", func(t *testing.T) {
		draft := &Draft{Sections: []Section{
			{Heading: "S", Content: "Good {cite:2} and bad {cite:7}."},
		}}
		out := NormalizeDraftCitations(draft, papers, nil)
		if got := out.Sections[0].Content; got != "Good [2] and bad ." {
			t.Errorf("content = %q", got)
		}
		if ids := out.Sections[0].CitedPaperIDs; len(ids) != 1 || ids[0] != "p2" {
			t.Errorf("cited ids = %v", ids)
		}
	})

	t.Run("input draft is not mutated", func(t *testing.T) {
		draft := &Draft{Sections: []Section{{Heading: "S", Content: "{cite:1}"}}}
		NormalizeDraftCitations(draft, papers, nil)
		if draft.Sections[0].Content != "{cite:1}" {
			t.Errorf("input mutated: %q", draft.Sections[0].Content)
		}
	})

	t.Run("nil draft stays nil", func(t *testing.T) {
		if out := NormalizeDraftCitations(nil, papers, nil); out != nil {
			t.Errorf("out = %+v", out)
		}
	})
}

func TestCitationIndices(t *testing.T) {
	got := citationIndices("a {cite:3} b {cite:1} c {cite:3}")
	if len(got) != 3 || got[0] != 3 || got[1] != 1 || got[2] != 3 {
		t.Errorf("indices = %v", got)
	}
	if got := citationIndices("no markers here [1]"); len(got) != 0 {
		t.Errorf("indices = %v", got)
	}
}
