package scholar

import (
	"context"
	"errors"
	"testing"
)

func TestEnrichFulltext(t *testing.T) {
	ctx := context.Background()

	t.Run("fills missing pdf urls", func(t *testing.T) {
		papers := []Paper{
			makePaper("a", SourceArxiv),
			makePaper("b", SourceArxiv),
		}
		e := &MockEnricher{URLs: map[string]string{"a": "http://pdf/a", "b": "http://pdf/b"}}

		out := EnrichFulltext(ctx, e, papers, 2, nil)
		if out[0].PDFURL != "http://pdf/a" || out[1].PDFURL != "http://pdf/b" {
			t.Errorf("urls %q %q", out[0].PDFURL, out[1].PDFURL)
		}
	})

	t.Run("existing pdf url preserved and not looked up", func(t *testing.T) {
		withPDF := makePaper("keep", SourceArxiv)
		withPDF.PDFURL = "http://already/there"
		papers := []Paper{withPDF, makePaper("fill", SourceArxiv)}
		e := &MockEnricher{URLs: map[string]string{
			"keep": "http://wrong/replacement",
			"fill": "http://pdf/fill",
		}}

		out := EnrichFulltext(ctx, e, papers, 2, nil)
		if out[0].PDFURL != "http://already/there" {
			t.Errorf("existing url replaced: %q", out[0].PDFURL)
		}
		if out[1].PDFURL != "http://pdf/fill" {
			t.Errorf("missing url not filled: %q", out[1].PDFURL)
		}
		if e.Calls() != 1 {
			t.Errorf("lookups = %d, want 1", e.Calls())
		}
	})

	t.Run("lookup failure leaves paper unchanged", func(t *testing.T) {
		papers := []Paper{makePaper("a", SourceArxiv)}
		e := &MockEnricher{Err: errors.New("resolver down")}

		out := EnrichFulltext(ctx, e, papers, 2, nil)
		if out[0].PDFURL != "" {
			t.Errorf("url set despite failure: %q", out[0].PDFURL)
		}
	})

	t.Run("paper without full text stays empty", func(t *testing.T) {
		papers := []Paper{makePaper("unknown", SourceArxiv)}
		e := &MockEnricher{URLs: map[string]string{}}

		out := EnrichFulltext(ctx, e, papers, 2, nil)
		if out[0].PDFURL != "" {
			t.Errorf("url %q", out[0].PDFURL)
		}
	})

	t.Run("input slice not mutated", func(t *testing.T) {
		papers := []Paper{makePaper("a", SourceArxiv)}
		e := &MockEnricher{URLs: map[string]string{"a": "http://pdf/a"}}

		EnrichFulltext(ctx, e, papers, 2, nil)
		if papers[0].PDFURL != "" {
			t.Error("input mutated")
		}
	})
}

func TestDedupe(t *testing.T) {
	a := makePaper("a", SourceArxiv)
	b := makePaper("b", SourceSemanticScholar)
	aDup := makePaper("a", SourceSemanticScholar)

	out := Dedupe([]Paper{a, b, aDup})
	if len(out) != 2 {
		t.Fatalf("len = %d", len(out))
	}
	if out[0].Source != SourceArxiv {
		t.Error("first occurrence did not win")
	}

	blank := []Paper{{Title: "no id"}, {Title: "also no id"}}
	if got := Dedupe(blank); len(got) != 2 {
		t.Errorf("blank-id papers collapsed: %d", len(got))
	}
}
