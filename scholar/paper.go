// Package scholar defines the paper search contracts the review workflow
// retrieves through: source adapters, plan-aware search, per-source failure
// tracking, and full-text enrichment. Concrete HTTP adapters live outside
// this module; the package ships the interfaces and mock implementations.
package scholar

import "strings"

// Source identifies a scholarly search backend.
type Source string

const (
	SourceSemanticScholar Source = "semantic_scholar"
	SourceArxiv           Source = "arxiv"
	SourcePubMed          Source = "pubmed"
)

// PapersPerQuery is the per-keyword result limit a source returns when the
// caller does not specify one. Five keywords times five papers across the
// sources keeps the deduplicated candidate pool in the 15-25 range.
const PapersPerQuery = 5

// Paper is the unit of retrieval. Search adapters fill the metadata fields;
// the extraction stage fills CoreContribution and StructuredContribution on
// the papers it processes.
type Paper struct {
	PaperID  string   `json:"paper_id"`
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	Year     int      `json:"year,omitempty"`
	Abstract string   `json:"abstract"`
	URL      string   `json:"url"`
	PDFURL   string   `json:"pdf_url,omitempty"`
	Source   Source   `json:"source"`

	Approved bool `json:"is_approved"`

	CoreContribution       string        `json:"core_contribution,omitempty"`
	StructuredContribution *Contribution `json:"structured_contribution,omitempty"`
}

// Contribution is the structured extraction of a paper's abstract. Every
// field is optional; absent aspects stay empty.
type Contribution struct {
	Problem     string `json:"problem,omitempty"`
	Method      string `json:"method,omitempty"`
	Novelty     string `json:"novelty,omitempty"`
	Dataset     string `json:"dataset,omitempty"`
	Baseline    string `json:"baseline,omitempty"`
	Results     string `json:"results,omitempty"`
	Limitations string `json:"limitations,omitempty"`
	FutureWork  string `json:"future_work,omitempty"`
}

// Empty reports whether no aspect was extracted.
func (c *Contribution) Empty() bool {
	if c == nil {
		return true
	}
	return c.Problem == "" && c.Method == "" && c.Novelty == "" &&
		c.Dataset == "" && c.Baseline == "" && c.Results == "" &&
		c.Limitations == "" && c.FutureWork == ""
}

// Dedupe removes papers with a previously seen id, preserving the order of
// first occurrence. Earlier entries win, so callers listing higher-priority
// results first keep them.
func Dedupe(papers []Paper) []Paper {
	seen := make(map[string]struct{}, len(papers))
	out := make([]Paper, 0, len(papers))
	for _, p := range papers {
		key := strings.TrimSpace(p.PaperID)
		if key == "" {
			out = append(out, p)
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}
