package review

// Outline is the writer's first pass: a review title and the section
// headings to generate.
type Outline struct {
	Title         string   `json:"title"`
	SectionTitles []string `json:"section_titles"`
}

// Section is one generated section of the review. CitedPaperIDs is filled
// by citation normalization at completion.
type Section struct {
	Heading       string   `json:"heading"`
	Content       string   `json:"content"`
	CitedPaperIDs []string `json:"cited_paper_ids,omitempty"`
}

// Draft is the full generated literature review.
type Draft struct {
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

// Reflection error categories.
const (
	CategoryCitationOutOfBounds = "citation_out_of_bounds"
	CategoryMissingCitation     = "missing_citation"
	CategoryUncitedPaper        = "uncited_paper"
	CategoryLowEntailment       = "low_entailment"
	CategoryStructural          = "structural"
)

// Reflection retry targets.
const (
	RetryTargetWriter    = "writer"
	RetryTargetRetriever = "retriever"
)

// ReflectionEntry is the analysis of one QA error.
type ReflectionEntry struct {
	ErrorCategory   string `json:"error_category"`
	ErrorDetail     string `json:"error_detail"`
	FixStrategy     string `json:"fix_strategy"`
	FixableByWriter bool   `json:"fixable_by_writer"`
}

// Reflection is the model's analysis of a failed QA pass, steering the
// retry loop.
type Reflection struct {
	Entries     []ReflectionEntry `json:"entries"`
	ShouldRetry bool              `json:"should_retry"`
	RetryTarget string            `json:"retry_target"`
	Summary     string            `json:"summary"`
}

// EntailmentLabel classifies how well a cited paper supports a claim.
type EntailmentLabel string

const (
	LabelEntails      EntailmentLabel = "entails"
	LabelInsufficient EntailmentLabel = "insufficient"
	LabelContradicts  EntailmentLabel = "contradicts"
)

// Claim is an atomic statement extracted from a draft section, with the
// 1-based citation indices it carries.
type Claim struct {
	ClaimID         string `json:"claim_id"`
	Text            string `json:"text"`
	SectionIndex    int    `json:"section_index"`
	CitationIndices []int  `json:"citation_indices"`
}

// VerificationResult is the outcome of checking one (claim, citation)
// pair against the cited paper.
type VerificationResult struct {
	ClaimID         string          `json:"claim_id"`
	ClaimText       string          `json:"claim_text"`
	CitationIndex   int             `json:"citation_index"`
	PaperTitle      string          `json:"paper_title"`
	Label           EntailmentLabel `json:"label"`
	Confidence      float64         `json:"confidence"`
	EvidenceSnippet string          `json:"evidence_snippet"`
	Rationale       string          `json:"rationale"`
}

// VerificationSummary aggregates claim verification over a draft.
type VerificationSummary struct {
	TotalClaims         int                  `json:"total_claims"`
	TotalVerifications  int                  `json:"total_verifications"`
	EntailsCount        int                  `json:"entails_count"`
	InsufficientCount   int                  `json:"insufficient_count"`
	ContradictsCount    int                  `json:"contradicts_count"`
	FailedVerifications []VerificationResult `json:"failed_verifications"`
}

// EntailmentRatio is the fraction of verifications labeled entails, or 1
// when nothing was verified.
func (s *VerificationSummary) EntailmentRatio() float64 {
	if s == nil || s.TotalVerifications == 0 {
		return 1
	}
	return float64(s.EntailsCount) / float64(s.TotalVerifications)
}
