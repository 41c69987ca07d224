package review

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/CAICAIIs/Auto-Scholar/llm"
	"github.com/CAICAIIs/Auto-Scholar/scholar"
)

const (
	evidenceTopK     = 5
	evidenceMinScore = 0.7
	evidenceChunks   = 3
)

// verifyDraftClaims extracts the citing claims from every draft section
// and checks each (claim, citation) pair against the cited paper.
// Extraction is batched across sections; verification fans out under a
// concurrency bound. Evidence comes from the ingested full-text chunks
// when available, else the paper's abstract.
func (a *Agents) verifyDraftClaims(ctx context.Context, s State, papers []scholar.Paper) (*VerificationSummary, error) {
	claims, err := a.extractClaims(ctx, s.ModelID, s.FinalDraft)
	if err != nil {
		return nil, err
	}
	if len(claims) == 0 {
		return &VerificationSummary{}, nil
	}

	type job struct {
		claim Claim
		index int
	}
	var jobs []job
	for _, c := range claims {
		for _, n := range c.CitationIndices {
			if n >= 1 && n <= len(papers) {
				jobs = append(jobs, job{claim: c, index: n})
			}
		}
	}

	results := make([]VerificationResult, len(jobs))
	verified := make([]bool, len(jobs))
	var wg sync.WaitGroup
	sem := semaphore.NewWeighted(int64(claimConcurrency()))
	for i, j := range jobs {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		wg.Add(1)
		go func(i int, j job) {
			defer wg.Done()
			defer sem.Release(1)
			r, err := a.verifyClaim(ctx, s.ModelID, j.claim, j.index, papers[j.index-1])
			if err != nil {
				return
			}
			results[i], verified[i] = r, true
		}(i, j)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary := &VerificationSummary{TotalClaims: len(claims)}
	for i, r := range results {
		if !verified[i] {
			continue
		}
		summary.TotalVerifications++
		switch r.Label {
		case LabelEntails:
			summary.EntailsCount++
		case LabelContradicts:
			summary.ContradictsCount++
			summary.FailedVerifications = append(summary.FailedVerifications, r)
		default:
			summary.InsufficientCount++
			summary.FailedVerifications = append(summary.FailedVerifications, r)
		}
	}
	a.logger.Info("claim verification complete",
		zap.Int("claims", summary.TotalClaims),
		zap.Int("verifications", summary.TotalVerifications),
		zap.Int("entails", summary.EntailsCount),
		zap.Int("insufficient", summary.InsufficientCount),
		zap.Int("contradicts", summary.ContradictsCount))
	return summary, nil
}

type sectionClaims struct {
	SectionIndex int      `json:"section_index"`
	Claims       []string `json:"claims"`
}

type batchClaimResponse struct {
	Sections []sectionClaims `json:"sections"`
}

type singleClaimResponse struct {
	Claims []string `json:"claims"`
}

// extractClaims pulls citing claims out of every section carrying at
// least one citation marker. Sections are batched to cut call volume; a
// failed batch degrades to one call per section.
func (a *Agents) extractClaims(ctx context.Context, modelID string, draft *Draft) ([]Claim, error) {
	type citing struct {
		index   int
		section Section
	}
	var citingSections []citing
	for i, sec := range draft.Sections {
		if len(citationIndices(sec.Content)) > 0 {
			citingSections = append(citingSections, citing{index: i, section: sec})
		}
	}
	if len(citingSections) == 0 {
		return nil, nil
	}

	var claims []Claim
	for start := 0; start < len(citingSections); start += ClaimBatchSize {
		end := start + ClaimBatchSize
		if end > len(citingSections) {
			end = len(citingSections)
		}
		batch := citingSections[start:end]

		payload := make([]map[string]any, 0, len(batch))
		for _, cs := range batch {
			payload = append(payload, map[string]any{
				"section_index": cs.index,
				"heading":       cs.section.Heading,
				"content":       cs.section.Content,
			})
		}
		raw, _ := json.Marshal(payload)

		resp, err := structuredCall[batchClaimResponse](ctx, a, llm.TaskQA, modelID, llm.Request{
			Messages: []llm.Message{
				{Role: llm.RoleSystem, Content: claimBatchExtractionSystem},
				{Role: llm.RoleUser, Content: fmt.Sprintf(claimBatchExtractionUser, string(raw))},
			},
		})
		if err != nil {
			a.logger.Warn("batch claim extraction failed, falling back per section", zap.Error(err))
			for _, cs := range batch {
				sectionClaims, err := a.extractSectionClaims(ctx, modelID, cs.index, cs.section)
				if err != nil {
					return nil, err
				}
				claims = append(claims, sectionClaims...)
			}
			continue
		}

		byIndex := make(map[int][]string, len(resp.Sections))
		for _, sc := range resp.Sections {
			byIndex[sc.SectionIndex] = sc.Claims
		}
		for _, cs := range batch {
			claims = append(claims, buildClaims(cs.index, byIndex[cs.index])...)
		}
	}
	return claims, nil
}

func (a *Agents) extractSectionClaims(ctx context.Context, modelID string, index int, sec Section) ([]Claim, error) {
	resp, err := structuredCall[singleClaimResponse](ctx, a, llm.TaskQA, modelID, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: claimExtractionSystem},
			{Role: llm.RoleUser, Content: fmt.Sprintf(claimExtractionUser, sec.Heading, sec.Content)},
		},
	})
	if err != nil {
		return nil, err
	}
	return buildClaims(index, resp.Claims), nil
}

// buildClaims assigns stable ids and parses citation indices out of the
// claim texts. Claims without citations are dropped.
func buildClaims(sectionIndex int, texts []string) []Claim {
	claims := make([]Claim, 0, len(texts))
	for i, text := range texts {
		indices := citationIndices(text)
		if len(indices) == 0 {
			continue
		}
		claims = append(claims, Claim{
			ClaimID:         fmt.Sprintf("s%d_c%d", sectionIndex, i),
			Text:            text,
			SectionIndex:    sectionIndex,
			CitationIndices: dedupeInts(indices),
		})
	}
	return claims
}

func dedupeInts(in []int) []int {
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, n := range in {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

type verificationVerdict struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence"`
	Rationale  string  `json:"rationale"`
}

// verifyClaim checks one (claim, citation) pair. A failed call is logged
// and returned as an error so the caller drops it from the verification
// counts instead of letting a flaky backend fail QA.
func (a *Agents) verifyClaim(ctx context.Context, modelID string, claim Claim, index int, paper scholar.Paper) (VerificationResult, error) {
	result := VerificationResult{
		ClaimID:       claim.ClaimID,
		ClaimText:     claim.Text,
		CitationIndex: index,
		PaperTitle:    paper.Title,
		Label:         LabelInsufficient,
	}

	verdict, err := structuredCall[verificationVerdict](ctx, a, llm.TaskQA, modelID, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: claimVerificationSystem},
			{Role: llm.RoleUser, Content: fmt.Sprintf(claimVerificationUser,
				claim.Text, index, paper.Title, a.evidenceFor(ctx, claim, paper), paper.CoreContribution)},
		},
	})
	if err != nil {
		a.logger.Warn("claim verification call failed, dropping pair",
			zap.String("claim_id", claim.ClaimID),
			zap.Error(err))
		return result, err
	}

	switch strings.ToLower(strings.TrimSpace(verdict.Label)) {
	case string(LabelEntails):
		result.Label = LabelEntails
	case string(LabelContradicts):
		result.Label = LabelContradicts
	default:
		result.Label = LabelInsufficient
	}

	conf := verdict.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	result.Confidence = conf
	result.EvidenceSnippet = truncate(verdict.Evidence, 500)
	result.Rationale = truncate(verdict.Rationale, 200)
	return result, nil
}

// evidenceFor prefers ingested full-text chunks over the abstract.
func (a *Agents) evidenceFor(ctx context.Context, claim Claim, paper scholar.Paper) string {
	if a.chunks != nil {
		results, err := a.chunks.Search(ctx, paper.PaperID, claim.Text, evidenceTopK, evidenceMinScore)
		if err != nil {
			a.logger.Warn("chunk search failed, using abstract",
				zap.String("paper_id", paper.PaperID),
				zap.Error(err))
		} else if len(results) > 0 {
			if len(results) > evidenceChunks {
				results = results[:evidenceChunks]
			}
			texts := make([]string, 0, len(results))
			for _, r := range results {
				texts = append(texts, r.Text)
			}
			return strings.Join(texts, "\n\n")
		}
	}
	return truncate(paper.Abstract, 1000)
}
