package review

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/CAICAIIs/Auto-Scholar/graph"
	"github.com/CAICAIIs/Auto-Scholar/scholar"
)

// Critic validates the draft. Cheap rule checks run first: citation
// indices in range, every section cites something, every paper cited
// somewhere. Only a rule-clean draft pays for semantic claim
// verification. Any error increments the retry counter; routing to
// reflection is the workflow's edge predicate, not the critic's.
func (a *Agents) Critic(ctx context.Context, s State) graph.NodeResult[State] {
	if s.FinalDraft == nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("critic: no draft to review")}
	}
	papers := writerPapers(s)

	qaErrors := ruleCheck(s.FinalDraft, papers)

	var summary *VerificationSummary
	if len(qaErrors) == 0 && a.verifyClaims {
		var err error
		summary, err = a.verifyDraftClaims(ctx, s, papers)
		if err != nil {
			a.logger.Warn("critic: claim verification failed, passing draft on rule checks only", zap.Error(err))
		} else if summary != nil {
			qaErrors = append(qaErrors, entailmentErrors(summary)...)
		}
	}

	if len(qaErrors) == 0 {
		logMsg := "QA passed: draft accepted"
		a.logger.Info("critic: " + logMsg)
		return graph.NodeResult[State]{Delta: graph.Delta{
			"qa_errors":          []string{},
			"claim_verification": summary,
			"logs":               []string{logMsg},
			"current_agent":      NodeCritic,
			"agent_handoffs":     []string{"writer→critic"},
		}}
	}

	logMsg := fmt.Sprintf("QA failed: %d errors (retry %d/%d)", len(qaErrors), s.RetryCount+1, maxQARetries())
	a.logger.Warn("critic: "+logMsg, zap.Strings("errors", qaErrors))
	return graph.NodeResult[State]{Delta: graph.Delta{
		"qa_errors":          qaErrors,
		"retry_count":        s.RetryCount + 1,
		"claim_verification": summary,
		"logs":               []string{logMsg},
		"current_agent":      NodeCritic,
		"agent_handoffs":     []string{"writer→critic"},
	}}
}

// ruleCheck runs the deterministic citation checks over a draft.
func ruleCheck(draft *Draft, papers []scholar.Paper) []string {
	var errs []string
	cited := make(map[int]bool)

	for i, sec := range draft.Sections {
		indices := citationIndices(sec.Content)
		if len(indices) == 0 {
			errs = append(errs, fmt.Sprintf("Section %d: No citations found in content", i+1))
			continue
		}
		for _, n := range indices {
			if n < 1 || n > len(papers) {
				errs = append(errs, fmt.Sprintf("Section %d: Hallucinated citation index %d (valid range: 1-%d)", i+1, n, len(papers)))
			} else {
				cited[n] = true
			}
		}
	}

	for n := 1; n <= len(papers); n++ {
		if !cited[n] {
			errs = append(errs, fmt.Sprintf("Missing citation: paper [%d] was approved but not cited", n))
		}
	}
	return errs
}

// entailmentErrors turns a failed verification summary into QA errors.
func entailmentErrors(summary *VerificationSummary) []string {
	ratio := summary.EntailmentRatio()
	if ratio >= MinEntailmentRatio {
		return nil
	}
	errs := []string{fmt.Sprintf("Low entailment ratio: %.2f of %d verifications supported (threshold %.2f)",
		ratio, summary.TotalVerifications, MinEntailmentRatio)}
	for i, f := range summary.FailedVerifications {
		if i >= 3 {
			break
		}
		errs = append(errs, fmt.Sprintf("Unsupported claim (cited [%d] %s): %s",
			f.CitationIndex, f.PaperTitle, truncate(f.ClaimText, 120)))
	}
	return errs
}
