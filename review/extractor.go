package review

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/CAICAIIs/Auto-Scholar/graph"
	"github.com/CAICAIIs/Auto-Scholar/llm"
	"github.com/CAICAIIs/Auto-Scholar/scholar"
)

// Extractor distills each approved paper into a core contribution sentence
// and a structured aspect breakdown. Approved papers are prioritized by
// the research plan first, so the stored order matches the numbering every
// downstream consumer uses. Extraction runs concurrently per paper; a
// paper whose extraction fails is logged and dropped. Full-text enrichment
// and gateway ingestion follow when configured.
func (a *Agents) Extractor(ctx context.Context, s State) graph.NodeResult[State] {
	papers := s.ApprovedPapers
	if len(papers) == 0 {
		logMsg := "No approved papers, nothing to extract"
		a.logger.Warn("extractor: " + logMsg)
		return graph.NodeResult[State]{Delta: graph.Delta{
			"selected_papers": []scholar.Paper{},
			"logs":            []string{logMsg},
			"current_agent":   NodeExtractor,
			"agent_handoffs":  []string{"retriever→extractor"},
		}}
	}

	logs := make([]string, 0, 4)
	papers = prioritizeBySubQuestions(papers, s.ResearchPlan)
	if len(papers) > ContextMaxPapers {
		logs = append(logs, fmt.Sprintf("Truncating %d approved papers to limit %d", len(papers), ContextMaxPapers))
		papers = papers[:ContextMaxPapers]
	}

	extracted := make([]scholar.Paper, len(papers))
	copy(extracted, papers)
	failed := make([]bool, len(extracted))

	var (
		wg  sync.WaitGroup
		sem = semaphore.NewWeighted(int64(extractionConcurrency()))
	)
	for i := range extracted {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			if err := a.extractPaper(ctx, s.ModelID, &extracted[i]); err != nil {
				a.logger.Warn("extractor: extraction failed, skipping paper",
					zap.String("paper_id", extracted[i].PaperID),
					zap.Error(err))
				failed[i] = true
			}
		}(i)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return graph.NodeResult[State]{Err: err}
	}

	selected := make([]scholar.Paper, 0, len(extracted))
	for i, p := range extracted {
		if !failed[i] {
			selected = append(selected, p)
		}
	}
	logs = append(logs, fmt.Sprintf("Extracted contributions for %d/%d papers", len(selected), len(extracted)))

	if a.enricher != nil {
		selected = scholar.EnrichFulltext(ctx, a.enricher, selected, scholar.FulltextConcurrency, a.logger)
		withPDF := 0
		for _, p := range selected {
			if p.PDFURL != "" {
				withPDF++
			}
		}
		logs = append(logs, fmt.Sprintf("Full-text PDF located for %d/%d papers", withPDF, len(selected)))
	}

	if a.gateway != nil && a.gateway.Configured() {
		results, err := a.gateway.SubmitPapers(ctx, selected)
		if err != nil {
			a.logger.Warn("extractor: gateway submission failed", zap.Error(err))
			logs = append(logs, "Full-text ingestion unavailable, continuing with abstracts")
		} else if len(results) > 0 {
			accepted := 0
			for _, r := range results {
				if r.Status == http.StatusAccepted || r.TaskID != "" {
					accepted++
				}
			}
			logs = append(logs, fmt.Sprintf("Submitted %d papers for full-text ingestion (%d accepted)", len(results), accepted))
		}
	}

	return graph.NodeResult[State]{Delta: graph.Delta{
		"selected_papers": selected,
		"logs":            logs,
		"current_agent":   NodeExtractor,
		"agent_handoffs":  []string{"retriever→extractor"},
	}}
}

type coreContribution struct {
	Contribution string `json:"contribution"`
}

// extractPaper fills the paper's contribution fields in place. Both the
// core sentence and the structured aspects are extracted; an error from
// either call makes the caller drop the paper. A successful call that
// returns an empty contribution falls back to the abstract.
func (a *Agents) extractPaper(ctx context.Context, modelID string, p *scholar.Paper) error {
	user := fmt.Sprintf(contributionExtractionUser, p.Title, p.Year, p.Abstract)

	core, coreErr := structuredCall[coreContribution](ctx, a, llm.TaskExtraction, modelID, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: contributionExtractionSystem},
			{Role: llm.RoleUser, Content: user},
		},
	})
	if coreErr == nil && core.Contribution != "" {
		p.CoreContribution = core.Contribution
	} else if p.CoreContribution == "" {
		p.CoreContribution = truncate(p.Abstract, 200)
	}

	structured, structErr := structuredCall[scholar.Contribution](ctx, a, llm.TaskExtraction, modelID, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: structuredExtractionSystem},
			{Role: llm.RoleUser, Content: user},
		},
	})
	if structErr == nil && !structured.Empty() {
		p.StructuredContribution = structured
	}

	if coreErr != nil {
		return coreErr
	}
	return structErr
}
