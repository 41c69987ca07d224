package review

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/CAICAIIs/Auto-Scholar/graph"
	"github.com/CAICAIIs/Auto-Scholar/scholar"
)

// defaultSources is the search fan-out when the caller picked none.
var defaultSources = []scholar.Source{
	scholar.SourceSemanticScholar,
	scholar.SourceArxiv,
	scholar.SourcePubMed,
}

// Retriever searches the scholarly sources. With a research plan it
// dispatches per sub-question to the preferred source; otherwise it runs
// every keyword across all configured sources. Results are deduplicated
// by paper id, and a downed source degrades to partial results.
func (a *Agents) Retriever(ctx context.Context, s State) graph.NodeResult[State] {
	if len(s.SearchKeywords) == 0 {
		logMsg := "No search keywords available, skipping search"
		a.logger.Warn("retriever: " + logMsg)
		return graph.NodeResult[State]{Delta: graph.Delta{
			"candidate_papers": []scholar.Paper{},
			"logs":             []string{logMsg},
			"current_agent":    NodeRetriever,
			"agent_handoffs":   []string{"planner→retriever"},
		}}
	}

	sources := s.SearchSources
	if len(sources) == 0 {
		sources = defaultSources
	}

	var (
		papers []scholar.Paper
		logMsg string
		err    error
	)
	if plan := s.ResearchPlan; plan != nil && len(plan.SubQuestions) > 0 {
		a.logger.Info("retriever: plan-aware search",
			zap.Int("sub_questions", len(plan.SubQuestions)))
		papers, err = a.search.SearchByPlan(ctx, plan, scholar.PapersPerQuery)
		logMsg = fmt.Sprintf("Found %d unique papers from %d sub-questions (sources: %v)",
			len(papers), len(plan.SubQuestions), plan.Sources())
	} else {
		a.logger.Info("retriever: multi-source search",
			zap.Int("keywords", len(s.SearchKeywords)),
			zap.Any("sources", sources))
		papers, err = a.search.SearchMultiSource(ctx, s.SearchKeywords, sources, scholar.PapersPerQuery)
		logMsg = fmt.Sprintf("Found %d unique papers across %d queries from %v",
			len(papers), len(s.SearchKeywords), sources)
	}
	if err != nil {
		return graph.NodeResult[State]{Err: err}
	}

	a.logger.Info("retriever: " + logMsg)
	return graph.NodeResult[State]{Delta: graph.Delta{
		"candidate_papers": papers,
		"logs":             []string{logMsg},
		"current_agent":    NodeRetriever,
		"agent_handoffs":   []string{"planner→retriever"},
	}}
}
