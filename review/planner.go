package review

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/CAICAIIs/Auto-Scholar/graph"
	"github.com/CAICAIIs/Auto-Scholar/llm"
	"github.com/CAICAIIs/Auto-Scholar/scholar"
)

type keywordPlan struct {
	Keywords []string `json:"keywords"`
}

// Planner decomposes the query into search keywords. Substantial fresh
// queries get a chain-of-thought research plan whose sub-question keywords
// are flattened (first occurrence wins, capped at MaxKeywords);
// continuations and short queries get a flat keyword list, with recent
// conversation context prepended on continuation.
func (a *Agents) Planner(ctx context.Context, s State) graph.NodeResult[State] {
	useCoT := len(strings.TrimSpace(s.UserQuery)) >= cotQueryMinLength && !s.IsContinuation

	a.logger.Info("planner: decomposing query",
		zap.String("query", s.UserQuery),
		zap.Bool("continuation", s.IsContinuation),
		zap.Bool("cot", useCoT))

	if useCoT {
		plan, err := structuredCall[scholar.ResearchPlan](ctx, a, llm.TaskPlanning, s.ModelID, llm.Request{
			Messages: []llm.Message{
				{Role: llm.RoleSystem, Content: plannerCoTSystem},
				{Role: llm.RoleUser, Content: s.UserQuery},
			},
		})
		if err != nil {
			return graph.NodeResult[State]{Err: err}
		}

		keywords := plan.AllKeywords(MaxKeywords)
		logs := []string{
			fmt.Sprintf("Research plan: %d sub-questions identified", len(plan.SubQuestions)),
			fmt.Sprintf("Reasoning: %s", truncate(plan.Reasoning, 200)),
			fmt.Sprintf("Generated %d search keywords: %v", len(keywords), keywords),
		}
		return graph.NodeResult[State]{Delta: graph.Delta{
			"search_keywords": keywords,
			"research_plan":   plan,
			"logs":            logs,
			"current_agent":   NodePlanner,
			"agent_handoffs":  []string{"→planner"},
		}}
	}

	system := keywordGenerationSystem
	if s.IsContinuation && len(s.Messages) > 0 {
		system += fmt.Sprintf(keywordcontinuationAddendum, buildConversationContext(s.Messages))
	}

	result, err := structuredCall[keywordPlan](ctx, a, llm.TaskPlanning, s.ModelID, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: s.UserQuery},
		},
	})
	if err != nil {
		return graph.NodeResult[State]{Err: err}
	}

	keywords := result.Keywords
	if len(keywords) > MaxKeywords {
		keywords = keywords[:MaxKeywords]
	}
	logMsg := fmt.Sprintf("Generated %d search keywords: %v", len(keywords), keywords)
	a.logger.Info("planner: " + logMsg)

	return graph.NodeResult[State]{Delta: graph.Delta{
		"search_keywords": keywords,
		"research_plan":   (*scholar.ResearchPlan)(nil),
		"logs":            []string{logMsg},
		"current_agent":   NodePlanner,
		"agent_handoffs":  []string{"→planner"},
	}}
}
