package review

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/CAICAIIs/Auto-Scholar/graph"
	"github.com/CAICAIIs/Auto-Scholar/llm"
)

// Reflect analyzes a failed QA pass and decides whether and where to
// retry. With no errors the node is a pass-through; the retry budget is
// enforced here as well as in the routing predicate so an over-eager
// model cannot loop forever.
func (a *Agents) Reflect(ctx context.Context, s State) graph.NodeResult[State] {
	if len(s.QAErrors) == 0 {
		return graph.NodeResult[State]{Delta: graph.Delta{
			"current_agent":  NodeReflection,
			"agent_handoffs": []string{"critic→reflection"},
		}}
	}

	reflection, err := structuredCall[Reflection](ctx, a, llm.TaskReflection, s.ModelID, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: reflectionSystem},
			{Role: llm.RoleUser, Content: fmt.Sprintf(reflectionUser,
				len(writerPapers(s)), s.RetryCount, "- "+strings.Join(s.QAErrors, "\n- "))},
		},
	})
	if err != nil {
		a.logger.Warn("reflection call failed, retrying writer with raw errors", zap.Error(err))
		reflection = &Reflection{
			ShouldRetry: true,
			RetryTarget: RetryTargetWriter,
			Summary:     "Reflection unavailable; retrying writer with the raw QA errors.",
		}
	}

	if reflection.RetryTarget != RetryTargetRetriever {
		reflection.RetryTarget = RetryTargetWriter
	}
	if s.RetryCount >= maxQARetries() {
		reflection.ShouldRetry = false
	}

	logMsg := fmt.Sprintf("Reflection: %d errors analyzed, should_retry=%t, target=%s",
		len(s.QAErrors), reflection.ShouldRetry, reflection.RetryTarget)
	a.logger.Info("reflection: " + logMsg)

	return graph.NodeResult[State]{Delta: graph.Delta{
		"reflection":     reflection,
		"logs":           []string{logMsg},
		"current_agent":  NodeReflection,
		"agent_handoffs": []string{"critic→reflection"},
	}}
}
