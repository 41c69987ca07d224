package review

import (
	"github.com/CAICAIIs/Auto-Scholar/graph"
	"github.com/CAICAIIs/Auto-Scholar/graph/emit"
	"github.com/CAICAIIs/Auto-Scholar/graph/store"
)

// maxWorkflowSteps bounds one run well above the worst legitimate path
// (six nodes plus three full QA retry loops).
const maxWorkflowSteps = 50

// NewWorkflow assembles the review graph:
//
//	planner → retriever → extractor → writer → critic
//	                          ▲          ▲       │ qa errors
//	                          └──────────┴── reflection
//
// The engine pauses before the extractor so the caller can approve
// papers. The critic routes to reflection only on QA errors; reflection
// routes back to the writer or retriever while the retry budget lasts,
// otherwise the run terminates with the draft as-is.
func NewWorkflow(agents *Agents, st store.Store[State], emitter emit.Emitter, metrics *graph.Metrics) (*graph.Engine[State], error) {
	eng := graph.New[State](MergeSchema(), st, emitter, graph.Options{
		MaxSteps: maxWorkflowSteps,
		Metrics:  metrics,
	})

	nodes := map[string]graph.NodeFunc[State]{
		NodePlanner:    agents.Planner,
		NodeRetriever:  agents.Retriever,
		NodeExtractor:  agents.Extractor,
		NodeWriter:     agents.Writer,
		NodeCritic:     agents.Critic,
		NodeReflection: agents.Reflect,
	}
	for id, fn := range nodes {
		if err := eng.Add(id, fn); err != nil {
			return nil, err
		}
	}
	if err := eng.StartAt(NodePlanner); err != nil {
		return nil, err
	}

	edges := []struct {
		from, to string
		when     graph.Predicate[State]
	}{
		{NodePlanner, NodeRetriever, nil},
		{NodeRetriever, NodeExtractor, nil},
		{NodeExtractor, NodeWriter, nil},
		{NodeWriter, NodeCritic, nil},
		{NodeCritic, NodeReflection, func(s State) bool { return len(s.QAErrors) > 0 }},
		{NodeReflection, NodeWriter, func(s State) bool {
			return shouldRetry(s) && s.Reflection.RetryTarget != RetryTargetRetriever
		}},
		{NodeReflection, NodeRetriever, func(s State) bool {
			return shouldRetry(s) && s.Reflection.RetryTarget == RetryTargetRetriever
		}},
	}
	for _, e := range edges {
		if err := eng.Connect(e.from, e.to, e.when); err != nil {
			return nil, err
		}
	}

	eng.InterruptBefore(NodeExtractor)
	return eng, nil
}

func shouldRetry(s State) bool {
	return s.Reflection != nil && s.Reflection.ShouldRetry && s.RetryCount < maxQARetries()
}
