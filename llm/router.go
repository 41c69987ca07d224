package llm

import (
	"os"
	"sort"
)

// Router picks the model for each task from the registry, balancing
// capability fit against cost.
type Router struct {
	registry *Registry
}

// NewRouter creates a router over the given registry.
func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// Select returns the best model for a task. A non-empty override names a
// registry entry directly and wins when it exists and is enabled; otherwise
// candidates are ranked by Score and the highest wins. LLM_MODEL_ID acts as
// a soft default override: it wins when available but never fails selection.
func (r *Router) Select(task TaskType, override string) (*ModelConfig, error) {
	if override != "" {
		if m := r.registry.Get(override); m != nil && m.Enabled {
			return m, nil
		}
		return nil, &ModelError{Model: override, Message: "override model not available"}
	}
	if id := os.Getenv("LLM_MODEL_ID"); id != "" {
		if m := r.registry.Get(id); m != nil && m.Enabled {
			return m, nil
		}
	}

	ranked := r.ranked(task)
	if len(ranked) == 0 {
		return nil, ErrNoModelAvailable
	}
	return ranked[0], nil
}

// FallbackChain returns the models to try for a task in order: the primary
// first, then the remaining candidates by descending score.
func (r *Router) FallbackChain(task TaskType, primary *ModelConfig) []*ModelConfig {
	ranked := r.ranked(task)

	chain := make([]*ModelConfig, 0, len(ranked)+1)
	if primary != nil {
		chain = append(chain, primary)
	}
	for _, m := range ranked {
		if primary != nil && m.ID == primary.ID {
			continue
		}
		chain = append(chain, m)
	}
	return chain
}

// ranked returns the eligible candidates for a task sorted by descending
// score. Candidates are filtered by required capability flags and the
// task's cost-tier cap before scoring. Ties keep registration order
// (sort is stable).
func (r *Router) ranked(task TaskType) []*ModelConfig {
	req := RequirementsFor(task)

	var candidates []*ModelConfig
	for _, m := range r.registry.Enabled() {
		if req.NeedsStructured && !m.Capabilities.JSONMode {
			continue
		}
		if req.NeedsLongContext && !m.Capabilities.LongContext {
			continue
		}
		if req.MaxCostRank > 0 && m.Capabilities.CostRank > req.MaxCostRank {
			continue
		}
		candidates = append(candidates, m)
	}

	// The filters relax rather than fail selection: a task still runs
	// somewhere when no model passes all of them. A model without JSON
	// mode falls back to prompt-guided JSON in the client.
	if len(candidates) == 0 {
		candidates = r.registry.Enabled()
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return Score(candidates[i].Capabilities, req) > Score(candidates[j].Capabilities, req)
	})
	return candidates
}

// Score rates how well a capability profile fits a requirements profile.
// Reasoning weighs heaviest, then creativity and latency, with a cheapness
// bonus so equally capable models prefer the cheaper one.
func Score(caps Capabilities, req Requirements) float64 {
	var s float64
	if req.NeedsReasoning {
		s += 2.0 * float64(caps.Reasoning)
	}
	if req.PrefersCreativity {
		s += 1.5 * float64(caps.Creativity)
	}
	if req.LatencySensitive {
		s += 1.5 * float64(caps.Latency)
	}
	s += 0.8 * float64(4-caps.CostRank)
	return s
}
