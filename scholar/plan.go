package scholar

// SubQuestion is one facet of a decomposed research query, with the
// keywords to search, the source best suited to answer it, and how many
// papers it is expected to need.
type SubQuestion struct {
	Question        string   `json:"question"`
	Keywords        []string `json:"keywords"`
	PreferredSource Source   `json:"preferred_source"`
	Priority        int      `json:"priority"`
	EstimatedPapers int      `json:"estimated_papers"`
}

// ResearchPlan is the planner's chain-of-thought decomposition of a query.
type ResearchPlan struct {
	Reasoning            string        `json:"reasoning"`
	SubQuestions         []SubQuestion `json:"sub_questions"`
	TotalEstimatedPapers int           `json:"total_estimated_papers"`
}

// Sources returns the distinct preferred sources in plan order.
func (p *ResearchPlan) Sources() []Source {
	if p == nil {
		return nil
	}
	seen := make(map[Source]struct{}, len(p.SubQuestions))
	var out []Source
	for _, sq := range p.SubQuestions {
		if _, ok := seen[sq.PreferredSource]; ok {
			continue
		}
		seen[sq.PreferredSource] = struct{}{}
		out = append(out, sq.PreferredSource)
	}
	return out
}

// AllKeywords flattens the sub-question keywords preserving first
// occurrence, capped at limit when limit > 0.
func (p *ResearchPlan) AllKeywords(limit int) []string {
	if p == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, sq := range p.SubQuestions {
		for _, kw := range sq.Keywords {
			if _, ok := seen[kw]; ok {
				continue
			}
			seen[kw] = struct{}{}
			out = append(out, kw)
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}
