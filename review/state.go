// Package review implements the literature-review workflow: six agents
// (planner, retriever, extractor, writer, critic, reflection) over a
// checkpointed graph, citation verification, and the caller-facing service
// surface (start, approve, stream, continue, status, sessions, export).
package review

import (
	"github.com/CAICAIIs/Auto-Scholar/graph"
	"github.com/CAICAIIs/Auto-Scholar/scholar"
)

// Message roles in the conversation log.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationMessage is one turn of the user/assistant dialogue attached
// to a session.
type ConversationMessage struct {
	Role     string            `json:"role"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// State is the session state shared by all workflow nodes. Nodes receive
// it read-only and return partial deltas; the engine merges them under
// MergeSchema.
type State struct {
	TaskID         string           `json:"task_id"`
	UserQuery      string           `json:"user_query"`
	OutputLanguage string           `json:"output_language"`
	SearchSources  []scholar.Source `json:"search_sources"`
	ModelID        string           `json:"model_id,omitempty"`
	IsContinuation bool             `json:"is_continuation"`

	SearchKeywords []string              `json:"search_keywords"`
	ResearchPlan   *scholar.ResearchPlan `json:"research_plan"`

	CandidatePapers []scholar.Paper `json:"candidate_papers"`
	ApprovedPapers  []scholar.Paper `json:"approved_papers"`
	SelectedPapers  []scholar.Paper `json:"selected_papers"`

	FinalDraft   *Draft   `json:"final_draft"`
	DraftOutline *Outline `json:"draft_outline"`

	QAErrors          []string             `json:"qa_errors"`
	RetryCount        int                  `json:"retry_count"`
	Reflection        *Reflection          `json:"reflection"`
	ClaimVerification *VerificationSummary `json:"claim_verification"`

	Messages      []ConversationMessage `json:"messages"`
	Logs          []string              `json:"logs"`
	CurrentAgent  string                `json:"current_agent"`
	AgentHandoffs []string              `json:"agent_handoffs"`
}

// MergeSchema declares the per-field merge policy. The conversation log,
// diagnostics, and handoff trail accumulate across nodes; everything else
// is last-writer-wins, including retry_count, whose incremented value the
// critic authors explicitly.
func MergeSchema() graph.Schema {
	return graph.Schema{
		"task_id":            graph.Replace,
		"user_query":         graph.Replace,
		"output_language":    graph.Replace,
		"search_sources":     graph.Replace,
		"model_id":           graph.Replace,
		"is_continuation":    graph.Replace,
		"search_keywords":    graph.Replace,
		"research_plan":      graph.Replace,
		"candidate_papers":   graph.Replace,
		"approved_papers":    graph.Replace,
		"selected_papers":    graph.Replace,
		"final_draft":        graph.Replace,
		"draft_outline":      graph.Replace,
		"qa_errors":          graph.Replace,
		"retry_count":        graph.Replace,
		"reflection":         graph.Replace,
		"claim_verification": graph.Replace,
		"messages":           graph.Append,
		"logs":               graph.Append,
		"current_agent":      graph.Replace,
		"agent_handoffs":     graph.Append,
	}
}

// writerPapers returns the paper list the writer and critic index into:
// the extracted selection, or the approved set when extraction produced
// nothing.
func writerPapers(s State) []scholar.Paper {
	if len(s.SelectedPapers) > 0 {
		return s.SelectedPapers
	}
	return s.ApprovedPapers
}
