package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/CAICAIIs/Auto-Scholar/graph"
	"github.com/CAICAIIs/Auto-Scholar/graph/store"
	"github.com/CAICAIIs/Auto-Scholar/llm"
	"github.com/CAICAIIs/Auto-Scholar/scholar"
	"github.com/CAICAIIs/Auto-Scholar/stream"
)

// Service errors, mapped to HTTP statuses by the server layer.
var (
	ErrThreadNotFound      = errors.New("thread not found")
	ErrNotAwaitingApproval = errors.New("thread is not awaiting paper approval")
	ErrNoMatchingPapers    = errors.New("no candidate papers match the approved ids")
	ErrNoDraft             = errors.New("thread has no draft to continue from")
)

// Service is the caller-facing surface over the review workflow: start a
// session, approve papers, stream execution, continue a finished session,
// and inspect state.
type Service struct {
	engine   *graph.Engine[State]
	agents   *Agents
	registry *llm.Registry
	ledger   *llm.Ledger
	logger   *zap.Logger
}

// NewService wires the service. The ledger may be nil, disabling cost
// events on the stream.
func NewService(engine *graph.Engine[State], agents *Agents, registry *llm.Registry, ledger *llm.Ledger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{engine: engine, agents: agents, registry: registry, ledger: ledger, logger: logger}
}

// StartRequest begins a research session.
type StartRequest struct {
	Query          string           `json:"query"`
	OutputLanguage string           `json:"output_language"`
	Sources        []scholar.Source `json:"sources"`
	ModelID        string           `json:"model_id"`
}

// StartResult is the paused session awaiting paper approval.
type StartResult struct {
	ThreadID   string                `json:"thread_id"`
	Keywords   []string              `json:"search_keywords"`
	Plan       *scholar.ResearchPlan `json:"research_plan,omitempty"`
	Candidates []scholar.Paper       `json:"candidate_papers"`
	Logs       []string              `json:"logs"`
}

// Start runs planning and retrieval synchronously, pausing before
// extraction so the caller can pick papers. A context deadline surfaces
// as context.DeadlineExceeded for the server to map to a timeout status.
func (s *Service) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	threadID := uuid.NewString()

	initial := State{
		TaskID:         threadID,
		UserQuery:      req.Query,
		OutputLanguage: req.OutputLanguage,
		SearchSources:  req.Sources,
		ModelID:        req.ModelID,
		Messages: []ConversationMessage{{
			Role:     RoleUser,
			Content:  req.Query,
			Metadata: map[string]string{"action": "start_research"},
		}},
	}

	runCtx, cancel := context.WithTimeout(ctx, workflowTimeout())
	defer cancel()

	result, err := s.engine.Run(runCtx, threadID, &initial, nil)
	if err != nil {
		return nil, err
	}
	if result.Status != graph.StatusPaused {
		return nil, fmt.Errorf("workflow completed without pausing for approval")
	}

	s.logger.Info("session started",
		zap.String("thread_id", threadID),
		zap.Int("candidates", len(result.State.CandidatePapers)))

	return &StartResult{
		ThreadID:   threadID,
		Keywords:   result.State.SearchKeywords,
		Plan:       result.State.ResearchPlan,
		Candidates: result.State.CandidatePapers,
		Logs:       result.State.Logs,
	}, nil
}

// Approve marks the chosen candidate papers approved and records the
// decision, leaving the workflow paused for the stream call to resume.
// Papers outside the id list keep their earlier decision; re-approving an
// already approved paper is a no-op. Returns the number of papers newly
// flipped to approved.
func (s *Service) Approve(ctx context.Context, threadID string, paperIDs []string) (int, error) {
	rec, err := s.latest(ctx, threadID)
	if err != nil {
		return 0, err
	}
	if !pendingContains(rec.Next, NodeExtractor) {
		return 0, ErrNotAwaitingApproval
	}

	wanted := make(map[string]bool, len(paperIDs))
	for _, id := range paperIDs {
		wanted[id] = true
	}

	candidates := make([]scholar.Paper, len(rec.State.CandidatePapers))
	copy(candidates, rec.State.CandidatePapers)
	matched, newly := 0, 0
	for i := range candidates {
		if !wanted[candidates[i].PaperID] {
			continue
		}
		matched++
		if !candidates[i].Approved {
			candidates[i].Approved = true
			newly++
		}
	}
	if matched == 0 {
		return 0, ErrNoMatchingPapers
	}

	var approved []scholar.Paper
	for _, c := range candidates {
		if c.Approved {
			approved = append(approved, c)
		}
	}

	delta := graph.Delta{
		"candidate_papers": candidates,
		"approved_papers":  approved,
		"messages": []ConversationMessage{{
			Role:     RoleUser,
			Content:  fmt.Sprintf("Approved %d papers for the review", newly),
			Metadata: map[string]string{"action": "approve_papers"},
		}},
	}
	if err := s.engine.UpdateState(ctx, threadID, delta, ""); err != nil {
		return 0, err
	}

	s.logger.Info("papers approved",
		zap.String("thread_id", threadID),
		zap.Int("newly_approved", newly),
		zap.Int("total_approved", len(approved)))
	return newly, nil
}

// Stream resumes a paused thread and returns the event queue the caller
// drains. Execution runs in the background; the queue closes after the
// completed, paused, or error event.
func (s *Service) Stream(ctx context.Context, threadID string) (*stream.Queue, error) {
	if _, err := s.latest(ctx, threadID); err != nil {
		return nil, err
	}

	q := stream.NewQueue()
	go s.runStream(ctx, threadID, q)
	return q, nil
}

func (s *Service) runStream(ctx context.Context, threadID string, q *stream.Queue) {
	defer q.Close()

	runCtx, cancel := context.WithTimeout(ctx, workflowTimeout())
	defer cancel()

	// The writer's single-call modes stream structured JSON; only the
	// content field reaches the consumer as token events.
	extractor := stream.NewFieldExtractor("content", false, q.PushToken)
	runCtx = WithTokenSink(runCtx, extractor.Feed)

	onStep := func(info graph.StepInfo[State]) {
		if logs, ok := info.Delta["logs"].([]string); ok {
			for _, line := range logs {
				q.Publish(stream.Event{Type: stream.EventLog, Data: map[string]any{
					"node": info.NodeID,
					"log":  line,
				}})
			}
		}
		if info.NodeID == NodePlanner && info.State.ResearchPlan != nil {
			q.Publish(stream.Event{Type: stream.EventPlan, Data: map[string]any{
				"research_plan": info.State.ResearchPlan,
			}})
		}
		if info.NodeID == NodeReflection && info.State.Reflection != nil {
			q.Publish(stream.Event{Type: stream.EventReflection, Data: map[string]any{
				"reflection": info.State.Reflection,
			}})
		}
		if s.ledger != nil {
			q.Publish(stream.Event{Type: stream.EventCost, Data: map[string]any{
				"total_cost": s.ledger.TotalCost(),
			}})
		}
	}

	result, err := s.engine.Run(runCtx, threadID, nil, onStep)
	if err != nil {
		s.logger.Error("stream run failed",
			zap.String("thread_id", threadID),
			zap.Error(err))
		q.Publish(stream.Event{Type: stream.EventError, Data: map[string]any{
			"message": err.Error(),
		}})
		return
	}

	if result.Status == graph.StatusPaused {
		// A reflection retry through the retriever lands back at the
		// approval gate with fresh candidates.
		q.Publish(stream.Event{Type: stream.EventLog, Data: map[string]any{
			"node": "system",
			"log":  "Paused awaiting paper approval",
		}})
		return
	}

	s.complete(ctx, threadID, result.State, q)
}

// complete normalizes citations once, persists the final draft and the
// assistant turn, and publishes the completion payload.
func (s *Service) complete(ctx context.Context, threadID string, st State, q *stream.Queue) {
	papers := writerPapers(st)
	normalized := NormalizeDraftCitations(st.FinalDraft, papers, s.logger)

	if normalized != nil {
		delta := graph.Delta{
			"final_draft": normalized,
			"messages": []ConversationMessage{{
				Role:     RoleAssistant,
				Content:  RenderMarkdown(normalized, papers),
				Metadata: map[string]string{"action": "deliver_review"},
			}},
		}
		if err := s.engine.UpdateState(ctx, threadID, delta, ""); err != nil {
			s.logger.Warn("persisting final draft failed",
				zap.String("thread_id", threadID),
				zap.Error(err))
		}
	}

	data := map[string]any{
		"thread_id":        threadID,
		"draft":            normalized,
		"candidate_papers": st.CandidatePapers,
		"research_plan":    st.ResearchPlan,
		"reflection":       st.Reflection,
		"retry_count":      st.RetryCount,
	}
	if st.ClaimVerification != nil {
		data["claim_verification"] = st.ClaimVerification
	}
	if s.ledger != nil {
		data["total_cost"] = s.ledger.TotalCost()
	}
	q.Publish(stream.Event{Type: stream.EventCompleted, Data: data})
}

// Continue records a follow-up request against a finished thread and
// re-arms the workflow from the start node. The caller streams to run it.
func (s *Service) Continue(ctx context.Context, threadID, query, modelID string) error {
	rec, err := s.latest(ctx, threadID)
	if err != nil {
		return err
	}
	if rec.State.FinalDraft == nil {
		return ErrNoDraft
	}
	if turns := userTurns(rec.State.Messages); turns >= MaxConversationTurns {
		return fmt.Errorf("conversation limit of %d turns reached", MaxConversationTurns)
	}

	delta := graph.Delta{
		"user_query":      query,
		"is_continuation": true,
		"qa_errors":       []string{},
		"retry_count":     0,
		"reflection":      (*Reflection)(nil),
		"messages": []ConversationMessage{{
			Role:     RoleUser,
			Content:  query,
			Metadata: map[string]string{"action": "continue_research"},
		}},
	}
	if modelID != "" {
		delta["model_id"] = modelID
	}
	return s.engine.UpdateState(ctx, threadID, delta, graph.StartNodeID)
}

// Status is a cheap snapshot of one thread.
type Status struct {
	ThreadID   string    `json:"thread_id"`
	Step       int       `json:"step"`
	NodeID     string    `json:"node_id"`
	Next       []string  `json:"next"`
	HasDraft   bool      `json:"has_draft"`
	RetryCount int       `json:"retry_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Status reports where a thread is without loading its history.
func (s *Service) Status(ctx context.Context, threadID string) (*Status, error) {
	rec, err := s.latest(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return &Status{
		ThreadID:   threadID,
		Step:       rec.Step,
		NodeID:     rec.NodeID,
		Next:       rec.Next,
		HasDraft:   rec.State.FinalDraft != nil,
		RetryCount: rec.State.RetryCount,
		UpdatedAt:  rec.CreatedAt,
	}, nil
}

// SessionSummary is one row in the session list.
type SessionSummary struct {
	ThreadID  string    `json:"thread_id"`
	Query     string    `json:"query"`
	HasDraft  bool      `json:"has_draft"`
	Papers    int       `json:"papers"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sessions lists all known threads, most recent first. Threads whose
// checkpoints cannot be loaded are skipped.
func (s *Service) Sessions(ctx context.Context) ([]SessionSummary, error) {
	ids, err := s.engine.Tasks(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SessionSummary, 0, len(ids))
	for _, id := range ids {
		rec, err := s.engine.Latest(ctx, id)
		if err != nil {
			s.logger.Warn("skipping unreadable session", zap.String("thread_id", id), zap.Error(err))
			continue
		}
		out = append(out, SessionSummary{
			ThreadID:  id,
			Query:     rec.State.UserQuery,
			HasDraft:  rec.State.FinalDraft != nil,
			Papers:    len(rec.State.ApprovedPapers),
			UpdatedAt: rec.CreatedAt,
		})
	}
	return out, nil
}

// Session returns a thread's full latest state.
func (s *Service) Session(ctx context.Context, threadID string) (*State, error) {
	rec, err := s.latest(ctx, threadID)
	if err != nil {
		return nil, err
	}
	state := rec.State
	return &state, nil
}

// ModelInfo is the caller-visible description of a configured model.
type ModelInfo struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Models lists the enabled models. Credentials never leave the registry.
func (s *Service) Models() []ModelInfo {
	if s.registry == nil {
		return nil
	}
	models := s.registry.Enabled()
	out := make([]ModelInfo, 0, len(models))
	for _, m := range models {
		out = append(out, ModelInfo{ID: m.ID, Provider: m.Provider, Model: m.ModelName})
	}
	return out
}

// Export renders a thread's review as a markdown document.
func (s *Service) Export(ctx context.Context, threadID string) (string, error) {
	rec, err := s.latest(ctx, threadID)
	if err != nil {
		return "", err
	}
	if rec.State.FinalDraft == nil {
		return "", ErrNoDraft
	}
	return RenderMarkdown(rec.State.FinalDraft, writerPapers(rec.State)), nil
}

func (s *Service) latest(ctx context.Context, threadID string) (store.Record[State], error) {
	rec, err := s.engine.Latest(ctx, threadID)
	if errors.Is(err, store.ErrNotFound) {
		return rec, ErrThreadNotFound
	}
	var engErr *graph.EngineError
	if errors.As(err, &engErr) && engErr.Code == "TASK_NOT_FOUND" {
		return rec, ErrThreadNotFound
	}
	return rec, err
}

func pendingContains(next []string, nodeID string) bool {
	for _, id := range next {
		if id == nodeID {
			return true
		}
	}
	return false
}

func userTurns(messages []ConversationMessage) int {
	n := 0
	for _, m := range messages {
		if m.Role == RoleUser && m.Metadata["action"] != "approve_papers" {
			n++
		}
	}
	return n
}
