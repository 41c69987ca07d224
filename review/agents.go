package review

import (
	"context"

	"go.uber.org/zap"

	"github.com/CAICAIIs/Auto-Scholar/llm"
	"github.com/CAICAIIs/Auto-Scholar/rag"
	"github.com/CAICAIIs/Auto-Scholar/scholar"
)

// Workflow node IDs.
const (
	NodePlanner    = "planner"
	NodeRetriever  = "retriever"
	NodeExtractor  = "extractor"
	NodeWriter     = "writer"
	NodeCritic     = "critic"
	NodeReflection = "reflection"
)

// Config wires the agents' collaborators. Invoker, Router and Search are
// required; the rest are optional and degrade gracefully when absent.
type Config struct {
	Invoker llm.Invoker
	Router  *llm.Router
	Search  *scholar.Client

	// Enricher resolves full-text PDF URLs after extraction.
	Enricher scholar.Enricher

	// Gateway receives papers with full text for background ingestion.
	Gateway *rag.Gateway

	// Chunks serves full-text evidence during claim verification.
	Chunks rag.Store

	Logger *zap.Logger
}

// Agents holds the six workflow agents and their shared collaborators.
type Agents struct {
	inv      llm.Invoker
	router   *llm.Router
	search   *scholar.Client
	enricher scholar.Enricher
	gateway  *rag.Gateway
	chunks   rag.Store
	logger   *zap.Logger

	verifyClaims bool
}

// NewAgents builds the agent set. Claim verification is controlled by
// CLAIM_VERIFICATION_ENABLED (default on).
func NewAgents(cfg Config) *Agents {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agents{
		inv:          cfg.Invoker,
		router:       cfg.Router,
		search:       cfg.Search,
		enricher:     cfg.Enricher,
		gateway:      cfg.Gateway,
		chunks:       cfg.Chunks,
		logger:       logger,
		verifyClaims: claimVerificationEnabled(),
	}
}

// structuredCall routes the task to a model (honoring the session
// override) and requests a structured completion.
func structuredCall[T any](ctx context.Context, a *Agents, task llm.TaskType, override string, req llm.Request) (*T, error) {
	model, err := a.router.Select(task, override)
	if err != nil {
		return nil, err
	}
	req.Model = model
	req.Task = task
	return llm.Structured[T](ctx, a.inv, req)
}

// tokenSinkKey carries a per-run token callback through the context so a
// streaming consumer can observe draft tokens as they are generated.
type tokenSinkKey struct{}

// WithTokenSink attaches a token callback to the context. The writer's
// single-call generation modes stream through it.
func WithTokenSink(ctx context.Context, fn func(token string)) context.Context {
	return context.WithValue(ctx, tokenSinkKey{}, fn)
}

func tokenSink(ctx context.Context) func(string) {
	fn, _ := ctx.Value(tokenSinkKey{}).(func(string))
	return fn
}
