package review

import (
	"os"
	"strconv"
	"time"
)

// Search and planning.
const (
	// MaxKeywords caps the planner's keyword list.
	MaxKeywords = 5

	// cotQueryMinLength is the query length below which the planner skips
	// chain-of-thought decomposition.
	cotQueryMinLength = 10

	// MaxConversationTurns bounds the dialogue history carried into
	// continuation prompts (user+assistant pairs).
	MaxConversationTurns = 5
)

// QA retry loop.
const (
	// MaxQARetries bounds the critic-reflection-writer loop.
	MaxQARetries = 3
)

// Context engineering.
const (
	// ContextTokenBudget caps the estimated tokens of paper context fed
	// to the writer.
	ContextTokenBudget = 40000

	// ContextMaxPapers is the hard ceiling on papers entering a context.
	ContextMaxPapers = 200

	// ContextOverflowWarningThreshold flags multi-turn accumulation.
	ContextOverflowWarningThreshold = 100

	// tokensPerPaperFallback is the per-paper estimate used when token
	// counting is unavailable.
	tokensPerPaperFallback = 180
)

// Generation token ceilings, scaled by paper count.
const (
	draftBaseTokens    = 2000
	draftTokensPerPage = 300
	draftMaxTokens     = 8000

	sectionBaseTokens     = 1500
	sectionTokensPerPaper = 100
	sectionMaxTokens      = 4000
)

// Claim verification.
const (
	// ClaimBatchSize groups sections per claim-extraction call.
	ClaimBatchSize = 3

	// MinEntailmentRatio is the pass bar for semantic QA.
	MinEntailmentRatio = 0.8

	defaultClaimConcurrency = 2
	maxClaimConcurrency     = 20
)

// defaultWorkflowTimeout bounds one full workflow run.
const defaultWorkflowTimeout = 300 * time.Second

func draftTokenCeiling(numPapers int) int64 {
	n := draftBaseTokens + numPapers*draftTokensPerPage
	if n > draftMaxTokens {
		n = draftMaxTokens
	}
	return int64(n)
}

func sectionTokenCeiling(numPapers int) int64 {
	n := sectionBaseTokens + numPapers*sectionTokensPerPaper
	if n > sectionMaxTokens {
		n = sectionMaxTokens
	}
	return int64(n)
}

// extractionConcurrency reads LLM_CONCURRENCY for the per-paper
// extraction fan-out, clamped to [1, 20].
func extractionConcurrency() int {
	limit := defaultClaimConcurrency
	if raw := os.Getenv("LLM_CONCURRENCY"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxClaimConcurrency {
		limit = maxClaimConcurrency
	}
	return limit
}

// claimConcurrency reads CLAIM_VERIFICATION_CONCURRENCY, clamped to
// [1, 20].
func claimConcurrency() int {
	limit := defaultClaimConcurrency
	if raw := os.Getenv("CLAIM_VERIFICATION_CONCURRENCY"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxClaimConcurrency {
		limit = maxClaimConcurrency
	}
	return limit
}

// claimVerificationEnabled reads CLAIM_VERIFICATION_ENABLED, default true.
func claimVerificationEnabled() bool {
	raw := os.Getenv("CLAIM_VERIFICATION_ENABLED")
	if raw == "" {
		return true
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return enabled
}

// workflowTimeout reads WORKFLOW_TIMEOUT_SECONDS, default 300.
func workflowTimeout() time.Duration {
	if raw := os.Getenv("WORKFLOW_TIMEOUT_SECONDS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return defaultWorkflowTimeout
}

// maxQARetries reads MAX_QA_RETRIES, default 3.
func maxQARetries() int {
	if raw := os.Getenv("MAX_QA_RETRIES"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return MaxQARetries
}
