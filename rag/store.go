// Package rag provides the optional retrieval side of claim verification:
// an embedded vector store holding full-text paper chunks, and a client for
// the external ingestion gateway that produces those chunks. Both are
// optional; the workflow degrades to abstract-only verification without
// them.
package rag

import "context"

// Chunk is one passage of a paper's full text.
type Chunk struct {
	ID        string `json:"id"`
	PaperID   string `json:"paper_id"`
	Text      string `json:"text"`
	PageStart int    `json:"page_start,omitempty"`
	PageEnd   int    `json:"page_end,omitempty"`
}

// Result is a chunk scored against a query.
type Result struct {
	Chunk
	Score float32 `json:"score"`
}

// Store indexes paper chunks for similarity search scoped to one paper.
type Store interface {
	UpsertChunks(ctx context.Context, chunks []Chunk) error
	// Search returns up to topK chunks of the given paper similar to the
	// query, best first, dropping results below minScore.
	Search(ctx context.Context, paperID, query string, topK int, minScore float32) ([]Result, error)
	DeleteByPaper(ctx context.Context, paperID string) error
}
