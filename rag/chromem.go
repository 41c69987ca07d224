package rag

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	chromem "github.com/philippgille/chromem-go"
)

const chunkCollection = "paper_chunks"

// ChromemStore is an embedded, pure-Go vector store over chromem-go.
// Chunks live in memory, optionally persisted to a directory. The
// embedding function runs on both upsert and query, so the same function
// must be used for the lifetime of a persisted store.
type ChromemStore struct {
	db  *chromem.DB
	col *chromem.Collection
}

// NewChromemStore opens the chunk collection, persisted under persistDir
// when non-empty. Use chromem.NewEmbeddingFuncOpenAI (or compatible) for
// embed.
func NewChromemStore(persistDir string, embed chromem.EmbeddingFunc) (*ChromemStore, error) {
	var db *chromem.DB
	var err error
	if persistDir != "" {
		db, err = chromem.NewPersistentDB(persistDir, false)
		if err != nil {
			return nil, fmt.Errorf("open vector store: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	col, err := db.GetOrCreateCollection(chunkCollection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("open chunk collection: %w", err)
	}
	return &ChromemStore{db: db, col: col}, nil
}

// UpsertChunks indexes the chunks, embedding their text.
func (s *ChromemStore) UpsertChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, chromem.Document{
			ID:      c.ID,
			Content: c.Text,
			Metadata: map[string]string{
				"paper_id":   c.PaperID,
				"page_start": strconv.Itoa(c.PageStart),
				"page_end":   strconv.Itoa(c.PageEnd),
			},
		})
	}
	if err := s.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}
	return nil
}

// Search embeds the query and returns the paper's most similar chunks at
// or above minScore, best first.
func (s *ChromemStore) Search(ctx context.Context, paperID, query string, topK int, minScore float32) ([]Result, error) {
	count := s.col.Count()
	if count == 0 || topK <= 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	where := map[string]string{"paper_id": paperID}
	results, err := s.col.Query(ctx, query, topK, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chunk search: %w", err)
	}

	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Similarity < minScore {
			continue
		}
		pageStart, _ := strconv.Atoi(r.Metadata["page_start"])
		pageEnd, _ := strconv.Atoi(r.Metadata["page_end"])
		out = append(out, Result{
			Chunk: Chunk{
				ID:        r.ID,
				PaperID:   r.Metadata["paper_id"],
				Text:      r.Content,
				PageStart: pageStart,
				PageEnd:   pageEnd,
			},
			Score: r.Similarity,
		})
	}
	return out, nil
}

// DeleteByPaper removes every chunk of the paper.
func (s *ChromemStore) DeleteByPaper(ctx context.Context, paperID string) error {
	if err := s.col.Delete(ctx, map[string]string{"paper_id": paperID}, nil); err != nil {
		return fmt.Errorf("delete paper chunks: %w", err)
	}
	return nil
}

var _ Store = (*ChromemStore)(nil)
