package scholar

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// FulltextConcurrency bounds concurrent full-text lookups. Open-access
// resolvers start returning 429 around five concurrent requests.
const FulltextConcurrency = 3

// Enricher resolves an open-access full-text URL for a paper. An empty
// URL with a nil error means no full text was found.
type Enricher interface {
	FulltextURL(ctx context.Context, p Paper) (string, error)
}

// EnrichFulltext fills in missing PDF URLs via the enricher, at most
// concurrency lookups in flight. Papers that already carry a PDF URL are
// left untouched, and lookup failures leave the paper unchanged rather
// than failing the batch. The input slice is not modified.
func EnrichFulltext(ctx context.Context, e Enricher, papers []Paper, concurrency int, logger *zap.Logger) []Paper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = FulltextConcurrency
	}

	out := make([]Paper, len(papers))
	copy(out, papers)

	sem := semaphore.NewWeighted(int64(concurrency))
	var wg sync.WaitGroup
	for i := range out {
		if out[i].PDFURL != "" {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(slot *Paper) {
			defer wg.Done()
			defer sem.Release(1)

			url, err := e.FulltextURL(ctx, *slot)
			if err != nil {
				logger.Warn("full-text lookup failed",
					zap.String("paper_id", slot.PaperID),
					zap.Error(err))
				return
			}
			slot.PDFURL = url
		}(&out[i])
	}
	wg.Wait()
	return out
}
