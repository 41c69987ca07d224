package scholar

import (
	"context"

	"go.uber.org/zap"
)

// Adapter searches one scholarly source. Search runs every query and
// returns up to limitPerQuery papers per query, already tagged with the
// adapter's source.
type Adapter interface {
	Source() Source
	Search(ctx context.Context, queries []string, limitPerQuery int) ([]Paper, error)
}

// Client fans search requests out across the registered source adapters,
// skipping sources the failure tracker marks as down and degrading
// gracefully when individual sources error. A client with no adapter for a
// requested source simply returns nothing from it.
type Client struct {
	adapters map[Source]Adapter
	tracker  *FailureTracker
	logger   *zap.Logger
}

// NewClient builds a search client over the given adapters. tracker and
// logger may be nil.
func NewClient(tracker *FailureTracker, logger *zap.Logger, adapters ...Adapter) *Client {
	if tracker == nil {
		tracker = NewFailureTracker()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := make(map[Source]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Source()] = a
	}
	return &Client{adapters: m, tracker: tracker, logger: logger}
}

// SearchByPlan runs each sub-question's keywords against its preferred
// source, using the sub-question's estimated paper count as the per-query
// limit (defaultLimit when unset). Source failures are recorded and
// swallowed so one downed source never empties the whole retrieval; the
// result is deduplicated by paper id in plan order. Returns an error only
// when the context ends.
func (c *Client) SearchByPlan(ctx context.Context, plan *ResearchPlan, defaultLimit int) ([]Paper, error) {
	if plan == nil || len(plan.SubQuestions) == 0 {
		return nil, nil
	}
	if defaultLimit <= 0 {
		defaultLimit = PapersPerQuery
	}

	var all []Paper
	for _, sq := range plan.SubQuestions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		papers, err := c.searchSource(ctx, sq.PreferredSource, sq.Keywords, limitOr(sq.EstimatedPapers, defaultLimit))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		all = append(all, papers...)
	}
	return Dedupe(all), nil
}

// SearchMultiSource runs the same keyword set against every requested
// source, deduplicating across sources. Used when no research plan is
// available.
func (c *Client) SearchMultiSource(ctx context.Context, keywords []string, sources []Source, limitPerQuery int) ([]Paper, error) {
	if len(keywords) == 0 || len(sources) == 0 {
		return nil, nil
	}
	if limitPerQuery <= 0 {
		limitPerQuery = PapersPerQuery
	}

	var all []Paper
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		papers, err := c.searchSource(ctx, src, keywords, limitPerQuery)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		all = append(all, papers...)
	}
	return Dedupe(all), nil
}

// searchSource runs one source with skip and failure bookkeeping.
func (c *Client) searchSource(ctx context.Context, src Source, queries []string, limit int) ([]Paper, error) {
	if c.tracker.ShouldSkip(src) {
		c.logger.Warn("skipping source with recent failures", zap.String("source", string(src)))
		return nil, nil
	}
	adapter, ok := c.adapters[src]
	if !ok {
		c.logger.Warn("no adapter registered for source", zap.String("source", string(src)))
		return nil, nil
	}

	papers, err := adapter.Search(ctx, queries, limit)
	if err != nil {
		c.tracker.RecordFailure(src)
		c.logger.Warn("source search failed",
			zap.String("source", string(src)),
			zap.Error(err))
		return nil, err
	}
	c.tracker.RecordSuccess(src)
	return papers, nil
}

func limitOr(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}
