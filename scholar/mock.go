package scholar

import (
	"context"
	"sync"
)

// MockAdapter is a scripted Adapter for tests. Each Search call returns
// the next entry of Results (the last entry repeats), or Err when set.
type MockAdapter struct {
	Src     Source
	Results [][]Paper
	Err     error

	mu          sync.Mutex
	calls       int
	lastQueries []string
	lastLimit   int
}

func (m *MockAdapter) Source() Source { return m.Src }

func (m *MockAdapter) Search(ctx context.Context, queries []string, limitPerQuery int) ([]Paper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastQueries = append([]string(nil), queries...)
	m.lastLimit = limitPerQuery
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Results) == 0 {
		return nil, nil
	}
	i := m.calls - 1
	if i >= len(m.Results) {
		i = len(m.Results) - 1
	}
	return m.Results[i], nil
}

// Calls returns how many times Search ran.
func (m *MockAdapter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastQueries returns the queries of the most recent Search call.
func (m *MockAdapter) LastQueries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastQueries
}

// LastLimit returns the per-query limit of the most recent Search call.
func (m *MockAdapter) LastLimit() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastLimit
}

// MockEnricher resolves full-text URLs from a fixed map keyed by paper id.
// Missing ids resolve to no full text; Err, when set, fails every lookup.
type MockEnricher struct {
	URLs map[string]string
	Err  error

	mu    sync.Mutex
	calls int
}

func (m *MockEnricher) FulltextURL(ctx context.Context, p Paper) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	return m.URLs[p.PaperID], nil
}

// Calls returns how many lookups ran.
func (m *MockEnricher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
