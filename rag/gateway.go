package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/CAICAIIs/Auto-Scholar/scholar"
)

const (
	gatewayTimeout = 30 * time.Second
	healthTimeout  = 3 * time.Second

	// breakerWindow is how long the gateway stays written off after a
	// failure before submissions are attempted again.
	breakerWindow = 120 * time.Second
)

var (
	// ErrGatewayNotConfigured is returned when no gateway URL is set.
	ErrGatewayNotConfigured = errors.New("rag gateway not configured")

	// ErrCircuitOpen is returned while the breaker holds the gateway off
	// after a recent failure.
	ErrCircuitOpen = errors.New("rag gateway circuit open")
)

// GatewayError is a non-207 response from the ingestion gateway.
type GatewayError struct {
	Status int
	Body   string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Body)
}

// IngestItem is one paper submitted for full-text ingestion.
type IngestItem struct {
	PaperID   string `json:"paper_id"`
	SourceURL string `json:"source_url"`
}

// IngestResult is the gateway's per-paper outcome from a batch submission.
type IngestResult struct {
	PaperID string `json:"paper_id"`
	Status  int    `json:"status"`
	TaskID  string `json:"task_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Gateway submits papers to the external RAG ingestion service. Ingestion
// is fire-and-forget: the gateway downloads, parses and embeds the PDFs
// asynchronously, so a submission only confirms acceptance. A failure
// opens a circuit breaker; submissions inside the breaker window fail
// fast instead of re-timing-out on a downed service.
type Gateway struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger

	mu        sync.Mutex
	openUntil time.Time
	now       func() time.Time
}

// NewGateway builds a client for the gateway at baseURL. An empty baseURL
// yields a client whose submissions return ErrGatewayNotConfigured.
func NewGateway(baseURL string, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: gatewayTimeout},
		logger:  logger,
		now:     time.Now,
	}
}

// Configured reports whether a gateway URL is set.
func (g *Gateway) Configured() bool { return g.baseURL != "" }

// SubmitPapers sends every paper that has a PDF URL to the batch ingest
// endpoint. Papers without full text are skipped; when none qualify the
// call is a no-op. The gateway answers 207 with per-paper results.
func (g *Gateway) SubmitPapers(ctx context.Context, papers []scholar.Paper) ([]IngestResult, error) {
	if !g.Configured() {
		return nil, ErrGatewayNotConfigured
	}
	if open, until := g.circuitOpen(); open {
		g.logger.Debug("gateway circuit open, skipping submission", zap.Time("until", until))
		return nil, ErrCircuitOpen
	}

	items := make([]IngestItem, 0, len(papers))
	for _, p := range papers {
		if p.PDFURL != "" {
			items = append(items, IngestItem{PaperID: p.PaperID, SourceURL: p.PDFURL})
		}
	}
	if len(items) == 0 {
		g.logger.Info("no papers with PDF URLs to submit")
		return nil, nil
	}

	body, err := json.Marshal(map[string][]IngestItem{"items": items})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/v1/ingest/batch", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		g.trip()
		return nil, fmt.Errorf("gateway connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMultiStatus {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		g.trip()
		return nil, &GatewayError{Status: resp.StatusCode, Body: string(raw)}
	}

	var results []IngestResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}
	g.reset()

	accepted := 0
	for _, r := range results {
		if r.Status == http.StatusAccepted {
			accepted++
		}
	}
	g.logger.Info("batch submitted",
		zap.Int("accepted", accepted),
		zap.Int("failed", len(results)-accepted))
	return results, nil
}

// Healthy reports whether the gateway's health endpoint answers 200.
func (g *Gateway) Healthy(ctx context.Context) bool {
	if !g.Configured() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/v1/health", nil)
	if err != nil {
		return false
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (g *Gateway) circuitOpen() (bool, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.now().Before(g.openUntil), g.openUntil
}

func (g *Gateway) trip() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.openUntil = g.now().Add(breakerWindow)
}

func (g *Gateway) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.openUntil = time.Time{}
}
