package rag

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/CAICAIIs/Auto-Scholar/scholar"
)

func paperWithPDF(id, pdf string) scholar.Paper {
	return scholar.Paper{PaperID: id, Title: "Paper " + id, PDFURL: pdf}
}

func TestGatewaySubmitPapers(t *testing.T) {
	ctx := context.Background()

	t.Run("submits papers with pdf urls", func(t *testing.T) {
		var gotItems []IngestItem
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/v1/ingest/batch" {
				t.Errorf("path %q", r.URL.Path)
			}
			var body map[string][]IngestItem
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("decode request: %v", err)
			}
			gotItems = body["items"]
			w.WriteHeader(http.StatusMultiStatus)
			_ = json.NewEncoder(w).Encode([]IngestResult{
				{PaperID: "a", Status: 202, TaskID: "t1"},
				{PaperID: "b", Status: 422, Error: "bad pdf"},
			})
		}))
		defer srv.Close()

		g := NewGateway(srv.URL, nil)
		results, err := g.SubmitPapers(ctx, []scholar.Paper{
			paperWithPDF("a", "http://pdf/a"),
			{PaperID: "no-pdf"},
			paperWithPDF("b", "http://pdf/b"),
		})
		if err != nil {
			t.Fatalf("SubmitPapers failed: %v", err)
		}
		if len(gotItems) != 2 || gotItems[0].PaperID != "a" || gotItems[1].SourceURL != "http://pdf/b" {
			t.Errorf("items %+v", gotItems)
		}
		if len(results) != 2 || results[0].TaskID != "t1" || results[1].Error != "bad pdf" {
			t.Errorf("results %+v", results)
		}
	})

	t.Run("no eligible papers is a no-op", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("gateway called with no eligible papers")
		}))
		defer srv.Close()

		g := NewGateway(srv.URL, nil)
		results, err := g.SubmitPapers(ctx, []scholar.Paper{{PaperID: "x"}})
		if err != nil || results != nil {
			t.Errorf("got %v, %v", results, err)
		}
	})

	t.Run("unconfigured gateway errors", func(t *testing.T) {
		g := NewGateway("", nil)
		_, err := g.SubmitPapers(ctx, []scholar.Paper{paperWithPDF("a", "http://pdf/a")})
		if !errors.Is(err, ErrGatewayNotConfigured) {
			t.Errorf("expected ErrGatewayNotConfigured, got %v", err)
		}
	})

	t.Run("non-207 status surfaces as gateway error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		g := NewGateway(srv.URL, nil)
		_, err := g.SubmitPapers(ctx, []scholar.Paper{paperWithPDF("a", "http://pdf/a")})
		var ge *GatewayError
		if !errors.As(err, &ge) || ge.Status != http.StatusInternalServerError {
			t.Errorf("expected GatewayError 500, got %v", err)
		}
	})

	t.Run("failure opens the breaker and fail-fasts", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			http.Error(w, "down", http.StatusBadGateway)
		}))
		defer srv.Close()

		clock := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
		g := NewGateway(srv.URL, nil)
		g.now = func() time.Time { return clock }

		papers := []scholar.Paper{paperWithPDF("a", "http://pdf/a")}
		if _, err := g.SubmitPapers(ctx, papers); err == nil {
			t.Fatal("expected first submission to fail")
		}
		if _, err := g.SubmitPapers(ctx, papers); !errors.Is(err, ErrCircuitOpen) {
			t.Errorf("expected ErrCircuitOpen, got %v", err)
		}
		if calls != 1 {
			t.Errorf("gateway reached %d times inside breaker window", calls)
		}

		clock = clock.Add(breakerWindow + time.Second)
		if _, err := g.SubmitPapers(ctx, papers); errors.Is(err, ErrCircuitOpen) {
			t.Error("breaker did not re-close after window")
		}
		if calls != 2 {
			t.Errorf("gateway calls = %d after window", calls)
		}
	})
}

func TestGatewayHealthy(t *testing.T) {
	ctx := context.Background()

	t.Run("200 is healthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/v1/health" {
				t.Errorf("path %q", r.URL.Path)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		if !NewGateway(srv.URL, nil).Healthy(ctx) {
			t.Error("healthy gateway reported unhealthy")
		}
	})

	t.Run("unreachable or unconfigured is unhealthy", func(t *testing.T) {
		if NewGateway("", nil).Healthy(ctx) {
			t.Error("unconfigured gateway reported healthy")
		}
		if NewGateway("http://127.0.0.1:1", nil).Healthy(ctx) {
			t.Error("unreachable gateway reported healthy")
		}
	})
}
