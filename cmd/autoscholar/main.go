// Command autoscholar runs the literature-review service: an HTTP API over
// a checkpointed multi-agent workflow that plans, retrieves, extracts,
// writes, and verifies a cited literature review.
package main

import (
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/CAICAIIs/Auto-Scholar/graph"
	"github.com/CAICAIIs/Auto-Scholar/graph/emit"
	"github.com/CAICAIIs/Auto-Scholar/graph/store"
	"github.com/CAICAIIs/Auto-Scholar/llm"
	"github.com/CAICAIIs/Auto-Scholar/rag"
	"github.com/CAICAIIs/Auto-Scholar/review"
	"github.com/CAICAIIs/Auto-Scholar/scholar"
	"github.com/CAICAIIs/Auto-Scholar/server"
)

func main() {
	_ = godotenv.Load()

	logger, err := buildLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	registry := llm.LoadRegistry(envOr("MODEL_CONFIG_PATH", "models.yaml"), logger)
	if registry.Len() == 0 {
		logger.Fatal("no models configured; set MODEL_CONFIG_PATH or LLM_API_KEY")
	}
	router := llm.NewRouter(registry)
	ledger := llm.NewLedger()
	client := llm.NewClient(ledger, logger)

	st, err := buildStore(logger)
	if err != nil {
		logger.Fatal("opening checkpoint store", zap.Error(err))
	}

	tracker := scholar.NewFailureTracker()
	search := scholar.NewClient(tracker, logger,
		scholar.NewSemanticScholarAdapter(os.Getenv("S2_API_KEY")),
		scholar.NewArxivAdapter(),
		scholar.NewPubMedAdapter(os.Getenv("NCBI_API_KEY")),
	)

	var gateway *rag.Gateway
	if base := os.Getenv("RAG_GATEWAY_URL"); base != "" {
		gateway = rag.NewGateway(base, logger)
	}
	var chunks rag.Store
	if dir := os.Getenv("CHROMEM_PERSIST_DIR"); dir != "" {
		cs, err := rag.NewChromemStore(dir, nil)
		if err != nil {
			logger.Warn("chunk store unavailable, claim verification will use abstracts", zap.Error(err))
		} else {
			chunks = cs
		}
	}

	agents := review.NewAgents(review.Config{
		Invoker: client,
		Router:  router,
		Search:  search,
		Gateway: gateway,
		Chunks:  chunks,
		Logger:  logger,
	})

	promReg := prometheus.NewRegistry()
	metrics := graph.NewMetrics(promReg)

	engine, err := review.NewWorkflow(agents, st, emit.NewLogEmitter(logger), metrics)
	if err != nil {
		logger.Fatal("assembling workflow", zap.Error(err))
	}

	svc := review.NewService(engine, agents, registry, ledger, logger)
	srv := server.New(svc, logger)

	mux := http.NewServeMux()
	mux.Handle("/api/", srv.Routes())
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))

	addr := envOr("LISTEN_ADDR", ":8000")
	if err := srv.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func buildLogger() (*zap.Logger, error) {
	if os.Getenv("LOG_FORMAT") == "console" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// buildStore picks the checkpoint backend: MySQL when MYSQL_DSN is set,
// otherwise SQLite at CHECKPOINT_DB (default autoscholar.db).
func buildStore(logger *zap.Logger) (store.Store[review.State], error) {
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		logger.Info("using mysql checkpoint store")
		return store.NewMySQLStore[review.State](dsn)
	}
	path := envOr("CHECKPOINT_DB", "autoscholar.db")
	logger.Info("using sqlite checkpoint store", zap.String("path", path))
	return store.NewSQLiteStore[review.State](path)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
