// supportgraphd serves the support agent workflow over HTTP.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/supportgraph-go/agent"
	"github.com/dshills/supportgraph-go/approval"
	"github.com/dshills/supportgraph-go/domain"
	"github.com/dshills/supportgraph-go/graph"
	"github.com/dshills/supportgraph-go/graph/emit"
	"github.com/dshills/supportgraph-go/graph/store"
	"github.com/dshills/supportgraph-go/httpapi"
	"github.com/dshills/supportgraph-go/llm"
	llmanthropic "github.com/dshills/supportgraph-go/llm/anthropic"
	llmgoogle "github.com/dshills/supportgraph-go/llm/google"
	llmopenai "github.com/dshills/supportgraph-go/llm/openai"
	"github.com/dshills/supportgraph-go/order"
	"github.com/dshills/supportgraph-go/policy"
)

func main() {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(ctx, logger); err != nil {
		log.Fatalf("supportgraphd: %v", err)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	addr := envOr("LISTEN_ADDR", ":8000")

	registry := prometheus.NewRegistry()
	metrics := graph.NewMetrics(registry)
	emitter := emit.NewLogEmitter(os.Stderr, true)

	checkpoints, closeCheckpoints, err := newCheckpointStore()
	if err != nil {
		return fmt.Errorf("checkpoint store: %w", err)
	}
	defer closeCheckpoints()

	approvals, closeApprovals, err := newApprovalService(ctx)
	if err != nil {
		return fmt.Errorf("approval store: %w", err)
	}
	defer closeApprovals()

	orders, closeOrders, err := newOrderService(ctx)
	if err != nil {
		return fmt.Errorf("order store: %w", err)
	}
	defer closeOrders()

	policies := newPolicyRetriever()

	decider, closeDecider, err := newDecider(ctx)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	defer closeDecider()

	ag, err := agent.New(agent.Config{
		Orders:    orders,
		Approvals: approvals,
		Policies:  policies,
		Decider:   decider,
		Store:     checkpoints,
		Emitter:   emitter,
		Metrics:   metrics,
	})
	if err != nil {
		return fmt.Errorf("build agent: %w", err)
	}

	handler := httpapi.NewRouter(httpapi.Deps{
		Agent:     ag,
		Approvals: approvals,
		Logger:    logger,
		Registry:  registry,
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "llm_provider", envOr("LLM_PROVIDER", "openai"))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newCheckpointStore picks the checkpoint backend: MySQL when a DSN is
// set, otherwise SQLite, with CHECKPOINT_DB=memory for throwaway runs.
func newCheckpointStore() (store.Store[agent.State], func(), error) {
	if dsn := os.Getenv("CHECKPOINT_MYSQL_DSN"); dsn != "" {
		st, err := store.NewMySQLStore[agent.State](dsn)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	}

	path := envOr("CHECKPOINT_DB", "checkpoints.db")
	if path == "memory" {
		return store.NewMemStore[agent.State](), func() {}, nil
	}
	st, err := store.NewSQLiteStore[agent.State](path)
	if err != nil {
		return nil, nil, err
	}
	return st, func() { _ = st.Close() }, nil
}

func newApprovalService(ctx context.Context) (*approval.Service, func(), error) {
	path := envOr("APPROVAL_DB", "approvals.db")
	if path == "memory" {
		return approval.NewService(approval.NewMemStore(), approval.NewMemThreadIndex()), func() {}, nil
	}
	st, err := approval.NewSQLiteStore(path)
	if err != nil {
		return nil, nil, err
	}
	return approval.NewService(st, st), func() { _ = st.Close() }, nil
}

// newOrderService seeds the demo catalog on first start so the workflow
// has orders to act on.
func newOrderService(ctx context.Context) (*order.Service, func(), error) {
	path := envOr("ORDER_DB", "orders.db")
	if path == "memory" {
		return order.NewService(order.NewSeededRepository()), func() {}, nil
	}
	repo, err := order.NewSQLiteRepository(path)
	if err != nil {
		return nil, nil, err
	}
	if err := repo.Seed(ctx, order.SeedOrders()); err != nil {
		_ = repo.Close()
		return nil, nil, err
	}
	return order.NewService(repo), func() { _ = repo.Close() }, nil
}

func newPolicyRetriever() policy.Retriever {
	if endpoint := os.Getenv("POLICY_ENDPOINT"); endpoint != "" {
		return policy.NewHTTPRetriever(endpoint, nil)
	}
	return policy.NewSeededRetriever()
}

func newDecider(ctx context.Context) (llm.Decider, func(), error) {
	provider := envOr("LLM_PROVIDER", "openai")
	model := os.Getenv("LLM_MODEL")

	switch provider {
	case "mock":
		// Local development without an API key: always answers, never acts.
		return llm.NewMock(llm.MockOutcome{
			Decision: domain.Decision{
				Analysis:    "Mock provider is configured; no model was consulted.",
				FinalAnswer: "This deployment is running with a mock language model.",
				Action:      domain.ActionNone,
				Confidence:  1.0,
			},
			NextStep: domain.StepNone,
		}), func() {}, nil
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, nil, fmt.Errorf("OPENAI_API_KEY is required for provider openai")
		}
		return llm.NewStructuredDecider(llmopenai.NewCompleter(key, model)), func() {}, nil
	case "anthropic":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, nil, fmt.Errorf("ANTHROPIC_API_KEY is required for provider anthropic")
		}
		return llm.NewStructuredDecider(llmanthropic.NewCompleter(key, model)), func() {}, nil
	case "google":
		key := os.Getenv("GOOGLE_API_KEY")
		if key == "" {
			return nil, nil, fmt.Errorf("GOOGLE_API_KEY is required for provider google")
		}
		completer, err := llmgoogle.NewCompleter(ctx, key, model)
		if err != nil {
			return nil, nil, err
		}
		return llm.NewStructuredDecider(completer), func() { _ = completer.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown LLM_PROVIDER %q", provider)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
