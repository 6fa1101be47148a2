package cmd

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"

	"github.com/practiq/automata/pkg/collaborators"
	"github.com/practiq/automata/pkg/eventbus"
	"github.com/practiq/automata/pkg/executor"
	"github.com/practiq/automata/pkg/otelhelper"
	"github.com/practiq/automata/pkg/persistence"
	"github.com/practiq/automata/pkg/progression"
)

// ExecutorDeps collects everything NewExecutor wires together.
type ExecutorDeps struct {
	Persistence      persistence.Persistence
	EventBus         eventbus.EventBus
	RedisURL         string
	NotifyWebhookURL string
	AgentWebhookURL  string
	Tracer           trace.Tracer
	WorkerID         string
}

// NewExecutor assembles the trigger executor with its progression engine,
// lease store and built-in collaborators. Webhook collaborators stay nil
// when no endpoint is configured; the executor records those action kinds as
// failed with a configuration error.
func NewExecutor(ctx context.Context, logger *slog.Logger, deps ExecutorDeps) *executor.Executor {
	repo := deps.Persistence.ProgressionRepository()
	engine := progression.NewEngine(logger, repo, deps.EventBus)
	leases := NewLeaseStore(ctx, logger, deps.RedisURL, deps.Persistence)

	collab := executor.Collaborators{
		TaskCreator: collaborators.NewRepositoryTaskCreator(logger, repo, deps.EventBus),
		FieldWriter: collaborators.NewRepositoryFieldWriter(logger, repo, deps.EventBus),
	}

	if deps.NotifyWebhookURL != "" {
		collab.Notifier = collaborators.NewWebhookNotifier(logger, deps.NotifyWebhookURL)
	}

	if deps.AgentWebhookURL != "" {
		collab.AgentInvoker = collaborators.NewWebhookAgentInvoker(logger, deps.AgentWebhookURL)
	}

	return executor.NewExecutor(
		logger,
		leases,
		deps.Persistence.TriggerRepository(),
		deps.Persistence.TriggerEventRepository(),
		engine,
		deps.EventBus,
		collab,
		executor.Config{},
		deps.Tracer,
		deps.WorkerID,
	)
}

// NewTracer initializes OTLP tracing when an exporter endpoint is
// configured. Without one it returns nil and spans stay no-ops.
func NewTracer(ctx context.Context, logger *slog.Logger, serviceName string) trace.Tracer {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		return nil
	}

	tracer, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize tracer; continuing without tracing", "error", err)

		return nil
	}

	return tracer
}
