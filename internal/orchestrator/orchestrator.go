package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jkaninda/busara/internal/agents"
	"github.com/jkaninda/busara/internal/llm"
	"github.com/jkaninda/busara/internal/observability"
)

// Config configures orchestrator behavior. The zero value is usable; every
// field falls back to a sensible default.
type Config struct {
	DefaultMaxIterations int           // Round budget when the plan omits one. Default: 3.
	MaxConcurrentSteps   int           // Parallelism limit within a round. Default: 4.
	StepTimeout          time.Duration // Per-step generation timeout. Default: 2m.
	PlannerModel         string        // Model for plan generation. Default: the default agent's model.
	PlannerMaxTokens     int           // Token budget for planning calls. Default: 2048.
	PlanRetries          int           // Extra attempts for initial plans. Default: 2.
	ReplanRetries        int           // Extra attempts for replacement plans. Default: 1.
	SlowThreshold        time.Duration // Operations slower than this log at Warn. Default: 5s.
	ImportantThreshold   time.Duration // Operations slower than this log at Error. Default: 20s.
}

func (c Config) maxIterations() int {
	if c.DefaultMaxIterations > 0 {
		return c.DefaultMaxIterations
	}
	return 3
}

func (c Config) concurrency() int {
	if c.MaxConcurrentSteps > 0 {
		return c.MaxConcurrentSteps
	}
	return 4
}

func (c Config) stepTimeout() time.Duration {
	if c.StepTimeout > 0 {
		return c.StepTimeout
	}
	return 2 * time.Minute
}

func (c Config) plannerModel(fallback string) string {
	if c.PlannerModel != "" {
		return c.PlannerModel
	}
	return fallback
}

func (c Config) plannerMaxTokens() int {
	if c.PlannerMaxTokens > 0 {
		return c.PlannerMaxTokens
	}
	return 2048
}

func (c Config) planRetries() int {
	if c.PlanRetries > 0 {
		return c.PlanRetries
	}
	return 2
}

func (c Config) replanRetries() int {
	if c.ReplanRetries > 0 {
		return c.ReplanRetries
	}
	return 1
}

func (c Config) slowThreshold() time.Duration {
	if c.SlowThreshold > 0 {
		return c.SlowThreshold
	}
	return 5 * time.Second
}

func (c Config) importantThreshold() time.Duration {
	if c.ImportantThreshold > 0 {
		return c.ImportantThreshold
	}
	return 20 * time.Second
}

// Orchestrator is the public face of the workflow engine. One instance
// serves concurrent requests; each PrepareContext call owns its own run
// state.
type Orchestrator struct {
	registry *agents.Registry
	planner  *planner
	executor *executor
	config   Config
	logger   *slog.Logger
	ops      *observability.OpLogger
	metrics  *Metrics
	tracer   trace.Tracer
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithMetrics attaches Prometheus metrics. A nil Metrics disables them.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer sets the tracer for run spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// New creates an orchestrator over the given structured generator and agent
// registry.
func New(generator llm.StructuredGenerator, registry *agents.Registry, config Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		config:   config,
		logger:   logger,
		tracer:   noop.NewTracerProvider().Tracer("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.ops = observability.NewOpLogger(logger, config.slowThreshold(), config.importantThreshold())
	o.planner = &planner{
		generator: generator,
		registry:  registry,
		config:    config,
		logger:    logger,
		ops:       o.ops,
		metrics:   o.metrics,
	}
	o.executor = &executor{
		generator: generator,
		registry:  registry,
		planner:   o.planner,
		config:    config,
		logger:    logger,
		ops:       o.ops,
		metrics:   o.metrics,
	}
	return o
}

// PrepareContext is the sole public entry point: it plans the request,
// executes the plan if it is complex, and returns the compiled context for
// the final generation. The call blocks until the run reaches a terminal
// status; cancelling ctx aborts in-flight step calls and returns an error.
func (o *Orchestrator) PrepareContext(ctx context.Context, request string, hint agents.Type) (*OrchestrationContext, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.PrepareContext")
	defer span.End()

	start := time.Now()
	if o.metrics != nil {
		o.metrics.ActiveRuns.Inc()
		defer o.metrics.ActiveRuns.Dec()
	}

	plan, err := o.planner.generatePlan(ctx, request, hint)
	if err != nil {
		span.SetStatus(codes.Error, "plan generation failed")
		span.RecordError(err)
		return nil, err
	}

	// Single default-agent step: nothing to execute ahead of the final
	// answer, so skip the executor entirely.
	if plan.Simple(o.registry.DefaultType(), hint) {
		cfg, _ := o.registry.Get(plan.Steps[0].AgentType)
		span.SetAttributes(attribute.Bool("orchestrator.simple", true))
		o.finishRun(ctx, span, StatusComplete, start, 0)
		return &OrchestrationContext{
			TargetModel: cfg.Model,
			Status:      StatusComplete,
		}, nil
	}

	result := o.executor.run(ctx, plan, request)
	if result.status == StatusCancelled {
		o.finishRun(ctx, span, StatusCancelled, start, len(result.completed))
		return nil, fmt.Errorf("orchestration cancelled: %w", ctx.Err())
	}

	orchestrationCtx, err := compile(result, o.registry)
	if err != nil {
		span.SetStatus(codes.Error, "context compilation failed")
		span.RecordError(err)
		return nil, err
	}

	o.finishRun(ctx, span, result.status, start, len(result.completed))
	return orchestrationCtx, nil
}

func (o *Orchestrator) finishRun(ctx context.Context, span trace.Span, status Status, start time.Time, completedSteps int) {
	span.SetAttributes(attribute.String("orchestrator.status", string(status)))

	if o.metrics != nil {
		o.metrics.RunsTotal.WithLabelValues(string(status)).Inc()
		o.metrics.RunDuration.WithLabelValues(string(status)).Observe(time.Since(start).Seconds())
	}
	o.ops.Done(ctx, "prepare_context", start,
		slog.String("status", string(status)),
		slog.Int("completed_steps", completedSteps),
	)
}
