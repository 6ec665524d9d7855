package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jkaninda/busara/internal/agents"
	"github.com/jkaninda/busara/internal/llm"
	"github.com/jkaninda/busara/internal/observability"
)

// plannerTemperature keeps plan generation near-deterministic.
const plannerTemperature = 0.2

// planner turns a user request into a validated WorkflowPlan, and produces
// replacement plans when a step requests revision.
type planner struct {
	generator llm.StructuredGenerator
	registry  *agents.Registry
	config    Config
	logger    *slog.Logger
	ops       *observability.OpLogger
	metrics   *Metrics
}

// generatePlan asks the model for a plan and validates it. Up to
// Config.PlanRetries additional attempts are made for malformed output.
func (p *planner) generatePlan(ctx context.Context, request string, hint agents.Type) (*WorkflowPlan, error) {
	start := time.Now()
	def := p.registry.Default()

	var plan WorkflowPlan
	err := p.generator.GenerateJSON(ctx, &llm.GenerateRequest{
		Model:        p.config.plannerModel(def.Model),
		SystemPrompt: plannerSystemPrompt(p.registry, hint),
		Prompt:       request,
		MaxTokens:    p.config.plannerMaxTokens(),
		Temperature:  plannerTemperature,
		MaxRetries:   p.config.planRetries(),
	}, &plan)
	if err != nil {
		p.countPlan("rejected")
		return nil, fmt.Errorf("generating plan: %w", err)
	}

	if err := validatePlan(&plan, p.registry); err != nil {
		p.countPlan("rejected")
		return nil, err
	}
	if plan.MaxIterations <= 0 {
		plan.MaxIterations = p.config.maxIterations()
	}

	outcome := "complex"
	if plan.Simple(p.registry.DefaultType(), hint) {
		outcome = "simple"
	}
	p.countPlan(outcome)

	p.ops.Done(ctx, "generate_plan", start,
		slog.Int("steps", len(plan.Steps)),
		slog.String("outcome", outcome),
		slog.Int("max_iterations", plan.MaxIterations),
	)

	return &plan, nil
}

// replan requests a replacement plan after stepIndex flagged its output.
// The same validation rules apply, with at most Config.ReplanRetries
// additional attempts.
func (p *planner) replan(ctx context.Context, request string, plan *WorkflowPlan, stepIndex int, output *AgentOutput) (*WorkflowPlan, error) {
	start := time.Now()
	def := p.registry.Default()

	var replacement WorkflowPlan
	err := p.generator.GenerateJSON(ctx, &llm.GenerateRequest{
		Model:        p.config.plannerModel(def.Model),
		SystemPrompt: plannerSystemPrompt(p.registry, ""),
		Prompt:       buildReplanPrompt(request, plan, stepIndex, output),
		MaxTokens:    p.config.plannerMaxTokens(),
		Temperature:  plannerTemperature,
		MaxRetries:   p.config.replanRetries(),
	}, &replacement)
	if err != nil {
		return nil, fmt.Errorf("generating replacement plan: %w", err)
	}

	if err := validatePlan(&replacement, p.registry); err != nil {
		return nil, err
	}
	if replacement.MaxIterations <= 0 {
		replacement.MaxIterations = p.config.maxIterations()
	}

	p.ops.Done(ctx, "replan", start,
		slog.Int("failed_step", stepIndex),
		slog.Int("steps", len(replacement.Steps)),
	)

	return &replacement, nil
}

func (p *planner) countPlan(outcome string) {
	if p.metrics != nil {
		p.metrics.PlansTotal.WithLabelValues(outcome).Inc()
	}
}
