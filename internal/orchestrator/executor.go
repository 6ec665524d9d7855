package orchestrator

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jkaninda/busara/internal/agents"
	"github.com/jkaninda/busara/internal/llm"
	"github.com/jkaninda/busara/internal/observability"
)

// executor runs a validated plan to a terminal status. It owns the
// ExecutionContext for the duration of one run; nothing is shared across
// concurrent runs.
type executor struct {
	generator llm.StructuredGenerator
	registry  *agents.Registry
	planner   *planner
	config    Config
	logger    *slog.Logger
	ops       *observability.OpLogger
	metrics   *Metrics
}

type stepResult struct {
	index  int
	output *AgentOutput
	err    error
}

// runResult is the executor's terminal state, consumed by the compiler.
type runResult struct {
	completed ExecutionContext
	finalPlan *WorkflowPlan
	status    Status
}

// run drives the round-based scheduling loop.
//
// Each round executes every dependency-ready step concurrently, applies the
// results, handles at most one revision-triggered re-plan, then evaluates
// the termination checks in priority order: Complete, Deadlock, iteration
// budget. A re-plan atomically replaces both the plan and the completed map
// and only ever happens at the round barrier, after every in-flight step
// call has returned.
func (e *executor) run(ctx context.Context, plan *WorkflowPlan, request string) *runResult {
	completed := make(ExecutionContext)
	iteration := 0

	for {
		if ctx.Err() != nil {
			return &runResult{completed: completed, finalPlan: plan, status: StatusCancelled}
		}

		ready := readySteps(plan, completed)

		var wg sync.WaitGroup
		results := make(chan stepResult, len(ready))
		sem := make(chan struct{}, e.config.concurrency())

		for _, idx := range ready {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				stepCtx, cancel := context.WithTimeout(ctx, e.config.stepTimeout())
				defer cancel()

				output, err := e.executeStep(stepCtx, plan, i, request, completed)
				results <- stepResult{index: i, output: output, err: err}
			}(idx)
		}

		go func() {
			wg.Wait()
			close(results)
		}()

		// Drain every in-flight result before touching shared state. Ready
		// steps write to disjoint indices, so applying them on this
		// goroutine after the barrier needs no lock.
		collected := make([]stepResult, 0, len(ready))
		for res := range results {
			collected = append(collected, res)
		}
		sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })

		progress := false
		revision := -1
		for _, res := range collected {
			if res.err != nil {
				e.logger.WarnContext(ctx, "step failed",
					slog.Int("step", res.index),
					slog.String("agent_type", string(plan.Steps[res.index].AgentType)),
					slog.String("error", res.err.Error()),
				)
				continue
			}
			completed[res.index] = res.output
			progress = true
			if res.output.Metadata.NeedsRevision && revision < 0 {
				revision = res.index
			}
		}

		replanned := false
		if revision >= 0 && ctx.Err() == nil {
			newPlan, err := e.planner.replan(ctx, request, plan, revision, completed[revision])
			switch {
			case err != nil:
				replanErr := &ReplanError{StepIndex: revision, Err: err}
				e.logger.WarnContext(ctx, "re-plan abandoned, continuing with current plan",
					slog.String("error", replanErr.Error()),
				)
				e.countReplan("abandoned")
			case ctx.Err() != nil:
				// Cancelled while re-planning; never apply a partial swap.
			default:
				plan = newPlan
				completed = make(ExecutionContext)
				replanned = true
				e.countReplan("applied")
				e.logger.InfoContext(ctx, "plan replaced after revision request",
					slog.Int("revised_step", revision),
					slog.Int("new_steps", len(plan.Steps)),
				)
			}
		}

		// End-of-round checks, in priority order. Cancellation overrides
		// every other outcome: a round where all in-flight calls failed
		// with the caller's cancellation must not read as a deadlock.
		if ctx.Err() != nil {
			return &runResult{completed: completed, finalPlan: plan, status: StatusCancelled}
		}
		if len(completed) == len(plan.Steps) {
			return &runResult{completed: completed, finalPlan: plan, status: StatusComplete}
		}
		if !progress && !replanned {
			return &runResult{completed: completed, finalPlan: plan, status: StatusDeadlock}
		}
		iteration++
		if iteration >= plan.MaxIterations {
			return &runResult{completed: completed, finalPlan: plan, status: StatusBudgetExhausted}
		}
	}
}

// executeStep runs one step's generation call with the step agent's
// configuration and the structured output schema.
func (e *executor) executeStep(ctx context.Context, plan *WorkflowPlan, index int, request string, completed ExecutionContext) (*AgentOutput, error) {
	step := plan.Steps[index]
	cfg, ok := e.registry.Get(step.AgentType)
	if !ok {
		// Unreachable for validated plans.
		return nil, &StepError{StepIndex: index, AgentType: step.AgentType,
			Err: &InvalidAgentTypeError{StepIndex: index, AgentType: step.AgentType}}
	}

	if e.metrics != nil {
		e.metrics.ActiveSteps.Inc()
		defer e.metrics.ActiveSteps.Dec()
	}
	start := time.Now()

	var output AgentOutput
	err := e.generator.GenerateJSON(ctx, &llm.GenerateRequest{
		Model:        cfg.Model,
		SystemPrompt: cfg.SystemPrompt + workerOutputInstructions,
		Prompt:       buildWorkerPrompt(request, step, completed),
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
	}, &output)
	if err != nil {
		if e.metrics != nil {
			e.metrics.StepsTotal.WithLabelValues(string(step.AgentType), "failed").Inc()
		}
		return nil, &StepError{StepIndex: index, AgentType: step.AgentType, Err: err}
	}

	if e.metrics != nil {
		e.metrics.StepsTotal.WithLabelValues(string(step.AgentType), "completed").Inc()
		e.metrics.StepDuration.WithLabelValues(string(step.AgentType)).Observe(time.Since(start).Seconds())
	}
	e.ops.Done(ctx, "execute_step", start,
		slog.Int("step", index),
		slog.String("agent_type", string(step.AgentType)),
		slog.Bool("needs_revision", output.Metadata.NeedsRevision),
	)

	return &output, nil
}

func (e *executor) countReplan(outcome string) {
	if e.metrics != nil {
		e.metrics.ReplansTotal.WithLabelValues(outcome).Inc()
	}
}
