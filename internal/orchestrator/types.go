// Package orchestrator implements the workflow engine behind complex chat
// requests: it asks an LLM for a structured execution plan, runs the plan's
// steps in dependency order across bounded rounds, re-plans when a step
// flags its own output as unsatisfactory, and compiles the surviving step
// outputs into the context for the final user-facing generation.
package orchestrator

import "github.com/jkaninda/busara/internal/agents"

// WorkflowStep is one unit of delegated work within a plan.
type WorkflowStep struct {
	AgentType agents.Type `json:"agentType"`
	Task      string      `json:"task"`
	// DependsOn lists step indices into the same plan that must complete
	// before this step becomes ready. Indices reference the plan the step
	// was generated with; a re-plan replaces the whole graph.
	DependsOn []int `json:"dependsOn,omitempty"`
}

// WorkflowPlan is an ordered sequence of steps plus the scheduling-round
// budget. Plans are replaced wholesale on re-planning, never patched.
type WorkflowPlan struct {
	Steps         []WorkflowStep `json:"steps"`
	MaxIterations int            `json:"maxIterations"`
}

// Simple reports whether the plan is a single dependency-free step assigned
// to the default (or hinted) agent. Simple plans bypass the executor.
func (p *WorkflowPlan) Simple(defaultType, hint agents.Type) bool {
	if len(p.Steps) != 1 || len(p.Steps[0].DependsOn) != 0 {
		return false
	}
	t := p.Steps[0].AgentType
	return t == defaultType || (hint != "" && t == hint)
}

// AgentOutput is the structured result of executing one step.
type AgentOutput struct {
	Result   string         `json:"result"`
	Metadata OutputMetadata `json:"metadata"`
}

// OutputMetadata carries the worker's self-assessment.
type OutputMetadata struct {
	// NeedsRevision signals the worker considers its own output
	// unsatisfactory and the plan should be revised.
	NeedsRevision bool `json:"needsRevision"`
	// Issues describes what is wrong, consumed by the re-planning prompt.
	Issues []string `json:"issues,omitempty"`
}

// ExecutionContext maps step index to output for one plan generation.
// A key is written at most once per generation; a re-plan discards the
// whole map.
type ExecutionContext map[int]*AgentOutput

// ContextMessage is one completed step's contribution to the final
// generation context, attributed to the agent that produced it.
type ContextMessage struct {
	AgentType agents.Type `json:"agentType"`
	Content   string      `json:"content"`
}

// Status is the terminal state of an orchestrator run.
type Status string

const (
	// StatusComplete means every step of the final plan completed.
	StatusComplete Status = "complete"
	// StatusDeadlock means a round passed with no successful step and no
	// re-plan, so the remaining steps can never become ready.
	StatusDeadlock Status = "deadlock"
	// StatusBudgetExhausted means the iteration cap was reached first.
	StatusBudgetExhausted Status = "budget_exhausted"
	// StatusCancelled means the caller's context was cancelled mid-run.
	StatusCancelled Status = "cancelled"
)

// OrchestrationContext is the run's final artifact, handed to the external
// response generator. The orchestrator holds no state across requests.
type OrchestrationContext struct {
	// TargetModel is the model for the final user-facing generation.
	TargetModel string `json:"targetModel"`
	// ContextMessages are completed step outputs in step-index order.
	ContextMessages []ContextMessage `json:"contextMessages,omitempty"`
	// PlanSummary lists the agent types that actually executed, in order.
	PlanSummary []agents.Type `json:"planSummary,omitempty"`
	Status      Status        `json:"status"`
}
