package orchestrator

import (
	"github.com/jkaninda/busara/internal/agents"
)

// compile assembles the run's final artifact from the completed outputs.
//
// Context messages are emitted in step-index order, not completion order,
// one per completed step, each attributed to its agent. The target model
// comes from the final plan's last step when the run completed normally;
// any other terminal status falls back to the default agent's model.
func compile(result *runResult, registry *agents.Registry) (*OrchestrationContext, error) {
	plan := result.finalPlan
	if len(plan.Steps) == 0 {
		// Plans are validated non-empty at acceptance; defensive.
		return nil, ErrEmptyPlan
	}

	var messages []ContextMessage
	var summary []agents.Type
	for i, step := range plan.Steps {
		output, ok := result.completed[i]
		if !ok {
			continue
		}
		messages = append(messages, ContextMessage{
			AgentType: step.AgentType,
			Content:   output.Result,
		})
		summary = append(summary, step.AgentType)
	}

	model := registry.Default().Model
	if result.status == StatusComplete {
		last := plan.Steps[len(plan.Steps)-1].AgentType
		if cfg, ok := registry.Get(last); ok {
			model = cfg.Model
		}
	}

	return &OrchestrationContext{
		TargetModel:     model,
		ContextMessages: messages,
		PlanSummary:     summary,
		Status:          result.status,
	}, nil
}
