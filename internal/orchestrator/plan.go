package orchestrator

import (
	"fmt"

	"github.com/jkaninda/busara/internal/agents"
)

// validatePlan checks a freshly generated plan before it is accepted:
// non-empty, every agent type known to the registry, dependency indices in
// range, no self-references, and an acyclic dependency graph. Validation is
// idempotent; an invalid plan fails the same way every time.
func validatePlan(plan *WorkflowPlan, registry *agents.Registry) error {
	n := len(plan.Steps)
	if n == 0 {
		return ErrEmptyPlan
	}

	for i, step := range plan.Steps {
		if !registry.Has(step.AgentType) {
			return &InvalidAgentTypeError{StepIndex: i, AgentType: step.AgentType}
		}
		for _, dep := range step.DependsOn {
			if dep < 0 || dep >= n {
				return fmt.Errorf("step %d: dependency index %d out of range [0, %d)", i, dep, n)
			}
			if dep == i {
				return fmt.Errorf("step %d: self-dependency", i)
			}
		}
	}

	// Detect cycles using DFS with coloring.
	const (
		white = 0 // Not visited.
		gray  = 1 // In current path.
		black = 2 // Fully processed.
	)
	colors := make([]int, n)

	var dfs func(node int) error
	dfs = func(node int) error {
		colors[node] = gray
		for _, dep := range plan.Steps[node].DependsOn {
			switch colors[dep] {
			case gray:
				return fmt.Errorf("cycle detected involving steps %d and %d", node, dep)
			case white:
				if err := dfs(dep); err != nil {
					return err
				}
			}
		}
		colors[node] = black
		return nil
	}

	for i := range plan.Steps {
		if colors[i] == white {
			if err := dfs(i); err != nil {
				return err
			}
		}
	}

	return nil
}

// readySteps returns the indices of steps not yet completed whose
// dependencies are all present in completed, in ascending index order.
// This is a pure function for testing.
func readySteps(plan *WorkflowPlan, completed ExecutionContext) []int {
	var ready []int
	for i, step := range plan.Steps {
		if _, done := completed[i]; done {
			continue
		}
		allMet := true
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				allMet = false
				break
			}
		}
		if allMet {
			ready = append(ready, i)
		}
	}
	return ready
}
