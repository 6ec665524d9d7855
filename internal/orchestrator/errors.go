package orchestrator

import (
	"errors"
	"fmt"

	"github.com/jkaninda/busara/internal/agents"
)

// ErrEmptyPlan is returned when the planner produces a plan with no steps.
// It is fatal to the run: nothing is executed.
var ErrEmptyPlan = errors.New("plan contains no steps")

// InvalidAgentTypeError is returned when a plan references an agent type
// unknown to the registry. Fatal to the run.
type InvalidAgentTypeError struct {
	StepIndex int
	AgentType agents.Type
}

func (e *InvalidAgentTypeError) Error() string {
	return fmt.Sprintf("step %d references unknown agent type %q", e.StepIndex, e.AgentType)
}

// StepError records a single step's execution failure. Recovered locally:
// the step stays incomplete while independent siblings continue.
type StepError struct {
	StepIndex int
	AgentType agents.Type
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.StepIndex, e.AgentType, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ReplanError records a failed re-planning attempt. Recovered locally by
// keeping the existing plan and context for the rest of the run.
type ReplanError struct {
	StepIndex int
	Err       error
}

func (e *ReplanError) Error() string {
	return fmt.Sprintf("re-planning after step %d: %v", e.StepIndex, e.Err)
}

func (e *ReplanError) Unwrap() error { return e.Err }
