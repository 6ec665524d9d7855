package orchestrator

import (
	"fmt"
	"strings"

	"github.com/jkaninda/busara/internal/agents"
)

// Prompts used by the planner and the per-step workers. The plan schema is
// carried inside the prompt text; the structured-generation layer only
// enforces that the reply parses.

const plannerPromptHeader = `You are the planning component of Busara, an agent-routing chat service.
Decide whether the user's request is SIMPLE or COMPLEX, then emit an execution plan.

SIMPLE: the request can be answered directly in one turn. Emit exactly one step
assigned to the %s agent with the task "Answer the user's request."

COMPLEX: the request needs decomposition. Emit 2 to 5 steps, each assigned to a
specialist agent, each with a concrete task and its dependencies.

Output ONLY a JSON object with this schema:
{
  "steps": [
    {
      "agentType": "<one of the agent types below>",
      "task": "What this step must accomplish",
      "dependsOn": []
    }
  ],
  "maxIterations": 3
}

Rules:
- dependsOn contains 0-based indices into this same steps array
- A step may only depend on earlier work it genuinely needs; no cycles
- Prefer fewer, well-scoped steps
- maxIterations bounds scheduling rounds; 3 is right for most plans

Available agent types:
%s`

// plannerSystemPrompt renders the planning prompt for the registry's agent
// set. hint names the agent the router suggested for the simple path; empty
// means the default agent.
func plannerSystemPrompt(registry *agents.Registry, hint agents.Type) string {
	simple := registry.DefaultType()
	if hint != "" && registry.Has(hint) {
		simple = hint
	}

	var catalog strings.Builder
	for _, cfg := range registry.List() {
		fmt.Fprintf(&catalog, "- %s: %s\n", cfg.Type, cfg.Description)
	}

	return fmt.Sprintf(plannerPromptHeader, simple, strings.TrimRight(catalog.String(), "\n"))
}

// buildReplanPrompt summarizes the offending step, its issues, and the
// current plan's agent sequence for the revision request.
func buildReplanPrompt(request string, plan *WorkflowPlan, stepIndex int, output *AgentOutput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "The original request:\n%s\n\n", request)

	var sequence []string
	for _, s := range plan.Steps {
		sequence = append(sequence, string(s.AgentType))
	}
	fmt.Fprintf(&b, "The current plan ran these agents in order: %s\n\n", strings.Join(sequence, " -> "))

	step := plan.Steps[stepIndex]
	fmt.Fprintf(&b, "Step %d (%s, task: %q) flagged its own output as unsatisfactory.\n", stepIndex, step.AgentType, step.Task)
	if len(output.Metadata.Issues) > 0 {
		b.WriteString("Reported issues:\n")
		for _, issue := range output.Metadata.Issues {
			fmt.Fprintf(&b, "- %s\n", issue)
		}
	}

	b.WriteString("\nProduce a replacement plan that addresses these issues. All prior step outputs will be discarded; the new plan must stand on its own.")
	return b.String()
}

const workerOutputInstructions = `

Respond ONLY with a JSON object in this exact format:
{
  "result": "your complete answer to the task",
  "metadata": {
    "needsRevision": false,
    "issues": []
  }
}

Set needsRevision to true only if you could not produce a satisfactory result,
and list the specific problems in issues.`

// buildWorkerPrompt assembles the user prompt for one step: the initial
// request, the results of its dependencies in declaration order, then the
// step's own task.
func buildWorkerPrompt(request string, step WorkflowStep, completed ExecutionContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "User request:\n%s\n", request)

	for _, dep := range step.DependsOn {
		if out, ok := completed[dep]; ok {
			fmt.Fprintf(&b, "\nResult from step %d:\n%s\n", dep, out.Result)
		}
	}

	fmt.Fprintf(&b, "\nYour task:\n%s", step.Task)
	return b.String()
}
