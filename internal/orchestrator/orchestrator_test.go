package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jkaninda/busara/internal/agents"
	"github.com/jkaninda/busara/internal/llm"
)

// fakeGenerator scripts the structured-generation layer. Plan requests and
// step requests are told apart by the output type the caller passes in.
type fakeGenerator struct {
	mu        sync.Mutex
	planCalls int
	stepCalls int
	planFn    func(call int, req *llm.GenerateRequest) (*WorkflowPlan, error)
	stepFn    func(req *llm.GenerateRequest) (*AgentOutput, error)
}

func (g *fakeGenerator) GenerateJSON(ctx context.Context, req *llm.GenerateRequest, out any) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	switch v := out.(type) {
	case *WorkflowPlan:
		g.mu.Lock()
		call := g.planCalls
		g.planCalls++
		g.mu.Unlock()
		plan, err := g.planFn(call, req)
		if err != nil {
			return err
		}
		*v = *plan
		return nil
	case *AgentOutput:
		g.mu.Lock()
		g.stepCalls++
		g.mu.Unlock()
		output, err := g.stepFn(req)
		if err != nil {
			return err
		}
		*v = *output
		return nil
	default:
		return fmt.Errorf("unexpected output type %T", out)
	}
}

func (g *fakeGenerator) counts() (plans, steps int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.planCalls, g.stepCalls
}

// taskOf extracts the step task from a worker prompt.
func taskOf(req *llm.GenerateRequest) string {
	_, task, ok := strings.Cut(req.Prompt, "Your task:\n")
	if !ok {
		return ""
	}
	return task
}

// testRegistry gives every agent a distinct model so target-model selection
// is observable.
func testRegistry(t *testing.T) *agents.Registry {
	t.Helper()
	reg, err := agents.NewRegistry([]agents.Config{
		{Type: agents.TypeGeneral, Description: "general", Model: "general-model", MaxTokens: 1024},
		{Type: agents.TypeResearcher, Description: "research", Model: "researcher-model", MaxTokens: 1024},
		{Type: agents.TypeAnalyst, Description: "analysis", Model: "analyst-model", MaxTokens: 1024},
		{Type: agents.TypeCoder, Description: "code", Model: "coder-model", MaxTokens: 1024},
		{Type: agents.TypeWriter, Description: "writing", Model: "writer-model", MaxTokens: 1024},
	}, agents.TypeGeneral)
	if err != nil {
		t.Fatalf("building registry: %v", err)
	}
	return reg
}

func newTestOrchestrator(t *testing.T, g *fakeGenerator, cfg Config) *Orchestrator {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(g, testRegistry(t), cfg, logger)
}

func okOutput(result string) (*AgentOutput, error) {
	return &AgentOutput{Result: result}, nil
}

func singleStepPlan(agent agents.Type, task string) *WorkflowPlan {
	return &WorkflowPlan{
		Steps:         []WorkflowStep{{AgentType: agent, Task: task}},
		MaxIterations: 3,
	}
}

// --- Plan validation ---

func TestValidatePlan(t *testing.T) {
	reg := testRegistry(t)

	tests := []struct {
		name    string
		plan    *WorkflowPlan
		wantErr string
	}{
		{
			name:    "empty plan",
			plan:    &WorkflowPlan{},
			wantErr: "no steps",
		},
		{
			name: "unknown agent type",
			plan: &WorkflowPlan{Steps: []WorkflowStep{
				{AgentType: "astrologer", Task: "t"},
			}},
			wantErr: "unknown agent type",
		},
		{
			name: "dependency out of range",
			plan: &WorkflowPlan{Steps: []WorkflowStep{
				{AgentType: agents.TypeGeneral, Task: "t", DependsOn: []int{5}},
			}},
			wantErr: "out of range",
		},
		{
			name: "negative dependency",
			plan: &WorkflowPlan{Steps: []WorkflowStep{
				{AgentType: agents.TypeGeneral, Task: "t", DependsOn: []int{-1}},
			}},
			wantErr: "out of range",
		},
		{
			name: "self dependency",
			plan: &WorkflowPlan{Steps: []WorkflowStep{
				{AgentType: agents.TypeGeneral, Task: "t", DependsOn: []int{0}},
			}},
			wantErr: "self-dependency",
		},
		{
			name: "two-step cycle",
			plan: &WorkflowPlan{Steps: []WorkflowStep{
				{AgentType: agents.TypeGeneral, Task: "a", DependsOn: []int{1}},
				{AgentType: agents.TypeGeneral, Task: "b", DependsOn: []int{0}},
			}},
			wantErr: "cycle",
		},
		{
			name: "three-step cycle",
			plan: &WorkflowPlan{Steps: []WorkflowStep{
				{AgentType: agents.TypeGeneral, Task: "a", DependsOn: []int{2}},
				{AgentType: agents.TypeGeneral, Task: "b", DependsOn: []int{0}},
				{AgentType: agents.TypeGeneral, Task: "c", DependsOn: []int{1}},
			}},
			wantErr: "cycle",
		},
		{
			name: "valid diamond",
			plan: &WorkflowPlan{Steps: []WorkflowStep{
				{AgentType: agents.TypeResearcher, Task: "a"},
				{AgentType: agents.TypeAnalyst, Task: "b", DependsOn: []int{0}},
				{AgentType: agents.TypeCoder, Task: "c", DependsOn: []int{0}},
				{AgentType: agents.TypeWriter, Task: "d", DependsOn: []int{1, 2}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePlan(tt.plan, reg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid plan, got: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidatePlan_Idempotent(t *testing.T) {
	reg := testRegistry(t)
	plan := &WorkflowPlan{Steps: []WorkflowStep{
		{AgentType: agents.TypeGeneral, Task: "a", DependsOn: []int{1}},
		{AgentType: agents.TypeGeneral, Task: "b", DependsOn: []int{0}},
	}}

	first := validatePlan(plan, reg)
	second := validatePlan(plan, reg)
	if first == nil || second == nil {
		t.Fatal("expected validation errors")
	}
	if first.Error() != second.Error() {
		t.Errorf("validation not idempotent: %q vs %q", first, second)
	}
}

func TestValidatePlan_ErrorTypes(t *testing.T) {
	reg := testRegistry(t)

	if err := validatePlan(&WorkflowPlan{}, reg); !errors.Is(err, ErrEmptyPlan) {
		t.Errorf("expected ErrEmptyPlan, got %v", err)
	}

	err := validatePlan(&WorkflowPlan{Steps: []WorkflowStep{
		{AgentType: "astrologer", Task: "t"},
	}}, reg)
	var invalidType *InvalidAgentTypeError
	if !errors.As(err, &invalidType) {
		t.Fatalf("expected InvalidAgentTypeError, got %v", err)
	}
	if invalidType.StepIndex != 0 || invalidType.AgentType != "astrologer" {
		t.Errorf("unexpected error fields: %+v", invalidType)
	}
}

// --- Ready-step selection ---

func TestReadySteps(t *testing.T) {
	plan := &WorkflowPlan{Steps: []WorkflowStep{
		{AgentType: agents.TypeResearcher, Task: "a"},
		{AgentType: agents.TypeAnalyst, Task: "b", DependsOn: []int{0}},
		{AgentType: agents.TypeCoder, Task: "c"},
		{AgentType: agents.TypeWriter, Task: "d", DependsOn: []int{1, 2}},
	}}

	tests := []struct {
		name      string
		completed ExecutionContext
		want      []int
	}{
		{"nothing done", ExecutionContext{}, []int{0, 2}},
		{"first done", ExecutionContext{0: {}}, []int{1, 2}},
		{"deps of last partially done", ExecutionContext{0: {}, 1: {}}, []int{2}},
		{"all deps done", ExecutionContext{0: {}, 1: {}, 2: {}}, []int{3}},
		{"all done", ExecutionContext{0: {}, 1: {}, 2: {}, 3: {}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := readySteps(plan, tt.completed)
			if len(got) != len(tt.want) {
				t.Fatalf("readySteps = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("readySteps = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

// --- Simple plan short-circuit ---

func TestPrepareContext_SimpleShortCircuit(t *testing.T) {
	gen := &fakeGenerator{
		planFn: func(call int, req *llm.GenerateRequest) (*WorkflowPlan, error) {
			return singleStepPlan(agents.TypeGeneral, "Answer the user's request."), nil
		},
		stepFn: func(req *llm.GenerateRequest) (*AgentOutput, error) {
			return nil, errors.New("no step should execute")
		},
	}
	o := newTestOrchestrator(t, gen, Config{})

	octx, err := o.PrepareContext(context.Background(), "what is 2+2", "")
	if err != nil {
		t.Fatalf("PrepareContext error: %v", err)
	}
	if octx.Status != StatusComplete {
		t.Errorf("expected complete, got %q", octx.Status)
	}
	if octx.TargetModel != "general-model" {
		t.Errorf("expected default agent's model, got %q", octx.TargetModel)
	}
	if len(octx.ContextMessages) != 0 {
		t.Errorf("simple path must produce no context messages, got %d", len(octx.ContextMessages))
	}

	plans, steps := gen.counts()
	if plans != 1 || steps != 0 {
		t.Errorf("expected exactly one generator call, got %d plan calls and %d step calls", plans, steps)
	}
}

func TestPrepareContext_SimpleWithHint(t *testing.T) {
	gen := &fakeGenerator{
		planFn: func(call int, req *llm.GenerateRequest) (*WorkflowPlan, error) {
			return singleStepPlan(agents.TypeCoder, "Answer the user's request."), nil
		},
	}
	o := newTestOrchestrator(t, gen, Config{})

	octx, err := o.PrepareContext(context.Background(), "fix this bug", agents.TypeCoder)
	if err != nil {
		t.Fatalf("PrepareContext error: %v", err)
	}
	if octx.TargetModel != "coder-model" {
		t.Errorf("hinted simple plan should target the hinted agent's model, got %q", octx.TargetModel)
	}
}

// --- Dependency ordering ---

func TestPrepareContext_DependencyOrdering(t *testing.T) {
	var mu sync.Mutex
	var order []string

	gen := &fakeGenerator{}
	gen.planFn = func(call int, req *llm.GenerateRequest) (*WorkflowPlan, error) {
		return &WorkflowPlan{
			Steps: []WorkflowStep{
				{AgentType: agents.TypeResearcher, Task: "gather"},
				{AgentType: agents.TypeAnalyst, Task: "analyze", DependsOn: []int{0}},
				{AgentType: agents.TypeWriter, Task: "write", DependsOn: []int{1}},
			},
			MaxIterations: 3,
		}, nil
	}
	gen.stepFn = func(req *llm.GenerateRequest) (*AgentOutput, error) {
		task := taskOf(req)
		mu.Lock()
		order = append(order, task)
		mu.Unlock()

		switch task {
		case "analyze":
			if !strings.Contains(req.Prompt, "Result from step 0:") || !strings.Contains(req.Prompt, "facts") {
				return nil, fmt.Errorf("analyze step missing dependency output in prompt:\n%s", req.Prompt)
			}
			return okOutput("conclusions")
		case "write":
			if !strings.Contains(req.Prompt, "conclusions") {
				return nil, fmt.Errorf("write step missing dependency output in prompt:\n%s", req.Prompt)
			}
			return okOutput("prose")
		default:
			return okOutput("facts")
		}
	}

	o := newTestOrchestrator(t, gen, Config{})
	octx, err := o.PrepareContext(context.Background(), "research and write", "")
	if err != nil {
		t.Fatalf("PrepareContext error: %v", err)
	}

	if octx.Status != StatusComplete {
		t.Fatalf("expected complete, got %q", octx.Status)
	}
	want := []string{"gather", "analyze", "write"}
	if len(order) != len(want) {
		t.Fatalf("execution order %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("execution order %v, want %v", order, want)
		}
	}

	// Context messages in step-index order, attributed to their agents.
	if len(octx.ContextMessages) != 3 {
		t.Fatalf("expected 3 context messages, got %d", len(octx.ContextMessages))
	}
	if octx.ContextMessages[0].AgentType != agents.TypeResearcher || octx.ContextMessages[0].Content != "facts" {
		t.Errorf("unexpected first message: %+v", octx.ContextMessages[0])
	}
	if octx.ContextMessages[2].Content != "prose" {
		t.Errorf("unexpected last message: %+v", octx.ContextMessages[2])
	}
	if octx.TargetModel != "writer-model" {
		t.Errorf("completed run should target the last step's model, got %q", octx.TargetModel)
	}
}

// --- Concurrency bound ---

func TestPrepareContext_ConcurrencyBound(t *testing.T) {
	var inFlight, peak atomic.Int32

	gen := &fakeGenerator{}
	gen.planFn = func(call int, req *llm.GenerateRequest) (*WorkflowPlan, error) {
		steps := make([]WorkflowStep, 6)
		for i := range steps {
			steps[i] = WorkflowStep{AgentType: agents.TypeResearcher, Task: fmt.Sprintf("t%d", i)}
		}
		return &WorkflowPlan{Steps: steps, MaxIterations: 3}, nil
	}
	gen.stepFn = func(req *llm.GenerateRequest) (*AgentOutput, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return okOutput("done")
	}

	o := newTestOrchestrator(t, gen, Config{MaxConcurrentSteps: 2})
	octx, err := o.PrepareContext(context.Background(), "fan out", "")
	if err != nil {
		t.Fatalf("PrepareContext error: %v", err)
	}
	if octx.Status != StatusComplete {
		t.Fatalf("expected complete, got %q", octx.Status)
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("observed %d concurrent steps, limit is 2", got)
	}
}

// --- Partial failure isolation ---

func TestPrepareContext_PartialFailureIsolation(t *testing.T) {
	gen := &fakeGenerator{}
	gen.planFn = func(call int, req *llm.GenerateRequest) (*WorkflowPlan, error) {
		return &WorkflowPlan{
			Steps: []WorkflowStep{
				{AgentType: agents.TypeResearcher, Task: "gather"},
				{AgentType: agents.TypeCoder, Task: "broken"},
				{AgentType: agents.TypeWriter, Task: "write", DependsOn: []int{0}},
			},
			MaxIterations: 5,
		}, nil
	}
	gen.stepFn = func(req *llm.GenerateRequest) (*AgentOutput, error) {
		if taskOf(req) == "broken" {
			return nil, errors.New("provider exploded")
		}
		return okOutput("ok: " + taskOf(req))
	}

	o := newTestOrchestrator(t, gen, Config{})
	octx, err := o.PrepareContext(context.Background(), "do things", "")
	if err != nil {
		t.Fatalf("PrepareContext error: %v", err)
	}

	// The failing step never completes, so the run ends in deadlock once the
	// survivors are done, with the independent steps' outputs intact.
	if octx.Status != StatusDeadlock {
		t.Fatalf("expected deadlock, got %q", octx.Status)
	}
	if len(octx.ContextMessages) != 2 {
		t.Fatalf("expected 2 surviving messages, got %d: %+v", len(octx.ContextMessages), octx.ContextMessages)
	}
	if octx.ContextMessages[0].Content != "ok: gather" || octx.ContextMessages[1].Content != "ok: write" {
		t.Errorf("unexpected surviving outputs: %+v", octx.ContextMessages)
	}
	if octx.TargetModel != "general-model" {
		t.Errorf("non-complete run should fall back to the default agent's model, got %q", octx.TargetModel)
	}
}

// --- Deadlock detection ---

func TestPrepareContext_DeadlockAfterOneRound(t *testing.T) {
	gen := &fakeGenerator{}
	gen.planFn = func(call int, req *llm.GenerateRequest) (*WorkflowPlan, error) {
		return &WorkflowPlan{
			Steps: []WorkflowStep{
				{AgentType: agents.TypeResearcher, Task: "a"},
				{AgentType: agents.TypeCoder, Task: "b"},
			},
			MaxIterations: 50,
		}, nil
	}
	gen.stepFn = func(req *llm.GenerateRequest) (*AgentOutput, error) {
		return nil, errors.New("always fails")
	}

	o := newTestOrchestrator(t, gen, Config{})
	octx, err := o.PrepareContext(context.Background(), "doomed", "")
	if err != nil {
		t.Fatalf("PrepareContext error: %v", err)
	}
	if octx.Status != StatusDeadlock {
		t.Fatalf("expected deadlock, got %q", octx.Status)
	}

	// One round, both steps tried once. The generous iteration budget must
	// not keep the run spinning.
	_, steps := gen.counts()
	if steps != 2 {
		t.Errorf("expected 2 step attempts before deadlock, got %d", steps)
	}
	if len(octx.ContextMessages) != 0 {
		t.Errorf("expected no context messages, got %+v", octx.ContextMessages)
	}
}

// --- Iteration budget ---

func TestPrepareContext_BudgetExhaustedByReplanLoop(t *testing.T) {
	gen := &fakeGenerator{}
	gen.planFn = func(call int, req *llm.GenerateRequest) (*WorkflowPlan, error) {
		return singleStepPlan(agents.TypeResearcher, fmt.Sprintf("attempt-%d", call)), nil
	}
	gen.stepFn = func(req *llm.GenerateRequest) (*AgentOutput, error) {
		return &AgentOutput{
			Result:   "never good enough",
			Metadata: OutputMetadata{NeedsRevision: true, Issues: []string{"unsatisfied"}},
		}, nil
	}

	o := newTestOrchestrator(t, gen, Config{})
	octx, err := o.PrepareContext(context.Background(), "perfectionist", "")
	if err != nil {
		t.Fatalf("PrepareContext error: %v", err)
	}
	if octx.Status != StatusBudgetExhausted {
		t.Fatalf("expected budget_exhausted, got %q", octx.Status)
	}

	// Every round completes its step, requests revision, and gets a fresh
	// plan; each round still consumes one iteration. MaxIterations of 3
	// means 3 rounds: the initial plan plus one replan per round.
	plans, steps := gen.counts()
	if plans != 4 {
		t.Errorf("expected 1 plan + 3 replans, got %d plan calls", plans)
	}
	if steps != 3 {
		t.Errorf("expected 3 step attempts, got %d", steps)
	}
	// The last replan wiped the context; nothing survives.
	if len(octx.ContextMessages) != 0 {
		t.Errorf("expected no context messages, got %+v", octx.ContextMessages)
	}
	if octx.TargetModel != "general-model" {
		t.Errorf("expected default agent's model, got %q", octx.TargetModel)
	}
}

// --- Revision-triggered re-planning ---

func TestPrepareContext_ReplanDiscardsOldOutputs(t *testing.T) {
	gen := &fakeGenerator{}
	gen.planFn = func(call int, req *llm.GenerateRequest) (*WorkflowPlan, error) {
		switch call {
		case 0:
			return &WorkflowPlan{
				Steps: []WorkflowStep{
					{AgentType: agents.TypeResearcher, Task: "gather"},
					{AgentType: agents.TypeAnalyst, Task: "analyze", DependsOn: []int{0}},
				},
				MaxIterations: 5,
			}, nil
		default:
			// The replan prompt must carry the reported issues.
			if !strings.Contains(req.Prompt, "missing primary data") {
				return nil, fmt.Errorf("replan prompt missing reported issue:\n%s", req.Prompt)
			}
			return singleStepPlan(agents.TypeCoder, "redo"), nil
		}
	}
	gen.stepFn = func(req *llm.GenerateRequest) (*AgentOutput, error) {
		switch taskOf(req) {
		case "gather":
			return &AgentOutput{
				Result:   "stale partial research",
				Metadata: OutputMetadata{NeedsRevision: true, Issues: []string{"missing primary data"}},
			}, nil
		case "redo":
			return okOutput("fresh result")
		default:
			return nil, fmt.Errorf("unexpected task %q", taskOf(req))
		}
	}

	o := newTestOrchestrator(t, gen, Config{})
	octx, err := o.PrepareContext(context.Background(), "needs a redo", "")
	if err != nil {
		t.Fatalf("PrepareContext error: %v", err)
	}

	if octx.Status != StatusComplete {
		t.Fatalf("expected complete, got %q", octx.Status)
	}
	// Only the replacement plan's output survives; the discarded plan's
	// outputs must not leak into the final context.
	if len(octx.ContextMessages) != 1 {
		t.Fatalf("expected 1 context message, got %d: %+v", len(octx.ContextMessages), octx.ContextMessages)
	}
	if octx.ContextMessages[0].Content != "fresh result" {
		t.Errorf("unexpected surviving message: %+v", octx.ContextMessages[0])
	}
	for _, msg := range octx.ContextMessages {
		if strings.Contains(msg.Content, "stale") {
			t.Errorf("discarded plan output leaked into final context: %+v", msg)
		}
	}
	if octx.TargetModel != "coder-model" {
		t.Errorf("expected replacement plan's last agent model, got %q", octx.TargetModel)
	}
}

func TestPrepareContext_ReplanFailureKeepsCurrentPlan(t *testing.T) {
	gen := &fakeGenerator{}
	gen.planFn = func(call int, req *llm.GenerateRequest) (*WorkflowPlan, error) {
		if call == 0 {
			return singleStepPlan(agents.TypeResearcher, "gather"), nil
		}
		return nil, errors.New("planner unavailable")
	}
	gen.stepFn = func(req *llm.GenerateRequest) (*AgentOutput, error) {
		return &AgentOutput{
			Result:   "good enough after all",
			Metadata: OutputMetadata{NeedsRevision: true},
		}, nil
	}

	o := newTestOrchestrator(t, gen, Config{})
	octx, err := o.PrepareContext(context.Background(), "flaky planner", "")
	if err != nil {
		t.Fatalf("PrepareContext error: %v", err)
	}

	// The failed replan is abandoned; the already-complete plan finishes.
	if octx.Status != StatusComplete {
		t.Fatalf("expected complete, got %q", octx.Status)
	}
	if len(octx.ContextMessages) != 1 || octx.ContextMessages[0].Content != "good enough after all" {
		t.Errorf("unexpected context messages: %+v", octx.ContextMessages)
	}
	plans, _ := gen.counts()
	if plans != 2 {
		t.Errorf("expected initial plan + one failed replan, got %d plan calls", plans)
	}
}

// --- Cancellation ---

func TestPrepareContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fineDone := make(chan struct{})

	gen := &fakeGenerator{}
	gen.planFn = func(call int, req *llm.GenerateRequest) (*WorkflowPlan, error) {
		return &WorkflowPlan{
			Steps: []WorkflowStep{
				{AgentType: agents.TypeResearcher, Task: "fine"},
				{AgentType: agents.TypeCoder, Task: "pull the plug"},
				{AgentType: agents.TypeWriter, Task: "never runs", DependsOn: []int{0, 1}},
			},
			MaxIterations: 5,
		}, nil
	}
	gen.stepFn = func(req *llm.GenerateRequest) (*AgentOutput, error) {
		if taskOf(req) == "pull the plug" {
			// Cancel only after the sibling step succeeded, so the round
			// makes progress and the run observes cancellation at the next
			// round boundary.
			<-fineDone
			cancel()
			return nil, context.Canceled
		}
		defer close(fineDone)
		return okOutput("fine")
	}

	o := newTestOrchestrator(t, gen, Config{})
	octx, err := o.PrepareContext(ctx, "abort me", "")
	if err == nil {
		t.Fatal("expected an error for a cancelled run")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
	if octx != nil {
		t.Errorf("expected nil context on cancellation, got %+v", octx)
	}
}

func TestPrepareContext_CancelledWithoutRoundProgress(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	gen := &fakeGenerator{}
	gen.planFn = func(call int, req *llm.GenerateRequest) (*WorkflowPlan, error) {
		return singleStepPlan(agents.TypeResearcher, "doomed"), nil
	}
	gen.stepFn = func(req *llm.GenerateRequest) (*AgentOutput, error) {
		// Every in-flight call fails with the caller's cancellation, so the
		// round ends with no successful step. The run must still report
		// cancellation, not a deadlock.
		cancel()
		return nil, context.Canceled
	}

	o := newTestOrchestrator(t, gen, Config{})
	octx, err := o.PrepareContext(ctx, "abort mid-round", "")
	if err == nil {
		t.Fatal("expected an error for a cancelled run")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
	if octx != nil {
		t.Errorf("expected nil context on cancellation, got %+v", octx)
	}
}

// --- Planner failures surface ---

func TestPrepareContext_PlanGenerationFails(t *testing.T) {
	gen := &fakeGenerator{
		planFn: func(call int, req *llm.GenerateRequest) (*WorkflowPlan, error) {
			return nil, errors.New("model returned garbage")
		},
	}
	o := newTestOrchestrator(t, gen, Config{})

	if _, err := o.PrepareContext(context.Background(), "anything", ""); err == nil || !strings.Contains(err.Error(), "generating plan") {
		t.Fatalf("expected plan generation error, got %v", err)
	}
}

func TestPrepareContext_InvalidPlanRejected(t *testing.T) {
	gen := &fakeGenerator{
		planFn: func(call int, req *llm.GenerateRequest) (*WorkflowPlan, error) {
			return &WorkflowPlan{Steps: []WorkflowStep{
				{AgentType: "astrologer", Task: "read the stars"},
			}}, nil
		},
	}
	o := newTestOrchestrator(t, gen, Config{})

	_, err := o.PrepareContext(context.Background(), "anything", "")
	var invalidType *InvalidAgentTypeError
	if !errors.As(err, &invalidType) {
		t.Fatalf("expected InvalidAgentTypeError, got %v", err)
	}
}

func TestPrepareContext_EmptyPlanRejected(t *testing.T) {
	gen := &fakeGenerator{
		planFn: func(call int, req *llm.GenerateRequest) (*WorkflowPlan, error) {
			return &WorkflowPlan{}, nil
		},
	}
	o := newTestOrchestrator(t, gen, Config{})

	if _, err := o.PrepareContext(context.Background(), "anything", ""); !errors.Is(err, ErrEmptyPlan) {
		t.Fatalf("expected ErrEmptyPlan, got %v", err)
	}
}

// --- Default iteration budget ---

func TestGeneratePlan_DefaultsMaxIterations(t *testing.T) {
	gen := &fakeGenerator{
		planFn: func(call int, req *llm.GenerateRequest) (*WorkflowPlan, error) {
			return &WorkflowPlan{Steps: []WorkflowStep{
				{AgentType: agents.TypeResearcher, Task: "a"},
				{AgentType: agents.TypeWriter, Task: "b", DependsOn: []int{0}},
			}}, nil // no maxIterations in the reply
		},
	}
	o := newTestOrchestrator(t, gen, Config{DefaultMaxIterations: 7})

	plan, err := o.planner.generatePlan(context.Background(), "r", "")
	if err != nil {
		t.Fatalf("generatePlan error: %v", err)
	}
	if plan.MaxIterations != 7 {
		t.Errorf("expected configured default of 7 iterations, got %d", plan.MaxIterations)
	}
}
