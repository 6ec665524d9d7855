package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/jkaninda/busara/internal/agents"
	"github.com/jkaninda/busara/internal/history"
	"github.com/jkaninda/busara/internal/llm"
	"github.com/jkaninda/busara/internal/orchestrator"
	"github.com/jkaninda/busara/internal/retrieval"
)

type stubProvider struct {
	mu    sync.Mutex
	reqs  []llm.Request
	reply string
	err   error
}

func (p *stubProvider) SendMessage(_ context.Context, req *llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	p.reqs = append(p.reqs, *req)
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Response{Content: p.reply, Usage: llm.Usage{InputTokens: 10, OutputTokens: 5}}, nil
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) last(t *testing.T) llm.Request {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.reqs) == 0 {
		t.Fatal("provider was never called")
	}
	return p.reqs[len(p.reqs)-1]
}

type stubOrchestrator struct {
	octx *orchestrator.OrchestrationContext
	err  error
	hint agents.Type
}

func (o *stubOrchestrator) PrepareContext(_ context.Context, _ string, hint agents.Type) (*orchestrator.OrchestrationContext, error) {
	o.hint = hint
	return o.octx, o.err
}

type stubSearcher struct {
	docs []retrieval.Document
	err  error
}

func (s *stubSearcher) Search(context.Context, string, int) ([]retrieval.Document, error) {
	return s.docs, s.err
}

func (s *stubSearcher) Name() string { return "stub" }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func simpleContext(model string) *orchestrator.OrchestrationContext {
	return &orchestrator.OrchestrationContext{
		TargetModel: model,
		Status:      orchestrator.StatusComplete,
	}
}

func TestHandle_Simple(t *testing.T) {
	provider := &stubProvider{reply: "four"}
	orch := &stubOrchestrator{octx: simpleContext("target-model")}
	svc := New(provider, orch, agents.DefaultRegistry("base-model"), discardLogger())

	resp, err := svc.Handle(context.Background(), Request{UserID: "alice", Message: "what is 2+2"})
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if resp.Reply != "four" {
		t.Errorf("unexpected reply %q", resp.Reply)
	}
	if resp.Model != "target-model" {
		t.Errorf("unexpected model %q", resp.Model)
	}
	if resp.Status != orchestrator.StatusComplete {
		t.Errorf("unexpected status %q", resp.Status)
	}

	sent := provider.last(t)
	if sent.Model != "target-model" {
		t.Errorf("provider got model %q", sent.Model)
	}
	if len(sent.Messages) != 1 || sent.Messages[0].Content != "what is 2+2" {
		t.Errorf("unexpected messages: %+v", sent.Messages)
	}
	if strings.Contains(sent.SystemPrompt, "Intermediate results") {
		t.Error("simple path must not inject workflow context")
	}
}

func TestHandle_EmptyMessage(t *testing.T) {
	svc := New(&stubProvider{}, &stubOrchestrator{}, agents.DefaultRegistry("m"), discardLogger())
	if _, err := svc.Handle(context.Background(), Request{Message: "   "}); err == nil {
		t.Fatal("expected error for empty message")
	}
}

func TestHandle_OrchestratedContextInjected(t *testing.T) {
	provider := &stubProvider{reply: "summary"}
	orch := &stubOrchestrator{octx: &orchestrator.OrchestrationContext{
		TargetModel: "writer-model",
		Status:      orchestrator.StatusDeadlock,
		ContextMessages: []orchestrator.ContextMessage{
			{AgentType: agents.TypeResearcher, Content: "the facts"},
			{AgentType: agents.TypeAnalyst, Content: "the conclusions"},
		},
		PlanSummary: []agents.Type{agents.TypeResearcher, agents.TypeAnalyst},
	}}
	svc := New(provider, orch, agents.DefaultRegistry("base-model"), discardLogger())

	resp, err := svc.Handle(context.Background(), Request{UserID: "alice", Message: "hello there"})
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}

	sent := provider.last(t)
	for _, want := range []string{"[researcher]", "the facts", "[analyst]", "the conclusions"} {
		if !strings.Contains(sent.SystemPrompt, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	// Non-complete runs carry a caveat.
	if !strings.Contains(sent.SystemPrompt, "deadlock") {
		t.Error("system prompt should mention the terminal status")
	}
	if len(resp.AgentTypes) != 2 {
		t.Errorf("expected 2 attributed agents, got %v", resp.AgentTypes)
	}
}

func TestHandle_RetrievalEnrichment(t *testing.T) {
	provider := &stubProvider{reply: "answer"}
	orch := &stubOrchestrator{octx: simpleContext("m")}
	searcher := &stubSearcher{docs: []retrieval.Document{
		{ID: "d1", Title: "Go scheduler", Content: "GMP model details"},
	}}
	svc := New(provider, orch, agents.DefaultRegistry("base-model"), discardLogger(), WithSearcher(searcher))

	// "research" routes to the researcher, which holds the retrieval flag.
	if _, err := svc.Handle(context.Background(), Request{Message: "research the Go scheduler"}); err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if orch.hint != agents.TypeResearcher {
		t.Errorf("expected researcher hint, got %q", orch.hint)
	}

	sent := provider.last(t)
	if !strings.Contains(sent.SystemPrompt, "GMP model details") {
		t.Error("system prompt missing retrieved document")
	}
}

func TestHandle_RetrievalNotUsedWithoutFlag(t *testing.T) {
	provider := &stubProvider{reply: "answer"}
	searcher := &stubSearcher{docs: []retrieval.Document{{ID: "d1", Title: "t", Content: "secret doc"}}}
	svc := New(provider, &stubOrchestrator{octx: simpleContext("m")},
		agents.DefaultRegistry("base-model"), discardLogger(), WithSearcher(searcher))

	// A generic message routes to the general agent, which has no tools.
	if _, err := svc.Handle(context.Background(), Request{Message: "hello"}); err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if strings.Contains(provider.last(t).SystemPrompt, "secret doc") {
		t.Error("retrieval must be gated on the agent's tool flag")
	}
}

func TestHandle_RetrievalFailureTolerated(t *testing.T) {
	provider := &stubProvider{reply: "answer"}
	searcher := &stubSearcher{err: errors.New("index down")}
	svc := New(provider, &stubOrchestrator{octx: simpleContext("m")},
		agents.DefaultRegistry("base-model"), discardLogger(), WithSearcher(searcher))

	if _, err := svc.Handle(context.Background(), Request{Message: "research something"}); err != nil {
		t.Fatalf("enrichment failure must not fail the request: %v", err)
	}
}

func TestHandle_PersistsConversation(t *testing.T) {
	store, err := history.Open(history.Config{
		SQLitePath: filepath.Join(t.TempDir(), "chat.db"),
	}, discardLogger())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer store.Close()

	provider := &stubProvider{reply: "first reply"}
	svc := New(provider, &stubOrchestrator{octx: simpleContext("m")},
		agents.DefaultRegistry("base-model"), discardLogger(), WithHistory(store))

	convID := uuid.New()
	ctx := context.Background()

	if _, err := svc.Handle(ctx, Request{UserID: "alice", ConversationID: convID, Message: "first question"}); err != nil {
		t.Fatalf("first Handle error: %v", err)
	}

	provider.reply = "second reply"
	if _, err := svc.Handle(ctx, Request{UserID: "alice", ConversationID: convID, Message: "second question"}); err != nil {
		t.Fatalf("second Handle error: %v", err)
	}

	// The second request carries the first exchange as history.
	sent := provider.last(t)
	if len(sent.Messages) != 3 {
		t.Fatalf("expected 2 history turns + current message, got %d", len(sent.Messages))
	}
	if sent.Messages[0].Content != "first question" || sent.Messages[1].Content != "first reply" {
		t.Errorf("unexpected history: %+v", sent.Messages)
	}
	if sent.Messages[1].Role != llm.RoleAssistant {
		t.Errorf("expected assistant role for reply, got %q", sent.Messages[1].Role)
	}

	msgs, err := store.History(ctx, convID, 0)
	if err != nil {
		t.Fatalf("History error: %v", err)
	}
	if len(msgs) != 4 {
		t.Errorf("expected 4 persisted messages, got %d", len(msgs))
	}
}

func TestHandleStream_BuffersNonStreamingProvider(t *testing.T) {
	provider := &stubProvider{reply: "streamed answer"}
	svc := New(provider, &stubOrchestrator{octx: simpleContext("m")},
		agents.DefaultRegistry("base-model"), discardLogger())

	events := make(chan llm.StreamEvent, 8)
	resp, err := svc.HandleStream(context.Background(), Request{Message: "hi"}, events)
	if err != nil {
		t.Fatalf("HandleStream error: %v", err)
	}
	if resp.Reply != "streamed answer" {
		t.Errorf("unexpected assembled reply %q", resp.Reply)
	}

	var types []string
	for ev := range events {
		types = append(types, ev.Type)
	}
	if len(types) != 2 || types[0] != "text" || types[1] != "done" {
		t.Errorf("unexpected event sequence %v", types)
	}
}
