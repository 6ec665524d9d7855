package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedProvider returns canned responses in order, then repeats the last one.
type scriptedProvider struct {
	replies []string
	errs    []error
	calls   int
	// last request seen, for assertions
	lastReq *Request
}

func (p *scriptedProvider) SendMessage(_ context.Context, req *Request) (*Response, error) {
	i := p.calls
	p.calls++
	p.lastReq = req
	if i >= len(p.replies) {
		i = len(p.replies) - 1
	}
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	return &Response{Content: p.replies[i], StopReason: "end_turn"}, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

type planDoc struct {
	Steps []struct {
		Task string `json:"task"`
	} `json:"steps"`
}

func TestGenerateJSON_CleanReply(t *testing.T) {
	p := &scriptedProvider{replies: []string{`{"steps":[{"task":"summarize"}]}`}}
	c := NewStructuredClient(p, discardLogger())

	var out planDoc
	err := c.GenerateJSON(context.Background(), &GenerateRequest{Model: "m1", Prompt: "plan it"}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Steps) != 1 || out.Steps[0].Task != "summarize" {
		t.Errorf("unexpected decode result: %+v", out)
	}
	if p.lastReq.Model != "m1" {
		t.Errorf("model override not forwarded, got %q", p.lastReq.Model)
	}
}

func TestGenerateJSON_ExtractsFromProse(t *testing.T) {
	reply := "Sure, here is the plan:\n```json\n{\"steps\":[{\"task\":\"a {brace} inside\"}]}\n```\nHope that helps."
	p := &scriptedProvider{replies: []string{reply}}
	c := NewStructuredClient(p, discardLogger())

	var out planDoc
	if err := c.GenerateJSON(context.Background(), &GenerateRequest{Prompt: "x"}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Steps) != 1 || out.Steps[0].Task != "a {brace} inside" {
		t.Errorf("unexpected decode result: %+v", out)
	}
}

func TestGenerateJSON_RetriesWithFeedback(t *testing.T) {
	p := &scriptedProvider{replies: []string{
		"I cannot answer in JSON.",
		`{"steps":[{"task":"retry worked"}]}`,
	}}
	c := NewStructuredClient(p, discardLogger())

	var out planDoc
	err := c.GenerateJSON(context.Background(), &GenerateRequest{Prompt: "x", MaxRetries: 2}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.calls != 2 {
		t.Errorf("expected 2 calls, got %d", p.calls)
	}
	// Second request must carry the invalid reply plus a correction prompt.
	if len(p.lastReq.Messages) != 3 {
		t.Fatalf("expected 3 messages on retry, got %d", len(p.lastReq.Messages))
	}
	if p.lastReq.Messages[1].Role != RoleAssistant {
		t.Errorf("expected assistant feedback message, got role %q", p.lastReq.Messages[1].Role)
	}
}

func TestGenerateJSON_ExhaustsRetries(t *testing.T) {
	p := &scriptedProvider{replies: []string{"nope"}}
	c := NewStructuredClient(p, discardLogger())

	var out planDoc
	err := c.GenerateJSON(context.Background(), &GenerateRequest{Prompt: "x", MaxRetries: 1}, &out)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrNoJSON) {
		t.Errorf("expected ErrNoJSON in chain, got %v", err)
	}
	if p.calls != 2 {
		t.Errorf("expected 2 calls, got %d", p.calls)
	}
}

func TestGenerateJSON_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &scriptedProvider{replies: []string{`{}`}}
	c := NewStructuredClient(p, discardLogger())

	var out planDoc
	err := c.GenerateJSON(ctx, &GenerateRequest{Prompt: "x"}, &out)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if p.calls != 0 {
		t.Errorf("provider should not be called after cancellation, got %d calls", p.calls)
	}
}

func TestFindJSONEnd_StringAwareness(t *testing.T) {
	s := `{"a":"}","b":[1,2]}`
	start := findJSONStart(s)
	if start != 0 {
		t.Fatalf("expected start 0, got %d", start)
	}
	end := findJSONEnd(s, start)
	if end != len(s)-1 {
		t.Errorf("expected end %d, got %d", len(s)-1, end)
	}
}
