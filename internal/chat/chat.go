// Package chat implements the message-handling service: it routes an
// incoming message to an agent, runs the workflow orchestrator to prepare
// generation context, enriches the prompt with tool results the routed
// agent is entitled to, produces the final reply, and persists the
// exchange.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/busara/internal/agents"
	"github.com/jkaninda/busara/internal/history"
	"github.com/jkaninda/busara/internal/llm"
	"github.com/jkaninda/busara/internal/observability"
	"github.com/jkaninda/busara/internal/orchestrator"
	"github.com/jkaninda/busara/internal/retrieval"
	"github.com/jkaninda/busara/internal/scraper"
)

const (
	maxHistoryMessages = 40
	maxRetrievalDocs   = 5
	maxScrapedURLs     = 2
	replyMaxTokens     = 4096
)

// urlPattern finds http(s) URLs in a message for web enrichment.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"')]+`)

// Request is one incoming user message.
type Request struct {
	UserID         string
	ConversationID uuid.UUID // uuid.Nil = ephemeral, no persistence.
	Message        string
}

// Response is the final reply plus attribution.
type Response struct {
	ConversationID uuid.UUID
	Reply          string
	Model          string
	AgentTypes     []agents.Type
	Status         orchestrator.Status
	Usage          llm.Usage
}

// Orchestrator is the slice of the workflow engine the chat service uses.
type Orchestrator interface {
	PrepareContext(ctx context.Context, request string, hint agents.Type) (*orchestrator.OrchestrationContext, error)
}

// Service handles chat messages end to end.
type Service struct {
	provider     llm.Provider
	orchestrator Orchestrator
	registry     *agents.Registry
	router       *agents.Router
	store        *history.Store      // nil = no persistence
	searcher     retrieval.Searcher  // nil = retrieval tool unavailable
	scraper      *scraper.Scraper    // nil = web tool unavailable
	metrics      *observability.MetricsCollector
	logger       *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithHistory enables conversation persistence.
func WithHistory(store *history.Store) Option {
	return func(s *Service) { s.store = store }
}

// WithSearcher enables retrieval enrichment for agents with the flag.
func WithSearcher(searcher retrieval.Searcher) Option {
	return func(s *Service) { s.searcher = searcher }
}

// WithScraper enables web enrichment for agents with the flag.
func WithScraper(sc *scraper.Scraper) Option {
	return func(s *Service) { s.scraper = sc }
}

// WithMetrics attaches chat metrics.
func WithMetrics(m *observability.MetricsCollector) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates the chat service.
func New(provider llm.Provider, orch Orchestrator, registry *agents.Registry, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		provider:     provider,
		orchestrator: orch,
		registry:     registry,
		router:       agents.NewRouter(registry),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle processes one message and returns the final reply.
func (s *Service) Handle(ctx context.Context, req Request) (*Response, error) {
	genReq, meta, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := s.provider.SendMessage(ctx, genReq)
	if err != nil {
		s.countMessage(meta.path, "error")
		return nil, fmt.Errorf("generating reply: %w", err)
	}
	s.countMessage(meta.path, "success")

	out := &Response{
		ConversationID: req.ConversationID,
		Reply:          resp.Content,
		Model:          genReq.Model,
		AgentTypes:     meta.agentTypes,
		Status:         meta.status,
		Usage:          resp.Usage,
	}
	s.persist(ctx, req, out)
	return out, nil
}

// HandleStream processes one message, streaming the final reply. Events
// are delivered on the channel, which is closed when generation finishes.
// The full reply is still persisted after the stream completes.
func (s *Service) HandleStream(ctx context.Context, req Request, events chan<- llm.StreamEvent) (*Response, error) {
	genReq, meta, err := s.prepare(ctx, req)
	if err != nil {
		close(events)
		return nil, err
	}

	streaming, ok := s.provider.(llm.StreamingProvider)
	if !ok {
		streaming = &llm.NonStreamingAdapter{Provider: s.provider}
	}

	// The provider closes inner when the stream ends; the forwarder closes
	// events and signals done so the assembled reply is safe to read.
	var reply strings.Builder
	inner := make(chan llm.StreamEvent)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(events)
		for ev := range inner {
			if ev.Type == "text" {
				reply.WriteString(ev.Content)
			}
			events <- ev
		}
	}()

	err = streaming.StreamMessage(ctx, genReq, inner)
	<-done
	if err != nil {
		s.countMessage(meta.path, "error")
		return nil, fmt.Errorf("streaming reply: %w", err)
	}
	s.countMessage(meta.path, "success")

	out := &Response{
		ConversationID: req.ConversationID,
		Reply:          reply.String(),
		Model:          genReq.Model,
		AgentTypes:     meta.agentTypes,
		Status:         meta.status,
	}
	s.persist(ctx, req, out)
	return out, nil
}

// runMeta carries attribution from preparation to the response.
type runMeta struct {
	path       string // "simple" or "orchestrated"
	agentTypes []agents.Type
	status     orchestrator.Status
}

// prepare runs routing, orchestration, enrichment, and history loading,
// returning the assembled final generation request.
func (s *Service) prepare(ctx context.Context, req Request) (*llm.Request, *runMeta, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, nil, fmt.Errorf("message must not be empty")
	}

	hint := s.router.Route(req.Message)

	octx, err := s.orchestrator.PrepareContext(ctx, req.Message, hint)
	if err != nil {
		return nil, nil, fmt.Errorf("preparing context: %w", err)
	}

	meta := &runMeta{path: "simple", agentTypes: octx.PlanSummary, status: octx.Status}
	if len(octx.ContextMessages) > 0 {
		meta.path = "orchestrated"
	}

	// The replying agent: whatever the router picked (the default when no
	// keywords matched).
	agentCfg, ok := s.registry.Get(hint)
	if !ok {
		agentCfg = s.registry.Default()
	}

	var system strings.Builder
	system.WriteString(agentCfg.SystemPrompt)
	s.appendWorkflowContext(&system, octx)
	s.enrich(ctx, &system, agentCfg, req.Message)

	messages, err := s.loadHistory(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Message})

	return &llm.Request{
		Model:        octx.TargetModel,
		SystemPrompt: system.String(),
		Messages:     messages,
		MaxTokens:    replyMaxTokens,
		Temperature:  agentCfg.Temperature,
	}, meta, nil
}

// appendWorkflowContext injects completed step outputs into the system
// prompt, attributed to the agents that produced them.
func (s *Service) appendWorkflowContext(system *strings.Builder, octx *orchestrator.OrchestrationContext) {
	if len(octx.ContextMessages) == 0 {
		return
	}
	system.WriteString("\n\nIntermediate results from specialist agents. Build the final answer on them:\n")
	for _, msg := range octx.ContextMessages {
		fmt.Fprintf(system, "\n[%s]\n%s\n", msg.AgentType, msg.Content)
	}
	if octx.Status != orchestrator.StatusComplete {
		fmt.Fprintf(system, "\nNote: the workflow ended with status %q; some results may be missing. Answer with what is available and say what could not be determined.\n", octx.Status)
	}
}

// enrich adds retrieval and web results for tools the agent may use.
func (s *Service) enrich(ctx context.Context, system *strings.Builder, agentCfg agents.Config, message string) {
	if agentCfg.Tools.Retrieval && s.searcher != nil {
		docs, err := s.searcher.Search(ctx, message, maxRetrievalDocs)
		if err != nil {
			s.recordRetrieval("error")
			s.logger.WarnContext(ctx, "retrieval enrichment failed", slog.String("error", err.Error()))
		} else {
			s.recordRetrieval("success")
			if len(docs) > 0 {
				system.WriteString("\n\nRelevant documents:\n")
				for _, d := range docs {
					fmt.Fprintf(system, "\n[%s] %s\n%s\n", d.ID, d.Title, d.Content)
				}
			}
		}
	}

	if agentCfg.Tools.Web && s.scraper != nil {
		urls := urlPattern.FindAllString(message, maxScrapedURLs)
		for _, u := range urls {
			page, err := s.scraper.Fetch(ctx, u)
			if err != nil {
				s.logger.WarnContext(ctx, "web enrichment failed",
					slog.String("url", u),
					slog.String("error", err.Error()),
				)
				continue
			}
			fmt.Fprintf(system, "\n\nContent of %s:\n%s\n", page.URL, page.Content)
		}
	}
}

// loadHistory returns prior conversation turns as provider messages.
func (s *Service) loadHistory(ctx context.Context, req Request) ([]llm.Message, error) {
	if s.store == nil || req.ConversationID == uuid.Nil {
		return nil, nil
	}

	if _, err := s.store.GetOrCreate(ctx, req.UserID, req.ConversationID); err != nil {
		return nil, fmt.Errorf("opening conversation: %w", err)
	}

	past, err := s.store.History(ctx, req.ConversationID, maxHistoryMessages)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	messages := make([]llm.Message, 0, len(past))
	for _, msg := range past {
		role := llm.RoleUser
		if msg.Role == string(llm.RoleAssistant) {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: msg.Content})
	}
	return messages, nil
}

// persist appends the exchange to the conversation. Best-effort: a storage
// failure is logged, not surfaced, since the reply already exists.
func (s *Service) persist(ctx context.Context, req Request, resp *Response) {
	if s.store == nil || req.ConversationID == uuid.Nil {
		return
	}

	var agentType agents.Type
	if n := len(resp.AgentTypes); n > 0 {
		agentType = resp.AgentTypes[n-1]
	}

	now := time.Now().UTC()
	err := s.store.Append(ctx, req.ConversationID, []history.Message{
		{Role: string(llm.RoleUser), Content: req.Message, CreatedAt: now},
		{Role: string(llm.RoleAssistant), Content: resp.Reply, AgentType: agentType, Model: resp.Model, CreatedAt: now},
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "persisting conversation failed",
			slog.String("conversation_id", req.ConversationID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) countMessage(path, status string) {
	if s.metrics != nil {
		s.metrics.ChatMessagesTotal.WithLabelValues(path, status).Inc()
	}
}

func (s *Service) recordRetrieval(status string) {
	if s.metrics != nil && s.searcher != nil {
		s.metrics.RetrievalSearchesTotal.WithLabelValues(s.searcher.Name(), status).Inc()
	}
}
