// Package httpapi implements the HTTP API gateway for Busara.
//
// Security:
//   - API key authentication on every /v1 request (constant-time comparison)
//   - Request body size limits (default 1 MB)
//   - Per-user rate limiting via token bucket
//   - All requests logged with correlation IDs
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/busara/internal/agents"
	"github.com/jkaninda/busara/internal/chat"
	"github.com/jkaninda/busara/internal/history"
	"github.com/jkaninda/busara/internal/llm"
	"github.com/jkaninda/busara/internal/observability"
	"github.com/jkaninda/busara/internal/ratelimit"
	"github.com/jkaninda/okapi"
)

const (
	defaultMaxRequestSize = 1 << 20 // 1 MB
	conversationListLimit = 50
)

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// ChatService is the slice of the chat service the gateway uses.
type ChatService interface {
	Handle(ctx context.Context, req chat.Request) (*chat.Response, error)
	HandleStream(ctx context.Context, req chat.Request, events chan<- llm.StreamEvent) (*chat.Response, error)
}

// Config configures the HTTP API gateway.
type Config struct {
	ListenAddr     string            // e.g., ":8080"
	EnableDocs     bool
	APIKeys        map[string]string // API key → user ID mapping. Keys from env.
	MaxRequestSize int64             // Maximum request body in bytes. 0 = 1 MB default.

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Gateway is the HTTP API gateway.
type Gateway struct {
	config  Config
	chat    ChatService
	registry *agents.Registry
	store   *history.Store // nil = conversation endpoints disabled.
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	server  *http.Server

	sseEnabled bool
	wsEnabled  bool

	okapi *okapi.Okapi
	group *okapi.Group
}

// NewGateway creates an HTTP API gateway.
func NewGateway(cfg Config, svc ChatService, registry *agents.Registry, rl *ratelimit.Limiter, logger *slog.Logger) *Gateway {
	maxSize := cfg.MaxRequestSize
	if maxSize <= 0 {
		maxSize = defaultMaxRequestSize
	}
	return &Gateway{
		config:   cfg,
		chat:     svc,
		registry: registry,
		limiter:  rl,
		logger:   logger,
		okapi:    okapi.New(okapi.WithMaxMultipartMemory(maxSize)),
	}
}

// WithConversations attaches the conversation store, enabling the
// /v1/conversations endpoints.
func (g *Gateway) WithConversations(store *history.Store) *Gateway {
	g.store = store
	return g
}

// WithSSE enables the SSE streaming endpoint.
func (g *Gateway) WithSSE(enabled bool) *Gateway {
	g.sseEnabled = enabled
	return g
}

// WithWebSocket enables the WebSocket chat endpoint.
func (g *Gateway) WithWebSocket(enabled bool) *Gateway {
	g.wsEnabled = enabled
	return g
}

func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "Busara",
			Version: "v0.0.1",
		},
	)
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	// Metrics/tracing middleware (applied globally).
	if g.config.Metrics != nil || g.config.Tracer != nil {
		g.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return observability.HTTPMetricsMiddleware(g.config.Metrics, g.config.Tracer, next)
		})
	}

	// Authenticated /v1 group.
	g.group = g.okapi.Group("/v1", g.authenticate)

	g.group.Post("/chat", g.handleChat,
		okapi.DocSummary("Send a chat message"),
		okapi.DocTags("Chat"),
		okapi.DocRequestBody(ChatRequest{}),
		okapi.DocResponse(ChatResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)
	g.group.Get("/agents", g.handleAgents,
		okapi.DocSummary("List available agents"),
		okapi.DocTags("Agents"),
		okapi.DocResponse([]AgentInfo{}),
	)

	if g.sseEnabled {
		g.group.Post("/chat/stream", g.handleChatStream,
			okapi.DocSummary("Stream a chat reply via SSE"),
			okapi.DocTags("Chat"),
			okapi.DocRequestBody(ChatRequest{}),
			okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
			okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		)
	}
	if g.wsEnabled {
		g.okapi.HandleStd("GET", "/v1/chat/ws", g.handleChatWS)
	}

	// Conversation endpoints (only if a store is configured).
	if g.store != nil {
		g.group.Get("/conversations", g.handleConversationList,
			okapi.DocSummary("List the caller's conversations"),
			okapi.DocTags("Conversations"),
			okapi.DocResponse([]ConversationSummary{}),
		)
		g.group.Get("/conversations/{id}", g.handleConversationGet,
			okapi.DocSummary("Get a conversation with its messages"),
			okapi.DocTags("Conversations"),
			okapi.DocPathParam("id", "string", "Conversation ID (UUID)"),
			okapi.DocResponse(ConversationResponse{}),
			okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
		)
	}

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api gateway starting", slog.String("addr", g.config.ListenAddr))

	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// --- Handlers ---

// ChatRequest is the JSON body for POST /v1/chat.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"` // Empty = new conversation.
}

// ChatResponse is the JSON response for POST /v1/chat.
type ChatResponse struct {
	Reply          string   `json:"reply"`
	Model          string   `json:"model"`
	Agents         []string `json:"agents,omitempty"` // Agents that contributed, in plan order.
	WorkflowStatus string   `json:"workflow_status"`
	ConversationID string   `json:"conversation_id,omitempty"`
	CorrelationID  string   `json:"correlation_id"`
	TokensUsed     int      `json:"tokens_used,omitempty"`
}

func (g *Gateway) handleChat(c *okapi.Context) error {
	userID := c.GetString("userID")

	if g.limiter != nil {
		if err := g.limiter.Allow(userID); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	req, convID, err := g.bindChatRequest(c)
	if err != nil {
		return err
	}

	correlationID := newCorrelationID()
	g.logger.Info("http chat",
		slog.String("user_id", userID),
		slog.String("correlation_id", correlationID),
		slog.String("conversation_id", convID.String()),
	)

	resp, err := g.chat.Handle(c.Context(), chat.Request{
		UserID:         userID,
		ConversationID: convID,
		Message:        req.Message,
	})
	if err != nil {
		g.logger.Error("chat processing failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("processing failed")
	}

	return c.OK(chatResponseFrom(resp, convID, correlationID))
}

// bindChatRequest parses and validates the shared chat request body,
// resolving the conversation ID. A new ID is only minted when persistence
// is available; without a store the conversation stays ephemeral.
func (g *Gateway) bindChatRequest(c *okapi.Context) (ChatRequest, uuid.UUID, error) {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return req, uuid.Nil, c.AbortBadRequest("message is required")
	}
	if req.Message == "" {
		return req, uuid.Nil, c.AbortBadRequest("message is required")
	}

	var convID uuid.UUID
	if req.ConversationID != "" {
		id, err := uuid.Parse(req.ConversationID)
		if err != nil {
			return req, uuid.Nil, c.AbortBadRequest("invalid conversation_id")
		}
		convID = id
	} else if g.store != nil {
		convID = uuid.New()
	}
	return req, convID, nil
}

func chatResponseFrom(resp *chat.Response, convID uuid.UUID, correlationID string) ChatResponse {
	agentNames := make([]string, 0, len(resp.AgentTypes))
	for _, t := range resp.AgentTypes {
		agentNames = append(agentNames, string(t))
	}
	out := ChatResponse{
		Reply:          resp.Reply,
		Model:          resp.Model,
		Agents:         agentNames,
		WorkflowStatus: string(resp.Status),
		CorrelationID:  correlationID,
		TokensUsed:     resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}
	if convID != uuid.Nil {
		out.ConversationID = convID.String()
	}
	return out
}

// AgentInfo describes one registered agent.
type AgentInfo struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Model       string   `json:"model"`
	Keywords    []string `json:"keywords,omitempty"`
}

func (g *Gateway) handleAgents(c *okapi.Context) error {
	configs := g.registry.List()
	resp := make([]AgentInfo, 0, len(configs))
	for _, cfg := range configs {
		resp = append(resp, AgentInfo{
			Type:        string(cfg.Type),
			Description: cfg.Description,
			Model:       cfg.Model,
			Keywords:    cfg.Keywords,
		})
	}
	return c.OK(resp)
}

// ConversationSummary is one entry in the conversation list.
type ConversationSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageResponse is one message in a conversation.
type MessageResponse struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	AgentType string    `json:"agent_type,omitempty"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationResponse is a conversation with its messages.
type ConversationResponse struct {
	ConversationSummary
	Messages []MessageResponse `json:"messages"`
}

func (g *Gateway) handleConversationList(c *okapi.Context) error {
	userID := c.GetString("userID")

	convs, err := g.store.List(c.Context(), userID, conversationListLimit)
	if err != nil {
		g.logger.Error("listing conversations failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("listing conversations failed")
	}

	resp := make([]ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		resp = append(resp, ConversationSummary{
			ID:        conv.ID.String(),
			Title:     conv.Title,
			CreatedAt: conv.CreatedAt,
			UpdatedAt: conv.UpdatedAt,
		})
	}
	return c.OK(resp)
}

func (g *Gateway) handleConversationGet(c *okapi.Context) error {
	userID := c.GetString("userID")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid conversation ID")
	}

	conv, err := g.store.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			return c.JSON(http.StatusNotFound, okapi.M{"error": "conversation not found"})
		}
		return c.AbortInternalServerError("loading conversation failed")
	}
	// Conversations are private to their owner; do not reveal existence.
	if conv.UserID != userID {
		return c.JSON(http.StatusNotFound, okapi.M{"error": "conversation not found"})
	}

	msgs, err := g.store.History(c.Context(), id, 0)
	if err != nil {
		return c.AbortInternalServerError("loading messages failed")
	}

	resp := ConversationResponse{
		ConversationSummary: ConversationSummary{
			ID:        conv.ID.String(),
			Title:     conv.Title,
			CreatedAt: conv.CreatedAt,
			UpdatedAt: conv.UpdatedAt,
		},
		Messages: make([]MessageResponse, 0, len(msgs)),
	}
	for _, msg := range msgs {
		resp.Messages = append(resp.Messages, MessageResponse{
			Role:      msg.Role,
			Content:   msg.Content,
			AgentType: string(msg.AgentType),
			Model:     msg.Model,
			CreatedAt: msg.CreatedAt,
		})
	}
	return c.OK(resp)
}

// HealthResponse is the JSON response for the health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleLiveness is the Kubernetes liveness probe.
func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// --- Authentication ---

// authenticate validates the API key and stores the mapped user ID on the
// request context.
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		userID := lookupUser(g.config.APIKeys, apiKey)
		if userID == "" {
			return c.AbortUnauthorized("invalid API key")
		}
		c.Set("userID", userID)
		return next(c)
	}
}

// lookupUser returns the user ID mapped to the given API key, or "" when no
// key matches. Every configured key is compared in constant time.
func lookupUser(keys map[string]string, apiKey string) string {
	userID := ""
	for key, mapped := range keys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
			userID = mapped
		}
	}
	return userID
}

func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
