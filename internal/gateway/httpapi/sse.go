package httpapi

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/jkaninda/busara/internal/chat"
	"github.com/jkaninda/busara/internal/llm"
	"github.com/jkaninda/okapi"
)

// SSEEvent represents a server-sent event for streaming responses.
type SSEEvent struct {
	Type           string `json:"type,omitempty"`    // "text", "done", "error"
	Content        string `json:"content,omitempty"` // Text content.
	Model          string `json:"model,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// handleChatStream handles POST /v1/chat/stream with SSE responses.
// Text deltas are forwarded as they arrive; a final "done" event carries
// the model and conversation attribution.
func (g *Gateway) handleChatStream(c *okapi.Context) error {
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
	g.logger.Info("http chat stream",
		slog.String("user_id", userID),
		slog.String("correlation_id", correlationID),
		slog.String("conversation_id", convID.String()),
	)

	type streamResult struct {
		resp *chat.Response
		err  error
	}

	// The chat service closes events when the stream ends.
	events := make(chan llm.StreamEvent, 16)
	resCh := make(chan streamResult, 1)
	go func() {
		resp, err := g.chat.HandleStream(c.Context(), chat.Request{
			UserID:         userID,
			ConversationID: convID,
			Message:        req.Message,
		}, events)
		resCh <- streamResult{resp: resp, err: err}
	}()

	for ev := range events {
		if ev.Type == "text" && ev.Content != "" {
			c.SSEvent("text", SSEEvent{Type: "text", Content: ev.Content})
		}
	}

	res := <-resCh
	if res.err != nil {
		g.logger.Error("chat stream failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", res.err.Error()),
		)
		c.SSEvent("error", SSEEvent{Type: "error", Content: "processing failed"})
		return nil
	}

	done := SSEEvent{Type: "done", Model: res.resp.Model}
	if convID != uuid.Nil {
		done.ConversationID = convID.String()
	}
	c.SSEvent("done", done)
	return nil
}
