package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/jkaninda/busara/internal/chat"
)

// wsError is an error frame sent to the client. The connection stays open
// unless the close field is set.
type wsError struct {
	Error string `json:"error"`
	Close bool   `json:"close,omitempty"`
}

// handleChatWS upgrades GET /v1/chat/ws to a WebSocket. Each text frame is
// a ChatRequest; each reply frame is a ChatResponse. The connection is
// authenticated once, at upgrade time.
func (g *Gateway) handleChatWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		auth := r.Header.Get("Authorization")
		if strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	userID := lookupUser(g.config.APIKeys, token)
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{"busara-chat-v1"},
	})
	if err != nil {
		g.logger.Error("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "connection closed")

	g.logger.Info("websocket chat connected", slog.String("user_id", userID))
	g.serveChatWS(r.Context(), conn, userID)
}

func (g *Gateway) serveChatWS(ctx context.Context, conn *websocket.Conn, userID string) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				g.logger.Info("websocket chat disconnected", slog.String("user_id", userID))
			} else {
				g.logger.Warn("websocket chat connection error",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		if g.limiter != nil {
			if err := g.limiter.Allow(userID); err != nil {
				g.writeWS(ctx, conn, wsError{Error: "rate limit exceeded"})
				continue
			}
		}

		var req ChatRequest
		if err := json.Unmarshal(data, &req); err != nil || req.Message == "" {
			g.writeWS(ctx, conn, wsError{Error: "message is required"})
			continue
		}

		var convID uuid.UUID
		if req.ConversationID != "" {
			convID, err = uuid.Parse(req.ConversationID)
			if err != nil {
				g.writeWS(ctx, conn, wsError{Error: "invalid conversation_id"})
				continue
			}
		} else if g.store != nil {
			convID = uuid.New()
		}

		correlationID := newCorrelationID()
		resp, err := g.chat.Handle(ctx, chat.Request{
			UserID:         userID,
			ConversationID: convID,
			Message:        req.Message,
		})
		if err != nil {
			g.logger.Error("websocket chat processing failed",
				slog.String("correlation_id", correlationID),
				slog.String("error", err.Error()),
			)
			g.writeWS(ctx, conn, wsError{Error: "processing failed"})
			continue
		}

		g.writeWS(ctx, conn, chatResponseFrom(resp, convID, correlationID))
	}
}

func (g *Gateway) writeWS(ctx context.Context, conn *websocket.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		g.logger.Warn("websocket write failed", slog.String("error", err.Error()))
	}
}
