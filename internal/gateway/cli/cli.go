// Package cli implements an interactive CLI gateway for Busara.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/jkaninda/busara/internal/chat"
)

const cliUserID = "cli-user"

// Gateway is the interactive command-line interface.
type Gateway struct {
	chat           *chat.Service
	logger         *slog.Logger
	done           chan struct{} // closed by Stop to signal shutdown
	conversationID uuid.UUID     // persistent for the entire CLI session
}

// NewGateway creates a CLI gateway backed by the chat service. When
// persist is false the session carries no conversation ID and nothing is
// stored.
func NewGateway(svc *chat.Service, persist bool, logger *slog.Logger) *Gateway {
	g := &Gateway{
		chat:   svc,
		logger: logger,
		done:   make(chan struct{}),
	}
	if persist {
		g.conversationID = uuid.New()
	}
	return g
}

// Start runs the interactive REPL. Blocks until ctx is cancelled,
// Stop is called, or the user types "exit".
func (g *Gateway) Start(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("Busara — multi-agent chat assistant")
	fmt.Println("Type your message (or \"exit\" to quit).")
	fmt.Println()

	for {
		fmt.Print("busara> ")

		// Check for context cancellation or Stop signal between prompts.
		select {
		case <-ctx.Done():
			fmt.Println("\nShutting down.")
			return nil
		case <-g.done:
			fmt.Println("\nShutting down.")
			return nil
		default:
		}

		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			fmt.Println("Goodbye.")
			return nil
		}

		g.logger.DebugContext(ctx, "cli request", slog.String("user_id", cliUserID))

		resp, err := g.chat.Handle(ctx, chat.Request{
			UserID:         cliUserID,
			ConversationID: g.conversationID,
			Message:        line,
		})
		if err != nil {
			g.logger.ErrorContext(ctx, "chat processing failed", slog.String("error", err.Error()))
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}

		fmt.Println()
		fmt.Println(resp.Reply)
		fmt.Println()
		fmt.Fprintln(os.Stderr, attribution(resp))
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}

	return nil
}

// Stop signals the REPL to shut down.
func (g *Gateway) Stop(_ context.Context) error {
	select {
	case <-g.done:
		// Already closed.
	default:
		close(g.done)
	}
	return nil
}

// attribution formats the model and contributing agents for display.
func attribution(resp *chat.Response) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[model=%s", resp.Model)
	if len(resp.AgentTypes) > 0 {
		names := make([]string, len(resp.AgentTypes))
		for i, t := range resp.AgentTypes {
			names[i] = string(t)
		}
		fmt.Fprintf(&b, " agents=%s", strings.Join(names, ","))
	}
	fmt.Fprintf(&b, " status=%s]", resp.Status)
	return b.String()
}
