package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"
)

// Exit codes for the query command.
const (
	ExitSuccess           = 0
	ExitFailure           = 1
	ExitUnauthorized      = 2
	ExitServerUnavailable = 3
)

var (
	queryMessage    string
	queryGatewayURL string
	queryAPIKey     string
	queryStream     bool
	queryTimeout    int
	queryConvID     string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Send a one-shot message to a running gateway",
	Long: `Send a message to the Busara HTTP gateway for processing.
The message is routed to the best-matching agent; complex requests run
through the multi-agent workflow orchestrator before the reply.

Examples:
  busara query -m "what changed in Go 1.24?"
  busara query -m "research then summarize the latest release" --stream
  busara query -m "continue" --conversation-id 6aa5...

Exit codes:
  0  success
  1  execution failure
  2  unauthorized or rate limited
  3  gateway unavailable`,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryMessage, "message", "m", "", "message to send (required)")
	queryCmd.Flags().StringVar(&queryGatewayURL, "gateway-url", "http://localhost:8080", "gateway HTTP API URL")
	queryCmd.Flags().StringVar(&queryAPIKey, "api-key", "", "API key for gateway authentication (or BUSARA_API_KEY env)")
	queryCmd.Flags().BoolVar(&queryStream, "stream", false, "stream response via SSE")
	queryCmd.Flags().IntVar(&queryTimeout, "timeout", 300, "timeout in seconds")
	queryCmd.Flags().StringVar(&queryConvID, "conversation-id", "", "conversation ID for multi-turn context")

	_ = queryCmd.MarkFlagRequired("message")
}

func runQuery(_ *cobra.Command, _ []string) error {
	if queryMessage == "" {
		return fmt.Errorf("message is required: use -m flag")
	}

	// Resolve API key and gateway URL from flag or env.
	apiKey := goutils.Env("BUSARA_API_KEY", queryAPIKey)
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: API key required (use --api-key or set BUSARA_API_KEY)")
		os.Exit(ExitUnauthorized)
	}
	gatewayURL := goutils.Env("BUSARA_GATEWAY_URL", queryGatewayURL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(queryTimeout)*time.Second)
	defer cancel()

	if queryStream {
		return runQuerySSE(ctx, gatewayURL, apiKey)
	}
	return runQueryHTTP(ctx, gatewayURL, apiKey)
}

// runQueryHTTP sends a synchronous query and prints the response.
func runQueryHTTP(ctx context.Context, gatewayURL, apiKey string) error {
	reqBody, _ := json.Marshal(map[string]any{
		"message":         queryMessage,
		"conversation_id": queryConvID,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", gatewayURL+"/v1/chat", bytes.NewReader(reqBody))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitFailure)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach gateway at %s: %v\n", gatewayURL, err)
		os.Exit(ExitServerUnavailable)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		var result struct {
			Reply          string   `json:"reply"`
			Model          string   `json:"model"`
			Agents         []string `json:"agents"`
			WorkflowStatus string   `json:"workflow_status"`
			CorrelationID  string   `json:"correlation_id"`
			ConversationID string   `json:"conversation_id"`
			TokensUsed     int      `json:"tokens_used"`
		}
		_ = json.Unmarshal(respBody, &result)
		fmt.Println(result.Reply)
		fmt.Fprintf(os.Stderr, "\n[model=%s agents=%s status=%s conversation_id=%s tokens=%d]\n",
			result.Model, strings.Join(result.Agents, ","), result.WorkflowStatus,
			result.ConversationID, result.TokensUsed)
		os.Exit(ExitSuccess)

	case http.StatusUnauthorized:
		fmt.Fprintln(os.Stderr, "Error: unauthorized (check API key)")
		os.Exit(ExitUnauthorized)

	case http.StatusTooManyRequests:
		fmt.Fprintln(os.Stderr, "Error: rate limited - try again later")
		os.Exit(ExitUnauthorized)

	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		fmt.Fprintf(os.Stderr, "Error: gateway unavailable (%d)\n", resp.StatusCode)
		os.Exit(ExitServerUnavailable)

	default:
		fmt.Fprintf(os.Stderr, "Error: gateway returned %d: %s\n", resp.StatusCode, string(respBody))
		os.Exit(ExitFailure)
	}

	return nil
}

// runQuerySSE sends a streaming query and prints events as they arrive.
func runQuerySSE(ctx context.Context, gatewayURL, apiKey string) error {
	reqBody, _ := json.Marshal(map[string]any{
		"message":         queryMessage,
		"conversation_id": queryConvID,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", gatewayURL+"/v1/chat/stream", bytes.NewReader(reqBody))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitFailure)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach gateway at %s: %v\n", gatewayURL, err)
		os.Exit(ExitServerUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		fmt.Fprintln(os.Stderr, "Error: unauthorized (check API key)")
		os.Exit(ExitUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Error: gateway returned %d: %s\n", resp.StatusCode, string(body))
		os.Exit(ExitFailure)
	}

	// Parse SSE stream.
	scanner := bufio.NewScanner(resp.Body)
	exitCode := ExitSuccess

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var event struct {
			Type           string `json:"type"`
			Content        string `json:"content"`
			Model          string `json:"model"`
			ConversationID string `json:"conversation_id"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}

		switch event.Type {
		case "error":
			fmt.Fprintf(os.Stderr, "Error: %s\n", event.Content)
			exitCode = ExitFailure
		case "done":
			fmt.Println()
			fmt.Fprintf(os.Stderr, "[model=%s conversation_id=%s]\n", event.Model, event.ConversationID)
			os.Exit(exitCode)
		default:
			fmt.Print(event.Content)
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error: stream interrupted: %v\n", err)
		os.Exit(ExitFailure)
	}

	return nil
}
