package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoJSON indicates the model's reply contained no extractable JSON value.
var ErrNoJSON = errors.New("response does not contain a JSON value")

// GenerateRequest describes a single structured-generation call. The prompt
// (or system prompt) is expected to carry the schema instructions; this layer
// only enforces that the reply parses into the caller's type.
type GenerateRequest struct {
	Model        string
	SystemPrompt string
	Prompt       string
	MaxTokens    int
	Temperature  float64
	MaxRetries   int // additional attempts after the first; 0 = single attempt
}

// StructuredGenerator produces schema-constrained JSON from an LLM.
type StructuredGenerator interface {
	// GenerateJSON runs the request and unmarshals the extracted JSON into out.
	// On parse failure it retries up to MaxRetries times, feeding the model
	// its own invalid reply together with the parse error.
	GenerateJSON(ctx context.Context, req *GenerateRequest, out any) error
}

// StructuredClient implements StructuredGenerator on top of a Provider.
type StructuredClient struct {
	provider Provider
	logger   *slog.Logger
}

// NewStructuredClient wraps a provider with JSON extraction and retry.
func NewStructuredClient(provider Provider, logger *slog.Logger) *StructuredClient {
	return &StructuredClient{provider: provider, logger: logger}
}

var _ StructuredGenerator = (*StructuredClient)(nil)

// GenerateJSON implements StructuredGenerator.
func (c *StructuredClient) GenerateJSON(ctx context.Context, req *GenerateRequest, out any) error {
	messages := []Message{{Role: RoleUser, Content: req.Prompt}}

	var lastErr error
	attempts := req.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		resp, err := c.provider.SendMessage(ctx, &Request{
			Model:        req.Model,
			SystemPrompt: req.SystemPrompt,
			Messages:     messages,
			MaxTokens:    req.MaxTokens,
			Temperature:  req.Temperature,
		})
		if err != nil {
			lastErr = err
		} else if parseErr := decodeInto(resp.Content, out); parseErr != nil {
			lastErr = parseErr
			// Feed the invalid reply back so the model can correct itself.
			messages = append(messages,
				Message{Role: RoleAssistant, Content: resp.Content},
				Message{Role: RoleUser, Content: fmt.Sprintf(
					"Your previous reply was not valid JSON for the required format: %v. Respond again with ONLY the corrected JSON, no surrounding text.", parseErr)},
			)
		} else {
			return nil
		}

		if attempt < attempts {
			c.logger.WarnContext(ctx, "structured generation attempt failed, retrying",
				slog.String("model", req.Model),
				slog.Int("attempt", attempt),
				slog.String("error", lastErr.Error()),
			)
		}
	}

	return fmt.Errorf("structured generation failed after %d attempt(s): %w", attempts, lastErr)
}

// decodeInto extracts the first JSON value from text and unmarshals it into out.
func decodeInto(text string, out any) error {
	if text == "" {
		return fmt.Errorf("empty response: %w", ErrNoJSON)
	}

	// Fast path: the whole reply is the JSON value.
	if err := json.Unmarshal([]byte(text), out); err == nil {
		return nil
	}

	// Models often wrap the value in prose or a markdown fence; carve it out.
	start := findJSONStart(text)
	if start < 0 {
		return ErrNoJSON
	}
	end := findJSONEnd(text, start)
	if end < 0 {
		return fmt.Errorf("unterminated JSON value: %w", ErrNoJSON)
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), out); err != nil {
		return fmt.Errorf("parsing extracted JSON: %w", err)
	}
	return nil
}

// findJSONStart finds the index of the first '{' or '[' in the string.
func findJSONStart(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			return i
		}
	}
	return -1
}

// findJSONEnd finds the close bracket matching the opener at start,
// skipping brackets inside string literals.
func findJSONEnd(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		if escaped {
			escaped = false
			continue
		}
		c := s[i]
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
