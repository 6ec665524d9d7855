package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// HTTPSearcher queries an external search service over its JSON API.
type HTTPSearcher struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// HTTPOption configures the HTTPSearcher.
type HTTPOption func(*HTTPSearcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *HTTPSearcher) { s.httpClient = client }
}

// WithTimeout sets the per-search timeout on the default client.
func WithTimeout(d time.Duration) HTTPOption {
	return func(s *HTTPSearcher) { s.httpClient.Timeout = d }
}

// NewHTTPSearcher creates a searcher for the service at baseURL. apiKey may
// be empty for unauthenticated services.
func NewHTTPSearcher(baseURL, apiKey string, logger *slog.Logger, opts ...HTTPOption) *HTTPSearcher {
	s := &HTTPSearcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPSearcher) Name() string { return "http" }

// --- search API wire types (unexported) ---

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Results []Document `json:"results"`
}

type searchError struct {
	Error string `json:"error"`
}

// Search posts the query to the service's /search endpoint.
func (s *HTTPSearcher) Search(ctx context.Context, query string, limit int) ([]Document, error) {
	body, err := json.Marshal(searchRequest{Query: query, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("marshaling search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading search response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr searchError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("search service error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("search service returned status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	s.logger.DebugContext(ctx, "retrieval search completed",
		slog.String("backend", "http"),
		slog.Int("results", len(parsed.Results)),
	)
	return parsed.Results, nil
}

var _ Searcher = (*HTTPSearcher)(nil)
