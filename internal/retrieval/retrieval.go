// Package retrieval provides document search for agents with the retrieval
// tool flag. Two backends are supported: an external HTTP search service
// and a pgvector-backed PostgreSQL documents table.
package retrieval

import "context"

// Document is one search hit.
type Document struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Source  string  `json:"source,omitempty"`
}

// Searcher finds documents relevant to a query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Document, error)
	// Name identifies the backend in logs and metrics.
	Name() string
}
