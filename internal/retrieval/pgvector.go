package retrieval

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver.
)

// validTable restricts the configurable table name to a plain identifier,
// since it is interpolated into the query text.
var validTable = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PGSearcher queries a pgvector-backed documents table. Ranking uses
// PostgreSQL full-text search over the content column; the embedding
// column is populated by the ingestion pipeline and left untouched here.
type PGSearcher struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
}

// NewPGSearcher opens a connection pool to the documents database.
func NewPGSearcher(dsn, table string, logger *slog.Logger) (*PGSearcher, error) {
	if !validTable.MatchString(table) {
		return nil, fmt.Errorf("invalid document table name %q", table)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening documents database: %w", err)
	}
	// Conservative pool: retrieval is a side channel, not the main store.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PGSearcher{db: db, table: table, logger: logger}, nil
}

func (s *PGSearcher) Name() string { return "pgvector" }

// Search ranks documents against the query with ts_rank.
func (s *PGSearcher) Search(ctx context.Context, query string, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 5
	}

	// The table name is validated at construction; everything else is bound.
	stmt := fmt.Sprintf(`
		SELECT id::text, title, content,
		       ts_rank(to_tsvector('english', content), plainto_tsquery('english', $1)) AS score
		FROM %s
		WHERE to_tsvector('english', content) @@ plainto_tsquery('english', $1)
		ORDER BY score DESC
		LIMIT $2`, s.table)

	rows, err := s.db.QueryContext(ctx, stmt, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.Score); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		d.Source = s.table
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}

	s.logger.DebugContext(ctx, "retrieval search completed",
		slog.String("backend", "pgvector"),
		slog.Int("results", len(docs)),
	)
	return docs, nil
}

// Ping checks the documents database for readiness probes.
func (s *PGSearcher) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *PGSearcher) Close() error {
	return s.db.Close()
}

var _ Searcher = (*PGSearcher)(nil)
