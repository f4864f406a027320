package contest

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/contesthub/contesthub/internal/database"
	"github.com/contesthub/contesthub/internal/domain"
)

// Source supplies the contest metadata the discussion service consults when
// a client joins a room. The catalog itself (scraping, upserts) is owned by
// the dashboard; this service only reads.
type Source interface {
	Lookup(ctx context.Context, contestID string) (*domain.Contest, error)
}

// SurrealSource implements Source on the shared SurrealDB instance.
type SurrealSource struct {
	db *surrealdb.DB
}

// NewSurrealSource creates a read-only contest source.
func NewSurrealSource(db *surrealdb.DB) *SurrealSource {
	return &SurrealSource{db: db}
}

// Lookup fetches one contest by id; nil, nil when the contest is unknown.
func (s *SurrealSource) Lookup(ctx context.Context, contestID string) (*domain.Contest, error) {
	contest, err := database.QueryOne[domain.Contest](ctx, s.db,
		"SELECT * FROM contest WHERE id = $id OR contestId = $id",
		map[string]any{"id": contestID})
	if err != nil {
		return nil, fmt.Errorf("contest lookup failed: %w", err)
	}
	return contest, nil
}
