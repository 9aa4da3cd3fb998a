// Package retriever answers "which chunks may this user see for this query".
// It resolves the user's visible tiers fresh on every call and hands them to
// the index, so retrieval can never rank a chunk the role is not cleared for.
package retriever

import (
	"context"
	"errors"
	"fmt"

	"github.com/docsentry/docsentry/internal/access"
	"github.com/docsentry/docsentry/internal/embeddings"
	"github.com/docsentry/docsentry/internal/index"
)

// ErrInvalidConfig is returned for a non-positive result count.
var ErrInvalidConfig = errors.New("invalid retriever configuration")

// Service embeds queries and searches the index under a role's visibility.
type Service struct {
	embedder embeddings.Embedder
	index    index.Index
	defaultK int
}

// New creates a retriever returning defaultK results per query.
func New(embedder embeddings.Embedder, idx index.Index, defaultK int) (*Service, error) {
	if defaultK <= 0 {
		return nil, fmt.Errorf("%w: result count must be positive, got %d", ErrInvalidConfig, defaultK)
	}
	return &Service{embedder: embedder, index: idx, defaultK: defaultK}, nil
}

// Retrieve returns the default number of results for the query.
func (s *Service) Retrieve(ctx context.Context, role access.Role, query string) ([]index.Result, error) {
	return s.RetrieveK(ctx, role, query, s.defaultK)
}

// RetrieveK returns at most k chunks visible to the role, ranked by
// similarity to the query. An unknown role is an error, never an empty
// allow set. Zero matches yields an empty slice, not an error.
func (s *Service) RetrieveK(ctx context.Context, role access.Role, query string, k int) ([]index.Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: result count must be positive, got %d", ErrInvalidConfig, k)
	}

	visible, err := access.VisibleTiers(role)
	if err != nil {
		return nil, err
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}

	return s.index.Search(ctx, vectors[0], visible, k)
}
