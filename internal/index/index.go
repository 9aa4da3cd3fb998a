// Package index stores chunk embeddings with per-chunk confidentiality tiers
// and serves tier-filtered nearest-neighbor search.
package index

import (
	"context"
	"errors"
	"math"

	"github.com/docsentry/docsentry/internal/access"
)

var (
	// ErrDuplicateChunk is returned when inserting a chunk id already present.
	ErrDuplicateChunk = errors.New("duplicate chunk id")

	// ErrDimensionMismatch is returned when an embedding's length differs from
	// the index's fixed dimensionality (set by the first insert).
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Chunk is a retrievable unit: a text span of a document with its embedding
// and the confidentiality tier inherited from the document.
type Chunk struct {
	ID         string
	DocumentID string
	Position   int // position within the owning document
	Content    string
	Tier       access.Tier
	Embedding  []float32
}

// Result pairs a chunk with its similarity score.
type Result struct {
	Chunk Chunk
	Score float32
}

// Index is the vector index contract. Search never returns a chunk whose
// tier is outside the allowed set: tier filtering happens inside the index,
// not as a post-filter over an unrestricted ranking.
type Index interface {
	// Insert adds a chunk atomically. Fails with ErrDuplicateChunk if the id
	// is already present and ErrDimensionMismatch if the embedding length
	// differs from the index dimensionality.
	Insert(ctx context.Context, chunk Chunk) error

	// Search returns at most k chunks whose tier is in allowed, ranked by
	// descending cosine similarity; ties are broken by insertion order.
	// An empty index or no matching chunk yields an empty result, not an error.
	Search(ctx context.Context, embedding []float32, allowed []access.Tier, k int) ([]Result, error)

	// Remove deletes all chunks owned by the document. Idempotent.
	Remove(ctx context.Context, documentID string) error

	// Retag updates the tier of all chunks owned by the document.
	Retag(ctx context.Context, documentID string, tier access.Tier) error

	// Count returns the number of chunks in the index.
	Count(ctx context.Context) (int, error)

	// Dimensions returns the fixed embedding dimensionality, or 0 if the
	// index is empty and no insert has pinned it yet.
	Dimensions(ctx context.Context) (int, error)
}

// cosine computes the cosine similarity of two equal-length vectors.
// Zero vectors score 0.
func cosine(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
