// Package embeddings provides text embedding providers behind a common interface.
package embeddings

import "context"

// Embedder defines the interface for generating text embeddings.
// Repeated calls on identical text must yield index-compatible vectors
// (same dimensionality, comparable metric space).
type Embedder interface {
	// Embed generates embeddings for one or more texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the number of dimensions in the embedding vectors.
	Dimensions() int

	// Name returns the name/identifier of the embedding model.
	Name() string
}
