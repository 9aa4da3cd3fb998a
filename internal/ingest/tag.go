package ingest

import (
	"fmt"

	"github.com/docsentry/docsentry/internal/access"
	"github.com/docsentry/docsentry/internal/index"
)

// Tag turns the chunks of one document into index entries, stamping every
// chunk with the document's confidentiality tier. Chunks never carry a tier
// of their own; visibility is always decided by the owning document.
func Tag(documentID string, tier access.Tier, parts []string) ([]index.Chunk, error) {
	if _, err := access.ParseTier(string(tier)); err != nil {
		return nil, err
	}

	chunks := make([]index.Chunk, len(parts))
	for i, content := range parts {
		chunks[i] = index.Chunk{
			// Deterministic ids make re-ingesting the same document surface
			// as ErrDuplicateChunk instead of silently double-indexing.
			ID:         fmt.Sprintf("%s:%04d", documentID, i),
			DocumentID: documentID,
			Position:   i,
			Content:    content,
			Tier:       tier,
		}
	}
	return chunks, nil
}
