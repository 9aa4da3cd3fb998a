package index

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/docsentry/docsentry/internal/access"
	"github.com/docsentry/docsentry/internal/embeddings"
)

const collectionName = "chunks"

// MemoryIndex implements Index using chromem-go, keeping everything in
// process memory. Suitable for tests and single-run workloads; the SQLite
// index is the durable backend.
type MemoryIndex struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	chunks     map[string]Chunk // by chunk id, for duplicate checks and retag
	ords       map[string]int   // chunk id to insertion order
	tierCounts map[access.Tier]int
	dims       int
	nextOrd    int
}

// NewMemoryIndex creates an empty in-memory index. The embedder backs the
// collection's embedding func; chunks arriving with precomputed embeddings
// never invoke it.
func NewMemoryIndex(embedder embeddings.Embedder) (*MemoryIndex, error) {
	cdb := chromem.NewDB()

	col, err := cdb.GetOrCreateCollection(collectionName, nil, embeddings.ToChromemFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &MemoryIndex{
		db:         cdb,
		collection: col,
		chunks:     make(map[string]Chunk),
		ords:       make(map[string]int),
		tierCounts: make(map[access.Tier]int),
	}, nil
}

func (m *MemoryIndex) Insert(ctx context.Context, chunk Chunk) error {
	if chunk.ID == "" {
		return fmt.Errorf("chunk id must not be empty")
	}
	if len(chunk.Embedding) == 0 {
		return fmt.Errorf("chunk %s: %w", chunk.ID, ErrDimensionMismatch)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dims == 0 {
		m.dims = len(chunk.Embedding)
	}
	if len(chunk.Embedding) != m.dims {
		return fmt.Errorf("chunk %s has %d dimensions, index has %d: %w",
			chunk.ID, len(chunk.Embedding), m.dims, ErrDimensionMismatch)
	}
	if _, ok := m.chunks[chunk.ID]; ok {
		return fmt.Errorf("chunk %s: %w", chunk.ID, ErrDuplicateChunk)
	}

	if err := m.collection.AddDocument(ctx, chromem.Document{
		ID:        chunk.ID,
		Content:   chunk.Content,
		Embedding: chunk.Embedding,
		Metadata: map[string]string{
			"document_id": chunk.DocumentID,
			"position":    strconv.Itoa(chunk.Position),
			"tier":        string(chunk.Tier),
			"ord":         strconv.Itoa(m.nextOrd),
		},
	}); err != nil {
		return fmt.Errorf("adding chunk to collection: %w", err)
	}

	m.chunks[chunk.ID] = chunk
	m.ords[chunk.ID] = m.nextOrd
	m.tierCounts[chunk.Tier]++
	m.nextOrd++
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, embedding []float32, allowed []access.Tier, k int) ([]Result, error) {
	if k <= 0 || len(allowed) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.chunks) == 0 {
		return nil, nil
	}
	if len(embedding) != m.dims {
		return nil, fmt.Errorf("query has %d dimensions, index has %d: %w",
			len(embedding), m.dims, ErrDimensionMismatch)
	}

	// chromem where clauses are single-valued, so query each allowed tier
	// separately and merge. Chunks outside the allowed set never enter the
	// candidate list.
	type scored struct {
		result Result
		ord    int
	}
	var candidates []scored
	for _, tier := range allowed {
		count := m.tierCounts[tier]
		if count == 0 {
			continue
		}
		limit := k
		if limit > count {
			limit = count
		}

		results, err := m.collection.QueryEmbedding(ctx, embedding, limit,
			map[string]string{"tier": string(tier)}, nil)
		if err != nil {
			return nil, fmt.Errorf("chromem query for tier %s: %w", tier, err)
		}
		for _, r := range results {
			chunk, ok := m.chunks[r.ID]
			if !ok {
				continue
			}
			candidates = append(candidates, scored{
				result: Result{Chunk: chunk, Score: r.Similarity},
				ord:    m.ords[r.ID],
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].result.Score != candidates[j].result.Score {
			return candidates[i].result.Score > candidates[j].result.Score
		}
		return candidates[i].ord < candidates[j].ord
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = c.result
	}
	return results, nil
}

func (m *MemoryIndex) Remove(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var any bool
	for id, chunk := range m.chunks {
		if chunk.DocumentID != documentID {
			continue
		}
		any = true
		delete(m.chunks, id)
		delete(m.ords, id)
		m.tierCounts[chunk.Tier]--
	}
	if !any {
		return nil
	}

	if err := m.collection.Delete(ctx, map[string]string{"document_id": documentID}, nil); err != nil {
		return fmt.Errorf("removing chunks for document %s: %w", documentID, err)
	}
	return nil
}

func (m *MemoryIndex) Retag(ctx context.Context, documentID string, tier access.Tier) error {
	if _, err := access.ParseTier(string(tier)); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, chunk := range m.chunks {
		if chunk.DocumentID != documentID || chunk.Tier == tier {
			continue
		}

		// chromem documents are immutable, so re-add with the new tier.
		if err := m.collection.Delete(ctx, nil, nil, id); err != nil {
			return fmt.Errorf("retagging chunk %s: %w", id, err)
		}
		if err := m.collection.AddDocument(ctx, chromem.Document{
			ID:        id,
			Content:   chunk.Content,
			Embedding: chunk.Embedding,
			Metadata: map[string]string{
				"document_id": chunk.DocumentID,
				"position":    strconv.Itoa(chunk.Position),
				"tier":        string(tier),
				"ord":         strconv.Itoa(m.ords[id]),
			},
		}); err != nil {
			return fmt.Errorf("retagging chunk %s: %w", id, err)
		}

		m.tierCounts[chunk.Tier]--
		m.tierCounts[tier]++
		chunk.Tier = tier
		m.chunks[id] = chunk
	}
	return nil
}

func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}

func (m *MemoryIndex) Dimensions(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dims, nil
}
