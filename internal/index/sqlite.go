package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/docsentry/docsentry/internal/access"
	"github.com/docsentry/docsentry/internal/db"
)

// SQLiteIndex persists chunks and embeddings in the shared SQLite database.
// Writes for the same document are serialized; reads run concurrently.
type SQLiteIndex struct {
	db *db.DB

	mu       sync.Mutex
	docLocks map[string]*sync.Mutex
}

// NewSQLiteIndex creates a SQLite-backed vector index.
func NewSQLiteIndex(database *db.DB) *SQLiteIndex {
	return &SQLiteIndex{
		db:       database,
		docLocks: make(map[string]*sync.Mutex),
	}
}

func (s *SQLiteIndex) docLock(documentID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.docLocks[documentID]
	if !ok {
		l = &sync.Mutex{}
		s.docLocks[documentID] = l
	}
	return l
}

func (s *SQLiteIndex) Insert(ctx context.Context, chunk Chunk) error {
	if chunk.ID == "" {
		return fmt.Errorf("chunk id must not be empty")
	}
	if len(chunk.Embedding) == 0 {
		return fmt.Errorf("chunk %s: %w", chunk.ID, ErrDimensionMismatch)
	}

	lock := s.docLock(chunk.DocumentID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer tx.Rollback()

	var dims, nextOrd int
	err = tx.QueryRowContext(ctx, `SELECT dimensions, next_ord FROM index_meta WHERE id = 1`).Scan(&dims, &nextOrd)
	switch {
	case err == sql.ErrNoRows:
		// First insert pins the index dimensionality.
		dims = len(chunk.Embedding)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO index_meta (id, dimensions, next_ord) VALUES (1, ?, 0)`, dims); err != nil {
			return fmt.Errorf("initializing index metadata: %w", err)
		}
	case err != nil:
		return fmt.Errorf("reading index metadata: %w", err)
	}
	if len(chunk.Embedding) != dims {
		return fmt.Errorf("chunk %s has %d dimensions, index has %d: %w",
			chunk.ID, len(chunk.Embedding), dims, ErrDimensionMismatch)
	}

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM chunks WHERE id = ?`, chunk.ID).Scan(&exists)
	if err == nil {
		return fmt.Errorf("chunk %s: %w", chunk.ID, ErrDuplicateChunk)
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("checking for existing chunk: %w", err)
	}

	blob, err := json.Marshal(chunk.Embedding)
	if err != nil {
		return fmt.Errorf("encoding embedding: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chunks (id, ord, document_id, position, content, tier, embedding) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		chunk.ID, nextOrd, chunk.DocumentID, chunk.Position, chunk.Content, string(chunk.Tier), blob); err != nil {
		return fmt.Errorf("inserting chunk: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE index_meta SET next_ord = ? WHERE id = 1`, nextOrd+1); err != nil {
		return fmt.Errorf("advancing insertion counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing insert: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) Search(ctx context.Context, embedding []float32, allowed []access.Tier, k int) ([]Result, error) {
	if k <= 0 || len(allowed) == 0 {
		return nil, nil
	}

	var dims int
	err := s.db.QueryRowContext(ctx, `SELECT dimensions FROM index_meta WHERE id = 1`).Scan(&dims)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading index metadata: %w", err)
	}
	if len(embedding) != dims {
		return nil, fmt.Errorf("query has %d dimensions, index has %d: %w",
			len(embedding), dims, ErrDimensionMismatch)
	}

	placeholders := make([]string, len(allowed))
	args := make([]any, len(allowed))
	for i, t := range allowed {
		placeholders[i] = "?"
		args[i] = string(t)
	}

	query := fmt.Sprintf(
		`SELECT id, ord, document_id, position, content, tier, embedding FROM chunks WHERE tier IN (%s) ORDER BY ord`,
		strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			c    Chunk
			ord  int
			tier string
			blob []byte
		)
		if err := rows.Scan(&c.ID, &ord, &c.DocumentID, &c.Position, &c.Content, &tier, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		if err := json.Unmarshal(blob, &c.Embedding); err != nil {
			return nil, fmt.Errorf("decoding embedding for chunk %s: %w", c.ID, err)
		}
		c.Tier = access.Tier(tier)
		results = append(results, Result{Chunk: c, Score: cosine(embedding, c.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk rows: %w", err)
	}

	// Rows arrive in insertion order, so a stable sort on score alone keeps
	// equal-score chunks in insertion order.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *SQLiteIndex) Remove(ctx context.Context, documentID string) error {
	lock := s.docLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("removing chunks for document %s: %w", documentID, err)
	}
	return nil
}

func (s *SQLiteIndex) Retag(ctx context.Context, documentID string, tier access.Tier) error {
	if _, err := access.ParseTier(string(tier)); err != nil {
		return err
	}

	lock := s.docLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.db.ExecContext(ctx,
		`UPDATE chunks SET tier = ? WHERE document_id = ?`, string(tier), documentID); err != nil {
		return fmt.Errorf("retagging chunks for document %s: %w", documentID, err)
	}
	return nil
}

func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

func (s *SQLiteIndex) Dimensions(ctx context.Context) (int, error) {
	var dims int
	err := s.db.QueryRowContext(ctx, `SELECT dimensions FROM index_meta WHERE id = 1`).Scan(&dims)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading index metadata: %w", err)
	}
	return dims, nil
}
