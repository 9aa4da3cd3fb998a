// Package ingest runs the document write path: extract, chunk, tag, embed,
// index, and record the document.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docsentry/docsentry/internal/access"
	"github.com/docsentry/docsentry/internal/chunker"
	"github.com/docsentry/docsentry/internal/db"
	"github.com/docsentry/docsentry/internal/embeddings"
	"github.com/docsentry/docsentry/internal/identity"
	"github.com/docsentry/docsentry/internal/index"
)

var (
	// ErrForbidden is returned when the user's role does not permit the
	// requested operation.
	ErrForbidden = errors.New("operation not permitted for role")

	// ErrDocumentNotFound is returned for unknown document ids.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrEmptyDocument is returned when extraction yields no indexable text.
	ErrEmptyDocument = errors.New("document contains no text")
)

// Document is an uploaded document's metadata. Chunk contents live in the
// index, not here.
type Document struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Tier       access.Tier `json:"tier"`
	UploadedBy string      `json:"uploaded_by"`
	ChunkCount int         `json:"chunk_count"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Service owns the document write path and the document catalog.
type Service struct {
	db       *db.DB
	chunker  *chunker.Chunker
	embedder embeddings.Embedder
	index    index.Index
	resolver identity.Resolver
}

// NewService wires the ingestion pipeline.
func NewService(database *db.DB, ch *chunker.Chunker, embedder embeddings.Embedder, idx index.Index, resolver identity.Resolver) *Service {
	return &Service{
		db:       database,
		chunker:  ch,
		embedder: embedder,
		index:    idx,
		resolver: resolver,
	}
}

// Ingest chunks, embeds and indexes a document's text under the given tier.
// The uploader must be able to read the tier they are uploading to.
func (s *Service) Ingest(ctx context.Context, userID, title string, tier access.Tier, text string) (*Document, error) {
	role, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	ok, err := access.CanUpload(role, tier)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot upload at tier %s", ErrForbidden, role, tier)
	}

	parts := s.chunker.Split(text)
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, title)
	}

	docID := uuid.New().String()
	chunks, err := Tag(docID, tier, parts)
	if err != nil {
		return nil, err
	}

	vectors, err := s.embedder.Embed(ctx, parts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d chunks: %w", len(parts), err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	for i := range chunks {
		chunks[i].Embedding = vectors[i]
		if err := s.index.Insert(ctx, chunks[i]); err != nil {
			// Roll back already-indexed chunks so a failed ingest leaves
			// no partial document behind.
			if rmErr := s.index.Remove(ctx, docID); rmErr != nil {
				log.Printf("ingest: rollback of document %s failed: %v", docID, rmErr)
			}
			return nil, fmt.Errorf("indexing chunk %d: %w", i, err)
		}
	}

	now := time.Now().UTC()
	doc := Document{
		ID:         docID,
		Title:      title,
		Tier:       tier,
		UploadedBy: userID,
		ChunkCount: len(chunks),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, title, tier, uploaded_by, chunk_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, string(doc.Tier), doc.UploadedBy, doc.ChunkCount, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		if rmErr := s.index.Remove(ctx, docID); rmErr != nil {
			log.Printf("ingest: rollback of document %s failed: %v", docID, rmErr)
		}
		return nil, fmt.Errorf("recording document: %w", err)
	}
	return &doc, nil
}

// List returns the documents whose tier the user is allowed to see.
func (s *Service) List(ctx context.Context, userID string) ([]Document, error) {
	role, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	visible, err := access.VisibleTiers(role)
	if err != nil {
		return nil, err
	}

	placeholders := make([]string, len(visible))
	args := make([]any, len(visible))
	for i, t := range visible {
		placeholders[i] = "?"
		args[i] = string(t)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, title, tier, uploaded_by, chunk_count, created_at, updated_at
		 FROM documents WHERE tier IN (%s) ORDER BY created_at DESC, id`,
		strings.Join(placeholders, ",")), args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// Get returns a document if the user's role can see its tier.
func (s *Service) Get(ctx context.Context, userID, documentID string) (*Document, error) {
	role, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	doc, err := s.lookup(ctx, documentID)
	if err != nil {
		return nil, err
	}
	ok, err := access.CanRead(role, doc.Tier)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Invisible documents are indistinguishable from missing ones.
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	return doc, nil
}

// Remove deletes a document and all its indexed chunks. Admins can remove
// any document; other roles only their own uploads.
func (s *Service) Remove(ctx context.Context, userID, documentID string) error {
	role, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return err
	}

	doc, err := s.lookup(ctx, documentID)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			// Removal is idempotent.
			return nil
		}
		return err
	}
	if role != access.RoleAdmin && doc.UploadedBy != userID {
		return fmt.Errorf("%w: %s cannot remove document %s", ErrForbidden, role, documentID)
	}

	if err := s.index.Remove(ctx, documentID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, documentID); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// Retier changes a document's confidentiality tier, retagging every indexed
// chunk. Admin only: raising or lowering visibility is a policy decision.
func (s *Service) Retier(ctx context.Context, userID, documentID string, tier access.Tier) (*Document, error) {
	role, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	if role != access.RoleAdmin {
		return nil, fmt.Errorf("%w: %s cannot change document tiers", ErrForbidden, role)
	}
	if _, err := access.ParseTier(string(tier)); err != nil {
		return nil, err
	}

	doc, err := s.lookup(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if err := s.index.Retag(ctx, documentID, tier); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE documents SET tier = ?, updated_at = ? WHERE id = ?`,
		string(tier), now, documentID); err != nil {
		return nil, fmt.Errorf("updating document tier: %w", err)
	}
	doc.Tier = tier
	doc.UpdatedAt = now
	return doc, nil
}

func (s *Service) lookup(ctx context.Context, documentID string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, tier, uploaded_by, chunk_count, created_at, updated_at
		 FROM documents WHERE id = ?`, documentID)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	return doc, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var tier string
	err := row.Scan(&doc.ID, &doc.Title, &tier, &doc.UploadedBy, &doc.ChunkCount, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document row: %w", err)
	}
	doc.Tier = access.Tier(tier)
	return &doc, nil
}
