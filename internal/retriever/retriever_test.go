package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/docsentry/docsentry/internal/access"
	"github.com/docsentry/docsentry/internal/db"
	"github.com/docsentry/docsentry/internal/index"
)

// keywordEmbedder maps known words to fixed unit vectors so similarity is
// predictable in tests.
type keywordEmbedder struct{}

func (keywordEmbedder) Name() string    { return "keyword" }
func (keywordEmbedder) Dimensions() int { return 3 }

func (keywordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		switch t {
		case "payroll":
			vectors[i] = []float32{1, 0, 0}
		case "vacation":
			vectors[i] = []float32{0, 1, 0}
		default:
			vectors[i] = []float32{0, 0, 1}
		}
	}
	return vectors, nil
}

func newTestIndex(t *testing.T) index.Index {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	idx := index.NewSQLiteIndex(database)

	ctx := context.Background()
	seed := []index.Chunk{
		{ID: "pay-low", DocumentID: "d1", Position: 0, Content: "payroll overview", Tier: access.TierLow, Embedding: []float32{1, 0, 0}},
		{ID: "pay-high", DocumentID: "d2", Position: 0, Content: "payroll numbers", Tier: access.TierHigh, Embedding: []float32{0.99, 0.1, 0}},
		{ID: "vac-med", DocumentID: "d3", Position: 0, Content: "vacation internal", Tier: access.TierMedium, Embedding: []float32{0, 1, 0}},
	}
	for _, c := range seed {
		if err := idx.Insert(ctx, c); err != nil {
			t.Fatalf("seeding index: %v", err)
		}
	}
	return idx
}

func TestNewRejectsBadK(t *testing.T) {
	if _, err := New(keywordEmbedder{}, nil, 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New(k=0) error = %v, want ErrInvalidConfig", err)
	}
	if _, err := New(keywordEmbedder{}, nil, -3); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New(k=-3) error = %v, want ErrInvalidConfig", err)
	}
}

func TestRetrieveRespectsRoleVisibility(t *testing.T) {
	idx := newTestIndex(t)
	svc, err := New(keywordEmbedder{}, idx, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	// An employee asking about payroll only sees the Low tier chunk, even
	// though the High tier chunk scores nearly as well.
	results, err := svc.Retrieve(ctx, access.RoleEmployee, "payroll")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ID != "pay-low" {
		t.Errorf("employee results = %v", resultIDs(results))
	}

	// An admin sees both payroll chunks, exact match first.
	results, err = svc.Retrieve(ctx, access.RoleAdmin, "payroll")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("admin results = %v", resultIDs(results))
	}
	if results[0].Chunk.ID != "pay-low" || results[1].Chunk.ID != "pay-high" {
		t.Errorf("admin ranking = %v", resultIDs(results))
	}

	for _, role := range access.Roles {
		visible, _ := access.VisibleTiers(role)
		allowed := make(map[access.Tier]bool)
		for _, tier := range visible {
			allowed[tier] = true
		}
		results, err := svc.Retrieve(ctx, role, "payroll")
		if err != nil {
			t.Fatalf("Retrieve(%s): %v", role, err)
		}
		for _, r := range results {
			if !allowed[r.Chunk.Tier] {
				t.Errorf("role %s received chunk at tier %s", role, r.Chunk.Tier)
			}
		}
	}
}

func TestRetrieveUnknownRole(t *testing.T) {
	svc, err := New(keywordEmbedder{}, newTestIndex(t), 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = svc.Retrieve(context.Background(), access.Role("Contractor"), "payroll")
	if !errors.Is(err, access.ErrUnknownRole) {
		t.Errorf("Retrieve error = %v, want ErrUnknownRole", err)
	}
}

func TestRetrieveKValidation(t *testing.T) {
	svc, err := New(keywordEmbedder{}, newTestIndex(t), 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if _, err := svc.RetrieveK(ctx, access.RoleAdmin, "payroll", 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("RetrieveK(0) error = %v, want ErrInvalidConfig", err)
	}

	results, err := svc.RetrieveK(ctx, access.RoleAdmin, "payroll", 1)
	if err != nil {
		t.Fatalf("RetrieveK: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results for k=1", len(results))
	}
}

func TestRetrieveNoMatchesIsNotAnError(t *testing.T) {
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	svc, err := New(keywordEmbedder{}, index.NewSQLiteIndex(database), 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results, err := svc.Retrieve(context.Background(), access.RoleEmployee, "anything")
	if err != nil {
		t.Fatalf("Retrieve on empty index: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func resultIDs(results []index.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Chunk.ID
	}
	return out
}
