package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGoogleEmbedderBatch(t *testing.T) {
	var gotRequests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req googleBatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		gotRequests = len(req.Requests)

		resp := googleBatchResponse{}
		for range req.Requests {
			resp.Embeddings = append(resp.Embeddings, struct {
				Values []float32 `json:"values"`
			}{Values: []float32{0.1, 0.2, 0.3}})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	e := NewGoogleEmbedder("test-key", "text-embedding-004", server.URL)
	vectors, err := e.Embed(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if gotRequests != 2 {
		t.Errorf("expected 2 batched requests, got %d", gotRequests)
	}
	if len(vectors) != 2 || len(vectors[0]) != 3 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
}

func TestGoogleEmbedderAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	e := NewGoogleEmbedder("test-key", "text-embedding-004", server.URL)
	if _, err := e.Embed(context.Background(), []string{"x"}); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestOllamaEmbedder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaEmbedRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := ollamaEmbedResponse{}
		for range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{1, 2})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	e := NewOllamaEmbedder("nomic-embed-text", 2, server.URL)
	if e.Dimensions() != 2 {
		t.Errorf("Dimensions = %d, want 2", e.Dimensions())
	}

	vectors, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	e := NewOllamaEmbedder("m", 4, "http://unreachable.invalid")
	vectors, err := e.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed(nil): %v", err)
	}
	if vectors != nil {
		t.Errorf("expected nil result for empty input, got %v", vectors)
	}
}

func TestOpenAIEmbedderDimensions(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"unknown-model", 1536},
	}
	for _, tt := range tests {
		e := NewOpenAIEmbedder("key", tt.model)
		if got := e.Dimensions(); got != tt.want {
			t.Errorf("Dimensions(%s) = %d, want %d", tt.model, got, tt.want)
		}
	}
}
