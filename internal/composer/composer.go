// Package composer produces grounded answers: it retrieves what the user may
// see, folds in session history, asks the model, and records the turn.
package composer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/docsentry/docsentry/internal/identity"
	"github.com/docsentry/docsentry/internal/index"
	"github.com/docsentry/docsentry/internal/llm"
	"github.com/docsentry/docsentry/internal/retriever"
	"github.com/docsentry/docsentry/internal/session"
)

// ErrGenerationUnavailable is returned when the model cannot produce an
// answer within the configured retries. The session history is left exactly
// as it was.
var ErrGenerationUnavailable = errors.New("answer generation unavailable")

// Options tune the generation step.
type Options struct {
	Temperature   float64
	MaxTokens     int
	HistoryBudget int           // token budget for prior turns
	Timeout       time.Duration // per-attempt deadline for the model call
	Retries       int           // additional attempts after the first failure
}

// Answer is a composed reply with its provenance.
type Answer struct {
	SessionID string   `json:"session_id"`
	Text      string   `json:"text"`
	Sources   []string `json:"sources"` // document ids of cited chunks, best first
	TopScore  float32  `json:"top_score"`
}

// Service runs the read path end to end.
type Service struct {
	resolver  identity.Resolver
	retriever *retriever.Service
	sessions  *session.Store
	provider  llm.Provider
	opts      Options
}

// NewService wires the answer pipeline.
func NewService(resolver identity.Resolver, ret *retriever.Service, sessions *session.Store, provider llm.Provider, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Service{
		resolver:  resolver,
		retriever: ret,
		sessions:  sessions,
		provider:  provider,
		opts:      opts,
	}
}

// Compose answers a question inside a session. The user's role is resolved
// fresh for every question; a role change between turns takes effect
// immediately. The question/answer pair is appended only after an answer
// exists, so a failed generation never mutates the session.
func (s *Service) Compose(ctx context.Context, sessionID, userID, question string) (*Answer, error) {
	role, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Get(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	results, err := s.retriever.Retrieve(ctx, role, question)
	if err != nil {
		return nil, err
	}

	history, err := s.sessions.Messages(ctx, sess.ID, userID)
	if err != nil {
		return nil, err
	}
	window := session.WindowedHistory(history, s.opts.HistoryBudget)

	// With nothing visible to cite the model still gets the question, but
	// may only answer from the conversation so far or emit the fallback
	// wording.
	system := buildSystemPrompt(results)
	if len(results) == 0 {
		system = buildHistoryOnlyPrompt(question)
	}

	messages := make([]llm.Message, 0, len(window)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, m := range window {
		messages = append(messages, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: question})

	text, err := s.generate(ctx, messages)
	if err != nil {
		// An empty retrieval never turns into a hard error: the canned
		// fallback answers deterministically when the model is down.
		if len(results) > 0 {
			return nil, err
		}
		text = FallbackAnswer(question)
	}

	if err := s.sessions.AppendTurn(ctx, sess.ID, question, text); err != nil {
		return nil, err
	}

	answer := &Answer{SessionID: sess.ID, Text: text, Sources: []string{}}
	if len(results) > 0 {
		answer.Sources = sourceDocuments(results)
		answer.TopScore = results[0].Score
	}
	return answer, nil
}

// generate calls the model with a per-attempt timeout and bounded retries
// with exponential backoff.
func (s *Service) generate(ctx context.Context, messages []llm.Message) (string, error) {
	req := llm.CompletionRequest{
		Messages:    messages,
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= s.opts.Retries; attempt++ {
		if attempt > 0 {
			backoff := 500 * time.Millisecond << (attempt - 1)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, ctx.Err())
			case <-time.After(backoff):
			}
			log.Printf("composer: retrying generation (attempt %d): %v", attempt+1, lastErr)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		resp, err := s.provider.Complete(attemptCtx, req)
		cancel()
		if err == nil {
			return resp.Content, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, lastErr)
}

// sourceDocuments returns the document ids behind the results, deduplicated
// and in rank order.
func sourceDocuments(results []index.Result) []string {
	seen := make(map[string]bool, len(results))
	var docs []string
	for _, r := range results {
		if seen[r.Chunk.DocumentID] {
			continue
		}
		seen[r.Chunk.DocumentID] = true
		docs = append(docs, r.Chunk.DocumentID)
	}
	return docs
}
