package composer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/docsentry/docsentry/internal/access"
	"github.com/docsentry/docsentry/internal/db"
	"github.com/docsentry/docsentry/internal/identity"
	"github.com/docsentry/docsentry/internal/index"
	"github.com/docsentry/docsentry/internal/llm"
	"github.com/docsentry/docsentry/internal/retriever"
	"github.com/docsentry/docsentry/internal/session"
)

// scriptedProvider returns queued errors first, then answers with content.
// It records every request it sees and is safe for concurrent use.
type scriptedProvider struct {
	content string

	mu       sync.Mutex
	failures int
	calls    int
	requests []llm.CompletionRequest
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.requests = append(p.requests, req)
	if p.failures > 0 {
		p.failures--
		return nil, errors.New("model overloaded")
	}
	return &llm.CompletionResponse{Content: p.content}, nil
}

type echoEmbedder struct{}

func (echoEmbedder) Name() string    { return "echo" }
func (echoEmbedder) Dimensions() int { return 2 }

func (echoEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.Contains(t, "payroll") {
			vectors[i] = []float32{1, 0}
		} else {
			vectors[i] = []float32{0, 1}
		}
	}
	return vectors, nil
}

type fixture struct {
	service  *Service
	sessions *session.Store
	users    *identity.Store
	index    index.Index
	provider *scriptedProvider
}

func newFixture(t *testing.T, provider *scriptedProvider, opts Options) *fixture {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	users := identity.NewStore(database)
	ctx := context.Background()
	users.Add(ctx, "emp", "Employee", access.RoleEmployee)
	users.Add(ctx, "adm", "Admin", access.RoleAdmin)

	idx := index.NewSQLiteIndex(database)
	seed := []index.Chunk{
		{ID: "c-low", DocumentID: "doc-low", Position: 0, Content: "payroll runs on the 25th", Tier: access.TierLow, Embedding: []float32{1, 0}},
		{ID: "c-high", DocumentID: "doc-high", Position: 0, Content: "payroll total is 4.2M", Tier: access.TierHigh, Embedding: []float32{0.9, 0.1}},
	}
	for _, c := range seed {
		if err := idx.Insert(ctx, c); err != nil {
			t.Fatalf("seeding index: %v", err)
		}
	}

	ret, err := retriever.New(echoEmbedder{}, idx, 4)
	if err != nil {
		t.Fatalf("creating retriever: %v", err)
	}

	sessions := session.NewStore(database)
	return &fixture{
		service:  NewService(users, ret, sessions, provider, opts),
		sessions: sessions,
		users:    users,
		index:    idx,
		provider: provider,
	}
}

func (f *fixture) newSession(t *testing.T, userID string) string {
	t.Helper()
	sess, err := f.sessions.Create(context.Background(), userID, "test")
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}
	return sess.ID
}

func TestComposeAnswersAndRecordsTurn(t *testing.T) {
	provider := &scriptedProvider{content: "Payroll runs on the 25th of each month."}
	f := newFixture(t, provider, Options{HistoryBudget: 2048})
	ctx := context.Background()
	sessID := f.newSession(t, "emp")

	answer, err := f.service.Compose(ctx, sessID, "emp", "when does payroll run?")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if answer.Text != provider.content {
		t.Errorf("text = %q", answer.Text)
	}
	if len(answer.Sources) != 1 || answer.Sources[0] != "doc-low" {
		t.Errorf("sources = %v, want [doc-low]", answer.Sources)
	}

	// The system prompt carries the retrieved excerpt, and only the one the
	// employee is cleared for.
	system := provider.requests[0].Messages[0]
	if system.Role != llm.RoleSystem {
		t.Fatalf("first message role = %s", system.Role)
	}
	if !strings.Contains(system.Content, "payroll runs on the 25th") {
		t.Error("system prompt missing retrieved context")
	}
	if strings.Contains(system.Content, "4.2M") {
		t.Error("system prompt leaked a High tier chunk to an Employee")
	}

	messages, err := f.sessions.Messages(ctx, sessID, "emp")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("history has %d messages, want 2", len(messages))
	}
	if messages[0].Role != session.RoleUser || messages[1].Role != session.RoleAssistant {
		t.Errorf("history roles = %s, %s", messages[0].Role, messages[1].Role)
	}
}

func TestComposeEmptyRetrievalAnswersFromHistory(t *testing.T) {
	provider := &scriptedProvider{content: "You told me earlier it is 20 days."}
	f := newFixture(t, provider, Options{HistoryBudget: 2048})
	ctx := context.Background()
	sessID := f.newSession(t, "emp")

	// Empty the index so retrieval finds nothing for the employee.
	for _, doc := range []string{"doc-low", "doc-high"} {
		if err := f.index.Remove(ctx, doc); err != nil {
			t.Fatalf("clearing index: %v", err)
		}
	}

	answer, err := f.service.Compose(ctx, sessID, "emp", "what is the vacation policy?")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	// The model is still consulted, but only with the conversation and an
	// instruction carrying the exact fallback wording.
	if provider.calls != 1 {
		t.Fatalf("model called %d times, want 1", provider.calls)
	}
	system := provider.requests[0].Messages[0]
	if system.Role != llm.RoleSystem {
		t.Fatalf("first message role = %s", system.Role)
	}
	if !strings.Contains(system.Content, "conversation so far") {
		t.Error("system prompt does not restrict the model to the conversation")
	}
	if !strings.Contains(system.Content, `couldn't find relevant information for "what is the vacation policy?"`) {
		t.Error("system prompt missing the instructed fallback wording")
	}
	if strings.Contains(system.Content, "Context:") {
		t.Error("system prompt carries excerpts despite empty retrieval")
	}

	if answer.Text != provider.content {
		t.Errorf("text = %q", answer.Text)
	}
	if len(answer.Sources) != 0 {
		t.Errorf("sources = %v, want none", answer.Sources)
	}

	// The turn still lands in history.
	messages, _ := f.sessions.Messages(ctx, sessID, "emp")
	if len(messages) != 2 {
		t.Errorf("history has %d messages, want 2", len(messages))
	}
}

func TestComposeEmptyRetrievalFallsBackWhenModelFails(t *testing.T) {
	provider := &scriptedProvider{failures: 10}
	f := newFixture(t, provider, Options{HistoryBudget: 2048, Timeout: time.Second})
	ctx := context.Background()
	sessID := f.newSession(t, "emp")

	for _, doc := range []string{"doc-low", "doc-high"} {
		if err := f.index.Remove(ctx, doc); err != nil {
			t.Fatalf("clearing index: %v", err)
		}
	}

	// With nothing retrieved a model outage degrades to the canned answer
	// instead of an error.
	answer, err := f.service.Compose(ctx, sessID, "emp", "what is the vacation policy?")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !strings.Contains(answer.Text, "couldn't find relevant information") {
		t.Errorf("text = %q, want fallback", answer.Text)
	}
	if !strings.Contains(answer.Text, `"what is the vacation policy?"`) {
		t.Errorf("fallback does not quote the question: %q", answer.Text)
	}
	if len(answer.Sources) != 0 {
		t.Errorf("sources = %v, want none", answer.Sources)
	}

	messages, _ := f.sessions.Messages(ctx, sessID, "emp")
	if len(messages) != 2 {
		t.Errorf("history has %d messages, want 2", len(messages))
	}
}

func TestComposeFailureLeavesSessionUntouched(t *testing.T) {
	provider := &scriptedProvider{failures: 10}
	f := newFixture(t, provider, Options{HistoryBudget: 2048, Retries: 1, Timeout: time.Second})
	ctx := context.Background()
	sessID := f.newSession(t, "emp")

	_, err := f.service.Compose(ctx, sessID, "emp", "when does payroll run?")
	if !errors.Is(err, ErrGenerationUnavailable) {
		t.Fatalf("Compose error = %v, want ErrGenerationUnavailable", err)
	}
	if provider.calls != 2 {
		t.Errorf("model called %d times, want 2 (initial + 1 retry)", provider.calls)
	}

	messages, err := f.sessions.Messages(ctx, sessID, "emp")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("failed turn left %d messages in history", len(messages))
	}
}

func TestComposeRetriesThenSucceeds(t *testing.T) {
	provider := &scriptedProvider{content: "recovered", failures: 1}
	f := newFixture(t, provider, Options{HistoryBudget: 2048, Retries: 2, Timeout: time.Second})
	ctx := context.Background()
	sessID := f.newSession(t, "emp")

	answer, err := f.service.Compose(ctx, sessID, "emp", "when does payroll run?")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if answer.Text != "recovered" {
		t.Errorf("text = %q", answer.Text)
	}
	if provider.calls != 2 {
		t.Errorf("model called %d times, want 2", provider.calls)
	}
}

func TestComposeRoleChangeTakesEffectNextTurn(t *testing.T) {
	provider := &scriptedProvider{content: "ok"}
	f := newFixture(t, provider, Options{HistoryBudget: 2048})
	ctx := context.Background()
	sessID := f.newSession(t, "emp")

	if _, err := f.service.Compose(ctx, sessID, "emp", "what about payroll?"); err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if strings.Contains(provider.requests[0].Messages[0].Content, "4.2M") {
		t.Fatal("employee saw High tier content")
	}

	// Promotion applies to the very next question in the same session.
	if _, err := f.users.Add(ctx, "emp", "Employee", access.RoleAdmin); err != nil {
		t.Fatalf("promoting user: %v", err)
	}
	if _, err := f.service.Compose(ctx, sessID, "emp", "what about payroll?"); err != nil {
		t.Fatalf("Compose after promotion: %v", err)
	}
	if !strings.Contains(provider.requests[1].Messages[0].Content, "4.2M") {
		t.Error("promoted user did not see High tier content")
	}
}

func TestComposeUnknownUserAndSession(t *testing.T) {
	provider := &scriptedProvider{content: "ok"}
	f := newFixture(t, provider, Options{HistoryBudget: 2048})
	ctx := context.Background()
	sessID := f.newSession(t, "emp")

	if _, err := f.service.Compose(ctx, sessID, "ghost", "q"); !errors.Is(err, identity.ErrUnknownUser) {
		t.Errorf("unknown user error = %v", err)
	}
	if _, err := f.service.Compose(ctx, "no-such-session", "emp", "q"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("unknown session error = %v", err)
	}
	// Another user's session is invisible.
	if _, err := f.service.Compose(ctx, sessID, "adm", "q"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("cross-user session error = %v", err)
	}
}

func TestComposeConcurrentTurnsSameSession(t *testing.T) {
	provider := &scriptedProvider{content: "ok"}
	f := newFixture(t, provider, Options{HistoryBudget: 2048})
	ctx := context.Background()
	sessID := f.newSession(t, "emp")

	const turns = 4
	var wg sync.WaitGroup
	errs := make([]error, turns)
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.Compose(ctx, sessID, "emp", fmt.Sprintf("payroll question %d", i))
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("Compose[%d]: %v", i, err)
		}
	}

	// Turns land whole: every question is immediately followed by its
	// answer, never interleaved with another turn.
	messages, err := f.sessions.Messages(ctx, sessID, "emp")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(messages) != 2*turns {
		t.Fatalf("history has %d messages, want %d", len(messages), 2*turns)
	}
	for i, m := range messages {
		if m.Seq != i {
			t.Errorf("message %d has seq %d", i, m.Seq)
		}
		want := session.RoleUser
		if i%2 == 1 {
			want = session.RoleAssistant
		}
		if m.Role != want {
			t.Errorf("message %d role = %s, want %s", i, m.Role, want)
		}
	}
}

func TestSendEndpointCreatesSession(t *testing.T) {
	provider := &scriptedProvider{content: "answer"}
	f := newFixture(t, provider, Options{HistoryBudget: 2048})

	r := chi.NewRouter()
	RegisterRoutes(r, f.service, f.sessions)

	body, _ := json.Marshal(sendRequest{Question: "when does payroll run?"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat/send", bytes.NewReader(body))
	req.Header.Set("X-User-ID", "emp")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var answer Answer
	if err := json.Unmarshal(rec.Body.Bytes(), &answer); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if answer.SessionID == "" {
		t.Fatal("no session id in response")
	}

	sessions, err := f.sessions.List(context.Background(), "emp")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions", len(sessions))
	}
	if sessions[0].Title != "When Does Payroll Run" {
		t.Errorf("title = %q", sessions[0].Title)
	}

	// The new session is readable through the metadata endpoint.
	req = httptest.NewRequest(http.MethodGet, "/api/sessions/"+answer.SessionID, nil)
	req.Header.Set("X-User-ID", "emp")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("get session status = %d", rec.Code)
	}
	var sess session.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decoding session: %v", err)
	}
	if sess.MessageCount != 2 {
		t.Errorf("message count = %d, want 2", sess.MessageCount)
	}

	// Anonymous requests are rejected.
	req = httptest.NewRequest(http.MethodPost, "/api/chat/send", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", rec.Code)
	}
}

func TestErrorBodyIsValidJSON(t *testing.T) {
	provider := &scriptedProvider{content: "ok"}
	f := newFixture(t, provider, Options{HistoryBudget: 2048})

	r := chi.NewRouter()
	RegisterRoutes(r, f.service, f.sessions)

	// An unknown user id containing a quote must not break the error body.
	body, _ := json.Marshal(sendRequest{Question: "anything"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat/send", bytes.NewReader(body))
	req.Header.Set("X-User-ID", `gho"st`)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("error body is not valid JSON: %v\nbody: %s", err, rec.Body.String())
	}
	if payload["error"] == "" {
		t.Error("error body has no error field")
	}
}
