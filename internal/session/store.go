package session

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/docsentry/docsentry/internal/db"
)

const titleMaxRunes = 30

// Store manages persistence of chat sessions and messages.
// Appends to the same session are serialized so concurrent turns interleave
// whole turns rather than individual messages.
type Store struct {
	db *db.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a new session store.
func NewStore(database *db.DB) *Store {
	return &Store{
		db:    database,
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *Store) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

// TitleFromPrompt derives a session title from the first question: trailing
// punctuation is dropped, a question "about X" is titled just "X", and the
// result is title-cased and capped at 30 runes.
func TitleFromPrompt(prompt string) string {
	title := strings.TrimSpace(prompt)
	title = strings.TrimRight(title, ".?!")
	lower := strings.ToLower(title)
	if i := strings.LastIndex(lower, "about"); i >= 0 {
		title = lower[i+len("about"):]
	}

	var b strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	for i, w := range words {
		words[i] = titleCase(w)
	}
	title = strings.Join(words, " ")

	if runes := []rune(title); len(runes) > titleMaxRunes {
		title = strings.TrimSpace(string(runes[:titleMaxRunes]))
	}
	if title == "" {
		title = "New Chat"
	}
	return title
}

// titleCase upper-cases the first rune of a word and lower-cases the rest.
func titleCase(word string) string {
	runes := []rune(strings.ToLower(word))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// Create starts a new session for the user.
func (s *Store) Create(ctx context.Context, userID, title string) (*Session, error) {
	now := time.Now().UTC()
	sess := Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.Title, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}
	return &sess, nil
}

// Get retrieves a session owned by the user.
func (s *Store) Get(ctx context.Context, sessionID, userID string) (*Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx,
		`SELECT s.id, s.user_id, s.title, s.created_at, s.updated_at,
		        (SELECT COUNT(*) FROM chat_messages m WHERE m.session_id = s.id)
		 FROM chat_sessions s WHERE s.id = ? AND s.user_id = ?`,
		sessionID, userID,
	).Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt, &sess.MessageCount)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return &sess, nil
}

// List returns the user's sessions, most recently active first.
func (s *Store) List(ctx context.Context, userID string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.user_id, s.title, s.created_at, s.updated_at,
		        (SELECT COUNT(*) FROM chat_messages m WHERE m.session_id = s.id)
		 FROM chat_sessions s WHERE s.user_id = ? ORDER BY s.updated_at DESC, s.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt, &sess.MessageCount); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Messages returns the full history of a session in turn order.
func (s *Store) Messages(ctx context.Context, sessionID, userID string) ([]Message, error) {
	if _, err := s.Get(ctx, sessionID, userID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, seq, role, content, created_at
		 FROM chat_messages WHERE session_id = ? ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Seq, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		m.Role = MessageRole(role)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// AppendTurn appends a question/answer pair atomically. Either both messages
// are recorded or neither is, so a failed turn never leaves a dangling
// question in the history.
func (s *Store) AppendTurn(ctx context.Context, sessionID, question, answer string) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	var nextSeq int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM chat_messages WHERE session_id = ?`, sessionID,
	).Scan(&nextSeq)
	if err != nil {
		return fmt.Errorf("reading next sequence: %w", err)
	}

	now := time.Now().UTC()
	for i, m := range []struct {
		role    MessageRole
		content string
	}{
		{RoleUser, question},
		{RoleAssistant, answer},
	} {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chat_messages (id, session_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), sessionID, nextSeq+i, string(m.role), m.content, now,
		)
		if err != nil {
			return fmt.Errorf("inserting %s message: %w", m.role, err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`, now, sessionID)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing turn: %w", err)
	}
	return nil
}

// Delete removes a session and its messages. Deleting a session the user
// does not own reports ErrSessionNotFound.
func (s *Store) Delete(ctx context.Context, sessionID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_sessions WHERE id = ? AND user_id = ?`, sessionID, userID)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	// Messages go with the session via ON DELETE CASCADE.
	return nil
}
