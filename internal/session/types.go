// Package session persists chat sessions and their message history, and
// selects the slice of history that fits a prompt token budget.
package session

import (
	"errors"
	"time"
)

// ErrSessionNotFound is returned when a session id does not exist or is not
// owned by the requesting user.
var ErrSessionNotFound = errors.New("session not found")

// MessageRole identifies who produced a message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Session is one conversation thread owned by a user.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message is a single turn in a session. Seq is assigned on append and is
// dense and strictly increasing within a session.
type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Seq       int         `json:"seq"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}
