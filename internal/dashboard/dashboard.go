// Package dashboard serves the browser chat UI: an embedded single-page
// front end, a WebSocket chat endpoint, and rendered session transcripts.
package dashboard

import (
	"github.com/go-chi/chi/v5"

	"github.com/docsentry/docsentry/internal/composer"
	"github.com/docsentry/docsentry/internal/session"
)

// Dashboard provides the chat-first web interface.
type Dashboard struct {
	composer *composer.Service
	sessions *session.Store
}

// New creates a new Dashboard.
func New(comp *composer.Service, sessions *session.Store) *Dashboard {
	return &Dashboard{composer: comp, sessions: sessions}
}

// RegisterRoutes mounts all dashboard routes onto the given router.
func (d *Dashboard) RegisterRoutes(r chi.Router) {
	r.Get("/", d.ServeIndex)
	r.Get("/ws/chat", d.handleWebSocket)
	r.Get("/api/sessions/{id}/transcript", d.handleTranscript)
}
