package composer

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/docsentry/docsentry/internal/access"
	"github.com/docsentry/docsentry/internal/identity"
	"github.com/docsentry/docsentry/internal/session"
)

// RegisterRoutes mounts the chat and session API routes.
func RegisterRoutes(r chi.Router, service *Service, sessions *session.Store) {
	r.Post("/api/chat/send", handleSend(service, sessions))
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", handleListSessions(sessions))
		r.Get("/{id}", handleGetSession(sessions))
		r.Get("/{id}/messages", handleMessages(sessions))
		r.Delete("/{id}", handleDeleteSession(sessions))
	})
}

type sendRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

func handleSend(service *Service, sessions *session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			http.Error(w, `{"error":"missing X-User-ID header"}`, http.StatusUnauthorized)
			return
		}

		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		req.Question = strings.TrimSpace(req.Question)
		if req.Question == "" {
			http.Error(w, `{"error":"question is required"}`, http.StatusBadRequest)
			return
		}

		// A missing session id starts a fresh session titled after the
		// first question.
		if req.SessionID == "" {
			sess, err := sessions.Create(r.Context(), userID, session.TitleFromPrompt(req.Question))
			if err != nil {
				writeError(w, err)
				return
			}
			req.SessionID = sess.ID
		}

		answer, err := service.Compose(r.Context(), req.SessionID, userID, req.Question)
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(answer)
	}
}

func handleListSessions(sessions *session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			http.Error(w, `{"error":"missing X-User-ID header"}`, http.StatusUnauthorized)
			return
		}

		list, err := sessions.List(r.Context(), userID)
		if err != nil {
			writeError(w, err)
			return
		}
		if list == nil {
			list = []session.Session{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(list)
	}
}

func handleGetSession(sessions *session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			http.Error(w, `{"error":"missing X-User-ID header"}`, http.StatusUnauthorized)
			return
		}

		sess, err := sessions.Get(r.Context(), chi.URLParam(r, "id"), userID)
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sess)
	}
}

func handleMessages(sessions *session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			http.Error(w, `{"error":"missing X-User-ID header"}`, http.StatusUnauthorized)
			return
		}

		messages, err := sessions.Messages(r.Context(), chi.URLParam(r, "id"), userID)
		if err != nil {
			writeError(w, err)
			return
		}
		if messages == nil {
			messages = []session.Message{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(messages)
	}
}

func handleDeleteSession(sessions *session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			http.Error(w, `{"error":"missing X-User-ID header"}`, http.StatusUnauthorized)
			return
		}

		if err := sessions.Delete(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, identity.ErrUnknownUser):
		status = http.StatusUnauthorized
	case errors.Is(err, access.ErrUnknownRole):
		status = http.StatusForbidden
	case errors.Is(err, session.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrGenerationUnavailable):
		status = http.StatusBadGateway
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
