package dashboard

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/docsentry/docsentry/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// chatRequest is the incoming WebSocket message format.
type chatRequest struct {
	Type      string `json:"type"`       // "ask"
	SessionID string `json:"session_id"` // empty for new sessions
	Content   string `json:"content"`
}

// chatResponse is the outgoing WebSocket message format.
type chatResponse struct {
	Type      string   `json:"type"` // "response" or "error"
	SessionID string   `json:"session_id"`
	Content   string   `json:"content"`
	HTML      string   `json:"html,omitempty"`
	Sources   []string `json:"sources,omitempty"`
}

func (d *Dashboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// The browser cannot set headers on a WebSocket handshake, so identity
	// rides on the query string.
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "user query parameter is required", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("dashboard: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("dashboard: websocket read: %v", err)
			}
			return
		}

		var req chatRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			d.sendError(conn, "", "invalid message format")
			continue
		}
		if req.Content == "" {
			d.sendError(conn, req.SessionID, "content is required")
			continue
		}

		switch req.Type {
		case "ask":
			d.handleAsk(conn, r, userID, req)
		default:
			d.sendError(conn, req.SessionID, "unknown message type: "+req.Type)
		}
	}
}

func (d *Dashboard) handleAsk(conn *websocket.Conn, r *http.Request, userID string, req chatRequest) {
	ctx := r.Context()
	sessionID := req.SessionID

	if sessionID == "" {
		sess, err := d.sessions.Create(ctx, userID, session.TitleFromPrompt(req.Content))
		if err != nil {
			d.sendError(conn, "", "failed to create session: "+err.Error())
			return
		}
		sessionID = sess.ID
	}

	answer, err := d.composer.Compose(ctx, sessionID, userID, req.Content)
	if err != nil {
		d.sendError(conn, sessionID, "question failed: "+err.Error())
		return
	}

	d.sendResponse(conn, chatResponse{
		Type:      "response",
		SessionID: sessionID,
		Content:   answer.Text,
		HTML:      renderMarkdown(answer.Text),
		Sources:   answer.Sources,
	})
}

func (d *Dashboard) sendResponse(conn *websocket.Conn, resp chatResponse) {
	if err := conn.WriteJSON(resp); err != nil {
		log.Printf("dashboard: websocket write: %v", err)
	}
}

func (d *Dashboard) sendError(conn *websocket.Conn, sessionID, message string) {
	resp := chatResponse{
		Type:      "error",
		SessionID: sessionID,
		Content:   message,
	}
	if err := conn.WriteJSON(resp); err != nil {
		log.Printf("dashboard: websocket write error: %v", err)
	}
}
