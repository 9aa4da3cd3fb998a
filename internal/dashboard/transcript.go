package dashboard

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		highlighting.NewHighlighting(
			highlighting.WithStyle("github"),
		),
	),
	goldmark.WithParserOptions(
		parser.WithAutoHeadingID(),
	),
)

// renderMarkdown converts model output to HTML. Raw HTML in the input is
// escaped by goldmark's default renderer, which is what we want for
// model-generated text.
func renderMarkdown(text string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		log.Printf("dashboard: markdown render: %v", err)
		return template.HTMLEscapeString(text)
	}
	return buf.String()
}

var transcriptTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }
.msg { margin: 1rem 0; padding: 0.75rem 1rem; border-radius: 8px; }
.user { background: #eef3ff; }
.assistant { background: #f5f5f5; }
.role { font-size: 0.75rem; color: #666; text-transform: uppercase; margin-bottom: 0.25rem; }
pre { overflow-x: auto; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{range .Messages}}<div class="msg {{.Role}}"><div class="role">{{.Role}}</div>{{.Body}}</div>
{{end}}</body>
</html>
`))

type transcriptMessage struct {
	Role string
	Body template.HTML
}

// handleTranscript renders a session's history as a standalone HTML page.
func (d *Dashboard) handleTranscript(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = r.URL.Query().Get("user")
	}
	if userID == "" {
		http.Error(w, "user identity is required", http.StatusUnauthorized)
		return
	}

	sessionID := chi.URLParam(r, "id")
	sess, err := d.sessions.Get(r.Context(), sessionID, userID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	messages, err := d.sessions.Messages(r.Context(), sessionID, userID)
	if err != nil {
		http.Error(w, fmt.Sprintf("loading messages: %v", err), http.StatusInternalServerError)
		return
	}

	rendered := make([]transcriptMessage, len(messages))
	for i, m := range messages {
		rendered[i] = transcriptMessage{
			Role: string(m.Role),
			Body: template.HTML(renderMarkdown(m.Content)),
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := transcriptTemplate.Execute(w, map[string]any{
		"Title":    sess.Title,
		"Messages": rendered,
	}); err != nil {
		log.Printf("dashboard: transcript render: %v", err)
	}
}
