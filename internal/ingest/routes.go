package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/docsentry/docsentry/internal/access"
	"github.com/docsentry/docsentry/internal/extract"
	"github.com/docsentry/docsentry/internal/identity"
)

const maxUploadBytes = 32 << 20 // 32 MiB

// RegisterRoutes mounts the document API routes.
func RegisterRoutes(r chi.Router, service *Service) {
	r.Route("/api/documents", func(r chi.Router) {
		r.Get("/", handleList(service))
		r.Post("/", handleUpload(service))
		r.Get("/{id}", handleGet(service))
		r.Delete("/{id}", handleDelete(service))
		r.Put("/{id}/tier", handleRetier(service))
	})
}

func handleUpload(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			http.Error(w, `{"error":"missing X-User-ID header"}`, http.StatusUnauthorized)
			return
		}

		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			http.Error(w, `{"error":"invalid multipart request"}`, http.StatusBadRequest)
			return
		}
		tier, err := access.ParseTier(r.FormValue("tier"))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, `{"error":"file field is required"}`, http.StatusBadRequest)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			http.Error(w, `{"error":"reading upload"}`, http.StatusBadRequest)
			return
		}
		text, err := extract.Text(header.Filename, data)
		if err != nil {
			writeJSONError(w, http.StatusUnsupportedMediaType, err)
			return
		}

		title := r.FormValue("title")
		if title == "" {
			title = header.Filename
		}

		doc, err := service.Ingest(r.Context(), userID, title, tier, text)
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(doc)
	}
}

func handleList(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			http.Error(w, `{"error":"missing X-User-ID header"}`, http.StatusUnauthorized)
			return
		}

		docs, err := service.List(r.Context(), userID)
		if err != nil {
			writeError(w, err)
			return
		}
		if docs == nil {
			docs = []Document{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(docs)
	}
}

func handleGet(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			http.Error(w, `{"error":"missing X-User-ID header"}`, http.StatusUnauthorized)
			return
		}

		doc, err := service.Get(r.Context(), userID, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(doc)
	}
}

func handleDelete(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			http.Error(w, `{"error":"missing X-User-ID header"}`, http.StatusUnauthorized)
			return
		}

		if err := service.Remove(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleRetier(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			http.Error(w, `{"error":"missing X-User-ID header"}`, http.StatusUnauthorized)
			return
		}

		var body struct {
			Tier string `json:"tier"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		doc, err := service.Retier(r.Context(), userID, chi.URLParam(r, "id"), access.Tier(body.Tier))
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(doc)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, identity.ErrUnknownUser):
		status = http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, ErrDocumentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, access.ErrInvalidTier), errors.Is(err, ErrEmptyDocument):
		status = http.StatusBadRequest
	}
	writeJSONError(w, status, err)
}

// writeJSONError encodes the error message instead of splicing it into a
// JSON literal, so quotes in echoed input cannot break the body.
func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
