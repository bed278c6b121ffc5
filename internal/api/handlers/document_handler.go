package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	middleware "github.com/danielokafor/smartvault/internal/api/middlewares"
	"github.com/danielokafor/smartvault/internal/models"
	"github.com/danielokafor/smartvault/internal/services"
)

const maxUploadBytes = 32 << 20 // 32 MB

type DocumentHandler struct {
	documents *services.DocumentService
}

func NewDocumentHandler(documents *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// Upload handles multipart file upload, blob storage, DB insert, and
// enqueueing the processing job.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	// Strip any path components the client smuggled in.
	cleanFilename := filepath.Base(header.Filename)

	mediaType := header.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	folderID := r.FormValue("folder_id")
	if folderID == "root" {
		folderID = ""
	}

	doc, err := h.documents.Upload(r.Context(), userID, folderID, cleanFilename, mediaType, header.Size, file)
	if err != nil {
		http.Error(w, fmt.Sprintf("upload failed: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	var folderID *string
	if raw := r.URL.Query().Get("folder_id"); raw != "" {
		id := raw
		if id == "root" {
			id = ""
		}
		folderID = &id
	}
	onlyDuplicates := r.URL.Query().Get("has_duplicates") == "true"

	docs, err := h.documents.List(r.Context(), userID, folderID, onlyDuplicates)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	err := h.documents.Delete(r.Context(), userID, chi.URLParam(r, "id"))
	if errors.Is(err, services.ErrDocumentNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type deleteBatchRequest struct {
	DocumentIDs []string `json:"document_ids"`
}

func (h *DocumentHandler) DeleteBatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	var req deleteBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.DocumentIDs) == 0 {
		http.Error(w, "document_ids must be a non-empty array", http.StatusBadRequest)
		return
	}

	n, err := h.documents.DeleteBatch(r.Context(), userID, req.DocumentIDs)
	if err != nil {
		http.Error(w, "batch delete failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted": n})
}

func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	h.signedURL(w, r, true)
}

func (h *DocumentHandler) Preview(w http.ResponseWriter, r *http.Request) {
	h.signedURL(w, r, false)
}

func (h *DocumentHandler) signedURL(w http.ResponseWriter, r *http.Request, attachment bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	url, err := h.documents.DownloadURL(r.Context(), userID, chi.URLParam(r, "id"), attachment)
	if errors.Is(err, services.ErrDocumentNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "could not sign url", http.StatusInternalServerError)
		return
	}
	field := "preview_url"
	if attachment {
		field = "download_url"
	}
	writeJSON(w, http.StatusOK, map[string]string{field: url})
}

func (h *DocumentHandler) Duplicates(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	entries, err := h.documents.ListDuplicates(r.Context(), userID, chi.URLParam(r, "id"))
	if errors.Is(err, services.ErrDocumentNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to get duplicates", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []models.DuplicateEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"duplicates": entries})
}
