package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	middleware "github.com/danielokafor/smartvault/internal/api/middlewares"
	"github.com/danielokafor/smartvault/internal/services"
)

type FolderHandler struct {
	folders *services.FolderService
}

func NewFolderHandler(folders *services.FolderService) *FolderHandler {
	return &FolderHandler{folders: folders}
}

type createFolderRequest struct {
	Name     string `json:"name"`
	ParentID string `json:"parent_id"`
}

func (h *FolderHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	var req createFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ParentID == "root" {
		req.ParentID = ""
	}

	folder, err := h.folders.Create(r.Context(), userID, req.Name, req.ParentID)
	if errors.Is(err, services.ErrFolderExists) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, folder)
}

func (h *FolderHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	parentID := r.URL.Query().Get("parent_id")
	if parentID == "root" {
		parentID = ""
	}

	folders, err := h.folders.List(r.Context(), userID, parentID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, folders)
}

func (h *FolderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	err := h.folders.Delete(r.Context(), userID, chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, services.ErrFolderNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrFolderNotEmpty), errors.Is(err, services.ErrFolderHasChildren):
		http.Error(w, err.Error(), http.StatusConflict)
	case err != nil:
		http.Error(w, "delete failed", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}
