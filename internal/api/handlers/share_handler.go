package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	middleware "github.com/danielokafor/smartvault/internal/api/middlewares"
	"github.com/danielokafor/smartvault/internal/services"
)

type ShareHandler struct {
	shares *services.ShareService
}

func NewShareHandler(shares *services.ShareService) *ShareHandler {
	return &ShareHandler{shares: shares}
}

type createShareRequest struct {
	DocumentID string `json:"document_id"`
	ExpiresIn  string `json:"expires_in"`
	Password   string `json:"password"`
}

func (h *ShareHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	var req createShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DocumentID == "" {
		http.Error(w, "document_id is required", http.StatusBadRequest)
		return
	}

	link, err := h.shares.Create(r.Context(), userID, req.DocumentID, req.ExpiresIn, req.Password)
	if errors.Is(err, services.ErrDocumentNotFound) {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

func (h *ShareHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	links, err := h.shares.List(r.Context(), userID, r.URL.Query().Get("document_id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func (h *ShareHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	err := h.shares.Revoke(r.Context(), userID, chi.URLParam(r, "id"))
	if errors.Is(err, services.ErrShareLinkNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "revoke failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Info is public. It tells the share page what it is about to download
// and whether a password gate applies.
func (h *ShareHandler) Info(w http.ResponseWriter, r *http.Request) {
	info, err := h.shares.Info(r.Context(), chi.URLParam(r, "token"))
	if errors.Is(err, services.ErrShareLinkNotFound) {
		http.Error(w, "link not found or expired", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type verifyShareRequest struct {
	Password string `json:"password"`
}

// Verify is public. On a correct password it hands back a short-lived
// download token for the Download endpoint.
func (h *ShareHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	downloadToken, err := h.shares.Verify(r.Context(), chi.URLParam(r, "token"), req.Password)
	switch {
	case errors.Is(err, services.ErrShareLinkNotFound):
		http.Error(w, "link not found or expired", http.StatusNotFound)
	case errors.Is(err, services.ErrSharePasswordInvalid):
		http.Error(w, "invalid password", http.StatusUnauthorized)
	case errors.Is(err, services.ErrShareLinkNoPassword):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case err != nil:
		http.Error(w, "verify failed", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"download_token": downloadToken})
	}
}

// Download is public. Password protected links must present the token
// issued by Verify.
func (h *ShareHandler) Download(w http.ResponseWriter, r *http.Request) {
	url, err := h.shares.Download(r.Context(), chi.URLParam(r, "token"), r.URL.Query().Get("dt"))
	switch {
	case errors.Is(err, services.ErrShareLinkNotFound):
		http.Error(w, "link not found or expired", http.StatusNotFound)
	case errors.Is(err, services.ErrSharePasswordRequired):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case err != nil:
		http.Error(w, "download failed", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"download_url": url})
	}
}
