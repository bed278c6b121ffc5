package handlers

import (
	"net/http"

	middleware "github.com/danielokafor/smartvault/internal/api/middlewares"
	"github.com/danielokafor/smartvault/internal/models"
	"github.com/danielokafor/smartvault/internal/services"
)

type SearchHandler struct {
	search *services.SearchService
}

func NewSearchHandler(search *services.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	}

	docs, err := h.search.Search(r.Context(), userID, query)
	if err != nil {
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": docs})
}
