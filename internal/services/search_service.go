package services

import (
	"context"
	"errors"
	"log"

	"github.com/danielokafor/smartvault/internal/core"
	"github.com/danielokafor/smartvault/internal/models"
)

const searchLimit = 10

type SearchService struct {
	db       core.DbClient
	embedder core.EmbeddingProvider
}

func NewSearchService(db core.DbClient, embedder core.EmbeddingProvider) *SearchService {
	return &SearchService{db: db, embedder: embedder}
}

// Search runs a hybrid query: Postgres full-text search over filename,
// summary and content, merged with a semantic nearest-neighbor pass over
// the document embeddings. Text hits rank first; semantic hits fill in
// behind them, deduplicated by document id. A semantic-side failure
// degrades to text-only results rather than failing the search.
func (s *SearchService) Search(ctx context.Context, ownerID, query string) ([]models.Document, error) {
	if query == "" {
		return nil, errors.New("query is required")
	}

	textHits, err := s.db.SearchDocumentsByText(ctx, ownerID, query, searchLimit)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(textHits))
	results := make([]models.Document, 0, len(textHits))
	for _, d := range textHits {
		seen[d.ID] = true
		results = append(results, d)
	}

	semantic, err := s.semanticSearch(ctx, ownerID, query)
	if err != nil {
		log.Printf("search: semantic pass failed, returning text results only: %v", err)
		return results, nil
	}
	for _, d := range semantic {
		if seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		results = append(results, d)
	}
	return results, nil
}

func (s *SearchService) semanticSearch(ctx context.Context, ownerID, query string) ([]models.Document, error) {
	vec, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, err
	}
	neighbors, err := s.db.NearestVectors(ctx, "", vec, searchLimit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		ids = append(ids, n.DocumentID)
	}
	// Ownership filter happens here: only the caller's documents come back.
	return s.db.GetDocumentsByIDs(ctx, ownerID, ids)
}
