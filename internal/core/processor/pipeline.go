package processor

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/danielokafor/smartvault/internal/models"
)

// ProcessOne runs the full pipeline for a single document. Every stage is
// wrapped in its own failure boundary: a stage error is logged and leaves
// that stage's output at its prior value, and the run carries on. Only the
// final persist returns an error, which the queue answers with redelivery.
func (p *FileProcessor) ProcessOne(ctx context.Context, docID string) error {
	doc, err := p.store.GetDocumentByID(ctx, docID)
	if err != nil {
		return fmt.Errorf("load document %s: %w", docID, err)
	}
	if doc == nil {
		// Deleted before the job ran; nothing to do.
		log.Printf("processor: document %s no longer exists, dropping job", docID)
		return nil
	}
	if err := p.store.UpdateDocumentStatus(ctx, docID, models.StatusProcessing); err != nil {
		log.Printf("processor: mark processing %s: %v", docID, err)
	}

	// Stage 1+2: fetch and extract. Failure yields empty content.
	if content, err := p.extractContent(ctx, doc); err != nil {
		log.Printf("processor: %s: %v", docID, err)
		doc.Content = ""
	} else {
		doc.Content = content
	}

	// Stage 3: enrichment. Nothing to summarize when extraction came up
	// empty; summary and tags stay unset.
	if doc.Content != "" {
		if summary, tags, err := p.enrich(ctx, doc.Content); err != nil {
			log.Printf("processor: %s: %v", docID, err)
		} else {
			doc.Summary = summary
			doc.Tags = tags
		}
	}

	// Stage 4: embedding + vector upsert. On failure the duplicate scan is
	// skipped for this run and the prior duplicates set is written back
	// untouched.
	embedding, err := p.embedAndStore(ctx, doc)
	if err != nil {
		log.Printf("processor: %s: %v", docID, err)
	}

	// Stage 5: duplicate scan, only when this run produced an embedding.
	if len(embedding) > 0 {
		if dups, err := p.scanDuplicates(ctx, doc, embedding); err != nil {
			log.Printf("processor: %s: %v", docID, err)
		} else {
			doc.Duplicates = dups
		}
	}

	// Final persist: all derived fields in one write. There is no
	// intermediate checkpoint, so a failure here loses the whole run and a
	// redelivery redoes it from scratch.
	doc.Status = models.StatusReady
	if err := p.store.SaveDerived(ctx, doc); err != nil {
		return fmt.Errorf("%w: document %s: %v", ErrPersist, docID, err)
	}
	return nil
}

// extractContent fetches the raw bytes and runs the extraction strategy
// selected by the document's media type.
func (p *FileProcessor) extractContent(ctx context.Context, doc *models.Document) (string, error) {
	sctx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
	defer cancel()

	data, err := p.blobs.FetchBlob(sctx, doc.StorageURL)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrFetch, doc.StorageURL, err)
	}
	text, err := p.extractor.Extract(sctx, data, doc.MediaType)
	if err != nil {
		return "", fmt.Errorf("%w: media type %s: %v", ErrExtraction, doc.MediaType, err)
	}
	return text, nil
}

const tagsMarker = "Tags:"

// enrich asks the generative model for a short summary plus comma-separated
// tags and parses them out of the response.
func (p *FileProcessor) enrich(ctx context.Context, content string) (string, []string, error) {
	sctx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"Summarize the following document in 3 sentences, then list up to %d tags (comma separated) on a final line starting with %q.\n\n%s",
		MaxTags, tagsMarker, truncate(content, SummarySourceLimit),
	)
	out, err := p.llm.Generate(sctx, "", prompt)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrEnrichment, err)
	}
	summary, tags := parseEnrichment(out)
	return summary, tags, nil
}

// parseEnrichment splits a model response on the tags marker. The part
// before is the summary; the part after is split on commas, trimmed, and
// capped at MaxTags non-empty tokens in order.
func parseEnrichment(out string) (string, []string) {
	before, after, _ := strings.Cut(out, tagsMarker)
	summary := strings.TrimSpace(before)

	var tags []string
	for _, tok := range strings.Split(after, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		tags = append(tags, tok)
		if len(tags) == MaxTags {
			break
		}
	}
	return summary, tags
}

// embedAndStore computes the document embedding and upserts it into the
// vector store. Empty content falls back to the file name so the embedding
// is never computed over an empty string.
func (p *FileProcessor) embedAndStore(ctx context.Context, doc *models.Document) ([]float32, error) {
	sctx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
	defer cancel()

	input := doc.Content
	if input == "" {
		input = doc.FileName
	}
	input = truncate(input, EmbedInputLimit)

	vec, err := p.embedder.EmbedText(sctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if err := p.vectors.UpsertVector(sctx, doc.ID, vec); err != nil {
		return nil, fmt.Errorf("%w: upsert: %v", ErrVectorStore, err)
	}
	return vec, nil
}

// scanDuplicates queries the K nearest neighbors, keeps same-owner
// candidates at or above the similarity threshold, and force-inserts the
// reverse edge into each kept peer's set. The returned slice replaces this
// document's own set wholesale at the final persist; peers only ever gain
// the edge here and may drop it again on their own next run.
func (p *FileProcessor) scanDuplicates(ctx context.Context, doc *models.Document, embedding []float32) ([]models.DuplicateRef, error) {
	sctx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
	defer cancel()

	neighbors, err := p.vectors.NearestVectors(sctx, doc.ID, embedding, NeighborK)
	if err != nil {
		return nil, fmt.Errorf("%w: nearest: %v", ErrVectorStore, err)
	}

	kept := make([]models.DuplicateRef, 0, len(neighbors))
	for _, n := range neighbors {
		if n.DocumentID == doc.ID {
			continue
		}
		owner, err := p.store.GetDocumentOwner(sctx, n.DocumentID)
		if err != nil {
			log.Printf("processor: owner lookup %s: %v", n.DocumentID, err)
			continue
		}
		if owner == "" || owner != doc.OwnerID {
			// Duplicate relationships never cross ownership boundaries.
			continue
		}
		if n.Similarity >= DuplicateThreshold {
			kept = append(kept, models.DuplicateRef{PeerID: n.DocumentID, Score: n.Similarity})
		}
	}

	for _, ref := range kept {
		if err := p.store.AddDuplicateEdge(sctx, ref.PeerID, doc.ID, ref.Score); err != nil {
			log.Printf("processor: peer edge %s -> %s: %v", ref.PeerID, doc.ID, err)
		}
	}
	return kept, nil
}

// truncate returns the first n characters of s.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
