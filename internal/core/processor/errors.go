package processor

import "errors"

// Stage errors. Every stage failure from fetch through the vector store is
// caught at its stage boundary, logged, and converted into "field left at
// its prior value". Only ErrPersist escapes ProcessOne and reaches the
// queue's retry policy.
var (
	ErrFetch       = errors.New("source bytes unavailable")
	ErrExtraction  = errors.New("content extraction failed")
	ErrEnrichment  = errors.New("enrichment failed")
	ErrEmbedding   = errors.New("embedding failed")
	ErrVectorStore = errors.New("vector store operation failed")
	ErrPersist     = errors.New("final persist failed")
)
