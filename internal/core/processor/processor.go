package processor

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danielokafor/smartvault/internal/core"
	"github.com/danielokafor/smartvault/internal/models"
)

// Pipeline tuning constants.
const (
	// DuplicateThreshold is the minimum cosine similarity (inclusive) for a
	// same-owner neighbor to count as a duplicate.
	DuplicateThreshold = 0.88

	// NeighborK is the nearest-neighbor fan-out of the duplicate scan.
	NeighborK = 5

	// SummarySourceLimit bounds the content prefix sent for enrichment.
	SummarySourceLimit = 4000

	// EmbedInputLimit bounds the text handed to the embedding model.
	EmbedInputLimit = 8000

	// MaxTags caps how many tags are kept from an enrichment response.
	MaxTags = 6
)

// Config tunes the worker pool and retry behaviour.
//
// Workers:      number of concurrent worker slots.
// QueueDepth:   buffered job queue capacity; Enqueue blocks when full.
// MaxAttempts:  deliveries per document before it is marked failed.
// RetryBackoff: base delay before a failed job is redelivered; scales
//
//	linearly with the attempt number.
//
// StageTimeout: per-stage bound on external calls.
type Config struct {
	Workers      int
	QueueDepth   int
	MaxAttempts  int
	RetryBackoff time.Duration
	StageTimeout time.Duration
}

func (c *Config) withDefaults() Config {
	out := Config{Workers: 4, QueueDepth: 64, MaxAttempts: 3, RetryBackoff: 5 * time.Second, StageTimeout: 2 * time.Minute}
	if c == nil {
		return out
	}
	if c.Workers > 0 {
		out.Workers = c.Workers
	}
	if c.QueueDepth > 0 {
		out.QueueDepth = c.QueueDepth
	}
	if c.MaxAttempts > 0 {
		out.MaxAttempts = c.MaxAttempts
	}
	if c.RetryBackoff > 0 {
		out.RetryBackoff = c.RetryBackoff
	}
	if c.StageTimeout > 0 {
		out.StageTimeout = c.StageTimeout
	}
	return out
}

// job is one delivery of a document to a worker slot. Attempt counts from 1.
type job struct {
	DocID   string
	Attempt int
}

// FileProcessor drives the document pipeline: fetch, extract, enrich,
// embed, duplicate scan, persist. Jobs flow through a buffered channel and
// are handled one document end-to-end per worker invocation. Delivery is
// at-least-once: a job whose final persist fails is redelivered, and every
// run recomputes all derived fields from scratch.
type FileProcessor struct {
	store     core.DocumentStore
	vectors   core.VectorStore
	blobs     core.BlobFetcher
	extractor core.TextExtractor
	embedder  core.EmbeddingProvider
	llm       core.LLMProvider
	cfg       Config
	jobs      chan job
}

func NewFileProcessor(
	store core.DocumentStore,
	vectors core.VectorStore,
	blobs core.BlobFetcher,
	extractor core.TextExtractor,
	embedder core.EmbeddingProvider,
	llm core.LLMProvider,
	cfg *Config,
) *FileProcessor {
	c := cfg.withDefaults()
	return &FileProcessor{
		store: store, vectors: vectors, blobs: blobs,
		extractor: extractor, embedder: embedder, llm: llm,
		cfg:  c,
		jobs: make(chan job, c.QueueDepth),
	}
}

// Enqueue schedules a document for processing. Blocks when the queue is full.
func (p *FileProcessor) Enqueue(docID string) {
	p.jobs <- job{DocID: docID, Attempt: 1}
}

// Start launches the worker pool. Workers run until ctx is cancelled; jobs
// already picked up are finished before a worker exits.
func (p *FileProcessor) Start(ctx context.Context, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = p.cfg.Workers
	}
	g, gctx := errgroup.WithContext(ctx)
	for w := 1; w <= numWorkers; w++ {
		w := w
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					log.Printf("processor: worker %d shutting down", w)
					return nil
				case j := <-p.jobs:
					if err := p.ProcessOne(gctx, j.DocID); err != nil {
						log.Printf("processor: document %s attempt %d failed: %v", j.DocID, j.Attempt, err)
						p.retry(gctx, j)
					}
				}
			}
		})
	}
	go func() {
		_ = g.Wait()
	}()
}

// retry redelivers a failed job after a backoff, or marks the document
// failed once attempts run out. Redelivery is fire-and-forget so a full
// queue never deadlocks a worker slot.
func (p *FileProcessor) retry(ctx context.Context, j job) {
	if j.Attempt >= p.cfg.MaxAttempts {
		log.Printf("processor: document %s exhausted %d attempts", j.DocID, j.Attempt)
		if err := p.store.UpdateDocumentStatus(ctx, j.DocID, models.StatusFailed); err != nil {
			log.Printf("processor: mark failed %s: %v", j.DocID, err)
		}
		return
	}
	next := job{DocID: j.DocID, Attempt: j.Attempt + 1}
	backoff := time.Duration(j.Attempt) * p.cfg.RetryBackoff
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
			select {
			case p.jobs <- next:
			case <-ctx.Done():
			}
		}
	}()
}

// StaleLister is the slice of the store the recovery sweep needs.
type StaleLister interface {
	ListStaleDocumentIDs(ctx context.Context, cutoff time.Time) ([]string, error)
}

// RecoverStale re-enqueues documents stuck in pending or processing longer
// than maxAge. A job lost to a crash is redelivered this way, preserving
// at-least-once semantics across process restarts.
func (p *FileProcessor) RecoverStale(ctx context.Context, lister StaleLister, maxAge time.Duration) error {
	ids, err := lister.ListStaleDocumentIDs(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return err
	}
	for _, id := range ids {
		log.Printf("processor: recovering stale document %s", id)
		select {
		case p.jobs <- job{DocID: id, Attempt: 1}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
