package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielokafor/smartvault/internal/config"
	db "github.com/danielokafor/smartvault/internal/core/database"
	"github.com/danielokafor/smartvault/internal/core/extractor"
	"github.com/danielokafor/smartvault/internal/core/llm"
	objectclient "github.com/danielokafor/smartvault/internal/core/object-client"
	"github.com/danielokafor/smartvault/internal/core/processor"
)

// How long a document may sit in pending or processing before the sweep
// treats its job as lost and re-enqueues it.
const staleAfter = 10 * time.Minute

const sweepInterval = 1 * time.Minute

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c
		cancel()
	}()

	cfg := config.LoadConfig()

	dbClient, err := db.NewDatabaseClient(ctx, cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer dbClient.Close()

	storage, err := objectclient.NewS3Client(ctx, cfg)
	if err != nil {
		log.Fatalf("object client: %v", err)
	}

	embedder, err := llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		log.Fatalf("embedder: %v", err)
	}
	llmProvider, err := llm.NewGeminiLLM(ctx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		log.Fatalf("llm: %v", err)
	}

	proc := processor.NewFileProcessor(dbClient, dbClient, storage, extractor.NewDocExtractor(), embedder, llmProvider, &processor.Config{
		Workers:    cfg.WorkerCount,
		QueueDepth: cfg.QueueDepth,
	})
	proc.Start(ctx, cfg.WorkerCount)

	log.Printf("worker pool running with %d workers; sweeping every %s", cfg.WorkerCount, sweepInterval)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("shutting down...")
			return
		case <-ticker.C:
			if err := proc.RecoverStale(ctx, dbClient, staleAfter); err != nil {
				log.Printf("stale sweep: %v", err)
			}
		}
	}
}
