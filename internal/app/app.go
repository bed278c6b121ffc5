package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/danielokafor/smartvault/internal/config"
	"github.com/danielokafor/smartvault/internal/core"
	db "github.com/danielokafor/smartvault/internal/core/database"
	"github.com/danielokafor/smartvault/internal/core/extractor"
	"github.com/danielokafor/smartvault/internal/core/llm"
	objectclient "github.com/danielokafor/smartvault/internal/core/object-client"
	"github.com/danielokafor/smartvault/internal/core/processor"
	"github.com/danielokafor/smartvault/internal/services"
)

type App struct {
	DBClient  core.DbClient
	Storage   core.ObjectClient
	Processor *processor.FileProcessor
	Server    *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	storage, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Object client initialized and ready.")

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm, %w", err)
	}

	docExtractor := extractor.NewDocExtractor()

	proc := processor.NewFileProcessor(dbClient, dbClient, storage, docExtractor, embedder, llmProvider, &processor.Config{
		Workers:    cfg.WorkerCount,
		QueueDepth: cfg.QueueDepth,
	})

	userSvc := services.NewUserService(dbClient, cfg.JWTSecret)
	docSvc := services.NewDocumentService(dbClient, storage, proc, cfg.BucketName)
	folderSvc := services.NewFolderService(dbClient)
	shareSvc := services.NewShareService(dbClient, storage, cfg.JWTSecret)
	searchSvc := services.NewSearchService(dbClient, embedder)

	server := NewServer(cfg, userSvc, docSvc, folderSvc, shareSvc, searchSvc)

	return &App{DBClient: dbClient, Storage: storage, Processor: proc, Server: server}, nil
}

func (a *App) Close() {
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
