package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/danielokafor/smartvault/internal/api/handlers"
	appMiddleware "github.com/danielokafor/smartvault/internal/api/middlewares"
	"github.com/danielokafor/smartvault/internal/config"
	"github.com/danielokafor/smartvault/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(
	cfg *config.Config,
	users *services.UserService,
	documents *services.DocumentService,
	folders *services.FolderService,
	shares *services.ShareService,
	search *services.SearchService,
) *Server {
	authHandler := handlers.NewAuthHandler(users)
	docHandler := handlers.NewDocumentHandler(documents)
	folderHandler := handlers.NewFolderHandler(folders)
	shareHandler := handlers.NewShareHandler(shares)
	searchHandler := handlers.NewSearchHandler(search)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/auth/register", authHandler.Register)
		api.Post("/auth/login", authHandler.Login)
		api.Get("/share/{token}", shareHandler.Info)
		api.Post("/share/{token}/verify", shareHandler.Verify)
		api.Get("/share/{token}/download", shareHandler.Download)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWT(cfg.JWTSecret))

			protected.Post("/documents/upload", docHandler.Upload)
			protected.Get("/documents", docHandler.List)
			protected.Delete("/documents/batch", docHandler.DeleteBatch)
			protected.Delete("/documents/{id}", docHandler.Delete)
			protected.Get("/documents/{id}/download", docHandler.Download)
			protected.Get("/documents/{id}/preview", docHandler.Preview)
			protected.Get("/documents/{id}/duplicates", docHandler.Duplicates)

			protected.Post("/folders", folderHandler.Create)
			protected.Get("/folders", folderHandler.List)
			protected.Delete("/folders/{id}", folderHandler.Delete)

			protected.Post("/share-links", shareHandler.Create)
			protected.Get("/share-links", shareHandler.List)
			protected.Delete("/share-links/{id}", shareHandler.Revoke)

			protected.Get("/search", searchHandler.Search)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
