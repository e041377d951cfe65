package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mikeboe/deep-research/pkg/chat"
	"github.com/mikeboe/deep-research/pkg/clients"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/embeddings"
	"github.com/mikeboe/deep-research/pkg/research/tools"
	"github.com/mikeboe/deep-research/pkg/server"
	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	cfg := config.Load()
	ctx := context.Background()

	// Database Connection
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		fatal("Failed to connect to database", err)
	}
	defer db.Close()

	// Initialize Schema
	if err := db.InitSchema(ctx); err != nil {
		fatal("Failed to initialize schema", err)
	}

	models, err := clients.NewModels(ctx, cfg)
	if err != nil {
		fatal("Failed to initialize language models", err)
	}
	search, err := tools.NewSearchService(cfg)
	if err != nil {
		fatal("Failed to initialize search service", err)
	}

	// Findings index and Q&A need Gemini embeddings.
	var index server.FindingsIndex
	var asker server.Asker
	if cfg.GoogleApiKey != "" {
		store, err := vectorstore.NewPGVectorStore(db.Pool, cfg.CollectionName)
		if err != nil {
			fatal("Invalid collection name", err)
		}
		if err := db.InitFindings(ctx, cfg.CollectionName, cfg.EmbeddingDimension); err != nil {
			fatal("Failed to initialize findings table", err)
		}
		embedder, err := embeddings.NewGeminiEmbedder(ctx, cfg.GoogleApiKey, cfg.EmbeddingModel, cfg.EmbeddingDimension)
		if err != nil {
			fatal("Failed to create embedder", err)
		}
		indexer := vectorstore.NewIndexer(store, embedder, cfg.ChunkSize, cfg.ChunkOverlap)
		index = indexer

		chatSvc, err := chat.NewService(ctx, cfg, indexer)
		if err != nil {
			fatal("Failed to init chat service", err)
		}
		asker = chatSvc
	} else {
		slog.Warn("GOOGLE_API_KEY not set, findings index and Q&A are disabled")
	}

	// Initialize Service & Handler
	svc := server.NewService(db, models, search, index, cfg)
	handler := server.NewHandler(svc, asker)

	// Web Server Setup
	r := gin.Default()

	// CORS Setup
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // Allow all for dev
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Mcp-Session-Id"},
		ExposeHeaders:    []string{"Content-Length", "Mcp-Session-Id"},
		AllowCredentials: true,
	}))

	handler.RegisterRoutes(r)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		slog.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("Failed to start server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		slog.Error("Research workers did not stop in time", "error", err)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
