package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pksynth/knowledge-synthesizer/internal/api"
	"github.com/pksynth/knowledge-synthesizer/internal/config"
	"github.com/pksynth/knowledge-synthesizer/internal/core"
	"github.com/pksynth/knowledge-synthesizer/internal/embedding"
	"github.com/pksynth/knowledge-synthesizer/internal/llm"
	"github.com/pksynth/knowledge-synthesizer/internal/logger"
	"github.com/pksynth/knowledge-synthesizer/internal/metrics"
	"github.com/pksynth/knowledge-synthesizer/internal/parser"
	"github.com/pksynth/knowledge-synthesizer/internal/store"
)

func main() {
	// Command line flag for one-off ingestion
	ingestFile := flag.String("ingest", "", "Ingest the given file (.pdf, .docx, .txt) and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	// Embedding provider, optionally behind the Redis cache
	embedKind, err := embedding.ParseKind(cfg.Embedding.Provider)
	if err != nil {
		log.Fatal("invalid embedding provider", "error", err)
	}
	baseEmbedder, err := embedding.New(ctx, embedKind, embedding.Options{
		Model:         cfg.Embedding.Model,
		GeminiAPIKey:  cfg.Providers.GeminiAPIKey,
		OpenAIAPIKey:  cfg.Providers.OpenAIAPIKey,
		OpenAIBaseURL: cfg.Providers.OpenAIBaseURL,
	})
	if err != nil {
		log.Fatal("failed to initialize embedding provider", "error", err)
	}
	if c, ok := baseEmbedder.(io.Closer); ok {
		defer c.Close()
	}

	var embedder embedding.Provider = baseEmbedder
	if cfg.Embedding.CacheRedisURL != "" {
		rdb, err := embedding.NewRedisClient(ctx, cfg.Embedding.CacheRedisURL)
		if err != nil {
			log.Fatal("failed to connect to embedding cache", "error", err)
		}
		defer rdb.Close()
		embedder = embedding.NewCached(baseEmbedder, rdb, cfg.Embedding.CacheTTL, log)
		log.Info("embedding cache enabled", "ttl", cfg.Embedding.CacheTTL)
	}
	log.Info("embedding provider ready", "provider", embedKind, "model", embedder.Model(), "dimension", embedder.Dimension())

	// Vector store
	qdrantStore, err := store.NewQdrantStore(store.QdrantOptions{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		APIKey:     cfg.Qdrant.APIKey,
		UseTLS:     cfg.Qdrant.UseTLS,
		Collection: cfg.Qdrant.Collection,
	}, log)
	if err != nil {
		log.Fatal("failed to initialize vector store", "error", err)
	}
	defer qdrantStore.Close()

	initCtx, cancelInit := context.WithTimeout(ctx, 30*time.Second)
	err = qdrantStore.InitializeCollection(initCtx, embedder.Dimension())
	cancelInit()
	if err != nil {
		log.Fatal("failed to initialize collection", "collection", cfg.Qdrant.Collection, "error", err)
	}

	// LLM backends
	llms, err := llm.NewRegistry(cfg.Providers, cfg.LLM, log)
	if err != nil {
		log.Fatal("failed to initialize llm registry", "error", err)
	}
	defer llms.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pipelineMetrics := metrics.NewPipeline(reg)

	chunker := core.NewChunker(
		core.WithChunkSize(cfg.RAG.ChunkSize),
		core.WithChunkOverlap(cfg.RAG.ChunkOverlap),
	)
	ingestService := core.NewIngestionService(
		chunker,
		embedder,
		qdrantStore,
		parser.NewWebParser(nil),
		parser.NewYouTubeParser(parser.NewYouTubeTranscriptFetcher(nil)),
		pipelineMetrics,
		log,
	)
	chatService := core.NewChatService(embedder, qdrantStore, llms, cfg.RAG.TopK, pipelineMetrics, log)

	if *ingestFile != "" {
		if err := ingestOnce(ctx, ingestService, *ingestFile, log); err != nil {
			log.Fatal("ingestion failed", "file", *ingestFile, "error", err)
		}
		return
	}

	apiHandler := api.NewAPIHandler(ingestService, chatService, qdrantStore, log)
	router := api.NewRouter(apiHandler, api.RouterOptions{
		CORSOrigins: cfg.CORSOrigins,
		HTTPMetrics: metrics.NewHTTP(reg),
		Gatherer:    reg,
	})

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("starting server", "addr", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("could not listen", "addr", serverAddr, "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	log.Info("server exited")
}

func ingestOnce(ctx context.Context, svc *core.IngestionService, path string, log *logger.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	res, err := svc.IngestFile(ctx, filepath.Base(path), data, store.Metadata{})
	if err != nil {
		return err
	}
	log.Info("ingestion complete", "document_id", res.DocumentID, "chunks", res.ChunksCount)
	return nil
}
