package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pksynth/knowledge-synthesizer/internal/embedding"
	"github.com/pksynth/knowledge-synthesizer/internal/logger"
	"github.com/pksynth/knowledge-synthesizer/internal/metrics"
	"github.com/pksynth/knowledge-synthesizer/internal/parser"
	"github.com/pksynth/knowledge-synthesizer/internal/store"
)

// VectorStore is what the pipelines need from the chunk store.
type VectorStore interface {
	UpsertChunks(ctx context.Context, chunks []store.Chunk) ([]string, error)
	Search(ctx context.Context, vector []float32, limit int) ([]store.SearchResult, error)
	DeleteDocument(ctx context.Context, documentID string) (int, error)
	GetAllDocuments(ctx context.Context) ([]store.DocumentSummary, error)
}

type WebFetcher interface {
	Parse(ctx context.Context, url string) (parser.WebPage, error)
}

type TranscriptParser interface {
	Parse(ctx context.Context, url string) (string, error)
}

type IngestResult struct {
	DocumentID  string   `json:"document_id"`
	ChunksCount int      `json:"chunks_count"`
	PointIDs    []string `json:"point_ids"`
	Status      string   `json:"status"`
}

// IngestionService runs parse, chunk, embed and store for one document.
// Any stage failure aborts the call; nothing is retried.
type IngestionService struct {
	chunker  *Chunker
	embedder embedding.Provider
	store    VectorStore
	web      WebFetcher
	youtube  TranscriptParser
	metrics  *metrics.Pipeline
	log      *logger.Logger
}

func NewIngestionService(
	chunker *Chunker,
	embedder embedding.Provider,
	vs VectorStore,
	web WebFetcher,
	youtube TranscriptParser,
	m *metrics.Pipeline,
	log *logger.Logger,
) *IngestionService {
	return &IngestionService{
		chunker:  chunker,
		embedder: embedder,
		store:    vs,
		web:      web,
		youtube:  youtube,
		metrics:  m,
		log:      log,
	}
}

// IngestURL routes YouTube links to the transcript parser and everything else
// to the web page parser.
func (s *IngestionService) IngestURL(ctx context.Context, url string, md store.Metadata) (*IngestResult, error) {
	md.URL = url

	if parser.IsYouTubeURL(url) {
		text, err := s.youtube.Parse(ctx, url)
		if err != nil {
			return nil, s.fail(store.SourceYouTube, err)
		}
		md.Source = store.SourceYouTube
		return s.ingest(ctx, text, md)
	}

	page, err := s.web.Parse(ctx, url)
	if err != nil {
		return nil, s.fail(store.SourceWeb, err)
	}
	if md.Title == "" {
		md.Title = page.Title
	}
	md.Source = store.SourceWeb
	return s.ingest(ctx, page.Text, md)
}

func (s *IngestionService) IngestText(ctx context.Context, text string, md store.Metadata) (*IngestResult, error) {
	md.Source = store.SourceDirect
	return s.ingest(ctx, text, md)
}

func (s *IngestionService) IngestFile(ctx context.Context, filename string, data []byte, md store.Metadata) (*IngestResult, error) {
	text, err := parser.ParseFile(filename, data)
	if err != nil {
		return nil, s.fail(store.SourceFile, err)
	}
	md.Source = store.SourceFile
	md.Filename = filename
	if md.Title == "" {
		md.Title = filename
	}
	return s.ingest(ctx, text, md)
}

func (s *IngestionService) ingest(ctx context.Context, text string, md store.Metadata) (*IngestResult, error) {
	start := time.Now()
	if md.DocumentID == "" {
		md.DocumentID = uuid.NewString()
	}
	if md.Timestamp == "" {
		md.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	log := s.log.With("document_id", md.DocumentID, "source", md.Source)

	texts := s.chunker.Chunk(text)
	log.Debug("chunked document", "chunks", len(texts))

	var pointIDs []string
	if len(texts) > 0 {
		vectors, err := s.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return nil, s.fail(md.Source, fmt.Errorf("embed chunks: %w", err))
		}
		if len(vectors) != len(texts) {
			return nil, s.fail(md.Source, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(texts)))
		}

		chunks := make([]store.Chunk, len(texts))
		for i, t := range texts {
			chunks[i] = store.Chunk{Text: t, Embedding: vectors[i], Metadata: md}
		}
		pointIDs, err = s.store.UpsertChunks(ctx, chunks)
		if err != nil {
			return nil, s.fail(md.Source, fmt.Errorf("store chunks: %w", err))
		}
	} else {
		log.Warn("document produced no chunks")
		pointIDs = []string{}
	}

	s.metrics.ObserveIngest(string(md.Source), len(texts), time.Since(start))
	log.Info("ingested document", "chunks", len(texts))

	return &IngestResult{
		DocumentID:  md.DocumentID,
		ChunksCount: len(texts),
		PointIDs:    pointIDs,
		Status:      "success",
	}, nil
}

func (s *IngestionService) fail(source store.Source, err error) error {
	s.metrics.IngestFailed(string(source))
	return err
}

func (s *IngestionService) ListDocuments(ctx context.Context) ([]store.DocumentSummary, error) {
	return s.store.GetAllDocuments(ctx)
}

func (s *IngestionService) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	return s.store.DeleteDocument(ctx, documentID)
}
