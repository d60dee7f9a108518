package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/pksynth/knowledge-synthesizer/internal/logger"
)

const scrollPageSize = 100

// Payload keys stored with every point.
const (
	keyText       = "text"
	keySource     = "source"
	keyTitle      = "title"
	keyURL        = "url"
	keyAuthor     = "author"
	keyTimestamp  = "timestamp"
	keyDocumentID = "document_id"
	keyFilename   = "filename"
)

// pointsAPI is the subset of the Qdrant client the store relies on.
type pointsAPI interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	GetCollectionInfo(ctx context.Context, name string) (*qdrant.CollectionInfo, error)
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Count(ctx context.Context, req *qdrant.CountPoints) (uint64, error)
	Delete(ctx context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	ListCollections(ctx context.Context) ([]string, error)
	ScrollPage(ctx context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error)
}

// grpcPoints adapts *qdrant.Client; its Scroll helper drops the next-page
// offset, so paging goes through the raw points client.
type grpcPoints struct {
	*qdrant.Client
}

func (g grpcPoints) ScrollPage(ctx context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error) {
	resp, err := g.GetPointsClient().Scroll(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	return resp.GetResult(), resp.GetNextPageOffset(), nil
}

type QdrantOptions struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// QdrantStore persists chunks as points in a single cosine-distance collection.
type QdrantStore struct {
	client     pointsAPI
	closer     func() error
	collection string
	log        *logger.Logger
}

func NewQdrantStore(opts QdrantOptions, log *logger.Logger) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   opts.Host,
		Port:   opts.Port,
		APIKey: opts.APIKey,
		UseTLS: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	s := newQdrantStore(grpcPoints{client}, opts.Collection, log)
	s.closer = client.Close
	return s, nil
}

func newQdrantStore(client pointsAPI, collection string, log *logger.Logger) *QdrantStore {
	return &QdrantStore{
		client:     client,
		collection: collection,
		log:        log.With("collection", collection),
	}
}

func (s *QdrantStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func (s *QdrantStore) CollectionName() string {
	return s.collection
}

// Ping reports whether the Qdrant server answers.
func (s *QdrantStore) Ping(ctx context.Context) error {
	_, err := s.client.ListCollections(ctx)
	return err
}

// InitializeCollection creates the collection if absent. An existing
// collection with a different dimension is only reported.
func (s *QdrantStore) InitializeCollection(ctx context.Context, vectorDim int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", s.collection, err)
	}

	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(vectorDim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection %s: %w", s.collection, err)
		}
		s.log.Info("created collection", "dimension", vectorDim)
		return nil
	}

	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to read collection %s: %w", s.collection, err)
	}
	existing := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	if existing != uint64(vectorDim) {
		s.log.Warn("collection dimension mismatch; recreate the collection to switch embedding providers",
			"existing_dimension", existing, "requested_dimension", vectorDim)
	}
	return nil
}

// UpsertChunks writes all chunks in one batch and returns the generated point IDs.
func (s *QdrantStore) UpsertChunks(ctx context.Context, chunks []Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return []string{}, nil
	}

	ids := make([]string, len(chunks))
	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		ids[i] = uuid.NewString()
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(ids[i]),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: qdrant.NewValueMap(toPayload(c)),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert %d points: %w", len(points), err)
	}
	s.log.Debug("upserted points", "count", len(points))
	return ids, nil
}

// Search returns the nearest chunks, most similar first.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, limit int) ([]SearchResult, error) {
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		payload := hit.GetPayload()
		results = append(results, SearchResult{
			ID:       pointID(hit.GetId()),
			Score:    hit.GetScore(),
			Text:     payload[keyText].GetStringValue(),
			Metadata: fromPayload(payload),
		})
	}
	return results, nil
}

// DeleteDocument removes every chunk of a document and returns how many there
// were. The count is taken before the delete, so a concurrent upsert for the
// same document can make it inexact.
func (s *QdrantStore) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	filter := documentFilter(documentID)

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks of document %s: %w", documentID, err)
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	s.log.Info("deleted document", "document_id", documentID, "chunks", count)
	return int(count), nil
}

// GetAllDocuments scans the whole collection and keeps the first chunk's
// metadata per document_id. Cost grows with the total number of chunks.
func (s *QdrantStore) GetAllDocuments(ctx context.Context) ([]DocumentSummary, error) {
	var (
		docs   []DocumentSummary
		seen   = make(map[string]struct{})
		offset *qdrant.PointId
	)

	for {
		points, next, err := s.client.ScrollPage(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll collection: %w", err)
		}

		for _, p := range points {
			md := fromPayload(p.GetPayload())
			if md.DocumentID == "" {
				continue
			}
			if _, ok := seen[md.DocumentID]; ok {
				continue
			}
			seen[md.DocumentID] = struct{}{}
			docs = append(docs, DocumentSummary{
				ID:        md.DocumentID,
				Title:     md.Title,
				URL:       md.URL,
				Source:    string(md.Source),
				Timestamp: md.Timestamp,
			})
		}

		if next == nil || len(points) == 0 {
			break
		}
		offset = next
	}

	if docs == nil {
		docs = []DocumentSummary{}
	}
	return docs, nil
}

func documentFilter(documentID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(keyDocumentID, documentID)},
	}
}

func toPayload(c Chunk) map[string]any {
	md := c.Metadata
	payload := map[string]any{
		keyText:       c.Text,
		keySource:     string(md.Source),
		keyTitle:      md.Title,
		keyURL:        md.URL,
		keyAuthor:     md.Author,
		keyTimestamp:  md.Timestamp,
		keyDocumentID: md.DocumentID,
	}
	if md.Filename != "" {
		payload[keyFilename] = md.Filename
	}
	return payload
}

func fromPayload(payload map[string]*qdrant.Value) Metadata {
	return Metadata{
		DocumentID: payload[keyDocumentID].GetStringValue(),
		Source:     Source(payload[keySource].GetStringValue()),
		Title:      payload[keyTitle].GetStringValue(),
		URL:        payload[keyURL].GetStringValue(),
		Author:     payload[keyAuthor].GetStringValue(),
		Timestamp:  payload[keyTimestamp].GetStringValue(),
		Filename:   payload[keyFilename].GetStringValue(),
	}
}

func pointID(id *qdrant.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprint(id.GetNum())
}
