package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pksynth/knowledge-synthesizer/internal/llm"
	"github.com/pksynth/knowledge-synthesizer/internal/metrics"
	"github.com/pksynth/knowledge-synthesizer/internal/parser"
	"github.com/pksynth/knowledge-synthesizer/internal/store"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	v, err := f.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return 2 }
func (f *fakeEmbedder) Model() string  { return "fake" }

// memoryStore returns chunks in insertion order; ranking is the vector
// store's concern and is not modelled here.
type memoryStore struct {
	mu        sync.Mutex
	chunks    []store.Chunk
	ids       []string
	upsertErr error
	searchErr error
	next      int
}

func (m *memoryStore) UpsertChunks(_ context.Context, chunks []store.Chunk) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		m.next++
		ids[i] = fmt.Sprintf("point-%d", m.next)
		m.chunks = append(m.chunks, c)
		m.ids = append(m.ids, ids[i])
	}
	return ids, nil
}

func (m *memoryStore) Search(_ context.Context, _ []float32, limit int) ([]store.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	var out []store.SearchResult
	for i, c := range m.chunks {
		if len(out) == limit {
			break
		}
		out = append(out, store.SearchResult{ID: m.ids[i], Score: 0.9, Text: c.Text, Metadata: c.Metadata})
	}
	return out, nil
}

func (m *memoryStore) DeleteDocument(_ context.Context, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keptChunks []store.Chunk
	var keptIDs []string
	deleted := 0
	for i, c := range m.chunks {
		if c.Metadata.DocumentID == documentID {
			deleted++
			continue
		}
		keptChunks = append(keptChunks, c)
		keptIDs = append(keptIDs, m.ids[i])
	}
	m.chunks, m.ids = keptChunks, keptIDs
	return deleted, nil
}

func (m *memoryStore) GetAllDocuments(context.Context) ([]store.DocumentSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	docs := []store.DocumentSummary{}
	for _, c := range m.chunks {
		if seen[c.Metadata.DocumentID] {
			continue
		}
		seen[c.Metadata.DocumentID] = true
		docs = append(docs, store.DocumentSummary{
			ID:     c.Metadata.DocumentID,
			Title:  c.Metadata.Title,
			URL:    c.Metadata.URL,
			Source: string(c.Metadata.Source),
		})
	}
	return docs, nil
}

type fakeLLM struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeLLM) Generate(_ context.Context, prompt string) (llm.Response, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.reply}, nil
}

func (f *fakeLLM) Model() string { return "fake-llm" }

type fakeRegistry struct {
	client      *fakeLLM
	err         error
	gotProvider string
	gotModel    string
}

func (r *fakeRegistry) Get(_ context.Context, provider, model string) (llm.Client, error) {
	r.gotProvider, r.gotModel = provider, model
	if r.err != nil {
		return nil, r.err
	}
	return r.client, nil
}

type fakeWeb struct {
	page parser.WebPage
	err  error
	urls []string
}

func (f *fakeWeb) Parse(_ context.Context, url string) (parser.WebPage, error) {
	f.urls = append(f.urls, url)
	return f.page, f.err
}

type fakeTranscripts struct {
	text string
	err  error
	urls []string
}

func (f *fakeTranscripts) Parse(_ context.Context, url string) (string, error) {
	f.urls = append(f.urls, url)
	return f.text, f.err
}

var errBoom = errors.New("boom")

func testMetrics() *metrics.Pipeline {
	return metrics.NewPipeline(prometheus.NewRegistry())
}
