package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pksynth/knowledge-synthesizer/internal/apperr"
	"github.com/pksynth/knowledge-synthesizer/internal/embedding"
	"github.com/pksynth/knowledge-synthesizer/internal/llm"
	"github.com/pksynth/knowledge-synthesizer/internal/logger"
	"github.com/pksynth/knowledge-synthesizer/internal/metrics"
	"github.com/pksynth/knowledge-synthesizer/internal/store"
)

const (
	DefaultTopK     = 5
	historyTurns    = 3
	notAvailable    = "N/A"
	chatInstruction = "You are a helpful AI assistant. Answer the user's question based on the context provided below."
	citeInstruction = "Provide a comprehensive answer. Cite your sources using [Source X] notation."
)

// Message is one caller-supplied conversation turn; it is never persisted.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type SourceRef struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Source string `json:"source"`
}

type ChatResult struct {
	Response    string      `json:"response"`
	Sources     []SourceRef `json:"sources"`
	ContextUsed int         `json:"context_used"`
}

// ChatOptions selects a non-default LLM backend or model for one request.
type ChatOptions struct {
	Provider string
	Model    string
}

type LLMRegistry interface {
	Get(ctx context.Context, provider, model string) (llm.Client, error)
}

type ChatService struct {
	embedder embedding.Provider
	store    VectorStore
	llms     LLMRegistry
	topK     int
	metrics  *metrics.Pipeline
	log      *logger.Logger
}

func NewChatService(
	embedder embedding.Provider,
	vs VectorStore,
	llms LLMRegistry,
	topK int,
	m *metrics.Pipeline,
	log *logger.Logger,
) *ChatService {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &ChatService{
		embedder: embedder,
		store:    vs,
		llms:     llms,
		topK:     topK,
		metrics:  m,
		log:      log,
	}
}

func (s *ChatService) Chat(ctx context.Context, query string, history []Message, opts ChatOptions) (*ChatResult, error) {
	start := time.Now()
	res, err := s.chat(ctx, query, history, opts)
	if err != nil {
		s.metrics.ChatFailed()
		return nil, err
	}
	s.metrics.ObserveChat(res.ContextUsed, time.Since(start))
	return res, nil
}

func (s *ChatService) chat(ctx context.Context, query string, history []Message, opts ChatOptions) (*ChatResult, error) {
	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.store.Search(ctx, vector, s.topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	s.log.Debug("retrieved context", "results", len(results))

	client, err := s.llms.Get(ctx, opts.Provider, opts.Model)
	if err != nil {
		return nil, err
	}

	prompt := buildPrompt(query, buildContext(results), history)
	resp, err := client.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return nil, fmt.Errorf("%w: empty completion from %s", apperr.ErrResponseFormat, client.Model())
	}

	return &ChatResult{
		Response:    resp.Content,
		Sources:     dedupSources(results),
		ContextUsed: len(results),
	}, nil
}

// buildContext renders results in rank order as numbered source blocks.
func buildContext(results []store.SearchResult) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("[Source %d] %s\n  URL: %s\n  Title: %s",
			i+1, r.Text, orNA(r.Metadata.URL), orNA(r.Metadata.Title))
	}
	return strings.Join(blocks, "\n\n")
}

func buildPrompt(query, contextBlock string, history []Message) string {
	var sb strings.Builder
	sb.WriteString(chatInstruction)
	sb.WriteString("\n\nContext:\n")
	sb.WriteString(contextBlock)
	sb.WriteString("\n\nUser Question: ")
	sb.WriteString(query)
	sb.WriteString("\n\n")
	sb.WriteString(citeInstruction)

	if len(history) > 0 {
		sb.WriteString("\n\nConversation History:\n")
		for _, m := range history[max(0, len(history)-historyTurns):] {
			fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
		}
	}
	return sb.String()
}

// dedupSources keeps the first result per document_id.
func dedupSources(results []store.SearchResult) []SourceRef {
	seen := make(map[string]struct{}, len(results))
	sources := make([]SourceRef, 0, len(results))
	for _, r := range results {
		// chunks without a document id cannot be attributed
		key := r.Metadata.DocumentID
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		sources = append(sources, SourceRef{
			Title:  r.Metadata.Title,
			URL:    r.Metadata.URL,
			Source: string(r.Metadata.Source),
		})
	}
	return sources
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}
