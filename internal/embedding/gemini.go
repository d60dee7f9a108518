package embedding

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/pksynth/knowledge-synthesizer/internal/apperr"
)

const (
	defaultGeminiModel = "text-embedding-004"
	geminiDimension    = 768
	geminiMaxBatch     = 100
)

type batchFunc func(ctx context.Context, texts []string) ([][]float32, error)

type Gemini struct {
	client *genai.Client
	model  string
	batch  batchFunc
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY is required for gemini embeddings", apperr.ErrConfiguration)
	}
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	em := client.EmbeddingModel(model)
	g := &Gemini{client: client, model: model}
	g.batch = func(ctx context.Context, texts []string) ([][]float32, error) {
		b := em.NewBatch()
		for _, t := range texts {
			b.AddContent(genai.Text(t))
		}
		res, err := em.BatchEmbedContents(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("gemini embedding request failed: %w", err)
		}
		out := make([][]float32, 0, len(res.Embeddings))
		for _, e := range res.Embeddings {
			if e == nil {
				out = append(out, nil)
				continue
			}
			out = append(out, e.Values)
		}
		return out, nil
	}
	return g, nil
}

func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func (g *Gemini) Model() string  { return g.model }
func (g *Gemini) Dimension() int { return geminiDimension }

func (g *Gemini) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts sends at most geminiMaxBatch texts per request.
func (g *Gemini) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiMaxBatch {
		end := min(start+geminiMaxBatch, len(texts))
		vecs, err := g.batch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(vecs), end-start)
		}
		for i, v := range vecs {
			if len(v) == 0 {
				return nil, fmt.Errorf("no embedding data received from gemini for input %d", start+i)
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}
