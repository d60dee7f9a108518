package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/pksynth/knowledge-synthesizer/internal/apperr"
)

// Provider turns text into fixed-length vectors. One provider is chosen at
// startup and used for both documents and queries.
type Provider interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
}

type Kind string

const (
	KindGemini Kind = "gemini"
	KindOpenAI Kind = "openai"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindGemini, KindOpenAI:
		return k, nil
	default:
		return "", fmt.Errorf("%w: embedding provider %q", apperr.ErrUnsupportedProvider, s)
	}
}

// Options carries the credentials for every backend; only the selected
// backend's fields are read.
type Options struct {
	Model         string
	GeminiAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// New builds the provider for kind. The caller owns the result and should
// Close it if it implements io.Closer.
func New(ctx context.Context, kind Kind, opts Options) (Provider, error) {
	switch kind {
	case KindGemini:
		return NewGemini(ctx, opts.GeminiAPIKey, opts.Model)
	case KindOpenAI:
		return NewOpenAI(opts.OpenAIAPIKey, opts.OpenAIBaseURL, opts.Model)
	default:
		return nil, fmt.Errorf("%w: embedding provider %q", apperr.ErrUnsupportedProvider, kind)
	}
}
