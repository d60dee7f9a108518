package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/pksynth/knowledge-synthesizer/internal/apperr"
)

// Response is the normalized output of every backend.
type Response struct {
	Content string
}

// Client generates text for a single prompt.
type Client interface {
	Generate(ctx context.Context, prompt string) (Response, error)
	Model() string
}

type Kind string

const (
	KindOpenAI    Kind = "openai"
	KindDeepSeek  Kind = "deepseek"
	KindAnthropic Kind = "anthropic"
	KindOllama    Kind = "ollama"
	KindZAI       Kind = "zai"
	KindGemini    Kind = "gemini"
)

// DefaultModels maps each backend to the model used when none is requested.
var DefaultModels = map[Kind]string{
	KindOpenAI:    "gpt-4o-mini",
	KindDeepSeek:  "deepseek-chat",
	KindAnthropic: "claude-3-haiku-20240307",
	KindOllama:    "llama3",
	KindZAI:       "glm-4.7",
	KindGemini:    "gemini-1.5-flash-latest",
}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := DefaultModels[k]; !ok {
		return "", fmt.Errorf("%w: llm provider %q", apperr.ErrUnsupportedProvider, s)
	}
	return k, nil
}

func emptyResponse(provider string) error {
	return fmt.Errorf("%w: %s returned no text", apperr.ErrResponseFormat, provider)
}
