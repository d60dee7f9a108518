package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pksynth/knowledge-synthesizer/internal/apperr"
	"github.com/pksynth/knowledge-synthesizer/internal/config"
	"github.com/pksynth/knowledge-synthesizer/internal/logger"
)

type builder func(ctx context.Context, p config.ProviderConfig, model string, temperature float32) (Client, error)

var builders = map[Kind]builder{
	KindOpenAI: func(_ context.Context, p config.ProviderConfig, model string, temp float32) (Client, error) {
		if p.OpenAIAPIKey == "" {
			return nil, missingKey("OPENAI_API_KEY", KindOpenAI)
		}
		return NewOpenAICompatible(string(KindOpenAI), p.OpenAIAPIKey, p.OpenAIBaseURL, model, temp), nil
	},
	KindDeepSeek: func(_ context.Context, p config.ProviderConfig, model string, temp float32) (Client, error) {
		if p.DeepSeekAPIKey == "" {
			return nil, missingKey("DEEPSEEK_API_KEY", KindDeepSeek)
		}
		return NewOpenAICompatible(string(KindDeepSeek), p.DeepSeekAPIKey, p.DeepSeekBaseURL, model, temp), nil
	},
	KindAnthropic: func(_ context.Context, p config.ProviderConfig, model string, temp float32) (Client, error) {
		if p.AnthropicAPIKey == "" {
			return nil, missingKey("ANTHROPIC_API_KEY", KindAnthropic)
		}
		return NewAnthropic(p.AnthropicAPIKey, p.AnthropicBaseURL, model, temp), nil
	},
	KindOllama: func(_ context.Context, p config.ProviderConfig, model string, temp float32) (Client, error) {
		// Ollama ignores the key but the OpenAI wire format expects one.
		baseURL := strings.TrimRight(p.OllamaBaseURL, "/") + "/v1"
		return NewOpenAICompatible(string(KindOllama), "ollama", baseURL, model, temp), nil
	},
	KindZAI: func(_ context.Context, p config.ProviderConfig, model string, temp float32) (Client, error) {
		if p.ZAIAPIKey == "" {
			return nil, missingKey("ZAI_API_KEY", KindZAI)
		}
		return NewOpenAICompatible(string(KindZAI), p.ZAIAPIKey, p.ZAIBaseURL, model, temp), nil
	},
	KindGemini: func(ctx context.Context, p config.ProviderConfig, model string, temp float32) (Client, error) {
		if p.GeminiAPIKey == "" {
			return nil, missingKey("GEMINI_API_KEY", KindGemini)
		}
		return NewGemini(ctx, p.GeminiAPIKey, model, temp)
	},
}

func missingKey(env string, kind Kind) error {
	return fmt.Errorf("%w: %s is required for llm provider %s", apperr.ErrConfiguration, env, kind)
}

// retireGrace outlasts the server write timeout, so requests still holding a
// replaced client finish before it is closed.
const retireGrace = 2 * time.Minute

type cacheKey struct {
	kind  Kind
	model string
}

// Registry hands out chat clients and keeps only the most recently used one.
// Asking for a different provider or model rebuilds and replaces it; the
// replaced client is closed after a grace period.
type Registry struct {
	providers config.ProviderConfig
	defaults  config.LLMConfig
	builders  map[Kind]builder
	log       *logger.Logger

	mu      sync.Mutex
	key     cacheKey
	current Client
	grace   time.Duration
	retired map[*retiredClient]struct{}
}

type retiredClient struct {
	closer io.Closer
	timer  *time.Timer
}

func NewRegistry(providers config.ProviderConfig, defaults config.LLMConfig, log *logger.Logger) (*Registry, error) {
	if _, err := ParseKind(defaults.Provider); err != nil {
		return nil, fmt.Errorf("default llm provider: %w", err)
	}
	return &Registry{
		providers: providers,
		defaults:  defaults,
		builders:  builders,
		log:       log,
		grace:     retireGrace,
		retired:   make(map[*retiredClient]struct{}),
	}, nil
}

// Get returns a client for provider and model; empty values fall back to the
// configured defaults.
func (r *Registry) Get(ctx context.Context, provider, model string) (Client, error) {
	if provider == "" {
		provider = r.defaults.Provider
	}
	kind, err := ParseKind(provider)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = r.defaultModel(kind)
	}
	key := cacheKey{kind: kind, model: model}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil && r.key == key {
		return r.current, nil
	}

	client, err := r.builders[kind](ctx, r.providers, model, r.defaults.Temperature)
	if err != nil {
		return nil, err
	}

	r.retire(r.current)
	r.current, r.key = client, key
	r.log.Info("llm client ready", "provider", kind, "model", model)
	return client, nil
}

func (r *Registry) defaultModel(kind Kind) string {
	if r.defaults.Model != "" && strings.EqualFold(r.defaults.Provider, string(kind)) {
		return r.defaults.Model
	}
	return DefaultModels[kind]
}

// retire schedules c to be closed once the grace period has passed.
// Callers hold r.mu.
func (r *Registry) retire(c Client) {
	closer, ok := c.(io.Closer)
	if !ok {
		return
	}
	rc := &retiredClient{closer: closer}
	r.retired[rc] = struct{}{}
	rc.timer = time.AfterFunc(r.grace, func() { r.closeRetired(rc) })
}

func (r *Registry) closeRetired(rc *retiredClient) {
	r.mu.Lock()
	_, pending := r.retired[rc]
	delete(r.retired, rc)
	r.mu.Unlock()

	if !pending {
		return
	}
	if err := rc.closer.Close(); err != nil {
		r.log.Warn("failed to close retired llm client", "error", err)
	}
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for rc := range r.retired {
		rc.timer.Stop()
		if err := rc.closer.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.retired, rc)
	}
	if c, ok := r.current.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.current = nil
	return errors.Join(errs...)
}
