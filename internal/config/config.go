package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pksynth/knowledge-synthesizer/internal/apperr"
)

type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
}

// ProviderConfig holds credentials and endpoints shared by the LLM and
// embedding backends.
type ProviderConfig struct {
	OpenAIAPIKey     string `yaml:"openai_api_key"`
	OpenAIBaseURL    string `yaml:"openai_base_url"`
	DeepSeekAPIKey   string `yaml:"deepseek_api_key"`
	DeepSeekBaseURL  string `yaml:"deepseek_base_url"`
	AnthropicAPIKey  string `yaml:"anthropic_api_key"`
	AnthropicBaseURL string `yaml:"anthropic_base_url"`
	OllamaBaseURL    string `yaml:"ollama_base_url"`
	ZAIAPIKey        string `yaml:"zai_api_key"`
	ZAIBaseURL       string `yaml:"zai_base_url"`
	GeminiAPIKey     string `yaml:"gemini_api_key"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
}

type EmbeddingConfig struct {
	Provider      string        `yaml:"provider"`
	Model         string        `yaml:"model"`
	CacheRedisURL string        `yaml:"cache_redis_url"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

type RAGConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	TopK         int `yaml:"top_k"`
}

type WatcherConfig struct {
	WatchPath      string        `yaml:"watch_path"`
	ProcessedPath  string        `yaml:"processed_path"`
	BackendURL     string        `yaml:"backend_url"`
	LedgerPath     string        `yaml:"ledger_path"`
	SweepExisting  bool          `yaml:"sweep_existing"`
	Debounce       time.Duration `yaml:"debounce"`
	ForwardTimeout time.Duration `yaml:"forward_timeout"`
}

type Config struct {
	HTTPPort    string          `yaml:"http_port"`
	LogMode     string          `yaml:"log_mode"`
	CORSOrigins []string        `yaml:"cors_allowed_origins"`
	Qdrant      QdrantConfig    `yaml:"qdrant"`
	Providers   ProviderConfig  `yaml:"providers"`
	LLM         LLMConfig       `yaml:"llm"`
	Embedding   EmbeddingConfig `yaml:"embedding"`
	RAG         RAGConfig       `yaml:"rag"`
	Watcher     WatcherConfig   `yaml:"watcher"`
}

func defaultConfig() *Config {
	return &Config{
		HTTPPort:    "8000",
		LogMode:     "dev",
		CORSOrigins: []string{"http://localhost:3000"},
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "knowledge_base",
		},
		Providers: ProviderConfig{
			DeepSeekBaseURL:  "https://api.deepseek.com/v1",
			AnthropicBaseURL: "https://api.anthropic.com",
			OllamaBaseURL:    "http://localhost:11434",
			ZAIBaseURL:       "https://open.bigmodel.cn/api/paas/v4",
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Temperature: 0.7,
		},
		Embedding: EmbeddingConfig{
			Provider: "gemini",
			CacheTTL: 24 * time.Hour,
		},
		RAG: RAGConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			TopK:         5,
		},
		Watcher: WatcherConfig{
			WatchPath:      "/app/inbox",
			ProcessedPath:  "/app/processed",
			BackendURL:     "http://backend:8000",
			LedgerPath:     "watcher.db",
			Debounce:       time.Second,
			ForwardTimeout: 300 * time.Second,
		},
	}
}

// Load resolves configuration from defaults, then the optional YAML settings
// file ($PKS_CONFIG_FILE or ./config.yaml), then .env and the environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := defaultConfig()
	if err := cfg.loadFile(getEnv("PKS_CONFIG_FILE", "config.yaml")); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPPort = getEnv("HTTP_PORT", c.HTTPPort)
	c.LogMode = getEnv("LOG_MODE", c.LogMode)
	c.CORSOrigins = getEnvAsList("CORS_ALLOWED_ORIGINS", c.CORSOrigins)

	c.Qdrant.Host = getEnv("QDRANT_HOST", c.Qdrant.Host)
	c.Qdrant.Port = getEnvAsInt("QDRANT_PORT", c.Qdrant.Port)
	c.Qdrant.APIKey = getEnv("QDRANT_API_KEY", c.Qdrant.APIKey)
	c.Qdrant.UseTLS = getEnvAsBool("QDRANT_USE_TLS", c.Qdrant.UseTLS)
	c.Qdrant.Collection = getEnv("QDRANT_COLLECTION_NAME", c.Qdrant.Collection)

	p := &c.Providers
	p.OpenAIAPIKey = getEnv("OPENAI_API_KEY", p.OpenAIAPIKey)
	p.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", p.OpenAIBaseURL)
	p.DeepSeekAPIKey = getEnv("DEEPSEEK_API_KEY", p.DeepSeekAPIKey)
	p.DeepSeekBaseURL = getEnv("DEEPSEEK_BASE_URL", p.DeepSeekBaseURL)
	p.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", p.AnthropicAPIKey)
	p.AnthropicBaseURL = getEnv("ANTHROPIC_BASE_URL", p.AnthropicBaseURL)
	p.OllamaBaseURL = getEnv("OLLAMA_BASE_URL", p.OllamaBaseURL)
	p.ZAIAPIKey = getEnv("ZAI_API_KEY", p.ZAIAPIKey)
	p.ZAIBaseURL = getEnv("ZAI_BASE_URL", p.ZAIBaseURL)
	p.GeminiAPIKey = getEnv("GEMINI_API_KEY", p.GeminiAPIKey)

	c.LLM.Provider = getEnv("DEFAULT_LLM_PROVIDER", c.LLM.Provider)
	c.LLM.Model = getEnv("DEFAULT_LLM_MODEL", c.LLM.Model)

	c.Embedding.Provider = getEnv("DEFAULT_EMBEDDING_PROVIDER", c.Embedding.Provider)
	c.Embedding.Model = getEnv("DEFAULT_EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.CacheRedisURL = getEnv("EMBEDDING_CACHE_REDIS_URL", c.Embedding.CacheRedisURL)
	c.Embedding.CacheTTL = getEnvAsDuration("EMBEDDING_CACHE_TTL", c.Embedding.CacheTTL)

	c.RAG.ChunkSize = getEnvAsInt("CHUNK_SIZE", c.RAG.ChunkSize)
	c.RAG.ChunkOverlap = getEnvAsInt("CHUNK_OVERLAP", c.RAG.ChunkOverlap)
	c.RAG.TopK = getEnvAsInt("TOP_K_RESULTS", c.RAG.TopK)

	w := &c.Watcher
	w.WatchPath = getEnv("WATCH_PATH", w.WatchPath)
	w.ProcessedPath = getEnv("PROCESSED_PATH", w.ProcessedPath)
	w.BackendURL = getEnv("BACKEND_URL", w.BackendURL)
	w.LedgerPath = getEnv("WATCHER_LEDGER_PATH", w.LedgerPath)
	w.SweepExisting = getEnvAsBool("WATCHER_SWEEP_EXISTING", w.SweepExisting)
}

// Validate rejects settings the pipelines cannot run with. Provider
// credentials are checked later, when a provider is built.
func (c *Config) Validate() error {
	switch {
	case c.HTTPPort == "":
		return fmt.Errorf("%w: HTTP_PORT must not be empty", apperr.ErrConfiguration)
	case c.Qdrant.Collection == "":
		return fmt.Errorf("%w: QDRANT_COLLECTION_NAME must not be empty", apperr.ErrConfiguration)
	case c.RAG.ChunkSize <= 0:
		return fmt.Errorf("%w: CHUNK_SIZE must be positive, got %d", apperr.ErrConfiguration, c.RAG.ChunkSize)
	case c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize:
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, %d), got %d",
			apperr.ErrConfiguration, c.RAG.ChunkSize, c.RAG.ChunkOverlap)
	case c.RAG.TopK <= 0:
		return fmt.Errorf("%w: TOP_K_RESULTS must be positive, got %d", apperr.ErrConfiguration, c.RAG.TopK)
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
