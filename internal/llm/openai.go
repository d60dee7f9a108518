package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAICompatible talks to any chat-completions endpoint that follows the
// OpenAI wire format (OpenAI, DeepSeek, Ollama, Z.AI).
type OpenAICompatible struct {
	name        string
	client      *openai.Client
	model       string
	temperature float32
}

func NewOpenAICompatible(name, apiKey, baseURL, model string, temperature float32) *OpenAICompatible {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAICompatible{
		name:        name,
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: temperature,
	}
}

func (c *OpenAICompatible) Model() string { return c.model }

func (c *OpenAICompatible) Generate(ctx context.Context, prompt string) (Response, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
	})
	if err != nil {
		return Response{}, fmt.Errorf("%s chat completion failed: %w", c.name, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return Response{}, emptyResponse(c.name)
	}
	return Response{Content: resp.Choices[0].Message.Content}, nil
}
