package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 1024
	anthropicTimeout   = 120 * time.Second
)

// Anthropic calls the Messages API directly over HTTP.
type Anthropic struct {
	http        *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float32
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float32            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewAnthropic(apiKey, baseURL, model string, temperature float32) *Anthropic {
	return &Anthropic{
		http:        &http.Client{Timeout: anthropicTimeout},
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
	}
}

func (a *Anthropic) Model() string { return a.model }

func (a *Anthropic) Generate(ctx context.Context, prompt string) (Response, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:       a.model,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
		MaxTokens:   anthropicMaxTokens,
		Temperature: a.temperature,
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshal anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("create anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read anthropic response: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return Response{}, fmt.Errorf("anthropic API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return Response{}, fmt.Errorf("decode anthropic response: %w", err)
	}
	if parsed.Error != nil {
		return Response{}, fmt.Errorf("anthropic API error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("anthropic API error (status %d)", resp.StatusCode)
	}

	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return Response{}, emptyResponse("anthropic")
	}
	return Response{Content: sb.String()}, nil
}
