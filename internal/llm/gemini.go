package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
}

func NewGemini(ctx context.Context, apiKey, model string, temperature float32) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	m := client.GenerativeModel(model)
	m.SetTemperature(temperature)
	return &Gemini{client: client, model: m, name: model}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) Model() string { return g.name }

func (g *Gemini) Generate(ctx context.Context, prompt string) (Response, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return Response{}, fmt.Errorf("gemini generate request failed: %w", err)
	}
	text := candidateText(resp)
	if strings.TrimSpace(text) == "" {
		return Response{}, emptyResponse("gemini")
	}
	return Response{Content: text}, nil
}

// candidateText joins the text parts of the first candidate; other part
// types are skipped.
func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}
