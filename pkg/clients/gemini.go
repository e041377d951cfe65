package clients

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/mikeboe/deep-research/pkg/research"
)

// GeminiModel calls the Gemini API directly through the genai SDK.
type GeminiModel struct {
	Client *genai.Client
	Model  string
}

// NewGemini creates a genai client authenticated with apiKey.
func NewGemini(ctx context.Context, apiKey, model string) (*GeminiModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY is required for the gemini provider")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini API client: %w", err)
	}
	return &GeminiModel{Client: client, Model: model}, nil
}

func (m *GeminiModel) Complete(ctx context.Context, req research.CompletionRequest) (string, error) {
	contents, config := geminiRequest(req)
	resp, err := m.Client.Models.GenerateContent(ctx, m.Model, contents, config)
	if err != nil {
		return "", fmt.Errorf("generation failed for model %s: %w", m.Model, err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("model %s returned an empty response", m.Model)
	}
	return text, nil
}

func geminiRequest(req research.CompletionRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents := make([]*genai.Content, 0, len(req.UserPrompts))
	for _, prompt := range req.UserPrompts {
		contents = append(contents, genai.NewContentFromText(prompt, genai.RoleUser))
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction(req), ""),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr(float32(req.Temperature)),
	}
	return contents, config
}
