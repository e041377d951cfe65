package clients

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/mikeboe/deep-research/pkg/research"
)

// LangchainModel adapts any langchaingo model to research.LanguageModel.
type LangchainModel struct {
	LLM  llms.Model
	Name string
	// MaxTokens caps the response length when non-zero.
	MaxTokens int
}

// NewGoogleAI creates a Gemini-backed model through langchaingo.
func NewGoogleAI(ctx context.Context, apiKey, model string) (*LangchainModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY is required for the googleai provider")
	}
	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create googleai client: %w", err)
	}
	return &LangchainModel{LLM: llm, Name: model}, nil
}

// anthropicMaxTokens is sent on every Claude request; the Messages API
// rejects requests without max_tokens.
const anthropicMaxTokens = 8192

// NewAnthropic creates a Claude-backed model through langchaingo.
func NewAnthropic(apiKey, model string) (*LangchainModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic provider")
	}
	llm, err := anthropic.New(
		anthropic.WithToken(apiKey),
		anthropic.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create anthropic client: %w", err)
	}
	return &LangchainModel{LLM: llm, Name: model, MaxTokens: anthropicMaxTokens}, nil
}

// NewOllama creates a model served by a local Ollama instance. Responses are
// constrained to JSON by the server.
func NewOllama(serverURL, model string) (*LangchainModel, error) {
	llm, err := ollama.New(
		ollama.WithModel(model),
		ollama.WithServerURL(serverURL),
		ollama.WithFormat("json"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return &LangchainModel{LLM: llm, Name: model}, nil
}

// Complete sends the system prompt (with the response schema appended) and
// every user prompt as separate messages.
func (m *LangchainModel) Complete(ctx context.Context, req research.CompletionRequest) (string, error) {
	opts := []llms.CallOption{
		llms.WithJSONMode(),
		llms.WithTemperature(req.Temperature),
	}
	if m.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(m.MaxTokens))
	}
	resp, err := m.LLM.GenerateContent(ctx, buildMessages(req), opts...)
	if err != nil {
		return "", fmt.Errorf("generation failed for model %s: %w", m.Name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model %s returned no choices", m.Name)
	}
	return resp.Choices[0].Content, nil
}

func buildMessages(req research.CompletionRequest) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(req.UserPrompts)+1)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, systemInstruction(req)))
	for _, prompt := range req.UserPrompts {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))
	}
	return messages
}

func systemInstruction(req research.CompletionRequest) string {
	if req.Schema == "" {
		return req.SystemPrompt
	}
	return req.SystemPrompt + "\n\n# Response Format:\n" + req.Schema
}
