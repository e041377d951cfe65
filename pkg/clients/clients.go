package clients

import (
	"context"
	"fmt"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

// New returns the language model named model on the provider selected by
// cfg.LLMProvider.
func New(ctx context.Context, cfg *config.Config, model string) (research.LanguageModel, error) {
	switch cfg.LLMProvider {
	case "", "googleai":
		return NewGoogleAI(ctx, cfg.GoogleApiKey, model)
	case "gemini":
		return NewGemini(ctx, cfg.GoogleApiKey, model)
	case "anthropic":
		return NewAnthropic(cfg.AnthropicApiKey, model)
	case "ollama":
		return NewOllama(cfg.OllamaURL, model)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.LLMProvider)
	}
}

// Models groups the three models used by a research run.
type Models struct {
	Research research.LanguageModel
	Feedback research.LanguageModel
	Report   research.LanguageModel
}

// NewModels builds the research, feedback and report models from cfg.
func NewModels(ctx context.Context, cfg *config.Config) (*Models, error) {
	researchLLM, err := New(ctx, cfg, cfg.ResearchModel)
	if err != nil {
		return nil, fmt.Errorf("research model: %w", err)
	}
	feedbackLLM, err := New(ctx, cfg, cfg.FeedbackModel)
	if err != nil {
		return nil, fmt.Errorf("feedback model: %w", err)
	}
	reportLLM, err := New(ctx, cfg, cfg.ReportModel)
	if err != nil {
		return nil, fmt.Errorf("report model: %w", err)
	}
	return &Models{Research: researchLLM, Feedback: feedbackLLM, Report: reportLLM}, nil
}
