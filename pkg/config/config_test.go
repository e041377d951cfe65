package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	cfg := fromViper(viper.New())

	assert.Equal(t, "googleai", cfg.LLMProvider)
	assert.Equal(t, "firecrawl", cfg.SearchProvider)
	assert.Equal(t, 15*time.Second, cfg.SearchTimeout)
	assert.Equal(t, 5, cfg.SearchLimit)
	assert.Equal(t, 5, cfg.MaxLearnings)
	assert.Equal(t, 3, cfg.MaxFollowUps)
	assert.Equal(t, 2, cfg.DefaultBreadth)
	assert.Equal(t, 2, cfg.DefaultDepth)
	assert.Equal(t, "output/output.md", cfg.OutputPath)
	assert.Equal(t, cfg.ResearchModel, cfg.FeedbackModel)
	assert.Equal(t, cfg.ResearchModel, cfg.ReportModel)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Ollama")
	t.Setenv("RESEARCH_MODEL", "gemma3:1b")
	t.Setenv("REPORT_MODEL", "gemma3:12b")
	t.Setenv("SEARCH_PROVIDER", "arxiv")
	t.Setenv("SEARCH_TIMEOUT", "30s")
	t.Setenv("ARXIV_FULL_TEXT", "true")
	t.Setenv("DEFAULT_DEPTH", "4")

	cfg := fromViper(viper.New())

	assert.Equal(t, "ollama", cfg.LLMProvider)
	assert.Equal(t, "gemma3:1b", cfg.ResearchModel)
	assert.Equal(t, "gemma3:1b", cfg.FeedbackModel)
	assert.Equal(t, "gemma3:12b", cfg.ReportModel)
	assert.Equal(t, "arxiv", cfg.SearchProvider)
	assert.Equal(t, 30*time.Second, cfg.SearchTimeout)
	assert.True(t, cfg.ArxivFullText)
	assert.Equal(t, 4, cfg.DefaultDepth)
}

func TestSearchTimeoutUnits(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"bare integer is milliseconds", "15000", 15 * time.Second},
		{"duration string", "45s", 45 * time.Second},
		{"padded integer", " 2500 ", 2500 * time.Millisecond},
		{"mixed units", "1m30s", 90 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SEARCH_TIMEOUT", tt.value)

			cfg := fromViper(viper.New())

			assert.Equal(t, tt.want, cfg.SearchTimeout)
		})
	}
}
