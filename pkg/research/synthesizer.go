package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

const synthesisTemperature = 0.3

const synthesizerSystemPrompt = `You are a research analyst.
Read the search result documents and extract concise, information dense learnings relevant to the query.
Include concrete entities, numbers and dates where the documents provide them.
Then propose follow-up questions that would deepen the research.`

// ResultSynthesizer extracts learnings and follow-up questions from the
// documents returned for a query.
type ResultSynthesizer struct {
	LLM              LanguageModel
	Logger           *slog.Logger
	MaxContentLength int
}

// NewResultSynthesizer returns a synthesizer backed by llm.
func NewResultSynthesizer(llm LanguageModel, logger *slog.Logger) *ResultSynthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultSynthesizer{LLM: llm, Logger: logger, MaxContentLength: MaxContentLength}
}

// Synthesize asks the model for up to maxLearnings learnings and maxFollowUps
// follow-up questions. The model is asked even without documents so it can
// still propose follow-ups. Failures yield an empty result.
func (s *ResultSynthesizer) Synthesize(ctx context.Context, query string, docs []Document, maxLearnings, maxFollowUps int) SynthesisResult {
	if len(docs) == 0 {
		s.Logger.Warn("No documents for query, synthesizing from the query alone", "query", query)
	}

	var body strings.Builder
	for _, d := range docs {
		body.WriteString("<document>\n")
		if d.URL != "" {
			body.WriteString(fmt.Sprintf("Source: %s\n", d.URL))
		}
		body.WriteString(truncateRunes(d.Markdown, s.MaxContentLength))
		body.WriteString("\n</document>\n")
	}

	input := fmt.Sprintf(`Search query: %s
Number of documents: %d

From the documents that follow:
1. Extract up to %d key learnings.
2. Propose up to %d follow-up research questions.`, query, len(docs), maxLearnings, maxFollowUps)

	prompts := []string{input}
	if body.Len() > 0 {
		prompts = append(prompts, body.String())
	}

	content, err := s.LLM.Complete(ctx, CompletionRequest{
		SystemPrompt: synthesizerSystemPrompt,
		UserPrompts:  prompts,
		Schema:       SynthesisSchema(maxLearnings, maxFollowUps),
		Temperature:  synthesisTemperature,
	})
	if err != nil {
		s.Logger.Error("Result synthesis failed", "query", query, "error", err)
		return SynthesisResult{}
	}

	var result SynthesisResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		s.Logger.Error("Failed to parse synthesis result", "error", err, "content", content)
		return SynthesisResult{}
	}

	result.Learnings = limitNonEmpty(result.Learnings, maxLearnings)
	result.FollowUpQuestions = limitNonEmpty(result.FollowUpQuestions, maxFollowUps)

	s.Logger.Info("Synthesized results", "query", query,
		"learnings", len(result.Learnings), "follow_ups", len(result.FollowUpQuestions))
	return result
}

// SynthesisSchema describes the synthesizer's response.
func SynthesisSchema(maxLearnings, maxFollowUps int) string {
	return fmt.Sprintf(`{
  "type": "object",
  "properties": {
    "learnings": {
      "type": "array",
      "items": {"type": "string"},
      "description": "Up to %d key learnings"
    },
    "followUpQuestions": {
      "type": "array",
      "items": {"type": "string"},
      "description": "Up to %d follow-up research questions"
    }
  },
  "required": ["learnings", "followUpQuestions"]
}`, maxLearnings, maxFollowUps)
}

func limitNonEmpty(in []string, max int) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if len(out) == max {
			break
		}
		out = append(out, v)
	}
	return out
}

// truncateRunes cuts s to at most max runes without splitting a character.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
