package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

const (
	// DefaultMaxFeedbackQuestions bounds the clarifying questions asked up front.
	DefaultMaxFeedbackQuestions = 3
	feedbackTemperature         = 0.7
)

const feedbackSystemPrompt = `You are an expert research topic analyst.
Ask follow-up questions that clarify the direction of the user's research request.
Each question must be one or two sentences, may use domain terminology, and at least one question should ask for concrete examples.`

// GenerateFeedback asks the model for up to maxQuestions clarifying
// questions about query. It returns nil when the call fails.
func GenerateFeedback(ctx context.Context, llm LanguageModel, logger *slog.Logger, query string, maxQuestions int) []string {
	if logger == nil {
		logger = slog.Default()
	}

	input := fmt.Sprintf(`Research request:
%s

Generate at most %d clarifying questions.`, query, maxQuestions)

	content, err := llm.Complete(ctx, CompletionRequest{
		SystemPrompt: feedbackSystemPrompt,
		UserPrompts:  []string{input},
		Schema:       FeedbackSchema(maxQuestions),
		Temperature:  feedbackTemperature,
	})
	if err != nil {
		logger.Error("Feedback generation failed", "error", err)
		return nil
	}

	var resp struct {
		Questions []string `json:"questions"`
	}
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		logger.Error("Failed to parse feedback questions", "error", err, "content", content)
		return nil
	}

	return limitNonEmpty(resp.Questions, maxQuestions)
}

// FeedbackSchema describes the clarifying question response.
func FeedbackSchema(maxQuestions int) string {
	return fmt.Sprintf(`{
  "type": "object",
  "properties": {
    "questions": {
      "type": "array",
      "items": {"type": "string"},
      "description": "Up to %d clarifying questions"
    }
  },
  "required": ["questions"]
}`, maxQuestions)
}

// CombineQuery joins the original question with the clarifying questions and
// the user's answers into the root research topic. Missing answers are left
// blank.
func CombineQuery(query string, questions, answers []string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Initial question: %s\n", query))
	for i, q := range questions {
		answer := ""
		if i < len(answers) {
			answer = answers[i]
		}
		b.WriteString(fmt.Sprintf("\n%d. Question: %s\n", i+1, q))
		b.WriteString(fmt.Sprintf("   Answer: %s\n", answer))
	}
	return b.String()
}
