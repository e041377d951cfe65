package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

const (
	// MaxReportLearningsLength caps the formatted learnings sent to the report writer, in runes.
	MaxReportLearningsLength = 150000
	reportTemperature        = 0.5
)

// FallbackReport is returned when the report cannot be generated.
const FallbackReport = "# Report generation failed\n\nIf the problem persists, try a different model."

const reportSystemPrompt = `You are a research report writer.
Write the report in Markdown.
Be detailed: aim for at least 6000 characters.
Use an academic structure with tables and lists where they help.
Draw data-driven conclusions from the learnings provided.`

// WriteFinalReport turns the research learnings into a Markdown report and
// appends the visited URLs as sources. It never fails: on error it returns
// FallbackReport.
func WriteFinalReport(ctx context.Context, llm LanguageModel, logger *slog.Logger, prompt string, learnings, visitedURLs []string) string {
	if logger == nil {
		logger = slog.Default()
	}

	input := fmt.Sprintf(`# Research topic
%s

# Learnings
%s

## Report requirements
- Introduction: background and purpose of the research
- Body: analyze the learnings grouped by theme
- Conclusion: overall summary and directions for future research
- Appendix: list of references`, prompt, FormatLearnings(learnings))

	content, err := llm.Complete(ctx, CompletionRequest{
		SystemPrompt: reportSystemPrompt,
		UserPrompts:  []string{input},
		Schema:       ReportSchema(),
		Temperature:  reportTemperature,
	})
	if err != nil {
		logger.Error("Report generation failed", "error", err)
		return FallbackReport
	}

	var resp struct {
		Report string `json:"report"`
	}
	if err := json.Unmarshal([]byte(content), &resp); err != nil || strings.TrimSpace(resp.Report) == "" {
		logger.Error("Failed to parse report", "error", err, "content_length", len(content))
		return FallbackReport
	}

	logger.Info("Final report generated", "length", len(resp.Report))
	return resp.Report + FormatSources(visitedURLs)
}

// FormatLearnings renders learnings as numbered sections, capped at
// MaxReportLearningsLength runes.
func FormatLearnings(learnings []string) string {
	sections := make([]string, 0, len(learnings))
	for i, l := range learnings {
		sections = append(sections, fmt.Sprintf("### Learning %d\n%s", i+1, l))
	}
	return truncateRunes(strings.Join(sections, "\n"), MaxReportLearningsLength)
}

// FormatSources renders urls as a Markdown sources section.
func FormatSources(urls []string) string {
	var b strings.Builder
	b.WriteString("\n\n## Sources\n")
	for _, u := range urls {
		b.WriteString(fmt.Sprintf("- [%s](%s)\n", u, u))
	}
	return b.String()
}

// ReportSchema describes the report writer's response.
func ReportSchema() string {
	return `{
  "type": "object",
  "properties": {
    "report": {"type": "string", "description": "The final report in Markdown"}
  },
  "required": ["report"]
}`
}
