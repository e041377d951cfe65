package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

const planTemperature = 0.7

const plannerSystemPrompt = `You are a research planner.
Generate specific web search queries that help answer the research topic.
Each query must be paired with a one sentence research goal describing what it should uncover.
Avoid repeating what the previous learnings already cover.`

// QueryPlanner turns a topic into a list of search queries.
type QueryPlanner struct {
	LLM    LanguageModel
	Logger *slog.Logger
}

// NewQueryPlanner returns a planner backed by llm.
func NewQueryPlanner(llm LanguageModel, logger *slog.Logger) *QueryPlanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryPlanner{LLM: llm, Logger: logger}
}

// Plan asks the model for count queries about topic. It returns at most
// count queries and an empty slice when the model call or parsing fails.
func (p *QueryPlanner) Plan(ctx context.Context, topic string, learnings []string, count int) []PlannedQuery {
	if count < 1 {
		return nil
	}

	prior := "None"
	if len(learnings) > 0 {
		prior = "- " + strings.Join(learnings, "\n- ")
	}

	input := fmt.Sprintf(`Research topic:
%s

Previous learnings:
%s

Generate exactly %d search queries.`, topic, prior, count)

	content, err := p.LLM.Complete(ctx, CompletionRequest{
		SystemPrompt: plannerSystemPrompt,
		UserPrompts:  []string{input},
		Schema:       SearchQueriesSchema(count),
		Temperature:  planTemperature,
	})
	if err != nil {
		p.Logger.Error("Query planning failed", "topic", topic, "error", err)
		return nil
	}

	var resp struct {
		Queries []PlannedQuery `json:"queries"`
	}
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		p.Logger.Error("Failed to parse planned queries", "error", err, "content", content)
		return nil
	}

	queries := make([]PlannedQuery, 0, count)
	for _, q := range resp.Queries {
		q.Query = strings.TrimSpace(q.Query)
		if q.Query == "" {
			continue
		}
		queries = append(queries, q)
		if len(queries) == count {
			break
		}
	}

	p.Logger.Info("Generated queries", "requested", count, "count", len(queries))
	return queries
}

// SearchQueriesSchema describes the planner's response.
func SearchQueriesSchema(count int) string {
	return fmt.Sprintf(`{
  "type": "object",
  "properties": {
    "queries": {
      "type": "array",
      "description": "List of %d search queries",
      "items": {
        "type": "object",
        "properties": {
          "query": {"type": "string", "description": "The search query"},
          "researchGoal": {"type": "string", "description": "What this query should uncover"}
        },
        "required": ["query", "researchGoal"]
      }
    }
  },
  "required": ["queries"]
}`, count)
}
