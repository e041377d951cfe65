package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

// DefaultTopK is the number of findings returned when the caller does not ask
// for a specific amount.
const DefaultTopK = 5

// FindingsSearcher runs semantic search over indexed research findings.
type FindingsSearcher interface {
	Search(ctx context.Context, query string, topK int, jobID string) ([]vectorstore.SimilaritySearchResult, error)
}

// FindingsToolset exposes the findings of one research job (or of all jobs
// when JobID is empty) to an agent.
type FindingsToolset struct {
	Searcher FindingsSearcher
	JobID    string
}

func NewFindingsToolset(searcher FindingsSearcher, jobID string) *FindingsToolset {
	return &FindingsToolset{Searcher: searcher, JobID: jobID}
}

func (t *FindingsToolset) Name() string {
	return "findings_tools"
}

func (t *FindingsToolset) Tools(ctx agent.ReadonlyContext) ([]tool.Tool, error) {
	searchTool, err := functiontool.New[SearchFindingsArgs, SearchFindingsResp](
		functiontool.Config{
			Name:        "search_findings",
			Description: "Search the learnings and report of the current research job using semantic search.",
		},
		t.searchFindingsTool,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search tool: %w", err)
	}
	return []tool.Tool{searchTool}, nil
}

type SearchFindingsArgs struct {
	Query string `json:"query" jsonschema:"the search query"`
	TopK  int    `json:"topK,omitempty" jsonschema:"number of results to return (default 5)"`
	JobID string `json:"jobId,omitempty" jsonschema:"optional research job ID to restrict the search to"`
}

type SearchFindingsResp struct {
	Results string `json:"results"`
}

func (t *FindingsToolset) searchFindingsTool(ctx tool.Context, args SearchFindingsArgs) (SearchFindingsResp, error) {
	return t.SearchFindings(ctx, args)
}

// SearchFindings embeds the query and formats the closest findings. A JobID
// bound to the toolset takes precedence over the one in args.
func (t *FindingsToolset) SearchFindings(ctx context.Context, args SearchFindingsArgs) (SearchFindingsResp, error) {
	if strings.TrimSpace(args.Query) == "" {
		return SearchFindingsResp{}, fmt.Errorf("query cannot be empty")
	}
	if args.TopK <= 0 {
		args.TopK = DefaultTopK
	}
	jobID := args.JobID
	if t.JobID != "" {
		jobID = t.JobID
	}

	slog.Info("Search findings", "query", args.Query, "topK", args.TopK, "job_id", jobID)

	results, err := t.Searcher.Search(ctx, args.Query, args.TopK, jobID)
	if err != nil {
		return SearchFindingsResp{}, fmt.Errorf("failed to search: %w", err)
	}
	if len(results) == 0 {
		return SearchFindingsResp{Results: "No findings matched the query."}, nil
	}
	return SearchFindingsResp{Results: FormatResults(results)}, nil
}

// FormatResults renders search hits as labelled blocks separated by blank lines.
func FormatResults(results []vectorstore.SimilaritySearchResult) string {
	formatted := make([]string, 0, len(results))
	for _, result := range results {
		var sb strings.Builder
		kind, _ := result.Document.Metadata["kind"].(string)
		if kind == "" {
			kind = "finding"
		}
		sb.WriteString(fmt.Sprintf("[%s] (score %.2f)\n%s", kind, result.Score, result.Document.Content))

		keys := make([]string, 0, len(result.Document.Metadata))
		for k := range result.Document.Metadata {
			if k == "kind" {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("\n[%s]: %v", k, result.Document.Metadata[k]))
		}
		formatted = append(formatted, sb.String())
	}
	return strings.Join(formatted, "\n\n")
}
