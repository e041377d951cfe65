package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mikeboe/deep-research/pkg/database"
)

type StartResearchArgs struct {
	Topic   string `json:"topic" jsonschema:"the research topic or question"`
	Breadth int    `json:"breadth,omitempty" jsonschema:"number of queries on the first level"`
	Depth   int    `json:"depth,omitempty" jsonschema:"number of levels to descend"`
}

type JobSummary struct {
	ID      string `json:"id"`
	Topic   string `json:"topic"`
	Status  string `json:"status"`
	Breadth int    `json:"breadth"`
	Depth   int    `json:"depth"`
	Report  string `json:"report,omitempty"`
	Error   string `json:"error,omitempty"`
}

type GetResearchArgs struct {
	ID string `json:"id" jsonschema:"the research job ID"`
}

type SearchFindingsArgs struct {
	ID    string `json:"id" jsonschema:"the research job ID"`
	Query string `json:"query" jsonschema:"the search query"`
	TopK  int    `json:"topK,omitempty" jsonschema:"number of results to return (default 5)"`
}

type SearchFindingsResult struct {
	Results string `json:"results"`
}

func summarize(job *database.Job) JobSummary {
	out := JobSummary{
		ID:      job.ID.String(),
		Topic:   job.Topic,
		Status:  job.Status,
		Breadth: job.Breadth,
		Depth:   job.Depth,
	}
	if job.Report != nil {
		out.Report = *job.Report
	}
	if job.Error != nil {
		out.Error = *job.Error
	}
	return out
}

// NewMCPServer exposes research jobs as MCP tools.
func NewMCPServer(s *Service) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "deep-research-mcp", Version: "1.0.0"}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_research",
		Description: "Start a deep research job on a topic. Returns the job; poll get_research until it is completed.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args StartResearchArgs) (*mcp.CallToolResult, JobSummary, error) {
		job, err := s.CreateJob(ctx, CreateJobRequest(args))
		if err != nil {
			return nil, JobSummary{}, err
		}
		return nil, summarize(job), nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_research",
		Description: "Get the status of a research job and, once completed, its report.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args GetResearchArgs) (*mcp.CallToolResult, JobSummary, error) {
		id, err := uuid.Parse(args.ID)
		if err != nil {
			return nil, JobSummary{}, fmt.Errorf("invalid job id: %w", err)
		}
		job, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, JobSummary{}, err
		}
		return nil, summarize(job), nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_findings",
		Description: "Semantic search over the learnings and report of a completed research job.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args SearchFindingsArgs) (*mcp.CallToolResult, SearchFindingsResult, error) {
		id, err := uuid.Parse(args.ID)
		if err != nil {
			return nil, SearchFindingsResult{}, fmt.Errorf("invalid job id: %w", err)
		}
		results, err := s.SearchFindings(ctx, id, args.Query, args.TopK)
		if err != nil {
			return nil, SearchFindingsResult{}, err
		}
		return nil, SearchFindingsResult{Results: results}, nil
	})

	return server
}

// NewMCPHandler serves the MCP server over streamable HTTP.
func NewMCPHandler(s *Service) http.Handler {
	server := NewMCPServer(s)
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}
