package research

import (
	"context"
	"errors"
	"time"
)

const (
	// MaxContentLength caps the body text of a single document, in runes.
	MaxContentLength = 25000
	// DefaultMaxLearnings bounds the findings extracted per query.
	DefaultMaxLearnings = 5
	// DefaultMaxFollowUps bounds the follow-up questions proposed per query.
	DefaultMaxFollowUps = 3
	// DefaultSearchTimeout is the per-query timeout handed to the search service.
	DefaultSearchTimeout = 15 * time.Second
	// DefaultSearchLimit is the maximum number of documents requested per query.
	DefaultSearchLimit = 5
)

var (
	ErrEmptyTopic     = errors.New("research topic cannot be empty")
	ErrInvalidBreadth = errors.New("breadth must be at least 1")
	ErrInvalidDepth   = errors.New("depth must be at least 1")
)

// CompletionRequest is a single structured-output call to a language model.
type CompletionRequest struct {
	SystemPrompt string
	// UserPrompts are sent as consecutive user messages.
	UserPrompts []string
	// Schema is the JSON schema the response must follow.
	Schema      string
	Temperature float64
}

// LanguageModel is the structured-completion collaborator. Implementations
// return the raw JSON text produced by the model.
type LanguageModel interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// SearchService executes a single query against a search/scrape backend.
type SearchService interface {
	Search(ctx context.Context, query string, timeout time.Duration, limit int) ([]Document, error)
}

// PlannedQuery is a search query paired with the reason it was generated.
type PlannedQuery struct {
	Query        string `json:"query"`
	ResearchGoal string `json:"researchGoal"`
}

// Document is a normalized search result.
type Document struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Markdown    string `json:"markdown"`
}

// SynthesisResult holds what was extracted from the documents of one query.
type SynthesisResult struct {
	Learnings         []string `json:"learnings"`
	FollowUpQuestions []string `json:"followUpQuestions"`
}

// ResearchState is the accumulator threaded through the research tree.
type ResearchState struct {
	Learnings   []string `json:"learnings"`
	VisitedURLs []string `json:"visitedUrls"`
}

// Clone returns a copy that shares no backing arrays with s.
func (s ResearchState) Clone() ResearchState {
	return ResearchState{
		Learnings:   append([]string{}, s.Learnings...),
		VisitedURLs: append([]string{}, s.VisitedURLs...),
	}
}

// Collapse returns s with duplicate learnings and URLs removed. The first
// occurrence of each value keeps its position.
func (s ResearchState) Collapse() ResearchState {
	return ResearchState{
		Learnings:   uniqueStrings(s.Learnings),
		VisitedURLs: uniqueStrings(s.VisitedURLs),
	}
}

// Progress is reported after every processed query.
type Progress struct {
	Topic        string `json:"topic"`
	Depth        int    `json:"depth"`
	Breadth      int    `json:"breadth"`
	QueryIndex   int    `json:"queryIndex"`
	TotalQueries int    `json:"totalQueries"`
	Query        string `json:"query"`
	Learnings    int    `json:"learnings"`
	VisitedURLs  int    `json:"visitedUrls"`
	// State is a snapshot of the accumulator after the query.
	State ResearchState `json:"state"`
}

func uniqueStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
