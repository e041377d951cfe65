package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var queryCountRe = regexp.MustCompile(`Generate exactly (\d+) search queries`)

// stubLLM answers planner and synthesizer prompts with generated JSON.
// Entries in raw or errs replace the generated answer for a system prompt.
type stubLLM struct {
	raw  map[string]string
	errs map[string]error

	// learning and followUps override the synthesized content for a query.
	learning  func(query string) string
	followUps func(query string) []string

	planCalls    int
	synthCalls   int
	planCounts   []int
	planPrompts  []string
	synthPrompts [][]string
}

func (s *stubLLM) Complete(_ context.Context, req CompletionRequest) (string, error) {
	switch req.SystemPrompt {
	case plannerSystemPrompt:
		s.planCalls++
		s.planPrompts = append(s.planPrompts, req.UserPrompts[0])
		m := queryCountRe.FindStringSubmatch(req.UserPrompts[0])
		if m == nil {
			return "", errors.New("planner prompt without query count")
		}
		n, _ := strconv.Atoi(m[1])
		s.planCounts = append(s.planCounts, n)
	case synthesizerSystemPrompt:
		s.synthCalls++
		s.synthPrompts = append(s.synthPrompts, req.UserPrompts)
	}

	if err, ok := s.errs[req.SystemPrompt]; ok {
		return "", err
	}
	if raw, ok := s.raw[req.SystemPrompt]; ok {
		return raw, nil
	}

	switch req.SystemPrompt {
	case plannerSystemPrompt:
		n := s.planCounts[len(s.planCounts)-1]
		queries := make([]PlannedQuery, n)
		for i := range queries {
			queries[i] = PlannedQuery{
				Query:        fmt.Sprintf("query-%d-%d", s.planCalls, i+1),
				ResearchGoal: "find out more",
			}
		}
		return mustJSON(map[string]any{"queries": queries}), nil
	case synthesizerSystemPrompt:
		query := strings.TrimPrefix(strings.SplitN(req.UserPrompts[0], "\n", 2)[0], "Search query: ")
		learning := "learning about " + query
		if s.learning != nil {
			learning = s.learning(query)
		}
		followUps := []string{"follow up on " + query}
		if s.followUps != nil {
			followUps = s.followUps(query)
		}
		return mustJSON(SynthesisResult{Learnings: []string{learning}, FollowUpQuestions: followUps}), nil
	}
	return "", fmt.Errorf("unexpected system prompt %q", req.SystemPrompt)
}

// stubSearch returns one document per query unless err is set.
type stubSearch struct {
	err     error
	docs    []Document
	urlFor  func(query string) string
	queries []string

	lastTimeout time.Duration
	lastLimit   int
}

func (s *stubSearch) Search(_ context.Context, query string, timeout time.Duration, limit int) ([]Document, error) {
	s.queries = append(s.queries, query)
	s.lastTimeout = timeout
	s.lastLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	if s.docs != nil {
		return s.docs, nil
	}
	url := "https://example.com/" + query
	if s.urlFor != nil {
		url = s.urlFor(query)
	}
	return []Document{{URL: url, Title: query, Markdown: "content for " + query}}, nil
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// funcLLM adapts a function to LanguageModel.
type funcLLM func(req CompletionRequest) (string, error)

func (f funcLLM) Complete(_ context.Context, req CompletionRequest) (string, error) {
	return f(req)
}
