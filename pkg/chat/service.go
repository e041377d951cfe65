package chat

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/genai"

	"github.com/mikeboe/deep-research/pkg/config"
)

const (
	appName   = "deep-research"
	agentName = "research_assistant"
	userID    = "user"
)

const instruction = `You answer questions about a finished research job. The job researched the topic given in the first message.
ALWAYS call search_findings before answering and base the answer only on what it returns.
Cite the learning or report excerpt that supports each statement. If the findings do not cover the question, say so.`

// Service answers follow-up questions over the findings of a research job.
type Service struct {
	Model    model.LLM
	Searcher FindingsSearcher
}

// StreamEvent represents a single event in the answer stream
type StreamEvent struct {
	Type    string      `json:"type"` // "content", "tool_call", "tool_result", "error", "done"
	Payload interface{} `json:"payload"`
}

func NewService(ctx context.Context, cfg *config.Config, searcher FindingsSearcher) (*Service, error) {
	modelClient, err := gemini.NewModel(ctx, cfg.ResearchModel, &genai.ClientConfig{
		APIKey: cfg.GoogleApiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}
	return &Service{Model: modelClient, Searcher: searcher}, nil
}

func (s *Service) newAgent(jobID string) (agent.Agent, error) {
	return llmagent.New(llmagent.Config{
		Name:        agentName,
		Model:       s.Model,
		Description: "Answers questions using the indexed findings of a research job.",
		Instruction: instruction,
		Toolsets: []tool.Toolset{
			NewFindingsToolset(s.Searcher, jobID),
		},
	})
}

// Ask streams the agent's answer to question. Each call runs in a fresh
// session scoped to jobID.
func (s *Service) Ask(ctx context.Context, jobID, topic, question string) (iter.Seq2[StreamEvent, error], error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}

	researchAgent, err := s.newAgent(jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	sessionSvc := session.InMemoryService()
	sessionID := uuid.NewString()
	if _, err := sessionSvc.Create(ctx, &session.CreateRequest{
		AppName:   appName,
		UserID:    userID,
		SessionID: sessionID,
	}); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          researchAgent,
		SessionService: sessionSvc,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}

	userContent := genai.NewContentFromText(fmt.Sprintf("Research topic: %s\n\nQuestion: %s", topic, question), genai.RoleUser)

	return func(yield func(StreamEvent, error) bool) {
		slog.Info("Starting agent run", "job_id", jobID)
		runCfg := agent.RunConfig{
			StreamingMode: agent.StreamingModeSSE,
		}

		for event, err := range r.Run(ctx, userID, sessionID, userContent, runCfg) {
			if err != nil {
				slog.Error("Agent runner error", "error", err)
				yield(StreamEvent{Type: "error", Payload: err.Error()}, err)
				return
			}
			if event.LLMResponse.Content == nil {
				continue
			}
			for _, part := range event.LLMResponse.Content.Parts {
				if ev, ok := partEvent(part); ok {
					if !yield(ev, nil) {
						return
					}
				}
			}
		}

		slog.Info("Agent run completed", "job_id", jobID)
		yield(StreamEvent{Type: "done", Payload: "done"}, nil)
	}, nil
}

func partEvent(part *genai.Part) (StreamEvent, bool) {
	switch {
	case part == nil:
		return StreamEvent{}, false
	case part.Text != "":
		return StreamEvent{Type: "content", Payload: part.Text}, true
	case part.FunctionCall != nil:
		slog.Info("Agent tool call", "tool", part.FunctionCall.Name)
		return StreamEvent{Type: "tool_call", Payload: part.FunctionCall}, true
	case part.FunctionResponse != nil:
		slog.Info("Agent tool result", "tool", part.FunctionResponse.Name)
		return StreamEvent{Type: "tool_result", Payload: part.FunctionResponse}, true
	}
	return StreamEvent{}, false
}
