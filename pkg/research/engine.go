package research

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Engine expands a research topic into a tree of search queries and collects
// the learnings and URLs found along the way.
type Engine struct {
	Planner      *QueryPlanner
	Gateway      *SearchGateway
	Synthesizer  *ResultSynthesizer
	MaxLearnings int
	MaxFollowUps int
	Logger       *slog.Logger
	OnProgress   func(p Progress)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger replaces the engine's logger and that of its components.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.Logger = logger
		e.Planner.Logger = logger
		e.Gateway.Logger = logger
		e.Synthesizer.Logger = logger
	}
}

// WithSearchLimits sets the per-query search timeout and document limit.
func WithSearchLimits(timeout time.Duration, limit int) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.Gateway.Timeout = timeout
		}
		if limit > 0 {
			e.Gateway.Limit = limit
		}
	}
}

// WithSynthesisLimits sets how many learnings and follow-up questions are
// kept per query.
func WithSynthesisLimits(maxLearnings, maxFollowUps int) Option {
	return func(e *Engine) {
		e.MaxLearnings = maxLearnings
		e.MaxFollowUps = maxFollowUps
	}
}

// WithProgress registers a callback invoked after every processed query.
func WithProgress(fn func(p Progress)) Option {
	return func(e *Engine) { e.OnProgress = fn }
}

// NewEngine wires the planner, gateway and synthesizer around llm and search.
func NewEngine(llm LanguageModel, search SearchService, opts ...Option) *Engine {
	logger := slog.Default()
	e := &Engine{
		Planner:      NewQueryPlanner(llm, logger),
		Gateway:      NewSearchGateway(search, logger),
		Synthesizer:  NewResultSynthesizer(llm, logger),
		MaxLearnings: DefaultMaxLearnings,
		MaxFollowUps: DefaultMaxFollowUps,
		Logger:       logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Research validates the traversal parameters and expands topic from an
// empty state.
func (e *Engine) Research(ctx context.Context, topic string, breadth, depth int) (ResearchState, error) {
	if strings.TrimSpace(topic) == "" {
		return ResearchState{}, ErrEmptyTopic
	}
	if breadth < 1 {
		return ResearchState{}, ErrInvalidBreadth
	}
	if depth < 1 {
		return ResearchState{}, ErrInvalidDepth
	}

	e.Logger.Info("Starting deep research", "breadth", breadth, "depth", depth)
	state := e.Expand(ctx, topic, breadth, depth, ResearchState{})
	e.Logger.Info("Deep research complete", "learnings", len(state.Learnings), "visited_urls", len(state.VisitedURLs))
	return state, nil
}

// Expand researches topic at the given breadth and depth, starting from a
// copy of seed. For every planned query it searches, synthesizes, and while
// depth remains recurses into the first follow-up question with halved
// breadth. The returned state contains seed plus everything found below it,
// without duplicates.
func (e *Engine) Expand(ctx context.Context, topic string, breadth, depth int, seed ResearchState) ResearchState {
	state := seed.Clone()

	e.Logger.Info("Starting research level", "depth", depth, "breadth", breadth, "topic", topic)

	queries := e.Planner.Plan(ctx, topic, state.Learnings, breadth)
	if len(queries) == 0 {
		e.Logger.Warn("No queries generated for level", "depth", depth)
	}

	for i, q := range queries {
		e.Logger.Info("Running query", "index", i+1, "total", len(queries), "query", q.Query, "goal", q.ResearchGoal)

		docs := e.Gateway.Search(ctx, q.Query)
		for _, d := range docs {
			state.VisitedURLs = append(state.VisitedURLs, d.URL)
		}

		result := e.Synthesizer.Synthesize(ctx, q.Query, docs, e.MaxLearnings, e.MaxFollowUps)
		state.Learnings = append(state.Learnings, result.Learnings...)

		e.report(Progress{
			Topic:        topic,
			Depth:        depth,
			Breadth:      breadth,
			QueryIndex:   i + 1,
			TotalQueries: len(queries),
			Query:        q.Query,
			Learnings:    len(state.Learnings),
			VisitedURLs:  len(state.VisitedURLs),
			State:        state.Clone(),
		})

		if depth <= 1 || len(result.FollowUpQuestions) == 0 {
			continue
		}

		next := nextBreadth(breadth)
		e.Logger.Info("Descending into follow-up", "depth", depth-1, "breadth", next, "question", result.FollowUpQuestions[0])
		state = e.Expand(ctx, result.FollowUpQuestions[0], next, depth-1, state)
	}

	return state.Collapse()
}

func (e *Engine) report(p Progress) {
	if e.OnProgress != nil {
		e.OnProgress(p)
	}
}

// nextBreadth halves breadth for the next level, never going below one.
func nextBreadth(breadth int) int {
	return max(1, breadth/2)
}
