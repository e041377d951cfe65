package research

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(llm *stubLLM, search *stubSearch, opts ...Option) *Engine {
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	return NewEngine(llm, search, opts...)
}

func TestExpandBreadthTwoDepthTwo(t *testing.T) {
	llm := &stubLLM{}
	search := &stubSearch{}
	var progress []Progress
	engine := newTestEngine(llm, search, WithProgress(func(p Progress) { progress = append(progress, p) }))

	state := engine.Expand(context.Background(), "renewable energy storage", 2, 2, ResearchState{})

	// One plan at depth 2 and one per recursive child at depth 1.
	assert.Equal(t, []int{2, 1, 1}, llm.planCounts)
	assert.Equal(t, 4, llm.synthCalls)
	assert.Len(t, search.queries, 4)
	assert.Len(t, state.Learnings, 4)
	assert.Len(t, state.VisitedURLs, 4)
	assert.Len(t, progress, 4)

	assert.Equal(t, []string{
		"learning about query-1-1",
		"learning about query-2-1",
		"learning about query-1-2",
		"learning about query-3-1",
	}, state.Learnings)
}

func TestExpandChildStateFeedsLaterSiblings(t *testing.T) {
	llm := &stubLLM{}
	engine := newTestEngine(llm, &stubSearch{})

	engine.Expand(context.Background(), "topic", 2, 2, ResearchState{})

	require.Len(t, llm.planPrompts, 3)
	// The second child is planned after the first subtree has been merged back.
	assert.Contains(t, llm.planPrompts[2], "learning about query-2-1")
	assert.Contains(t, llm.planPrompts[2], "learning about query-1-2")
	// The child topic is the first follow-up question.
	assert.Contains(t, llm.planPrompts[1], "follow up on query-1-1")
}

func TestExpandDepthOneDoesNotRecurse(t *testing.T) {
	llm := &stubLLM{}
	search := &stubSearch{}
	engine := newTestEngine(llm, search)

	state := engine.Expand(context.Background(), "topic", 3, 1, ResearchState{})

	assert.Equal(t, 1, llm.planCalls)
	assert.Equal(t, 3, llm.synthCalls)
	assert.Len(t, search.queries, 3)
	assert.Len(t, state.Learnings, 3)
}

func TestExpandTerminates(t *testing.T) {
	for _, depth := range []int{1, 2, 5, 8} {
		llm := &stubLLM{}
		engine := newTestEngine(llm, &stubSearch{})

		engine.Expand(context.Background(), "topic", 1, depth, ResearchState{})

		assert.Equal(t, depth, llm.planCalls, "depth %d", depth)
	}
}

func TestExpandBreadthNeverReachesZero(t *testing.T) {
	llm := &stubLLM{}
	engine := newTestEngine(llm, &stubSearch{})

	engine.Expand(context.Background(), "topic", 4, 3, ResearchState{})

	require.NotEmpty(t, llm.planCounts)
	assert.Equal(t, 4, llm.planCounts[0])
	assert.Equal(t, 2, llm.planCounts[1])
	assert.Equal(t, 1, llm.planCounts[2])
	for _, n := range llm.planCounts {
		assert.GreaterOrEqual(t, n, 1)
	}
}

func TestNextBreadth(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 1},
		{1, 1},
		{2, 1},
		{3, 1},
		{4, 2},
		{5, 2},
		{9, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, nextBreadth(tt.in), "nextBreadth(%d)", tt.in)
	}
}

func TestExpandDeduplicatesAcrossBranches(t *testing.T) {
	llm := &stubLLM{learning: func(string) string { return "the same fact" }}
	search := &stubSearch{urlFor: func(string) string { return "https://example.com/same" }}
	engine := newTestEngine(llm, search)

	state := engine.Expand(context.Background(), "topic", 3, 3, ResearchState{})

	assert.Equal(t, []string{"the same fact"}, state.Learnings)
	assert.Equal(t, []string{"https://example.com/same"}, state.VisitedURLs)
}

func TestExpandKeepsSeed(t *testing.T) {
	seed := ResearchState{
		Learnings:   []string{"seed fact", "seed fact"},
		VisitedURLs: []string{"https://seed.example"},
	}
	engine := newTestEngine(&stubLLM{}, &stubSearch{})

	state := engine.Expand(context.Background(), "topic", 2, 2, seed)

	assert.Subset(t, state.Learnings, seed.Learnings)
	assert.Subset(t, state.VisitedURLs, seed.VisitedURLs)
	assert.Equal(t, "seed fact", state.Learnings[0])
	// The caller's seed is left untouched.
	assert.Equal(t, []string{"seed fact", "seed fact"}, seed.Learnings)
	assert.Equal(t, []string{"https://seed.example"}, seed.VisitedURLs)
}

func TestExpandSearchFailure(t *testing.T) {
	llm := &stubLLM{}
	search := &stubSearch{err: errors.New("quota exceeded")}
	engine := newTestEngine(llm, search)

	state, err := engine.Research(context.Background(), "topic", 2, 2)

	require.NoError(t, err)
	assert.Empty(t, state.VisitedURLs)
	// Synthesis still runs on every query and its follow-ups keep the tree growing.
	assert.Equal(t, 3, llm.planCalls)
	assert.Equal(t, 4, llm.synthCalls)
	assert.Len(t, search.queries, 4)
	assert.Len(t, state.Learnings, 4)
}

func TestExpandEmptySearchResultsKeepRecursing(t *testing.T) {
	llm := &stubLLM{learning: func(string) string { return "" }}
	search := &stubSearch{docs: []Document{}}
	engine := newTestEngine(llm, search)

	state := engine.Expand(context.Background(), "topic", 2, 3, ResearchState{})

	assert.Equal(t, 5, llm.planCalls)
	assert.Equal(t, 6, llm.synthCalls)
	assert.Len(t, search.queries, 6)
	assert.Empty(t, state.Learnings)
	assert.Empty(t, state.VisitedURLs)
	// Each level descends into the first follow-up of the query above it.
	assert.Contains(t, llm.planPrompts[1], "follow up on query-1-1")
}

func TestExpandPlannerFailure(t *testing.T) {
	llm := &stubLLM{errs: map[string]error{plannerSystemPrompt: errors.New("model offline")}}
	search := &stubSearch{}
	engine := newTestEngine(llm, search)

	seed := ResearchState{Learnings: []string{"known"}}
	state := engine.Expand(context.Background(), "topic", 2, 2, seed)

	assert.Equal(t, []string{"known"}, state.Learnings)
	assert.Empty(t, search.queries)
}

func TestExpandStopsWithoutFollowUps(t *testing.T) {
	llm := &stubLLM{followUps: func(string) []string { return nil }}
	engine := newTestEngine(llm, &stubSearch{})

	state := engine.Expand(context.Background(), "topic", 2, 4, ResearchState{})

	assert.Equal(t, 1, llm.planCalls)
	assert.Len(t, state.Learnings, 2)
}

func TestResearchValidation(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		breadth int
		depth   int
		wantErr error
	}{
		{"empty topic", "  ", 2, 2, ErrEmptyTopic},
		{"zero breadth", "topic", 0, 2, ErrInvalidBreadth},
		{"negative depth", "topic", 2, -1, ErrInvalidDepth},
		{"zero depth", "topic", 2, 0, ErrInvalidDepth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &stubLLM{}
			engine := newTestEngine(llm, &stubSearch{})

			_, err := engine.Research(context.Background(), tt.topic, tt.breadth, tt.depth)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, llm.planCalls)
		})
	}
}

func TestEngineOptions(t *testing.T) {
	search := &stubSearch{}
	engine := newTestEngine(&stubLLM{}, search,
		WithSearchLimits(3*DefaultSearchTimeout, 2),
		WithSynthesisLimits(1, 1),
	)

	engine.Expand(context.Background(), "topic", 1, 1, ResearchState{})

	assert.Equal(t, 3*DefaultSearchTimeout, search.lastTimeout)
	assert.Equal(t, 2, search.lastLimit)
	assert.Equal(t, 1, engine.MaxLearnings)
}

func TestResearchStateCollapse(t *testing.T) {
	s := ResearchState{
		Learnings:   []string{"b", "a", "b", "c", "a"},
		VisitedURLs: []string{"u1", "u1"},
	}

	got := s.Collapse()

	assert.Equal(t, []string{"b", "a", "c"}, got.Learnings)
	assert.Equal(t, []string{"u1"}, got.VisitedURLs)
}
