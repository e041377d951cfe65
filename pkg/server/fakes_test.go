package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/deep-research/pkg/clients"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

type memStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*database.Job
	logs map[uuid.UUID][]database.LogEntry
}

func newMemStore() *memStore {
	return &memStore{
		jobs: make(map[uuid.UUID]*database.Job),
		logs: make(map[uuid.UUID][]database.LogEntry),
	}
}

func (m *memStore) put(job database.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = &job
}

func (m *memStore) CreateJob(_ context.Context, topic string, breadth, depth int) (*database.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	job := &database.Job{ID: uuid.New(), Topic: topic, Breadth: breadth, Depth: depth,
		Status: database.StatusPending, CreatedAt: now, UpdatedAt: now}
	m.jobs[job.ID] = job
	cp := *job
	return &cp, nil
}

func (m *memStore) GetJob(_ context.Context, id uuid.UUID) (*database.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, database.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memStore) ListJobs(_ context.Context, limit int) ([]database.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.Job
	for _, j := range m.jobs {
		if len(out) == limit {
			break
		}
		out = append(out, *j)
	}
	return out, nil
}

func (m *memStore) update(id uuid.UUID, fn func(*database.Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return database.ErrJobNotFound
	}
	fn(job)
	job.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) SetJobStatus(_ context.Context, id uuid.UUID, status string) error {
	return m.update(id, func(j *database.Job) { j.Status = status })
}

func (m *memStore) SaveJobState(_ context.Context, id uuid.UUID, state json.RawMessage) error {
	return m.update(id, func(j *database.Job) { j.State = state })
}

func (m *memStore) CompleteJob(_ context.Context, id uuid.UUID, state json.RawMessage, report string) error {
	return m.update(id, func(j *database.Job) {
		j.Status = database.StatusCompleted
		j.State = state
		j.Report = &report
	})
}

func (m *memStore) FailJob(_ context.Context, id uuid.UUID, reason string) error {
	return m.update(id, func(j *database.Job) {
		j.Status = database.StatusFailed
		j.Error = &reason
	})
}

func (m *memStore) DeleteJob(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return database.ErrJobNotFound
	}
	delete(m.jobs, id)
	delete(m.logs, id)
	return nil
}

func (m *memStore) InsertLog(_ context.Context, jobID uuid.UUID, at time.Time, level, message string, metadata json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.logs[jobID]
	m.logs[jobID] = append(entries, database.LogEntry{
		ID: len(entries) + 1, Timestamp: at, Level: level, Message: message, Metadata: metadata,
	})
	return nil
}

func (m *memStore) GetJobLogs(_ context.Context, jobID uuid.UUID) ([]database.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]database.LogEntry(nil), m.logs[jobID]...), nil
}

// scriptedLLM answers by response schema: one query per plan, one learning
// per synthesis with no follow-ups, and a fixed report.
type scriptedLLM struct{}

func (scriptedLLM) Complete(_ context.Context, req research.CompletionRequest) (string, error) {
	switch {
	case strings.Contains(req.Schema, `"queries"`):
		return `{"queries":[{"query":"sodium ion cost","researchGoal":"pricing"}]}`, nil
	case strings.Contains(req.Schema, `"learnings"`):
		return `{"learnings":["Sodium-ion cells are cheaper."],"followUpQuestions":[]}`, nil
	case strings.Contains(req.Schema, `"report"`):
		return `{"report":"# Batteries\n\nSodium wins on cost."}`, nil
	}
	return "{}", nil
}

type fixedSearch struct{}

func (fixedSearch) Search(_ context.Context, query string, _ time.Duration, _ int) ([]research.Document, error) {
	return []research.Document{{URL: "https://example.com/" + strings.ReplaceAll(query, " ", "-"), Markdown: "body"}}, nil
}

type memIndex struct {
	mu       sync.Mutex
	findings []vectorstore.Findings
	deleted  []string
}

func (m *memIndex) Index(_ context.Context, f vectorstore.Findings) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findings = append(m.findings, f)
	return len(f.Learnings) + 1, nil
}

func (m *memIndex) Search(_ context.Context, query string, _ int, jobID string) ([]vectorstore.SimilaritySearchResult, error) {
	return []vectorstore.SimilaritySearchResult{{
		Document: vectorstore.Document{Content: "match for " + query, Metadata: map[string]interface{}{"kind": "learning", "job_id": jobID}},
		Score:    0.5,
	}}, nil
}

func (m *memIndex) List(_ context.Context, jobID, kind string) ([]vectorstore.Document, error) {
	return []vectorstore.Document{{Content: "stored", Metadata: map[string]interface{}{"job_id": jobID, "kind": kind}}}, nil
}

func (m *memIndex) Delete(_ context.Context, jobID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, jobID)
	return 1, nil
}

func testConfig() *config.Config {
	return &config.Config{
		DefaultBreadth: 2,
		DefaultDepth:   1,
		SearchTimeout:  time.Second,
		SearchLimit:    5,
		MaxLearnings:   5,
		MaxFollowUps:   3,
	}
}

func newTestService(store *memStore, index *memIndex) *Service {
	llm := scriptedLLM{}
	var idx FindingsIndex
	if index != nil {
		idx = index
	}
	svc := NewService(store, &clients.Models{Research: llm, Feedback: llm, Report: llm}, fixedSearch{}, idx, testConfig())
	svc.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return svc
}
