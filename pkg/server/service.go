package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mikeboe/deep-research/pkg/chat"
	"github.com/mikeboe/deep-research/pkg/clients"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

// ListLimit caps the number of jobs returned by ListJobs.
const ListLimit = 50

// Upper bounds for a job's traversal parameters.
const (
	MaxBreadth = 10
	MaxDepth   = 5
)

var (
	// ErrJobNotCompleted is returned when findings are requested for a job
	// that has not finished.
	ErrJobNotCompleted = errors.New("research job has not completed")
	ErrBreadthTooLarge = fmt.Errorf("breadth must be at most %d", MaxBreadth)
	ErrDepthTooLarge   = fmt.Errorf("depth must be at most %d", MaxDepth)
	ErrShuttingDown    = errors.New("research service is shutting down")
)

// JobStore persists research jobs and their logs.
type JobStore interface {
	LogSink
	CreateJob(ctx context.Context, topic string, breadth, depth int) (*database.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*database.Job, error)
	ListJobs(ctx context.Context, limit int) ([]database.Job, error)
	SetJobStatus(ctx context.Context, id uuid.UUID, status string) error
	SaveJobState(ctx context.Context, id uuid.UUID, state json.RawMessage) error
	CompleteJob(ctx context.Context, id uuid.UUID, state json.RawMessage, report string) error
	FailJob(ctx context.Context, id uuid.UUID, reason string) error
	DeleteJob(ctx context.Context, id uuid.UUID) error
	GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]database.LogEntry, error)
}

// FindingsIndex stores and searches the findings of completed jobs.
type FindingsIndex interface {
	chat.FindingsSearcher
	Index(ctx context.Context, f vectorstore.Findings) (int, error)
	List(ctx context.Context, jobID, kind string) ([]vectorstore.Document, error)
	Delete(ctx context.Context, jobID string) (int64, error)
}

// Asker answers questions about a job's findings.
type Asker interface {
	Ask(ctx context.Context, jobID, topic, question string) (iter.Seq2[chat.StreamEvent, error], error)
}

type Service struct {
	Store  JobStore
	Models *clients.Models
	Search research.SearchService
	// Index is optional; without it jobs are not indexed and findings
	// endpoints report an error.
	Index  FindingsIndex
	Cfg    *config.Config
	Logger *slog.Logger

	// ctx is the parent of every worker; Shutdown cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	wg     sync.WaitGroup
}

func NewService(store JobStore, models *clients.Models, search research.SearchService, index FindingsIndex, cfg *config.Config) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		Store:  store,
		Models: models,
		Search: search,
		Index:  index,
		Cfg:    cfg,
		Logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
	}
}

type CreateJobRequest struct {
	Topic   string `json:"topic" binding:"required"`
	Breadth int    `json:"breadth" binding:"omitempty,min=1,max=10"`
	Depth   int    `json:"depth" binding:"omitempty,min=1,max=5"`
}

// CreateJob stores a pending job and starts researching it in the background.
// Zero breadth or depth take the configured defaults; both are bounded by
// MaxBreadth and MaxDepth.
func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*database.Job, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, research.ErrEmptyTopic
	}
	breadth, depth := req.Breadth, req.Depth
	if breadth == 0 {
		breadth = s.Cfg.DefaultBreadth
	}
	if depth == 0 {
		depth = s.Cfg.DefaultDepth
	}
	if breadth < 1 {
		return nil, research.ErrInvalidBreadth
	}
	if depth < 1 {
		return nil, research.ErrInvalidDepth
	}
	if breadth > MaxBreadth {
		return nil, ErrBreadthTooLarge
	}
	if depth > MaxDepth {
		return nil, ErrDepthTooLarge
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return nil, ErrShuttingDown
	}

	job, err := s.Store.CreateJob(ctx, topic, breadth, depth)
	if err != nil {
		return nil, err
	}

	// Start background worker
	s.wg.Add(1)
	go s.runWorker(s.ctx, job)

	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*database.Job, error) {
	return s.Store.GetJob(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context) ([]database.Job, error) {
	return s.Store.ListJobs(ctx, ListLimit)
}

func (s *Service) GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]database.LogEntry, error) {
	if _, err := s.Store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.Store.GetJobLogs(ctx, jobID)
}

// DeleteJob removes a job, its logs and its indexed findings.
func (s *Service) DeleteJob(ctx context.Context, id uuid.UUID) error {
	if err := s.Store.DeleteJob(ctx, id); err != nil {
		return err
	}
	if s.Index != nil {
		if _, err := s.Index.Delete(ctx, id.String()); err != nil {
			return fmt.Errorf("job deleted but findings were kept: %w", err)
		}
	}
	return nil
}

// Findings lists the indexed findings of a completed job.
func (s *Service) Findings(ctx context.Context, id uuid.UUID, kind string) ([]vectorstore.Document, error) {
	job, err := s.completedJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Index.List(ctx, job.ID.String(), kind)
}

// SearchFindings runs semantic search over the findings of a completed job.
func (s *Service) SearchFindings(ctx context.Context, id uuid.UUID, query string, topK int) (string, error) {
	job, err := s.completedJob(ctx, id)
	if err != nil {
		return "", err
	}
	resp, err := chat.NewFindingsToolset(s.Index, job.ID.String()).SearchFindings(ctx, chat.SearchFindingsArgs{
		Query: query,
		TopK:  topK,
	})
	if err != nil {
		return "", err
	}
	return resp.Results, nil
}

func (s *Service) completedJob(ctx context.Context, id uuid.UUID) (*database.Job, error) {
	if s.Index == nil {
		return nil, fmt.Errorf("findings index is not configured")
	}
	job, err := s.Store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != database.StatusCompleted {
		return nil, ErrJobNotCompleted
	}
	return job, nil
}

// Wait blocks until every running worker has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown stops accepting jobs, cancels the running ones and waits until
// their workers have recorded the outcome or ctx is done.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runWorker researches job under ctx. Job records are written with a context
// that outlives cancellation so an interrupted job is still marked failed.
func (s *Service) runWorker(ctx context.Context, job *database.Job) {
	defer s.wg.Done()
	storeCtx := context.WithoutCancel(ctx)

	jobLogger := slog.New(NewJobLogHandler(s.Store, job.ID, s.Logger.Handler())).With("job_id", job.ID.String())

	if err := s.Store.SetJobStatus(storeCtx, job.ID, database.StatusRunning); err != nil {
		jobLogger.Error("Failed to mark job running", "error", err)
	}

	engine := research.NewEngine(s.Models.Research, s.Search,
		research.WithLogger(jobLogger),
		research.WithSearchLimits(s.Cfg.SearchTimeout, s.Cfg.SearchLimit),
		research.WithSynthesisLimits(s.Cfg.MaxLearnings, s.Cfg.MaxFollowUps),
		// Hook for state persistence
		research.WithProgress(func(p research.Progress) {
			stateJSON, err := json.Marshal(p.State)
			if err != nil {
				jobLogger.Error("Failed to marshal state", "error", err)
				return
			}
			if err := s.Store.SaveJobState(storeCtx, job.ID, stateJSON); err != nil {
				jobLogger.Error("Failed to save state to DB", "error", err)
			}
		}),
	)

	state, err := engine.Research(ctx, job.Topic, job.Breadth, job.Depth)
	if err != nil {
		s.failJob(storeCtx, job.ID, jobLogger, fmt.Sprintf("Research failed: %v", err))
		return
	}
	if ctx.Err() != nil {
		s.failJob(storeCtx, job.ID, jobLogger, "Research interrupted by shutdown")
		return
	}

	report := research.WriteFinalReport(ctx, s.Models.Report, jobLogger, job.Topic, state.Learnings, state.VisitedURLs)

	if s.Index != nil {
		n, err := s.Index.Index(ctx, vectorstore.Findings{
			JobID:     job.ID.String(),
			Topic:     job.Topic,
			Learnings: state.Learnings,
			Report:    report,
		})
		if err != nil {
			jobLogger.Warn("Failed to index findings", "error", err)
		} else {
			jobLogger.Info("Indexed findings", "documents", n)
		}
	}

	if ctx.Err() != nil {
		s.failJob(storeCtx, job.ID, jobLogger, "Report interrupted by shutdown")
		return
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		s.failJob(storeCtx, job.ID, jobLogger, fmt.Sprintf("Failed to encode state: %v", err))
		return
	}
	if err := s.Store.CompleteJob(storeCtx, job.ID, stateJSON, report); err != nil {
		jobLogger.Error("Failed to save final report to DB", "error", err)
		return
	}
	jobLogger.Info("Research job completed", "learnings", len(state.Learnings), "visited_urls", len(state.VisitedURLs))
}

func (s *Service) failJob(ctx context.Context, jobID uuid.UUID, logger *slog.Logger, reason string) {
	logger.Error(reason)
	if err := s.Store.FailJob(ctx, jobID, reason); err != nil {
		logger.Error("Failed to mark job failed", "error", err)
	}
}
