// Package report orchestrates deep-research report jobs: it persists a job
// record, submits the job to the insight engine in the background, polls it
// to a terminal state, and exposes lookup and cancellation by record id.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/notegraphhq/notegraph/internal/cache"
	"github.com/notegraphhq/notegraph/internal/insight"
	"github.com/notegraphhq/notegraph/internal/job"
	"github.com/notegraphhq/notegraph/internal/op"
	"github.com/notegraphhq/notegraph/internal/store"
	"github.com/notegraphhq/notegraph/pkg/models"
)

const statusTTL = 30 * time.Minute

// Service drives report jobs. Each started job is an independent unit of
// work; the op registry is the only state shared between them.
type Service struct {
	poller *job.Poller
	store  store.Store
	cache  cache.Cache
	ops    *op.Registry
	logger *slog.Logger
}

// NewService creates a report Service.
func NewService(poller *job.Poller, st store.Store, ca cache.Cache, ops *op.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{poller: poller, store: st, cache: ca, ops: ops, logger: logger}
}

// Start creates a queued job record and dispatches submission and polling in
// a background goroutine. It returns the record immediately; callers poll Get
// until the status is terminal.
func (s *Service) Start(ctx context.Context, conversationID, query string) (*models.Job, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id is required")
	}

	rec := &models.Job{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Status:         models.JobStatusQueued,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	if err := s.store.CreateJob(ctx, rec); err != nil {
		return nil, fmt.Errorf("creating job record: %w", err)
	}
	_ = s.cache.SetJobStatus(ctx, rec.ID, models.JobStatusQueued, statusTTL)

	// The operation outlives the HTTP request, so it hangs off a fresh
	// context; cancellation comes only through the registry.
	opCtx, err := s.ops.Begin(context.Background(), rec.ID.String())
	if err != nil {
		return nil, err
	}

	go s.run(opCtx, rec, query)

	return rec, nil
}

// run executes the job lifecycle in a goroutine. It recovers from panics and
// always leaves the record in a terminal state.
func (s *Service) run(ctx context.Context, rec *models.Job, query string) {
	defer s.ops.Finish(rec.ID.String())

	bg := context.Background()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in report run", "error", r, "job_id", rec.ID)
			s.setTerminal(bg, rec, models.JobStatusFailed, store.WithErrorMessage(fmt.Sprintf("panic: %v", r)))
		}
	}()

	h, err := s.poller.Submit(ctx, map[string]any{
		"query":           query,
		"conversation_id": rec.ConversationID,
	})
	if err != nil {
		if insight.IsCancelled(err) {
			s.setTerminal(bg, rec, models.JobStatusCancelled)
			return
		}
		s.setTerminal(bg, rec, models.JobStatusFailed, store.WithErrorMessage(err.Error()))
		return
	}

	_ = s.store.UpdateJobStatus(bg, rec.ID, models.JobStatusProcessing, store.WithRemoteJobID(h.JobID))
	_ = s.cache.SetJobStatus(bg, rec.ID, models.JobStatusProcessing, statusTTL)
	_ = s.cache.SetConversationJob(bg, rec.ConversationID, rec.ID, statusTTL)

	content, err := s.poller.Wait(ctx, h, func(p job.Progress) {
		_ = s.store.UpdateJobStatus(bg, rec.ID, models.JobStatusProcessing, store.WithProgress(p.Message, p.Percent))
	})

	switch {
	case err == nil:
		s.setTerminal(bg, rec, models.JobStatusCompleted, store.WithResult(content))
	case insight.IsCancelled(err):
		s.setTerminal(bg, rec, models.JobStatusCancelled)
	case errors.Is(err, job.ErrTimedOut):
		// The job may still be running server-side; record the unknown
		// outcome distinctly from a confirmed failure.
		s.setTerminal(bg, rec, models.JobStatusTimedOut, store.WithErrorMessage(err.Error()))
	default:
		msg := err.Error()
		var failed *job.FailedError
		if errors.As(err, &failed) && failed.Hint != "" {
			msg = msg + ": " + failed.Hint
		}
		s.setTerminal(bg, rec, models.JobStatusFailed, store.WithErrorMessage(msg))
	}
}

func (s *Service) setTerminal(ctx context.Context, rec *models.Job, status string, opts ...store.JobUpdateOption) {
	if err := s.store.UpdateJobStatus(ctx, rec.ID, status, opts...); err != nil {
		s.logger.Error("updating job record failed", "job_id", rec.ID, "status", status, "error", err)
	}
	_ = s.cache.SetJobStatus(ctx, rec.ID, status, statusTTL)
	s.logger.Info("report job finished", "job_id", rec.ID, "status", status)
}

// Get returns the job record by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.store.GetJob(ctx, id)
}

// Latest returns the most recent job record for a conversation, consulting
// the cache mapping first and falling back to the store.
func (s *Service) Latest(ctx context.Context, conversationID string) (*models.Job, error) {
	if id, ok, err := s.cache.GetConversationJob(ctx, conversationID); err == nil && ok {
		if rec, err := s.store.GetJob(ctx, id); err == nil {
			return rec, nil
		}
	}
	return s.store.GetLatestJobByConversation(ctx, conversationID)
}

// Cancel fires the cancel signal for a running job. It reports whether the
// job was active; the background goroutine records the terminal state.
func (s *Service) Cancel(id uuid.UUID) bool {
	return s.ops.Cancel(id.String())
}
