package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edupath/assessment-api/pkg/config"
	"github.com/edupath/assessment-api/pkg/jobs"
)

type cleanupObjectStore interface {
	Delete(ctx context.Context, locator string) error
}

// CleanupService owns the best-effort blob deletion queue. Deleting a blob
// can never fail a request; failures are retried in the background and
// logged when retries run out.
type CleanupService struct {
	queue   *jobs.Queue
	logger  *zap.Logger
	metrics *MetricsService
}

// NewCleanupService wires the deletion queue to the object store.
func NewCleanupService(store cleanupObjectStore, metrics *MetricsService, logger *zap.Logger, cfg config.CleanupConfig) *CleanupService {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &CleanupService{logger: logger, metrics: metrics}

	handler := func(ctx context.Context, job jobs.Job) error {
		locator, _ := job.Payload.(string)
		if locator == "" {
			return nil
		}
		dctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		start := time.Now()
		err := store.Delete(dctx, locator)
		if metrics != nil {
			metrics.ObserveStorageOperation("delete", time.Since(start), err)
			metrics.RecordCleanupJob(err == nil)
		}
		return err
	}

	s.queue = jobs.NewQueue("blob-cleanup", handler, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the workers.
func (s *CleanupService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *CleanupService) Stop() {
	s.queue.Stop()
}

// ScheduleDelete queues a blob for removal. The request that produced the
// orphan never observes an error here.
func (s *CleanupService) ScheduleDelete(locator string) {
	if s == nil || locator == "" {
		return
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    "blob-delete",
		Payload: locator,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue blob deletion", zap.String("locator", locator), zap.Error(err))
	}
}
