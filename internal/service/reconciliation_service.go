package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/olympiad-registration-api/internal/dto"
	"github.com/noah-isme/olympiad-registration-api/internal/models"
	"github.com/noah-isme/olympiad-registration-api/internal/reconcile"
	appErrors "github.com/noah-isme/olympiad-registration-api/pkg/errors"
	"github.com/noah-isme/olympiad-registration-api/pkg/jobs"
)

// JobTypeReconcile identifies reconciliation jobs on the queue.
const JobTypeReconcile = "reconcile_registrations"

type reconcileStore interface {
	ListRaw(ctx context.Context) ([]reconcile.RawRegistration, error)
	// Rewrite hands fn the stored set and replaces it with fn's result, with writers
	// blocked in between.
	Rewrite(ctx context.Context, fn func([]reconcile.RawRegistration) ([]models.Registration, error)) error
}

type callCatalog interface {
	ListAll(ctx context.Context) ([]models.Call, error)
	ListAreas(ctx context.Context) ([]models.Area, error)
}

type reconcileQueue interface {
	Enqueue(job jobs.Job) (bool, error)
}

// ReconciliationService repairs the stored registration set in place.
type ReconciliationService struct {
	store         reconcileStore
	calls         callCatalog
	reconciler    *reconcile.Reconciler
	defaultCallID string
	metrics       *MetricsService
	logger        *zap.Logger
	queue         reconcileQueue

	mu      sync.Mutex
	latest  *dto.ReconciliationRun
	latestM sync.RWMutex
}

// NewReconciliationService constructs a ReconciliationService.
func NewReconciliationService(store reconcileStore, calls callCatalog, reconciler *reconcile.Reconciler, defaultCallID string, metrics *MetricsService, logger *zap.Logger) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reconciler == nil {
		reconciler = reconcile.New(reconcile.Options{Logger: logger})
	}
	return &ReconciliationService{
		store:         store,
		calls:         calls,
		reconciler:    reconciler,
		defaultCallID: defaultCallID,
		metrics:       metrics,
		logger:        logger,
	}
}

// AttachQueue wires the queue used by Schedule.
func (s *ReconciliationService) AttachQueue(queue reconcileQueue) {
	s.queue = queue
}

// Run loads every stored registration, reconciles and, unless dryRun, writes the result
// back as the complete registration set. Applied runs read and write under one store lock,
// so submissions and payment updates land either before or after a run, never inside it.
func (s *ReconciliationService) Run(ctx context.Context, dryRun bool) (*dto.ReconciliationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now().UTC()
	calls, err := s.calls.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load calls")
	}
	areas, err := s.calls.ListAreas(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load areas")
	}
	reconcileSet := func(raw []reconcile.RawRegistration) *reconcile.Result {
		return s.reconciler.Reconcile(reconcile.Input{
			Registrations: raw,
			Calls:         calls,
			Areas:         areas,
			DefaultCallID: s.defaultCallID,
		})
	}

	var result *reconcile.Result
	if dryRun {
		raw, err := s.store.ListRaw(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registrations")
		}
		result = reconcileSet(raw)
	} else {
		err := s.store.Rewrite(ctx, func(raw []reconcile.RawRegistration) ([]models.Registration, error) {
			result = reconcileSet(raw)
			return result.Registrations, nil
		})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reconcile stored registrations")
		}
	}

	finished := time.Now().UTC()
	s.metrics.RecordReconciliation(result.Report, dryRun, finished.Sub(started))
	s.logger.Info("reconciliation finished",
		zap.Bool("dry_run", dryRun),
		zap.Int("input", result.Report.Input),
		zap.Int("output", result.Report.Output),
		zap.Int("dropped", result.Report.Dropped),
		zap.Int("merged", result.Report.Merged),
		zap.Duration("took", finished.Sub(started)),
	)

	run := &dto.ReconciliationRun{DryRun: dryRun, StartedAt: started, FinishedAt: finished, Report: &result.Report}
	if !dryRun {
		s.latestM.Lock()
		s.latest = run
		s.latestM.Unlock()
	}
	return run, nil
}

// Schedule queues an applied run. Requests made while one is already waiting are folded into it.
func (s *ReconciliationService) Schedule() (*dto.ReconciliationRun, error) {
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "reconciliation worker is not running")
	}
	if _, err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: JobTypeReconcile, Key: JobTypeReconcile}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue reconciliation")
	}
	return &dto.ReconciliationRun{Queued: true}, nil
}

// Latest returns the last applied run, or nil when none happened yet.
func (s *ReconciliationService) Latest() *dto.ReconciliationRun {
	s.latestM.RLock()
	defer s.latestM.RUnlock()
	return s.latest
}

// Handle is the queue handler for reconciliation jobs.
func (s *ReconciliationService) Handle(ctx context.Context, job jobs.Job) error {
	if job.Type != JobTypeReconcile {
		s.logger.Warn("ignoring unexpected job", zap.String("type", job.Type), zap.String("job_id", job.ID))
		return nil
	}
	_, err := s.Run(ctx, false)
	return err
}
