package etl

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/andes-analytics/lme-etl/internal/db"
)

// errorCode is the fixed numeric code carried by error-state details.
const errorCode = 500

// ServiceConfig tunes an extraction Service.
type ServiceConfig struct {
	PageSize          int
	AuditDir          string
	SourceRatePerSec  float64
	MaxConcurrentRuns int64
}

// Service orchestrates extraction runs: it deduplicates submissions by task
// identity, spawns one background worker per accepted task, drives the
// windowed extraction loop, and records lifecycle state in the status store.
type Service struct {
	status   StatusStore
	source   db.Pool
	dest     db.Pool
	notifier ScoringNotifier
	cfg      ServiceConfig

	sem    *semaphore.Weighted
	mu     sync.Mutex
	wg     sync.WaitGroup
	runCtx context.Context
	cancel context.CancelFunc
	log    *zap.Logger
}

// NewService creates an extraction Service. Background runs use a context
// owned by the Service, so they outlive the request that started them; Close
// cancels it and waits for in-flight runs.
func NewService(status StatusStore, source, dest db.Pool, notifier ScoringNotifier, cfg ServiceConfig) *Service {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = 4
	}
	if cfg.AuditDir == "" {
		cfg.AuditDir = "."
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		status:   status,
		source:   source,
		dest:     dest,
		notifier: notifier,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrentRuns),
		runCtx:   ctx,
		cancel:   cancel,
		log:      zap.L().With(zap.String("component", "etl.service")),
	}
}

// Close cancels in-flight runs and waits for their workers to exit.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// Start validates the request and launches a background extraction run. The
// caller gets the initial status immediately. Submitting a parameter set
// whose task already exists returns that task's current status instead of
// starting a duplicate run.
func (s *Service) Start(ctx context.Context, req Request) (*StatusDoc, error) {
	start, end, err := req.Validate()
	if err != nil {
		return nil, err
	}

	taskID := TaskID(req)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.status.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.log.Info("duplicate submission, returning existing task",
			zap.String("task_id", taskID), zap.String("status", string(existing.Status)))
		return existing, nil
	}

	detail := Detail{TaskID: taskID}
	if err := s.status.Set(ctx, taskID, PhaseInitial, detail); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.run(taskID, req, start, end)

	return &StatusDoc{Status: PhaseInitial, Detail: detail}, nil
}

// Status returns the current status document for a task, or nil if unknown.
func (s *Service) Status(ctx context.Context, taskID string) (*StatusDoc, error) {
	return s.status.Get(ctx, taskID)
}

// run executes one extraction end to end on a worker goroutine.
func (s *Service) run(taskID string, req Request, start, end time.Time) {
	defer s.wg.Done()

	ctx := s.runCtx
	log := s.log.With(zap.String("task_id", taskID),
		zap.String("start_date", req.StartDate), zap.String("end_date", req.EndDate))

	recordCount := 0
	fail := func(err error) {
		log.Error("extraction run failed", zap.Error(err), zap.Int("records", recordCount))
		s.setStatus(taskID, PhaseError, Detail{
			TaskID:        taskID,
			RecordsCopied: recordCount,
			ErrorCode:     errorCode,
			ErrorMessage:  err.Error(),
		})
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		fail(err)
		return
	}
	defer s.sem.Release(1)

	s.setStatus(taskID, PhaseInProcess, Detail{TaskID: taskID})

	audit, err := NewAuditWriter(s.cfg.AuditDir, taskID, time.Now())
	if err != nil {
		fail(err)
		return
	}
	defer func() {
		if err := audit.Close(); err != nil {
			log.Warn("audit file close", zap.Error(err))
		}
	}()
	log.Info("extraction run started", zap.String("audit_file", audit.Path()))

	resolver := NewResolver(s.dest)
	writer := NewWriter(s.dest, resolver)
	extractor := NewExtractor(s.source, s.cfg.PageSize, s.cfg.SourceRatePerSec)

	for _, w := range Windows(start, end) {
		select {
		case <-ctx.Done():
			fail(ctx.Err())
			return
		default:
		}

		err := extractor.ExtractWindow(ctx, w, func(page []*LicenseRecord) error {
			for _, rec := range page {
				// Audit append happens before the destination write so the
				// side file reflects every row that was read.
				if err := audit.Append(rec); err != nil {
					return err
				}
				if err := writer.WriteRecord(ctx, rec); err != nil {
					return err
				}
			}
			recordCount += len(page)
			s.setStatus(taskID, PhaseInProcess, Detail{TaskID: taskID, RecordsCopied: recordCount})
			return nil
		})
		if err != nil {
			fail(err)
			return
		}
	}

	// Scoring is fire-and-forget relative to task outcome: failures are
	// logged and the task still finishes.
	s.setStatus(taskID, PhaseExecuteRN, Detail{TaskID: taskID, RecordsCopied: recordCount})
	if err := s.notifier.Notify(ctx, req.StartDate, req.EndDate); err != nil {
		log.Warn("scoring notification failed", zap.Error(err))
	}

	s.setStatus(taskID, PhaseFinish, Detail{TaskID: taskID, RecordsCopied: recordCount})
	log.Info("extraction run finished", zap.Int("records", recordCount))
}

// setStatus records a transition; store failures are logged, not fatal.
func (s *Service) setStatus(taskID string, phase Phase, detail Detail) {
	if err := s.status.Set(context.Background(), taskID, phase, detail); err != nil {
		s.log.Error("failed to record task status",
			zap.String("task_id", taskID), zap.String("phase", string(phase)), zap.Error(err))
	}
}
