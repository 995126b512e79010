package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/conference-timetable/internal/models"
	appErrors "github.com/noah-isme/conference-timetable/pkg/errors"
	"github.com/noah-isme/conference-timetable/pkg/jobs"
)

// Sweep triggers.
const (
	SweepTriggerSchedule = "schedule"
	SweepTriggerManual   = "manual"
)

// ErrSweepRunning is returned when a sweep is requested while one is in progress.
var ErrSweepRunning = appErrors.New("SWEEP_RUNNING", http.StatusConflict, "an audit sweep is already running")

type eventIDLister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

type eventAuditor interface {
	RefreshAudit(ctx context.Context, eventID string) (*models.AuditReport, error)
}

type sweepReportSink interface {
	SaveSweepReport(runID string, reports []models.AuditReport) (string, error)
	Cleanup(ttl time.Duration) ([]string, error)
}

// AuditSweepConfig tunes the background sweep.
type AuditSweepConfig struct {
	Schedule      string
	Workers       int
	RatePerSecond float64
	MaxRetries    int
	RetryDelay    time.Duration
}

// SweepResult summarises one sweep over every event.
type SweepResult struct {
	RunID        string               `json:"run_id"`
	Trigger      string               `json:"trigger"`
	Events       int                  `json:"events"`
	Inconsistent []string             `json:"inconsistent"`
	Failed       []string             `json:"failed"`
	Reports      []models.AuditReport `json:"-"`
	ReportPath   string               `json:"report_path,omitempty"`
	StartedAt    time.Time            `json:"started_at"`
	FinishedAt   time.Time            `json:"finished_at"`
}

type sweepRun struct {
	mu      sync.Mutex
	reports map[string]models.AuditReport
	missing map[string]struct{}
}

// AuditSweepService periodically re-validates every persisted event. Audits
// run on a rate limited worker queue and refresh the audit cache; results
// are summarised in a stored CSV report.
type AuditSweepService struct {
	events  eventIDLister
	auditor eventAuditor
	reports sweepReportSink
	metrics *MetricsService
	logger  *zap.Logger
	cfg     AuditSweepConfig

	queue *jobs.Queue
	cron  *cron.Cron

	running sync.Mutex
	runsMu  sync.Mutex
	runs    map[string]*sweepRun
}

// NewAuditSweepService wires the sweep. reports may be nil.
func NewAuditSweepService(events eventIDLister, auditor eventAuditor, reports sweepReportSink, metrics *MetricsService, cfg AuditSweepConfig, logger *zap.Logger) *AuditSweepService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	s := &AuditSweepService{
		events:  events,
		auditor: auditor,
		reports: reports,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		runs:    map[string]*sweepRun{},
	}
	s.queue = jobs.NewQueue("timetable-audit", s.handle, jobs.QueueConfig{
		Workers:       cfg.Workers,
		MaxRetries:    cfg.MaxRetries,
		RetryDelay:    cfg.RetryDelay,
		RatePerSecond: cfg.RatePerSecond,
		Burst:         cfg.Workers,
		Logger:        logger,
	})
	return s
}

// Start launches the workers and, when a schedule is configured, the cron
// trigger. Scheduled sweeps run until ctx ends.
func (s *AuditSweepService) Start(ctx context.Context) error {
	s.queue.Start(ctx)
	if s.cfg.Schedule == "" {
		return nil
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s.cron = cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC))
	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() { s.scheduled(ctx) }); err != nil {
		return fmt.Errorf("invalid audit sweep schedule %q: %w", s.cfg.Schedule, err)
	}
	s.cron.Start()
	s.logger.Info("audit sweep scheduled", zap.String("schedule", s.cfg.Schedule))
	return nil
}

// Stop halts the cron trigger and the workers.
func (s *AuditSweepService) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.queue.Stop()
}

func (s *AuditSweepService) scheduled(ctx context.Context) {
	result, err := s.Sweep(ctx, SweepTriggerSchedule)
	if err != nil {
		if errors.Is(err, ErrSweepRunning) {
			s.logger.Warn("skipping scheduled audit sweep, previous run still active")
			return
		}
		s.logger.Error("scheduled audit sweep failed", zap.Error(err))
		return
	}
	if s.reports != nil {
		if _, err := s.reports.Cleanup(0); err != nil {
			s.logger.Warn("report cleanup failed", zap.Error(err))
		}
	}
	s.logger.Info("scheduled audit sweep finished",
		zap.String("run_id", result.RunID),
		zap.Int("events", result.Events),
		zap.Int("inconsistent", len(result.Inconsistent)),
	)
}

// Sweep audits every event once and waits for the run to finish. Start must
// have been called. Only one sweep runs at a time.
func (s *AuditSweepService) Sweep(ctx context.Context, trigger string) (*SweepResult, error) {
	if !s.running.TryLock() {
		return nil, ErrSweepRunning
	}
	defer s.running.Unlock()

	ids, err := s.events.ListIDs(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}

	result := &SweepResult{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		Events:    len(ids),
		StartedAt: time.Now().UTC(),
	}
	run := &sweepRun{reports: map[string]models.AuditReport{}, missing: map[string]struct{}{}}
	s.runsMu.Lock()
	s.runs[result.RunID] = run
	s.runsMu.Unlock()
	defer func() {
		s.runsMu.Lock()
		delete(s.runs, result.RunID)
		s.runsMu.Unlock()
	}()

	for _, id := range ids {
		job := jobs.Job{ID: result.RunID + ":" + id, RunID: result.RunID, EventID: id}
		if err := s.queue.Enqueue(job); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "audit queue unavailable")
		}
	}
	if err := s.queue.Wait(ctx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "audit sweep interrupted")
	}

	run.mu.Lock()
	for _, id := range ids {
		report, ok := run.reports[id]
		if _, gone := run.missing[id]; gone {
			continue
		}
		if !ok {
			result.Failed = append(result.Failed, id)
			continue
		}
		result.Reports = append(result.Reports, report)
		if !report.Consistent {
			result.Inconsistent = append(result.Inconsistent, id)
		}
	}
	run.mu.Unlock()
	sort.Strings(result.Failed)
	sort.Strings(result.Inconsistent)
	result.FinishedAt = time.Now().UTC()
	s.metrics.SetInconsistentEvents(len(result.Inconsistent))

	if s.reports != nil && len(result.Reports) > 0 {
		path, err := s.reports.SaveSweepReport(result.RunID, result.Reports)
		if err != nil {
			s.logger.Warn("failed to store sweep report", zap.String("run_id", result.RunID), zap.Error(err))
		} else {
			result.ReportPath = path
		}
	}

	s.logger.Info("audit sweep completed",
		zap.String("run_id", result.RunID),
		zap.String("trigger", trigger),
		zap.Int("events", result.Events),
		zap.Strings("inconsistent", result.Inconsistent),
		zap.Strings("failed", result.Failed),
	)
	return result, nil
}

func (s *AuditSweepService) handle(ctx context.Context, job jobs.Job) error {
	s.runsMu.Lock()
	run := s.runs[job.RunID]
	s.runsMu.Unlock()

	report, err := s.auditor.RefreshAudit(ctx, job.EventID)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			// deleted since the sweep listed it
			if run != nil {
				run.mu.Lock()
				run.missing[job.EventID] = struct{}{}
				run.mu.Unlock()
			}
			s.metrics.ObserveAuditJob("skipped")
			return nil
		}
		s.metrics.ObserveAuditJob("failed")
		return err
	}
	s.metrics.ObserveAuditJob("audited")
	if run != nil {
		run.mu.Lock()
		run.reports[job.EventID] = *report
		run.mu.Unlock()
	}
	return nil
}
