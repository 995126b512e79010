package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/conference-timetable/internal/dto"
	"github.com/noah-isme/conference-timetable/internal/models"
	"github.com/noah-isme/conference-timetable/internal/repository"
	"github.com/noah-isme/conference-timetable/internal/timetable"
	"github.com/noah-isme/conference-timetable/pkg/database"
	appErrors "github.com/noah-isme/conference-timetable/pkg/errors"
)

const auditCacheKeyPrefix = "timetable:audit:"

// AuditCacheKey is the cache key of an event's audit report.
func AuditCacheKey(eventID string) string {
	return auditCacheKeyPrefix + eventID
}

type timetableTxProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type timetableStore interface {
	timetable.TreeSource
	WithExec(exec sqlx.ExtContext) timetable.TreeSource
	ApplyChanges(ctx context.Context, exec sqlx.ExtContext, changes timetable.EventChanges) error
}

type auditCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// TimetableServiceConfig tunes transaction and caching behaviour.
type TimetableServiceConfig struct {
	TxOptions *sql.TxOptions
	CacheTTL  time.Duration
}

// TimetableService applies batches of timetable mutations atomically and
// audits persisted timetables.
type TimetableService struct {
	db        timetableTxProvider
	store     timetableStore
	engine    *timetable.Engine
	validator *validator.Validate
	cache     auditCache
	metrics   *MetricsService
	cfg       TimetableServiceConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewTimetableService wires timetable dependencies. A nil engine gets one
// reading from store.
func NewTimetableService(
	db timetableTxProvider,
	store timetableStore,
	engine *timetable.Engine,
	validate *validator.Validate,
	cache auditCache,
	metrics *MetricsService,
	cfg TimetableServiceConfig,
	logger *zap.Logger,
) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = timetable.NewEngine(store, logger)
	}
	if cache == nil {
		cache = (*CacheService)(nil)
	}
	return &TimetableService{
		db:        db,
		store:     store,
		engine:    engine,
		validator: validate,
		cache:     cache,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Apply stages every operation of req in one timetable transaction, validates
// all touched events at commit and persists the net changes in one database
// transaction. Nothing is written when any operation is malformed or any
// invariant fails.
func (s *TimetableService) Apply(ctx context.Context, req dto.ApplyTimetableRequest) (*dto.ApplyTimetableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable transaction payload")
	}
	ops := make([]timetable.MutationOp, 0, len(req.Operations))
	for i, item := range req.Operations {
		op, err := item.Mutation()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("operations[%d]: %v", i, err))
		}
		ops = append(ops, op)
	}

	started := time.Now()
	sqlTx, err := s.db.BeginTxx(ctx, s.cfg.TxOptions)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()

	tx := s.engine.Begin(timetable.WithSource(s.store.WithExec(sqlTx)))
	entryIDs := make([]string, 0, len(ops))
	for i, op := range ops {
		id, err := s.engine.StageMutation(ctx, tx, op)
		if err != nil {
			s.engine.Rollback(tx)
			return nil, s.stageFailure(i, err, started)
		}
		s.metrics.ObserveStagedOp(timetable.OpName(op))
		entryIDs = append(entryIDs, id)
	}

	result, err := s.engine.OnCommit(tx)
	if err != nil {
		var verr *models.ViolationError
		if errors.As(err, &verr) {
			s.metrics.ObserveCommit(CommitOutcomeRejected, time.Since(started), verr.Violations)
			return nil, appErrors.Wrap(verr, appErrors.ErrViolation.Code, appErrors.ErrViolation.Status,
				fmt.Sprintf("transaction rejected with %d violation(s)", len(verr.Violations)))
		}
		s.metrics.ObserveCommit(CommitOutcomeFailed, time.Since(started), nil)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit timetable transaction")
	}

	for _, changes := range result.Events {
		if err := s.store.ApplyChanges(ctx, sqlTx, changes); err != nil {
			s.metrics.ObserveCommit(CommitOutcomeFailed, time.Since(started), nil)
			return nil, persistFailure(err, "failed to persist timetable changes")
		}
	}
	if err := sqlTx.Commit(); err != nil {
		s.metrics.ObserveCommit(CommitOutcomeFailed, time.Since(started), nil)
		return nil, persistFailure(err, "failed to commit timetable transaction")
	}
	committed = true
	s.metrics.ObserveCommit(CommitOutcomeCommitted, time.Since(started), nil)

	keys := make([]string, 0, len(result.Events))
	eventIDs := make([]string, 0, len(result.Events))
	for _, changes := range result.Events {
		keys = append(keys, AuditCacheKey(changes.Event.ID))
		eventIDs = append(eventIDs, changes.Event.ID)
	}
	_ = s.cache.Invalidate(ctx, keys...)

	s.logger.Info("timetable transaction committed",
		zap.String("tx_id", result.TxID),
		zap.Strings("events", eventIDs),
		zap.Int("operations", len(ops)),
		zap.Strings("time_changed", result.TimeChanged()),
	)

	resp := dto.NewApplyTimetableResponse(result, entryIDs)
	return &resp, nil
}

func (s *TimetableService) stageFailure(index int, err error, started time.Time) error {
	var serr *models.StructuralError
	if errors.As(err, &serr) {
		s.metrics.ObserveCommit(CommitOutcomeStructural, time.Since(started), nil)
		message := fmt.Sprintf("operations[%d]: %s", index, serr.Detail)
		if serr.Reason == models.StructuralUnknownEvent {
			return appErrors.Wrap(serr, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, message)
		}
		return appErrors.Wrap(serr, appErrors.ErrStructural.Code, appErrors.ErrStructural.Status, message)
	}
	s.metrics.ObserveCommit(CommitOutcomeFailed, time.Since(started), nil)
	if database.IsSerializationFailure(err) {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "timetable changed concurrently, retry the transaction")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("operations[%d]: failed to stage mutation", index))
}

func persistFailure(err error, message string) error {
	if errors.Is(err, repository.ErrStaleEntry) || database.IsSerializationFailure(err) {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "timetable changed concurrently, retry the transaction")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// GetTimetable returns the persisted entries of an event ordered by start.
func (s *TimetableService) GetTimetable(ctx context.Context, eventID string) (*dto.TimetableResponse, error) {
	event, entries, err := s.store.LoadTree(ctx, eventID)
	if err != nil {
		return nil, lookupFailure(err, "failed to load timetable")
	}
	if entries == nil {
		entries = []models.TimetableEntry{}
	}
	return &dto.TimetableResponse{Event: event, Entries: entries}, nil
}

// Audit validates the persisted timetable of an event. Reports are cached
// until a commit touches the event; the boolean reports a cache hit.
func (s *TimetableService) Audit(ctx context.Context, eventID string) (*models.AuditReport, bool, error) {
	var cached models.AuditReport
	if hit, _ := s.cache.Get(ctx, AuditCacheKey(eventID), &cached); hit {
		return &cached, true, nil
	}
	report, err := s.RefreshAudit(ctx, eventID)
	if err != nil {
		return nil, false, err
	}
	return report, false, nil
}

// RefreshAudit validates an event without consulting the cache and stores
// the fresh report.
func (s *TimetableService) RefreshAudit(ctx context.Context, eventID string) (*models.AuditReport, error) {
	started := time.Now()
	report, err := s.engine.AuditEvent(ctx, eventID, s.now())
	s.metrics.ObserveAudit(time.Since(started))
	if err != nil {
		return nil, lookupFailure(err, "failed to audit timetable")
	}
	_ = s.cache.Set(ctx, AuditCacheKey(eventID), report, s.cfg.CacheTTL)
	if !report.Consistent {
		s.logger.Warn("timetable inconsistent",
			zap.String("event_id", eventID),
			zap.Int("violations", len(report.Violations)),
		)
	}
	return &report, nil
}

func lookupFailure(err error, message string) error {
	if errors.Is(err, timetable.ErrNotFound) {
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "event not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
