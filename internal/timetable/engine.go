package timetable

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/conference-timetable/internal/models"
)

// ErrNotFound must be wrapped by a TreeSource when an event or entry does not exist.
var ErrNotFound = errors.New("timetable: not found")

// TreeSource supplies the persisted state a transaction stages on top of.
type TreeSource interface {
	LoadTree(ctx context.Context, eventID string) (models.Event, []models.TimetableEntry, error)
	EventOfEntry(ctx context.Context, entryID string) (string, error)
}

// Engine stages timetable mutations and validates them once at commit.
type Engine struct {
	source TreeSource
	logger *zap.Logger
	newID  func() string
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithIDGenerator overrides how entry and transaction ids are generated.
func WithIDGenerator(fn func() string) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// TxOption customises a transaction at Begin.
type TxOption func(*Tx)

// WithSource binds the transaction to a specific TreeSource, typically one
// reading through an open database transaction.
func WithSource(source TreeSource) TxOption {
	return func(tx *Tx) {
		if source != nil {
			tx.source = source
		}
	}
}

// NewEngine constructs an Engine reading persisted state from source.
func NewEngine(source TreeSource, logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{source: source, logger: logger, newID: uuid.NewString}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Begin opens a transaction with an empty staged state.
func (e *Engine) Begin(opts ...TxOption) *Tx {
	tx := &Tx{
		id:     e.newID(),
		source: e.source,
		trees:  map[string]*stagedTree{},
		owners: map[string]string{},
		dirty:  map[string]struct{}{},
		state:  txOpen,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(tx)
		}
	}
	return tx
}

// ValidateEvent audits the persisted timetable of one event. It ignores any
// in-flight transaction.
func (e *Engine) ValidateEvent(ctx context.Context, eventID string) ([]models.Violation, error) {
	_, _, violations, err := e.inspect(ctx, eventID)
	return violations, err
}

// AuditEvent is ValidateEvent packaged as a report stamped with checkedAt.
func (e *Engine) AuditEvent(ctx context.Context, eventID string, checkedAt time.Time) (models.AuditReport, error) {
	event, entries, violations, err := e.inspect(ctx, eventID)
	if err != nil {
		return models.AuditReport{}, err
	}
	return models.NewAuditReport(event, len(entries), violations, checkedAt), nil
}

func (e *Engine) inspect(ctx context.Context, eventID string) (models.Event, []models.TimetableEntry, []models.Violation, error) {
	event, entries, err := e.source.LoadTree(ctx, eventID)
	if err != nil {
		return models.Event{}, nil, nil, err
	}
	entries = append([]models.TimetableEntry(nil), entries...)
	sortEntries(entries)
	return event, entries, Validate(event, entries), nil
}

// StageMutation applies op to the transaction's staged state and marks the
// owning event dirty. It returns the id of the affected entry. Only
// structural problems are reported here; invariants wait for OnCommit.
func (e *Engine) StageMutation(ctx context.Context, tx *Tx, op MutationOp) (string, error) {
	if err := tx.ensureOpen(); err != nil {
		return "", err
	}
	var (
		id  string
		err error
	)
	switch op := op.(type) {
	case ScheduleOp:
		id, err = e.schedule(ctx, tx, op)
	case MoveOp:
		id, err = op.EntryID, e.move(ctx, tx, op)
	case ResizeOp:
		id, err = op.EntryID, e.resize(ctx, tx, op)
	case RemoveOp:
		id, err = op.EntryID, e.remove(ctx, tx, op)
	default:
		return "", models.NewStructuralError(models.StructuralInvalidPayload, "", "unsupported mutation %T", op)
	}
	if err != nil {
		return "", err
	}
	e.logger.Debug("timetable mutation staged",
		zap.String("tx_id", tx.id),
		zap.String("op", OpName(op)),
		zap.String("entry_id", id),
	)
	return id, nil
}

// Schedule stages a new entry in eventID.
func (e *Engine) Schedule(ctx context.Context, tx *Tx, eventID string, spec EntrySpec) (string, error) {
	return e.StageMutation(ctx, tx, ScheduleOp{EventID: eventID, Spec: spec})
}

// Move stages a new start and parent for an entry.
func (e *Engine) Move(ctx context.Context, tx *Tx, entryID string, newStart time.Time, newParentID *string) error {
	_, err := e.StageMutation(ctx, tx, MoveOp{EntryID: entryID, NewStart: newStart, NewParentID: newParentID})
	return err
}

// Resize stages a new duration for an entry.
func (e *Engine) Resize(ctx context.Context, tx *Tx, entryID string, newDuration time.Duration) error {
	_, err := e.StageMutation(ctx, tx, ResizeOp{EntryID: entryID, NewDuration: newDuration})
	return err
}

// Remove stages the deletion of an entry.
func (e *Engine) Remove(ctx context.Context, tx *Tx, entryID string) error {
	_, err := e.StageMutation(ctx, tx, RemoveOp{EntryID: entryID})
	return err
}

// OnCommit validates every dirty event. When any violation is found the
// whole transaction is discarded and a *models.ViolationError carrying every
// violation is returned. Otherwise the net changes are returned for the
// store to persist and the dirty set is cleared.
func (e *Engine) OnCommit(tx *Tx) (*CommitResult, error) {
	if err := tx.ensureOpen(); err != nil {
		return nil, err
	}
	dirty := tx.Dirty()
	var violations []models.Violation
	for _, eventID := range dirty {
		tree := tx.trees[eventID]
		violations = append(violations, Validate(tree.event, tree.sorted())...)
	}
	if len(violations) > 0 {
		tx.finish(txRolledBack)
		e.logger.Info("timetable transaction vetoed",
			zap.String("tx_id", tx.id),
			zap.Strings("events", dirty),
			zap.Int("violations", len(violations)),
		)
		return nil, &models.ViolationError{Violations: violations}
	}

	result := &CommitResult{TxID: tx.id}
	for _, eventID := range dirty {
		changes := tx.trees[eventID].changes()
		if changes.Empty() {
			continue
		}
		result.Events = append(result.Events, changes)
	}
	tx.finish(txCommitted)
	return result, nil
}

// Rollback discards the staged state. It is a no-op on finished transactions.
func (e *Engine) Rollback(tx *Tx) {
	if !tx.Active() {
		return
	}
	tx.finish(txRolledBack)
	e.logger.Debug("timetable transaction rolled back", zap.String("tx_id", tx.id))
}

func (e *Engine) schedule(ctx context.Context, tx *Tx, op ScheduleOp) (string, error) {
	tree, err := tx.tree(ctx, op.EventID)
	if err != nil {
		return "", err
	}
	id := op.Spec.ID
	if id == "" {
		id = e.newID()
	} else if err := e.ensureUnused(ctx, tx, id); err != nil {
		return "", err
	}

	entry := models.TimetableEntry{
		ID:       id,
		EventID:  tree.event.ID,
		Position: models.TopLevel(),
		StartDT:  op.Spec.StartDT,
		Payload:  op.Spec.Payload,
	}.Clone()

	var parent *models.TimetableEntry
	if op.Spec.ParentID != nil {
		p, err := e.resolveParent(ctx, tx, tree, id, *op.Spec.ParentID)
		if err != nil {
			return "", err
		}
		parent = &p
		entry.Position = models.NestedUnder(p.ID)
	}
	if err := entry.CheckShape(); err != nil {
		return "", err
	}
	relinkSession(&entry, parent)

	tree.entries[id] = entry
	tx.owners[id] = tree.event.ID
	tx.markDirty(tree.event.ID)
	return id, nil
}

func (e *Engine) move(ctx context.Context, tx *Tx, op MoveOp) error {
	tree, entry, err := tx.locate(ctx, op.EntryID)
	if err != nil {
		return err
	}
	if op.NewStart.IsZero() {
		return models.NewStructuralError(models.StructuralInvalidPayload, entry.ID, "new start time is required")
	}

	var parent *models.TimetableEntry
	position := models.TopLevel()
	if op.NewParentID != nil {
		if entry.Type() == models.EntryTypeSessionBlock {
			return models.NewStructuralError(models.StructuralNestedBlock, entry.ID, "session blocks cannot be nested")
		}
		p, err := e.resolveParent(ctx, tx, tree, entry.ID, *op.NewParentID)
		if err != nil {
			return err
		}
		parent = &p
		position = models.NestedUnder(p.ID)
	}

	entry = entry.Clone()
	entry.StartDT = op.NewStart
	entry.Position = position
	relinkSession(&entry, parent)

	tree.entries[entry.ID] = entry
	tx.markDirty(tree.event.ID)
	return nil
}

func (e *Engine) resize(ctx context.Context, tx *Tx, op ResizeOp) error {
	tree, entry, err := tx.locate(ctx, op.EntryID)
	if err != nil {
		return err
	}
	if op.NewDuration <= 0 {
		return models.NewStructuralError(models.StructuralInvalidDuration, entry.ID, "duration must be positive, got %s", op.NewDuration)
	}
	if op.NewDuration%time.Second != 0 {
		return models.NewStructuralError(models.StructuralInvalidDuration, entry.ID, "duration must be whole seconds, got %s", op.NewDuration)
	}
	tree.entries[entry.ID] = entry.WithDuration(op.NewDuration)
	tx.markDirty(tree.event.ID)
	return nil
}

func (e *Engine) remove(ctx context.Context, tx *Tx, op RemoveOp) error {
	tree, entry, err := tx.locate(ctx, op.EntryID)
	if err != nil {
		return err
	}
	if entry.Type() == models.EntryTypeSessionBlock {
		for _, childID := range tree.children(entry.ID) {
			delete(tree.entries, childID)
		}
	}
	delete(tree.entries, entry.ID)
	tx.markDirty(tree.event.ID)
	return nil
}

func (e *Engine) ensureUnused(ctx context.Context, tx *Tx, id string) error {
	if _, ok := tx.owners[id]; ok {
		return models.NewStructuralError(models.StructuralDuplicateEntry, id, "entry id already in use")
	}
	_, err := tx.source.EventOfEntry(ctx, id)
	switch {
	case err == nil:
		return models.NewStructuralError(models.StructuralDuplicateEntry, id, "entry id already in use")
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return err
	}
}

func (e *Engine) resolveParent(ctx context.Context, tx *Tx, tree *stagedTree, childID, parentID string) (models.TimetableEntry, error) {
	if parent, ok := tree.entries[parentID]; ok {
		if parent.Type() != models.EntryTypeSessionBlock {
			return models.TimetableEntry{}, models.NewStructuralError(models.StructuralParentNotBlock, childID, "parent %s is a %s, not a session block", parentID, parent.Type())
		}
		return parent, nil
	}
	owner, known := tx.owners[parentID]
	if !known {
		var err error
		owner, err = tx.source.EventOfEntry(ctx, parentID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return models.TimetableEntry{}, models.NewStructuralError(models.StructuralUnknownParent, childID, "parent %s does not exist", parentID)
			}
			return models.TimetableEntry{}, err
		}
	}
	if owner != tree.event.ID {
		return models.TimetableEntry{}, models.NewStructuralError(models.StructuralForeignParent, childID, "parent %s belongs to event %s", parentID, owner)
	}
	return models.TimetableEntry{}, models.NewStructuralError(models.StructuralUnknownParent, childID, "parent %s does not exist", parentID)
}

// relinkSession points a session contribution at the block it is placed in
// when both belong to the same session.
func relinkSession(entry *models.TimetableEntry, parent *models.TimetableEntry) {
	if parent == nil {
		return
	}
	contrib, ok := entry.Contribution()
	if !ok || contrib.Session == nil {
		return
	}
	block, ok := parent.SessionBlock()
	if !ok || contrib.Session.SessionID != block.SessionID {
		return
	}
	link := *contrib.Session
	link.SessionBlockID = block.SessionBlockID
	contrib.Session = &link
	entry.Payload = contrib
}
