package timetable

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/noah-isme/conference-timetable/internal/models"
)

type txState int

const (
	txOpen txState = iota
	txCommitted
	txRolledBack
)

// Tx owns the staged copy of every event tree touched by one caller, plus the
// set of events that must be validated before commit. A Tx is not safe for
// concurrent use and must not be shared between callers.
type Tx struct {
	id     string
	source TreeSource
	trees  map[string]*stagedTree
	owners map[string]string
	dirty  map[string]struct{}
	state  txState
}

// ID returns the transaction identifier used in logs.
func (tx *Tx) ID() string { return tx.id }

// Active reports whether the transaction still accepts mutations.
func (tx *Tx) Active() bool { return tx != nil && tx.state == txOpen }

// Dirty returns the sorted ids of events pending validation.
func (tx *Tx) Dirty() []string {
	ids := make([]string, 0, len(tx.dirty))
	for id := range tx.dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Entries returns the staged entries of eventID ordered by start then id.
// It reports false when the event has not been touched by this transaction.
func (tx *Tx) Entries(eventID string) ([]models.TimetableEntry, bool) {
	tree, ok := tx.trees[eventID]
	if !ok {
		return nil, false
	}
	return tree.sorted(), true
}

func (tx *Tx) markDirty(eventID string) {
	tx.dirty[eventID] = struct{}{}
}

func (tx *Tx) finish(state txState) {
	tx.state = state
	tx.trees = map[string]*stagedTree{}
	tx.owners = map[string]string{}
	tx.dirty = map[string]struct{}{}
}

func (tx *Tx) ensureOpen() error {
	if tx == nil || tx.state != txOpen {
		return models.NewStructuralError(models.StructuralTransactionEnded, "", "transaction is no longer active")
	}
	return nil
}

// tree returns the staged tree for eventID, loading it from the source on first use.
func (tx *Tx) tree(ctx context.Context, eventID string) (*stagedTree, error) {
	if tree, ok := tx.trees[eventID]; ok {
		return tree, nil
	}
	event, entries, err := tx.source.LoadTree(ctx, eventID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			se := models.NewStructuralError(models.StructuralUnknownEvent, "", "event %s does not exist", eventID)
			se.EventID = eventID
			return nil, se
		}
		return nil, fmt.Errorf("load timetable of event %s: %w", eventID, err)
	}
	if err := models.CheckTreeShape(event.ID, entries); err != nil {
		return nil, fmt.Errorf("stored timetable of event %s is malformed: %w", eventID, err)
	}
	tree := newStagedTree(event, entries)
	tx.trees[eventID] = tree
	for id := range tree.entries {
		tx.owners[id] = eventID
	}
	return tree, nil
}

// locate finds the staged tree holding entryID.
func (tx *Tx) locate(ctx context.Context, entryID string) (*stagedTree, models.TimetableEntry, error) {
	eventID, known := tx.owners[entryID]
	if !known {
		var err error
		eventID, err = tx.source.EventOfEntry(ctx, entryID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, models.TimetableEntry{}, models.NewStructuralError(models.StructuralUnknownEntry, entryID, "entry does not exist")
			}
			return nil, models.TimetableEntry{}, fmt.Errorf("resolve event of entry %s: %w", entryID, err)
		}
	}
	tree, err := tx.tree(ctx, eventID)
	if err != nil {
		return nil, models.TimetableEntry{}, err
	}
	entry, ok := tree.entries[entryID]
	if !ok {
		return nil, models.TimetableEntry{}, models.NewStructuralError(models.StructuralUnknownEntry, entryID, "entry does not exist")
	}
	return tree, entry, nil
}

type stagedTree struct {
	event    models.Event
	entries  map[string]models.TimetableEntry
	baseline map[string]models.TimetableEntry
}

func newStagedTree(event models.Event, entries []models.TimetableEntry) *stagedTree {
	tree := &stagedTree{
		event:    event,
		entries:  make(map[string]models.TimetableEntry, len(entries)),
		baseline: make(map[string]models.TimetableEntry, len(entries)),
	}
	for _, entry := range entries {
		tree.entries[entry.ID] = entry.Clone()
		tree.baseline[entry.ID] = entry.Clone()
	}
	return tree
}

func (t *stagedTree) sorted() []models.TimetableEntry {
	out := make([]models.TimetableEntry, 0, len(t.entries))
	for _, entry := range t.entries {
		out = append(out, entry.Clone())
	}
	sortEntries(out)
	return out
}

func (t *stagedTree) children(parentID string) []string {
	var ids []string
	for id, entry := range t.entries {
		if pid, ok := entry.Position.ParentID(); ok && pid == parentID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (t *stagedTree) changes() EventChanges {
	changes := EventChanges{Event: t.event}
	for id, current := range t.entries {
		base, existed := t.baseline[id]
		switch {
		case !existed:
			changes.Created = append(changes.Created, current.Clone())
		case !current.Equal(base):
			changes.Updated = append(changes.Updated, current.Clone())
			if !current.StartDT.Equal(base.StartDT) || current.Duration() != base.Duration() {
				changes.TimeChanged = append(changes.TimeChanged, id)
			}
		}
	}
	for id, base := range t.baseline {
		if _, ok := t.entries[id]; !ok {
			changes.Deleted = append(changes.Deleted, base.Clone())
		}
	}
	sortEntries(changes.Created)
	sortEntries(changes.Updated)
	sortEntries(changes.Deleted)
	sort.Strings(changes.TimeChanged)
	return changes
}

func sortEntries(entries []models.TimetableEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].StartDT.Equal(entries[j].StartDT) {
			return entries[i].StartDT.Before(entries[j].StartDT)
		}
		return entries[i].ID < entries[j].ID
	})
}

// EventChanges is the net effect of a committed transaction on one event.
type EventChanges struct {
	Event       models.Event
	Created     []models.TimetableEntry
	Updated     []models.TimetableEntry
	Deleted     []models.TimetableEntry
	TimeChanged []string
}

// Empty reports whether the staged tree ended up identical to what was loaded.
func (c EventChanges) Empty() bool {
	return len(c.Created) == 0 && len(c.Updated) == 0 && len(c.Deleted) == 0
}

// CommitResult is returned by a successful OnCommit.
type CommitResult struct {
	TxID   string
	Events []EventChanges
}

// TimeChanged returns every entry whose start or duration changed, across events.
func (r *CommitResult) TimeChanged() []string {
	if r == nil {
		return nil
	}
	var ids []string
	for _, ev := range r.Events {
		ids = append(ids, ev.TimeChanged...)
	}
	return ids
}
