package timetable

import (
	"time"

	"github.com/noah-isme/conference-timetable/internal/models"
)

// MutationOp is one staged timetable edit. The set is closed: ScheduleOp,
// MoveOp, ResizeOp and RemoveOp.
type MutationOp interface {
	opName() string
}

// EntrySpec describes a new entry to schedule. ID is generated when empty.
type EntrySpec struct {
	ID       string
	ParentID *string
	StartDT  time.Time
	Payload  models.Payload
}

// ScheduleOp adds a new entry to an event.
type ScheduleOp struct {
	EventID string
	Spec    EntrySpec
}

// MoveOp changes an entry's start and parent. A nil NewParentID makes it top-level.
type MoveOp struct {
	EntryID     string
	NewStart    time.Time
	NewParentID *string
}

// ResizeOp changes the duration carried by an entry's payload.
type ResizeOp struct {
	EntryID     string
	NewDuration time.Duration
}

// RemoveOp deletes an entry; removing a session block removes its children.
type RemoveOp struct {
	EntryID string
}

func (ScheduleOp) opName() string { return "schedule" }
func (MoveOp) opName() string     { return "move" }
func (ResizeOp) opName() string   { return "resize" }
func (RemoveOp) opName() string   { return "remove" }

// OpName returns a short label for logging and metrics.
func OpName(op MutationOp) string {
	if op == nil {
		return "unknown"
	}
	return op.opName()
}
