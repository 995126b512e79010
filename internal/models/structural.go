package models

import (
	"fmt"
	"time"
)

// StructuralReason classifies caller misuse detected before any invariant check.
type StructuralReason string

const (
	StructuralUnknownEvent     StructuralReason = "UNKNOWN_EVENT"
	StructuralUnknownEntry     StructuralReason = "UNKNOWN_ENTRY"
	StructuralUnknownParent    StructuralReason = "UNKNOWN_PARENT"
	StructuralForeignParent    StructuralReason = "PARENT_IN_OTHER_EVENT"
	StructuralParentNotBlock   StructuralReason = "PARENT_NOT_SESSION_BLOCK"
	StructuralNestedBlock      StructuralReason = "SESSION_BLOCK_NESTED"
	StructuralInvalidPayload   StructuralReason = "INVALID_PAYLOAD"
	StructuralInvalidDuration  StructuralReason = "INVALID_DURATION"
	StructuralDuplicateEntry   StructuralReason = "DUPLICATE_ENTRY"
	StructuralTransactionEnded StructuralReason = "TRANSACTION_FINISHED"
)

// StructuralError reports a malformed mutation or entry. It is raised
// synchronously and never deferred to commit time.
type StructuralError struct {
	Reason  StructuralReason `json:"reason"`
	EventID string           `json:"event_id,omitempty"`
	EntryID string           `json:"entry_id,omitempty"`
	Detail  string           `json:"detail"`
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.EntryID != "" {
		return fmt.Sprintf("timetable: %s (entry %s): %s", e.Reason, e.EntryID, e.Detail)
	}
	return fmt.Sprintf("timetable: %s: %s", e.Reason, e.Detail)
}

// NewStructuralError builds a StructuralError with a formatted detail.
func NewStructuralError(reason StructuralReason, entryID, format string, args ...any) *StructuralError {
	return &StructuralError{Reason: reason, EntryID: entryID, Detail: fmt.Sprintf(format, args...)}
}

// CheckShape verifies the entry is well formed on its own: one payload, a
// positive whole-second duration, complete session links and no nested session blocks.
func (e TimetableEntry) CheckShape() error {
	if e.ID == "" {
		return NewStructuralError(StructuralInvalidPayload, "", "entry id is required")
	}
	if e.EventID == "" {
		return NewStructuralError(StructuralInvalidPayload, e.ID, "event id is required")
	}
	if e.StartDT.IsZero() {
		return NewStructuralError(StructuralInvalidPayload, e.ID, "start time is required")
	}
	switch p := e.Payload.(type) {
	case nil:
		return NewStructuralError(StructuralInvalidPayload, e.ID, "entry has no payload")
	case SessionBlockPayload:
		if p.SessionBlockID == "" || p.SessionID == "" {
			return NewStructuralError(StructuralInvalidPayload, e.ID, "session block requires session_block_id and session_id")
		}
		if !e.Position.IsTopLevel() {
			return NewStructuralError(StructuralNestedBlock, e.ID, "session blocks cannot be nested")
		}
	case ContributionPayload:
		if p.ContributionID == "" {
			return NewStructuralError(StructuralInvalidPayload, e.ID, "contribution_id is required")
		}
		if p.Session != nil && (p.Session.SessionID == "" || p.Session.SessionBlockID == "") {
			return NewStructuralError(StructuralInvalidPayload, e.ID, "session_id and session_block_id must be set together")
		}
	case BreakPayload:
	}
	if e.Duration() <= 0 {
		return NewStructuralError(StructuralInvalidDuration, e.ID, "duration must be positive, got %s", e.Duration())
	}
	if e.Duration()%time.Second != 0 {
		return NewStructuralError(StructuralInvalidDuration, e.ID, "duration must be whole seconds, got %s", e.Duration())
	}
	return nil
}

// CheckTreeShape verifies a full entry set loaded for one event: every entry
// is well formed, belongs to the event, and nested entries point at a session
// block entry of the same set.
func CheckTreeShape(eventID string, entries []TimetableEntry) error {
	byID := make(map[string]TimetableEntry, len(entries))
	for _, entry := range entries {
		if err := entry.CheckShape(); err != nil {
			return err
		}
		if entry.EventID != eventID {
			return NewStructuralError(StructuralForeignParent, entry.ID, "entry belongs to event %s, not %s", entry.EventID, eventID)
		}
		if _, dup := byID[entry.ID]; dup {
			return NewStructuralError(StructuralDuplicateEntry, entry.ID, "entry id appears twice")
		}
		byID[entry.ID] = entry
	}
	for _, entry := range entries {
		parentID, nested := entry.Position.ParentID()
		if !nested {
			continue
		}
		parent, ok := byID[parentID]
		if !ok {
			return NewStructuralError(StructuralUnknownParent, entry.ID, "parent %s not found", parentID)
		}
		if parent.Type() != EntryTypeSessionBlock {
			return NewStructuralError(StructuralParentNotBlock, entry.ID, "parent %s is a %s", parentID, parent.Type())
		}
	}
	return nil
}
