package models

import (
	"fmt"
	"strings"
	"time"
)

// ViolationKind enumerates every timetable invariant that can block a commit.
type ViolationKind string

const (
	ViolationTopLevelContributionInSession ViolationKind = "TopLevelContributionInSession"
	ViolationChildSessionMismatch          ViolationKind = "ChildSessionMismatch"
	ViolationChildStartsBeforeParent       ViolationKind = "ChildStartsBeforeParent"
	ViolationChildEndsAfterParent          ViolationKind = "ChildEndsAfterParent"
	ViolationEntryStartsBeforeEvent        ViolationKind = "EntryStartsBeforeEvent"
	ViolationEntryEndsAfterEvent           ViolationKind = "EntryEndsAfterEvent"
)

// ViolationKinds lists all kinds in reporting order.
var ViolationKinds = []ViolationKind{
	ViolationTopLevelContributionInSession,
	ViolationChildSessionMismatch,
	ViolationChildStartsBeforeParent,
	ViolationChildEndsAfterParent,
	ViolationEntryStartsBeforeEvent,
	ViolationEntryEndsAfterEvent,
}

// Violation describes one invariant failure with enough data to render a
// message without going back to storage.
type Violation struct {
	Kind     ViolationKind `json:"kind"`
	EventID  string        `json:"event_id"`
	EntryID  string        `json:"entry_id"`
	ParentID string        `json:"parent_id,omitempty"`

	// Actual is the offending start or end time; Limit is the bound it crossed.
	Actual *time.Time `json:"actual,omitempty"`
	Limit  *time.Time `json:"limit,omitempty"`

	SessionID              string `json:"session_id,omitempty"`
	SessionBlockID         string `json:"session_block_id,omitempty"`
	ExpectedSessionID      string `json:"expected_session_id,omitempty"`
	ExpectedSessionBlockID string `json:"expected_session_block_id,omitempty"`
}

// NewTopLevelContributionViolation reports a session contribution scheduled outside any block.
func NewTopLevelContributionViolation(entry TimetableEntry, link SessionLink) Violation {
	return Violation{
		Kind:           ViolationTopLevelContributionInSession,
		EventID:        entry.EventID,
		EntryID:        entry.ID,
		SessionID:      link.SessionID,
		SessionBlockID: link.SessionBlockID,
	}
}

// NewSessionMismatchViolation reports a nested contribution whose session
// linkage differs from its parent block. link may be nil.
func NewSessionMismatchViolation(entry TimetableEntry, link *SessionLink, parent TimetableEntry, block SessionBlockPayload) Violation {
	v := Violation{
		Kind:                   ViolationChildSessionMismatch,
		EventID:                entry.EventID,
		EntryID:                entry.ID,
		ParentID:               parent.ID,
		ExpectedSessionID:      block.SessionID,
		ExpectedSessionBlockID: block.SessionBlockID,
	}
	if link != nil {
		v.SessionID = link.SessionID
		v.SessionBlockID = link.SessionBlockID
	}
	return v
}

// NewBoundViolation reports a start or end time crossing a parent or event bound.
func NewBoundViolation(kind ViolationKind, entry TimetableEntry, parentID string, actual, limit time.Time) Violation {
	return Violation{
		Kind:     kind,
		EventID:  entry.EventID,
		EntryID:  entry.ID,
		ParentID: parentID,
		Actual:   &actual,
		Limit:    &limit,
	}
}

// Message renders a human readable diagnostic.
func (v Violation) Message() string {
	switch v.Kind {
	case ViolationTopLevelContributionInSession:
		return fmt.Sprintf("contribution entry %s belongs to session %s (block %s) but is not scheduled inside a session block",
			v.EntryID, v.SessionID, v.SessionBlockID)
	case ViolationChildSessionMismatch:
		own := "no session"
		if v.SessionID != "" {
			own = fmt.Sprintf("session %s, block %s", v.SessionID, v.SessionBlockID)
		}
		return fmt.Sprintf("contribution entry %s (%s) does not match parent block entry %s (session %s, block %s)",
			v.EntryID, own, v.ParentID, v.ExpectedSessionID, v.ExpectedSessionBlockID)
	case ViolationChildStartsBeforeParent:
		return fmt.Sprintf("entry %s starts at %s, before its session block %s starts at %s",
			v.EntryID, formatTime(v.Actual), v.ParentID, formatTime(v.Limit))
	case ViolationChildEndsAfterParent:
		return fmt.Sprintf("entry %s ends at %s, after its session block %s ends at %s",
			v.EntryID, formatTime(v.Actual), v.ParentID, formatTime(v.Limit))
	case ViolationEntryStartsBeforeEvent:
		return fmt.Sprintf("entry %s starts at %s, before event %s starts at %s",
			v.EntryID, formatTime(v.Actual), v.EventID, formatTime(v.Limit))
	case ViolationEntryEndsAfterEvent:
		return fmt.Sprintf("entry %s ends at %s, after event %s ends at %s",
			v.EntryID, formatTime(v.Actual), v.EventID, formatTime(v.Limit))
	default:
		return fmt.Sprintf("entry %s: %s", v.EntryID, v.Kind)
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "?"
	}
	return t.UTC().Format(time.RFC3339)
}

// ViolationError vetoes a commit. It carries every violation found across
// all dirty events.
type ViolationError struct {
	Violations []Violation `json:"violations"`
}

// Error implements the error interface.
func (e *ViolationError) Error() string {
	if e == nil || len(e.Violations) == 0 {
		return "timetable: no violations"
	}
	if len(e.Violations) == 1 {
		return "timetable commit rejected: " + e.Violations[0].Message()
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, string(v.Kind))
	}
	return fmt.Sprintf("timetable commit rejected: %d violations (%s)", len(e.Violations), strings.Join(parts, ", "))
}

// Kinds returns the kind of every violation in order.
func (e *ViolationError) Kinds() []ViolationKind {
	if e == nil {
		return nil
	}
	kinds := make([]ViolationKind, 0, len(e.Violations))
	for _, v := range e.Violations {
		kinds = append(kinds, v.Kind)
	}
	return kinds
}
