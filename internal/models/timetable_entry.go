package models

import (
	"encoding/json"
	"time"
)

// EntryType names the payload carried by a timetable entry.
type EntryType string

const (
	EntryTypeSessionBlock EntryType = "SESSION_BLOCK"
	EntryTypeContribution EntryType = "CONTRIBUTION"
	EntryTypeBreak        EntryType = "BREAK"
)

// Payload is the closed set of things a timetable entry can schedule.
// Only SessionBlockPayload, ContributionPayload and BreakPayload implement it.
type Payload interface {
	entryType() EntryType
	duration() time.Duration
	clone() Payload
}

// SessionBlockPayload schedules one contiguous slot of a session.
type SessionBlockPayload struct {
	SessionBlockID string
	SessionID      string
	Duration       time.Duration
}

func (p SessionBlockPayload) entryType() EntryType     { return EntryTypeSessionBlock }
func (p SessionBlockPayload) duration() time.Duration { return p.Duration }
func (p SessionBlockPayload) clone() Payload          { return p }

// SessionLink ties a contribution to a session and one of its blocks.
// Both ids are always set together.
type SessionLink struct {
	SessionID      string `json:"session_id"`
	SessionBlockID string `json:"session_block_id"`
}

// ContributionPayload schedules a talk or paper.
type ContributionPayload struct {
	ContributionID string
	Duration       time.Duration
	Session        *SessionLink
	TrackID        *string
}

func (p ContributionPayload) entryType() EntryType     { return EntryTypeContribution }
func (p ContributionPayload) duration() time.Duration { return p.Duration }
func (p ContributionPayload) clone() Payload {
	if p.Session != nil {
		link := *p.Session
		p.Session = &link
	}
	if p.TrackID != nil {
		track := *p.TrackID
		p.TrackID = &track
	}
	return p
}

// BreakPayload schedules a pause (coffee, lunch).
type BreakPayload struct {
	Title    string
	Duration time.Duration
}

func (p BreakPayload) entryType() EntryType     { return EntryTypeBreak }
func (p BreakPayload) duration() time.Duration { return p.Duration }
func (p BreakPayload) clone() Payload          { return p }

// Position marks an entry as top-level or nested under a session block entry.
type Position struct {
	parentID string
}

// TopLevel positions an entry directly under its event.
func TopLevel() Position { return Position{} }

// NestedUnder positions an entry inside the session block entry parentID.
func NestedUnder(parentID string) Position { return Position{parentID: parentID} }

// IsTopLevel reports whether the entry has no parent.
func (p Position) IsTopLevel() bool { return p.parentID == "" }

// ParentID returns the parent entry id for nested positions.
func (p Position) ParentID() (string, bool) {
	return p.parentID, p.parentID != ""
}

// TimetableEntry is one node of an event's timetable tree.
type TimetableEntry struct {
	ID       string
	EventID  string
	Position Position
	StartDT  time.Time
	Payload  Payload
}

// Type returns the payload kind, or "" when no payload is set.
func (e TimetableEntry) Type() EntryType {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.entryType()
}

// Duration is always derived from the payload.
func (e TimetableEntry) Duration() time.Duration {
	if e.Payload == nil {
		return 0
	}
	return e.Payload.duration()
}

// EndDT returns StartDT plus the payload duration.
func (e TimetableEntry) EndDT() time.Time {
	return e.StartDT.Add(e.Duration())
}

// Clone returns a deep copy safe to mutate independently.
func (e TimetableEntry) Clone() TimetableEntry {
	if e.Payload != nil {
		e.Payload = e.Payload.clone()
	}
	return e
}

// SessionBlock returns the block payload when the entry schedules a session block.
func (e TimetableEntry) SessionBlock() (SessionBlockPayload, bool) {
	p, ok := e.Payload.(SessionBlockPayload)
	return p, ok
}

// Contribution returns the contribution payload when present.
func (e TimetableEntry) Contribution() (ContributionPayload, bool) {
	p, ok := e.Payload.(ContributionPayload)
	return p, ok
}

// Break returns the break payload when present.
func (e TimetableEntry) Break() (BreakPayload, bool) {
	p, ok := e.Payload.(BreakPayload)
	return p, ok
}

// WithDuration returns a copy of the entry whose payload carries d.
func (e TimetableEntry) WithDuration(d time.Duration) TimetableEntry {
	e = e.Clone()
	switch p := e.Payload.(type) {
	case SessionBlockPayload:
		p.Duration = d
		e.Payload = p
	case ContributionPayload:
		p.Duration = d
		e.Payload = p
	case BreakPayload:
		p.Duration = d
		e.Payload = p
	}
	return e
}

// Equal compares two entries field by field, including payload contents.
func (e TimetableEntry) Equal(other TimetableEntry) bool {
	if e.ID != other.ID || e.EventID != other.EventID || e.Position != other.Position || !e.StartDT.Equal(other.StartDT) {
		return false
	}
	switch a := e.Payload.(type) {
	case SessionBlockPayload:
		b, ok := other.Payload.(SessionBlockPayload)
		return ok && a == b
	case ContributionPayload:
		b, ok := other.Payload.(ContributionPayload)
		if !ok || a.ContributionID != b.ContributionID || a.Duration != b.Duration {
			return false
		}
		return equalLink(a.Session, b.Session) && equalStringPtr(a.TrackID, b.TrackID)
	case BreakPayload:
		b, ok := other.Payload.(BreakPayload)
		return ok && a == b
	default:
		return other.Payload == nil
	}
}

func equalLink(a, b *SessionLink) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

type timetableEntryJSON struct {
	ID              string       `json:"id"`
	EventID         string       `json:"event_id"`
	ParentID        *string      `json:"parent_id,omitempty"`
	Type            EntryType    `json:"type"`
	StartDT         time.Time    `json:"start_dt"`
	EndDT           time.Time    `json:"end_dt"`
	DurationMinutes float64      `json:"duration_minutes"`
	SessionBlockID  string       `json:"session_block_id,omitempty"`
	SessionID       string       `json:"session_id,omitempty"`
	ContributionID  string       `json:"contribution_id,omitempty"`
	Session         *SessionLink `json:"session,omitempty"`
	TrackID         *string      `json:"track_id,omitempty"`
	Title           string       `json:"title,omitempty"`
}

// MarshalJSON flattens the payload for API consumers.
func (e TimetableEntry) MarshalJSON() ([]byte, error) {
	out := timetableEntryJSON{
		ID:              e.ID,
		EventID:         e.EventID,
		Type:            e.Type(),
		StartDT:         e.StartDT,
		EndDT:           e.EndDT(),
		DurationMinutes: e.Duration().Minutes(),
	}
	if parentID, ok := e.Position.ParentID(); ok {
		out.ParentID = &parentID
	}
	switch p := e.Payload.(type) {
	case SessionBlockPayload:
		out.SessionBlockID = p.SessionBlockID
		out.SessionID = p.SessionID
	case ContributionPayload:
		out.ContributionID = p.ContributionID
		out.Session = p.Session
		out.TrackID = p.TrackID
	case BreakPayload:
		out.Title = p.Title
	}
	return json.Marshal(out)
}
