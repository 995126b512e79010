package dto

import (
	"fmt"
	"time"

	"github.com/noah-isme/conference-timetable/internal/models"
	"github.com/noah-isme/conference-timetable/internal/timetable"
)

// Operation names accepted in a timetable transaction.
const (
	OpSchedule = "schedule"
	OpMove     = "move"
	OpResize   = "resize"
	OpRemove   = "remove"
)

// MaxDurationMinutes caps duration_minutes at one year.
const MaxDurationMinutes = 525600

// SessionLinkRequest ties a contribution to a session block.
type SessionLinkRequest struct {
	SessionID      string `json:"session_id" validate:"required"`
	SessionBlockID string `json:"session_block_id" validate:"required"`
}

// TimetableOperation is one staged mutation. Which fields apply depends on Op:
// schedule needs event_id, type, start_dt and duration_minutes; move needs
// entry_id and start_dt; resize needs entry_id and duration_minutes; remove
// needs entry_id. A nil parent_id means top level.
type TimetableOperation struct {
	Op              string              `json:"op" validate:"required,oneof=schedule move resize remove"`
	EventID         string              `json:"event_id,omitempty" validate:"required_if=Op schedule"`
	EntryID         string              `json:"entry_id,omitempty" validate:"omitempty,max=128"`
	ParentID        *string             `json:"parent_id,omitempty" validate:"omitempty,min=1"`
	Type            models.EntryType    `json:"type,omitempty" validate:"omitempty,oneof=SESSION_BLOCK CONTRIBUTION BREAK"`
	StartDT         *time.Time          `json:"start_dt,omitempty"`
	DurationMinutes *int                `json:"duration_minutes,omitempty" validate:"omitempty,min=0,max=525600"`
	SessionBlockID  string              `json:"session_block_id,omitempty"`
	SessionID       string              `json:"session_id,omitempty"`
	ContributionID  string              `json:"contribution_id,omitempty"`
	Session         *SessionLinkRequest `json:"session,omitempty"`
	TrackID         *string             `json:"track_id,omitempty"`
	Title           string              `json:"title,omitempty" validate:"max=255"`
}

// ApplyTimetableRequest is a batch of operations committed atomically.
type ApplyTimetableRequest struct {
	Operations []TimetableOperation `json:"operations" validate:"required,min=1,max=500,dive"`
}

// Mutation converts the operation into an engine mutation. Missing fields
// required by the op are reported as errors; value checks such as
// non-positive durations are left to the engine.
func (o TimetableOperation) Mutation() (timetable.MutationOp, error) {
	switch o.Op {
	case OpSchedule:
		if o.StartDT == nil {
			return nil, fmt.Errorf("schedule requires start_dt")
		}
		if o.DurationMinutes == nil {
			return nil, fmt.Errorf("schedule requires duration_minutes")
		}
		if err := checkDurationMinutes(*o.DurationMinutes); err != nil {
			return nil, err
		}
		payload, err := o.payload(minutes(*o.DurationMinutes))
		if err != nil {
			return nil, err
		}
		return timetable.ScheduleOp{
			EventID: o.EventID,
			Spec: timetable.EntrySpec{
				ID:       o.EntryID,
				ParentID: o.ParentID,
				StartDT:  o.StartDT.UTC(),
				Payload:  payload,
			},
		}, nil
	case OpMove:
		if o.EntryID == "" {
			return nil, fmt.Errorf("move requires entry_id")
		}
		if o.StartDT == nil {
			return nil, fmt.Errorf("move requires start_dt")
		}
		return timetable.MoveOp{EntryID: o.EntryID, NewStart: o.StartDT.UTC(), NewParentID: o.ParentID}, nil
	case OpResize:
		if o.EntryID == "" {
			return nil, fmt.Errorf("resize requires entry_id")
		}
		if o.DurationMinutes == nil {
			return nil, fmt.Errorf("resize requires duration_minutes")
		}
		if err := checkDurationMinutes(*o.DurationMinutes); err != nil {
			return nil, err
		}
		return timetable.ResizeOp{EntryID: o.EntryID, NewDuration: minutes(*o.DurationMinutes)}, nil
	case OpRemove:
		if o.EntryID == "" {
			return nil, fmt.Errorf("remove requires entry_id")
		}
		return timetable.RemoveOp{EntryID: o.EntryID}, nil
	default:
		return nil, fmt.Errorf("unsupported op %q", o.Op)
	}
}

func (o TimetableOperation) payload(duration time.Duration) (models.Payload, error) {
	switch o.Type {
	case models.EntryTypeSessionBlock:
		if o.SessionID == "" || o.SessionBlockID == "" {
			return nil, fmt.Errorf("session block requires session_id and session_block_id")
		}
		return models.SessionBlockPayload{SessionBlockID: o.SessionBlockID, SessionID: o.SessionID, Duration: duration}, nil
	case models.EntryTypeContribution:
		if o.ContributionID == "" {
			return nil, fmt.Errorf("contribution requires contribution_id")
		}
		payload := models.ContributionPayload{ContributionID: o.ContributionID, Duration: duration, TrackID: o.TrackID}
		if o.Session != nil {
			payload.Session = &models.SessionLink{SessionID: o.Session.SessionID, SessionBlockID: o.Session.SessionBlockID}
		}
		return payload, nil
	case models.EntryTypeBreak:
		return models.BreakPayload{Title: o.Title, Duration: duration}, nil
	default:
		return nil, fmt.Errorf("unsupported entry type %q", o.Type)
	}
}

// checkDurationMinutes rejects values whose conversion to time.Duration could
// overflow. Zero and small negatives pass through for the engine to report.
func checkDurationMinutes(n int) error {
	if n > MaxDurationMinutes || n < -MaxDurationMinutes {
		return fmt.Errorf("duration_minutes must not exceed %d", MaxDurationMinutes)
	}
	return nil
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

// EventChangeSummary lists the entry ids a commit touched in one event.
type EventChangeSummary struct {
	EventID     string   `json:"event_id"`
	Created     []string `json:"created"`
	Updated     []string `json:"updated"`
	Deleted     []string `json:"deleted"`
	TimeChanged []string `json:"time_changed"`
}

// ApplyTimetableResponse reports a committed transaction. EntryIDs holds the
// affected entry id per operation, in request order.
type ApplyTimetableResponse struct {
	TransactionID string               `json:"transaction_id"`
	EntryIDs      []string             `json:"entry_ids"`
	Events        []EventChangeSummary `json:"events"`
}

// NewApplyTimetableResponse summarises a commit result.
func NewApplyTimetableResponse(result *timetable.CommitResult, entryIDs []string) ApplyTimetableResponse {
	resp := ApplyTimetableResponse{EntryIDs: entryIDs, Events: []EventChangeSummary{}}
	if result == nil {
		return resp
	}
	resp.TransactionID = result.TxID
	for _, changes := range result.Events {
		resp.Events = append(resp.Events, EventChangeSummary{
			EventID:     changes.Event.ID,
			Created:     entryIDsOf(changes.Created),
			Updated:     entryIDsOf(changes.Updated),
			Deleted:     entryIDsOf(changes.Deleted),
			TimeChanged: append([]string{}, changes.TimeChanged...),
		})
	}
	return resp
}

func entryIDsOf(entries []models.TimetableEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ID)
	}
	return ids
}

// TimetableResponse is the persisted timetable of one event.
type TimetableResponse struct {
	Event   models.Event            `json:"event"`
	Entries []models.TimetableEntry `json:"entries"`
}

// ViolationResponse is a violation with its rendered message.
type ViolationResponse struct {
	models.Violation
	Message string `json:"message"`
}

// AuditReportResponse is an audit report as served over HTTP.
type AuditReportResponse struct {
	EventID    string                       `json:"event_id"`
	EventTitle string                       `json:"event_title,omitempty"`
	Entries    int                          `json:"entries"`
	Consistent bool                         `json:"consistent"`
	Counts     map[models.ViolationKind]int `json:"counts"`
	Violations []ViolationResponse          `json:"violations"`
	CheckedAt  time.Time                    `json:"checked_at"`
}

// NewAuditReportResponse renders report for clients.
func NewAuditReportResponse(report models.AuditReport) AuditReportResponse {
	violations := make([]ViolationResponse, 0, len(report.Violations))
	for _, v := range report.Violations {
		violations = append(violations, ViolationResponse{Violation: v, Message: v.Message()})
	}
	return AuditReportResponse{
		EventID:    report.EventID,
		EventTitle: report.EventTitle,
		Entries:    report.Entries,
		Consistent: report.Consistent,
		Counts:     report.CountByKind(),
		Violations: violations,
		CheckedAt:  report.CheckedAt,
	}
}
