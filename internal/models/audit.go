package models

import "time"

// AuditReport is the outcome of validating one event's persisted timetable.
type AuditReport struct {
	EventID    string      `json:"event_id"`
	EventTitle string      `json:"event_title,omitempty"`
	Entries    int         `json:"entries"`
	Consistent bool        `json:"consistent"`
	Violations []Violation `json:"violations"`
	CheckedAt  time.Time   `json:"checked_at"`
}

// NewAuditReport builds a report; violations may be nil.
func NewAuditReport(event Event, entries int, violations []Violation, checkedAt time.Time) AuditReport {
	if violations == nil {
		violations = []Violation{}
	}
	return AuditReport{
		EventID:    event.ID,
		EventTitle: event.Title,
		Entries:    entries,
		Consistent: len(violations) == 0,
		Violations: violations,
		CheckedAt:  checkedAt.UTC(),
	}
}

// CountByKind tallies violations per kind, listing every kind even when zero.
func (r AuditReport) CountByKind() map[ViolationKind]int {
	counts := make(map[ViolationKind]int, len(ViolationKinds))
	for _, kind := range ViolationKinds {
		counts[kind] = 0
	}
	for _, v := range r.Violations {
		counts[v.Kind]++
	}
	return counts
}
