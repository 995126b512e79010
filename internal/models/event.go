package models

import "time"

// Event is the root of one independent timetable tree.
type Event struct {
	ID      string    `db:"id" json:"id"`
	Title   string    `db:"title" json:"title"`
	StartDT time.Time `db:"start_dt" json:"start_dt"`
	EndDT   time.Time `db:"end_dt" json:"end_dt"`
}

// Contains reports whether [start, end] lies inside the event bounds.
func (e Event) Contains(start, end time.Time) bool {
	return !start.Before(e.StartDT) && !end.After(e.EndDT)
}
