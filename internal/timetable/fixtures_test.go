package timetable

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/conference-timetable/internal/models"
)

var day = time.Date(2024, time.May, 6, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func minutes(n int) time.Duration { return time.Duration(n) * time.Minute }

func strPtr(s string) *string { return &s }

func blockEntry(id, eventID, sessionID, blockID string, start time.Time, d time.Duration) models.TimetableEntry {
	return models.TimetableEntry{
		ID:       id,
		EventID:  eventID,
		Position: models.TopLevel(),
		StartDT:  start,
		Payload:  models.SessionBlockPayload{SessionBlockID: blockID, SessionID: sessionID, Duration: d},
	}
}

func contributionEntry(id, eventID string, pos models.Position, start time.Time, d time.Duration, link *models.SessionLink) models.TimetableEntry {
	return models.TimetableEntry{
		ID:       id,
		EventID:  eventID,
		Position: pos,
		StartDT:  start,
		Payload:  models.ContributionPayload{ContributionID: "contrib-" + id, Duration: d, Session: link},
	}
}

func breakEntry(id, eventID string, pos models.Position, start time.Time, d time.Duration) models.TimetableEntry {
	return models.TimetableEntry{
		ID:       id,
		EventID:  eventID,
		Position: pos,
		StartDT:  start,
		Payload:  models.BreakPayload{Title: "Coffee", Duration: d},
	}
}

func link(sessionID, blockID string) *models.SessionLink {
	return &models.SessionLink{SessionID: sessionID, SessionBlockID: blockID}
}

// conferenceFixture is a consistent two-event store:
//
//	evt-1 09:00-18:00
//	  blk-1 sess-1/sb-1 09:00 120m
//	    ent-c1 contribution sess-1/sb-1 09:10 30m
//	    ent-b1 break 09:45 15m
//	  blk-2 sess-2/sb-2 13:00 60m
//	  blk-3 sess-1/sb-3 14:00 90m
//	  ent-c9 top-level contribution 16:00 30m
//	evt-2 10:00-12:00
//	  blk-9 sess-9/sb-9 10:00 60m
func conferenceFixture() *fakeSource {
	return &fakeSource{
		events: map[string]models.Event{
			"evt-1": {ID: "evt-1", Title: "Main conference", StartDT: at(9, 0), EndDT: at(18, 0)},
			"evt-2": {ID: "evt-2", Title: "Workshop", StartDT: at(10, 0), EndDT: at(12, 0)},
		},
		entries: map[string][]models.TimetableEntry{
			"evt-1": {
				blockEntry("blk-1", "evt-1", "sess-1", "sb-1", at(9, 0), minutes(120)),
				contributionEntry("ent-c1", "evt-1", models.NestedUnder("blk-1"), at(9, 10), minutes(30), link("sess-1", "sb-1")),
				breakEntry("ent-b1", "evt-1", models.NestedUnder("blk-1"), at(9, 45), minutes(15)),
				blockEntry("blk-2", "evt-1", "sess-2", "sb-2", at(13, 0), minutes(60)),
				blockEntry("blk-3", "evt-1", "sess-1", "sb-3", at(14, 0), minutes(90)),
				contributionEntry("ent-c9", "evt-1", models.TopLevel(), at(16, 0), minutes(30), nil),
			},
			"evt-2": {
				blockEntry("blk-9", "evt-2", "sess-9", "sb-9", at(10, 0), minutes(60)),
			},
		},
	}
}

type fakeSource struct {
	events  map[string]models.Event
	entries map[string][]models.TimetableEntry
	loads   int
	err     error
}

func (f *fakeSource) LoadTree(ctx context.Context, eventID string) (models.Event, []models.TimetableEntry, error) {
	if f.err != nil {
		return models.Event{}, nil, f.err
	}
	event, ok := f.events[eventID]
	if !ok {
		return models.Event{}, nil, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	f.loads++
	entries := make([]models.TimetableEntry, 0, len(f.entries[eventID]))
	for _, entry := range f.entries[eventID] {
		entries = append(entries, entry.Clone())
	}
	return event, entries, nil
}

func (f *fakeSource) EventOfEntry(ctx context.Context, entryID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	for eventID, entries := range f.entries {
		for _, entry := range entries {
			if entry.ID == entryID {
				return eventID, nil
			}
		}
	}
	return "", fmt.Errorf("entry %s: %w", entryID, ErrNotFound)
}

// apply persists a commit result the way a store would.
func (f *fakeSource) apply(result *CommitResult) {
	for _, changes := range result.Events {
		eventID := changes.Event.ID
		byID := map[string]models.TimetableEntry{}
		for _, entry := range f.entries[eventID] {
			byID[entry.ID] = entry
		}
		for _, entry := range changes.Deleted {
			delete(byID, entry.ID)
		}
		for _, entry := range append(changes.Created, changes.Updated...) {
			byID[entry.ID] = entry.Clone()
		}
		entries := make([]models.TimetableEntry, 0, len(byID))
		for _, entry := range byID {
			entries = append(entries, entry)
		}
		sortEntries(entries)
		f.entries[eventID] = entries
	}
}

func (f *fakeSource) entry(eventID, entryID string) (models.TimetableEntry, bool) {
	for _, entry := range f.entries[eventID] {
		if entry.ID == entryID {
			return entry, true
		}
	}
	return models.TimetableEntry{}, false
}

func kinds(violations []models.Violation) []models.ViolationKind {
	out := make([]models.ViolationKind, 0, len(violations))
	for _, v := range violations {
		out = append(out, v.Kind)
	}
	return out
}
