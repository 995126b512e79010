package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nine = time.Date(2024, time.May, 6, 9, 0, 0, 0, time.UTC)

func sampleContribution() TimetableEntry {
	track := "track-ml"
	return TimetableEntry{
		ID:       "ent-1",
		EventID:  "evt-1",
		Position: NestedUnder("blk-1"),
		StartDT:  nine,
		Payload: ContributionPayload{
			ContributionID: "contrib-1",
			Duration:       30 * time.Minute,
			Session:        &SessionLink{SessionID: "sess-1", SessionBlockID: "sb-1"},
			TrackID:        &track,
		},
	}
}

func TestTimetableEntryDurationComesFromPayload(t *testing.T) {
	entry := sampleContribution()
	assert.Equal(t, 30*time.Minute, entry.Duration())
	assert.Equal(t, nine.Add(30*time.Minute), entry.EndDT())
	assert.Equal(t, EntryTypeContribution, entry.Type())

	resized := entry.WithDuration(45 * time.Minute)
	assert.Equal(t, 45*time.Minute, resized.Duration())
	assert.Equal(t, 30*time.Minute, entry.Duration())

	assert.Zero(t, TimetableEntry{}.Duration())
	assert.Equal(t, EntryType(""), TimetableEntry{}.Type())
}

func TestTimetableEntryCloneIsDeep(t *testing.T) {
	entry := sampleContribution()
	clone := entry.Clone()
	require.True(t, clone.Equal(entry))

	contrib, _ := clone.Contribution()
	contrib.Session.SessionBlockID = "sb-2"
	*contrib.TrackID = "track-other"

	original, _ := entry.Contribution()
	assert.Equal(t, "sb-1", original.Session.SessionBlockID)
	assert.Equal(t, "track-ml", *original.TrackID)
	assert.False(t, clone.Equal(entry))
}

func TestTimetableEntryEqual(t *testing.T) {
	a := sampleContribution()
	b := sampleContribution()
	assert.True(t, a.Equal(b))

	b.Position = TopLevel()
	assert.False(t, a.Equal(b))

	b = sampleContribution()
	b.StartDT = nine.In(time.FixedZone("CEST", 2*60*60))
	assert.True(t, a.Equal(b))

	b.Payload = BreakPayload{Duration: 30 * time.Minute}
	assert.False(t, a.Equal(b))
}

func TestPosition(t *testing.T) {
	assert.True(t, TopLevel().IsTopLevel())
	_, ok := TopLevel().ParentID()
	assert.False(t, ok)

	pos := NestedUnder("blk-1")
	assert.False(t, pos.IsTopLevel())
	id, ok := pos.ParentID()
	assert.True(t, ok)
	assert.Equal(t, "blk-1", id)
}

func TestCheckShape(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*TimetableEntry)
		reason StructuralReason
	}{
		{"valid", func(*TimetableEntry) {}, ""},
		{"missing id", func(e *TimetableEntry) { e.ID = "" }, StructuralInvalidPayload},
		{"missing event", func(e *TimetableEntry) { e.EventID = "" }, StructuralInvalidPayload},
		{"missing start", func(e *TimetableEntry) { e.StartDT = time.Time{} }, StructuralInvalidPayload},
		{"no payload", func(e *TimetableEntry) { e.Payload = nil }, StructuralInvalidPayload},
		{"zero duration", func(e *TimetableEntry) { *e = e.WithDuration(0) }, StructuralInvalidDuration},
		{"sub-second duration", func(e *TimetableEntry) { *e = e.WithDuration(1500 * time.Millisecond) }, StructuralInvalidDuration},
		{"session without block", func(e *TimetableEntry) {
			p, _ := e.Contribution()
			p.Session = &SessionLink{SessionID: "sess-1"}
			e.Payload = p
		}, StructuralInvalidPayload},
		{"block without session", func(e *TimetableEntry) {
			p, _ := e.Contribution()
			p.Session = &SessionLink{SessionBlockID: "sb-1"}
			e.Payload = p
		}, StructuralInvalidPayload},
		{"nested session block", func(e *TimetableEntry) {
			e.Payload = SessionBlockPayload{SessionBlockID: "sb-1", SessionID: "sess-1", Duration: time.Hour}
		}, StructuralNestedBlock},
		{"incomplete session block", func(e *TimetableEntry) {
			e.Position = TopLevel()
			e.Payload = SessionBlockPayload{SessionID: "sess-1", Duration: time.Hour}
		}, StructuralInvalidPayload},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entry := sampleContribution()
			tc.mutate(&entry)
			err := entry.CheckShape()
			if tc.reason == "" {
				assert.NoError(t, err)
				return
			}
			var serr *StructuralError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, tc.reason, serr.Reason)
		})
	}
}

func TestCheckTreeShape(t *testing.T) {
	block := TimetableEntry{
		ID: "blk-1", EventID: "evt-1", Position: TopLevel(), StartDT: nine,
		Payload: SessionBlockPayload{SessionBlockID: "sb-1", SessionID: "sess-1", Duration: time.Hour},
	}
	child := sampleContribution()
	require.NoError(t, CheckTreeShape("evt-1", []TimetableEntry{block, child}))

	var serr *StructuralError
	err := CheckTreeShape("evt-1", []TimetableEntry{child})
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StructuralUnknownParent, serr.Reason)

	breakParent := TimetableEntry{ID: "blk-1", EventID: "evt-1", Position: TopLevel(), StartDT: nine, Payload: BreakPayload{Duration: time.Hour}}
	err = CheckTreeShape("evt-1", []TimetableEntry{breakParent, child})
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StructuralParentNotBlock, serr.Reason)

	err = CheckTreeShape("evt-2", []TimetableEntry{block})
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StructuralForeignParent, serr.Reason)

	err = CheckTreeShape("evt-1", []TimetableEntry{block, block})
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StructuralDuplicateEntry, serr.Reason)
}

func TestTimetableEntryMarshalJSON(t *testing.T) {
	raw, err := json.Marshal(sampleContribution())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "ent-1", decoded["id"])
	assert.Equal(t, "blk-1", decoded["parent_id"])
	assert.Equal(t, "CONTRIBUTION", decoded["type"])
	assert.Equal(t, float64(30), decoded["duration_minutes"])
	assert.Equal(t, "2024-05-06T09:30:00Z", decoded["end_dt"])
	assert.Equal(t, "track-ml", decoded["track_id"])
	assert.Equal(t, map[string]any{"session_id": "sess-1", "session_block_id": "sb-1"}, decoded["session"])
	assert.NotContains(t, decoded, "title")

	brk := TimetableEntry{ID: "ent-2", EventID: "evt-1", Position: TopLevel(), StartDT: nine, Payload: BreakPayload{Title: "Lunch", Duration: time.Hour}}
	raw, err = json.Marshal(brk)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "Lunch", decoded["title"])
}

func TestViolationErrorMessage(t *testing.T) {
	entry := sampleContribution()
	single := &ViolationError{Violations: []Violation{NewTopLevelContributionViolation(entry, SessionLink{SessionID: "sess-1", SessionBlockID: "sb-1"})}}
	assert.Equal(t,
		"timetable commit rejected: contribution entry ent-1 belongs to session sess-1 (block sb-1) but is not scheduled inside a session block",
		single.Error())

	limit := nine.Add(-time.Hour)
	multi := &ViolationError{Violations: []Violation{
		NewBoundViolation(ViolationEntryStartsBeforeEvent, entry, "", nine, limit),
		NewSessionMismatchViolation(entry, nil, entry, SessionBlockPayload{SessionID: "sess-2", SessionBlockID: "sb-2"}),
	}}
	assert.Equal(t, "timetable commit rejected: 2 violations (EntryStartsBeforeEvent, ChildSessionMismatch)", multi.Error())
	assert.Equal(t, []ViolationKind{ViolationEntryStartsBeforeEvent, ViolationChildSessionMismatch}, multi.Kinds())
	assert.Contains(t, multi.Violations[1].Message(), "(no session)")
}

func TestEventContains(t *testing.T) {
	event := Event{ID: "evt-1", StartDT: nine, EndDT: nine.Add(8 * time.Hour)}
	assert.True(t, event.Contains(nine, nine.Add(8*time.Hour)))
	assert.False(t, event.Contains(nine.Add(-time.Minute), nine))
	assert.False(t, event.Contains(nine, nine.Add(9*time.Hour)))
}
