package timetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/conference-timetable/internal/models"
)

func TestValidatePassingScenario(t *testing.T) {
	src := conferenceFixture()
	violations := Validate(src.events["evt-1"], src.entries["evt-1"])
	assert.Empty(t, violations)
}

func TestValidateTopLevelContributionInSession(t *testing.T) {
	event := models.Event{ID: "evt-1", StartDT: at(9, 0), EndDT: at(18, 0)}
	entries := []models.TimetableEntry{
		contributionEntry("ent-1", "evt-1", models.TopLevel(), at(10, 0), minutes(30), link("sess-1", "sb-1")),
		contributionEntry("ent-2", "evt-1", models.TopLevel(), at(11, 0), minutes(30), nil),
	}

	violations := Validate(event, entries)
	require.Len(t, violations, 1)
	assert.Equal(t, models.ViolationTopLevelContributionInSession, violations[0].Kind)
	assert.Equal(t, "ent-1", violations[0].EntryID)
	assert.Equal(t, "sess-1", violations[0].SessionID)
	assert.Equal(t, "sb-1", violations[0].SessionBlockID)
}

func TestValidateChildSessionMismatch(t *testing.T) {
	event := models.Event{ID: "evt-1", StartDT: at(9, 0), EndDT: at(18, 0)}
	entries := []models.TimetableEntry{
		blockEntry("blk-1", "evt-1", "sess-1", "sb-1", at(9, 0), minutes(120)),
		contributionEntry("ent-wrong-block", "evt-1", models.NestedUnder("blk-1"), at(9, 0), minutes(20), link("sess-1", "sb-2")),
		contributionEntry("ent-no-session", "evt-1", models.NestedUnder("blk-1"), at(9, 30), minutes(20), nil),
		breakEntry("ent-break", "evt-1", models.NestedUnder("blk-1"), at(10, 0), minutes(15)),
	}

	violations := Validate(event, entries)
	require.Len(t, violations, 2)
	assert.Equal(t, "ent-wrong-block", violations[0].EntryID)
	assert.Equal(t, "sb-1", violations[0].ExpectedSessionBlockID)
	assert.Equal(t, "sb-2", violations[0].SessionBlockID)
	assert.Equal(t, "ent-no-session", violations[1].EntryID)
	assert.Empty(t, violations[1].SessionID)
	for _, v := range violations {
		assert.Equal(t, models.ViolationChildSessionMismatch, v.Kind)
		assert.Equal(t, "blk-1", v.ParentID)
	}
}

func TestValidateChildBounds(t *testing.T) {
	event := models.Event{ID: "evt-1", StartDT: at(8, 0), EndDT: at(18, 0)}
	entries := []models.TimetableEntry{
		blockEntry("blk-1", "evt-1", "sess-1", "sb-1", at(9, 0), minutes(60)),
		breakEntry("ent-early", "evt-1", models.NestedUnder("blk-1"), at(8, 45), minutes(30)),
		breakEntry("ent-late", "evt-1", models.NestedUnder("blk-1"), at(9, 45), minutes(30)),
	}

	violations := Validate(event, entries)
	require.Len(t, violations, 2)

	assert.Equal(t, models.ViolationChildStartsBeforeParent, violations[0].Kind)
	assert.Equal(t, "ent-early", violations[0].EntryID)
	assert.True(t, violations[0].Actual.Equal(at(8, 45)))
	assert.True(t, violations[0].Limit.Equal(at(9, 0)))

	assert.Equal(t, models.ViolationChildEndsAfterParent, violations[1].Kind)
	assert.Equal(t, "ent-late", violations[1].EntryID)
	assert.True(t, violations[1].Actual.Equal(at(10, 15)))
	assert.True(t, violations[1].Limit.Equal(at(10, 0)))
}

func TestValidateEventBoundsRegardlessOfNesting(t *testing.T) {
	event := models.Event{ID: "evt-1", StartDT: at(9, 0), EndDT: at(12, 0)}
	entries := []models.TimetableEntry{
		contributionEntry("ent-top", "evt-1", models.TopLevel(), at(8, 30), minutes(30), nil),
		blockEntry("blk-1", "evt-1", "sess-1", "sb-1", at(8, 0), minutes(300)),
		contributionEntry("ent-nested", "evt-1", models.NestedUnder("blk-1"), at(8, 15), minutes(30), link("sess-1", "sb-1")),
	}

	violations := Validate(event, entries)
	assert.Equal(t, []models.ViolationKind{
		models.ViolationEntryStartsBeforeEvent,
		models.ViolationEntryEndsAfterEvent,
		models.ViolationEntryStartsBeforeEvent,
		models.ViolationEntryStartsBeforeEvent,
	}, kinds(violations))
	assert.Equal(t, "blk-1", violations[0].EntryID)
	assert.Equal(t, "blk-1", violations[1].EntryID)
	assert.Equal(t, "ent-nested", violations[2].EntryID)
	assert.Equal(t, "ent-top", violations[3].EntryID)
}

func TestValidateOrdersByStartThenIDThenKind(t *testing.T) {
	event := models.Event{ID: "evt-1", StartDT: at(9, 0), EndDT: at(12, 0)}
	entries := []models.TimetableEntry{
		contributionEntry("b", "evt-1", models.TopLevel(), at(10, 0), minutes(30), link("sess-1", "sb-1")),
		breakEntry("a", "evt-1", models.TopLevel(), at(8, 0), minutes(30)),
		blockEntry("blk-2", "evt-1", "sess-1", "sb-1", at(11, 30), minutes(60)),
		blockEntry("blk-1", "evt-1", "sess-1", "sb-1", at(11, 30), minutes(60)),
		contributionEntry("c", "evt-1", models.NestedUnder("blk-1"), at(11, 0), minutes(120), link("sess-2", "sb-2")),
	}

	violations := Validate(event, entries)
	type key struct {
		entry string
		kind  models.ViolationKind
	}
	got := make([]key, 0, len(violations))
	for _, v := range violations {
		got = append(got, key{v.EntryID, v.Kind})
	}
	assert.Equal(t, []key{
		{"a", models.ViolationEntryStartsBeforeEvent},
		{"b", models.ViolationTopLevelContributionInSession},
		{"c", models.ViolationChildSessionMismatch},
		{"c", models.ViolationChildStartsBeforeParent},
		{"c", models.ViolationChildEndsAfterParent},
		{"c", models.ViolationEntryEndsAfterEvent},
		{"blk-1", models.ViolationEntryEndsAfterEvent},
		{"blk-2", models.ViolationEntryEndsAfterEvent},
	}, got)

	reversed := make([]models.TimetableEntry, len(entries))
	for i, entry := range entries {
		reversed[len(entries)-1-i] = entry
	}
	assert.Equal(t, violations, Validate(event, reversed))
}

func TestValidateBoundsAreInclusive(t *testing.T) {
	event := models.Event{ID: "evt-1", StartDT: at(9, 0), EndDT: at(10, 0)}
	entries := []models.TimetableEntry{
		blockEntry("blk-1", "evt-1", "sess-1", "sb-1", at(9, 0), minutes(60)),
		breakEntry("ent-1", "evt-1", models.NestedUnder("blk-1"), at(9, 0), minutes(60)),
	}
	assert.Empty(t, Validate(event, entries))
}

func TestValidateAccumulatesEveryViolation(t *testing.T) {
	event := models.Event{ID: "evt-1", StartDT: at(9, 0), EndDT: at(10, 0)}
	entries := []models.TimetableEntry{
		contributionEntry("ent-top", "evt-1", models.TopLevel(), at(9, 0), minutes(15), link("sess-1", "sb-1")),
		blockEntry("blk-1", "evt-1", "sess-1", "sb-1", at(9, 0), minutes(30)),
		contributionEntry("ent-child", "evt-1", models.NestedUnder("blk-1"), at(9, 20), minutes(60), link("sess-2", "sb-2")),
	}

	violations := Validate(event, entries)
	assert.ElementsMatch(t, []models.ViolationKind{
		models.ViolationTopLevelContributionInSession,
		models.ViolationChildSessionMismatch,
		models.ViolationChildEndsAfterParent,
		models.ViolationEntryEndsAfterEvent,
	}, kinds(violations))
}

func TestValidateSkipsUnresolvableParents(t *testing.T) {
	event := models.Event{ID: "evt-1", StartDT: at(9, 0), EndDT: at(18, 0)}
	entries := []models.TimetableEntry{
		breakEntry("ent-orphan", "evt-1", models.NestedUnder("blk-missing"), at(10, 0), minutes(15)),
	}
	assert.Empty(t, Validate(event, entries))
}

func TestValidateIsIdempotentAndPure(t *testing.T) {
	event := models.Event{ID: "evt-1", StartDT: at(9, 0), EndDT: at(10, 0)}
	entries := []models.TimetableEntry{
		blockEntry("blk-1", "evt-1", "sess-1", "sb-1", at(9, 0), minutes(30)),
		contributionEntry("ent-1", "evt-1", models.NestedUnder("blk-1"), at(9, 10), minutes(45), link("sess-1", "sb-1")),
	}
	snapshot := make([]models.TimetableEntry, len(entries))
	for i, entry := range entries {
		snapshot[i] = entry.Clone()
	}

	first := Validate(event, entries)
	second := Validate(event, entries)
	assert.Equal(t, first, second)
	require.NotEmpty(t, first)
	for i := range entries {
		assert.True(t, snapshot[i].Equal(entries[i]))
	}
}

func TestViolationMessages(t *testing.T) {
	event := models.Event{ID: "evt-1", StartDT: at(9, 0), EndDT: at(18, 0)}
	entries := []models.TimetableEntry{
		blockEntry("blk-1", "evt-1", "sess-1", "sb-1", at(9, 0), minutes(120)),
		contributionEntry("ent-1", "evt-1", models.NestedUnder("blk-1"), at(9, 30), minutes(105), link("sess-1", "sb-1")),
	}
	violations := Validate(event, entries)
	require.Len(t, violations, 1)
	assert.Equal(t,
		"entry ent-1 ends at 2024-05-06T11:15:00Z, after its session block blk-1 ends at 2024-05-06T11:00:00Z",
		violations[0].Message())
}
