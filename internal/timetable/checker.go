package timetable

import (
	"sort"

	"github.com/noah-isme/conference-timetable/internal/models"
)

// Validate checks every invariant of one event's entry tree and returns all
// violations found. It never mutates its input and only looks at the entries
// passed in. Violations are ordered by entry start, then entry id, then kind
// in models.ViolationKinds order, so any permutation of the same entries
// yields the same result.
func Validate(event models.Event, entries []models.TimetableEntry) []models.Violation {
	var (
		violations []models.Violation
		topLevel   = make([]int, 0, len(entries))
		nested     = make([]int, 0, len(entries))
		byID       = make(map[string]int, len(entries))
	)
	for i, entry := range entries {
		byID[entry.ID] = i
		if entry.Position.IsTopLevel() {
			topLevel = append(topLevel, i)
		} else {
			nested = append(nested, i)
		}
	}

	for _, i := range topLevel {
		entry := entries[i]
		contrib, ok := entry.Contribution()
		if ok && contrib.Session != nil {
			violations = append(violations, models.NewTopLevelContributionViolation(entry, *contrib.Session))
		}
	}

	for _, i := range nested {
		entry := entries[i]
		parentID, _ := entry.Position.ParentID()
		pi, ok := byID[parentID]
		if !ok {
			continue
		}
		parent := entries[pi]
		block, ok := parent.SessionBlock()
		if !ok {
			continue
		}
		if contrib, ok := entry.Contribution(); ok && !sameSession(contrib.Session, block) {
			violations = append(violations, models.NewSessionMismatchViolation(entry, contrib.Session, parent, block))
		}
		if entry.StartDT.Before(parent.StartDT) {
			violations = append(violations, models.NewBoundViolation(models.ViolationChildStartsBeforeParent, entry, parent.ID, entry.StartDT, parent.StartDT))
		}
		if entry.EndDT().After(parent.EndDT()) {
			violations = append(violations, models.NewBoundViolation(models.ViolationChildEndsAfterParent, entry, parent.ID, entry.EndDT(), parent.EndDT()))
		}
	}

	for _, entry := range entries {
		if entry.StartDT.Before(event.StartDT) {
			violations = append(violations, models.NewBoundViolation(models.ViolationEntryStartsBeforeEvent, entry, "", entry.StartDT, event.StartDT))
		}
		if entry.EndDT().After(event.EndDT) {
			violations = append(violations, models.NewBoundViolation(models.ViolationEntryEndsAfterEvent, entry, "", entry.EndDT(), event.EndDT))
		}
	}

	sort.SliceStable(violations, func(a, b int) bool {
		va, vb := violations[a], violations[b]
		sa, sb := entries[byID[va.EntryID]].StartDT, entries[byID[vb.EntryID]].StartDT
		if !sa.Equal(sb) {
			return sa.Before(sb)
		}
		if va.EntryID != vb.EntryID {
			return va.EntryID < vb.EntryID
		}
		return kindRank[va.Kind] < kindRank[vb.Kind]
	})
	return violations
}

var kindRank = func() map[models.ViolationKind]int {
	rank := make(map[models.ViolationKind]int, len(models.ViolationKinds))
	for i, kind := range models.ViolationKinds {
		rank[kind] = i
	}
	return rank
}()

func sameSession(link *models.SessionLink, block models.SessionBlockPayload) bool {
	if link == nil {
		return false
	}
	return link.SessionID == block.SessionID && link.SessionBlockID == block.SessionBlockID
}
