package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/conference-timetable/internal/models"
	"github.com/noah-isme/conference-timetable/internal/timetable"
)

var entryColumns = []string{"id", "event_id", "parent_id", "type", "start_dt", "duration_seconds", "session_block_id", "session_id", "contribution_id", "track_id", "title"}

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func at(hour, minute int) time.Time {
	return time.Date(2024, time.May, 6, hour, minute, 0, 0, time.UTC)
}

func TestTimetableRepositoryLoadTree(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, start_dt, end_dt FROM events WHERE id = ?")).
		WithArgs("evt-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "start_dt", "end_dt"}).AddRow("evt-1", "Main", at(9, 0), at(18, 0)))
	mock.ExpectQuery(regexp.QuoteMeta("FROM timetable_entries WHERE event_id = ? ORDER BY start_dt, id")).
		WithArgs("evt-1").
		WillReturnRows(sqlmock.NewRows(entryColumns).
			AddRow("blk-1", "evt-1", nil, "SESSION_BLOCK", at(9, 0), 7200, "sb-1", "sess-1", nil, nil, nil).
			AddRow("ent-c1", "evt-1", "blk-1", "CONTRIBUTION", at(9, 10), 1800, "sb-1", "sess-1", "contrib-1", "track-1", nil).
			AddRow("ent-b1", "evt-1", "blk-1", "BREAK", at(9, 45), 900, nil, nil, nil, nil, "Coffee").
			AddRow("ent-c2", "evt-1", nil, "CONTRIBUTION", at(12, 0), 1200, nil, nil, "contrib-2", nil, nil))

	event, entries, err := repo.LoadTree(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "Main", event.Title)
	require.Len(t, entries, 4)

	block, ok := entries[0].SessionBlock()
	require.True(t, ok)
	assert.Equal(t, models.SessionBlockPayload{SessionBlockID: "sb-1", SessionID: "sess-1", Duration: 2 * time.Hour}, block)

	contrib, ok := entries[1].Contribution()
	require.True(t, ok)
	parentID, nested := entries[1].Position.ParentID()
	assert.True(t, nested)
	assert.Equal(t, "blk-1", parentID)
	assert.Equal(t, &models.SessionLink{SessionID: "sess-1", SessionBlockID: "sb-1"}, contrib.Session)
	assert.Equal(t, "track-1", *contrib.TrackID)

	brk, ok := entries[2].Break()
	require.True(t, ok)
	assert.Equal(t, "Coffee", brk.Title)
	assert.Equal(t, 15*time.Minute, brk.Duration)

	standalone, _ := entries[3].Contribution()
	assert.Nil(t, standalone.Session)
	assert.True(t, entries[3].Position.IsTopLevel())

	assert.Empty(t, timetable.Validate(event, entries))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryLoadTreeUnknownEvent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, start_dt, end_dt FROM events WHERE id = ?")).
		WithArgs("evt-404").
		WillReturnError(sql.ErrNoRows)

	_, _, err := repo.LoadTree(context.Background(), "evt-404")
	assert.ErrorIs(t, err, timetable.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryLoadTreeRejectsUnknownType(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM events WHERE id = ?")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "start_dt", "end_dt"}).AddRow("evt-1", "Main", at(9, 0), at(18, 0)))
	mock.ExpectQuery(regexp.QuoteMeta("FROM timetable_entries WHERE event_id = ?")).
		WillReturnRows(sqlmock.NewRows(entryColumns).
			AddRow("ent-x", "evt-1", nil, "POSTER", at(9, 0), 600, nil, nil, nil, nil, nil))

	_, _, err := repo.LoadTree(context.Background(), "evt-1")
	assert.ErrorContains(t, err, `unknown type "POSTER"`)
}

func TestTimetableRepositoryEventOfEntry(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT event_id FROM timetable_entries WHERE id = ?")).
		WithArgs("ent-1").
		WillReturnRows(sqlmock.NewRows([]string{"event_id"}).AddRow("evt-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT event_id FROM timetable_entries WHERE id = ?")).
		WithArgs("ent-404").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT event_id FROM timetable_entries WHERE id = ?")).
		WithArgs("ent-err").
		WillReturnError(errors.New("conn reset"))

	ctx := context.Background()
	eventID, err := repo.EventOfEntry(ctx, "ent-1")
	require.NoError(t, err)
	assert.Equal(t, "evt-1", eventID)

	_, err = repo.EventOfEntry(ctx, "ent-404")
	assert.ErrorIs(t, err, timetable.ErrNotFound)

	_, err = repo.EventOfEntry(ctx, "ent-err")
	require.Error(t, err)
	assert.NotErrorIs(t, err, timetable.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryWithExecReadsThroughTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT event_id FROM timetable_entries WHERE id = ?")).
		WithArgs("ent-1").
		WillReturnRows(sqlmock.NewRows([]string{"event_id"}).AddRow("evt-1"))
	mock.ExpectRollback()

	tx, err := db.Beginx()
	require.NoError(t, err)
	eventID, err := repo.WithExec(tx).EventOfEntry(context.Background(), "ent-1")
	require.NoError(t, err)
	assert.Equal(t, "evt-1", eventID)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryApplyChangesOrdering(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	newBlock := models.TimetableEntry{
		ID: "blk-new", EventID: "evt-1", Position: models.TopLevel(), StartDT: at(11, 0),
		Payload: models.SessionBlockPayload{SessionBlockID: "sb-4", SessionID: "sess-1", Duration: time.Hour},
	}
	newChild := models.TimetableEntry{
		ID: "ent-new", EventID: "evt-1", Position: models.NestedUnder("blk-new"), StartDT: at(11, 30),
		Payload: models.BreakPayload{Duration: 10 * time.Minute},
	}
	moved := models.TimetableEntry{
		ID: "ent-c1", EventID: "evt-1", Position: models.NestedUnder("blk-new"), StartDT: at(11, 0),
		Payload: models.ContributionPayload{ContributionID: "contrib-1", Duration: 30 * time.Minute, Session: &models.SessionLink{SessionID: "sess-1", SessionBlockID: "sb-4"}},
	}
	oldBlock := models.TimetableEntry{
		ID: "blk-1", EventID: "evt-1", Position: models.TopLevel(), StartDT: at(9, 0),
		Payload: models.SessionBlockPayload{SessionBlockID: "sb-1", SessionID: "sess-1", Duration: 2 * time.Hour},
	}
	oldChild := models.TimetableEntry{
		ID: "ent-b1", EventID: "evt-1", Position: models.NestedUnder("blk-1"), StartDT: at(9, 45),
		Payload: models.BreakPayload{Title: "Coffee", Duration: 15 * time.Minute},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_entries")).
		WithArgs("blk-new", "evt-1", nil, "SESSION_BLOCK", at(11, 0), int64(3600), "sb-4", "sess-1", nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_entries SET parent_id = ?")).
		WithArgs("blk-new", "CONTRIBUTION", at(11, 0), int64(1800), "sb-4", "sess-1", "contrib-1", nil, nil, "ent-c1", "evt-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_entries")).
		WithArgs("ent-new", "evt-1", "blk-new", "BREAK", at(11, 30), int64(600), nil, nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetable_entries WHERE id = ? AND event_id = ?")).
		WithArgs("ent-b1", "evt-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetable_entries WHERE id = ? AND event_id = ?")).
		WithArgs("blk-1", "evt-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)
	err = repo.ApplyChanges(context.Background(), tx, timetable.EventChanges{
		Event:   models.Event{ID: "evt-1"},
		Created: []models.TimetableEntry{newChild, newBlock},
		Updated: []models.TimetableEntry{moved},
		Deleted: []models.TimetableEntry{oldBlock, oldChild},
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryApplyChangesStaleRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_entries")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ApplyChanges(context.Background(), nil, timetable.EventChanges{
		Updated: []models.TimetableEntry{{
			ID: "ent-1", EventID: "evt-1", Position: models.TopLevel(), StartDT: at(10, 0),
			Payload: models.BreakPayload{Duration: time.Minute},
		}},
	})
	assert.ErrorIs(t, err, ErrStaleEntry)
	assert.NoError(t, mock.ExpectationsWereMet())
}
