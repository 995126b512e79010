package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/conference-timetable/internal/models"
	"github.com/noah-isme/conference-timetable/internal/timetable"
)

const timetableEntryColumns = `id, event_id, parent_id, type, start_dt, duration_seconds, session_block_id, session_id, contribution_id, track_id, title`

// ErrStaleEntry reports an update or delete that matched no row, meaning the
// entry changed underneath the transaction.
var ErrStaleEntry = errors.New("timetable entry changed concurrently")

// timetableEntryRow is the flat storage shape of a timetable entry. The
// payload columns are nullable; toEntry turns them back into the sum type.
type timetableEntryRow struct {
	ID              string         `db:"id"`
	EventID         string         `db:"event_id"`
	ParentID        sql.NullString `db:"parent_id"`
	Type            string         `db:"type"`
	StartDT         time.Time      `db:"start_dt"`
	DurationSeconds int64          `db:"duration_seconds"`
	SessionBlockID  sql.NullString `db:"session_block_id"`
	SessionID       sql.NullString `db:"session_id"`
	ContributionID  sql.NullString `db:"contribution_id"`
	TrackID         sql.NullString `db:"track_id"`
	Title           sql.NullString `db:"title"`
}

func (row timetableEntryRow) toEntry() (models.TimetableEntry, error) {
	entry := models.TimetableEntry{
		ID:       row.ID,
		EventID:  row.EventID,
		Position: models.TopLevel(),
		StartDT:  row.StartDT.UTC(),
	}
	if row.ParentID.Valid {
		entry.Position = models.NestedUnder(row.ParentID.String)
	}
	duration := time.Duration(row.DurationSeconds) * time.Second

	switch models.EntryType(row.Type) {
	case models.EntryTypeSessionBlock:
		entry.Payload = models.SessionBlockPayload{
			SessionBlockID: row.SessionBlockID.String,
			SessionID:      row.SessionID.String,
			Duration:       duration,
		}
	case models.EntryTypeContribution:
		payload := models.ContributionPayload{ContributionID: row.ContributionID.String, Duration: duration}
		if row.SessionID.Valid || row.SessionBlockID.Valid {
			payload.Session = &models.SessionLink{SessionID: row.SessionID.String, SessionBlockID: row.SessionBlockID.String}
		}
		if row.TrackID.Valid {
			track := row.TrackID.String
			payload.TrackID = &track
		}
		entry.Payload = payload
	case models.EntryTypeBreak:
		entry.Payload = models.BreakPayload{Title: row.Title.String, Duration: duration}
	default:
		return models.TimetableEntry{}, fmt.Errorf("timetable entry %s has unknown type %q", row.ID, row.Type)
	}
	return entry, nil
}

func rowFromEntry(entry models.TimetableEntry) timetableEntryRow {
	row := timetableEntryRow{
		ID:              entry.ID,
		EventID:         entry.EventID,
		Type:            string(entry.Type()),
		StartDT:         entry.StartDT.UTC(),
		DurationSeconds: int64(entry.Duration() / time.Second),
	}
	if parentID, ok := entry.Position.ParentID(); ok {
		row.ParentID = nullString(parentID)
	}
	switch p := entry.Payload.(type) {
	case models.SessionBlockPayload:
		row.SessionBlockID = nullString(p.SessionBlockID)
		row.SessionID = nullString(p.SessionID)
	case models.ContributionPayload:
		row.ContributionID = nullString(p.ContributionID)
		if p.Session != nil {
			row.SessionID = nullString(p.Session.SessionID)
			row.SessionBlockID = nullString(p.Session.SessionBlockID)
		}
		if p.TrackID != nil {
			row.TrackID = nullString(*p.TrackID)
		}
	case models.BreakPayload:
		row.Title = nullString(p.Title)
	}
	return row
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// TimetableRepository stores timetable entries and serves them to the
// consistency engine as a timetable.TreeSource.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

func (r *TimetableRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// LoadTree implements timetable.TreeSource outside of any transaction.
func (r *TimetableRepository) LoadTree(ctx context.Context, eventID string) (models.Event, []models.TimetableEntry, error) {
	return r.loadTree(ctx, r.db, eventID)
}

// EventOfEntry implements timetable.TreeSource outside of any transaction.
func (r *TimetableRepository) EventOfEntry(ctx context.Context, entryID string) (string, error) {
	return r.eventOfEntry(ctx, r.db, entryID)
}

// WithExec returns a TreeSource that reads through exec, typically an open
// *sqlx.Tx so staged mutations see the same snapshot they are committed into.
func (r *TimetableRepository) WithExec(exec sqlx.ExtContext) timetable.TreeSource {
	return boundTreeSource{repo: r, exec: r.exec(exec)}
}

type boundTreeSource struct {
	repo *TimetableRepository
	exec sqlx.ExtContext
}

func (s boundTreeSource) LoadTree(ctx context.Context, eventID string) (models.Event, []models.TimetableEntry, error) {
	return s.repo.loadTree(ctx, s.exec, eventID)
}

func (s boundTreeSource) EventOfEntry(ctx context.Context, entryID string) (string, error) {
	return s.repo.eventOfEntry(ctx, s.exec, entryID)
}

func (r *TimetableRepository) loadTree(ctx context.Context, target sqlx.ExtContext, eventID string) (models.Event, []models.TimetableEntry, error) {
	const eventQuery = `SELECT id, title, start_dt, end_dt FROM events WHERE id = ?`
	var event models.Event
	if err := sqlx.GetContext(ctx, target, &event, target.Rebind(eventQuery), eventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Event{}, nil, fmt.Errorf("event %s: %w", eventID, timetable.ErrNotFound)
		}
		return models.Event{}, nil, fmt.Errorf("load event %s: %w", eventID, err)
	}
	event.StartDT = event.StartDT.UTC()
	event.EndDT = event.EndDT.UTC()

	const entriesQuery = `SELECT ` + timetableEntryColumns + ` FROM timetable_entries WHERE event_id = ? ORDER BY start_dt, id`
	var rows []timetableEntryRow
	if err := sqlx.SelectContext(ctx, target, &rows, target.Rebind(entriesQuery), eventID); err != nil {
		return models.Event{}, nil, fmt.Errorf("load timetable entries of event %s: %w", eventID, err)
	}
	entries := make([]models.TimetableEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toEntry()
		if err != nil {
			return models.Event{}, nil, err
		}
		entries = append(entries, entry)
	}
	return event, entries, nil
}

func (r *TimetableRepository) eventOfEntry(ctx context.Context, target sqlx.ExtContext, entryID string) (string, error) {
	const query = `SELECT event_id FROM timetable_entries WHERE id = ?`
	var eventID string
	if err := sqlx.GetContext(ctx, target, &eventID, target.Rebind(query), entryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("entry %s: %w", entryID, timetable.ErrNotFound)
		}
		return "", fmt.Errorf("resolve event of entry %s: %w", entryID, err)
	}
	return eventID, nil
}

// ApplyChanges persists one event's committed change set. Rows are written
// parents first and deleted children first so parent_id references hold
// after every statement.
func (r *TimetableRepository) ApplyChanges(ctx context.Context, exec sqlx.ExtContext, changes timetable.EventChanges) error {
	target := r.exec(exec)

	createdTop, createdNested := splitByNesting(changes.Created)
	for _, entry := range createdTop {
		if err := r.insert(ctx, target, entry); err != nil {
			return err
		}
	}
	for _, entry := range changes.Updated {
		if err := r.update(ctx, target, entry); err != nil {
			return err
		}
	}
	for _, entry := range createdNested {
		if err := r.insert(ctx, target, entry); err != nil {
			return err
		}
	}
	deletedTop, deletedNested := splitByNesting(changes.Deleted)
	for _, entry := range append(deletedNested, deletedTop...) {
		if err := r.delete(ctx, target, entry); err != nil {
			return err
		}
	}
	return nil
}

func (r *TimetableRepository) insert(ctx context.Context, target sqlx.ExtContext, entry models.TimetableEntry) error {
	const query = `INSERT INTO timetable_entries (` + timetableEntryColumns + `)
VALUES (:id, :event_id, :parent_id, :type, :start_dt, :duration_seconds, :session_block_id, :session_id, :contribution_id, :track_id, :title)`
	if _, err := sqlx.NamedExecContext(ctx, target, query, rowFromEntry(entry)); err != nil {
		return fmt.Errorf("insert timetable entry %s: %w", entry.ID, err)
	}
	return nil
}

func (r *TimetableRepository) update(ctx context.Context, target sqlx.ExtContext, entry models.TimetableEntry) error {
	const query = `UPDATE timetable_entries SET parent_id = :parent_id, type = :type, start_dt = :start_dt,
duration_seconds = :duration_seconds, session_block_id = :session_block_id, session_id = :session_id,
contribution_id = :contribution_id, track_id = :track_id, title = :title
WHERE id = :id AND event_id = :event_id`
	result, err := sqlx.NamedExecContext(ctx, target, query, rowFromEntry(entry))
	if err != nil {
		return fmt.Errorf("update timetable entry %s: %w", entry.ID, err)
	}
	return expectOneRow(result, entry.ID)
}

func (r *TimetableRepository) delete(ctx context.Context, target sqlx.ExtContext, entry models.TimetableEntry) error {
	const query = `DELETE FROM timetable_entries WHERE id = ? AND event_id = ?`
	result, err := target.ExecContext(ctx, target.Rebind(query), entry.ID, entry.EventID)
	if err != nil {
		return fmt.Errorf("delete timetable entry %s: %w", entry.ID, err)
	}
	return expectOneRow(result, entry.ID)
}

func expectOneRow(result sql.Result, entryID string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable entry %s rows affected: %w", entryID, err)
	}
	if affected == 0 {
		return fmt.Errorf("timetable entry %s: %w", entryID, ErrStaleEntry)
	}
	return nil
}

func splitByNesting(entries []models.TimetableEntry) (top, nested []models.TimetableEntry) {
	for _, entry := range entries {
		if entry.Position.IsTopLevel() {
			top = append(top, entry)
		} else {
			nested = append(nested, entry)
		}
	}
	return top, nested
}
