package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/conference-timetable/internal/models"
)

// EventRepository persists conference events, the roots of timetable trees.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID loads an event. sql.ErrNoRows is returned unchanged when missing.
func (r *EventRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Event, error) {
	target := r.exec(exec)
	const query = `SELECT id, title, start_dt, end_dt FROM events WHERE id = ?`
	var event models.Event
	if err := sqlx.GetContext(ctx, target, &event, target.Rebind(query), id); err != nil {
		return nil, err
	}
	return &event, nil
}

// List returns every event ordered by start.
func (r *EventRepository) List(ctx context.Context) ([]models.Event, error) {
	const query = `SELECT id, title, start_dt, end_dt FROM events ORDER BY start_dt, id`
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// ListIDs returns every event id, used by the audit sweep.
func (r *EventRepository) ListIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT id FROM events ORDER BY id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("list event ids: %w", err)
	}
	return ids, nil
}

// Create inserts an event.
func (r *EventRepository) Create(ctx context.Context, exec sqlx.ExtContext, event *models.Event) error {
	if event == nil {
		return fmt.Errorf("event payload is nil")
	}
	if event.ID == "" {
		return fmt.Errorf("event id is required")
	}
	if event.EndDT.Before(event.StartDT) {
		return fmt.Errorf("event %s ends before it starts", event.ID)
	}
	row := *event
	row.StartDT = event.StartDT.UTC()
	row.EndDT = event.EndDT.UTC()

	const query = `INSERT INTO events (id, title, start_dt, end_dt) VALUES (:id, :title, :start_dt, :end_dt)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, row); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}
