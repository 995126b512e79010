package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/conference-timetable/internal/models"
)

func TestEventRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, start_dt, end_dt FROM events WHERE id = ?")).
		WithArgs("evt-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "start_dt", "end_dt"}).AddRow("evt-1", "Main", at(9, 0), at(18, 0)))

	event, err := repo.FindByID(context.Background(), nil, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "Main", event.Title)
	assert.True(t, event.EndDT.Equal(at(18, 0)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events (id, title, start_dt, end_dt)")).
		WithArgs("evt-1", "Main", at(9, 0), at(18, 0)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Create(context.Background(), nil, &models.Event{ID: "evt-1", Title: "Main", StartDT: at(9, 0), EndDT: at(18, 0)}))
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Error(t, repo.Create(context.Background(), nil, &models.Event{ID: "evt-2", StartDT: at(18, 0), EndDT: at(9, 0)}))
	assert.Error(t, repo.Create(context.Background(), nil, nil))
}

func TestEventRepositoryListIDs(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM events ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("evt-1").AddRow("evt-2"))

	ids, err := repo.ListIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"evt-1", "evt-2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
