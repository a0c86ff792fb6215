package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Danilnaisov/praktika05/internal/models"
)

func newRoomMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRoomRepositoryListOccupants(t *testing.T) {
	db, mock, cleanup := newRoomMock(t)
	defer cleanup()
	repo := NewRoomRepository(db)

	at := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"room_id", "student_id", "last_name", "first_name", "middle_name", "group_label", "phone", "start_date", "end_date"}).
		AddRow("r1", "s1", "Иванов", "Иван", "", "ИС-24-1", "+7 (912)-345-67-89", time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), nil).
		AddRow("r1", "s2", "Петров", "Пётр", "", "ЭК-24-2", "+7 (912)-000-11-22", time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), nil)
	mock.ExpectQuery("SELECT ss.room_id, ss.student_id").
		WithArgs(models.StatusDormitory, at).
		WillReturnRows(rows)

	occupants, err := repo.ListOccupants(context.Background(), at)
	require.NoError(t, err)
	require.Len(t, occupants["r1"], 2)
	assert.Equal(t, "Иванов", occupants["r1"][0].LastName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoomRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRoomMock(t)
	defer cleanup()
	repo := NewRoomRepository(db)

	mock.ExpectExec("INSERT INTO rooms").
		WillReturnResult(sqlmock.NewResult(0, 1))

	room := &models.Room{Name: "101", Capacity: 4}
	err := repo.Create(context.Background(), room)
	require.NoError(t, err)
	assert.NotEmpty(t, room.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoomRepositoryExistsByName(t *testing.T) {
	db, mock, cleanup := newRoomMock(t)
	defer cleanup()
	repo := NewRoomRepository(db)

	mock.ExpectQuery("SELECT 1 FROM rooms").
		WithArgs("101", "r1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err := repo.ExistsByName(context.Background(), "101", "r1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
