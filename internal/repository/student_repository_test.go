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
	appErrors "github.com/Danilnaisov/praktika05/pkg/errors"
)

func newStudentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func studentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "last_name", "first_name", "middle_name", "birth_date", "gender", "group_label", "phone",
		"funding", "education", "department_id", "admission_year", "graduation_year", "expulsion_info",
		"expulsion_date", "note", "created_at", "updated_at", "department_name", "department_code",
	}).AddRow(
		"s1", "Иванов", "Иван", "Иванович", time.Date(2006, 3, 12, 0, 0, 0, 0, time.UTC), nil, "ИС-24-1",
		"+7 (912)-345-67-89", models.FundingBudget, models.EducationGrade9, "d1", 2024, 2028, nil,
		nil, "", time.Now(), time.Now(), "Информационные системы", "ИС",
	)
}

func TestStudentRepositoryList(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(`SELECT s\.id, .+ FROM students s LEFT JOIN departments d`).
		WithArgs("%Иванов%").
		WillReturnRows(studentRows())
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM students s LEFT JOIN departments d`).
		WithArgs("%Иванов%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	students, total, err := repo.List(context.Background(), models.StudentFilter{LastName: "Иванов"}, nil)
	require.NoError(t, err)
	assert.Len(t, students, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Иванов", students[0].LastName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListEmptyIDSetShortCircuits(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	students, total, err := repo.List(context.Background(), models.StudentFilter{}, []string{})
	require.NoError(t, err)
	assert.Empty(t, students)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositorySaveWithStatusesCreate(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO students").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT capacity FROM rooms").
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(4))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM student_statuses`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectPrepare("INSERT INTO student_statuses").
		ExpectQuery().
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("st1"))
	mock.ExpectCommit()

	roomID := "r1"
	student := &models.Student{
		LastName: "Иванов", FirstName: "Иван",
		BirthDate: time.Date(2006, 3, 12, 0, 0, 0, 0, time.UTC),
		Funding:   models.FundingBudget, Education: models.EducationGrade9,
		DepartmentID: "d1", AdmissionYear: 2024,
	}
	statuses := []models.StatusRecord{{
		Kind:      models.StatusDormitory,
		Document:  "приказ 15",
		StartDate: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		RoomID:    &roomID,
	}}

	err := repo.SaveWithStatuses(context.Background(), student, statuses, nil, nil, true)
	require.NoError(t, err)
	assert.NotEmpty(t, student.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositorySaveWithStatusesRoomFull(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO students").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT capacity FROM rooms").
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(2))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM student_statuses`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	roomID := "r1"
	statuses := []models.StatusRecord{{
		Kind:      models.StatusDormitory,
		StartDate: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		RoomID:    &roomID,
	}}

	err := repo.SaveWithStatuses(context.Background(), &models.Student{LastName: "Иванов"}, statuses, nil, nil, true)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRoomFull.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryDeleteCascadeBlockedByAttachments(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM attachments`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectRollback()

	err := repo.DeleteCascade(context.Background(), "s1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryDeleteCascade(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM attachments`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("DELETE FROM committee_meetings").
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM student_statuses").
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM students").
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.DeleteCascade(context.Background(), "s1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
