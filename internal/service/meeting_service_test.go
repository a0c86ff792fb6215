package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Danilnaisov/praktika05/internal/models"
	appErrors "github.com/Danilnaisov/praktika05/pkg/errors"
)

type mockMeetingStore struct {
	meetings map[string]*models.CommitteeMeeting
	created  []*models.CommitteeMeeting
}

func newMockMeetingStore() *mockMeetingStore {
	return &mockMeetingStore{meetings: make(map[string]*models.CommitteeMeeting)}
}

func (m *mockMeetingStore) List(ctx context.Context) ([]models.CommitteeMeeting, error) {
	out := make([]models.CommitteeMeeting, 0, len(m.meetings))
	for _, meeting := range m.meetings {
		out = append(out, *meeting)
	}
	return out, nil
}

func (m *mockMeetingStore) ListByStudent(ctx context.Context, studentID string) ([]models.CommitteeMeeting, error) {
	var out []models.CommitteeMeeting
	for _, meeting := range m.meetings {
		if meeting.StudentID == studentID {
			out = append(out, *meeting)
		}
	}
	return out, nil
}

func (m *mockMeetingStore) Create(ctx context.Context, meeting *models.CommitteeMeeting) error {
	if meeting.ID == "" {
		meeting.ID = "meeting-created"
	}
	m.created = append(m.created, meeting)
	m.meetings[meeting.ID] = meeting
	return nil
}

func (m *mockMeetingStore) Delete(ctx context.Context, id string) error {
	if _, ok := m.meetings[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.meetings, id)
	return nil
}

type mockStudentFinder struct {
	students map[string]*models.StudentDetail
}

func (m *mockStudentFinder) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func completeMeetingPayload() MeetingPayload {
	return MeetingPayload{
		Date:            time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Staff:           "Петрова А.А., Сидоров Б.Б.",
		Representatives: "Иванова М.И.",
		Reason:          "пропуски занятий",
		Decision:        "поставить на внутренний учёт",
	}
}

func TestMeetingServiceCreate(t *testing.T) {
	store := newMockMeetingStore()
	finder := &mockStudentFinder{students: map[string]*models.StudentDetail{"s1": {}}}
	svc := NewMeetingService(store, finder, validator.New(), zap.NewNop())

	meeting, err := svc.Create(context.Background(), "s1", completeMeetingPayload())
	require.NoError(t, err)
	assert.Equal(t, "s1", meeting.StudentID)
	assert.Len(t, store.created, 1)
}

func TestMeetingServiceCreateIncomplete(t *testing.T) {
	finder := &mockStudentFinder{students: map[string]*models.StudentDetail{"s1": {}}}
	svc := NewMeetingService(newMockMeetingStore(), finder, validator.New(), zap.NewNop())

	payload := completeMeetingPayload()
	payload.Decision = ""
	_, err := svc.Create(context.Background(), "s1", payload)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestMeetingServiceCreateUnknownStudent(t *testing.T) {
	svc := NewMeetingService(newMockMeetingStore(), &mockStudentFinder{}, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), "missing", completeMeetingPayload())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestMeetingServiceDeleteNotFound(t *testing.T) {
	finder := &mockStudentFinder{}
	svc := NewMeetingService(newMockMeetingStore(), finder, validator.New(), zap.NewNop())

	err := svc.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
