package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Danilnaisov/praktika05/internal/models"
	appErrors "github.com/Danilnaisov/praktika05/pkg/errors"
)

type meetingRepository interface {
	List(ctx context.Context) ([]models.CommitteeMeeting, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.CommitteeMeeting, error)
	Create(ctx context.Context, meeting *models.CommitteeMeeting) error
	Delete(ctx context.Context, id string) error
}

type meetingStudentChecker interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

// MeetingService manages prevention-committee sittings.
type MeetingService struct {
	meetings  meetingRepository
	students  meetingStudentChecker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMeetingService constructs the meeting service.
func NewMeetingService(meetings meetingRepository, students meetingStudentChecker, validate *validator.Validate, logger *zap.Logger) *MeetingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MeetingService{meetings: meetings, students: students, validator: validate, logger: logger}
}

// List returns all sittings, newest first.
func (s *MeetingService) List(ctx context.Context) ([]models.CommitteeMeeting, error) {
	meetings, err := s.meetings.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list meetings")
	}
	return meetings, nil
}

// ListByStudent returns the meetings of one student ordered by date.
func (s *MeetingService) ListByStudent(ctx context.Context, studentID string) ([]models.CommitteeMeeting, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	meetings, err := s.meetings.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list meetings")
	}
	return meetings, nil
}

// Create records a new sitting for a student. Every field except the
// note is required together.
func (s *MeetingService) Create(ctx context.Context, studentID string, payload MeetingPayload) (*models.CommitteeMeeting, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	meeting := &models.CommitteeMeeting{
		StudentID:       studentID,
		Date:            payload.Date,
		Staff:           payload.Staff,
		Representatives: payload.Representatives,
		Reason:          payload.Reason,
		Decision:        payload.Decision,
		Note:            payload.Note,
	}
	if !meeting.Complete() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "meeting requires date, staff, representatives, reason and decision")
	}
	if err := s.meetings.Create(ctx, meeting); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create meeting")
	}
	return meeting, nil
}

// Delete removes one sitting.
func (s *MeetingService) Delete(ctx context.Context, id string) error {
	if err := s.meetings.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "meeting not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete meeting")
	}
	return nil
}
