package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Danilnaisov/praktika05/internal/models"
)

// MeetingRepository persists committee meeting minutes.
type MeetingRepository struct {
	db *sqlx.DB
}

// NewMeetingRepository constructs a MeetingRepository.
func NewMeetingRepository(db *sqlx.DB) *MeetingRepository {
	return &MeetingRepository{db: db}
}

const meetingColumns = `id, student_id, meeting_date, staff, representatives, reason, decision, note, created_at`

// ListByStudent returns the student's meetings ordered by date.
func (r *MeetingRepository) ListByStudent(ctx context.Context, studentID string) ([]models.CommitteeMeeting, error) {
	query := fmt.Sprintf(`SELECT %s FROM committee_meetings WHERE student_id = $1 ORDER BY meeting_date`, meetingColumns)
	var meetings []models.CommitteeMeeting
	if err := r.db.SelectContext(ctx, &meetings, query, studentID); err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	return meetings, nil
}

// List returns all meetings, newest first.
func (r *MeetingRepository) List(ctx context.Context) ([]models.CommitteeMeeting, error) {
	query := fmt.Sprintf(`SELECT %s FROM committee_meetings ORDER BY meeting_date DESC`, meetingColumns)
	var meetings []models.CommitteeMeeting
	if err := r.db.SelectContext(ctx, &meetings, query); err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	return meetings, nil
}

// StudentIDsWithMeetings returns distinct student ids with at least one meeting.
func (r *MeetingRepository) StudentIDsWithMeetings(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT DISTINCT student_id FROM committee_meetings`); err != nil {
		return nil, fmt.Errorf("meeting student ids: %w", err)
	}
	return ids, nil
}

// Create inserts a new meeting record.
func (r *MeetingRepository) Create(ctx context.Context, meeting *models.CommitteeMeeting) error {
	if meeting.ID == "" {
		meeting.ID = uuid.NewString()
	}
	if meeting.CreatedAt.IsZero() {
		meeting.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO committee_meetings (id, student_id, meeting_date, staff, representatives, reason, decision, note, created_at)
        VALUES (:id, :student_id, :meeting_date, :staff, :representatives, :reason, :decision, :note, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, meeting); err != nil {
		return fmt.Errorf("create meeting: %w", err)
	}
	return nil
}

// Delete removes one meeting by id.
func (r *MeetingRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM committee_meetings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete meeting: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
