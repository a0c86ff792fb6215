package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Danilnaisov/praktika05/internal/models"
	appErrors "github.com/Danilnaisov/praktika05/pkg/errors"
)

// StudentRepository manages persistence for student records and owns
// the transactional paths that touch a student together with its
// welfare statuses and committee meetings.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `s.id, s.last_name, s.first_name, s.middle_name, s.birth_date, s.gender, s.group_label, s.phone,
        s.funding, s.education, s.department_id, s.admission_year, s.graduation_year, s.expulsion_info, s.expulsion_date,
        s.note, s.created_at, s.updated_at, d.name AS department_name, d.code AS department_code`

// List returns students matching the scalar filters. The ids argument
// restricts the result to the given id set when non-nil (the status
// intersection computed by the filter service); an empty non-nil slice
// short-circuits to no rows.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter, ids []string) ([]models.StudentDetail, int, error) {
	if ids != nil && len(ids) == 0 {
		return []models.StudentDetail{}, 0, nil
	}

	base := "FROM students s LEFT JOIN departments d ON d.id = s.department_id"
	conditions := []string{"1=1"}
	args := []interface{}{}

	addCond := func(cond string, value interface{}) {
		conditions = append(conditions, fmt.Sprintf(cond, len(args)+1))
		args = append(args, value)
	}

	if filter.LastName != "" {
		addCond("s.last_name ILIKE $%d", "%"+filter.LastName+"%")
	}
	if filter.FirstName != "" {
		addCond("s.first_name ILIKE $%d", "%"+filter.FirstName+"%")
	}
	if filter.Group != "" {
		addCond("s.group_label ILIKE $%d", "%"+filter.Group+"%")
	}
	if filter.AdmissionYear > 0 {
		addCond("s.admission_year = $%d", filter.AdmissionYear)
	}
	if filter.GraduationYear > 0 {
		addCond("s.graduation_year = $%d", filter.GraduationYear)
	}
	if filter.Adult != nil {
		cutoff := filter.AsOfDate.AddDate(-18, 0, 0)
		if *filter.Adult {
			addCond("s.birth_date <= $%d", cutoff)
		} else {
			addCond("s.birth_date > $%d", cutoff)
		}
	}
	if filter.Enrolled != nil && *filter.Enrolled {
		conditions = append(conditions, fmt.Sprintf(
			"s.graduation_year IS NOT NULL AND make_date(s.admission_year, 9, 1) <= $%d AND make_date(s.graduation_year, 8, 31) >= $%d",
			len(args)+1, len(args)+1))
		args = append(args, filter.AsOfDate)
	}
	if filter.Expelled != nil && *filter.Expelled {
		conditions = append(conditions, "s.expulsion_info IS NOT NULL AND s.expulsion_info <> ''")
	}
	if ids != nil {
		addCond("s.id = ANY($%d)", pq.Array(ids))
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY s.last_name, s.first_name LIMIT %d OFFSET %d",
		studentColumns, base, size, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student with department context.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM students s LEFT JOIN departments d ON d.id = s.department_id WHERE s.id = $1`, studentColumns)
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// SaveWithStatuses persists the student row, upserts the provided
// status records, deletes the records of the listed kinds and replaces
// the committee meeting set, all inside one transaction. Dormitory
// assignments are capacity-checked under a row lock on the room.
func (r *StudentRepository) SaveWithStatuses(ctx context.Context, student *models.Student, statuses []models.StatusRecord, deleteKinds []models.StatusKind, meetings []models.CommitteeMeeting, create bool) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin student save: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	student.UpdatedAt = now
	if create {
		if student.ID == "" {
			student.ID = uuid.NewString()
		}
		student.CreatedAt = now
		const insert = `INSERT INTO students (id, last_name, first_name, middle_name, birth_date, gender, group_label, phone,
            funding, education, department_id, admission_year, graduation_year, expulsion_info, expulsion_date, note, created_at, updated_at)
            VALUES (:id, :last_name, :first_name, :middle_name, :birth_date, :gender, :group_label, :phone,
            :funding, :education, :department_id, :admission_year, :graduation_year, :expulsion_info, :expulsion_date, :note, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, insert, student); err != nil {
			return fmt.Errorf("insert student: %w", err)
		}
	} else {
		const update = `UPDATE students SET last_name = :last_name, first_name = :first_name, middle_name = :middle_name,
            birth_date = :birth_date, gender = :gender, group_label = :group_label, phone = :phone, funding = :funding,
            education = :education, department_id = :department_id, admission_year = :admission_year,
            graduation_year = :graduation_year, expulsion_info = :expulsion_info, expulsion_date = :expulsion_date,
            note = :note, updated_at = :updated_at WHERE id = :id`
		res, err := tx.NamedExecContext(ctx, update, student)
		if err != nil {
			return fmt.Errorf("update student: %w", err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return sql.ErrNoRows
		}
	}

	for i := range statuses {
		record := &statuses[i]
		record.StudentID = student.ID
		if record.Kind == models.StatusDormitory && record.RoomID != nil {
			if err := checkRoomCapacity(ctx, tx, *record.RoomID, student.ID, now); err != nil {
				return err
			}
		}
		if err := upsertStatus(ctx, tx, record, now); err != nil {
			return err
		}
	}

	for _, kind := range deleteKinds {
		if err := deleteStatusIfUnreferenced(ctx, tx, student.ID, kind); err != nil {
			return err
		}
	}

	if meetings != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM committee_meetings WHERE student_id = $1`, student.ID); err != nil {
			return fmt.Errorf("clear meetings: %w", err)
		}
		for i := range meetings {
			meeting := &meetings[i]
			meeting.StudentID = student.ID
			if meeting.ID == "" {
				meeting.ID = uuid.NewString()
			}
			meeting.CreatedAt = now
			const insertMeeting = `INSERT INTO committee_meetings (id, student_id, meeting_date, staff, representatives, reason, decision, note, created_at)
                VALUES (:id, :student_id, :meeting_date, :staff, :representatives, :reason, :decision, :note, :created_at)`
			if _, err := tx.NamedExecContext(ctx, insertMeeting, meeting); err != nil {
				return fmt.Errorf("insert meeting: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit student save: %w", err)
	}
	return nil
}

// DeleteCascade removes the student together with its statuses and
// meetings. The delete is rejected while any attachment still
// references the student or one of its records.
func (r *StudentRepository) DeleteCascade(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin student delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var attachments int
	if err := tx.GetContext(ctx, &attachments, `SELECT COUNT(*) FROM attachments WHERE student_id = $1`, id); err != nil {
		return fmt.Errorf("count attachments: %w", err)
	}
	if attachments > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "student has attached files; remove them first")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM committee_meetings WHERE student_id = $1`, id); err != nil {
		return fmt.Errorf("delete meetings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM student_statuses WHERE student_id = $1`, id); err != nil {
		return fmt.Errorf("delete statuses: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit student delete: %w", err)
	}
	return nil
}

func checkRoomCapacity(ctx context.Context, tx *sqlx.Tx, roomID, studentID string, at time.Time) error {
	var capacity int
	if err := tx.GetContext(ctx, &capacity, `SELECT capacity FROM rooms WHERE id = $1 FOR UPDATE`, roomID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return fmt.Errorf("lock room: %w", err)
	}

	var occupied int
	const countQuery = `SELECT COUNT(*) FROM student_statuses
        WHERE kind = $1 AND room_id = $2 AND student_id <> $3
        AND start_date <= $4 AND (end_date IS NULL OR end_date >= $4)`
	if err := tx.GetContext(ctx, &occupied, countQuery, models.StatusDormitory, roomID, studentID, at); err != nil {
		return fmt.Errorf("count occupants: %w", err)
	}
	if occupied >= capacity {
		return appErrors.ErrRoomFull
	}
	return nil
}

func upsertStatus(ctx context.Context, tx *sqlx.Tx, record *models.StatusRecord, now time.Time) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = now
	record.UpdatedAt = now
	const query = `INSERT INTO student_statuses (id, student_id, kind, document, start_date, end_date, note,
        disability_type, registry_type, start_reason, start_basis, end_reason, end_basis, room_id, created_at, updated_at)
        VALUES (:id, :student_id, :kind, :document, :start_date, :end_date, :note,
        :disability_type, :registry_type, :start_reason, :start_basis, :end_reason, :end_basis, :room_id, :created_at, :updated_at)
        ON CONFLICT (student_id, kind) DO UPDATE SET
        document = EXCLUDED.document, start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date,
        note = EXCLUDED.note, disability_type = EXCLUDED.disability_type, registry_type = EXCLUDED.registry_type,
        start_reason = EXCLUDED.start_reason, start_basis = EXCLUDED.start_basis, end_reason = EXCLUDED.end_reason,
        end_basis = EXCLUDED.end_basis, room_id = EXCLUDED.room_id, updated_at = EXCLUDED.updated_at
        RETURNING id`
	stmt, err := tx.PrepareNamedContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare %s status upsert: %w", record.Kind, err)
	}
	defer stmt.Close() //nolint:errcheck
	if err := stmt.GetContext(ctx, &record.ID, record); err != nil {
		return fmt.Errorf("upsert %s status: %w", record.Kind, err)
	}
	return nil
}

func deleteStatusIfUnreferenced(ctx context.Context, tx *sqlx.Tx, studentID string, kind models.StatusKind) error {
	var recordID string
	err := tx.GetContext(ctx, &recordID, `SELECT id FROM student_statuses WHERE student_id = $1 AND kind = $2`, studentID, kind)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return fmt.Errorf("find %s status: %w", kind, err)
	}

	var attachments int
	if err := tx.GetContext(ctx, &attachments, `SELECT COUNT(*) FROM attachments WHERE owner_kind = $1 AND owner_id = $2`,
		models.OwnerKindForStatus(kind), recordID); err != nil {
		return fmt.Errorf("count status attachments: %w", err)
	}
	if attachments > 0 {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("%s status has attached files; remove them first", kind))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM student_statuses WHERE id = $1`, recordID); err != nil {
		return fmt.Errorf("delete %s status: %w", kind, err)
	}
	return nil
}
