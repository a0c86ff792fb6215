package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Danilnaisov/praktika05/internal/models"
)

// StatusRepository reads welfare status records and answers the
// per-kind student-id set queries behind the temporal filter.
type StatusRepository struct {
	db *sqlx.DB
}

// NewStatusRepository constructs a StatusRepository.
func NewStatusRepository(db *sqlx.DB) *StatusRepository {
	return &StatusRepository{db: db}
}

const statusColumns = `id, student_id, kind, document, start_date, end_date, note, disability_type,
        registry_type, start_reason, start_basis, end_reason, end_basis, room_id, created_at, updated_at`

// FindByStudent returns every status record owned by the student.
func (r *StatusRepository) FindByStudent(ctx context.Context, studentID string) ([]models.StatusRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM student_statuses WHERE student_id = $1 ORDER BY kind`, statusColumns)
	var records []models.StatusRecord
	if err := r.db.SelectContext(ctx, &records, query, studentID); err != nil {
		return nil, fmt.Errorf("load statuses: %w", err)
	}
	return records, nil
}

// FindByStudents returns the status records for a set of students.
func (r *StatusRepository) FindByStudents(ctx context.Context, studentIDs []string) ([]models.StatusRecord, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM student_statuses WHERE student_id = ANY($1) ORDER BY student_id, kind`, statusColumns)
	var records []models.StatusRecord
	if err := r.db.SelectContext(ctx, &records, query, pq.Array(studentIDs)); err != nil {
		return nil, fmt.Errorf("load statuses: %w", err)
	}
	return records, nil
}

// FindByStudentAndKind returns one status record or sql.ErrNoRows.
func (r *StatusRepository) FindByStudentAndKind(ctx context.Context, studentID string, kind models.StatusKind) (*models.StatusRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM student_statuses WHERE student_id = $1 AND kind = $2`, statusColumns)
	var record models.StatusRecord
	if err := r.db.GetContext(ctx, &record, query, studentID, kind); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByID returns a status record by primary key.
func (r *StatusRepository) FindByID(ctx context.Context, id string) (*models.StatusRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM student_statuses WHERE id = $1`, statusColumns)
	var record models.StatusRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// ActiveStudentIDs returns ids of students whose record of the given
// kind covers the reference date. The registry type narrows
// risk-registry lookups when set.
func (r *StatusRepository) ActiveStudentIDs(ctx context.Context, kind models.StatusKind, registryType *models.RegistryType, at time.Time) ([]string, error) {
	query := `SELECT student_id FROM student_statuses
        WHERE kind = $1 AND start_date <= $2 AND (end_date IS NULL OR end_date >= $2)`
	args := []interface{}{kind, at}
	if registryType != nil {
		query += ` AND registry_type = $3`
		args = append(args, *registryType)
	}
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("active %s ids: %w", kind, err)
	}
	return ids, nil
}

// AnyStudentIDs returns ids of students holding any record of the kind.
func (r *StatusRepository) AnyStudentIDs(ctx context.Context, kind models.StatusKind, registryType *models.RegistryType) ([]string, error) {
	query := `SELECT student_id FROM student_statuses WHERE kind = $1`
	args := []interface{}{kind}
	if registryType != nil {
		query += ` AND registry_type = $2`
		args = append(args, *registryType)
	}
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("any %s ids: %w", kind, err)
	}
	return ids, nil
}

// ExpiredStudentIDs returns ids of students whose record of the kind
// has an end date strictly before the reference date. Callers subtract
// the active set to honour the expired-excludes-active rule.
func (r *StatusRepository) ExpiredStudentIDs(ctx context.Context, kind models.StatusKind, registryType *models.RegistryType, at time.Time) ([]string, error) {
	query := `SELECT student_id FROM student_statuses
        WHERE kind = $1 AND start_date <= $2 AND end_date IS NOT NULL AND end_date < $2`
	args := []interface{}{kind, at}
	if registryType != nil {
		query += ` AND registry_type = $3`
		args = append(args, *registryType)
	}
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("expired %s ids: %w", kind, err)
	}
	return ids, nil
}

// StudentIDsInRooms returns ids of students with a dormitory record in
// one of the rooms covering the reference date.
func (r *StatusRepository) StudentIDsInRooms(ctx context.Context, roomIDs []string, at time.Time) ([]string, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT student_id FROM student_statuses
        WHERE kind = $1 AND room_id = ANY($2) AND start_date <= $3 AND (end_date IS NULL OR end_date >= $3)`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, models.StatusDormitory, pq.Array(roomIDs), at); err != nil {
		return nil, fmt.Errorf("dormitory ids: %w", err)
	}
	return ids, nil
}

// RoomReferenced reports whether any dormitory record points at the room.
func (r *StatusRepository) RoomReferenced(ctx context.Context, roomID string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists,
		`SELECT 1 FROM student_statuses WHERE kind = $1 AND room_id = $2 LIMIT 1`, models.StatusDormitory, roomID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check room references: %w", err)
	}
	return true, nil
}

// Delete removes one status record by id.
func (r *StatusRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM student_statuses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete status: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
