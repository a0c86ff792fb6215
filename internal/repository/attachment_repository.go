package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Danilnaisov/praktika05/internal/models"
)

// AttachmentRepository tracks uploaded document files and the records
// they belong to.
type AttachmentRepository struct {
	db *sqlx.DB
}

// NewAttachmentRepository constructs an AttachmentRepository.
func NewAttachmentRepository(db *sqlx.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

const attachmentColumns = `id, owner_kind, owner_id, student_id, file_path, uploaded_at`

// Create inserts a new attachment row.
func (r *AttachmentRepository) Create(ctx context.Context, attachment *models.Attachment) error {
	if attachment.ID == "" {
		attachment.ID = uuid.NewString()
	}
	if attachment.UploadedAt.IsZero() {
		attachment.UploadedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attachments (id, owner_kind, owner_id, student_id, file_path, uploaded_at)
        VALUES (:id, :owner_kind, :owner_id, :student_id, :file_path, :uploaded_at)`
	if _, err := r.db.NamedExecContext(ctx, query, attachment); err != nil {
		return fmt.Errorf("create attachment: %w", err)
	}
	return nil
}

// FindByID returns one attachment or sql.ErrNoRows.
func (r *AttachmentRepository) FindByID(ctx context.Context, id string) (*models.Attachment, error) {
	query := fmt.Sprintf(`SELECT %s FROM attachments WHERE id = $1`, attachmentColumns)
	var attachment models.Attachment
	if err := r.db.GetContext(ctx, &attachment, query, id); err != nil {
		return nil, err
	}
	return &attachment, nil
}

// ListByOwner returns the attachments of a single record.
func (r *AttachmentRepository) ListByOwner(ctx context.Context, ownerKind models.OwnerKind, ownerID string) ([]models.Attachment, error) {
	query := fmt.Sprintf(`SELECT %s FROM attachments WHERE owner_kind = $1 AND owner_id = $2 ORDER BY uploaded_at`, attachmentColumns)
	var attachments []models.Attachment
	if err := r.db.SelectContext(ctx, &attachments, query, ownerKind, ownerID); err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return attachments, nil
}

// ListByStudent returns every attachment linked to the student,
// whichever record owns it.
func (r *AttachmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Attachment, error) {
	query := fmt.Sprintf(`SELECT %s FROM attachments WHERE student_id = $1 ORDER BY uploaded_at`, attachmentColumns)
	var attachments []models.Attachment
	if err := r.db.SelectContext(ctx, &attachments, query, studentID); err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return attachments, nil
}

// ListByStudents loads attachments for a batch of students.
func (r *AttachmentRepository) ListByStudents(ctx context.Context, studentIDs []string) ([]models.Attachment, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM attachments WHERE student_id = ANY($1) ORDER BY student_id, uploaded_at`, attachmentColumns)
	var attachments []models.Attachment
	if err := r.db.SelectContext(ctx, &attachments, query, pq.Array(studentIDs)); err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return attachments, nil
}

// CountByOwner returns how many files a record owns.
func (r *AttachmentRepository) CountByOwner(ctx context.Context, ownerKind models.OwnerKind, ownerID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM attachments WHERE owner_kind = $1 AND owner_id = $2`, ownerKind, ownerID)
	if err != nil {
		return 0, fmt.Errorf("count attachments: %w", err)
	}
	return count, nil
}

// CountByStudent returns how many files reference the student.
func (r *AttachmentRepository) CountByStudent(ctx context.Context, studentID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM attachments WHERE student_id = $1`, studentID); err != nil {
		return 0, fmt.Errorf("count attachments: %w", err)
	}
	return count, nil
}

// AssignOwner moves an uploaded file under its final record once the
// record id is known.
func (r *AttachmentRepository) AssignOwner(ctx context.Context, id string, ownerKind models.OwnerKind, ownerID string, studentID *string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE attachments SET owner_kind = $1, owner_id = $2, student_id = $3 WHERE id = $4`,
		ownerKind, ownerID, studentID, id)
	if err != nil {
		return fmt.Errorf("assign attachment owner: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes an attachment row.
func (r *AttachmentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
