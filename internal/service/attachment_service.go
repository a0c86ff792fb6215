package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Danilnaisov/praktika05/internal/models"
	appErrors "github.com/Danilnaisov/praktika05/pkg/errors"
)

type attachmentRepository interface {
	Create(ctx context.Context, attachment *models.Attachment) error
	FindByID(ctx context.Context, id string) (*models.Attachment, error)
	ListByOwner(ctx context.Context, ownerKind models.OwnerKind, ownerID string) ([]models.Attachment, error)
	Delete(ctx context.Context, id string) error
}

type attachmentStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

// UploadRequest describes one incoming document file.
type UploadRequest struct {
	OwnerKind models.OwnerKind
	OwnerID   string
	StudentID *string
	Filename  string
	MIMEType  string
	Size      int64
	Body      io.Reader
}

// AttachmentService stores uploaded PDF documents on disk and tracks
// them in the attachments table.
type AttachmentService struct {
	repo         attachmentRepository
	storage      attachmentStorage
	maxSizeBytes int64
	allowedMIMEs map[string]struct{}
	logger       *zap.Logger
}

// NewAttachmentService constructs the attachment service.
func NewAttachmentService(repo attachmentRepository, storage attachmentStorage, maxSizeBytes int64, allowedMIMEs []string, logger *zap.Logger) *AttachmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxSizeBytes <= 0 {
		maxSizeBytes = 10 << 20
	}
	allowed := make(map[string]struct{}, len(allowedMIMEs))
	for _, m := range allowedMIMEs {
		allowed[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	if len(allowed) == 0 {
		allowed["application/pdf"] = struct{}{}
	}
	return &AttachmentService{
		repo:         repo,
		storage:      storage,
		maxSizeBytes: maxSizeBytes,
		allowedMIMEs: allowed,
		logger:       logger,
	}
}

// Upload validates and stores one document. Files uploaded before the
// owning record exists carry the student owner kind and an empty owner
// id; the student save re-homes them.
func (s *AttachmentService) Upload(ctx context.Context, req UploadRequest) (*models.Attachment, error) {
	if req.Size > s.maxSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes", s.maxSizeBytes))
	}
	mime := strings.ToLower(strings.TrimSpace(req.MIMEType))
	if _, ok := s.allowedMIMEs[mime]; !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only PDF documents are accepted")
	}
	if req.OwnerKind == "" {
		req.OwnerKind = models.OwnerStudent
	}
	if _, ok := models.OwnerKinds[req.OwnerKind]; !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown owner kind %q", req.OwnerKind))
	}

	id := uuid.NewString()
	ext := filepath.Ext(req.Filename)
	if ext == "" {
		ext = ".pdf"
	}
	relPath := filepath.Join("attachments", time.Now().UTC().Format("2006/01"), id+ext)

	// The declared size is client-supplied; count what actually
	// streams so an understated Content-Length cannot sneak an
	// oversized file in truncated.
	limited := &countingReader{r: io.LimitReader(req.Body, s.maxSizeBytes+1)}
	stored, err := s.storage.SaveStream(relPath, limited)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}
	if limited.n > s.maxSizeBytes {
		if removeErr := s.storage.Delete(stored); removeErr != nil {
			s.logger.Warn("failed to remove oversized file", zap.String("path", stored), zap.Error(removeErr))
		}
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes", s.maxSizeBytes))
	}

	attachment := &models.Attachment{
		ID:        id,
		OwnerKind: req.OwnerKind,
		OwnerID:   req.OwnerID,
		StudentID: req.StudentID,
		FilePath:  stored,
	}
	if err := s.repo.Create(ctx, attachment); err != nil {
		if removeErr := s.storage.Delete(stored); removeErr != nil {
			s.logger.Warn("failed to remove orphaned file", zap.String("path", stored), zap.Error(removeErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attachment")
	}
	return attachment, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Download opens the stored file for streaming to the client.
func (s *AttachmentService) Download(ctx context.Context, id string) (*models.Attachment, *os.File, error) {
	attachment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachment")
	}
	file, err := s.storage.Open(attachment.FilePath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
	}
	return attachment, file, nil
}

// ListByOwner returns the attachments bound to one record.
func (s *AttachmentService) ListByOwner(ctx context.Context, ownerKind models.OwnerKind, ownerID string) ([]models.Attachment, error) {
	if _, ok := models.OwnerKinds[ownerKind]; !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown owner kind %q", ownerKind))
	}
	attachments, err := s.repo.ListByOwner(ctx, ownerKind, ownerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attachments")
	}
	return attachments, nil
}

// Delete removes the attachment row and its stored file.
func (s *AttachmentService) Delete(ctx context.Context, id string) error {
	attachment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachment")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete attachment")
	}
	if err := s.storage.Delete(attachment.FilePath); err != nil {
		s.logger.Warn("failed to remove stored file", zap.String("path", attachment.FilePath), zap.Error(err))
	}
	return nil
}
