package service

import (
	"context"
	"database/sql"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Danilnaisov/praktika05/internal/models"
	appErrors "github.com/Danilnaisov/praktika05/pkg/errors"
)

type mockAttachmentStore struct {
	attachments map[string]*models.Attachment
	deleted     []string
}

func newMockAttachmentStore() *mockAttachmentStore {
	return &mockAttachmentStore{attachments: make(map[string]*models.Attachment)}
}

func (m *mockAttachmentStore) Create(ctx context.Context, attachment *models.Attachment) error {
	m.attachments[attachment.ID] = attachment
	return nil
}

func (m *mockAttachmentStore) FindByID(ctx context.Context, id string) (*models.Attachment, error) {
	if a, ok := m.attachments[id]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAttachmentStore) ListByOwner(ctx context.Context, ownerKind models.OwnerKind, ownerID string) ([]models.Attachment, error) {
	var out []models.Attachment
	for _, a := range m.attachments {
		if a.OwnerKind == ownerKind && a.OwnerID == ownerID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockAttachmentStore) Delete(ctx context.Context, id string) error {
	if _, ok := m.attachments[id]; !ok {
		return sql.ErrNoRows
	}
	m.deleted = append(m.deleted, id)
	delete(m.attachments, id)
	return nil
}

type mockFileStorage struct {
	files   map[string][]byte
	deleted []string
}

func newMockFileStorage() *mockFileStorage {
	return &mockFileStorage{files: make(map[string][]byte)}
}

func (m *mockFileStorage) SaveStream(filename string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.files[filename] = data
	return filename, nil
}

func (m *mockFileStorage) Open(filename string) (*os.File, error) {
	return nil, os.ErrNotExist
}

func (m *mockFileStorage) Delete(filename string) error {
	m.deleted = append(m.deleted, filename)
	delete(m.files, filename)
	return nil
}

func newTestAttachmentService(repo *mockAttachmentStore, files *mockFileStorage) *AttachmentService {
	return NewAttachmentService(repo, files, 1<<20, []string{"application/pdf"}, zap.NewNop())
}

func TestAttachmentServiceUpload(t *testing.T) {
	repo := newMockAttachmentStore()
	files := newMockFileStorage()
	svc := newTestAttachmentService(repo, files)

	attachment, err := svc.Upload(context.Background(), UploadRequest{
		OwnerKind: models.OwnerStudent,
		Filename:  "приказ.pdf",
		MIMEType:  "application/pdf",
		Size:      42,
		Body:      strings.NewReader("%PDF-1.4 fake"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, attachment.ID)
	assert.Contains(t, attachment.FilePath, "attachments/")
	assert.Contains(t, repo.attachments, attachment.ID)
	assert.Len(t, files.files, 1)
}

func TestAttachmentServiceUploadRejectsMIME(t *testing.T) {
	svc := newTestAttachmentService(newMockAttachmentStore(), newMockFileStorage())

	_, err := svc.Upload(context.Background(), UploadRequest{
		Filename: "photo.jpg",
		MIMEType: "image/jpeg",
		Size:     42,
		Body:     strings.NewReader("data"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAttachmentServiceUploadRejectsOversize(t *testing.T) {
	svc := newTestAttachmentService(newMockAttachmentStore(), newMockFileStorage())

	_, err := svc.Upload(context.Background(), UploadRequest{
		Filename: "big.pdf",
		MIMEType: "application/pdf",
		Size:     2 << 20,
		Body:     strings.NewReader("data"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAttachmentServiceUploadRejectsUnderstatedSize(t *testing.T) {
	repo := newMockAttachmentStore()
	files := newMockFileStorage()
	svc := newTestAttachmentService(repo, files)

	_, err := svc.Upload(context.Background(), UploadRequest{
		Filename: "big.pdf",
		MIMEType: "application/pdf",
		Size:     42,
		Body:     strings.NewReader(strings.Repeat("x", (1<<20)+1)),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.attachments)
	assert.Empty(t, files.files)
	assert.Len(t, files.deleted, 1)
}

func TestAttachmentServiceUploadRejectsUnknownOwnerKind(t *testing.T) {
	svc := newTestAttachmentService(newMockAttachmentStore(), newMockFileStorage())

	_, err := svc.Upload(context.Background(), UploadRequest{
		OwnerKind: "invoice",
		Filename:  "doc.pdf",
		MIMEType:  "application/pdf",
		Size:      42,
		Body:      strings.NewReader("data"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAttachmentServiceDeleteRemovesFile(t *testing.T) {
	repo := newMockAttachmentStore()
	files := newMockFileStorage()
	repo.attachments["a1"] = &models.Attachment{ID: "a1", FilePath: "attachments/2025/05/a1.pdf"}
	files.files["attachments/2025/05/a1.pdf"] = []byte("x")
	svc := newTestAttachmentService(repo, files)

	require.NoError(t, svc.Delete(context.Background(), "a1"))
	assert.Equal(t, []string{"a1"}, repo.deleted)
	assert.Equal(t, []string{"attachments/2025/05/a1.pdf"}, files.deleted)
}

func TestAttachmentServiceDeleteNotFound(t *testing.T) {
	svc := newTestAttachmentService(newMockAttachmentStore(), newMockFileStorage())

	err := svc.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
