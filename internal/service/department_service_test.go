package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Danilnaisov/praktika05/internal/models"
	appErrors "github.com/Danilnaisov/praktika05/pkg/errors"
)

type mockDepartmentRepo struct {
	departments map[string]*models.Department
	hasStudents bool
	deleted     []string
}

func newMockDepartmentRepo() *mockDepartmentRepo {
	return &mockDepartmentRepo{departments: make(map[string]*models.Department)}
}

func (m *mockDepartmentRepo) List(ctx context.Context) ([]models.Department, error) {
	out := make([]models.Department, 0, len(m.departments))
	for _, d := range m.departments {
		out = append(out, *d)
	}
	return out, nil
}

func (m *mockDepartmentRepo) FindByID(ctx context.Context, id string) (*models.Department, error) {
	if d, ok := m.departments[id]; ok {
		clone := *d
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockDepartmentRepo) ExistsByNameOrCode(ctx context.Context, name, code, excludeID string) (bool, error) {
	for id, d := range m.departments {
		if id == excludeID {
			continue
		}
		if d.Name == name || d.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockDepartmentRepo) HasStudents(ctx context.Context, id string) (bool, error) {
	return m.hasStudents, nil
}

func (m *mockDepartmentRepo) Create(ctx context.Context, department *models.Department) error {
	if department.ID == "" {
		department.ID = "dep-created"
	}
	m.departments[department.ID] = department
	return nil
}

func (m *mockDepartmentRepo) Update(ctx context.Context, department *models.Department) error {
	if _, ok := m.departments[department.ID]; !ok {
		return sql.ErrNoRows
	}
	m.departments[department.ID] = department
	return nil
}

func (m *mockDepartmentRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.departments[id]; !ok {
		return sql.ErrNoRows
	}
	m.deleted = append(m.deleted, id)
	delete(m.departments, id)
	return nil
}

func TestDepartmentServiceGroupLabel(t *testing.T) {
	repo := newMockDepartmentRepo()
	repo.departments["d1"] = &models.Department{ID: "d1", Name: "Информационные системы", Code: "ИС"}
	svc := NewDepartmentService(repo, validator.New(), zap.NewNop())

	label, err := svc.GroupLabel(context.Background(), "d1", 2024, 1)
	require.NoError(t, err)
	assert.Equal(t, "ИС-24-1", label)
}

func TestDepartmentServiceGroupLabelBadSubgroup(t *testing.T) {
	svc := NewDepartmentService(newMockDepartmentRepo(), validator.New(), zap.NewNop())

	_, err := svc.GroupLabel(context.Background(), "d1", 2024, 0)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDepartmentServiceCreateDuplicateCode(t *testing.T) {
	repo := newMockDepartmentRepo()
	repo.departments["d1"] = &models.Department{ID: "d1", Name: "Информационные системы", Code: "ИС"}
	svc := NewDepartmentService(repo, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), SaveDepartmentRequest{Name: "Другое", Code: "ИС"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestDepartmentServiceDeleteWithStudents(t *testing.T) {
	repo := newMockDepartmentRepo()
	repo.departments["d1"] = &models.Department{ID: "d1", Name: "Информационные системы", Code: "ИС"}
	repo.hasStudents = true
	svc := NewDepartmentService(repo, validator.New(), zap.NewNop())

	err := svc.Delete(context.Background(), "d1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestDepartmentServiceUpdate(t *testing.T) {
	repo := newMockDepartmentRepo()
	repo.departments["d1"] = &models.Department{ID: "d1", Name: "Информационные системы", Code: "ИС"}
	svc := NewDepartmentService(repo, validator.New(), zap.NewNop())

	dep, err := svc.Update(context.Background(), "d1", SaveDepartmentRequest{Name: "Программирование", Code: "П"})
	require.NoError(t, err)
	assert.Equal(t, "Программирование", dep.Name)
	assert.Equal(t, "П", dep.Code)
}
