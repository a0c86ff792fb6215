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

type mockStudentRepo struct {
	students        map[string]models.Student
	lastIDs         []string
	lastFilter      models.StudentFilter
	lastStatuses    []models.StatusRecord
	lastDeleteKinds []models.StatusKind
	saved           *models.Student
	deleted         []string
	saveErr         error
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter, ids []string) ([]models.StudentDetail, int, error) {
	m.lastFilter = filter
	m.lastIDs = ids
	if ids != nil && len(ids) == 0 {
		return []models.StudentDetail{}, 0, nil
	}
	details := make([]models.StudentDetail, 0, len(m.students))
	for _, s := range m.students {
		details = append(details, models.StudentDetail{Student: s})
	}
	return details, len(details), nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		return &models.StudentDetail{Student: s}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) SaveWithStatuses(ctx context.Context, student *models.Student, statuses []models.StatusRecord, deleteKinds []models.StatusKind, meetings []models.CommitteeMeeting, create bool) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.students == nil {
		m.students = make(map[string]models.Student)
	}
	if student.ID == "" {
		student.ID = "generated"
	}
	for i := range statuses {
		if statuses[i].ID == "" {
			statuses[i].ID = "status-" + string(statuses[i].Kind)
		}
	}
	m.lastStatuses = statuses
	m.lastDeleteKinds = deleteKinds
	m.saved = student
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) DeleteCascade(ctx context.Context, id string) error {
	if _, ok := m.students[id]; !ok {
		return sql.ErrNoRows
	}
	m.deleted = append(m.deleted, id)
	delete(m.students, id)
	return nil
}

type mockStatusRepo struct {
	active  map[models.StatusKind][]string
	any     map[models.StatusKind][]string
	expired map[models.StatusKind][]string
	byRoom  []string
	records map[string][]models.StatusRecord
}

func (m *mockStatusRepo) FindByStudent(ctx context.Context, studentID string) ([]models.StatusRecord, error) {
	return m.records[studentID], nil
}

func (m *mockStatusRepo) FindByStudentAndKind(ctx context.Context, studentID string, kind models.StatusKind) (*models.StatusRecord, error) {
	for _, r := range m.records[studentID] {
		if r.Kind == kind {
			return &r, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockStatusRepo) ActiveStudentIDs(ctx context.Context, kind models.StatusKind, registryType *models.RegistryType, at time.Time) ([]string, error) {
	return m.active[kind], nil
}

func (m *mockStatusRepo) AnyStudentIDs(ctx context.Context, kind models.StatusKind, registryType *models.RegistryType) ([]string, error) {
	return m.any[kind], nil
}

func (m *mockStatusRepo) ExpiredStudentIDs(ctx context.Context, kind models.StatusKind, registryType *models.RegistryType, at time.Time) ([]string, error) {
	return m.expired[kind], nil
}

func (m *mockStatusRepo) StudentIDsInRooms(ctx context.Context, roomIDs []string, at time.Time) ([]string, error) {
	return m.byRoom, nil
}

type mockMeetingRepo struct {
	byStudent    map[string][]models.CommitteeMeeting
	withMeetings []string
}

func (m *mockMeetingRepo) ListByStudent(ctx context.Context, studentID string) ([]models.CommitteeMeeting, error) {
	return m.byStudent[studentID], nil
}

func (m *mockMeetingRepo) StudentIDsWithMeetings(ctx context.Context) ([]string, error) {
	return m.withMeetings, nil
}

type mockAttachmentRepo struct {
	byStudent map[string][]models.Attachment
	assigned  map[string]string
}

func (m *mockAttachmentRepo) ListByStudent(ctx context.Context, studentID string) ([]models.Attachment, error) {
	return m.byStudent[studentID], nil
}

func (m *mockAttachmentRepo) FindByID(ctx context.Context, id string) (*models.Attachment, error) {
	return nil, sql.ErrNoRows
}

func (m *mockAttachmentRepo) AssignOwner(ctx context.Context, id string, ownerKind models.OwnerKind, ownerID string, studentID *string) error {
	if m.assigned == nil {
		m.assigned = make(map[string]string)
	}
	m.assigned[id] = ownerID
	return nil
}

type mockRoomResolver struct {
	ids []string
}

func (m *mockRoomResolver) FindIDsByName(ctx context.Context, name string) ([]string, error) {
	return m.ids, nil
}

type mockOccupancyInvalidator struct {
	calls int
}

func (m *mockOccupancyInvalidator) InvalidateOccupancy(ctx context.Context) {
	m.calls++
}

func newTestStudentService(students *mockStudentRepo, statuses *mockStatusRepo, meetings *mockMeetingRepo, attachments *mockAttachmentRepo, rooms *mockRoomResolver) *StudentService {
	if students == nil {
		students = &mockStudentRepo{}
	}
	if statuses == nil {
		statuses = &mockStatusRepo{}
	}
	if meetings == nil {
		meetings = &mockMeetingRepo{}
	}
	if attachments == nil {
		attachments = &mockAttachmentRepo{}
	}
	if rooms == nil {
		rooms = &mockRoomResolver{}
	}
	return NewStudentService(students, statuses, meetings, attachments, rooms, validator.New(), zap.NewNop())
}

func validSaveRequest() SaveStudentRequest {
	return SaveStudentRequest{
		LastName:      "Иванов",
		FirstName:     "Иван",
		BirthDate:     time.Date(2006, 3, 12, 0, 0, 0, 0, time.UTC),
		Funding:       models.FundingBudget,
		Education:     models.EducationGrade9,
		DepartmentID:  "d1",
		AdmissionYear: 2024,
	}
}

func TestStudentServiceListIntersectsStatusFlags(t *testing.T) {
	students := &mockStudentRepo{}
	statuses := &mockStatusRepo{active: map[models.StatusKind][]string{
		models.StatusOrphan:      {"s1", "s2", "s3"},
		models.StatusDisability:  {"s2", "s3", "s4"},
		models.StatusScholarship: {"s3", "s5"},
	}}
	svc := newTestStudentService(students, statuses, nil, nil, nil)

	_, _, err := svc.List(context.Background(), models.StudentFilter{
		Orphan:      models.FlagActive,
		Disability:  models.FlagActive,
		Scholarship: models.FlagActive,
		AsOfDate:    time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"s3"}, students.lastIDs)
}

func TestStudentServiceListExpiredExcludesActive(t *testing.T) {
	students := &mockStudentRepo{}
	statuses := &mockStatusRepo{
		expired: map[models.StatusKind][]string{models.StatusOrphan: {"s1", "s2"}},
		active:  map[models.StatusKind][]string{models.StatusOrphan: {"s2"}},
	}
	svc := newTestStudentService(students, statuses, nil, nil, nil)

	_, _, err := svc.List(context.Background(), models.StudentFilter{
		Orphan:   models.FlagExpired,
		AsOfDate: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, students.lastIDs)
}

func TestStudentServiceListNoStatusFilterPassesNil(t *testing.T) {
	students := &mockStudentRepo{}
	svc := newTestStudentService(students, nil, nil, nil, nil)

	_, _, err := svc.List(context.Background(), models.StudentFilter{LastName: "Иванов"})
	require.NoError(t, err)
	assert.Nil(t, students.lastIDs)
}

func TestStudentServiceListEmptyIntersection(t *testing.T) {
	students := &mockStudentRepo{}
	statuses := &mockStatusRepo{active: map[models.StatusKind][]string{
		models.StatusOrphan:     {"s1"},
		models.StatusDisability: {"s2"},
	}}
	svc := newTestStudentService(students, statuses, nil, nil, nil)

	result, _, err := svc.List(context.Background(), models.StudentFilter{
		Orphan:     models.FlagActive,
		Disability: models.FlagActive,
	})
	require.NoError(t, err)
	assert.Empty(t, result)
	require.NotNil(t, students.lastIDs)
	assert.Empty(t, students.lastIDs)
}

func TestStudentServiceListRoomFilter(t *testing.T) {
	students := &mockStudentRepo{}
	statuses := &mockStatusRepo{
		active: map[models.StatusKind][]string{models.StatusDormitory: {"s1", "s2"}},
		byRoom: []string{"s2", "s7"},
	}
	rooms := &mockRoomResolver{ids: []string{"r1"}}
	svc := newTestStudentService(students, statuses, nil, nil, rooms)

	_, _, err := svc.List(context.Background(), models.StudentFilter{
		Dormitory: models.FlagActive,
		RoomName:  "101",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, students.lastIDs)
}

func TestStudentServiceCreate(t *testing.T) {
	students := &mockStudentRepo{}
	svc := newTestStudentService(students, nil, nil, nil, nil)

	card, err := svc.Create(context.Background(), validSaveRequest())
	require.NoError(t, err)
	assert.Equal(t, "Иванов", card.LastName)
	require.NotNil(t, students.saved)
	assert.NotEmpty(t, students.saved.ID)
}

func TestStudentServiceCreateRejectsBadPhone(t *testing.T) {
	svc := newTestStudentService(nil, nil, nil, nil, nil)

	req := validSaveRequest()
	req.Phone = "89123456789"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceCreateRejectsGraduationBeforeAdmission(t *testing.T) {
	svc := newTestStudentService(nil, nil, nil, nil, nil)

	req := validSaveRequest()
	grad := 2020
	req.GraduationYear = &grad
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
}

func TestStudentServiceStatusRuleDisabilityNeedsType(t *testing.T) {
	svc := newTestStudentService(nil, nil, nil, nil, nil)

	req := validSaveRequest()
	req.Statuses = map[models.StatusKind]*StatusPayload{
		models.StatusDisability: {
			Document:  "справка 12",
			StartDate: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disability type")
}

func TestStudentServiceStatusRuleDormitoryNeedsRoom(t *testing.T) {
	svc := newTestStudentService(nil, nil, nil, nil, nil)

	req := validSaveRequest()
	req.Statuses = map[models.StatusKind]*StatusPayload{
		models.StatusDormitory: {
			StartDate: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "room")
}

func TestStudentServiceStatusRuleRiskRegistryNeedsBasis(t *testing.T) {
	svc := newTestStudentService(nil, nil, nil, nil, nil)

	registryType := models.RegistryRisk
	reason := "приказ КДН"
	req := validSaveRequest()
	req.Statuses = map[models.StatusKind]*StatusPayload{
		models.StatusRiskRegistry: {
			StartDate:    time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
			RegistryType: &registryType,
			StartReason:  &reason,
		},
	}
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Contains(t, err.Error(), "start basis")
}

func TestStudentServiceEmptyStatusPayloadDeletesKind(t *testing.T) {
	students := &mockStudentRepo{students: map[string]models.Student{"s1": {ID: "s1", LastName: "Иванов"}}}
	svc := newTestStudentService(students, nil, nil, nil, nil)

	req := validSaveRequest()
	req.Statuses = map[models.StatusKind]*StatusPayload{
		models.StatusOrphan: {},
	}
	_, err := svc.Update(context.Background(), "s1", req)
	require.NoError(t, err)
	assert.Empty(t, students.lastStatuses)
	assert.Equal(t, []models.StatusKind{models.StatusOrphan}, students.lastDeleteKinds)
}

func TestStudentServiceEmptyStatusPayloadNoopOnCreate(t *testing.T) {
	students := &mockStudentRepo{}
	svc := newTestStudentService(students, nil, nil, nil, nil)

	req := validSaveRequest()
	req.Statuses = map[models.StatusKind]*StatusPayload{
		models.StatusScholarship: {},
	}
	_, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, students.lastStatuses)
}

func TestStudentServiceStatusRejectsEndBeforeStart(t *testing.T) {
	svc := newTestStudentService(nil, nil, nil, nil, nil)

	req := validSaveRequest()
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	req.Statuses = map[models.StatusKind]*StatusPayload{
		models.StatusOrphan: {
			Document:  "приказ 1",
			StartDate: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
			EndDate:   &end,
		},
	}
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
}

func TestStudentServiceCreateBindsAttachments(t *testing.T) {
	students := &mockStudentRepo{}
	attachments := &mockAttachmentRepo{}
	svc := newTestStudentService(students, nil, nil, attachments, nil)

	req := validSaveRequest()
	req.Statuses = map[models.StatusKind]*StatusPayload{
		models.StatusOrphan: {
			Document:  "приказ 1",
			StartDate: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
			FileIDs:   []string{"https://files.local/abc|file-1", "file-2"},
		},
	}
	_, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "status-orphan", attachments.assigned["file-1"])
	assert.Equal(t, "status-orphan", attachments.assigned["file-2"])
}

func TestStudentServiceSaveRoomFullPassesThrough(t *testing.T) {
	students := &mockStudentRepo{saveErr: appErrors.ErrRoomFull}
	svc := newTestStudentService(students, nil, nil, nil, nil)

	roomID := "r1"
	req := validSaveRequest()
	req.Statuses = map[models.StatusKind]*StatusPayload{
		models.StatusDormitory: {
			StartDate: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
			RoomID:    &roomID,
		},
	}
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRoomFull.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceDormitorySaveInvalidatesOccupancy(t *testing.T) {
	invalidator := &mockOccupancyInvalidator{}
	svc := newTestStudentService(nil, nil, nil, nil, nil)
	svc.SetOccupancyInvalidator(invalidator)

	roomID := "r1"
	req := validSaveRequest()
	req.Statuses = map[models.StatusKind]*StatusPayload{
		models.StatusDormitory: {
			StartDate: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
			RoomID:    &roomID,
		},
	}
	_, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, invalidator.calls)
}

func TestStudentServiceNonDormitorySaveKeepsOccupancyCache(t *testing.T) {
	invalidator := &mockOccupancyInvalidator{}
	svc := newTestStudentService(nil, nil, nil, nil, nil)
	svc.SetOccupancyInvalidator(invalidator)

	req := validSaveRequest()
	req.Statuses = map[models.StatusKind]*StatusPayload{
		models.StatusOrphan: {
			Document:  "приказ 1",
			StartDate: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	_, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, invalidator.calls)
}

func TestStudentServiceDeleteInvalidatesOccupancy(t *testing.T) {
	invalidator := &mockOccupancyInvalidator{}
	students := &mockStudentRepo{students: map[string]models.Student{"s1": {ID: "s1"}}}
	svc := newTestStudentService(students, nil, nil, nil, nil)
	svc.SetOccupancyInvalidator(invalidator)

	require.NoError(t, svc.Delete(context.Background(), "s1"))
	assert.Equal(t, 1, invalidator.calls)
}

func TestStudentServiceGetAssemblesCard(t *testing.T) {
	end := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	students := &mockStudentRepo{students: map[string]models.Student{"s1": {ID: "s1", LastName: "Иванов"}}}
	statuses := &mockStatusRepo{records: map[string][]models.StatusRecord{
		"s1": {
			{ID: "st1", StudentID: "s1", Kind: models.StatusOrphan, StartDate: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)},
			{ID: "st2", StudentID: "s1", Kind: models.StatusScholarship, StartDate: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), EndDate: &end},
		},
	}}
	sid := "s1"
	attachments := &mockAttachmentRepo{byStudent: map[string][]models.Attachment{
		"s1": {{ID: "f1", OwnerKind: models.OwnerOrphan, OwnerID: "st1", StudentID: &sid}},
	}}
	meetings := &mockMeetingRepo{byStudent: map[string][]models.CommitteeMeeting{
		"s1": {{ID: "m1", StudentID: "s1"}},
	}}
	svc := newTestStudentService(students, statuses, meetings, attachments, nil)

	card, err := svc.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, card.Statuses, 2)
	assert.Equal(t, []string{"f1"}, card.Statuses[models.StatusOrphan].FileIDs)
	assert.Len(t, card.Meetings, 1)
	assert.Len(t, card.Attachments, 1)
}

func TestStudentServiceDeleteNotFound(t *testing.T) {
	svc := newTestStudentService(&mockStudentRepo{}, nil, nil, nil, nil)

	err := svc.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestNormalizeFileRef(t *testing.T) {
	assert.Equal(t, "file-1", NormalizeFileRef("file-1"))
	assert.Equal(t, "file-1", NormalizeFileRef("https://files.local/doc.pdf|file-1"))
	assert.Equal(t, "", NormalizeFileRef("  "))
}
