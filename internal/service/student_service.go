package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Danilnaisov/praktika05/internal/models"
	appErrors "github.com/Danilnaisov/praktika05/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter, ids []string) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	SaveWithStatuses(ctx context.Context, student *models.Student, statuses []models.StatusRecord, deleteKinds []models.StatusKind, meetings []models.CommitteeMeeting, create bool) error
	DeleteCascade(ctx context.Context, id string) error
}

type studentStatusRepository interface {
	FindByStudent(ctx context.Context, studentID string) ([]models.StatusRecord, error)
	FindByStudentAndKind(ctx context.Context, studentID string, kind models.StatusKind) (*models.StatusRecord, error)
	ActiveStudentIDs(ctx context.Context, kind models.StatusKind, registryType *models.RegistryType, at time.Time) ([]string, error)
	AnyStudentIDs(ctx context.Context, kind models.StatusKind, registryType *models.RegistryType) ([]string, error)
	ExpiredStudentIDs(ctx context.Context, kind models.StatusKind, registryType *models.RegistryType, at time.Time) ([]string, error)
	StudentIDsInRooms(ctx context.Context, roomIDs []string, at time.Time) ([]string, error)
}

type studentMeetingRepository interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.CommitteeMeeting, error)
	StudentIDsWithMeetings(ctx context.Context) ([]string, error)
}

type studentAttachmentRepository interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.Attachment, error)
	FindByID(ctx context.Context, id string) (*models.Attachment, error)
	AssignOwner(ctx context.Context, id string, ownerKind models.OwnerKind, ownerID string, studentID *string) error
}

type studentRoomResolver interface {
	FindIDsByName(ctx context.Context, name string) ([]string, error)
}

type occupancyInvalidator interface {
	InvalidateOccupancy(ctx context.Context)
}

// StatusPayload is one welfare status submitted inside a student save.
// A nil payload for a kind requests deletion of that record.
type StatusPayload struct {
	Document  string     `json:"document"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Note      string     `json:"note,omitempty"`

	DisabilityType *string              `json:"disability_type,omitempty"`
	RegistryType   *models.RegistryType `json:"registry_type,omitempty"`
	StartReason    *string              `json:"start_reason,omitempty"`
	StartBasis     *string              `json:"start_basis,omitempty"`
	EndReason      *string              `json:"end_reason,omitempty"`
	EndBasis       *string              `json:"end_basis,omitempty"`
	RoomID         *string              `json:"room_id,omitempty"`

	// File references may arrive as a bare id or as "url|id"; both
	// resolve to the stored attachment id.
	FileIDs []string `json:"file_ids,omitempty"`
}

// empty reports whether no field of the payload carries a value. An
// all-empty payload is treated like an explicit nil: delete-if-exists.
func (p *StatusPayload) empty() bool {
	return strings.TrimSpace(p.Document) == "" &&
		p.StartDate.IsZero() &&
		p.EndDate == nil &&
		strings.TrimSpace(p.Note) == "" &&
		p.DisabilityType == nil &&
		p.RegistryType == nil &&
		p.StartReason == nil &&
		p.StartBasis == nil &&
		p.EndReason == nil &&
		p.EndBasis == nil &&
		p.RoomID == nil &&
		len(p.FileIDs) == 0
}

// MeetingPayload is one committee sitting submitted inside a student save.
type MeetingPayload struct {
	Date            time.Time `json:"date"`
	Staff           string    `json:"staff"`
	Representatives string    `json:"representatives"`
	Reason          string    `json:"reason"`
	Decision        string    `json:"decision"`
	Note            string    `json:"note,omitempty"`
}

// SaveStudentRequest carries the full student card for create and update.
type SaveStudentRequest struct {
	LastName       string     `json:"last_name" validate:"required"`
	FirstName      string     `json:"first_name" validate:"required"`
	MiddleName     string     `json:"middle_name"`
	BirthDate      time.Time  `json:"birth_date" validate:"required"`
	Gender         *string    `json:"gender" validate:"omitempty,oneof=Мужской Женский"`
	Group          string     `json:"group"`
	Phone          string     `json:"phone"`
	Funding        string     `json:"funding" validate:"required,oneof=Бюджет Контракт Платное"`
	Education      string     `json:"education" validate:"required,oneof='9 кл.' '11 кл.' СПО ВО"`
	DepartmentID   string     `json:"department_id" validate:"required"`
	AdmissionYear  int        `json:"admission_year" validate:"required,gte=1950,lte=2100"`
	GraduationYear *int       `json:"graduation_year" validate:"omitempty,gte=1950,lte=2100"`
	ExpulsionInfo  *string    `json:"expulsion_info,omitempty"`
	ExpulsionDate  *time.Time `json:"expulsion_date,omitempty"`
	Note           string     `json:"note"`

	// Kinds absent from the map are left untouched; an explicit nil
	// payload removes the record.
	Statuses map[models.StatusKind]*StatusPayload `json:"statuses,omitempty"`

	// A nil slice leaves the meeting set untouched; a non-nil slice
	// replaces it wholesale.
	Meetings []MeetingPayload `json:"meetings,omitempty"`
}

var phonePattern = regexp.MustCompile(`^\+7 \(\d{3}\)-\d{3}-\d{2}-\d{2}$`)

// statusRule describes which kind-specific fields a record must carry.
type statusRule struct {
	needsDocument       bool
	needsDisabilityType bool
	needsRegistryType   bool
	needsStartReason    bool
	needsStartBasis     bool
	needsRoom           bool
}

var statusRules = map[models.StatusKind]statusRule{
	models.StatusOrphan:       {needsDocument: true},
	models.StatusDisability:   {needsDocument: true, needsDisabilityType: true},
	models.StatusSpecialNeeds: {needsDocument: true},
	models.StatusWartime:      {needsDocument: true},
	models.StatusScholarship:  {needsDocument: true},
	models.StatusRiskRegistry: {needsRegistryType: true, needsStartReason: true, needsStartBasis: true},
	models.StatusDormitory:    {needsRoom: true},
}

// StudentService implements the student card use-cases: listing with
// the temporal status filter, card assembly, transactional saves and
// cascading deletes.
type StudentService struct {
	students    studentRepository
	statuses    studentStatusRepository
	meetings    studentMeetingRepository
	attachments studentAttachmentRepository
	rooms       studentRoomResolver
	occupancy   occupancyInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(
	students studentRepository,
	statuses studentStatusRepository,
	meetings studentMeetingRepository,
	attachments studentAttachmentRepository,
	rooms studentRoomResolver,
	validate *validator.Validate,
	logger *zap.Logger,
) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		students:    students,
		statuses:    statuses,
		meetings:    meetings,
		attachments: attachments,
		rooms:       rooms,
		validator:   validate,
		logger:      logger,
	}
}

// SetOccupancyInvalidator registers the hook dropping cached room
// occupancy after dormitory status writes.
func (s *StudentService) SetOccupancyInvalidator(inv occupancyInvalidator) {
	s.occupancy = inv
}

// List returns students matching the filter together with pagination
// metadata. Status flags set on several kinds intersect: a student must
// satisfy every one of them at the reference date.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	if filter.AsOfDate.IsZero() {
		filter.AsOfDate = time.Now().UTC().Truncate(24 * time.Hour)
	}

	ids, err := s.resolveStatusFilter(ctx, filter)
	if err != nil {
		return nil, nil, err
	}

	students, total, err := s.students.List(ctx, filter, ids)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// resolveStatusFilter computes the intersection of every id set implied
// by the status flags. It returns nil when no set-based filter is
// active, and a (possibly empty) slice otherwise.
func (s *StudentService) resolveStatusFilter(ctx context.Context, filter models.StudentFilter) ([]string, error) {
	type kindFlag struct {
		kind     models.StatusKind
		registry *models.RegistryType
		flag     models.TernaryFlag
	}
	risk := models.RegistryRisk
	sop := models.RegistrySOP
	flags := []kindFlag{
		{models.StatusOrphan, nil, filter.Orphan},
		{models.StatusDisability, nil, filter.Disability},
		{models.StatusSpecialNeeds, nil, filter.SpecialNeeds},
		{models.StatusWartime, nil, filter.Wartime},
		{models.StatusScholarship, nil, filter.Scholarship},
		{models.StatusRiskRegistry, &risk, filter.RiskGroup},
		{models.StatusRiskRegistry, &sop, filter.Registry},
		{models.StatusDormitory, nil, filter.Dormitory},
	}

	var result []string
	restricted := false

	apply := func(ids []string) {
		if !restricted {
			result = ids
			restricted = true
			return
		}
		result = intersect(result, ids)
	}

	for _, f := range flags {
		if f.flag == models.FlagUnset {
			continue
		}
		if !f.flag.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown filter value %q for %s", f.flag, f.kind))
		}
		var ids []string
		var err error
		switch f.flag {
		case models.FlagActive:
			ids, err = s.statuses.ActiveStudentIDs(ctx, f.kind, f.registry, filter.AsOfDate)
		case models.FlagAny:
			ids, err = s.statuses.AnyStudentIDs(ctx, f.kind, f.registry)
		case models.FlagExpired:
			var expired, active []string
			expired, err = s.statuses.ExpiredStudentIDs(ctx, f.kind, f.registry, filter.AsOfDate)
			if err == nil {
				active, err = s.statuses.ActiveStudentIDs(ctx, f.kind, f.registry, filter.AsOfDate)
			}
			if err == nil {
				ids = subtract(expired, active)
			}
		}
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve status filter")
		}
		apply(ids)
	}

	if filter.RoomName != "" {
		roomIDs, err := s.rooms.FindIDsByName(ctx, filter.RoomName)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve room filter")
		}
		ids, err := s.statuses.StudentIDsInRooms(ctx, roomIDs, filter.AsOfDate)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve room filter")
		}
		apply(ids)
	}

	if filter.HasMeetings {
		ids, err := s.meetings.StudentIDsWithMeetings(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve meeting filter")
		}
		apply(ids)
	}

	if !restricted {
		return nil, nil
	}
	if result == nil {
		result = []string{}
	}
	return result, nil
}

// Get assembles the full student card: the base record with department
// context, every welfare status, the meeting history and attachments.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentCard, error) {
	detail, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	records, err := s.statuses.FindByStudent(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load statuses")
	}
	meetings, err := s.meetings.ListByStudent(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load meetings")
	}
	attachments, err := s.attachments.ListByStudent(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachments")
	}

	card := &models.StudentCard{
		StudentDetail: *detail,
		Statuses:      make(map[models.StatusKind]*models.StatusRecord, len(records)),
		Meetings:      meetings,
		Attachments:   attachments,
	}
	byOwner := make(map[string][]string)
	for _, a := range attachments {
		byOwner[a.OwnerID] = append(byOwner[a.OwnerID], a.ID)
	}
	for i := range records {
		record := &records[i]
		record.FileIDs = byOwner[record.ID]
		card.Statuses[record.Kind] = record
	}
	return card, nil
}

// Create persists a new student card.
func (s *StudentService) Create(ctx context.Context, req SaveStudentRequest) (*models.StudentCard, error) {
	return s.save(ctx, "", req, true)
}

// Update rewrites an existing student card.
func (s *StudentService) Update(ctx context.Context, id string, req SaveStudentRequest) (*models.StudentCard, error) {
	return s.save(ctx, id, req, false)
}

func (s *StudentService) save(ctx context.Context, id string, req SaveStudentRequest, create bool) (*models.StudentCard, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if req.Phone != "" && !phonePattern.MatchString(req.Phone) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "phone must match +7 (XXX)-XXX-XX-XX")
	}
	if req.GraduationYear != nil && *req.GraduationYear < req.AdmissionYear {
		return nil, appErrors.Clone(appErrors.ErrValidation, "graduation year precedes admission year")
	}

	statuses, deleteKinds, fileRefs, err := s.buildStatusRecords(req.Statuses)
	if err != nil {
		return nil, err
	}

	var meetings []models.CommitteeMeeting
	if req.Meetings != nil {
		meetings = make([]models.CommitteeMeeting, 0, len(req.Meetings))
		for _, m := range req.Meetings {
			meeting := models.CommitteeMeeting{
				Date:            m.Date,
				Staff:           m.Staff,
				Representatives: m.Representatives,
				Reason:          m.Reason,
				Decision:        m.Decision,
				Note:            m.Note,
			}
			if meeting.Empty() {
				continue
			}
			if !meeting.Complete() {
				return nil, appErrors.Clone(appErrors.ErrValidation, "meeting requires date, staff, representatives, reason and decision")
			}
			meetings = append(meetings, meeting)
		}
	}

	student := &models.Student{
		ID:             id,
		LastName:       strings.TrimSpace(req.LastName),
		FirstName:      strings.TrimSpace(req.FirstName),
		MiddleName:     strings.TrimSpace(req.MiddleName),
		BirthDate:      req.BirthDate,
		Gender:         req.Gender,
		Group:          strings.TrimSpace(req.Group),
		Phone:          req.Phone,
		Funding:        req.Funding,
		Education:      req.Education,
		DepartmentID:   req.DepartmentID,
		AdmissionYear:  req.AdmissionYear,
		GraduationYear: req.GraduationYear,
		ExpulsionInfo:  req.ExpulsionInfo,
		ExpulsionDate:  req.ExpulsionDate,
		Note:           req.Note,
	}

	if err := s.students.SaveWithStatuses(ctx, student, statuses, deleteKinds, meetings, create); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrInternal.Code {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save student")
	}

	s.bindAttachments(ctx, student.ID, statuses, fileRefs)

	if s.occupancy != nil && touchesDormitory(statuses, deleteKinds) {
		s.occupancy.InvalidateOccupancy(ctx)
	}

	return s.Get(ctx, student.ID)
}

func touchesDormitory(statuses []models.StatusRecord, deleteKinds []models.StatusKind) bool {
	for _, record := range statuses {
		if record.Kind == models.StatusDormitory {
			return true
		}
	}
	for _, kind := range deleteKinds {
		if kind == models.StatusDormitory {
			return true
		}
	}
	return false
}

// buildStatusRecords validates each submitted status against the
// per-kind rule table and splits the map into upserts and deletions.
func (s *StudentService) buildStatusRecords(payloads map[models.StatusKind]*StatusPayload) ([]models.StatusRecord, []models.StatusKind, map[models.StatusKind][]string, error) {
	var records []models.StatusRecord
	var deleteKinds []models.StatusKind
	fileRefs := make(map[models.StatusKind][]string)

	for kind, payload := range payloads {
		rule, ok := statusRules[kind]
		if !ok {
			return nil, nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status kind %q", kind))
		}
		if payload == nil || payload.empty() {
			deleteKinds = append(deleteKinds, kind)
			continue
		}

		if payload.StartDate.IsZero() {
			return nil, nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s status requires a start date", kind))
		}
		if payload.EndDate != nil && payload.EndDate.Before(payload.StartDate) {
			return nil, nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s status end date precedes start date", kind))
		}
		if rule.needsDocument && strings.TrimSpace(payload.Document) == "" {
			return nil, nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s status requires a document", kind))
		}
		if rule.needsDisabilityType && (payload.DisabilityType == nil || *payload.DisabilityType == "") {
			return nil, nil, nil, appErrors.Clone(appErrors.ErrValidation, "disability status requires a disability type")
		}
		if rule.needsRegistryType {
			if payload.RegistryType == nil {
				return nil, nil, nil, appErrors.Clone(appErrors.ErrValidation, "registry status requires a registry type")
			}
			if *payload.RegistryType != models.RegistryRisk && *payload.RegistryType != models.RegistrySOP {
				return nil, nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown registry type %q", *payload.RegistryType))
			}
		}
		if rule.needsStartReason && (payload.StartReason == nil || *payload.StartReason == "") {
			return nil, nil, nil, appErrors.Clone(appErrors.ErrValidation, "registry status requires a start reason")
		}
		if rule.needsStartBasis && (payload.StartBasis == nil || *payload.StartBasis == "") {
			return nil, nil, nil, appErrors.Clone(appErrors.ErrValidation, "registry status requires a start basis")
		}
		if rule.needsRoom && (payload.RoomID == nil || *payload.RoomID == "") {
			return nil, nil, nil, appErrors.Clone(appErrors.ErrValidation, "dormitory status requires a room")
		}

		records = append(records, models.StatusRecord{
			Kind:           kind,
			Document:       strings.TrimSpace(payload.Document),
			StartDate:      payload.StartDate,
			EndDate:        payload.EndDate,
			Note:           payload.Note,
			DisabilityType: payload.DisabilityType,
			RegistryType:   payload.RegistryType,
			StartReason:    payload.StartReason,
			StartBasis:     payload.StartBasis,
			EndReason:      payload.EndReason,
			EndBasis:       payload.EndBasis,
			RoomID:         payload.RoomID,
		})
		for _, ref := range payload.FileIDs {
			if id := NormalizeFileRef(ref); id != "" {
				fileRefs[kind] = append(fileRefs[kind], id)
			}
		}
	}

	return records, deleteKinds, fileRefs, nil
}

// bindAttachments re-homes uploaded files under the status records that
// now own them. Binding failures are logged, not fatal: the card is
// already saved.
func (s *StudentService) bindAttachments(ctx context.Context, studentID string, statuses []models.StatusRecord, fileRefs map[models.StatusKind][]string) {
	byKind := make(map[models.StatusKind]string, len(statuses))
	for _, record := range statuses {
		byKind[record.Kind] = record.ID
	}
	for kind, ids := range fileRefs {
		ownerID, ok := byKind[kind]
		if !ok {
			continue
		}
		ownerKind := models.OwnerKindForStatus(kind)
		for _, fileID := range ids {
			if err := s.attachments.AssignOwner(ctx, fileID, ownerKind, ownerID, &studentID); err != nil {
				s.logger.Warn("failed to bind attachment",
					zap.String("file_id", fileID),
					zap.String("owner_kind", string(ownerKind)),
					zap.Error(err))
			}
		}
	}
}

// Delete removes the student and every dependent record. The delete is
// refused while attachments still reference the student.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if err := s.students.DeleteCascade(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrInternal.Code {
			return appErr
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	// The cascade may have removed a dormitory record.
	if s.occupancy != nil {
		s.occupancy.InvalidateOccupancy(ctx)
	}
	return nil
}

// NormalizeFileRef reduces a submitted file reference to the attachment
// id. References may arrive as a bare id or as "url|id".
func NormalizeFileRef(ref string) string {
	if i := strings.LastIndex(ref, "|"); i >= 0 {
		ref = ref[i+1:]
	}
	return strings.TrimSpace(ref)
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, id := range b {
		set[id] = struct{}{}
	}
	var out []string
	seen := make(map[string]struct{}, len(a))
	for _, id := range a {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

func subtract(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, id := range b {
		set[id] = struct{}{}
	}
	var out []string
	seen := make(map[string]struct{}, len(a))
	for _, id := range a {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, excluded := set[id]; !excluded {
			out = append(out, id)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}
