package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Danilnaisov/praktika05/internal/models"
	"github.com/Danilnaisov/praktika05/pkg/export"
	"github.com/Danilnaisov/praktika05/pkg/storage"
)

// ReportParams is the JSON payload stored with a report job. The
// student report reuses the listing filter; the dormitory report only
// needs the reference date.
type ReportParams struct {
	Date      string             `json:"date,omitempty"`
	Filter    ReportFilterParams `json:"filter,omitempty"`
	Available bool               `json:"available,omitempty"`
}

// ReportFilterParams mirrors the status filter flags in a
// JSON-serialisable form.
type ReportFilterParams struct {
	LastName       string `json:"last_name,omitempty"`
	Group          string `json:"group,omitempty"`
	AdmissionYear  int    `json:"admission_year,omitempty"`
	GraduationYear int    `json:"graduation_year,omitempty"`
	Orphan         string `json:"orphan,omitempty"`
	Disability     string `json:"disabled,omitempty"`
	SpecialNeeds   string `json:"ovz,omitempty"`
	Wartime        string `json:"svo,omitempty"`
	Scholarship    string `json:"scholarship,omitempty"`
	RiskGroup      string `json:"risk_group,omitempty"`
	Registry       string `json:"sop,omitempty"`
	Dormitory      string `json:"dormitory,omitempty"`
	RoomName       string `json:"room,omitempty"`
}

// ExportResult describes a finished export artifact.
type ExportResult struct {
	RelPath   string
	Token     string
	ExpiresAt time.Time
}

type exportStudentLister interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error)
}

type exportRoomLister interface {
	List(ctx context.Context, at time.Time, availableOnly bool) ([]models.RoomDetail, error)
}

// ExportService renders report datasets into PDF or CSV artifacts and
// signs download tokens for them.
type ExportService struct {
	students exportStudentLister
	rooms    exportRoomLister
	pdf      *export.PDFExporter
	csv      *export.CSVExporter
	storage  *storage.LocalStorage
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
}

// NewExportService constructs the export service.
func NewExportService(students exportStudentLister, rooms exportRoomLister, store *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		students: students,
		rooms:    rooms,
		pdf:      export.NewPDFExporter(),
		csv:      export.NewCSVExporter(),
		storage:  store,
		signer:   signer,
		logger:   logger,
	}
}

// Generate builds the dataset for the job, renders it and stores the
// artifact, returning a signed download token.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	var params ReportParams
	if len(job.Params) > 0 {
		if err := json.Unmarshal(job.Params, &params); err != nil {
			return nil, fmt.Errorf("decode report params: %w", err)
		}
	}
	at, err := parseReportDate(params.Date)
	if err != nil {
		return nil, err
	}

	var dataset export.Dataset
	var title string
	switch job.Type {
	case models.ReportStudents:
		dataset, err = s.studentDataset(ctx, params, at)
		title = fmt.Sprintf("Студенты на %s", at.Format("02.01.2006"))
	case models.ReportDormitory:
		dataset, err = s.dormitoryDataset(ctx, params, at)
		title = fmt.Sprintf("Общежитие на %s", at.Format("02.01.2006"))
	default:
		return nil, fmt.Errorf("unsupported report type %q", job.Type)
	}
	if err != nil {
		return nil, err
	}

	var payload []byte
	var ext string
	switch job.Format {
	case models.ReportFormatPDF:
		payload, err = s.pdf.RenderLandscape(dataset, title)
		ext = "pdf"
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
		ext = "csv"
	default:
		return nil, fmt.Errorf("unsupported report format %q", job.Format)
	}
	if err != nil {
		return nil, err
	}

	relPath := fmt.Sprintf("reports/%s/%s.%s", time.Now().UTC().Format("2006/01"), job.ID, ext)
	if _, err := s.storage.Save(relPath, payload); err != nil {
		return nil, fmt.Errorf("store report: %w", err)
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, fmt.Errorf("sign report token: %w", err)
	}
	return &ExportResult{RelPath: relPath, Token: token, ExpiresAt: expiresAt}, nil
}

// ParseToken validates a download token.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a read handle for a stored artifact.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored artifact.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup drops artifacts older than the TTL.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) studentDataset(ctx context.Context, params ReportParams, at time.Time) (export.Dataset, error) {
	filter := models.StudentFilter{
		LastName:       params.Filter.LastName,
		Group:          params.Filter.Group,
		AdmissionYear:  params.Filter.AdmissionYear,
		GraduationYear: params.Filter.GraduationYear,
		AsOfDate:       at,
		RoomName:       params.Filter.RoomName,
		Orphan:         models.TernaryFlag(params.Filter.Orphan),
		Disability:     models.TernaryFlag(params.Filter.Disability),
		SpecialNeeds:   models.TernaryFlag(params.Filter.SpecialNeeds),
		Wartime:        models.TernaryFlag(params.Filter.Wartime),
		Scholarship:    models.TernaryFlag(params.Filter.Scholarship),
		RiskGroup:      models.TernaryFlag(params.Filter.RiskGroup),
		Registry:       models.TernaryFlag(params.Filter.Registry),
		Dormitory:      models.TernaryFlag(params.Filter.Dormitory),
		PageSize:       200,
	}

	headers := []string{"Фамилия", "Имя", "Отчество", "Дата рождения", "Группа", "Отделение", "Телефон", "Финансирование"}
	rows := make([]map[string]string, 0, 64)
	for page := 1; ; page++ {
		filter.Page = page
		students, pagination, err := s.students.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, fmt.Errorf("list students: %w", err)
		}
		for _, st := range students {
			department := ""
			if st.DepartmentName != nil {
				department = *st.DepartmentName
			}
			rows = append(rows, map[string]string{
				"Фамилия":        st.LastName,
				"Имя":            st.FirstName,
				"Отчество":       st.MiddleName,
				"Дата рождения":  st.BirthDate.Format("02.01.2006"),
				"Группа":         st.Group,
				"Отделение":      department,
				"Телефон":        st.Phone,
				"Финансирование": st.Funding,
			})
		}
		if pagination == nil || page*filter.PageSize >= pagination.TotalCount || len(students) == 0 {
			break
		}
	}
	return export.Dataset{Headers: headers, Rows: rows}, nil
}

func (s *ExportService) dormitoryDataset(ctx context.Context, params ReportParams, at time.Time) (export.Dataset, error) {
	rooms, err := s.rooms.List(ctx, at, params.Available)
	if err != nil {
		return export.Dataset{}, fmt.Errorf("list rooms: %w", err)
	}
	headers := []string{"Комната", "Вместимость", "Занято", "Свободно", "Проживающие"}
	rows := make([]map[string]string, 0, len(rooms))
	for _, room := range rooms {
		names := make([]string, 0, len(room.Occupants))
		for _, o := range room.Occupants {
			names = append(names, strings.TrimSpace(fmt.Sprintf("%s %s", o.LastName, o.FirstName)))
		}
		rows = append(rows, map[string]string{
			"Комната":     room.Name,
			"Вместимость": strconv.Itoa(room.Capacity),
			"Занято":      strconv.Itoa(room.Occupancy()),
			"Свободно":    strconv.Itoa(room.Capacity - room.Occupancy()),
			"Проживающие": strings.Join(names, ", "),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}, nil
}

func parseReportDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC().Truncate(24 * time.Hour), nil
	}
	at, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid report date %q", raw)
	}
	return at, nil
}
