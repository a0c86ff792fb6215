package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Danilnaisov/praktika05/internal/models"
	"github.com/Danilnaisov/praktika05/internal/service"
	appErrors "github.com/Danilnaisov/praktika05/pkg/errors"
	"github.com/Danilnaisov/praktika05/pkg/response"
)

// StudentHandler exposes student card endpoints.
type StudentHandler struct {
	students *service.StudentService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students *service.StudentService) *StudentHandler {
	return &StudentHandler{students: students}
}

// List godoc
// @Summary List students
// @Description Lists students with the temporal status filter. Status
// @Description flags accept "true" (active at the reference date), "all"
// @Description (record exists) or "expired"; several flags intersect.
// @Tags Students
// @Produce json
// @Param last_name query string false "Last name prefix"
// @Param first_name query string false "First name prefix"
// @Param group query string false "Group label"
// @Param admission_year query int false "Admission year"
// @Param graduation_year query int false "Graduation year"
// @Param date query string false "Reference date YYYY-MM-DD, defaults to today"
// @Param adult query bool false "18 or older at the reference date"
// @Param enrolled query bool false "Enrolled at the reference date"
// @Param expelled query bool false "Expelled"
// @Param orphan query string false "Orphan status flag"
// @Param disabled query string false "Disability status flag"
// @Param ovz query string false "Special needs status flag"
// @Param svo query string false "Wartime service status flag"
// @Param scholarship query string false "Social scholarship status flag"
// @Param risk_group query string false "Risk group registry flag"
// @Param sop query string false "SOP registry flag"
// @Param dormitory query string false "Dormitory status flag"
// @Param room query string false "Room name"
// @Param has_meetings query bool false "Has committee meetings"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	filter := models.StudentFilter{
		LastName:       strings.TrimSpace(c.Query("last_name")),
		FirstName:      strings.TrimSpace(c.Query("first_name")),
		Group:          strings.TrimSpace(c.Query("group")),
		AdmissionYear:  queryInt(c, "admission_year", 0),
		GraduationYear: queryInt(c, "graduation_year", 0),
		AsOfDate:       queryDate(c, "date"),
		Adult:          queryBoolPtr(c, "adult"),
		Enrolled:       queryBoolPtr(c, "enrolled"),
		Expelled:       queryBoolPtr(c, "expelled"),
		RoomName:       strings.TrimSpace(c.Query("room")),
		HasMeetings:    c.Query("has_meetings") == "true",
		Orphan:         models.TernaryFlag(c.Query("orphan")),
		Disability:     models.TernaryFlag(c.Query("disabled")),
		SpecialNeeds:   models.TernaryFlag(c.Query("ovz")),
		Wartime:        models.TernaryFlag(c.Query("svo")),
		Scholarship:    models.TernaryFlag(c.Query("scholarship")),
		RiskGroup:      models.TernaryFlag(c.Query("risk_group")),
		Registry:       models.TernaryFlag(c.Query("sop")),
		Dormitory:      models.TernaryFlag(c.Query("dormitory")),
		Page:           queryInt(c, "page", 1),
		PageSize:       queryInt(c, "limit", 50),
	}

	students, pagination, err := h.students.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Get student card
// @Description Returns the student with statuses, meetings and attachments
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	card, err := h.students.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}

// Create godoc
// @Summary Create student
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.SaveStudentRequest true "Student card"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req service.SaveStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	card, err := h.students.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, card)
}

// Update godoc
// @Summary Update student
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.SaveStudentRequest true "Student card"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	var req service.SaveStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	card, err := h.students.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}

// Delete godoc
// @Summary Delete student
// @Description Cascades to statuses and meetings; refused while
// @Description attachments still reference the student
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	if err := h.students.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
