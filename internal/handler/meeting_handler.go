package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Danilnaisov/praktika05/internal/service"
	appErrors "github.com/Danilnaisov/praktika05/pkg/errors"
	"github.com/Danilnaisov/praktika05/pkg/response"
)

// MeetingHandler exposes prevention-committee endpoints.
type MeetingHandler struct {
	meetings *service.MeetingService
}

// NewMeetingHandler constructs MeetingHandler.
func NewMeetingHandler(meetings *service.MeetingService) *MeetingHandler {
	return &MeetingHandler{meetings: meetings}
}

// List godoc
// @Summary List committee meetings
// @Tags Meetings
// @Produce json
// @Param student_id query string false "Restrict to one student"
// @Success 200 {object} response.Envelope
// @Router /meetings [get]
func (h *MeetingHandler) List(c *gin.Context) {
	var (
		meetings interface{}
		err      error
	)
	if studentID := c.Query("student_id"); studentID != "" {
		meetings, err = h.meetings.ListByStudent(c.Request.Context(), studentID)
	} else {
		meetings, err = h.meetings.List(c.Request.Context())
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, meetings, nil)
}

// ListByStudent godoc
// @Summary List meetings of one student
// @Tags Meetings
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/meetings [get]
func (h *MeetingHandler) ListByStudent(c *gin.Context) {
	meetings, err := h.meetings.ListByStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, meetings, nil)
}

// Create godoc
// @Summary Record a committee sitting
// @Description Date, staff, representatives, reason and decision are
// @Description required together; the note stays optional
// @Tags Meetings
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.MeetingPayload true "Meeting payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/meetings [post]
func (h *MeetingHandler) Create(c *gin.Context) {
	var payload service.MeetingPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	meeting, err := h.meetings.Create(c.Request.Context(), c.Param("id"), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, meeting)
}

// Delete godoc
// @Summary Delete a committee sitting
// @Tags Meetings
// @Produce json
// @Param id path string true "Meeting ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /meetings/{id} [delete]
func (h *MeetingHandler) Delete(c *gin.Context) {
	if err := h.meetings.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
