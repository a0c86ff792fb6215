package handler

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/Danilnaisov/praktika05/internal/models"
	"github.com/Danilnaisov/praktika05/internal/service"
	appErrors "github.com/Danilnaisov/praktika05/pkg/errors"
	"github.com/Danilnaisov/praktika05/pkg/response"
)

// AttachmentHandler exposes document upload and download endpoints.
type AttachmentHandler struct {
	attachments *service.AttachmentService
}

// NewAttachmentHandler constructs AttachmentHandler.
func NewAttachmentHandler(attachments *service.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments}
}

// Upload godoc
// @Summary Upload a PDF document
// @Description Stores the file and returns its id. Files uploaded ahead
// @Description of the owning record are re-homed by the student save.
// @Tags Attachments
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "PDF document"
// @Param owner_kind formData string false "Owner kind, defaults to student"
// @Param owner_id formData string false "Owning record id"
// @Param student_id formData string false "Student the file belongs to"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attachments [post]
func (h *AttachmentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read file"))
		return
	}
	defer file.Close()

	var studentID *string
	if v := c.PostForm("student_id"); v != "" {
		studentID = &v
	}
	attachment, err := h.attachments.Upload(c.Request.Context(), service.UploadRequest{
		OwnerKind: models.OwnerKind(c.PostForm("owner_kind")),
		OwnerID:   c.PostForm("owner_id"),
		StudentID: studentID,
		Filename:  fileHeader.Filename,
		MIMEType:  fileHeader.Header.Get("Content-Type"),
		Size:      fileHeader.Size,
		Body:      file,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, attachment)
}

// Download godoc
// @Summary Download a stored document
// @Tags Attachments
// @Produce application/pdf
// @Param id path string true "Attachment ID"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /attachments/{id} [get]
func (h *AttachmentHandler) Download(c *gin.Context) {
	attachment, file, err := h.attachments.Download(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	filename := filepath.Base(attachment.FilePath)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "application/pdf")
	if info, err := file.Stat(); err == nil {
		c.Header("Content-Length", fmt.Sprintf("%d", info.Size()))
	}
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, file); err != nil {
		_ = c.Error(err)
	}
}

// ListByOwner godoc
// @Summary List attachments of one record
// @Tags Attachments
// @Produce json
// @Param owner_kind query string true "Owner kind"
// @Param owner_id query string true "Owning record id"
// @Success 200 {object} response.Envelope
// @Router /attachments [get]
func (h *AttachmentHandler) ListByOwner(c *gin.Context) {
	attachments, err := h.attachments.ListByOwner(c.Request.Context(), models.OwnerKind(c.Query("owner_kind")), c.Query("owner_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attachments, nil)
}

// Delete godoc
// @Summary Delete an attachment
// @Tags Attachments
// @Produce json
// @Param id path string true "Attachment ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /attachments/{id} [delete]
func (h *AttachmentHandler) Delete(c *gin.Context) {
	if err := h.attachments.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
