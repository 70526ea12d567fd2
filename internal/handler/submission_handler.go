package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edupath/assessment-api/internal/dto"
	"github.com/edupath/assessment-api/internal/models"
	"github.com/edupath/assessment-api/internal/service"
	appErrors "github.com/edupath/assessment-api/pkg/errors"
	"github.com/edupath/assessment-api/pkg/response"
)

type submissionService interface {
	Submit(ctx context.Context, assessmentID string, upload service.FileUpload, actor *models.JWTClaims) (*models.Submission, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Submission, error)
	List(ctx context.Context, filter dto.SubmissionListFilter, actor *models.JWTClaims) ([]models.Submission, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
	GetFileURL(ctx context.Context, id string, actor *models.JWTClaims) (string, error)
	DownloadFile(ctx context.Context, id, token string, actor *models.JWTClaims) (*service.FileDownload, error)
}

type reviewService interface {
	Review(ctx context.Context, submissionID string, req dto.ReviewRequest, actor *models.JWTClaims) (*models.Submission, error)
}

type exportService interface {
	Generate(ctx context.Context, filter dto.SubmissionListFilter, format dto.ExportFormat, actor *models.JWTClaims) (*service.ExportResult, error)
}

// SubmissionHandler manages submission HTTP endpoints.
type SubmissionHandler struct {
	submissions submissionService
	reviews     reviewService
	exports     exportService
	maxUpload   int64
}

// NewSubmissionHandler constructs the handler. maxUpload caps the multipart
// file part in bytes; zero disables the handler-side cap.
func NewSubmissionHandler(submissions submissionService, reviews reviewService, exports exportService, maxUpload int64) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions, reviews: reviews, exports: exports, maxUpload: maxUpload}
}

// Submit godoc
// @Summary Submit an artifact for an assessment
// @Description First submit creates the row; later submits replace it unless approved
// @Tags Submissions
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Assessment ID"
// @Param file formData file true "Submission artifact"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assessments/{id}/submissions [post]
func (h *SubmissionHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	upload, err := readUpload(c, "file", h.maxUpload)
	if err != nil {
		response.Error(c, err)
		return
	}
	if upload == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}

	sub, err := h.submissions.Submit(c.Request.Context(), c.Param("id"), *upload, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, h.buildResponse(c, sub, claims), nil)
}

// Get godoc
// @Summary Get one submission
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	sub, err := h.submissions.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.buildResponse(c, sub, claims), nil)
}

// List godoc
// @Summary List submissions
// @Tags Submissions
// @Produce json
// @Param assessmentId query string false "Filter by assessment"
// @Param userId query string false "Filter by user"
// @Param status query string false "Filter by status"
// @Param limit query int false "Limit"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /submissions [get]
func (h *SubmissionHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var filter dto.SubmissionListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	subs, err := h.submissions.List(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	results := make([]dto.SubmissionResponse, 0, len(subs))
	for i := range subs {
		results = append(results, h.buildResponse(c, &subs[i], claims))
	}
	response.JSON(c, http.StatusOK, results, nil)
}

// Review godoc
// @Summary Approve or reject a submission
// @Description Re-reviewing is allowed; rejecting an approved submission unlocks it
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.ReviewRequest true "Review decision"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /submissions/{id}/review [put]
func (h *SubmissionHandler) Review(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}
	sub, err := h.reviews.Review(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.buildResponse(c, sub, claims), nil)
}

// Delete godoc
// @Summary Delete a submission
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /submissions/{id} [delete]
func (h *SubmissionHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.submissions.Delete(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DownloadFile godoc
// @Summary Download a submission artifact via signed token
// @Tags Submissions
// @Produce octet-stream
// @Param id path string true "Submission ID"
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /submissions/{id}/file [get]
func (h *SubmissionHandler) DownloadFile(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.submissions.DownloadFile(c.Request.Context(), c.Param("id"), token, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	streamDownload(c, result)
}

// Export godoc
// @Summary Export submissions report
// @Tags Submissions
// @Produce octet-stream
// @Param format query string true "csv or pdf"
// @Param assessmentId query string false "Filter by assessment"
// @Param userId query string false "Filter by user"
// @Param status query string false "Filter by status"
// @Success 200 {file} binary
// @Router /submissions/export [get]
func (h *SubmissionHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var filter dto.SubmissionListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	format := dto.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(dto.ExportFormatCSV))))

	result, err := h.exports.Generate(c.Request.Context(), filter, format, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, result.MimeType, result.Payload)
}

func (h *SubmissionHandler) buildResponse(c *gin.Context, sub *models.Submission, claims *models.JWTClaims) dto.SubmissionResponse {
	fileURL := ""
	if url, err := h.submissions.GetFileURL(c.Request.Context(), sub.ID, claims); err == nil {
		fileURL = url
	}
	return dto.NewSubmissionResponse(sub, fileURL)
}
