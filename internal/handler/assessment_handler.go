package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edupath/assessment-api/internal/dto"
	"github.com/edupath/assessment-api/internal/models"
	"github.com/edupath/assessment-api/internal/service"
	appErrors "github.com/edupath/assessment-api/pkg/errors"
	"github.com/edupath/assessment-api/pkg/response"
	"github.com/edupath/assessment-api/pkg/storage"
)

type assessmentService interface {
	Create(ctx context.Context, req dto.CreateAssessmentRequest, media *service.FileUpload, actor *models.JWTClaims) (*models.Assessment, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Assessment, error)
	List(ctx context.Context, filter dto.AssessmentListFilter, actor *models.JWTClaims) ([]models.Assessment, int, error)
	ListForUser(ctx context.Context, actor *models.JWTClaims) ([]models.AssessmentWithSubmission, error)
	Update(ctx context.Context, id string, req dto.UpdateAssessmentRequest, media *service.FileUpload, actor *models.JWTClaims) (*models.Assessment, error)
	AssignUsers(ctx context.Context, id string, req dto.AssignUsersRequest, actor *models.JWTClaims) (*models.Assessment, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
	GetMediaURL(ctx context.Context, id string, actor *models.JWTClaims) (string, error)
	DownloadMedia(ctx context.Context, id, token string, actor *models.JWTClaims) (*service.FileDownload, error)
}

// AssessmentHandler manages assessment HTTP endpoints.
type AssessmentHandler struct {
	service   assessmentService
	maxUpload int64
}

// NewAssessmentHandler constructs the handler. maxUpload caps multipart
// file parts in bytes; zero disables the handler-side cap.
func NewAssessmentHandler(service assessmentService, maxUpload int64) *AssessmentHandler {
	return &AssessmentHandler{service: service, maxUpload: maxUpload}
}

// Create godoc
// @Summary Create an assessment
// @Description Create a TEXT or MEDIA assessment and assign it to users
// @Tags Assessments
// @Accept multipart/form-data
// @Produce json
// @Param title formData string true "Title"
// @Param contentType formData string true "TEXT or MEDIA"
// @Param textContent formData string false "Text payload for TEXT assessments"
// @Param assignedTo formData []string false "Assigned user IDs"
// @Param dueDate formData string false "Due date (RFC3339)"
// @Param media formData file false "Media payload for MEDIA assessments"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /assessments [post]
func (h *AssessmentHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateAssessmentRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assessment payload"))
		return
	}
	media, err := readUpload(c, "media", h.maxUpload)
	if err != nil {
		response.Error(c, err)
		return
	}

	a, err := h.service.Create(c.Request.Context(), req, media, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, h.buildResponse(c, a, claims), nil)
}

// List godoc
// @Summary List assessments
// @Tags Assessments
// @Produce json
// @Param assignedTo query string false "Filter by assigned user"
// @Param createdBy query string false "Filter by author"
// @Param search query string false "Title search"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /assessments [get]
func (h *AssessmentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var filter dto.AssessmentListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}

	items, total, err := h.service.List(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	results := make([]dto.AssessmentResponse, 0, len(items))
	for i := range items {
		results = append(results, h.buildResponse(c, &items[i], claims))
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = len(results)
	}
	response.JSON(c, http.StatusOK, results, &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	})
}

// ListMine godoc
// @Summary List the caller's assigned assessments
// @Description Returns assigned assessments paired with the caller's submission state
// @Tags Assessments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/assessments [get]
func (h *AssessmentHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	items, err := h.service.ListForUser(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get one assessment
// @Tags Assessments
// @Produce json
// @Param id path string true "Assessment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assessments/{id} [get]
func (h *AssessmentHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	a, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.buildResponse(c, a, claims), nil)
}

// Update godoc
// @Summary Update an assessment
// @Description Partially update fields; switching content type clears the other payload
// @Tags Assessments
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Assessment ID"
// @Param media formData file false "Replacement media payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assessments/{id} [patch]
func (h *AssessmentHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateAssessmentRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assessment payload"))
		return
	}
	media, err := readUpload(c, "media", h.maxUpload)
	if err != nil {
		response.Error(c, err)
		return
	}

	a, err := h.service.Update(c.Request.Context(), c.Param("id"), req, media, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.buildResponse(c, a, claims), nil)
}

// AssignUsers godoc
// @Summary Replace or extend the assignment set
// @Tags Assessments
// @Accept json
// @Produce json
// @Param id path string true "Assessment ID"
// @Param payload body dto.AssignUsersRequest true "Assignment payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assessments/{id}/assignees [put]
func (h *AssessmentHandler) AssignUsers(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.AssignUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}
	a, err := h.service.AssignUsers(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.buildResponse(c, a, claims), nil)
}

// Delete godoc
// @Summary Delete an assessment
// @Description Removes the assessment, its assignments, all submissions and stored files
// @Tags Assessments
// @Produce json
// @Param id path string true "Assessment ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /assessments/{id} [delete]
func (h *AssessmentHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DownloadMedia godoc
// @Summary Download assessment media via signed token
// @Tags Assessments
// @Produce octet-stream
// @Param id path string true "Assessment ID"
// @Param token query string true "Signed token"
// @Param disposition query string false "inline or attachment"
// @Success 200 {file} binary
// @Router /assessments/{id}/media [get]
func (h *AssessmentHandler) DownloadMedia(c *gin.Context) {
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
	result, err := h.service.DownloadMedia(c.Request.Context(), c.Param("id"), token, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	streamDownload(c, result)
}

func (h *AssessmentHandler) buildResponse(c *gin.Context, a *models.Assessment, claims *models.JWTClaims) dto.AssessmentResponse {
	mediaURL := ""
	if a.Media() != nil {
		if url, err := h.service.GetMediaURL(c.Request.Context(), a.ID, claims); err == nil {
			mediaURL = url
		}
	}
	return dto.NewAssessmentResponse(a, mediaURL)
}

// readUpload buffers an optional multipart file part. A missing part yields
// nil without error. The size cap is enforced before and during the read so
// oversized parts never get fully buffered.
func readUpload(c *gin.Context, field string, maxBytes int64) (*service.FileUpload, error) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		if err == http.ErrMissingFile || strings.Contains(err.Error(), "no multipart") {
			return nil, nil
		}
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid %s file", field))
	}
	if maxBytes > 0 && fileHeader.Size > maxBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", maxBytes))
	}
	src, err := fileHeader.Open()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open uploaded file")
	}
	defer src.Close()

	reader := io.Reader(src)
	if maxBytes > 0 {
		reader = io.LimitReader(src, maxBytes+1)
	}
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to buffer uploaded file")
	}
	if maxBytes > 0 && int64(len(content)) > maxBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", maxBytes))
	}
	return &service.FileUpload{
		Filename: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Content:  content,
	}, nil
}

func streamDownload(c *gin.Context, result *service.FileDownload) {
	defer result.File.Close() //nolint:errcheck

	disposition := storage.DispositionAttachment
	if c.Query("disposition") == string(storage.DispositionInline) {
		disposition = storage.DispositionInline
	}
	filename := result.Filename
	if override := strings.TrimSpace(c.Query("filename")); override != "" {
		filename = override
	}
	c.Header("Content-Disposition", fmt.Sprintf("%s; filename=%s", disposition, strconv.Quote(filename)))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, result.SizeBytes, result.MimeType, result.File, nil)
}
