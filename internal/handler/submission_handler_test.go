package handler

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/edupath/assessment-api/internal/dto"
	"github.com/edupath/assessment-api/internal/middleware"
	"github.com/edupath/assessment-api/internal/models"
	"github.com/edupath/assessment-api/internal/service"
	appErrors "github.com/edupath/assessment-api/pkg/errors"
)

type submissionServiceMock struct {
	submitted   *models.Submission
	submitErr   error
	got         *models.Submission
	getErr      error
	listed      []models.Submission
	deleteErr   error
	fileURL     string
	download    *service.FileDownload
	downloadErr error

	lastAssessmentID string
	lastUpload       service.FileUpload
	lastToken        string
}

func (m *submissionServiceMock) Submit(ctx context.Context, assessmentID string, upload service.FileUpload, actor *models.JWTClaims) (*models.Submission, error) {
	m.lastAssessmentID = assessmentID
	m.lastUpload = upload
	return m.submitted, m.submitErr
}

func (m *submissionServiceMock) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Submission, error) {
	return m.got, m.getErr
}

func (m *submissionServiceMock) List(ctx context.Context, filter dto.SubmissionListFilter, actor *models.JWTClaims) ([]models.Submission, error) {
	return m.listed, nil
}

func (m *submissionServiceMock) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	return m.deleteErr
}

func (m *submissionServiceMock) GetFileURL(ctx context.Context, id string, actor *models.JWTClaims) (string, error) {
	return m.fileURL, nil
}

func (m *submissionServiceMock) DownloadFile(ctx context.Context, id, token string, actor *models.JWTClaims) (*service.FileDownload, error) {
	m.lastToken = token
	return m.download, m.downloadErr
}

type reviewServiceMock struct {
	reviewed *models.Submission
	err      error

	lastReq dto.ReviewRequest
}

func (m *reviewServiceMock) Review(ctx context.Context, submissionID string, req dto.ReviewRequest, actor *models.JWTClaims) (*models.Submission, error) {
	m.lastReq = req
	return m.reviewed, m.err
}

type exportServiceMock struct {
	result *service.ExportResult
	err    error

	lastFormat dto.ExportFormat
}

func (m *exportServiceMock) Generate(ctx context.Context, filter dto.SubmissionListFilter, format dto.ExportFormat, actor *models.JWTClaims) (*service.ExportResult, error) {
	m.lastFormat = format
	return m.result, m.err
}

func pendingSubmission() *models.Submission {
	return &models.Submission{
		ID:           "sub-1",
		AssessmentID: "assess-1",
		UserID:       "student-1",
		FileLocator:  "2024/01/answer.pdf",
		FileName:     "answer.pdf",
		FileMime:     "application/pdf",
		FileSize:     12,
		Status:       models.SubmissionPending,
	}
}

func TestSubmissionHandlerSubmit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &submissionServiceMock{submitted: pendingSubmission(), fileURL: "https://files.test/sub-1"}
	handler := NewSubmissionHandler(mockSvc, &reviewServiceMock{}, &exportServiceMock{}, 0)

	c, w := newMultipartContext(http.MethodPost, "/assessments/assess-1/submissions", nil,
		"file", "answer.pdf", []byte("solution"))
	c.Params = gin.Params{{Key: "id", Value: "assess-1"}}
	c.Set(middleware.ContextUserKey, studentClaims())

	handler.Submit(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "assess-1", mockSvc.lastAssessmentID)
	require.Equal(t, "answer.pdf", mockSvc.lastUpload.Filename)
	require.Equal(t, []byte("solution"), mockSvc.lastUpload.Content)
	require.Contains(t, w.Body.String(), `"status":"PENDING"`)
	require.Contains(t, w.Body.String(), `"fileUrl":"https://files.test/sub-1"`)
}

func TestSubmissionHandlerSubmitMissingFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewSubmissionHandler(&submissionServiceMock{}, &reviewServiceMock{}, &exportServiceMock{}, 0)

	c, w := newMultipartContext(http.MethodPost, "/assessments/assess-1/submissions", map[string]string{
		"note": "forgot the attachment",
	}, "", "", nil)
	c.Params = gin.Params{{Key: "id", Value: "assess-1"}}
	c.Set(middleware.ContextUserKey, studentClaims())

	handler.Submit(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "file is required")
}

func TestSubmissionHandlerSubmitRejectsOversizedFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &submissionServiceMock{submitted: pendingSubmission()}
	handler := NewSubmissionHandler(mockSvc, &reviewServiceMock{}, &exportServiceMock{}, 16)

	c, w := newMultipartContext(http.MethodPost, "/assessments/assess-1/submissions", nil,
		"file", "answer.pdf", bytes.Repeat([]byte("s"), 64))
	c.Params = gin.Params{{Key: "id", Value: "assess-1"}}
	c.Set(middleware.ContextUserKey, studentClaims())

	handler.Submit(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "exceeds 16 bytes limit")
	require.Empty(t, mockSvc.lastAssessmentID)
}

func TestSubmissionHandlerSubmitLocked(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &submissionServiceMock{submitErr: appErrors.ErrSubmissionLocked}
	handler := NewSubmissionHandler(mockSvc, &reviewServiceMock{}, &exportServiceMock{}, 0)

	c, w := newMultipartContext(http.MethodPost, "/assessments/assess-1/submissions", nil,
		"file", "answer.pdf", []byte("solution"))
	c.Params = gin.Params{{Key: "id", Value: "assess-1"}}
	c.Set(middleware.ContextUserKey, studentClaims())

	handler.Submit(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestSubmissionHandlerGetForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &submissionServiceMock{getErr: appErrors.ErrForbidden}
	handler := NewSubmissionHandler(mockSvc, &reviewServiceMock{}, &exportServiceMock{}, 0)

	c, w := newGinContext(http.MethodGet, "/submissions/sub-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	c.Set(middleware.ContextUserKey, studentClaims())

	handler.Get(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestSubmissionHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &submissionServiceMock{listed: []models.Submission{*pendingSubmission()}}
	handler := NewSubmissionHandler(mockSvc, &reviewServiceMock{}, &exportServiceMock{}, 0)

	c, w := newGinContext(http.MethodGet, "/submissions?assessmentId=assess-1&status=PENDING", nil)
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"id":"sub-1"`)
}

func TestSubmissionHandlerReview(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reviewed := pendingSubmission()
	reviewed.Status = models.SubmissionApproved
	mockReview := &reviewServiceMock{reviewed: reviewed}
	handler := NewSubmissionHandler(&submissionServiceMock{}, mockReview, &exportServiceMock{}, 0)

	c, w := newGinContext(http.MethodPut, "/submissions/sub-1/review",
		[]byte(`{"decision":"APPROVED","message":"well done"}`))
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Review(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, models.SubmissionApproved, mockReview.lastReq.Decision)
	require.NotNil(t, mockReview.lastReq.Message)
	require.Equal(t, "well done", *mockReview.lastReq.Message)
	require.Contains(t, w.Body.String(), `"status":"APPROVED"`)
}

func TestSubmissionHandlerReviewBadPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewSubmissionHandler(&submissionServiceMock{}, &reviewServiceMock{}, &exportServiceMock{}, 0)

	c, w := newGinContext(http.MethodPut, "/submissions/sub-1/review", []byte(`{"decision":`))
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Review(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmissionHandlerDelete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewSubmissionHandler(&submissionServiceMock{}, &reviewServiceMock{}, &exportServiceMock{}, 0)

	c, w := newGinContext(http.MethodDelete, "/submissions/sub-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Delete(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestSubmissionHandlerDownloadFile(t *testing.T) {
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "answer.pdf")
	require.NoError(t, os.WriteFile(path, []byte("solution"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)

	mockSvc := &submissionServiceMock{download: &service.FileDownload{
		File:      file,
		Filename:  "answer.pdf",
		MimeType:  "application/pdf",
		SizeBytes: int64(len("solution")),
		ExpiresAt: time.Now().Add(time.Minute),
	}}
	handler := NewSubmissionHandler(mockSvc, &reviewServiceMock{}, &exportServiceMock{}, 0)

	c, w := newGinContext(http.MethodGet, "/submissions/sub-1/file?token=tok-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	c.Set(middleware.ContextUserKey, studentClaims())

	handler.DownloadFile(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "tok-1", mockSvc.lastToken)
	require.Equal(t, "solution", w.Body.String())
	require.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	require.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
}

func TestSubmissionHandlerDownloadFileMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewSubmissionHandler(&submissionServiceMock{}, &reviewServiceMock{}, &exportServiceMock{}, 0)

	c, w := newGinContext(http.MethodGet, "/submissions/sub-1/file", nil)
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	c.Set(middleware.ContextUserKey, studentClaims())

	handler.DownloadFile(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmissionHandlerExportCSV(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockExport := &exportServiceMock{result: &service.ExportResult{
		Filename: "submissions.csv",
		MimeType: "text/csv",
		Payload:  []byte("Assessment,User,File\n"),
	}}
	handler := NewSubmissionHandler(&submissionServiceMock{}, &reviewServiceMock{}, mockExport, 0)

	c, w := newGinContext(http.MethodGet, "/submissions/export?format=CSV", nil)
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, dto.ExportFormatCSV, mockExport.lastFormat)
	require.Contains(t, w.Header().Get("Content-Disposition"), "submissions.csv")
	require.Equal(t, "Assessment,User,File\n", w.Body.String())
}

func TestSubmissionHandlerExportForbiddenForStudents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockExport := &exportServiceMock{err: appErrors.ErrForbidden}
	handler := NewSubmissionHandler(&submissionServiceMock{}, &reviewServiceMock{}, mockExport, 0)

	c, w := newGinContext(http.MethodGet, "/submissions/export?format=pdf", nil)
	c.Set(middleware.ContextUserKey, studentClaims())

	handler.Export(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}
