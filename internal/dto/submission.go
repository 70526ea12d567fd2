package dto

import (
	"github.com/edupath/assessment-api/internal/models"
)

// ReviewRequest records an admin decision on a submission. pending is not a
// settable decision; it is reachable only through resubmission.
type ReviewRequest struct {
	Decision models.SubmissionStatus `json:"decision" validate:"required,oneof=APPROVED REJECTED"`
	Message  *string                 `json:"message"`
}

// SubmissionResponse enriches the model with the nested file payload and,
// when present, a signed file URL.
type SubmissionResponse struct {
	models.Submission
	File    models.FileRef `json:"file"`
	FileURL string         `json:"fileUrl,omitempty"`
}

// NewSubmissionResponse builds the response shape for one submission.
func NewSubmissionResponse(s *models.Submission, fileURL string) SubmissionResponse {
	return SubmissionResponse{
		Submission: *s,
		File:       s.File(),
		FileURL:    fileURL,
	}
}

// SubmissionListFilter captures admin listing query parameters.
type SubmissionListFilter struct {
	AssessmentID string                  `form:"assessmentId"`
	UserID       string                  `form:"userId"`
	Status       models.SubmissionStatus `form:"status"`
	Limit        int                     `form:"limit"`
	Offset       int                     `form:"offset"`
}

// ExportFormat selects the submissions report output format.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)
