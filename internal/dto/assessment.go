package dto

import (
	"time"

	"github.com/edupath/assessment-api/internal/models"
)

// CreateAssessmentRequest contains fields submitted when creating an
// assessment. When ContentType is MEDIA the file arrives as the multipart
// `media` part and AssignedTo as a repeated form field.
type CreateAssessmentRequest struct {
	Title       string                       `form:"title" json:"title" validate:"required"`
	Description *string                      `form:"description" json:"description"`
	ContentType models.AssessmentContentType `form:"contentType" json:"contentType" validate:"required"`
	TextContent *string                      `form:"textContent" json:"textContent"`
	AssignedTo  []string                     `form:"assignedTo" json:"assignedTo" validate:"dive,uuid4"`
	DueDate     *time.Time                   `form:"dueDate" json:"dueDate" time_format:"2006-01-02T15:04:05Z07:00"`
}

// UpdateAssessmentRequest carries partial updates; nil fields are untouched.
type UpdateAssessmentRequest struct {
	Title        *string                       `form:"title" json:"title"`
	Description  *string                       `form:"description" json:"description"`
	ContentType  *models.AssessmentContentType `form:"contentType" json:"contentType"`
	TextContent  *string                       `form:"textContent" json:"textContent"`
	DueDate      *time.Time                    `form:"dueDate" json:"dueDate" time_format:"2006-01-02T15:04:05Z07:00"`
	ClearDueDate bool                          `form:"clearDueDate" json:"clearDueDate"`
}

// AssignMode selects how AssignUsers merges the incoming set.
type AssignMode string

const (
	AssignModeReplace AssignMode = "replace"
	AssignModeAppend  AssignMode = "append"
)

// AssignUsersRequest mutates the assignment set of an assessment.
type AssignUsersRequest struct {
	UserIDs []string   `json:"userIds" validate:"required,dive,uuid4"`
	Mode    AssignMode `json:"mode" validate:"required,oneof=replace append"`
}

// AssessmentResponse enriches the model with the nested media payload and,
// when present, a signed media URL.
type AssessmentResponse struct {
	models.Assessment
	Media    *models.FileRef `json:"media,omitempty"`
	MediaURL string          `json:"mediaUrl,omitempty"`
}

// NewAssessmentResponse builds the response shape for one assessment.
func NewAssessmentResponse(a *models.Assessment, mediaURL string) AssessmentResponse {
	return AssessmentResponse{
		Assessment: *a,
		Media:      a.Media(),
		MediaURL:   mediaURL,
	}
}

// AssessmentListFilter captures admin listing query parameters.
type AssessmentListFilter struct {
	AssignedUserID string `form:"assignedTo"`
	CreatedBy      string `form:"createdBy"`
	Search         string `form:"search"`
	Page           int    `form:"page"`
	PageSize       int    `form:"pageSize"`
}
