package models

import "time"

// AssessmentContentType selects the payload kind for an assessment.
type AssessmentContentType string

const (
	ContentTypeText  AssessmentContentType = "TEXT"
	ContentTypeMedia AssessmentContentType = "MEDIA"
)

// FileRef describes a blob stored in the object store gateway.
type FileRef struct {
	Locator      string `json:"locator"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	SizeBytes    int64  `json:"sizeBytes"`
}

// Assessment represents an admin-authored task assigned to a set of users.
// Exactly one of TextContent / the media columns is populated, matching
// ContentType.
type Assessment struct {
	ID           string                `db:"id" json:"id"`
	Title        string                `db:"title" json:"title"`
	Description  *string               `db:"description" json:"description,omitempty"`
	ContentType  AssessmentContentType `db:"content_type" json:"contentType"`
	TextContent  *string               `db:"text_content" json:"textContent,omitempty"`
	MediaLocator *string               `db:"media_locator" json:"-"`
	MediaName    *string               `db:"media_name" json:"-"`
	MediaMime    *string               `db:"media_mime" json:"-"`
	MediaSize    *int64                `db:"media_size" json:"-"`
	AssignedTo   []string              `db:"-" json:"assignedTo"`
	DueDate      *time.Time            `db:"due_date" json:"dueDate,omitempty"`
	CreatedBy    string                `db:"created_by" json:"createdBy"`
	CreatedAt    time.Time             `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time             `db:"updated_at" json:"updatedAt"`
}

// Media returns the media payload or nil when the assessment is text-based.
func (a *Assessment) Media() *FileRef {
	if a == nil || a.MediaLocator == nil {
		return nil
	}
	ref := FileRef{Locator: *a.MediaLocator}
	if a.MediaName != nil {
		ref.OriginalName = *a.MediaName
	}
	if a.MediaMime != nil {
		ref.MimeType = *a.MediaMime
	}
	if a.MediaSize != nil {
		ref.SizeBytes = *a.MediaSize
	}
	return &ref
}

// IsAssigned reports whether the given user appears in the assignment set.
func (a *Assessment) IsAssigned(userID string) bool {
	if a == nil {
		return false
	}
	for _, id := range a.AssignedTo {
		if id == userID {
			return true
		}
	}
	return false
}

// AssessmentFilter captures filtering criteria for listing assessments.
type AssessmentFilter struct {
	AssignedUserID string
	CreatedBy      string
	Search         string
	Page           int
	PageSize       int
}
