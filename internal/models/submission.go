package models

import "time"

// SubmissionStatus tracks the review state of a submission.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "PENDING"
	SubmissionApproved SubmissionStatus = "APPROVED"
	SubmissionRejected SubmissionStatus = "REJECTED"
)

// Valid reports whether the status is one of the known values.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionPending, SubmissionApproved, SubmissionRejected:
		return true
	}
	return false
}

// Submission is a single user's current artifact for an assessment.
// The (assessment_id, user_id) pair is unique; resubmission overwrites the
// row in place.
type Submission struct {
	ID            string           `db:"id" json:"id"`
	AssessmentID  string           `db:"assessment_id" json:"assessmentId"`
	UserID        string           `db:"user_id" json:"userId"`
	FileLocator   string           `db:"file_locator" json:"-"`
	FileName      string           `db:"file_name" json:"fileName"`
	FileMime      string           `db:"file_mime" json:"fileMime"`
	FileSize      int64            `db:"file_size" json:"fileSize"`
	Status        SubmissionStatus `db:"status" json:"status"`
	ReviewMessage *string          `db:"review_message" json:"reviewMessage,omitempty"`
	ReviewedBy    *string          `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt    *time.Time       `db:"reviewed_at" json:"reviewedAt,omitempty"`
	SubmittedAt   time.Time        `db:"submitted_at" json:"submittedAt"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updatedAt"`
}

// File returns the stored artifact reference.
func (s *Submission) File() FileRef {
	return FileRef{
		Locator:      s.FileLocator,
		OriginalName: s.FileName,
		MimeType:     s.FileMime,
		SizeBytes:    s.FileSize,
	}
}

// SubmissionFilter narrows listing queries.
type SubmissionFilter struct {
	AssessmentID string
	UserID       string
	Status       SubmissionStatus
	Limit        int
	Offset       int
}

// AssessmentWithSubmission pairs an assessment with the requesting user's
// current submission, if any.
type AssessmentWithSubmission struct {
	Assessment Assessment  `json:"assessment"`
	Submission *Submission `json:"submission"`
}
