package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin            = "LOGIN"
	AuditActionPasswordChange   = "PASSWORD_CHANGE"
	AuditActionAssessmentCreate = "ASSESSMENT_CREATE"
	AuditActionAssessmentUpdate = "ASSESSMENT_UPDATE"
	AuditActionAssessmentAssign = "ASSESSMENT_ASSIGN"
	AuditActionAssessmentDelete = "ASSESSMENT_DELETE"
	AuditActionSubmissionSubmit = "SUBMISSION_SUBMIT"
	AuditActionSubmissionReview = "SUBMISSION_REVIEW"
	AuditActionSubmissionDelete = "SUBMISSION_DELETE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	Detail     []byte    `db:"detail" json:"detail,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
