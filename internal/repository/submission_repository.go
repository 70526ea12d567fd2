package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edupath/assessment-api/internal/models"
)

// ErrSubmissionApproved is returned when a resubmit attempt finds the row
// already approved. Callers map it to the locked domain error.
var ErrSubmissionApproved = errors.New("submission already approved")

const submissionColumns = `id, assessment_id, user_id, file_locator, file_name, file_mime, file_size,
       status, review_message, reviewed_by, reviewed_at, submitted_at, updated_at`

// SubmissionRepository handles submission persistence. The
// (assessment_id, user_id) pair is unique and serves as the serialization
// key for resubmissions.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create stores a fresh submission row with PENDING status.
func (r *SubmissionRepository) Create(ctx context.Context, s *models.Submission) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if s.SubmittedAt.IsZero() {
		s.SubmittedAt = now
	}
	s.UpdatedAt = now
	if s.Status == "" {
		s.Status = models.SubmissionPending
	}
	const query = `INSERT INTO assessment_submissions
	(id, assessment_id, user_id, file_locator, file_name, file_mime, file_size, status, review_message, reviewed_by, reviewed_at, submitted_at, updated_at)
	VALUES (:id, :assessment_id, :user_id, :file_locator, :file_name, :file_mime, :file_size, :status, :review_message, :reviewed_by, :reviewed_at, :submitted_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, s); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// GetByID retrieves one submission row.
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM assessment_submissions WHERE id = $1`
	var s models.Submission
	if err := r.db.GetContext(ctx, &s, query, id); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByAssessmentAndUser retrieves the current row for the pair, if any.
func (r *SubmissionRepository) GetByAssessmentAndUser(ctx context.Context, assessmentID, userID string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM assessment_submissions WHERE assessment_id = $1 AND user_id = $2`
	var s models.Submission
	if err := r.db.GetContext(ctx, &s, query, assessmentID, userID); err != nil {
		return nil, err
	}
	return &s, nil
}

// ResubmitReplace overwrites the stored file and resets the review state of
// the row for (assessmentID, userID). The row is locked for the duration of
// the transaction and the status re-checked, so a concurrent approval is
// never clobbered. Returns the updated row and the superseded file locator.
func (r *SubmissionRepository) ResubmitReplace(ctx context.Context, assessmentID, userID string, file models.FileRef) (sub *models.Submission, oldLocator string, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("begin resubmit transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.Submission
	selectQuery := `SELECT ` + submissionColumns + ` FROM assessment_submissions
	WHERE assessment_id = $1 AND user_id = $2 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, selectQuery, assessmentID, userID); err != nil {
		return nil, "", err
	}
	if current.Status == models.SubmissionApproved {
		err = ErrSubmissionApproved
		return nil, "", err
	}

	now := time.Now().UTC()
	const updateQuery = `UPDATE assessment_submissions SET
	file_locator = $2, file_name = $3, file_mime = $4, file_size = $5,
	status = $6, review_message = NULL, reviewed_by = NULL, reviewed_at = NULL,
	submitted_at = $7, updated_at = $7
	WHERE id = $1`
	if _, err = tx.ExecContext(ctx, updateQuery, current.ID,
		file.Locator, file.OriginalName, file.MimeType, file.SizeBytes,
		models.SubmissionPending, now); err != nil {
		return nil, "", fmt.Errorf("overwrite submission: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("commit resubmit: %w", err)
	}

	oldLocator = current.FileLocator
	updated := current
	updated.FileLocator = file.Locator
	updated.FileName = file.OriginalName
	updated.FileMime = file.MimeType
	updated.FileSize = file.SizeBytes
	updated.Status = models.SubmissionPending
	updated.ReviewMessage = nil
	updated.ReviewedBy = nil
	updated.ReviewedAt = nil
	updated.SubmittedAt = now
	updated.UpdatedAt = now
	return &updated, oldLocator, nil
}

// List returns submissions applying filters, newest first.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error) {
	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)

	if filter.AssessmentID != "" {
		args = append(args, filter.AssessmentID)
		conditions = append(conditions, fmt.Sprintf("assessment_id = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + submissionColumns + ` FROM assessment_submissions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY submitted_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	var records []models.Submission
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return records, nil
}

// Review sets the decision and audit fields on a submission.
func (r *SubmissionRepository) Review(ctx context.Context, id string, status models.SubmissionStatus, message *string, reviewerID string, reviewedAt time.Time) error {
	const query = `UPDATE assessment_submissions SET
	status = $2, review_message = $3, reviewed_by = $4, reviewed_at = $5, updated_at = $5
	WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, message, reviewerID, reviewedAt)
	if err != nil {
		return fmt.Errorf("review submission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check review rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes one submission row and returns its file locator for
// cleanup.
func (r *SubmissionRepository) Delete(ctx context.Context, id string) (string, error) {
	const query = `DELETE FROM assessment_submissions WHERE id = $1 RETURNING file_locator`
	var locator string
	if err := r.db.GetContext(ctx, &locator, query, id); err != nil {
		return "", err
	}
	return locator, nil
}

// DeleteByAssessment removes every submission of an assessment and returns
// the file locators of the deleted rows for cleanup.
func (r *SubmissionRepository) DeleteByAssessment(ctx context.Context, assessmentID string) ([]string, error) {
	const query = `DELETE FROM assessment_submissions WHERE assessment_id = $1 RETURNING file_locator`
	var locators []string
	if err := r.db.SelectContext(ctx, &locators, query, assessmentID); err != nil {
		return nil, fmt.Errorf("delete submissions for assessment: %w", err)
	}
	return locators, nil
}
