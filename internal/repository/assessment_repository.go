package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/edupath/assessment-api/internal/models"
)

const assessmentColumns = `id, title, description, content_type, text_content,
       media_locator, media_name, media_mime, media_size,
       due_date, created_by, created_at, updated_at`

// AssessmentRepository handles assessment persistence including the
// assignment set stored in assessment_assignees.
type AssessmentRepository struct {
	db *sqlx.DB
}

// NewAssessmentRepository constructs the repository.
func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// Create stores a new assessment and its assignment set.
func (r *AssessmentRepository) Create(ctx context.Context, a *models.Assessment) (err error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assessment transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertQuery = `INSERT INTO assessments
	(id, title, description, content_type, text_content, media_locator, media_name, media_mime, media_size, due_date, created_by, created_at, updated_at)
	VALUES (:id, :title, :description, :content_type, :text_content, :media_locator, :media_name, :media_mime, :media_size, :due_date, :created_by, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, a); err != nil {
		return fmt.Errorf("create assessment: %w", err)
	}

	if err = insertAssignees(ctx, tx, a.ID, a.AssignedTo); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit assessment: %w", err)
	}
	return nil
}

// GetByID retrieves one assessment with its assignment set.
func (r *AssessmentRepository) GetByID(ctx context.Context, id string) (*models.Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM assessments WHERE id = $1`
	var a models.Assessment
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		return nil, err
	}
	assignees, err := r.loadAssignees(ctx, []string{a.ID})
	if err != nil {
		return nil, err
	}
	a.AssignedTo = assignees[a.ID]
	if a.AssignedTo == nil {
		a.AssignedTo = []string{}
	}
	return &a, nil
}

// List returns assessments applying filters with a total count.
func (r *AssessmentRepository) List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, int, error) {
	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)

	if filter.AssignedUserID != "" {
		args = append(args, filter.AssignedUserID)
		conditions = append(conditions, fmt.Sprintf("id IN (SELECT assessment_id FROM assessment_assignees WHERE user_id = $%d)", len(args)))
	}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("LOWER(title) LIKE $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM assessments"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count assessments: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}

	query := `SELECT ` + assessmentColumns + ` FROM assessments` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)

	var records []models.Assessment
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list assessments: %w", err)
	}

	if err := r.fillAssignees(ctx, records); err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ListAssignedTo returns all assessments whose assignment set contains the
// given user, most recent first.
func (r *AssessmentRepository) ListAssignedTo(ctx context.Context, userID string) ([]models.Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM assessments
	WHERE id IN (SELECT assessment_id FROM assessment_assignees WHERE user_id = $1)
	ORDER BY created_at DESC`
	var records []models.Assessment
	if err := r.db.SelectContext(ctx, &records, query, userID); err != nil {
		return nil, fmt.Errorf("list assessments for user: %w", err)
	}
	if err := r.fillAssignees(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

// Update overwrites the mutable columns of an assessment.
func (r *AssessmentRepository) Update(ctx context.Context, a *models.Assessment) error {
	a.UpdatedAt = time.Now().UTC()
	const query = `UPDATE assessments SET
	title = :title, description = :description, content_type = :content_type,
	text_content = :text_content, media_locator = :media_locator, media_name = :media_name,
	media_mime = :media_mime, media_size = :media_size, due_date = :due_date, updated_at = :updated_at
	WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, a)
	if err != nil {
		return fmt.Errorf("update assessment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check assessment update rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ReplaceAssignees makes the assignment set exactly the provided IDs.
func (r *AssessmentRepository) ReplaceAssignees(ctx context.Context, assessmentID string, userIDs []string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assignees transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM assessment_assignees WHERE assessment_id = $1`, assessmentID); err != nil {
		return fmt.Errorf("clear assignees: %w", err)
	}
	if err = insertAssignees(ctx, tx, assessmentID, userIDs); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit assignees: %w", err)
	}
	return nil
}

// AddAssignees unions the provided IDs into the assignment set.
func (r *AssessmentRepository) AddAssignees(ctx context.Context, assessmentID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	const query = `INSERT INTO assessment_assignees (assessment_id, user_id)
	SELECT $1, unnest($2::text[])
	ON CONFLICT (assessment_id, user_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, assessmentID, pq.Array(userIDs)); err != nil {
		return fmt.Errorf("add assignees: %w", err)
	}
	return nil
}

// Delete removes the assessment row and its assignment set.
func (r *AssessmentRepository) Delete(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM assessment_assignees WHERE assessment_id = $1`, id); err != nil {
		return fmt.Errorf("delete assignees: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM assessments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete assessment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check assessment delete rows: %w", err)
	}
	if affected == 0 {
		err = sql.ErrNoRows
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// TitlesByIDs resolves assessment titles in one query for reporting.
func (r *AssessmentRepository) TitlesByIDs(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	const query = `SELECT id, title FROM assessments WHERE id = ANY($1)`
	rows := []struct {
		ID    string `db:"id"`
		Title string `db:"title"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("load assessment titles: %w", err)
	}
	result := make(map[string]string, len(rows))
	for _, row := range rows {
		result[row.ID] = row.Title
	}
	return result, nil
}

func (r *AssessmentRepository) fillAssignees(ctx context.Context, records []models.Assessment) error {
	if len(records) == 0 {
		return nil
	}
	ids := make([]string, len(records))
	for i := range records {
		ids[i] = records[i].ID
	}
	assignees, err := r.loadAssignees(ctx, ids)
	if err != nil {
		return err
	}
	for i := range records {
		records[i].AssignedTo = assignees[records[i].ID]
		if records[i].AssignedTo == nil {
			records[i].AssignedTo = []string{}
		}
	}
	return nil
}

func (r *AssessmentRepository) loadAssignees(ctx context.Context, assessmentIDs []string) (map[string][]string, error) {
	const query = `SELECT assessment_id, user_id FROM assessment_assignees WHERE assessment_id = ANY($1)`
	rows := []struct {
		AssessmentID string `db:"assessment_id"`
		UserID       string `db:"user_id"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(assessmentIDs)); err != nil {
		return nil, fmt.Errorf("load assignees: %w", err)
	}
	result := make(map[string][]string, len(assessmentIDs))
	for _, row := range rows {
		result[row.AssessmentID] = append(result[row.AssessmentID], row.UserID)
	}
	return result, nil
}

func insertAssignees(ctx context.Context, tx *sqlx.Tx, assessmentID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	const query = `INSERT INTO assessment_assignees (assessment_id, user_id)
	SELECT $1, unnest($2::text[])
	ON CONFLICT (assessment_id, user_id) DO NOTHING`
	if _, err := tx.ExecContext(ctx, query, assessmentID, pq.Array(userIDs)); err != nil {
		return fmt.Errorf("insert assignees: %w", err)
	}
	return nil
}
