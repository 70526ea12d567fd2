package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/edupath/assessment-api/internal/models"
)

func submissionRows(status models.SubmissionStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "assessment_id", "user_id", "file_locator", "file_name",
		"file_mime", "file_size", "status", "review_message", "reviewed_by", "reviewed_at",
		"submitted_at", "updated_at"}).
		AddRow("sub-1", "assess-1", "user-1", "blobs/old.pdf", "old.pdf",
			"application/pdf", int64(1024), status, nil, nil, nil, time.Now(), time.Now())
}

func TestSubmissionRepositoryCreateDefaultsPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assessment_submissions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	s := &models.Submission{
		AssessmentID: "assess-1",
		UserID:       "user-1",
		FileLocator:  "blobs/answer.pdf",
		FileName:     "answer.pdf",
		FileMime:     "application/pdf",
		FileSize:     2048,
	}
	require.NoError(t, repo.Create(context.Background(), s))
	require.NotEmpty(t, s.ID)
	require.Equal(t, models.SubmissionPending, s.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryResubmitReplace(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("assess-1", "user-1").
		WillReturnRows(submissionRows(models.SubmissionRejected))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE assessment_submissions SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	file := models.FileRef{
		Locator:      "blobs/new.pdf",
		OriginalName: "new.pdf",
		MimeType:     "application/pdf",
		SizeBytes:    4096,
	}
	sub, oldLocator, err := repo.ResubmitReplace(context.Background(), "assess-1", "user-1", file)
	require.NoError(t, err)
	require.Equal(t, "blobs/old.pdf", oldLocator)
	require.Equal(t, "blobs/new.pdf", sub.FileLocator)
	require.Equal(t, models.SubmissionPending, sub.Status)
	require.Nil(t, sub.ReviewMessage)
	require.Nil(t, sub.ReviewedBy)
	require.Nil(t, sub.ReviewedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryResubmitRejectsApproved(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("assess-1", "user-1").
		WillReturnRows(submissionRows(models.SubmissionApproved))
	mock.ExpectRollback()

	_, _, err := repo.ResubmitReplace(context.Background(), "assess-1", "user-1", models.FileRef{Locator: "blobs/new.pdf"})
	require.ErrorIs(t, err, ErrSubmissionApproved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryResubmitMissingRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("assess-1", "user-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, _, err := repo.ResubmitReplace(context.Background(), "assess-1", "user-1", models.FileRef{Locator: "blobs/new.pdf"})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, assessment_id, user_id")).
		WithArgs("assess-1", "PENDING").
		WillReturnRows(submissionRows(models.SubmissionPending))

	items, err := repo.List(context.Background(), models.SubmissionFilter{
		AssessmentID: "assess-1",
		Status:       models.SubmissionPending,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "sub-1", items[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryReview(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	message := "well done"
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE assessment_submissions SET")).
		WithArgs("sub-1", "APPROVED", &message, "admin-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Review(context.Background(), "sub-1", models.SubmissionApproved, &message, "admin-1", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryReviewNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE assessment_submissions SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Review(context.Background(), "missing", models.SubmissionRejected, nil, "admin-1", time.Now())
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryDeleteReturnsLocator(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM assessment_submissions WHERE id = $1 RETURNING file_locator")).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"file_locator"}).AddRow("blobs/answer.pdf"))

	locator, err := repo.Delete(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Equal(t, "blobs/answer.pdf", locator)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryDeleteByAssessment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM assessment_submissions WHERE assessment_id = $1 RETURNING file_locator")).
		WithArgs("assess-1").
		WillReturnRows(sqlmock.NewRows([]string{"file_locator"}).
			AddRow("blobs/a.pdf").
			AddRow("blobs/b.pdf"))

	locators, err := repo.DeleteByAssessment(context.Background(), "assess-1")
	require.NoError(t, err)
	require.Equal(t, []string{"blobs/a.pdf", "blobs/b.pdf"}, locators)
	require.NoError(t, mock.ExpectationsWereMet())
}
