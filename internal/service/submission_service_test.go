package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/edupath/assessment-api/internal/dto"
	"github.com/edupath/assessment-api/internal/models"
	"github.com/edupath/assessment-api/internal/repository"
	appErrors "github.com/edupath/assessment-api/pkg/errors"
	"github.com/edupath/assessment-api/pkg/storage"
)

type submissionLedgerStub struct {
	byID        map[string]*models.Submission
	byPair      map[string]*models.Submission
	createErr   error
	raceWinner  *models.Submission
	resubmitErr error
	resubmits   int
}

func newSubmissionLedgerStub() *submissionLedgerStub {
	return &submissionLedgerStub{
		byID:   make(map[string]*models.Submission),
		byPair: make(map[string]*models.Submission),
	}
}

func pairKey(assessmentID, userID string) string {
	return assessmentID + "/" + userID
}

func (r *submissionLedgerStub) put(s *models.Submission) {
	r.byID[s.ID] = s
	r.byPair[pairKey(s.AssessmentID, s.UserID)] = s
}

func (r *submissionLedgerStub) Create(ctx context.Context, s *models.Submission) error {
	if r.createErr != nil {
		if r.raceWinner != nil {
			r.put(r.raceWinner)
		}
		return r.createErr
	}
	if s.ID == "" {
		s.ID = fmt.Sprintf("sub-%d", len(r.byID)+1)
	}
	s.SubmittedAt = time.Now().UTC()
	copied := *s
	r.put(&copied)
	return nil
}

func (r *submissionLedgerStub) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	if s, ok := r.byID[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (r *submissionLedgerStub) GetByAssessmentAndUser(ctx context.Context, assessmentID, userID string) (*models.Submission, error) {
	if s, ok := r.byPair[pairKey(assessmentID, userID)]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (r *submissionLedgerStub) ResubmitReplace(ctx context.Context, assessmentID, userID string, file models.FileRef) (*models.Submission, string, error) {
	r.resubmits++
	if r.resubmitErr != nil {
		return nil, "", r.resubmitErr
	}
	current, ok := r.byPair[pairKey(assessmentID, userID)]
	if !ok {
		return nil, "", sql.ErrNoRows
	}
	if current.Status == models.SubmissionApproved {
		return nil, "", repository.ErrSubmissionApproved
	}
	old := current.FileLocator
	current.FileLocator = file.Locator
	current.FileName = file.OriginalName
	current.FileMime = file.MimeType
	current.FileSize = file.SizeBytes
	current.Status = models.SubmissionPending
	current.ReviewMessage = nil
	current.ReviewedBy = nil
	current.ReviewedAt = nil
	copied := *current
	return &copied, old, nil
}

func (r *submissionLedgerStub) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error) {
	out := make([]models.Submission, 0, len(r.byID))
	for _, s := range r.byID {
		if filter.UserID != "" && s.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (r *submissionLedgerStub) Delete(ctx context.Context, id string) (string, error) {
	s, ok := r.byID[id]
	if !ok {
		return "", sql.ErrNoRows
	}
	delete(r.byID, id)
	delete(r.byPair, pairKey(s.AssessmentID, s.UserID))
	return s.FileLocator, nil
}

type assessmentResolverStub struct {
	items map[string]*models.Assessment
}

func (r *assessmentResolverStub) GetByID(ctx context.Context, id string) (*models.Assessment, error) {
	if a, ok := r.items[id]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

type failingObjectStore struct{}

func (failingObjectStore) Upload(ctx context.Context, data []byte, suggestedName, mimeType string) (storage.Object, error) {
	return storage.Object{}, fmt.Errorf("bucket unavailable")
}

func (failingObjectStore) Delete(ctx context.Context, locator string) error { return nil }

func (failingObjectStore) Open(locator string) (*os.File, error) {
	return nil, fmt.Errorf("bucket unavailable")
}

type submissionFixture struct {
	svc         *SubmissionService
	repo        *submissionLedgerStub
	assessments *assessmentResolverStub
	audit       *auditStub
	cleaner     *cleanerStub
	cache       *cacheRepoStub
}

func newSubmissionFixture(t *testing.T) *submissionFixture {
	t.Helper()
	store, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)

	f := &submissionFixture{
		repo: newSubmissionLedgerStub(),
		assessments: &assessmentResolverStub{items: map[string]*models.Assessment{
			"assess-1": {
				ID:          "assess-1",
				Title:       "Worksheet",
				ContentType: models.ContentTypeText,
				AssignedTo:  []string{studentActor.UserID},
			},
		}},
		audit:   &auditStub{},
		cleaner: &cleanerStub{},
		cache:   newCacheRepoStub(),
	}
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	cacheSvc := NewCacheService(f.cache, nil, time.Minute, nil, true)
	f.svc = NewSubmissionService(f.repo, f.assessments, store, signer, f.cleaner, cacheSvc, f.audit, nil, nil, SubmissionServiceConfig{})
	return f
}

func sampleUpload() FileUpload {
	return FileUpload{Filename: "answer.pdf", MimeType: "application/pdf", Content: []byte("solution")}
}

func TestSubmissionServiceSubmitCreatesPending(t *testing.T) {
	f := newSubmissionFixture(t)
	sub, err := f.svc.Submit(context.Background(), "assess-1", sampleUpload(), studentActor)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionPending, sub.Status)
	require.Equal(t, "answer.pdf", sub.FileName)
	require.NotEmpty(t, sub.FileLocator)
	require.Empty(t, f.cleaner.scheduled)
	require.Len(t, f.audit.logs, 1)
	require.Equal(t, models.AuditActionSubmissionSubmit, f.audit.logs[0].Action)
}

func TestSubmissionServiceSubmitUnknownAssessment(t *testing.T) {
	f := newSubmissionFixture(t)
	_, err := f.svc.Submit(context.Background(), "missing", sampleUpload(), studentActor)
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestSubmissionServiceSubmitRequiresAssignment(t *testing.T) {
	f := newSubmissionFixture(t)
	claims := &models.JWTClaims{UserID: otherStudentID, Role: models.RoleStudent}
	_, err := f.svc.Submit(context.Background(), "assess-1", sampleUpload(), claims)
	require.True(t, appErrors.Is(err, appErrors.ErrNotAssigned))
}

func TestSubmissionServiceSubmitRequiresFile(t *testing.T) {
	f := newSubmissionFixture(t)
	_, err := f.svc.Submit(context.Background(), "assess-1", FileUpload{Filename: "empty.pdf"}, studentActor)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestSubmissionServiceResubmitReplacesBlob(t *testing.T) {
	f := newSubmissionFixture(t)
	first, err := f.svc.Submit(context.Background(), "assess-1", sampleUpload(), studentActor)
	require.NoError(t, err)

	second, err := f.svc.Submit(context.Background(), "assess-1", FileUpload{
		Filename: "better.pdf", MimeType: "application/pdf", Content: []byte("revised"),
	}, studentActor)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "better.pdf", second.FileName)
	require.Equal(t, models.SubmissionPending, second.Status)
	require.Nil(t, second.ReviewedBy)
	// The superseded blob is scheduled for removal after the row switch.
	require.Equal(t, []string{first.FileLocator}, f.cleaner.scheduled)
}

func TestSubmissionServiceSubmitLockedAfterApproval(t *testing.T) {
	f := newSubmissionFixture(t)
	reviewer := adminActor.UserID
	f.repo.put(&models.Submission{
		ID:           "sub-1",
		AssessmentID: "assess-1",
		UserID:       studentActor.UserID,
		FileLocator:  "2024/01/approved.pdf",
		Status:       models.SubmissionApproved,
		ReviewedBy:   &reviewer,
	})

	_, err := f.svc.Submit(context.Background(), "assess-1", sampleUpload(), studentActor)
	require.True(t, appErrors.Is(err, appErrors.ErrSubmissionLocked))
	// Nothing was uploaded, nothing to clean up.
	require.Empty(t, f.cleaner.scheduled)
}

func TestSubmissionServiceSubmitLockRaceCleansOrphan(t *testing.T) {
	f := newSubmissionFixture(t)
	f.repo.put(&models.Submission{
		ID:           "sub-1",
		AssessmentID: "assess-1",
		UserID:       studentActor.UserID,
		FileLocator:  "2024/01/current.pdf",
		Status:       models.SubmissionRejected,
	})
	// Approval lands between the pre-check and the row lock.
	f.repo.resubmitErr = repository.ErrSubmissionApproved

	_, err := f.svc.Submit(context.Background(), "assess-1", sampleUpload(), studentActor)
	require.True(t, appErrors.Is(err, appErrors.ErrSubmissionLocked))
	// The already uploaded replacement is scheduled for removal.
	require.Len(t, f.cleaner.scheduled, 1)
	require.NotEqual(t, "2024/01/current.pdf", f.cleaner.scheduled[0])
}

func TestSubmissionServiceSubmitUniqueRaceFallsToResubmit(t *testing.T) {
	f := newSubmissionFixture(t)
	// The pre-check saw no row, but a concurrent submit won the insert.
	f.repo.createErr = &pq.Error{Code: "23505"}
	f.repo.raceWinner = &models.Submission{
		ID:           "sub-1",
		AssessmentID: "assess-1",
		UserID:       studentActor.UserID,
		FileLocator:  "2024/01/winner.pdf",
		Status:       models.SubmissionPending,
	}

	sub, err := f.svc.Submit(context.Background(), "assess-1", sampleUpload(), studentActor)
	require.NoError(t, err)
	require.Equal(t, "sub-1", sub.ID)
	require.Equal(t, 1, f.repo.resubmits)
	require.Equal(t, []string{"2024/01/winner.pdf"}, f.cleaner.scheduled)
}

func TestSubmissionServiceSubmitUploadFailure(t *testing.T) {
	f := newSubmissionFixture(t)
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	cacheSvc := NewCacheService(f.cache, nil, time.Minute, nil, true)
	f.svc = NewSubmissionService(f.repo, f.assessments, failingObjectStore{}, signer, f.cleaner, cacheSvc, f.audit, nil, nil, SubmissionServiceConfig{})

	_, err := f.svc.Submit(context.Background(), "assess-1", sampleUpload(), studentActor)
	require.True(t, appErrors.Is(err, appErrors.ErrStorageUpload))
	require.Empty(t, f.repo.byID)
}

func TestSubmissionServiceGetOwnership(t *testing.T) {
	f := newSubmissionFixture(t)
	f.repo.put(&models.Submission{
		ID:           "sub-1",
		AssessmentID: "assess-1",
		UserID:       studentActor.UserID,
		Status:       models.SubmissionPending,
	})

	sub, err := f.svc.Get(context.Background(), "sub-1", studentActor)
	require.NoError(t, err)
	require.Equal(t, "sub-1", sub.ID)

	claims := &models.JWTClaims{UserID: otherStudentID, Role: models.RoleStudent}
	_, err = f.svc.Get(context.Background(), "sub-1", claims)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = f.svc.Get(context.Background(), "sub-1", adminActor)
	require.NoError(t, err)
}

func TestSubmissionServiceListValidatesStatus(t *testing.T) {
	f := newSubmissionFixture(t)
	_, err := f.svc.List(context.Background(), dto.SubmissionListFilter{Status: "MAYBE"}, adminActor)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.List(context.Background(), dto.SubmissionListFilter{}, studentActor)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestSubmissionServiceDeleteSchedulesBlob(t *testing.T) {
	f := newSubmissionFixture(t)
	f.repo.put(&models.Submission{
		ID:           "sub-1",
		AssessmentID: "assess-1",
		UserID:       studentActor.UserID,
		FileLocator:  "2024/01/answer.pdf",
		Status:       models.SubmissionPending,
	})

	require.NoError(t, f.svc.Delete(context.Background(), "sub-1", adminActor))
	require.Equal(t, []string{"2024/01/answer.pdf"}, f.cleaner.scheduled)
	require.Empty(t, f.repo.byID)
}

func TestSubmissionServiceFileURLRoundTrip(t *testing.T) {
	f := newSubmissionFixture(t)
	sub, err := f.svc.Submit(context.Background(), "assess-1", sampleUpload(), studentActor)
	require.NoError(t, err)

	url, err := f.svc.GetFileURL(context.Background(), sub.ID, studentActor)
	require.NoError(t, err)
	require.Contains(t, url, fmt.Sprintf("/api/v1/submissions/%s/file", sub.ID))
	require.Contains(t, url, "disposition=attachment")

	token, _, err := storage.NewSignedURLSigner("test-secret", time.Minute).Generate(sub.ID, sub.FileLocator)
	require.NoError(t, err)
	download, err := f.svc.DownloadFile(context.Background(), sub.ID, token, studentActor)
	require.NoError(t, err)
	defer download.File.Close()
	require.Equal(t, "answer.pdf", download.Filename)
	require.Equal(t, int64(len("solution")), download.SizeBytes)
}

func TestSubmissionServiceDownloadFileRejectsForeignToken(t *testing.T) {
	f := newSubmissionFixture(t)
	sub, err := f.svc.Submit(context.Background(), "assess-1", sampleUpload(), studentActor)
	require.NoError(t, err)

	token, _, err := storage.NewSignedURLSigner("test-secret", time.Minute).Generate("other-sub", sub.FileLocator)
	require.NoError(t, err)
	_, err = f.svc.DownloadFile(context.Background(), sub.ID, token, studentActor)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}
