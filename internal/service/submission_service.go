package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/edupath/assessment-api/internal/dto"
	"github.com/edupath/assessment-api/internal/models"
	"github.com/edupath/assessment-api/internal/repository"
	appErrors "github.com/edupath/assessment-api/pkg/errors"
	"github.com/edupath/assessment-api/pkg/storage"
)

type submissionLedger interface {
	Create(ctx context.Context, s *models.Submission) error
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	GetByAssessmentAndUser(ctx context.Context, assessmentID, userID string) (*models.Submission, error)
	ResubmitReplace(ctx context.Context, assessmentID, userID string, file models.FileRef) (*models.Submission, string, error)
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error)
	Delete(ctx context.Context, id string) (string, error)
}

type assessmentResolver interface {
	GetByID(ctx context.Context, id string) (*models.Assessment, error)
}

// SubmissionServiceConfig holds upload limits and URL composition settings.
type SubmissionServiceConfig struct {
	MaxFileSize   int64
	AllowedMIMEs  []string
	UploadTimeout time.Duration
	APIPrefix     string
}

// SubmissionService manages the submission ledger. Each user holds at most
// one row per assessment; resubmission overwrites it in place and an
// approved row is locked against further submits.
type SubmissionService struct {
	repo        submissionLedger
	assessments assessmentResolver
	store       storage.ObjectStore
	signer      *storage.SignedURLSigner
	cleaner     blobCleaner
	cache       *CacheService
	audit       auditLogger
	metrics     *MetricsService
	logger      *zap.Logger
	cfg         SubmissionServiceConfig
	mimeSet     map[string]struct{}
}

// NewSubmissionService constructs the service with defaults.
func NewSubmissionService(repo submissionLedger, assessments assessmentResolver, store storage.ObjectStore, signer *storage.SignedURLSigner, cleaner blobCleaner, cache *CacheService, audit auditLogger, metrics *MetricsService, logger *zap.Logger, cfg SubmissionServiceConfig) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 25 * 1024 * 1024
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 30 * time.Second
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mt := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(mt)] = struct{}{}
	}
	return &SubmissionService{
		repo:        repo,
		assessments: assessments,
		store:       store,
		signer:      signer,
		cleaner:     cleaner,
		cache:       cache,
		audit:       audit,
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
		mimeSet:     mimeSet,
	}
}

// Submit records the actor's artifact for an assessment. A first submit
// creates the row; later submits replace it unless a reviewer already
// approved it. The replaced blob is removed in the background only after
// the row switch committed.
func (s *SubmissionService) Submit(ctx context.Context, assessmentID string, upload FileUpload, actor *models.JWTClaims) (*models.Submission, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	assessment, err := s.assessments.GetByID(ctx, assessmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment")
	}
	if !assessment.IsAssigned(actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrNotAssigned, "assessment is not assigned to you")
	}

	file, err := s.validateUpload(upload)
	if err != nil {
		return nil, err
	}

	// Cheap pre-check. The authoritative lock check runs inside the
	// resubmit transaction under a row lock.
	existing, err := s.repo.GetByAssessmentAndUser(ctx, assessmentID, actor.UserID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	if existing != nil && existing.Status == models.SubmissionApproved {
		return nil, appErrors.Clone(appErrors.ErrSubmissionLocked, "submission has been approved and can no longer be replaced")
	}

	stored, err := s.uploadArtifact(ctx, upload, file)
	if err != nil {
		return nil, err
	}

	var sub *models.Submission
	if existing == nil {
		sub, err = s.createFresh(ctx, assessmentID, actor.UserID, stored)
	} else {
		sub, err = s.resubmit(ctx, assessmentID, actor.UserID, stored)
	}
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordSubmissionTransition(string(models.SubmissionPending))
	}
	s.emitAudit(ctx, actor, models.AuditActionSubmissionSubmit, sub.ID, map[string]interface{}{
		"assessmentId": assessmentID,
		"fileName":     sub.FileName,
		"fileSize":     sub.FileSize,
	})
	if s.cache != nil {
		s.cache.InvalidateUserListings(ctx, actor.UserID)
	}
	return sub, nil
}

func (s *SubmissionService) createFresh(ctx context.Context, assessmentID, userID string, file models.FileRef) (*models.Submission, error) {
	sub := &models.Submission{
		AssessmentID: assessmentID,
		UserID:       userID,
		FileLocator:  file.Locator,
		FileName:     file.OriginalName,
		FileMime:     file.MimeType,
		FileSize:     file.SizeBytes,
		Status:       models.SubmissionPending,
	}
	err := s.repo.Create(ctx, sub)
	if err == nil {
		return sub, nil
	}

	// A concurrent first submit may have won the unique constraint race;
	// fall through to the replace path in that case.
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return s.resubmit(ctx, assessmentID, userID, file)
	}

	s.cleaner.ScheduleDelete(file.Locator)
	return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record submission")
}

func (s *SubmissionService) resubmit(ctx context.Context, assessmentID, userID string, file models.FileRef) (*models.Submission, error) {
	sub, oldLocator, err := s.repo.ResubmitReplace(ctx, assessmentID, userID, file)
	if err != nil {
		s.cleaner.ScheduleDelete(file.Locator)
		if errors.Is(err, repository.ErrSubmissionApproved) {
			return nil, appErrors.Clone(appErrors.ErrSubmissionLocked, "submission has been approved and can no longer be replaced")
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace submission")
	}
	if oldLocator != "" && oldLocator != file.Locator {
		s.cleaner.ScheduleDelete(oldLocator)
	}
	return sub, nil
}

// Get returns one submission. Students only see their own rows.
func (s *SubmissionService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Submission, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	if !isAdmin(actor) && sub.UserID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "submission belongs to another user")
	}
	return sub, nil
}

// List returns submissions matching the filter.
func (s *SubmissionService) List(ctx context.Context, filter dto.SubmissionListFilter, actor *models.JWTClaims) ([]models.Submission, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	subs, err := s.repo.List(ctx, models.SubmissionFilter{
		AssessmentID: filter.AssessmentID,
		UserID:       filter.UserID,
		Status:       filter.Status,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return subs, nil
}

// Delete removes a submission row and schedules its blob for removal.
func (s *SubmissionService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}

	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}

	locator, err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete submission")
	}
	if locator != "" {
		s.cleaner.ScheduleDelete(locator)
	}

	s.emitAudit(ctx, actor, models.AuditActionSubmissionDelete, id, map[string]interface{}{
		"assessmentId": sub.AssessmentID,
		"userId":       sub.UserID,
	})
	if s.cache != nil {
		s.cache.InvalidateUserListings(ctx, sub.UserID)
	}
	return nil
}

// GetFileURL generates a signed URL for downloading the submitted artifact.
func (s *SubmissionService) GetFileURL(ctx context.Context, id string, actor *models.JWTClaims) (string, error) {
	if s.signer == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	sub, err := s.Get(ctx, id, actor)
	if err != nil {
		return "", err
	}
	token, _, err := s.signer.Generate(sub.ID, sub.FileLocator)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate download token")
	}
	base := strings.TrimRight(s.cfg.APIPrefix, "/")
	return storage.BuildRetrievalURL(
		fmt.Sprintf("%s/submissions/%s/file", base, sub.ID),
		token, storage.DispositionAttachment, sub.FileName), nil
}

// DownloadFile validates the token and opens the artifact for streaming.
func (s *SubmissionService) DownloadFile(ctx context.Context, id, token string, actor *models.JWTClaims) (*FileDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	sub, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	resourceID, locator, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	if resourceID != sub.ID || locator != sub.FileLocator {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}

	file, err := s.store.Open(locator)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open stored file")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat stored file")
	}
	return &FileDownload{
		File:      file,
		Filename:  sub.FileName,
		MimeType:  sub.FileMime,
		SizeBytes: info.Size(),
		ExpiresAt: expiresAt,
	}, nil
}

func (s *SubmissionService) validateUpload(upload FileUpload) (models.FileRef, error) {
	if len(upload.Content) == 0 {
		return models.FileRef{}, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if int64(len(upload.Content)) > s.cfg.MaxFileSize {
		return models.FileRef{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxFileSize))
	}
	mimeType := detectMimeType(&upload)
	if len(s.mimeSet) > 0 {
		if _, allowed := s.mimeSet[strings.ToLower(mimeType)]; !allowed {
			return models.FileRef{}, appErrors.Clone(appErrors.ErrValidation, "mime type not allowed")
		}
	}
	return models.FileRef{
		OriginalName: upload.Filename,
		MimeType:     mimeType,
		SizeBytes:    int64(len(upload.Content)),
	}, nil
}

func (s *SubmissionService) uploadArtifact(ctx context.Context, upload FileUpload, file models.FileRef) (models.FileRef, error) {
	uctx, cancel := context.WithTimeout(ctx, s.cfg.UploadTimeout)
	defer cancel()

	start := time.Now()
	obj, err := s.store.Upload(uctx, upload.Content, upload.Filename, file.MimeType)
	if s.metrics != nil {
		s.metrics.ObserveStorageOperation("upload", time.Since(start), err)
	}
	if err != nil {
		return models.FileRef{}, appErrors.Wrap(err, appErrors.ErrStorageUpload.Code, appErrors.ErrStorageUpload.Status, "failed to store submission file")
	}
	file.Locator = obj.Locator
	return file, nil
}

func (s *SubmissionService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, detail map[string]interface{}) {
	if s.audit == nil {
		return
	}
	var payload []byte
	if detail != nil {
		payload, _ = json.Marshal(detail)
	}
	log := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "submission",
		ResourceID: &resourceID,
		Detail:     payload,
	}
	if err := s.audit.Create(ctx, log); err != nil {
		s.logger.Warn("failed to create submission audit log", zap.Error(err))
	}
}
