package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edupath/assessment-api/internal/dto"
	"github.com/edupath/assessment-api/internal/models"
	appErrors "github.com/edupath/assessment-api/pkg/errors"
	"github.com/edupath/assessment-api/pkg/storage"
)

type assessmentStore interface {
	Create(ctx context.Context, a *models.Assessment) error
	GetByID(ctx context.Context, id string) (*models.Assessment, error)
	List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, int, error)
	ListAssignedTo(ctx context.Context, userID string) ([]models.Assessment, error)
	Update(ctx context.Context, a *models.Assessment) error
	ReplaceAssignees(ctx context.Context, assessmentID string, userIDs []string) error
	AddAssignees(ctx context.Context, assessmentID string, userIDs []string) error
	Delete(ctx context.Context, id string) error
}

type submissionCascader interface {
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error)
	DeleteByAssessment(ctx context.Context, assessmentID string) ([]string, error)
}

type userDirectory interface {
	ListByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

type auditLogger interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

type blobCleaner interface {
	ScheduleDelete(locator string)
}

// FileUpload carries an incoming file already read from the request.
type FileUpload struct {
	Filename string
	MimeType string
	Content  []byte
}

// FileDownload bundles an opened blob with presentation metadata.
type FileDownload struct {
	File      *os.File
	Filename  string
	MimeType  string
	SizeBytes int64
	ExpiresAt time.Time
}

// AssessmentServiceConfig holds upload limits and URL composition settings.
type AssessmentServiceConfig struct {
	MaxFileSize   int64
	AllowedMIMEs  []string
	UploadTimeout time.Duration
	APIPrefix     string
}

// AssessmentService manages the assessment registry: authoring, assignment
// and the media payload lifecycle.
type AssessmentService struct {
	repo        assessmentStore
	submissions submissionCascader
	users       userDirectory
	store       storage.ObjectStore
	signer      *storage.SignedURLSigner
	cleaner     blobCleaner
	cache       *CacheService
	audit       auditLogger
	notifier    *NotificationService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         AssessmentServiceConfig
	mimeSet     map[string]struct{}
}

// NewAssessmentService constructs the service with defaults.
func NewAssessmentService(repo assessmentStore, submissions submissionCascader, users userDirectory, store storage.ObjectStore, signer *storage.SignedURLSigner, cleaner blobCleaner, cache *CacheService, audit auditLogger, notifier *NotificationService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg AssessmentServiceConfig) *AssessmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
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
	return &AssessmentService{
		repo:        repo,
		submissions: submissions,
		users:       users,
		store:       store,
		signer:      signer,
		cleaner:     cleaner,
		cache:       cache,
		audit:       audit,
		notifier:    notifier,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		mimeSet:     mimeSet,
	}
}

// Create authors a new assessment. Media assessments upload their blob
// before the row is written; a failed upload fails the whole creation.
func (s *AssessmentService) Create(ctx context.Context, req dto.CreateAssessmentRequest, media *FileUpload, actor *models.JWTClaims) (*models.Assessment, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assessment payload")
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title is required")
	}

	assignedTo := dedupIDs(req.AssignedTo)
	if err := s.verifyUsersExist(ctx, assignedTo); err != nil {
		return nil, err
	}

	a := &models.Assessment{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		ContentType: req.ContentType,
		DueDate:     req.DueDate,
		AssignedTo:  assignedTo,
		CreatedBy:   actor.UserID,
	}

	switch req.ContentType {
	case models.ContentTypeText:
		if media != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "text assessments do not accept a media file")
		}
		if req.TextContent == nil || strings.TrimSpace(*req.TextContent) == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "textContent is required for TEXT assessments")
		}
		a.TextContent = req.TextContent
	case models.ContentTypeMedia:
		if req.TextContent != nil && strings.TrimSpace(*req.TextContent) != "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "media assessments do not accept textContent")
		}
		ref, err := s.uploadBlob(ctx, media)
		if err != nil {
			return nil, err
		}
		setMedia(a, ref)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "contentType must be TEXT or MEDIA")
	}

	if err := s.repo.Create(ctx, a); err != nil {
		if loc := a.MediaLocator; loc != nil {
			s.cleaner.ScheduleDelete(*loc)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assessment")
	}

	s.emitAudit(ctx, actor, models.AuditActionAssessmentCreate, a.ID, map[string]interface{}{
		"title":       a.Title,
		"contentType": a.ContentType,
		"assignees":   len(a.AssignedTo),
	})
	s.notifyAssigned(ctx, a, a.AssignedTo)
	if s.cache != nil {
		s.cache.InvalidateUserListings(ctx, a.AssignedTo...)
	}
	return a, nil
}

// Get returns one assessment. Students only see assessments assigned to them.
func (s *AssessmentService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Assessment, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment")
	}
	if !isAdmin(actor) && !a.IsAssigned(actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrNotAssigned, "assessment is not assigned to you")
	}
	return a, nil
}

// List returns assessments matching the filter with a total count.
func (s *AssessmentService) List(ctx context.Context, filter dto.AssessmentListFilter, actor *models.JWTClaims) ([]models.Assessment, int, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, 0, err
	}
	items, total, err := s.repo.List(ctx, models.AssessmentFilter{
		AssignedUserID: filter.AssignedUserID,
		CreatedBy:      filter.CreatedBy,
		Search:         filter.Search,
		Page:           filter.Page,
		PageSize:       filter.PageSize,
	})
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assessments")
	}
	return items, total, nil
}

// ListForUser returns the actor's assigned assessments paired with their
// current submissions. Results are cached per user.
func (s *AssessmentService) ListForUser(ctx context.Context, actor *models.JWTClaims) ([]models.AssessmentWithSubmission, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	cacheKey := UserAssessmentsCacheKey(actor.UserID)
	var cached []models.AssessmentWithSubmission
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return cached, nil
	}

	assessments, err := s.repo.ListAssignedTo(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assigned assessments")
	}

	subs, err := s.submissions.List(ctx, models.SubmissionFilter{UserID: actor.UserID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submissions")
	}
	byAssessment := make(map[string]*models.Submission, len(subs))
	for i := range subs {
		byAssessment[subs[i].AssessmentID] = &subs[i]
	}

	result := make([]models.AssessmentWithSubmission, 0, len(assessments))
	for _, a := range assessments {
		result = append(result, models.AssessmentWithSubmission{
			Assessment: a,
			Submission: byAssessment[a.ID],
		})
	}

	if err := s.cache.Set(ctx, cacheKey, result, 0); err != nil {
		s.logger.Debug("failed to cache user assessments", zap.String("user_id", actor.UserID), zap.Error(err))
	}
	return result, nil
}

// Update applies a partial update. Switching content type clears the other
// payload; a replaced or abandoned media blob is deleted in the background
// only after the row update succeeds.
func (s *AssessmentService) Update(ctx context.Context, id string, req dto.UpdateAssessmentRequest, media *FileUpload, actor *models.JWTClaims) (*models.Assessment, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment")
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "title cannot be empty")
		}
		a.Title = title
	}
	if req.Description != nil {
		a.Description = req.Description
	}
	if req.ClearDueDate {
		a.DueDate = nil
	} else if req.DueDate != nil {
		a.DueDate = req.DueDate
	}

	targetType := a.ContentType
	if req.ContentType != nil {
		targetType = *req.ContentType
	}

	var obsoleteLocator, newLocator string

	switch targetType {
	case models.ContentTypeText:
		if media != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "text assessments do not accept a media file")
		}
		if req.TextContent != nil {
			if strings.TrimSpace(*req.TextContent) == "" {
				return nil, appErrors.Clone(appErrors.ErrValidation, "textContent cannot be empty")
			}
			a.TextContent = req.TextContent
		}
		if a.TextContent == nil || strings.TrimSpace(*a.TextContent) == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "textContent is required for TEXT assessments")
		}
		if a.MediaLocator != nil {
			obsoleteLocator = *a.MediaLocator
			clearMedia(a)
		}
	case models.ContentTypeMedia:
		if req.TextContent != nil && strings.TrimSpace(*req.TextContent) != "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "media assessments do not accept textContent")
		}
		if media != nil {
			ref, err := s.uploadBlob(ctx, media)
			if err != nil {
				return nil, err
			}
			if a.MediaLocator != nil {
				obsoleteLocator = *a.MediaLocator
			}
			setMedia(a, ref)
			newLocator = ref.Locator
		} else if a.MediaLocator == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "a media file is required when switching to MEDIA")
		}
		a.TextContent = nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "contentType must be TEXT or MEDIA")
	}
	a.ContentType = targetType

	if err := s.repo.Update(ctx, a); err != nil {
		if newLocator != "" {
			s.cleaner.ScheduleDelete(newLocator)
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assessment")
	}

	if obsoleteLocator != "" {
		s.cleaner.ScheduleDelete(obsoleteLocator)
	}
	s.emitAudit(ctx, actor, models.AuditActionAssessmentUpdate, a.ID, map[string]interface{}{
		"contentType": a.ContentType,
	})
	if s.cache != nil {
		s.cache.InvalidateUserListings(ctx, a.AssignedTo...)
	}
	return a, nil
}

// AssignUsers replaces or extends the assignment set.
func (s *AssessmentService) AssignUsers(ctx context.Context, id string, req dto.AssignUsersRequest, actor *models.JWTClaims) (*models.Assessment, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	userIDs := dedupIDs(req.UserIDs)
	if err := s.verifyUsersExist(ctx, userIDs); err != nil {
		return nil, err
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment")
	}
	previous := a.AssignedTo

	switch req.Mode {
	case dto.AssignModeReplace:
		err = s.repo.ReplaceAssignees(ctx, id, userIDs)
	case dto.AssignModeAppend:
		err = s.repo.AddAssignees(ctx, id, userIDs)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "mode must be replace or append")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment set")
	}

	updated, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload assessment")
	}

	s.emitAudit(ctx, actor, models.AuditActionAssessmentAssign, id, map[string]interface{}{
		"mode":  req.Mode,
		"count": len(userIDs),
	})

	added := difference(updated.AssignedTo, previous)
	s.notifyAssigned(ctx, updated, added)
	if s.cache != nil {
		s.cache.InvalidateUserListings(ctx, union(previous, updated.AssignedTo)...)
	}
	return updated, nil
}

// Delete removes the assessment, its assignment set, all submissions and
// every associated blob. Blob removal is best-effort and happens after the
// rows are gone.
func (s *AssessmentService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment")
	}

	submissionLocators, err := s.submissions.DeleteByAssessment(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete submissions")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assessment")
	}

	if a.MediaLocator != nil {
		s.cleaner.ScheduleDelete(*a.MediaLocator)
	}
	for _, locator := range submissionLocators {
		s.cleaner.ScheduleDelete(locator)
	}

	s.emitAudit(ctx, actor, models.AuditActionAssessmentDelete, id, map[string]interface{}{
		"title":       a.Title,
		"submissions": len(submissionLocators),
	})
	if s.cache != nil {
		s.cache.InvalidateUserListings(ctx, a.AssignedTo...)
	}
	return nil
}

// GetMediaURL generates a signed URL for viewing the assessment media.
func (s *AssessmentService) GetMediaURL(ctx context.Context, id string, actor *models.JWTClaims) (string, error) {
	if s.signer == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	a, err := s.Get(ctx, id, actor)
	if err != nil {
		return "", err
	}
	media := a.Media()
	if media == nil {
		return "", appErrors.Clone(appErrors.ErrNotFound, "assessment has no media")
	}
	token, _, err := s.signer.Generate(a.ID, media.Locator)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate download token")
	}
	base := strings.TrimRight(s.cfg.APIPrefix, "/")
	return storage.BuildRetrievalURL(
		fmt.Sprintf("%s/assessments/%s/media", base, a.ID),
		token, storage.DispositionInline, media.OriginalName), nil
}

// DownloadMedia validates the token and opens the media blob for streaming.
func (s *AssessmentService) DownloadMedia(ctx context.Context, id, token string, actor *models.JWTClaims) (*FileDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	a, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	media := a.Media()
	if media == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment has no media")
	}
	resourceID, locator, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	if resourceID != a.ID || locator != media.Locator {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	return s.openBlob(media, expiresAt)
}

func (s *AssessmentService) openBlob(ref *models.FileRef, expiresAt time.Time) (*FileDownload, error) {
	file, err := s.store.Open(ref.Locator)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open stored file")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat stored file")
	}
	filename := ref.OriginalName
	if filename == "" {
		filename = path.Base(ref.Locator)
	}
	return &FileDownload{
		File:      file,
		Filename:  filename,
		MimeType:  ref.MimeType,
		SizeBytes: info.Size(),
		ExpiresAt: expiresAt,
	}, nil
}

func (s *AssessmentService) uploadBlob(ctx context.Context, upload *FileUpload) (models.FileRef, error) {
	if upload == nil || len(upload.Content) == 0 {
		return models.FileRef{}, appErrors.Clone(appErrors.ErrValidation, "a media file is required for MEDIA assessments")
	}
	if int64(len(upload.Content)) > s.cfg.MaxFileSize {
		return models.FileRef{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxFileSize))
	}
	mimeType := detectMimeType(upload)
	if len(s.mimeSet) > 0 {
		if _, allowed := s.mimeSet[strings.ToLower(mimeType)]; !allowed {
			return models.FileRef{}, appErrors.Clone(appErrors.ErrValidation, "mime type not allowed")
		}
	}

	uctx, cancel := context.WithTimeout(ctx, s.cfg.UploadTimeout)
	defer cancel()

	start := time.Now()
	obj, err := s.store.Upload(uctx, upload.Content, upload.Filename, mimeType)
	if s.metrics != nil {
		s.metrics.ObserveStorageOperation("upload", time.Since(start), err)
	}
	if err != nil {
		return models.FileRef{}, appErrors.Wrap(err, appErrors.ErrStorageUpload.Code, appErrors.ErrStorageUpload.Status, "failed to store media file")
	}
	return models.FileRef{
		Locator:      obj.Locator,
		OriginalName: upload.Filename,
		MimeType:     mimeType,
		SizeBytes:    int64(len(upload.Content)),
	}, nil
}

func (s *AssessmentService) verifyUsersExist(ctx context.Context, ids []string) error {
	if len(ids) == 0 || s.users == nil {
		return nil
	}
	found, err := s.users.ListByIDs(ctx, ids)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify users")
	}
	if len(found) != len(ids) {
		return appErrors.Clone(appErrors.ErrValidation, "assignedTo contains unknown user ids")
	}
	return nil
}

func (s *AssessmentService) notifyAssigned(ctx context.Context, a *models.Assessment, userIDs []string) {
	if s.notifier == nil || s.users == nil || len(userIDs) == 0 {
		return
	}
	users, err := s.users.ListByIDs(ctx, userIDs)
	if err != nil {
		s.logger.Warn("failed to load assignees for notification", zap.Error(err))
		return
	}
	emails := make([]string, 0, len(users))
	for _, u := range users {
		if u.Email != "" {
			emails = append(emails, u.Email)
		}
	}
	s.notifier.AssessmentAssigned(emails, a.Title, a.DueDate)
}

func (s *AssessmentService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, detail map[string]interface{}) {
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
		Resource:   "assessment",
		ResourceID: &resourceID,
		Detail:     payload,
	}
	if err := s.audit.Create(ctx, log); err != nil {
		s.logger.Warn("failed to create assessment audit log", zap.Error(err))
	}
}

func requireAdmin(actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !isAdmin(actor) {
		return appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	return nil
}

func isAdmin(actor *models.JWTClaims) bool {
	return actor != nil && actor.Role.Admin()
}

func setMedia(a *models.Assessment, ref models.FileRef) {
	a.MediaLocator = &ref.Locator
	a.MediaName = &ref.OriginalName
	a.MediaMime = &ref.MimeType
	a.MediaSize = &ref.SizeBytes
}

func clearMedia(a *models.Assessment) {
	a.MediaLocator = nil
	a.MediaName = nil
	a.MediaMime = nil
	a.MediaSize = nil
}

func detectMimeType(upload *FileUpload) string {
	if upload.MimeType != "" {
		return upload.MimeType
	}
	n := len(upload.Content)
	if n > 512 {
		n = 512
	}
	return http.DetectContentType(upload.Content[:n])
}

func dedupIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func difference(current, previous []string) []string {
	prev := make(map[string]struct{}, len(previous))
	for _, id := range previous {
		prev[id] = struct{}{}
	}
	out := make([]string, 0, len(current))
	for _, id := range current {
		if _, ok := prev[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func union(a, b []string) []string {
	return dedupIDs(append(append([]string{}, a...), b...))
}
