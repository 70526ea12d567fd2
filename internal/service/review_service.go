package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edupath/assessment-api/internal/dto"
	"github.com/edupath/assessment-api/internal/models"
	appErrors "github.com/edupath/assessment-api/pkg/errors"
)

type reviewLedger interface {
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	Review(ctx context.Context, id string, status models.SubmissionStatus, message *string, reviewerID string, reviewedAt time.Time) error
}

type submitterResolver interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ReviewService coordinates admin decisions on submissions. A decision may
// be revised later: re-reviewing an approved submission back to rejected
// unlocks it for resubmission.
type ReviewService struct {
	repo        reviewLedger
	assessments assessmentResolver
	users       submitterResolver
	audit       auditLogger
	notifier    *NotificationService
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewReviewService constructs the service.
func NewReviewService(repo reviewLedger, assessments assessmentResolver, users submitterResolver, audit auditLogger, notifier *NotificationService, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ReviewService{
		repo:        repo,
		assessments: assessments,
		users:       users,
		audit:       audit,
		notifier:    notifier,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// Review applies an approve or reject decision to a submission.
func (s *ReviewService) Review(ctx context.Context, submissionID string, req dto.ReviewRequest, actor *models.JWTClaims) (*models.Submission, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "decision must be APPROVED or REJECTED")
	}

	sub, err := s.repo.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}

	reviewedAt := time.Now().UTC()
	if err := s.repo.Review(ctx, submissionID, req.Decision, req.Message, actor.UserID, reviewedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record review")
	}

	previousStatus := sub.Status
	sub.Status = req.Decision
	sub.ReviewMessage = req.Message
	sub.ReviewedBy = &actor.UserID
	sub.ReviewedAt = &reviewedAt
	sub.UpdatedAt = reviewedAt

	if s.metrics != nil {
		s.metrics.RecordSubmissionTransition(string(req.Decision))
	}
	s.emitAudit(ctx, actor, sub, previousStatus)
	s.notifySubmitter(ctx, sub)
	if s.cache != nil {
		s.cache.InvalidateUserListings(ctx, sub.UserID)
	}
	return sub, nil
}

func (s *ReviewService) notifySubmitter(ctx context.Context, sub *models.Submission) {
	if s.notifier == nil || s.users == nil {
		return
	}
	user, err := s.users.FindByID(ctx, sub.UserID)
	if err != nil {
		s.logger.Warn("failed to load submitter for notification", zap.String("user_id", sub.UserID), zap.Error(err))
		return
	}
	title := "your assessment"
	if s.assessments != nil {
		if a, err := s.assessments.GetByID(ctx, sub.AssessmentID); err == nil {
			title = a.Title
		}
	}
	s.notifier.SubmissionReviewed(user.Email, title, sub.Status, sub.ReviewMessage)
}

func (s *ReviewService) emitAudit(ctx context.Context, actor *models.JWTClaims, sub *models.Submission, previous models.SubmissionStatus) {
	if s.audit == nil {
		return
	}
	detail, _ := json.Marshal(map[string]interface{}{
		"assessmentId": sub.AssessmentID,
		"userId":       sub.UserID,
		"from":         previous,
		"to":           sub.Status,
	})
	log := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionSubmissionReview,
		Resource:   "submission",
		ResourceID: &sub.ID,
		Detail:     detail,
	}
	if err := s.audit.Create(ctx, log); err != nil {
		s.logger.Warn("failed to create review audit log", zap.Error(err))
	}
}
