package service

import (
	"context"
	"fmt"
	"html"
	"time"

	"go.uber.org/zap"

	"github.com/edupath/assessment-api/internal/models"
	"github.com/edupath/assessment-api/internal/notify"
)

const notifySendTimeout = 15 * time.Second

// NotificationService renders and dispatches workflow notifications.
// Delivery is fire-and-forget; a failed send is logged and never blocks or
// fails the triggering request.
type NotificationService struct {
	sender  notify.Sender
	enabled bool
	logger  *zap.Logger
}

// NewNotificationService constructs the service. A nil sender disables delivery.
func NewNotificationService(sender notify.Sender, enabled bool, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = notify.NoopSender{}
		enabled = false
	}
	return &NotificationService{sender: sender, enabled: enabled, logger: logger}
}

// AssessmentAssigned notifies users that a new assessment awaits them.
func (s *NotificationService) AssessmentAssigned(emails []string, title string, dueDate *time.Time) {
	if s == nil || !s.enabled || len(emails) == 0 {
		return
	}
	body := fmt.Sprintf("<p>You have been assigned a new assessment: <strong>%s</strong>.</p>", html.EscapeString(title))
	if dueDate != nil {
		body += fmt.Sprintf("<p>Due date: %s.</p>", dueDate.UTC().Format("2 January 2006 15:04 MST"))
	}
	s.dispatch(notify.Message{
		To:      emails,
		Subject: fmt.Sprintf("New assessment: %s", title),
		HTML:    body,
	})
}

// SubmissionReviewed notifies the submitter of a review decision.
func (s *NotificationService) SubmissionReviewed(email, assessmentTitle string, status models.SubmissionStatus, message *string) {
	if s == nil || !s.enabled || email == "" {
		return
	}
	verdict := "approved"
	if status == models.SubmissionRejected {
		verdict = "rejected"
	}
	body := fmt.Sprintf("<p>Your submission for <strong>%s</strong> has been %s.</p>",
		html.EscapeString(assessmentTitle), verdict)
	if message != nil && *message != "" {
		body += fmt.Sprintf("<p>Reviewer message: %s</p>", html.EscapeString(*message))
	}
	if status == models.SubmissionRejected {
		body += "<p>You may submit a revised version.</p>"
	}
	s.dispatch(notify.Message{
		To:      []string{email},
		Subject: fmt.Sprintf("Submission %s: %s", verdict, assessmentTitle),
		HTML:    body,
	})
}

func (s *NotificationService) dispatch(msg notify.Message) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifySendTimeout)
		defer cancel()
		if err := s.sender.Send(ctx, msg); err != nil {
			s.logger.Warn("notification delivery failed",
				zap.String("subject", msg.Subject),
				zap.Int("recipients", len(msg.To)),
				zap.Error(err))
		}
	}()
}
