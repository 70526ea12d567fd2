package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edupath/assessment-api/internal/dto"
	"github.com/edupath/assessment-api/internal/models"
	appErrors "github.com/edupath/assessment-api/pkg/errors"
	"github.com/edupath/assessment-api/pkg/export"
)

type exportSubmissionLister interface {
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error)
}

type assessmentTitleResolver interface {
	TitlesByIDs(ctx context.Context, ids []string) (map[string]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportResult carries a rendered submissions report.
type ExportResult struct {
	Filename string
	MimeType string
	Payload  []byte
}

// ExportService renders submission reports as CSV or PDF.
type ExportService struct {
	submissions exportSubmissionLister
	assessments assessmentTitleResolver
	users       userDirectory
	csv         csvRenderer
	pdf         pdfRenderer
	logger      *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(submissions exportSubmissionLister, assessments assessmentTitleResolver, users userDirectory, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		submissions: submissions,
		assessments: assessments,
		users:       users,
		csv:         csv,
		pdf:         pdf,
		logger:      logger,
	}
}

// exportPageSize matches the repository's maximum page size; the report
// pages through the ledger until exhaustion so it never truncates.
const exportPageSize = 500

// Generate builds the submissions dataset and renders the requested format.
func (s *ExportService) Generate(ctx context.Context, filter dto.SubmissionListFilter, format dto.ExportFormat, actor *models.JWTClaims) (*ExportResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	page := models.SubmissionFilter{
		AssessmentID: filter.AssessmentID,
		UserID:       filter.UserID,
		Status:       filter.Status,
		Limit:        exportPageSize,
	}
	var subs []models.Submission
	for {
		batch, err := s.submissions.List(ctx, page)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submissions")
		}
		subs = append(subs, batch...)
		if len(batch) < exportPageSize {
			break
		}
		page.Offset += exportPageSize
	}

	dataset := s.buildDataset(ctx, subs)
	title := "Submissions Report"

	generatedAt := time.Now().UTC().Format("20060102_150405")
	switch format {
	case dto.ExportFormatCSV:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv report")
		}
		return &ExportResult{
			Filename: fmt.Sprintf("submissions_%s.csv", generatedAt),
			MimeType: "text/csv",
			Payload:  payload,
		}, nil
	case dto.ExportFormatPDF:
		payload, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf report")
		}
		return &ExportResult{
			Filename: fmt.Sprintf("submissions_%s.pdf", generatedAt),
			MimeType: "application/pdf",
			Payload:  payload,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func (s *ExportService) buildDataset(ctx context.Context, subs []models.Submission) export.Dataset {
	headers := []string{"Assessment", "User", "File", "Size (bytes)", "Status", "Submitted At", "Reviewed By", "Reviewed At", "Message"}

	userIDs := make([]string, 0, len(subs))
	assessmentIDs := make([]string, 0, len(subs))
	seen := map[string]struct{}{}
	seenAssessments := map[string]struct{}{}
	for _, sub := range subs {
		if _, ok := seen[sub.UserID]; !ok {
			seen[sub.UserID] = struct{}{}
			userIDs = append(userIDs, sub.UserID)
		}
		if sub.ReviewedBy != nil {
			if _, ok := seen[*sub.ReviewedBy]; !ok {
				seen[*sub.ReviewedBy] = struct{}{}
				userIDs = append(userIDs, *sub.ReviewedBy)
			}
		}
		if _, ok := seenAssessments[sub.AssessmentID]; !ok {
			seenAssessments[sub.AssessmentID] = struct{}{}
			assessmentIDs = append(assessmentIDs, sub.AssessmentID)
		}
	}

	userNames := map[string]string{}
	if s.users != nil && len(userIDs) > 0 {
		users, err := s.users.ListByIDs(ctx, userIDs)
		if err != nil {
			s.logger.Warn("failed to resolve user names for report", zap.Error(err))
		}
		for _, u := range users {
			userNames[u.ID] = u.FullName
		}
	}

	titles := map[string]string{}
	if s.assessments != nil && len(assessmentIDs) > 0 {
		resolved, err := s.assessments.TitlesByIDs(ctx, assessmentIDs)
		if err != nil {
			s.logger.Warn("failed to resolve assessment titles for report", zap.Error(err))
		}
		for id, title := range resolved {
			titles[id] = title
		}
	}
	resolveTitle := func(assessmentID string) string {
		if title, ok := titles[assessmentID]; ok && title != "" {
			return title
		}
		return assessmentID
	}

	resolveName := func(userID string) string {
		if name, ok := userNames[userID]; ok && name != "" {
			return name
		}
		return userID
	}

	rows := make([]map[string]string, 0, len(subs))
	for _, sub := range subs {
		row := map[string]string{
			"Assessment":   resolveTitle(sub.AssessmentID),
			"User":         resolveName(sub.UserID),
			"File":         sub.FileName,
			"Size (bytes)": fmt.Sprintf("%d", sub.FileSize),
			"Status":       string(sub.Status),
			"Submitted At": sub.SubmittedAt.UTC().Format(time.RFC3339),
			"Reviewed By":  "",
			"Reviewed At":  "",
			"Message":      "",
		}
		if sub.ReviewedBy != nil {
			row["Reviewed By"] = resolveName(*sub.ReviewedBy)
		}
		if sub.ReviewedAt != nil {
			row["Reviewed At"] = sub.ReviewedAt.UTC().Format(time.RFC3339)
		}
		if sub.ReviewMessage != nil {
			row["Message"] = *sub.ReviewMessage
		}
		rows = append(rows, row)
	}

	return export.Dataset{Headers: headers, Rows: rows}
}
