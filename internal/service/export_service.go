package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/oncall-api/internal/models"
	appErrors "github.com/noah-isme/oncall-api/pkg/errors"
	"github.com/noah-isme/oncall-api/pkg/export"
)

type monthLister interface {
	MonthAssignments(ctx context.Context, month string) ([]models.HistoricalAssignment, error)
}

// ExportService renders a month of frozen on-call history as a downloadable
// roster.
type ExportService struct {
	ledger monthLister
	logger *zap.Logger
}

// NewExportService constructs the export service.
func NewExportService(ledger monthLister, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{ledger: ledger, logger: logger}
}

// ExportResult carries rendered bytes plus HTTP response metadata.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// MonthlyRoster renders the frozen assignments for a month in the requested
// format ("csv" or "pdf").
func (s *ExportService) MonthlyRoster(ctx context.Context, month, format string) (*ExportResult, error) {
	recs, err := s.ledger.MonthAssignments(ctx, month)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no assignments recorded for %s", month))
	}

	roster := buildRoster(month, recs)

	switch format {
	case "csv", "":
		data, err := export.RenderCSV(roster)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render csv roster")
		}
		return &ExportResult{
			Filename:    fmt.Sprintf("oncall-roster-%s.csv", month),
			ContentType: "text/csv",
			Data:        data,
		}, nil
	case "pdf":
		data, err := export.RenderPDF(roster)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render pdf roster")
		}
		return &ExportResult{
			Filename:    fmt.Sprintf("oncall-roster-%s.pdf", month),
			ContentType: "application/pdf",
			Data:        data,
		}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
}

func buildRoster(month string, recs []models.HistoricalAssignment) export.Roster {
	rows := make([]map[string]string, 0, len(recs))
	for _, rec := range recs {
		overridden := "no"
		if rec.OverrideID != nil {
			overridden = "yes"
		}
		rows = append(rows, map[string]string{
			"Date":       rec.Date,
			"Layer":      rec.LayerKey,
			"Person":     rec.Person,
			"Version":    fmt.Sprintf("%d", rec.VersionID),
			"Overridden": overridden,
		})
	}
	return export.Roster{
		Month:   month,
		Headers: []string{"Date", "Layer", "Person", "Version", "Overridden"},
		Rows:    rows,
	}
}
