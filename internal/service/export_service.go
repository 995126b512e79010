package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/conference-timetable/internal/models"
	appErrors "github.com/noah-isme/conference-timetable/pkg/errors"
	"github.com/noah-isme/conference-timetable/pkg/export"
)

// Supported export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type auditProvider interface {
	Audit(ctx context.Context, eventID string) (*models.AuditReport, bool, error)
}

type reportStorage interface {
	Save(filename string, data []byte) (string, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	Enabled   bool
	Retention time.Duration
}

// ExportResult is a rendered report ready for download.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders audit reports as CSV or PDF and keeps sweep
// summaries in report storage.
type ExportService struct {
	audits  auditProvider
	storage reportStorage
	csv     datasetRenderer
	pdf     datasetRenderer
	logger  *zap.Logger
	cfg     ExportConfig
	now     func() time.Time
}

// NewExportService constructs an ExportService. storage may be nil when
// sweep summaries are not kept.
func NewExportService(audits auditProvider, storage reportStorage, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	return &ExportService{
		audits:  audits,
		storage: storage,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// ExportViolations renders the current audit of an event.
func (s *ExportService) ExportViolations(ctx context.Context, eventID, format string) (*ExportResult, error) {
	if !s.cfg.Enabled {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "violation exports are disabled")
	}
	renderer, err := s.renderer(format)
	if err != nil {
		return nil, err
	}
	report, _, err := s.audits.Audit(ctx, eventID)
	if err != nil {
		return nil, err
	}
	payload, err := renderer.Render(ViolationDataset(*report))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render violation report")
	}
	return &ExportResult{
		Filename:    fmt.Sprintf("violations_%s_%s.%s", sanitizeFilename(eventID), s.now().UTC().Format("20060102_150405"), strings.ToLower(format)),
		ContentType: renderer.ContentType(),
		Data:        payload,
	}, nil
}

func (s *ExportService) renderer(format string) (datasetRenderer, error) {
	switch strings.ToLower(format) {
	case ExportFormatCSV:
		return s.csv, nil
	case ExportFormatPDF:
		return s.pdf, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q, use csv or pdf", format))
	}
}

// SaveSweepReport stores a CSV summary of one sweep run and returns its
// relative path. Without storage it does nothing.
func (s *ExportService) SaveSweepReport(runID string, reports []models.AuditReport) (string, error) {
	if s.storage == nil {
		return "", nil
	}
	payload, err := s.csv.Render(SweepDataset(reports))
	if err != nil {
		return "", fmt.Errorf("render sweep report: %w", err)
	}
	name := fmt.Sprintf("sweeps/%s_%s.csv", s.now().UTC().Format("20060102_150405"), sanitizeFilename(runID))
	return s.storage.Save(name, payload)
}

// Cleanup removes stored reports older than ttl, or the configured
// retention when ttl <= 0.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if s.storage == nil {
		return nil, nil
	}
	if ttl <= 0 {
		ttl = s.cfg.Retention
	}
	deleted, err := s.storage.CleanupOlderThan(ttl)
	if err != nil {
		return nil, err
	}
	if len(deleted) > 0 {
		s.logger.Info("expired reports removed", zap.Int("count", len(deleted)))
	}
	return deleted, nil
}

// ViolationDataset lays out one audit report, one row per violation.
func ViolationDataset(report models.AuditReport) export.Dataset {
	rows := make([]map[string]string, 0, len(report.Violations))
	for _, v := range report.Violations {
		rows = append(rows, map[string]string{
			"kind":    string(v.Kind),
			"entry":   v.EntryID,
			"parent":  v.ParentID,
			"actual":  formatReportTime(v.Actual),
			"limit":   formatReportTime(v.Limit),
			"message": v.Message(),
		})
	}
	title := report.EventID
	if report.EventTitle != "" {
		title = fmt.Sprintf("%s (%s)", report.EventTitle, report.EventID)
	}
	return export.Dataset{
		Title:    "Timetable violations: " + title,
		Subtitle: fmt.Sprintf("%d entries, %d violations, checked %s", report.Entries, len(report.Violations), report.CheckedAt.UTC().Format(time.RFC3339)),
		Columns: []export.Column{
			{Key: "kind", Title: "Kind", Width: 2},
			{Key: "entry", Title: "Entry", Width: 1},
			{Key: "parent", Title: "Parent", Width: 1},
			{Key: "actual", Title: "Actual", Width: 1.5},
			{Key: "limit", Title: "Limit", Width: 1.5},
			{Key: "message", Title: "Message", Width: 5},
		},
		Rows: rows,
	}
}

// SweepDataset lays out a sweep run, one row per audited event.
func SweepDataset(reports []models.AuditReport) export.Dataset {
	rows := make([]map[string]string, 0, len(reports))
	for _, report := range reports {
		rows = append(rows, map[string]string{
			"event":      report.EventID,
			"title":      report.EventTitle,
			"entries":    strconv.Itoa(report.Entries),
			"consistent": strconv.FormatBool(report.Consistent),
			"violations": strconv.Itoa(len(report.Violations)),
			"checked_at": report.CheckedAt.UTC().Format(time.RFC3339),
		})
	}
	return export.Dataset{
		Title: "Timetable audit sweep",
		Columns: []export.Column{
			{Key: "event", Title: "Event"},
			{Key: "title", Title: "Title", Width: 2},
			{Key: "entries", Title: "Entries"},
			{Key: "consistent", Title: "Consistent"},
			{Key: "violations", Title: "Violations"},
			{Key: "checked_at", Title: "Checked At", Width: 1.5},
		},
		Rows: rows,
	}
}

func formatReportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
