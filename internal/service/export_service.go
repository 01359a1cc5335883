package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/ambassador-api/internal/models"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
	"github.com/noah-isme/ambassador-api/pkg/export"
	"github.com/noah-isme/ambassador-api/pkg/storage"
)

const (
	exportDir        = "exports"
	exportOwner      = "exports"
	exportPageSize   = 100
	exportMaxRecords = 10000
)

// ExportFormat selects the rendered file type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type applicantPager interface {
	List(ctx context.Context, filter models.ApplicantFilter) ([]models.ApplicantDetail, int, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(dir string, ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	Token     string       `json:"token"`
	URL       string       `json:"url"`
	Format    ExportFormat `json:"format"`
	Rows      int          `json:"rows"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// ExportService renders applicant lists to CSV or PDF and hands out signed download links.
type ExportService struct {
	applicants applicantPager
	storage    fileStorage
	csv        csvRenderer
	pdf        pdfRenderer
	signer     *storage.DownloadSigner
	logger     *zap.Logger
	cfg        ExportConfig
	now        func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(applicants applicantPager, store fileStorage, signer *storage.DownloadSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		applicants: applicants,
		storage:    store,
		csv:        csv,
		pdf:        pdf,
		signer:     signer,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// ExportApplicants renders every applicant matching filter and stores the file.
func (s *ExportService) ExportApplicants(ctx context.Context, filter models.ApplicantFilter, format ExportFormat) (*ExportResult, error) {
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	rows, err := s.collect(ctx, filter)
	if err != nil {
		return nil, err
	}
	dataset := applicantDataset(rows)

	var payload []byte
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, "Applicants")
	}
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render export")
	}

	filename := fmt.Sprintf("%s/applicants_%s.%s", exportDir, s.now().UTC().Format("20060102_150405"), format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(exportOwner, relPath)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign export")
	}
	s.logger.Info("applicant export generated", zap.String("format", string(format)), zap.Int("rows", len(rows)))

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &ExportResult{
		Token:     token,
		URL:       fmt.Sprintf("%s/admin/exports/%s", prefix, token),
		Format:    format,
		Rows:      len(rows),
		ExpiresAt: expiresAt,
	}, nil
}

// Open resolves a download token to the stored file.
func (s *ExportService) Open(token string) (*os.File, string, error) {
	owner, relPath, _, err := s.signer.Parse(token, false)
	if err != nil || owner != exportOwner {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export link is invalid or expired")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}
	return file, relPath, nil
}

// Cleanup removes exports older than ttl, defaulting to the configured ResultTTL.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(exportDir, ttl)
}

func (s *ExportService) collect(ctx context.Context, filter models.ApplicantFilter) ([]models.ApplicantDetail, error) {
	filter.PageSize = exportPageSize
	var all []models.ApplicantDetail
	for page := 1; ; page++ {
		filter.Page = page
		items, total, err := s.applicants.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load applicants for export")
		}
		all = append(all, items...)
		if len(items) < exportPageSize || len(all) >= total {
			break
		}
		if len(all) >= exportMaxRecords {
			s.logger.Warn("applicant export truncated", zap.Int("limit", exportMaxRecords), zap.Int("total", total))
			break
		}
	}
	return all, nil
}

func applicantDataset(rows []models.ApplicantDetail) export.Dataset {
	dataset := export.Dataset{
		Columns: []string{"Name", "Email", "School", "Type", "Status", "Points", "Position", "Referral Code", "Joined"},
		Rows:    make([][]string, 0, len(rows)),
	}
	for _, row := range rows {
		school := ""
		if row.SchoolName != nil {
			school = *row.SchoolName
		}
		dataset.Append(
			row.FullName(),
			row.Email,
			school,
			row.AmbassadorType,
			string(row.Status),
			strconv.Itoa(row.Points),
			strconv.Itoa(row.WaitlistPosition),
			row.ReferralCode,
			row.CreatedAt.UTC().Format("2006-01-02"),
		)
	}
	return dataset
}
