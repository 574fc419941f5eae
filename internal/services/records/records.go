// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package records manages a user's own data: profiles, uploaded reports
// and vital sign measurements.
package records

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"codeberg.org/oliverandrich/medivault/internal/apperr"
	"codeberg.org/oliverandrich/medivault/internal/models"
	"codeberg.org/oliverandrich/medivault/internal/repository"
	"codeberg.org/oliverandrich/medivault/internal/services/storage"
	"github.com/gabriel-vasile/mimetype"
)

// sniffLen is how much of an upload is inspected to detect its type.
const sniffLen = 3072

// AllowedContentTypes lists the report formats accepted for upload.
var AllowedContentTypes = []string{
	"application/pdf",
	"image/jpeg",
	"image/png",
	"image/webp",
	"image/heic",
}

var (
	ErrProfileNotFound       = apperr.New(apperr.NotFound, "profile not found")
	ErrHealthProfileNotFound = apperr.New(apperr.NotFound, "health profile not found")
	ErrReportNotFound        = apperr.New(apperr.NotFound, "report not found")
	ErrVitalNotFound         = apperr.New(apperr.NotFound, "vital not found")
	ErrInvalidVitalType      = apperr.New(apperr.Validation, "unknown vital type")
	ErrEmptyFile             = apperr.New(apperr.Validation, "file is empty")
	ErrFileTooLarge          = apperr.New(apperr.Validation, "file exceeds the upload limit")
	ErrUnsupportedFileType   = apperr.New(apperr.Validation, "only PDF and image files are accepted")
)

type Service struct {
	repo           *repository.Repository
	store          storage.Store
	maxUploadBytes int64
}

// NewService creates a records service. Uploads larger than maxUploadBytes
// are rejected.
func NewService(repo *repository.Repository, store storage.Store, maxUploadBytes int64) *Service {
	return &Service{repo: repo, store: store, maxUploadBytes: maxUploadBytes}
}

// Profile returns the personal profile of a user.
func (s *Service) Profile(ctx context.Context, userID int64) (*models.Individual, error) {
	ind, err := s.repo.GetIndividual(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return ind, nil
}

// UpdateProfile creates or replaces the personal profile of ind.UserID.
func (s *Service) UpdateProfile(ctx context.Context, ind *models.Individual) (*models.Individual, error) {
	ind.FullName = strings.TrimSpace(ind.FullName)
	if err := s.repo.UpsertIndividual(ctx, ind); err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	return s.Profile(ctx, ind.UserID)
}

// HealthProfile returns the health profile of a user.
func (s *Service) HealthProfile(ctx context.Context, userID int64) (*models.HealthProfile, error) {
	hp, err := s.repo.GetHealthProfile(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrHealthProfileNotFound
		}
		return nil, fmt.Errorf("failed to get health profile: %w", err)
	}
	return hp, nil
}

// UpdateHealthProfile creates or replaces the health profile of hp.UserID.
func (s *Service) UpdateHealthProfile(ctx context.Context, hp *models.HealthProfile) (*models.HealthProfile, error) {
	if err := s.repo.UpsertHealthProfile(ctx, hp); err != nil {
		return nil, fmt.Errorf("failed to save health profile: %w", err)
	}
	return s.HealthProfile(ctx, hp.UserID)
}

type UploadParams struct { //nolint:govet // fieldalignment: readability over optimization
	UserID     int64
	Title      string
	ReportType string
	ReportDate *time.Time
	Notes      string
	FileName   string
	Size       int64
	Body       io.Reader
}

// Upload stores a report file and its metadata. The file type is detected
// from its content, not from the name or the client's header. When the
// metadata cannot be saved, the stored object is removed again.
func (s *Service) Upload(ctx context.Context, p UploadParams) (*models.Report, error) {
	if p.Size > s.maxUploadBytes {
		return nil, ErrFileTooLarge
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(p.Body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if n == 0 {
		return nil, ErrEmptyFile
	}
	head = head[:n]

	mtype := mimetype.Detect(head)
	contentType := mtype.String()
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	if !mimetype.EqualsAny(contentType, AllowedContentTypes...) {
		slog.InfoContext(ctx, "report_upload_rejected", "user_id", p.UserID, "content_type", contentType)
		return nil, ErrUnsupportedFileType
	}

	key := storage.ReportKey(p.UserID, p.FileName)
	body := io.LimitReader(io.MultiReader(bytes.NewReader(head), p.Body), s.maxUploadBytes)

	uploadCtx, cancel := context.WithTimeout(ctx, storage.UploadTimeout)
	defer cancel()
	if err := s.store.Put(uploadCtx, key, body, contentType); err != nil {
		return nil, err
	}

	report := &models.Report{
		UserID:      p.UserID,
		Title:       strings.TrimSpace(p.Title),
		ReportType:  p.ReportType,
		ReportDate:  p.ReportDate,
		Notes:       p.Notes,
		StorageKey:  key,
		FileName:    p.FileName,
		ContentType: contentType,
		SizeBytes:   p.Size,
	}
	if err := s.repo.CreateReport(ctx, report); err != nil {
		if delErr := s.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			slog.ErrorContext(ctx, "report_object_orphaned", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("failed to save report: %w", err)
	}

	slog.InfoContext(ctx, "report_uploaded", "user_id", p.UserID, "report_id", report.ID, "size", p.Size)
	return report, nil
}

// ReportDetail is report metadata with a short-lived download link.
type ReportDetail struct {
	models.Report
	DownloadURL string `json:"download_url,omitempty"`
}

// Reports lists a user's reports, newest first.
func (s *Service) Reports(ctx context.Context, userID int64) ([]models.Report, error) {
	reports, err := s.repo.ListReports(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}

// Report returns one of the user's reports. The download link is left out
// when storage cannot sign it.
func (s *Service) Report(ctx context.Context, userID, id int64) (*ReportDetail, error) {
	report, err := s.report(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	detail := &ReportDetail{Report: *report}
	url, err := s.store.PresignGet(ctx, report.StorageKey, report.FileName, storage.DownloadURLTTL)
	if err != nil {
		slog.WarnContext(ctx, "report_presign_failed", "report_id", report.ID, "error", err)
		return detail, nil
	}
	detail.DownloadURL = url
	return detail, nil
}

// DeleteReport removes the stored object first and then the metadata, so a
// failed object delete leaves the report visible and retryable.
func (s *Service) DeleteReport(ctx context.Context, userID, id int64) error {
	report, err := s.report(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, report.StorageKey); err != nil {
		return err
	}

	deleted, err := s.repo.DeleteReport(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	if !deleted {
		return ErrReportNotFound
	}

	slog.InfoContext(ctx, "report_deleted", "user_id", userID, "report_id", id)
	return nil
}

func (s *Service) report(ctx context.Context, userID, id int64) (*models.Report, error) {
	report, err := s.repo.GetReport(ctx, userID, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

// Vitals lists a user's measurements, most recent first. An empty
// vitalType lists every type.
func (s *Service) Vitals(ctx context.Context, userID int64, vitalType models.VitalType) ([]models.Vital, error) {
	if vitalType != "" && !vitalType.Valid() {
		return nil, ErrInvalidVitalType
	}
	vitals, err := s.repo.ListVitals(ctx, userID, vitalType)
	if err != nil {
		return nil, fmt.Errorf("failed to list vitals: %w", err)
	}
	return vitals, nil
}

// RecordVital stores a measurement. RecordedAt defaults to now.
func (s *Service) RecordVital(ctx context.Context, v *models.Vital) (*models.Vital, error) {
	if !v.VitalType.Valid() {
		return nil, ErrInvalidVitalType
	}
	v.Value = strings.TrimSpace(v.Value)
	if err := s.repo.CreateVital(ctx, v); err != nil {
		return nil, fmt.Errorf("failed to save vital: %w", err)
	}
	return v, nil
}

// DeleteVital removes one of the user's measurements.
func (s *Service) DeleteVital(ctx context.Context, userID, id int64) error {
	deleted, err := s.repo.DeleteVital(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete vital: %w", err)
	}
	if !deleted {
		return ErrVitalNotFound
	}
	return nil
}

// Dashboard summarizes a user's records.
type Dashboard struct { //nolint:govet // fieldalignment: readability over optimization
	ReportCount     int64          `json:"reportCount"`
	LatestVitals    []models.Vital `json:"latestVitals"`
	SharedByMe      int            `json:"sharedByMe"`
	SharedWithMe    int            `json:"sharedWithMe"`
	ProfileComplete bool           `json:"profileComplete"`
}

// Dashboard collects the counters shown on the start page. SharedByMe
// counts live grants only.
func (s *Service) Dashboard(ctx context.Context, userID int64) (*Dashboard, error) {
	now := time.Now()
	d := &Dashboard{}

	var err error
	if d.ReportCount, err = s.repo.CountReports(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}
	if d.LatestVitals, err = s.repo.LatestVitals(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to load vitals: %w", err)
	}

	owned, err := s.repo.ListSharedAccessByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	for i := range owned {
		if owned[i].Live(now) {
			d.SharedByMe++
		}
	}

	received, err := s.repo.ListSharedAccessByGrantee(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list received grants: %w", err)
	}
	d.SharedWithMe = len(received)

	ind, err := s.repo.GetIndividual(ctx, userID)
	if err != nil && !repository.IsNotFound(err) {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	d.ProfileComplete = ind.Complete()

	return d, nil
}
