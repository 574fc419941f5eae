// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/oliverandrich/medivault/internal/models"
)

const reportColumns = `r.id, r.user_id, r.title, r.report_type, r.report_date, r.notes, r.storage_key,
	r.file_name, r.content_type, r.size_bytes, r.created_at, r.updated_at`

// CreateReport inserts report metadata and sets its ID.
func (r *Repository) CreateReport(ctx context.Context, report *models.Report) error {
	now := utcNow()
	report.CreatedAt = now
	report.UpdatedAt = now
	if report.ReportDate != nil {
		d := report.ReportDate.UTC()
		report.ReportDate = &d
	}
	id, err := r.insert(ctx,
		`INSERT INTO reports (user_id, title, report_type, report_date, notes, storage_key, file_name, content_type, size_bytes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		report.UserID, report.Title, report.ReportType, report.ReportDate, report.Notes, report.StorageKey,
		report.FileName, report.ContentType, report.SizeBytes, now, now)
	if err != nil {
		return err
	}
	report.ID = id
	return nil
}

// GetReport retrieves a report owned by userID.
func (r *Repository) GetReport(ctx context.Context, userID, id int64) (*models.Report, error) {
	var report models.Report
	err := r.get(ctx, &report,
		`SELECT `+reportColumns+` FROM reports r WHERE r.id = ? AND r.user_id = ?`, id, userID)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// ListReports returns a user's reports, newest first.
func (r *Repository) ListReports(ctx context.Context, userID int64) ([]models.Report, error) {
	reports := []models.Report{}
	err := r.selectAll(ctx, &reports,
		`SELECT `+reportColumns+` FROM reports r WHERE r.user_id = ?
		ORDER BY r.created_at DESC, r.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	return reports, nil
}

// ListReportsForGrant returns the reports linked to a grant, newest first.
func (r *Repository) ListReportsForGrant(ctx context.Context, grantID int64) ([]models.Report, error) {
	reports := []models.Report{}
	err := r.selectAll(ctx, &reports,
		`SELECT `+reportColumns+` FROM reports r
		JOIN shared_reports sr ON sr.report_id = r.id
		WHERE sr.shared_access_id = ?
		ORDER BY r.created_at DESC, r.id DESC`, grantID)
	if err != nil {
		return nil, err
	}
	return reports, nil
}

// DeleteReport removes a report owned by userID. It reports whether a row
// was deleted.
func (r *Repository) DeleteReport(ctx context.Context, userID, id int64) (bool, error) {
	n, err := r.execAffected(ctx, `DELETE FROM reports WHERE id = ? AND user_id = ?`, id, userID)
	return n > 0, err
}

// CountReports counts a user's reports.
func (r *Repository) CountReports(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.get(ctx, &count, `SELECT count(*) FROM reports WHERE user_id = ?`, userID)
	return count, err
}
