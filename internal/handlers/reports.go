// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"
	"path/filepath"

	"codeberg.org/oliverandrich/medivault/internal/appcontext"
	"codeberg.org/oliverandrich/medivault/internal/apperr"
	"codeberg.org/oliverandrich/medivault/internal/services/records"
	"github.com/labstack/echo/v4"
)

// ErrMissingFile is returned when an upload has no file part.
var ErrMissingFile = apperr.ValidationFields("a file is required", map[string]string{"file": "is required"})

// UploadReportRequest holds the form fields of a report upload.
type UploadReportRequest struct {
	Title      string `form:"title" validate:"required,max=200"`
	ReportType string `form:"report_type" validate:"max=100"`
	ReportDate string `form:"report_date" validate:"omitempty,datetime=2006-01-02"`
	Notes      string `form:"notes" validate:"max=2000"`
}

// UploadReport stores a report from a multipart form with a "file" part.
func (h *RecordsHandlers) UploadReport(c echo.Context) error {
	req := UploadReportRequest{
		Title:      c.FormValue("title"),
		ReportType: c.FormValue("report_type"),
		ReportDate: c.FormValue("report_date"),
		Notes:      c.FormValue("notes"),
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return ErrMissingFile
	}
	file, err := fh.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	report, err := h.records.Upload(c.Request().Context(), records.UploadParams{
		UserID:     appcontext.UserID(c),
		Title:      req.Title,
		ReportType: req.ReportType,
		ReportDate: parseDate(req.ReportDate),
		Notes:      req.Notes,
		FileName:   filepath.Base(fh.Filename),
		Size:       fh.Size,
		Body:       file,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, "report uploaded", report)
}

// ListReports returns the caller's reports.
func (h *RecordsHandlers) ListReports(c echo.Context) error {
	reports, err := h.records.Reports(c.Request().Context(), appcontext.UserID(c))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", reports)
}

// GetReport returns one report with a download link.
func (h *RecordsHandlers) GetReport(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return err
	}

	report, err := h.records.Report(c.Request().Context(), appcontext.UserID(c), id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", report)
}

// DeleteReport removes a report and its file.
func (h *RecordsHandlers) DeleteReport(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return err
	}

	if err := h.records.DeleteReport(c.Request().Context(), appcontext.UserID(c), id); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "report deleted", nil)
}
