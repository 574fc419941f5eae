// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"
	"time"

	"codeberg.org/oliverandrich/medivault/internal/appcontext"
	"codeberg.org/oliverandrich/medivault/internal/services/records"
	"github.com/labstack/echo/v4"
)

const dateLayout = "2006-01-02"

// RecordsHandlers contains handlers for the caller's own records.
type RecordsHandlers struct {
	records *records.Service
}

// NewRecords creates a new RecordsHandlers instance.
func NewRecords(svc *records.Service) *RecordsHandlers {
	return &RecordsHandlers{records: svc}
}

// Dashboard returns the summary shown on the start page.
func (h *RecordsHandlers) Dashboard(c echo.Context) error {
	d, err := h.records.Dashboard(c.Request().Context(), appcontext.UserID(c))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", d)
}

// parseDate parses an optional YYYY-MM-DD value. Validation has already
// checked the format.
func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}
