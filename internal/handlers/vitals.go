// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"
	"time"

	"codeberg.org/oliverandrich/medivault/internal/appcontext"
	"codeberg.org/oliverandrich/medivault/internal/models"
	"github.com/labstack/echo/v4"
)

// ListVitals returns the caller's measurements, optionally filtered by the
// type query parameter.
func (h *RecordsHandlers) ListVitals(c echo.Context) error {
	vitals, err := h.records.Vitals(c.Request().Context(), appcontext.UserID(c), models.VitalType(c.QueryParam("type")))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", vitals)
}

// VitalRequest is the request body for recording a measurement.
type VitalRequest struct { //nolint:govet // fieldalignment: readability over optimization
	VitalType  string     `json:"vital_type" validate:"required,oneof=blood_pressure heart_rate temperature weight blood_glucose oxygen_saturation respiratory_rate"`
	Value      string     `json:"value" validate:"required,max=50"`
	Unit       string     `json:"unit" validate:"max=20"`
	RecordedAt *time.Time `json:"recorded_at"`
	Notes      string     `json:"notes" validate:"max=1000"`
}

// CreateVital records a measurement.
func (h *RecordsHandlers) CreateVital(c echo.Context) error {
	var req VitalRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	v := &models.Vital{
		UserID:    appcontext.UserID(c),
		VitalType: models.VitalType(req.VitalType),
		Value:     req.Value,
		Unit:      req.Unit,
		Notes:     req.Notes,
	}
	if req.RecordedAt != nil {
		v.RecordedAt = *req.RecordedAt
	}

	v, err := h.records.RecordVital(c.Request().Context(), v)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, "vital recorded", v)
}

// DeleteVital removes one of the caller's measurements.
func (h *RecordsHandlers) DeleteVital(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return err
	}

	if err := h.records.DeleteVital(c.Request().Context(), appcontext.UserID(c), id); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "vital deleted", nil)
}
