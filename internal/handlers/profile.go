// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/medivault/internal/appcontext"
	"codeberg.org/oliverandrich/medivault/internal/models"
	"github.com/labstack/echo/v4"
)

// GetProfile returns the caller's personal profile.
func (h *RecordsHandlers) GetProfile(c echo.Context) error {
	ind, err := h.records.Profile(c.Request().Context(), appcontext.UserID(c))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", ind)
}

// ProfileRequest is the request body for the personal profile.
type ProfileRequest struct {
	FullName    string `json:"full_name" validate:"required,max=200"`
	DateOfBirth string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Gender      string `json:"gender" validate:"max=50"`
	Phone       string `json:"phone" validate:"max=50"`
	Address     string `json:"address" validate:"max=500"`
}

// UpdateProfile creates or replaces the caller's personal profile.
func (h *RecordsHandlers) UpdateProfile(c echo.Context) error {
	var req ProfileRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ind, err := h.records.UpdateProfile(c.Request().Context(), &models.Individual{
		UserID:      appcontext.UserID(c),
		FullName:    req.FullName,
		DateOfBirth: parseDate(req.DateOfBirth),
		Gender:      req.Gender,
		Phone:       req.Phone,
		Address:     req.Address,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "profile saved", ind)
}

// GetHealthProfile returns the caller's health profile.
func (h *RecordsHandlers) GetHealthProfile(c echo.Context) error {
	hp, err := h.records.HealthProfile(c.Request().Context(), appcontext.UserID(c))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", hp)
}

// HealthProfileRequest is the request body for the health profile.
type HealthProfileRequest struct { //nolint:govet // fieldalignment: readability over optimization
	BloodType             string   `json:"blood_type" validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	HeightCM              *float64 `json:"height_cm" validate:"omitempty,gt=0,lt=300"`
	WeightKG              *float64 `json:"weight_kg" validate:"omitempty,gt=0,lt=700"`
	Allergies             string   `json:"allergies" validate:"max=2000"`
	ChronicConditions     string   `json:"chronic_conditions" validate:"max=2000"`
	CurrentMedications    string   `json:"current_medications" validate:"max=2000"`
	EmergencyContactName  string   `json:"emergency_contact_name" validate:"max=200"`
	EmergencyContactPhone string   `json:"emergency_contact_phone" validate:"max=50"`
}

// UpdateHealthProfile creates or replaces the caller's health profile.
func (h *RecordsHandlers) UpdateHealthProfile(c echo.Context) error {
	var req HealthProfileRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	hp, err := h.records.UpdateHealthProfile(c.Request().Context(), &models.HealthProfile{
		UserID:                appcontext.UserID(c),
		BloodType:             req.BloodType,
		HeightCM:              req.HeightCM,
		WeightKG:              req.WeightKG,
		Allergies:             req.Allergies,
		ChronicConditions:     req.ChronicConditions,
		CurrentMedications:    req.CurrentMedications,
		EmergencyContactName:  req.EmergencyContactName,
		EmergencyContactPhone: req.EmergencyContactPhone,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "health profile saved", hp)
}
