// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"testing"

	"codeberg.org/oliverandrich/medivault/internal/apperr"
	"codeberg.org/oliverandrich/medivault/internal/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator(t *testing.T) {
	v := handlers.NewValidator()

	tests := []struct {
		name   string
		input  any
		fields map[string]string
	}{
		{
			name:  "valid share",
			input: &handlers.CreateShareRequest{Email: "doc@example.com", AccessLevel: "limited", ReportIDs: []int64{1, 2}},
		},
		{
			name:  "missing fields use json names",
			input: &handlers.CreateShareRequest{},
			fields: map[string]string{
				"email":        "is required",
				"access_level": "is required",
			},
		},
		{
			name:  "bad email and access level",
			input: &handlers.CreateShareRequest{Email: "not-an-email", AccessLevel: "admin"},
			fields: map[string]string{
				"email":        "must be a valid email address",
				"access_level": "must be one of: full, limited, view_only",
			},
		},
		{
			name:   "otp format",
			input:  &handlers.VerifyOTPRequest{Contact: "jane@example.com", OTP: "12ab56"},
			fields: map[string]string{"otp": "must contain digits only"},
		},
		{
			name:   "otp length",
			input:  &handlers.VerifyOTPRequest{Contact: "jane@example.com", OTP: "123"},
			fields: map[string]string{"otp": "must be exactly 6 characters"},
		},
		{
			name:   "purpose",
			input:  &handlers.VerifyOTPRequest{Contact: "jane@example.com", OTP: "123456", Purpose: "password_reset"},
			fields: map[string]string{"purpose": "must be one of: registration, login"},
		},
		{
			name:   "date format",
			input:  &handlers.ProfileRequest{FullName: "Jane", DateOfBirth: "01.02.1990"},
			fields: map[string]string{"date_of_birth": "must be a date in the format 2006-01-02"},
		},
		{
			name:   "form names",
			input:  &handlers.UploadReportRequest{},
			fields: map[string]string{"title": "is required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}

			e, ok := apperr.As(err)
			require.True(t, ok, "expected an apperr, got %v", err)
			assert.Equal(t, apperr.Validation, e.Kind)
			assert.Equal(t, tt.fields, e.Fields)
		})
	}
}
