// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

type ContactType string

const (
	ContactEmail ContactType = "email"
	ContactPhone ContactType = "phone"
)

// OTPPurpose scopes a one-time code. Codes issued for one purpose never
// verify for another.
type OTPPurpose string

const (
	PurposeRegistration  OTPPurpose = "registration"
	PurposeLogin         OTPPurpose = "login"
	PurposePasswordReset OTPPurpose = "password_reset"
)

// OTPRecord stores the keyed hash of a one-time code.
type OTPRecord struct { //nolint:govet // fieldalignment: readability over optimization
	ID           int64       `db:"id" json:"id"`
	ContactType  ContactType `db:"contact_type" json:"contact_type"`
	ContactValue string      `db:"contact_value" json:"contact_value"`
	CodeHash     string      `db:"code_hash" json:"-"` // HMAC-SHA256, hex
	Purpose      OTPPurpose  `db:"purpose" json:"purpose"`
	Used         bool        `db:"used" json:"used"`
	UsedAt       *time.Time  `db:"used_at" json:"used_at,omitempty"`
	ExpiresAt    time.Time   `db:"expires_at" json:"expires_at"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UserID       *int64      `db:"user_id" json:"user_id,omitempty"`
}

type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationCompleted RegistrationStatus = "completed"
)

// RegistrationAttempt pairs with a registration OTP.
type RegistrationAttempt struct { //nolint:govet // fieldalignment: readability over optimization
	ID           int64              `db:"id" json:"id"`
	ContactType  ContactType        `db:"contact_type" json:"contact_type"`
	ContactValue string             `db:"contact_value" json:"contact_value"`
	Status       RegistrationStatus `db:"status" json:"status"`
	ExpiresAt    time.Time          `db:"expires_at" json:"expires_at"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
	CompletedAt  *time.Time         `db:"completed_at" json:"completed_at,omitempty"`
	UserID       *int64             `db:"user_id" json:"user_id,omitempty"`
}
