// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// Individual is the personal profile of a user.
type Individual struct { //nolint:govet // fieldalignment: readability over optimization
	ID          int64      `db:"id" json:"id"`
	UserID      int64      `db:"user_id" json:"user_id"`
	FullName    string     `db:"full_name" json:"full_name"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender      string     `db:"gender" json:"gender"`
	Phone       string     `db:"phone" json:"phone"`
	Address     string     `db:"address" json:"address"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Complete reports whether the fields required for a complete profile are set.
func (i *Individual) Complete() bool {
	return i != nil && i.FullName != "" && i.DateOfBirth != nil
}

type HealthProfile struct { //nolint:govet // fieldalignment: readability over optimization
	ID                    int64     `db:"id" json:"id"`
	UserID                int64     `db:"user_id" json:"user_id"`
	BloodType             string    `db:"blood_type" json:"blood_type"`
	HeightCM              *float64  `db:"height_cm" json:"height_cm,omitempty"`
	WeightKG              *float64  `db:"weight_kg" json:"weight_kg,omitempty"`
	Allergies             string    `db:"allergies" json:"allergies"`
	ChronicConditions     string    `db:"chronic_conditions" json:"chronic_conditions"`
	CurrentMedications    string    `db:"current_medications" json:"current_medications"`
	EmergencyContactName  string    `db:"emergency_contact_name" json:"emergency_contact_name"`
	EmergencyContactPhone string    `db:"emergency_contact_phone" json:"emergency_contact_phone"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}
