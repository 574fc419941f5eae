// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

type VitalType string

const (
	VitalBloodPressure    VitalType = "blood_pressure"
	VitalHeartRate        VitalType = "heart_rate"
	VitalTemperature      VitalType = "temperature"
	VitalWeight           VitalType = "weight"
	VitalBloodGlucose     VitalType = "blood_glucose"
	VitalOxygenSaturation VitalType = "oxygen_saturation"
	VitalRespiratoryRate  VitalType = "respiratory_rate"
)

// VitalTypes lists every known vital type in display order.
var VitalTypes = []VitalType{
	VitalBloodPressure,
	VitalHeartRate,
	VitalTemperature,
	VitalWeight,
	VitalBloodGlucose,
	VitalOxygenSaturation,
	VitalRespiratoryRate,
}

// Valid reports whether t is a known vital type.
func (t VitalType) Valid() bool {
	for _, v := range VitalTypes {
		if v == t {
			return true
		}
	}
	return false
}

type Vital struct { //nolint:govet // fieldalignment: readability over optimization
	ID         int64     `db:"id" json:"id"`
	UserID     int64     `db:"user_id" json:"user_id"`
	VitalType  VitalType `db:"vital_type" json:"vital_type"`
	Value      string    `db:"value" json:"value"`
	Unit       string    `db:"unit" json:"unit"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
	Notes      string    `db:"notes" json:"notes"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
