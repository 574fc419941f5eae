// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// Report is an uploaded medical document. The file itself lives in object
// storage under StorageKey.
type Report struct { //nolint:govet // fieldalignment: readability over optimization
	ID          int64      `db:"id" json:"id"`
	UserID      int64      `db:"user_id" json:"user_id"`
	Title       string     `db:"title" json:"title"`
	ReportType  string     `db:"report_type" json:"report_type"`
	ReportDate  *time.Time `db:"report_date" json:"report_date,omitempty"`
	Notes       string     `db:"notes" json:"notes"`
	StorageKey  string     `db:"storage_key" json:"-"`
	FileName    string     `db:"file_name" json:"file_name"`
	ContentType string     `db:"content_type" json:"content_type"`
	SizeBytes   int64      `db:"size_bytes" json:"size_bytes"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}
