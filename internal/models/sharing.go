// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

type AccessLevel string

const (
	AccessFull     AccessLevel = "full"
	AccessLimited  AccessLevel = "limited"
	AccessViewOnly AccessLevel = "view_only"
)

// Valid reports whether the level is one of the known access levels.
func (a AccessLevel) Valid() bool {
	switch a {
	case AccessFull, AccessLimited, AccessViewOnly:
		return true
	}
	return false
}

type ShareStatus string

const (
	SharePending ShareStatus = "pending"
	ShareActive  ShareStatus = "active"
	ShareRevoked ShareStatus = "revoked"
	ShareExpired ShareStatus = "expired"
)

// SharedAccess is a grant from an owner to a target email, gated by an
// invitation token of which only the SHA-256 hash is stored.
type SharedAccess struct { //nolint:govet // fieldalignment: readability over optimization
	ID          int64       `db:"id" json:"id"`
	OwnerID     int64       `db:"owner_id" json:"owner_id"`
	TargetEmail string      `db:"target_email" json:"target_email"`
	TargetName  string      `db:"target_name" json:"target_name"`
	AccessLevel AccessLevel `db:"access_level" json:"access_level"`
	Status      ShareStatus `db:"status" json:"status"`
	TokenHash   string      `db:"token_hash" json:"-"`
	ExpiresAt   time.Time   `db:"expires_at" json:"expires_at"`
	GranteeID   *int64      `db:"grantee_id" json:"grantee_id,omitempty"`
	RedeemedAt  *time.Time  `db:"redeemed_at" json:"redeemed_at,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// Expired reports whether the grant is past its expiry, whatever its status.
func (s *SharedAccess) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Live reports whether the grant still blocks a new grant for the same
// owner and target.
func (s *SharedAccess) Live(now time.Time) bool {
	return (s.Status == SharePending || s.Status == ShareActive) && !s.Expired(now)
}

// SharedAccessView is a grant joined with the display data of the other party.
type SharedAccessView struct { //nolint:govet // fieldalignment: readability over optimization
	SharedAccess
	OwnerEmail  string `db:"owner_email" json:"owner_email"`
	OwnerName   string `db:"owner_name" json:"owner_name"`
	ReportCount int    `db:"report_count" json:"report_count"`
}
