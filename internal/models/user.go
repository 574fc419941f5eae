// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"time"
)

// UserStatus is the lifecycle state of an account.
type UserStatus string

const (
	UserPending     UserStatus = "pending"
	UserActive      UserStatus = "active"
	UserSuspended   UserStatus = "suspended"
	UserDeactivated UserStatus = "deactivated"
)

type User struct { //nolint:govet // fieldalignment not critical for models
	ID             int64      `db:"id" json:"id"`
	Email          string     `db:"email" json:"email"`
	Phone          *string    `db:"phone" json:"phone,omitempty"`
	Status         UserStatus `db:"status" json:"status"`
	EmailVerified  bool       `db:"email_verified" json:"email_verified"`
	PhoneVerified  bool       `db:"phone_verified" json:"phone_verified"`
	PasswordHash   *string    `db:"password_hash" json:"-"`
	FailedAttempts int        `db:"failed_attempts" json:"-"`
	LockedUntil    *time.Time `db:"locked_until" json:"-"`
	LastLoginAt    *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	// SessionsRevokedAt is set when all sessions are revoked at once.
	SessionsRevokedAt *time.Time `db:"sessions_revoked_at" json:"-"`
	DeletedAt         *time.Time `db:"deleted_at" json:"-"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// HasPassword reports whether a password has been set for the account.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// IsLocked reports whether password login is blocked at the given time.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// PhoneNumber returns the phone number or an empty string.
func (u *User) PhoneNumber() string {
	if u.Phone == nil {
		return ""
	}
	return *u.Phone
}
