// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"strings"
	"time"

	"codeberg.org/oliverandrich/medivault/internal/models"
	"github.com/vinovest/sqlx"
)

const userColumns = `id, email, phone, status, email_verified, phone_verified, password_hash,
	failed_attempts, locked_until, last_login_at, sessions_revoked_at, deleted_at, created_at, updated_at`

// CreateUser creates a new user. Emails are stored lower-cased.
func (r *Repository) CreateUser(ctx context.Context, email string, status models.UserStatus, emailVerified bool) (*models.User, error) {
	now := utcNow()
	user := &models.User{
		Email:         strings.ToLower(strings.TrimSpace(email)),
		Status:        status,
		EmailVerified: emailVerified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	id, err := r.insert(ctx,
		`INSERT INTO users (email, status, email_verified, phone_verified, failed_attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?) RETURNING id`,
		user.Email, user.Status, user.EmailVerified, false, now, now)
	if err != nil {
		return nil, err
	}
	user.ID = id
	return user, nil
}

// GetUserByID retrieves a user that has not been deleted.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.get(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE id = ? AND deleted_at IS NULL`, id)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail retrieves a user that has not been deleted by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.get(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE email = ? AND deleted_at IS NULL`,
		strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUserPassword stores a new password hash and lifts any lockout.
func (r *Repository) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	_, err := r.exec(ctx,
		`UPDATE users SET password_hash = ?, failed_attempts = 0, locked_until = NULL, updated_at = ? WHERE id = ?`,
		passwordHash, utcNow(), id)
	return err
}

// UpdateUserStatus changes the account status.
func (r *Repository) UpdateUserStatus(ctx context.Context, id int64, status models.UserStatus) error {
	_, err := r.exec(ctx,
		`UPDATE users SET status = ?, updated_at = ? WHERE id = ?`,
		status, utcNow(), id)
	return err
}

// LockUser holds a row lock on the user until the surrounding transaction
// ends. SQLite transactions start with BEGIN IMMEDIATE and are already
// serialized, so it only issues a query on PostgreSQL.
func (r *Repository) LockUser(ctx context.Context, id int64) error {
	if r.q.DriverName() != "pgx" {
		return nil
	}
	var locked int64
	err := sqlx.GetContext(ctx, r.q, &locked, r.q.Rebind(`SELECT id FROM users WHERE id = ? FOR UPDATE`), id)
	return classify(err)
}

// SetSessionsRevokedAt records when every session of a user was revoked.
// Refresh tokens issued before that instant are no longer accepted.
func (r *Repository) SetSessionsRevokedAt(ctx context.Context, id int64, at time.Time) error {
	_, err := r.exec(ctx,
		`UPDATE users SET sessions_revoked_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), utcNow(), id)
	return err
}

// MarkEmailVerified flags the email as verified and activates a pending account.
func (r *Repository) MarkEmailVerified(ctx context.Context, id int64) error {
	_, err := r.exec(ctx,
		`UPDATE users SET email_verified = ?, status = CASE WHEN status = ? THEN ? ELSE status END, updated_at = ?
		WHERE id = ?`,
		true, models.UserPending, models.UserActive, utcNow(), id)
	return err
}

// RecordLoginFailure increments the failure counter in a single statement.
// Once the counter reaches maxAttempts the account is locked until
// lockUntil and the counter starts over.
func (r *Repository) RecordLoginFailure(ctx context.Context, id int64, maxAttempts int, lockUntil time.Time) error {
	_, err := r.exec(ctx,
		`UPDATE users SET
			locked_until = CASE WHEN failed_attempts + 1 >= ? THEN ? ELSE locked_until END,
			failed_attempts = CASE WHEN failed_attempts + 1 >= ? THEN 0 ELSE failed_attempts + 1 END,
			updated_at = ?
		WHERE id = ?`,
		maxAttempts, lockUntil.UTC(), maxAttempts, utcNow(), id)
	return err
}

// RecordLoginSuccess resets the failure counter and stamps the login time.
func (r *Repository) RecordLoginSuccess(ctx context.Context, id int64) error {
	now := utcNow()
	_, err := r.exec(ctx,
		`UPDATE users SET failed_attempts = 0, locked_until = NULL, last_login_at = ?, updated_at = ? WHERE id = ?`,
		now, now, id)
	return err
}

// SoftDeleteUser deactivates the account and hides it from lookups. The
// email becomes free for a new registration.
func (r *Repository) SoftDeleteUser(ctx context.Context, id int64) error {
	now := utcNow()
	_, err := r.exec(ctx,
		`UPDATE users SET status = ?, deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		models.UserDeactivated, now, now, id)
	return err
}
