// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/medivault/internal/models"
)

const registrationColumns = `id, contact_type, contact_value, status, expires_at, created_at, completed_at, user_id`

// CreateRegistrationAttempt inserts a pending attempt and sets its ID.
func (r *Repository) CreateRegistrationAttempt(ctx context.Context, attempt *models.RegistrationAttempt) error {
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = utcNow()
	}
	if attempt.Status == "" {
		attempt.Status = models.RegistrationPending
	}
	id, err := r.insert(ctx,
		`INSERT INTO registration_attempts (contact_type, contact_value, status, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`,
		attempt.ContactType, attempt.ContactValue, attempt.Status,
		attempt.ExpiresAt.UTC(), attempt.CreatedAt.UTC())
	if err != nil {
		return err
	}
	attempt.ID = id
	return nil
}

// GetRegistrationAttempt retrieves an attempt by ID.
func (r *Repository) GetRegistrationAttempt(ctx context.Context, id int64) (*models.RegistrationAttempt, error) {
	var attempt models.RegistrationAttempt
	err := r.get(ctx, &attempt,
		`SELECT `+registrationColumns+` FROM registration_attempts WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// DeleteRegistrationAttempt removes an attempt.
func (r *Repository) DeleteRegistrationAttempt(ctx context.Context, id int64) error {
	_, err := r.exec(ctx, `DELETE FROM registration_attempts WHERE id = ?`, id)
	return err
}

// CompleteRegistrationAttempts marks every pending attempt for the contact
// as completed by the given user.
func (r *Repository) CompleteRegistrationAttempts(ctx context.Context, contact string, userID int64) (int64, error) {
	return r.execAffected(ctx,
		`UPDATE registration_attempts SET status = ?, completed_at = ?, user_id = ?
		WHERE contact_value = ? AND status = ?`,
		models.RegistrationCompleted, utcNow(), userID, contact, models.RegistrationPending)
}

// CountRegistrationAttempts counts attempts for a contact.
func (r *Repository) CountRegistrationAttempts(ctx context.Context, contact string) (int64, error) {
	var count int64
	err := r.get(ctx, &count, `SELECT count(*) FROM registration_attempts WHERE contact_value = ?`, contact)
	return count, err
}

// DeleteExpiredRegistrationAttempts removes pending attempts past expiry.
func (r *Repository) DeleteExpiredRegistrationAttempts(ctx context.Context, now time.Time) (int64, error) {
	return r.execAffected(ctx,
		`DELETE FROM registration_attempts WHERE status = ? AND expires_at < ?`,
		models.RegistrationPending, now.UTC())
}
