// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/medivault/internal/models"
)

const otpColumns = `id, contact_type, contact_value, code_hash, purpose, used, used_at, expires_at, created_at, user_id`

// CreateOTP inserts a one-time code record and sets its ID.
func (r *Repository) CreateOTP(ctx context.Context, otp *models.OTPRecord) error {
	if otp.CreatedAt.IsZero() {
		otp.CreatedAt = utcNow()
	}
	id, err := r.insert(ctx,
		`INSERT INTO otp_records (contact_type, contact_value, code_hash, purpose, used, expires_at, created_at, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		otp.ContactType, otp.ContactValue, otp.CodeHash, otp.Purpose, false,
		otp.ExpiresAt.UTC(), otp.CreatedAt.UTC(), otp.UserID)
	if err != nil {
		return err
	}
	otp.ID = id
	return nil
}

// GetLatestValidOTP returns the unused, unexpired record for the contact and
// purpose with the newest creation time, ties broken by the higher id.
func (r *Repository) GetLatestValidOTP(ctx context.Context, contact string, purpose models.OTPPurpose, now time.Time) (*models.OTPRecord, error) {
	var otp models.OTPRecord
	err := r.get(ctx, &otp,
		`SELECT `+otpColumns+` FROM otp_records
		WHERE contact_value = ? AND purpose = ? AND used = ? AND expires_at > ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		contact, purpose, false, now.UTC())
	if err != nil {
		return nil, err
	}
	return &otp, nil
}

// GetOTP retrieves a record by ID.
func (r *Repository) GetOTP(ctx context.Context, id int64) (*models.OTPRecord, error) {
	var otp models.OTPRecord
	if err := r.get(ctx, &otp, `SELECT `+otpColumns+` FROM otp_records WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &otp, nil
}

// MarkOTPUsed flips the used flag if it is still unset. It reports false
// when another request consumed the record first.
func (r *Repository) MarkOTPUsed(ctx context.Context, id int64, now time.Time) (bool, error) {
	n, err := r.execAffected(ctx,
		`UPDATE otp_records SET used = ?, used_at = ? WHERE id = ? AND used = ?`,
		true, now.UTC(), id, false)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteOTP removes a record.
func (r *Repository) DeleteOTP(ctx context.Context, id int64) error {
	_, err := r.exec(ctx, `DELETE FROM otp_records WHERE id = ?`, id)
	return err
}

// CountOTPs counts records for a contact and purpose, used or not.
func (r *Repository) CountOTPs(ctx context.Context, contact string, purpose models.OTPPurpose) (int64, error) {
	var count int64
	err := r.get(ctx, &count,
		`SELECT count(*) FROM otp_records WHERE contact_value = ? AND purpose = ?`, contact, purpose)
	return count, err
}

// DeleteExpiredOTPs removes records that expired before now.
func (r *Repository) DeleteExpiredOTPs(ctx context.Context, now time.Time) (int64, error) {
	return r.execAffected(ctx, `DELETE FROM otp_records WHERE expires_at < ?`, now.UTC())
}
