// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/medivault/internal/models"
)

const sessionColumns = `id, user_id, token_hash, device_info, ip_address, expires_at, revoked_at, created_at`

// CreateSession persists a session and sets its ID.
func (r *Repository) CreateSession(ctx context.Context, s *models.Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = utcNow()
	}
	id, err := r.insert(ctx,
		`INSERT INTO sessions (user_id, token_hash, device_info, ip_address, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		s.UserID, s.TokenHash, s.DeviceInfo, s.IPAddress, s.ExpiresAt.UTC(), s.CreatedAt.UTC())
	if err != nil {
		return err
	}
	s.ID = id
	return nil
}

// GetSessionByTokenHash retrieves a session by the hash of its token.
func (r *Repository) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	var s models.Session
	err := r.get(ctx, &s, `SELECT `+sessionColumns+` FROM sessions WHERE token_hash = ?`, tokenHash)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSessionByID retrieves a session by its ID.
func (r *Repository) GetSessionByID(ctx context.Context, id int64) (*models.Session, error) {
	var s models.Session
	err := r.get(ctx, &s, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// RevokeSession stamps revoked_at on a live session. It reports whether a
// row changed.
func (r *Repository) RevokeSession(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	n, err := r.execAffected(ctx,
		`UPDATE sessions SET revoked_at = ? WHERE token_hash = ? AND revoked_at IS NULL`,
		now.UTC(), tokenHash)
	return n > 0, err
}

// RevokeUserSessions revokes every unrevoked session of a user.
func (r *Repository) RevokeUserSessions(ctx context.Context, userID int64, now time.Time) (int64, error) {
	return r.execAffected(ctx,
		`UPDATE sessions SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`,
		now.UTC(), userID)
}

// DeleteExpiredSessions removes sessions that expired before now. Revoked
// sessions are kept until revokedBefore passes their revocation, so refresh
// tokens bound to them keep failing.
func (r *Repository) DeleteExpiredSessions(ctx context.Context, now, revokedBefore time.Time) (int64, error) {
	return r.execAffected(ctx,
		`DELETE FROM sessions WHERE expires_at < ? AND (revoked_at IS NULL OR revoked_at < ?)`,
		now.UTC(), revokedBefore.UTC())
}
