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

const sharedAccessColumns = `sa.id, sa.owner_id, sa.target_email, sa.target_name, sa.access_level, sa.status,
	sa.token_hash, sa.expires_at, sa.grantee_id, sa.redeemed_at, sa.created_at`

// ExpireStaleGrants flips pending or active grants for (owner, email) whose
// expiry has passed to expired.
func (r *Repository) ExpireStaleGrants(ctx context.Context, ownerID int64, email string, now time.Time) (int64, error) {
	return r.execAffected(ctx,
		`UPDATE shared_access SET status = ?
		WHERE owner_id = ? AND target_email = ? AND status IN (?, ?) AND expires_at <= ?`,
		models.ShareExpired, ownerID, strings.ToLower(email),
		models.SharePending, models.ShareActive, now.UTC())
}

// HasLiveGrant reports whether (owner, email) already has a pending or
// active grant that has not expired.
func (r *Repository) HasLiveGrant(ctx context.Context, ownerID int64, email string, now time.Time) (bool, error) {
	var count int64
	err := r.get(ctx, &count,
		`SELECT count(*) FROM shared_access
		WHERE owner_id = ? AND target_email = ? AND status IN (?, ?) AND expires_at > ?`,
		ownerID, strings.ToLower(email), models.SharePending, models.ShareActive, now.UTC())
	return count > 0, err
}

// CreateSharedAccess inserts a grant and sets its ID.
func (r *Repository) CreateSharedAccess(ctx context.Context, sa *models.SharedAccess) error {
	if sa.CreatedAt.IsZero() {
		sa.CreatedAt = utcNow()
	}
	sa.TargetEmail = strings.ToLower(strings.TrimSpace(sa.TargetEmail))
	id, err := r.insert(ctx,
		`INSERT INTO shared_access (owner_id, target_email, target_name, access_level, status, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		sa.OwnerID, sa.TargetEmail, sa.TargetName, sa.AccessLevel, sa.Status,
		sa.TokenHash, sa.ExpiresAt.UTC(), sa.CreatedAt.UTC())
	if err != nil {
		return err
	}
	sa.ID = id
	return nil
}

// LinkSharedReports attaches reports to a grant.
func (r *Repository) LinkSharedReports(ctx context.Context, grantID int64, reportIDs []int64) error {
	for _, reportID := range reportIDs {
		if _, err := r.exec(ctx,
			`INSERT INTO shared_reports (shared_access_id, report_id) VALUES (?, ?)`,
			grantID, reportID); err != nil {
			return err
		}
	}
	return nil
}

// GetSharedAccessByTokenHash retrieves a grant by the hash of its token.
func (r *Repository) GetSharedAccessByTokenHash(ctx context.Context, tokenHash string) (*models.SharedAccess, error) {
	var sa models.SharedAccess
	err := r.get(ctx, &sa,
		`SELECT `+sharedAccessColumns+` FROM shared_access sa WHERE sa.token_hash = ?`, tokenHash)
	if err != nil {
		return nil, err
	}
	return &sa, nil
}

// GetSharedAccess retrieves a grant by ID.
func (r *Repository) GetSharedAccess(ctx context.Context, id int64) (*models.SharedAccess, error) {
	var sa models.SharedAccess
	err := r.get(ctx, &sa, `SELECT `+sharedAccessColumns+` FROM shared_access sa WHERE sa.id = ?`, id)
	if err != nil {
		return nil, err
	}
	return &sa, nil
}

// RedeemSharedAccess activates a grant for the grantee unless it has been
// redeemed already. It reports false when the grant was redeemed before.
func (r *Repository) RedeemSharedAccess(ctx context.Context, id, granteeID int64, now, expiresAt time.Time) (bool, error) {
	n, err := r.execAffected(ctx,
		`UPDATE shared_access SET status = ?, grantee_id = ?, redeemed_at = ?, expires_at = ?
		WHERE id = ? AND redeemed_at IS NULL AND status = ?`,
		models.ShareActive, granteeID, now.UTC(), expiresAt.UTC(), id, models.SharePending)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteSharedAccess removes a grant owned by ownerID together with its
// report links. It reports whether a grant was deleted.
func (r *Repository) DeleteSharedAccess(ctx context.Context, ownerID, id int64) (bool, error) {
	if _, err := r.exec(ctx,
		`DELETE FROM shared_reports WHERE shared_access_id IN (SELECT id FROM shared_access WHERE id = ? AND owner_id = ?)`,
		id, ownerID); err != nil {
		return false, err
	}
	n, err := r.execAffected(ctx, `DELETE FROM shared_access WHERE id = ? AND owner_id = ?`, id, ownerID)
	return n > 0, err
}

// ListSharedAccessByOwner returns the grants an owner has created, newest first.
func (r *Repository) ListSharedAccessByOwner(ctx context.Context, ownerID int64) ([]models.SharedAccessView, error) {
	grants := []models.SharedAccessView{}
	err := r.selectAll(ctx, &grants,
		`SELECT `+sharedAccessColumns+`, u.email AS owner_email, COALESCE(i.full_name, '') AS owner_name,
			(SELECT count(*) FROM shared_reports sr WHERE sr.shared_access_id = sa.id) AS report_count
		FROM shared_access sa
		JOIN users u ON u.id = sa.owner_id
		LEFT JOIN individuals i ON i.user_id = sa.owner_id
		WHERE sa.owner_id = ?
		ORDER BY sa.created_at DESC, sa.id DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	return grants, nil
}

// ListSharedAccessByGrantee returns the active, unexpired grants redeemed by
// a user, newest first.
func (r *Repository) ListSharedAccessByGrantee(ctx context.Context, granteeID int64, now time.Time) ([]models.SharedAccessView, error) {
	grants := []models.SharedAccessView{}
	err := r.selectAll(ctx, &grants,
		`SELECT `+sharedAccessColumns+`, u.email AS owner_email, COALESCE(i.full_name, '') AS owner_name,
			(SELECT count(*) FROM shared_reports sr WHERE sr.shared_access_id = sa.id) AS report_count
		FROM shared_access sa
		JOIN users u ON u.id = sa.owner_id
		LEFT JOIN individuals i ON i.user_id = sa.owner_id
		WHERE sa.grantee_id = ? AND sa.status = ? AND sa.expires_at > ? AND u.deleted_at IS NULL
		ORDER BY sa.created_at DESC, sa.id DESC`, granteeID, models.ShareActive, now.UTC())
	if err != nil {
		return nil, err
	}
	return grants, nil
}

// CountSharedReports counts the reports linked to a grant.
func (r *Repository) CountSharedReports(ctx context.Context, grantID int64) (int, error) {
	var count int
	err := r.get(ctx, &count, `SELECT count(*) FROM shared_reports WHERE shared_access_id = ?`, grantID)
	return count, err
}

// CountOwnedReports counts how many of the given report ids belong to the user.
func (r *Repository) CountOwnedReports(ctx context.Context, userID int64, reportIDs []int64) (int, error) {
	if len(reportIDs) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`SELECT count(*) FROM reports WHERE user_id = ? AND id IN (?)`, userID, reportIDs)
	if err != nil {
		return 0, err
	}
	var count int
	err = r.get(ctx, &count, query, args...)
	return count, err
}
