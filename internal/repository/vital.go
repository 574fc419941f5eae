// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/oliverandrich/medivault/internal/models"
)

const vitalColumns = `v.id, v.user_id, v.vital_type, v.value, v.unit, v.recorded_at, v.notes, v.created_at`

// CreateVital inserts a measurement and sets its ID.
func (r *Repository) CreateVital(ctx context.Context, v *models.Vital) error {
	v.CreatedAt = utcNow()
	if v.RecordedAt.IsZero() {
		v.RecordedAt = v.CreatedAt
	}
	v.RecordedAt = v.RecordedAt.UTC()
	id, err := r.insert(ctx,
		`INSERT INTO vitals (user_id, vital_type, value, unit, recorded_at, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		v.UserID, v.VitalType, v.Value, v.Unit, v.RecordedAt, v.Notes, v.CreatedAt)
	if err != nil {
		return err
	}
	v.ID = id
	return nil
}

// ListVitals returns a user's measurements, most recent first. An empty
// vitalType lists all types.
func (r *Repository) ListVitals(ctx context.Context, userID int64, vitalType models.VitalType) ([]models.Vital, error) {
	vitals := []models.Vital{}
	query := `SELECT ` + vitalColumns + ` FROM vitals v WHERE v.user_id = ?`
	args := []any{userID}
	if vitalType != "" {
		query += ` AND v.vital_type = ?`
		args = append(args, vitalType)
	}
	query += ` ORDER BY v.recorded_at DESC, v.id DESC`

	if err := r.selectAll(ctx, &vitals, query, args...); err != nil {
		return nil, err
	}
	return vitals, nil
}

// LatestVitals returns the most recent measurement of each type.
func (r *Repository) LatestVitals(ctx context.Context, userID int64) ([]models.Vital, error) {
	vitals := []models.Vital{}
	err := r.selectAll(ctx, &vitals,
		`SELECT `+vitalColumns+` FROM vitals v
		WHERE v.user_id = ? AND v.id = (
			SELECT v2.id FROM vitals v2
			WHERE v2.user_id = v.user_id AND v2.vital_type = v.vital_type
			ORDER BY v2.recorded_at DESC, v2.id DESC
			LIMIT 1
		)
		ORDER BY v.vital_type`, userID)
	if err != nil {
		return nil, err
	}
	return vitals, nil
}

// DeleteVital removes a measurement owned by userID.
func (r *Repository) DeleteVital(ctx context.Context, userID, id int64) (bool, error) {
	n, err := r.execAffected(ctx, `DELETE FROM vitals WHERE id = ? AND user_id = ?`, id, userID)
	return n > 0, err
}
