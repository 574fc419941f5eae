// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/oliverandrich/medivault/internal/models"
)

// GetIndividual retrieves the personal profile of a user.
func (r *Repository) GetIndividual(ctx context.Context, userID int64) (*models.Individual, error) {
	var ind models.Individual
	err := r.get(ctx, &ind,
		`SELECT id, user_id, full_name, date_of_birth, gender, phone, address, created_at, updated_at
		FROM individuals WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	return &ind, nil
}

// UpsertIndividual creates or replaces the personal profile of a user.
func (r *Repository) UpsertIndividual(ctx context.Context, ind *models.Individual) error {
	now := utcNow()
	if ind.DateOfBirth != nil {
		d := ind.DateOfBirth.UTC()
		ind.DateOfBirth = &d
	}
	id, err := r.insert(ctx,
		`INSERT INTO individuals (user_id, full_name, date_of_birth, gender, phone, address, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			full_name = excluded.full_name,
			date_of_birth = excluded.date_of_birth,
			gender = excluded.gender,
			phone = excluded.phone,
			address = excluded.address,
			updated_at = excluded.updated_at
		RETURNING id`,
		ind.UserID, ind.FullName, ind.DateOfBirth, ind.Gender, ind.Phone, ind.Address, now, now)
	if err != nil {
		return err
	}
	ind.ID = id
	ind.UpdatedAt = now
	return nil
}

// GetHealthProfile retrieves the health profile of a user.
func (r *Repository) GetHealthProfile(ctx context.Context, userID int64) (*models.HealthProfile, error) {
	var hp models.HealthProfile
	err := r.get(ctx, &hp,
		`SELECT id, user_id, blood_type, height_cm, weight_kg, allergies, chronic_conditions, current_medications,
			emergency_contact_name, emergency_contact_phone, created_at, updated_at
		FROM health_profiles WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	return &hp, nil
}

// UpsertHealthProfile creates or replaces the health profile of a user.
func (r *Repository) UpsertHealthProfile(ctx context.Context, hp *models.HealthProfile) error {
	now := utcNow()
	id, err := r.insert(ctx,
		`INSERT INTO health_profiles (user_id, blood_type, height_cm, weight_kg, allergies, chronic_conditions,
			current_medications, emergency_contact_name, emergency_contact_phone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			blood_type = excluded.blood_type,
			height_cm = excluded.height_cm,
			weight_kg = excluded.weight_kg,
			allergies = excluded.allergies,
			chronic_conditions = excluded.chronic_conditions,
			current_medications = excluded.current_medications,
			emergency_contact_name = excluded.emergency_contact_name,
			emergency_contact_phone = excluded.emergency_contact_phone,
			updated_at = excluded.updated_at
		RETURNING id`,
		hp.UserID, hp.BloodType, hp.HeightCM, hp.WeightKG, hp.Allergies, hp.ChronicConditions,
		hp.CurrentMedications, hp.EmergencyContactName, hp.EmergencyContactPhone, now, now)
	if err != nil {
		return err
	}
	hp.ID = id
	hp.UpdatedAt = now
	return nil
}
