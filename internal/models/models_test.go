// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models_test

import (
	"testing"
	"time"

	"codeberg.org/oliverandrich/medivault/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestUser_IsLocked(t *testing.T) {
	now := time.Now().UTC()
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	assert.False(t, (&models.User{}).IsLocked(now))
	assert.True(t, (&models.User{LockedUntil: &future}).IsLocked(now))
	assert.False(t, (&models.User{LockedUntil: &past}).IsLocked(now))
}

func TestUser_HasPassword(t *testing.T) {
	empty := ""
	hash := "$2a$10$abc"

	assert.False(t, (&models.User{}).HasPassword())
	assert.False(t, (&models.User{PasswordHash: &empty}).HasPassword())
	assert.True(t, (&models.User{PasswordHash: &hash}).HasPassword())
}

func TestSession_Valid(t *testing.T) {
	now := time.Now().UTC()
	revoked := now.Add(-time.Second)

	assert.True(t, (&models.Session{ExpiresAt: now.Add(time.Hour)}).Valid(now))
	assert.False(t, (&models.Session{ExpiresAt: now.Add(-time.Hour)}).Valid(now))
	assert.False(t, (&models.Session{ExpiresAt: now.Add(time.Hour), RevokedAt: &revoked}).Valid(now))
}

func TestSharedAccess_Live(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name   string
		status models.ShareStatus
		expiry time.Time
		live   bool
	}{
		{"pending unexpired", models.SharePending, now.Add(time.Hour), true},
		{"active unexpired", models.ShareActive, now.Add(time.Hour), true},
		{"active expired", models.ShareActive, now.Add(-time.Hour), false},
		{"revoked", models.ShareRevoked, now.Add(time.Hour), false},
		{"expired status", models.ShareExpired, now.Add(time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grant := &models.SharedAccess{Status: tt.status, ExpiresAt: tt.expiry}
			assert.Equal(t, tt.live, grant.Live(now))
		})
	}
}

func TestAccessLevel_Valid(t *testing.T) {
	assert.True(t, models.AccessFull.Valid())
	assert.True(t, models.AccessLimited.Valid())
	assert.True(t, models.AccessViewOnly.Valid())
	assert.False(t, models.AccessLevel("admin").Valid())
}

func TestIndividual_Complete(t *testing.T) {
	dob := time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC)

	var missing *models.Individual
	assert.False(t, missing.Complete())
	assert.False(t, (&models.Individual{FullName: "Jane Doe"}).Complete())
	assert.True(t, (&models.Individual{FullName: "Jane Doe", DateOfBirth: &dob}).Complete())
}

func TestVitalType_Valid(t *testing.T) {
	for _, vt := range models.VitalTypes {
		assert.True(t, vt.Valid(), string(vt))
	}
	assert.False(t, models.VitalType("mood").Valid())
}
