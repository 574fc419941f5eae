// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package records_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"codeberg.org/oliverandrich/medivault/internal/models"
	"codeberg.org/oliverandrich/medivault/internal/repository"
	"codeberg.org/oliverandrich/medivault/internal/services/records"
	"codeberg.org/oliverandrich/medivault/internal/services/storage"
	"codeberg.org/oliverandrich/medivault/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pdfBody = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

type fixture struct {
	svc   *records.Service
	repo  *repository.Repository
	store *testutil.FakeStore
	user  *models.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	store := testutil.NewFakeStore()
	return &fixture{
		svc:   records.NewService(repo, store, 1<<20),
		repo:  repo,
		store: store,
		user:  testutil.NewTestUser(t, repo, "owner@example.com"),
	}
}

func (f *fixture) upload(t *testing.T, title string, body []byte) *models.Report {
	t.Helper()
	report, err := f.svc.Upload(context.Background(), records.UploadParams{
		UserID:     f.user.ID,
		Title:      title,
		ReportType: "lab",
		FileName:   title + ".pdf",
		Size:       int64(len(body)),
		Body:       bytes.NewReader(body),
	})
	require.NoError(t, err)
	return report
}

func TestProfile_NotFound(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Profile(context.Background(), f.user.ID)
	assert.ErrorIs(t, err, records.ErrProfileNotFound)
}

func TestUpdateProfile(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	dob := time.Date(1985, 3, 14, 0, 0, 0, 0, time.UTC)

	ind, err := f.svc.UpdateProfile(ctx, &models.Individual{UserID: f.user.ID, FullName: "  Jane Doe ", DateOfBirth: &dob})
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", ind.FullName)
	assert.True(t, ind.Complete())

	ind, err = f.svc.UpdateProfile(ctx, &models.Individual{UserID: f.user.ID, FullName: "Jane Smith"})
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", ind.FullName)
	assert.False(t, ind.Complete())
}

func TestUpdateHealthProfile(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.HealthProfile(ctx, f.user.ID)
	require.ErrorIs(t, err, records.ErrHealthProfileNotFound)

	height := 172.5
	hp, err := f.svc.UpdateHealthProfile(ctx, &models.HealthProfile{UserID: f.user.ID, BloodType: "A+", HeightCM: &height})
	require.NoError(t, err)
	assert.Equal(t, "A+", hp.BloodType)
	require.NotNil(t, hp.HeightCM)
	assert.InDelta(t, 172.5, *hp.HeightCM, 0.001)
}

func TestUpload(t *testing.T) {
	f := setup(t)

	report := f.upload(t, "bloodwork", pdfBody)

	assert.NotZero(t, report.ID)
	assert.Equal(t, "application/pdf", report.ContentType)
	assert.True(t, strings.HasPrefix(report.StorageKey, "reports/"))
	assert.True(t, f.store.Has(report.StorageKey))
	assert.Equal(t, pdfBody, f.store.Objects[report.StorageKey])
	assert.Equal(t, "application/pdf", f.store.Types[report.StorageKey])
}

func TestUpload_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body []byte
		size int64
		err  error
	}{
		{"empty", nil, 0, records.ErrEmptyFile},
		{"text file", []byte("just some notes"), 15, records.ErrUnsupportedFileType},
		{"too large", pdfBody, 2 << 20, records.ErrFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)

			_, err := f.svc.Upload(context.Background(), records.UploadParams{
				UserID:   f.user.ID,
				Title:    "x",
				FileName: "x.pdf",
				Size:     tt.size,
				Body:     bytes.NewReader(tt.body),
			})
			require.ErrorIs(t, err, tt.err)
			assert.Empty(t, f.store.Objects)
		})
	}
}

func TestUpload_StorageFailure(t *testing.T) {
	f := setup(t)
	f.store.Fail = storage.ErrUnavailable

	_, err := f.svc.Upload(context.Background(), records.UploadParams{
		UserID:   f.user.ID,
		Title:    "x",
		FileName: "x.pdf",
		Size:     int64(len(pdfBody)),
		Body:     bytes.NewReader(pdfBody),
	})
	require.ErrorIs(t, err, storage.ErrUnavailable)

	count, err := f.repo.CountReports(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestReport(t *testing.T) {
	f := setup(t)
	report := f.upload(t, "xray", pdfBody)

	detail, err := f.svc.Report(context.Background(), f.user.ID, report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.ID, detail.ID)
	assert.Contains(t, detail.DownloadURL, report.StorageKey)
	assert.Contains(t, detail.DownloadURL, "expires=900")
}

func TestReport_PresignFailureOmitsURL(t *testing.T) {
	f := setup(t)
	report := f.upload(t, "xray", pdfBody)
	f.store.Fail = errors.New("boom")

	detail, err := f.svc.Report(context.Background(), f.user.ID, report.ID)
	require.NoError(t, err)
	assert.Empty(t, detail.DownloadURL)
}

func TestReport_OtherUser(t *testing.T) {
	f := setup(t)
	report := f.upload(t, "xray", pdfBody)
	other := testutil.NewTestUser(t, f.repo, "other@example.com")

	_, err := f.svc.Report(context.Background(), other.ID, report.ID)
	assert.ErrorIs(t, err, records.ErrReportNotFound)

	err = f.svc.DeleteReport(context.Background(), other.ID, report.ID)
	assert.ErrorIs(t, err, records.ErrReportNotFound)
	assert.True(t, f.store.Has(report.StorageKey))
}

func TestDeleteReport(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	report := f.upload(t, "xray", pdfBody)

	require.NoError(t, f.svc.DeleteReport(ctx, f.user.ID, report.ID))
	assert.False(t, f.store.Has(report.StorageKey))

	reports, err := f.svc.Reports(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestDeleteReport_StorageFailureKeepsRow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	report := f.upload(t, "xray", pdfBody)
	f.store.Fail = storage.ErrUnavailable

	err := f.svc.DeleteReport(ctx, f.user.ID, report.ID)
	require.ErrorIs(t, err, storage.ErrUnavailable)

	reports, err := f.svc.Reports(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestVitals(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	earlier := time.Now().Add(-time.Hour)

	_, err := f.svc.RecordVital(ctx, &models.Vital{UserID: f.user.ID, VitalType: models.VitalHeartRate, Value: "72", Unit: "bpm", RecordedAt: earlier})
	require.NoError(t, err)
	_, err = f.svc.RecordVital(ctx, &models.Vital{UserID: f.user.ID, VitalType: models.VitalHeartRate, Value: "80", Unit: "bpm"})
	require.NoError(t, err)
	_, err = f.svc.RecordVital(ctx, &models.Vital{UserID: f.user.ID, VitalType: models.VitalBloodPressure, Value: " 120/80 ", Unit: "mmHg"})
	require.NoError(t, err)

	all, err := f.svc.Vitals(ctx, f.user.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	heart, err := f.svc.Vitals(ctx, f.user.ID, models.VitalHeartRate)
	require.NoError(t, err)
	require.Len(t, heart, 2)
	assert.Equal(t, "80", heart[0].Value)

	_, err = f.svc.Vitals(ctx, f.user.ID, "mood")
	assert.ErrorIs(t, err, records.ErrInvalidVitalType)
}

func TestRecordVital_InvalidType(t *testing.T) {
	f := setup(t)

	_, err := f.svc.RecordVital(context.Background(), &models.Vital{UserID: f.user.ID, VitalType: "mood", Value: "happy"})
	assert.ErrorIs(t, err, records.ErrInvalidVitalType)
}

func TestDeleteVital(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v, err := f.svc.RecordVital(ctx, &models.Vital{UserID: f.user.ID, VitalType: models.VitalWeight, Value: "70", Unit: "kg"})
	require.NoError(t, err)

	other := testutil.NewTestUser(t, f.repo, "other@example.com")
	assert.ErrorIs(t, f.svc.DeleteVital(ctx, other.ID, v.ID), records.ErrVitalNotFound)

	require.NoError(t, f.svc.DeleteVital(ctx, f.user.ID, v.ID))
	assert.ErrorIs(t, f.svc.DeleteVital(ctx, f.user.ID, v.ID), records.ErrVitalNotFound)
}

func TestDashboard(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	d, err := f.svc.Dashboard(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Zero(t, d.ReportCount)
	assert.Empty(t, d.LatestVitals)
	assert.False(t, d.ProfileComplete)

	f.upload(t, "a", pdfBody)
	f.upload(t, "b", pdfBody)
	_, err = f.svc.RecordVital(ctx, &models.Vital{UserID: f.user.ID, VitalType: models.VitalHeartRate, Value: "60", RecordedAt: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	_, err = f.svc.RecordVital(ctx, &models.Vital{UserID: f.user.ID, VitalType: models.VitalHeartRate, Value: "65"})
	require.NoError(t, err)
	dob := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = f.svc.UpdateProfile(ctx, &models.Individual{UserID: f.user.ID, FullName: "Jane", DateOfBirth: &dob})
	require.NoError(t, err)

	d, err = f.svc.Dashboard(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), d.ReportCount)
	require.Len(t, d.LatestVitals, 1)
	assert.Equal(t, "65", d.LatestVitals[0].Value)
	assert.True(t, d.ProfileComplete)
	assert.Zero(t, d.SharedByMe)
	assert.Zero(t, d.SharedWithMe)
}
