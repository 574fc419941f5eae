// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package sharing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/medivault/internal/apperr"
	"codeberg.org/oliverandrich/medivault/internal/models"
	"codeberg.org/oliverandrich/medivault/internal/repository"
	"codeberg.org/oliverandrich/medivault/internal/services/sharing"
	"codeberg.org/oliverandrich/medivault/internal/testutil"
	"codeberg.org/oliverandrich/medivault/internal/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc    *sharing.Service
	repo   *repository.Repository
	mailer *testutil.FakeMailer
	store  *testutil.FakeStore
	owner  *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	mailer := &testutil.FakeMailer{}
	store := testutil.NewFakeStore()
	return &fixture{
		svc:    sharing.NewService(repo, mailer, store),
		repo:   repo,
		mailer: mailer,
		store:  store,
		owner:  testutil.NewTestUser(t, repo, "owner@example.com"),
	}
}

// share creates a grant and returns it with the token from the invitation email.
func (f *fixture) share(t *testing.T, target string, level models.AccessLevel, reportIDs ...int64) (*models.SharedAccess, string) {
	t.Helper()
	grant, err := f.svc.Create(context.Background(), sharing.CreateParams{
		OwnerID:     f.owner.ID,
		TargetEmail: target,
		TargetName:  "Dr. Who",
		AccessLevel: level,
		ReportIDs:   reportIDs,
	})
	require.NoError(t, err)
	inv, ok := f.mailer.LastInvitation()
	require.True(t, ok)
	return grant, inv.Invitation.Token
}

func caller(u *models.User) *sharing.Caller {
	return &sharing.Caller{UserID: u.ID, Email: u.Email}
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	report := testutil.NewTestReport(t, f.repo, f.owner.ID, "bloodwork")

	grant, token := f.share(t, "Doctor@Example.com", models.AccessLimited, report.ID)

	assert.NotZero(t, grant.ID)
	assert.Equal(t, "doctor@example.com", grant.TargetEmail)
	assert.Equal(t, models.SharePending, grant.Status)
	assert.WithinDuration(t, time.Now().Add(sharing.InvitationValidity), grant.ExpiresAt, 5*time.Second)

	assert.Len(t, token, 2*tokens.Length)
	assert.Equal(t, tokens.Hash(token), grant.TokenHash)

	inv, _ := f.mailer.LastInvitation()
	assert.Equal(t, "doctor@example.com", inv.To)
	assert.Equal(t, "owner@example.com", inv.Invitation.OwnerName)
	assert.Equal(t, "Dr. Who", inv.Invitation.RecipientName)
	assert.Equal(t, 1, inv.Invitation.ReportCount)

	count, err := f.repo.CountSharedReports(context.Background(), grant.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreate_UsesProfileNameInInvitation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.UpsertIndividual(context.Background(), &models.Individual{
		UserID:   f.owner.ID,
		FullName: "Olivia Owner",
	}))

	f.share(t, "doctor@example.com", models.AccessFull)

	inv, _ := f.mailer.LastInvitation()
	assert.Equal(t, "Olivia Owner", inv.Invitation.OwnerName)
}

func TestCreate_InvalidAccessLevel(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), sharing.CreateParams{
		OwnerID:     f.owner.ID,
		TargetEmail: "doctor@example.com",
		AccessLevel: "admin",
	})

	assert.ErrorIs(t, err, sharing.ErrInvalidAccessLevel)
}

func TestCreate_SelfShare(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), sharing.CreateParams{
		OwnerID:     f.owner.ID,
		TargetEmail: "OWNER@example.com",
		AccessLevel: models.AccessFull,
	})

	assert.ErrorIs(t, err, sharing.ErrSelfShare)
}

func TestCreate_ForeignReport(t *testing.T) {
	f := newFixture(t)
	other := testutil.NewTestUser(t, f.repo, "other@example.com")
	foreign := testutil.NewTestReport(t, f.repo, other.ID, "not-mine")

	_, err := f.svc.Create(context.Background(), sharing.CreateParams{
		OwnerID:     f.owner.ID,
		TargetEmail: "doctor@example.com",
		AccessLevel: models.AccessLimited,
		ReportIDs:   []int64{foreign.ID},
	})

	assert.ErrorIs(t, err, sharing.ErrReportNotFound)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	assert.Empty(t, f.mailer.Invitations)
}

func TestCreate_DuplicateReportIDs(t *testing.T) {
	f := newFixture(t)
	report := testutil.NewTestReport(t, f.repo, f.owner.ID, "xray")

	grant, _ := f.share(t, "doctor@example.com", models.AccessLimited, report.ID, report.ID)

	count, err := f.repo.CountSharedReports(context.Background(), grant.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreate_DuplicateGrant(t *testing.T) {
	f := newFixture(t)
	f.share(t, "doctor@example.com", models.AccessFull)

	_, err := f.svc.Create(context.Background(), sharing.CreateParams{
		OwnerID:     f.owner.ID,
		TargetEmail: "doctor@example.com",
		AccessLevel: models.AccessViewOnly,
	})

	assert.ErrorIs(t, err, sharing.ErrDuplicateGrant)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
}

func TestCreate_DuplicateWhileActive(t *testing.T) {
	f := newFixture(t)
	doctor := testutil.NewTestUser(t, f.repo, "doctor@example.com")
	_, token := f.share(t, doctor.Email, models.AccessFull)
	_, err := f.svc.Redeem(context.Background(), token, caller(doctor))
	require.NoError(t, err)

	_, err = f.svc.Create(context.Background(), sharing.CreateParams{
		OwnerID:     f.owner.ID,
		TargetEmail: doctor.Email,
		AccessLevel: models.AccessFull,
	})

	assert.ErrorIs(t, err, sharing.ErrDuplicateGrant)
}

func TestCreate_AfterRevokeSucceeds(t *testing.T) {
	f := newFixture(t)
	grant, _ := f.share(t, "doctor@example.com", models.AccessFull)
	require.NoError(t, f.svc.Revoke(context.Background(), f.owner.ID, grant.ID))

	second, _ := f.share(t, "doctor@example.com", models.AccessFull)

	assert.NotEqual(t, grant.ID, second.ID)
}

func TestCreate_StaleGrantIsExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.CreateSharedAccess(ctx, &models.SharedAccess{
		OwnerID:     f.owner.ID,
		TargetEmail: "doctor@example.com",
		AccessLevel: models.AccessFull,
		Status:      models.SharePending,
		TokenHash:   tokens.Hash("stale"),
		ExpiresAt:   time.Now().Add(-time.Hour),
	}))

	f.share(t, "doctor@example.com", models.AccessFull)

	stale, err := f.repo.GetSharedAccessByTokenHash(ctx, tokens.Hash("stale"))
	require.NoError(t, err)
	assert.Equal(t, models.ShareExpired, stale.Status)
}

func TestCreate_DifferentOwnersMayShareWithSameEmail(t *testing.T) {
	f := newFixture(t)
	f.share(t, "doctor@example.com", models.AccessFull)
	other := testutil.NewTestUser(t, f.repo, "other@example.com")

	_, err := f.svc.Create(context.Background(), sharing.CreateParams{
		OwnerID:     other.ID,
		TargetEmail: "doctor@example.com",
		AccessLevel: models.AccessFull,
	})

	assert.NoError(t, err)
}

func TestCreate_EmailFailureKeepsGrant(t *testing.T) {
	f := newFixture(t)
	f.mailer.Fail = true

	grant, err := f.svc.Create(context.Background(), sharing.CreateParams{
		OwnerID:     f.owner.ID,
		TargetEmail: "doctor@example.com",
		AccessLevel: models.AccessFull,
	})

	require.NoError(t, err)
	stored, err := f.repo.GetSharedAccess(context.Background(), grant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SharePending, stored.Status)
}

func TestValidateToken(t *testing.T) {
	f := newFixture(t)
	a := testutil.NewTestReport(t, f.repo, f.owner.ID, "a")
	b := testutil.NewTestReport(t, f.repo, f.owner.ID, "b")
	grant, token := f.share(t, "doctor@example.com", models.AccessLimited, a.ID, b.ID)

	inv, err := f.svc.ValidateToken(context.Background(), token)

	require.NoError(t, err)
	assert.Equal(t, grant.ID, inv.ID)
	assert.Equal(t, f.owner.ID, inv.OwnerID)
	assert.Equal(t, models.AccessLimited, inv.AccessLevel)
	assert.Equal(t, "doctor@example.com", inv.TargetEmail)
	assert.Equal(t, 2, inv.ReportCount)
	assert.WithinDuration(t, grant.ExpiresAt, inv.ExpiresAt, time.Second)
}

func TestValidateToken_FullCountsAllReports(t *testing.T) {
	f := newFixture(t)
	testutil.NewTestReport(t, f.repo, f.owner.ID, "a")
	testutil.NewTestReport(t, f.repo, f.owner.ID, "b")
	testutil.NewTestReport(t, f.repo, f.owner.ID, "c")
	_, token := f.share(t, "doctor@example.com", models.AccessFull)

	inv, err := f.svc.ValidateToken(context.Background(), token)

	require.NoError(t, err)
	assert.Equal(t, 3, inv.ReportCount)
}

func TestValidateToken_NotFound(t *testing.T) {
	f := newFixture(t)

	for _, token := range []string{"", "deadbeef"} {
		_, err := f.svc.ValidateToken(context.Background(), token)
		assert.ErrorIs(t, err, sharing.ErrTokenNotFound)
	}
}

func TestValidateToken_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.CreateSharedAccess(ctx, &models.SharedAccess{
		OwnerID:     f.owner.ID,
		TargetEmail: "doctor@example.com",
		AccessLevel: models.AccessFull,
		Status:      models.SharePending,
		TokenHash:   tokens.Hash("old-token"),
		ExpiresAt:   time.Now().Add(-time.Minute),
	}))

	_, err := f.svc.ValidateToken(ctx, "old-token")

	assert.ErrorIs(t, err, sharing.ErrTokenExpired)
	assert.NotErrorIs(t, err, sharing.ErrTokenNotFound)
}

func TestRedeem_LoginRequired(t *testing.T) {
	f := newFixture(t)
	grant, token := f.share(t, "doctor@example.com", models.AccessFull)

	res, err := f.svc.Redeem(context.Background(), token, nil)

	require.NoError(t, err)
	assert.False(t, res.Activated)
	assert.True(t, res.LoginRequired)

	stored, err := f.repo.GetSharedAccess(context.Background(), grant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SharePending, stored.Status)
	assert.Nil(t, stored.RedeemedAt)
}

func TestRedeem_Activates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doctor := testutil.NewTestUser(t, f.repo, "doctor@example.com")
	grant, token := f.share(t, "doctor@example.com", models.AccessFull)

	res, err := f.svc.Redeem(ctx, token, &sharing.Caller{UserID: doctor.ID, Email: "Doctor@Example.com"})

	require.NoError(t, err)
	assert.True(t, res.Activated)
	assert.False(t, res.LoginRequired)

	stored, err := f.repo.GetSharedAccess(ctx, grant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ShareActive, stored.Status)
	require.NotNil(t, stored.GranteeID)
	assert.Equal(t, doctor.ID, *stored.GranteeID)
	assert.NotNil(t, stored.RedeemedAt)
	assert.WithinDuration(t, time.Now().Add(sharing.InvitationValidity), stored.ExpiresAt, 5*time.Second)
}

func TestRedeem_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doctor := testutil.NewTestUser(t, f.repo, "doctor@example.com")
	_, token := f.share(t, doctor.Email, models.AccessFull)

	_, err := f.svc.Redeem(ctx, token, caller(doctor))
	require.NoError(t, err)

	_, err = f.svc.Redeem(ctx, token, caller(doctor))
	assert.ErrorIs(t, err, sharing.ErrTokenAlreadyUsed)

	_, err = f.svc.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, sharing.ErrTokenAlreadyUsed)
}

func TestRedeem_EmailMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stranger := testutil.NewTestUser(t, f.repo, "stranger@example.com")
	doctor := testutil.NewTestUser(t, f.repo, "doctor@example.com")
	grant, token := f.share(t, doctor.Email, models.AccessFull)

	res, err := f.svc.Redeem(ctx, token, caller(stranger))

	require.NoError(t, err)
	assert.False(t, res.Activated)
	assert.False(t, res.LoginRequired)

	stored, err := f.repo.GetSharedAccess(ctx, grant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SharePending, stored.Status)
	assert.Nil(t, stored.GranteeID)

	// The rightful recipient can still redeem
	res, err = f.svc.Redeem(ctx, token, caller(doctor))
	require.NoError(t, err)
	assert.True(t, res.Activated)
}

func TestRedeem_ConcurrentOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doctor := testutil.NewTestUser(t, f.repo, "doctor@example.com")
	_, token := f.share(t, doctor.Email, models.AccessFull)

	const attempts = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		activated int
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Redeem(ctx, token, caller(doctor))
			if err == nil && res.Activated {
				mu.Lock()
				activated++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, activated)
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	report := testutil.NewTestReport(t, f.repo, f.owner.ID, "a")
	grant, token := f.share(t, "doctor@example.com", models.AccessLimited, report.ID)

	require.NoError(t, f.svc.Revoke(ctx, f.owner.ID, grant.ID))

	_, err := f.repo.GetSharedAccess(ctx, grant.ID)
	assert.True(t, repository.IsNotFound(err))
	count, err := f.repo.CountSharedReports(ctx, grant.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = f.svc.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, sharing.ErrTokenNotFound)
}

func TestRevoke_NotOwner(t *testing.T) {
	f := newFixture(t)
	other := testutil.NewTestUser(t, f.repo, "other@example.com")
	grant, _ := f.share(t, "doctor@example.com", models.AccessFull)

	err := f.svc.Revoke(context.Background(), other.ID, grant.ID)

	assert.ErrorIs(t, err, sharing.ErrGrantNotFound)
	_, err = f.repo.GetSharedAccess(context.Background(), grant.ID)
	assert.NoError(t, err)
}

func TestRevoke_Unknown(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Revoke(context.Background(), f.owner.ID, 999)

	assert.ErrorIs(t, err, sharing.ErrGrantNotFound)
}

func TestListOwnedAndSharedWithMe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doctor := testutil.NewTestUser(t, f.repo, "doctor@example.com")
	report := testutil.NewTestReport(t, f.repo, f.owner.ID, "a")
	_, token := f.share(t, doctor.Email, models.AccessLimited, report.ID)
	f.share(t, "nurse@example.com", models.AccessViewOnly)

	owned, err := f.svc.ListOwned(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.Len(t, owned, 2)

	withMe, err := f.svc.ListSharedWithMe(ctx, doctor.ID)
	require.NoError(t, err)
	assert.Empty(t, withMe)

	_, err = f.svc.Redeem(ctx, token, caller(doctor))
	require.NoError(t, err)

	withMe, err = f.svc.ListSharedWithMe(ctx, doctor.ID)
	require.NoError(t, err)
	require.Len(t, withMe, 1)
	assert.Equal(t, "owner@example.com", withMe[0].OwnerEmail)
	assert.Equal(t, 1, withMe[0].ReportCount)
}

func TestSharedReports(t *testing.T) {
	tests := []struct {
		level       models.AccessLevel
		wantReports int
		wantURLs    bool
	}{
		{models.AccessFull, 3, true},
		{models.AccessLimited, 1, true},
		{models.AccessViewOnly, 1, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			doctor := testutil.NewTestUser(t, f.repo, "doctor@example.com")
			shared := testutil.NewTestReport(t, f.repo, f.owner.ID, "shared")
			testutil.NewTestReport(t, f.repo, f.owner.ID, "private-1")
			testutil.NewTestReport(t, f.repo, f.owner.ID, "private-2")

			grant, token := f.share(t, doctor.Email, tt.level, shared.ID)
			_, err := f.svc.Redeem(ctx, token, caller(doctor))
			require.NoError(t, err)

			reports, err := f.svc.SharedReports(ctx, doctor.ID, grant.ID)

			require.NoError(t, err)
			require.Len(t, reports, tt.wantReports)
			for _, r := range reports {
				if tt.wantURLs {
					assert.Contains(t, r.DownloadURL, r.StorageKey)
				} else {
					assert.Empty(t, r.DownloadURL)
				}
			}
		})
	}
}

func TestSharedReports_RequiresRedeemedGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doctor := testutil.NewTestUser(t, f.repo, "doctor@example.com")
	stranger := testutil.NewTestUser(t, f.repo, "stranger@example.com")
	grant, token := f.share(t, doctor.Email, models.AccessFull)

	_, err := f.svc.SharedReports(ctx, doctor.ID, grant.ID)
	assert.ErrorIs(t, err, sharing.ErrGrantNotFound)

	_, err = f.svc.Redeem(ctx, token, caller(doctor))
	require.NoError(t, err)

	_, err = f.svc.SharedReports(ctx, stranger.ID, grant.ID)
	assert.ErrorIs(t, err, sharing.ErrGrantNotFound)

	require.NoError(t, f.svc.Revoke(ctx, f.owner.ID, grant.ID))
	_, err = f.svc.SharedReports(ctx, doctor.ID, grant.ID)
	assert.ErrorIs(t, err, sharing.ErrGrantNotFound)
}
