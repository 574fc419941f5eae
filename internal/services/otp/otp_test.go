// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package otp_test

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/medivault/internal/apperr"
	"codeberg.org/oliverandrich/medivault/internal/models"
	"codeberg.org/oliverandrich/medivault/internal/repository"
	"codeberg.org/oliverandrich/medivault/internal/services/otp"
	"codeberg.org/oliverandrich/medivault/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("otp-test-key")

func newIssuer(t *testing.T) (*otp.Issuer, *repository.Repository, *testutil.FakeMailer) {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	mailer := &testutil.FakeMailer{}
	return otp.NewIssuer(repo, mailer, testKey), repo, mailer
}

func issueParams(contact string, purpose models.OTPPurpose) otp.IssueParams {
	return otp.IssueParams{
		ContactType:  models.ContactEmail,
		ContactValue: contact,
		Purpose:      purpose,
	}
}

func TestGenerateCode_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^\d{6}$`)
	for range 200 {
		code, err := otp.GenerateCode()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
	}
}

func TestHashCode(t *testing.T) {
	h := otp.HashCode(testKey, "123456")

	assert.Len(t, h, 64)
	assert.Equal(t, h, otp.HashCode(testKey, "123456"))
	assert.NotEqual(t, h, otp.HashCode(testKey, "123457"))
	assert.NotEqual(t, h, otp.HashCode([]byte("other-key"), "123456"))
}

func TestIssue(t *testing.T) {
	issuer, repo, mailer := newIssuer(t)
	ctx := context.Background()

	rec, err := issuer.Issue(ctx, issueParams("jane@example.com", models.PurposeRegistration))

	require.NoError(t, err)
	assert.NotZero(t, rec.ID)
	assert.False(t, rec.Used)
	assert.WithinDuration(t, time.Now().Add(otp.Validity), rec.ExpiresAt, 5*time.Second)

	code := mailer.LastCode("jane@example.com")
	require.Len(t, code, otp.CodeLength)

	stored, err := repo.GetOTP(ctx, rec.ID)
	require.NoError(t, err)
	assert.NotEqual(t, code, stored.CodeHash)
	assert.Equal(t, otp.HashCode(testKey, code), stored.CodeHash)
}

func TestIssue_DispatchFailureRollsBack(t *testing.T) {
	issuer, repo, mailer := newIssuer(t)
	mailer.Fail = true
	ctx := context.Background()

	_, err := issuer.Issue(ctx, issueParams("jane@example.com", models.PurposeRegistration))

	require.Error(t, err)
	assert.ErrorIs(t, err, otp.ErrDispatchFailed)
	assert.ErrorIs(t, err, testutil.ErrFakeDelivery)
	assert.Equal(t, apperr.DependencyUnavailable, apperr.KindOf(err))

	count, err := repo.CountOTPs(ctx, "jane@example.com", models.PurposeRegistration)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIssue_PhoneUnsupported(t *testing.T) {
	issuer, _, mailer := newIssuer(t)

	_, err := issuer.Issue(context.Background(), otp.IssueParams{
		ContactType:  models.ContactPhone,
		ContactValue: "+4917012345678",
		Purpose:      models.PurposeRegistration,
	})

	assert.ErrorIs(t, err, otp.ErrUnsupportedChannel)
	assert.Empty(t, mailer.OTPs)
}

func TestVerify_Success(t *testing.T) {
	issuer, repo, mailer := newIssuer(t)
	ctx := context.Background()
	userID := testutil.NewTestUser(t, repo, "jane@example.com").ID

	p := issueParams("jane@example.com", models.PurposeLogin)
	p.UserID = &userID
	issued, err := issuer.Issue(ctx, p)
	require.NoError(t, err)

	rec, err := issuer.Verify(ctx, "jane@example.com", models.PurposeLogin, mailer.LastCode("jane@example.com"))

	require.NoError(t, err)
	assert.Equal(t, issued.ID, rec.ID)
	assert.True(t, rec.Used)
	require.NotNil(t, rec.UserID)
	assert.Equal(t, userID, *rec.UserID)

	stored, err := repo.GetOTP(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, stored.Used)
	assert.NotNil(t, stored.UsedAt)
}

func TestVerify_CodeCanOnlyBeUsedOnce(t *testing.T) {
	issuer, _, mailer := newIssuer(t)
	ctx := context.Background()

	_, err := issuer.Issue(ctx, issueParams("jane@example.com", models.PurposeRegistration))
	require.NoError(t, err)
	code := mailer.LastCode("jane@example.com")

	_, err = issuer.Verify(ctx, "jane@example.com", models.PurposeRegistration, code)
	require.NoError(t, err)

	_, err = issuer.Verify(ctx, "jane@example.com", models.PurposeRegistration, code)
	assert.ErrorIs(t, err, otp.ErrNoValidOTP)
}

func TestVerify_WrongCode(t *testing.T) {
	issuer, _, mailer := newIssuer(t)
	ctx := context.Background()

	_, err := issuer.Issue(ctx, issueParams("jane@example.com", models.PurposeRegistration))
	require.NoError(t, err)
	code := mailer.LastCode("jane@example.com")

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err = issuer.Verify(ctx, "jane@example.com", models.PurposeRegistration, wrong)
	assert.ErrorIs(t, err, otp.ErrCodeMismatch)

	// A failed attempt does not consume the code
	_, err = issuer.Verify(ctx, "jane@example.com", models.PurposeRegistration, code)
	assert.NoError(t, err)
}

func TestVerify_NeverIssued(t *testing.T) {
	issuer, _, _ := newIssuer(t)

	_, err := issuer.Verify(context.Background(), "nobody@example.com", models.PurposeRegistration, "123456")

	assert.ErrorIs(t, err, otp.ErrNoValidOTP)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestVerify_Expired(t *testing.T) {
	issuer, repo, _ := newIssuer(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-20 * time.Minute)
	require.NoError(t, repo.CreateOTP(ctx, &models.OTPRecord{
		ContactType:  models.ContactEmail,
		ContactValue: "jane@example.com",
		CodeHash:     otp.HashCode(testKey, "123456"),
		Purpose:      models.PurposeRegistration,
		ExpiresAt:    past.Add(otp.Validity),
		CreatedAt:    past,
	}))

	_, err := issuer.Verify(ctx, "jane@example.com", models.PurposeRegistration, "123456")

	assert.ErrorIs(t, err, otp.ErrNoValidOTP)
}

func TestVerify_PurposesAreNotInterchangeable(t *testing.T) {
	issuer, _, mailer := newIssuer(t)
	ctx := context.Background()

	_, err := issuer.Issue(ctx, issueParams("jane@example.com", models.PurposeRegistration))
	require.NoError(t, err)

	_, err = issuer.Verify(ctx, "jane@example.com", models.PurposeLogin, mailer.LastCode("jane@example.com"))

	assert.ErrorIs(t, err, otp.ErrNoValidOTP)
}

func TestVerify_LatestValidWins(t *testing.T) {
	issuer, _, mailer := newIssuer(t)
	ctx := context.Background()

	_, err := issuer.Issue(ctx, issueParams("jane@example.com", models.PurposeRegistration))
	require.NoError(t, err)
	first := mailer.LastCode("jane@example.com")

	_, err = issuer.Issue(ctx, issueParams("jane@example.com", models.PurposeRegistration))
	require.NoError(t, err)
	second := mailer.LastCode("jane@example.com")

	if first == second {
		t.Skip("both codes collided")
	}

	_, err = issuer.Verify(ctx, "jane@example.com", models.PurposeRegistration, first)
	assert.ErrorIs(t, err, otp.ErrCodeMismatch)

	_, err = issuer.Verify(ctx, "jane@example.com", models.PurposeRegistration, second)
	assert.NoError(t, err)
}

func TestVerify_TieBrokenByID(t *testing.T) {
	issuer, repo, _ := newIssuer(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for _, code := range []string{"111111", "222222"} {
		require.NoError(t, repo.CreateOTP(ctx, &models.OTPRecord{
			ContactType:  models.ContactEmail,
			ContactValue: "jane@example.com",
			CodeHash:     otp.HashCode(testKey, code),
			Purpose:      models.PurposeRegistration,
			ExpiresAt:    now.Add(otp.Validity),
			CreatedAt:    now,
		}))
	}

	_, err := issuer.Verify(ctx, "jane@example.com", models.PurposeRegistration, "111111")
	assert.ErrorIs(t, err, otp.ErrCodeMismatch)

	_, err = issuer.Verify(ctx, "jane@example.com", models.PurposeRegistration, "222222")
	assert.NoError(t, err)
}

func TestVerify_ConcurrentDoubleSubmitSucceedsOnce(t *testing.T) {
	issuer, _, mailer := newIssuer(t)
	ctx := context.Background()

	_, err := issuer.Issue(ctx, issueParams("jane@example.com", models.PurposeLogin))
	require.NoError(t, err)
	code := mailer.LastCode("jane@example.com")

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := issuer.Verify(ctx, "jane@example.com", models.PurposeLogin, code); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}
