// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package otp issues and verifies six-digit one-time codes. Only a keyed
// hash of each code is stored.
package otp

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"codeberg.org/oliverandrich/medivault/internal/apperr"
	"codeberg.org/oliverandrich/medivault/internal/models"
	"codeberg.org/oliverandrich/medivault/internal/repository"
)

const (
	// CodeLength is the number of digits in a code.
	CodeLength = 6
	// Validity is how long a code can be used after issuance.
	Validity = 10 * time.Minute
)

var codeSpace = big.NewInt(1_000_000)

var (
	// ErrNoValidOTP covers codes that were never issued, already used or
	// expired. It shares its message with ErrCodeMismatch so clients
	// cannot tell the cases apart.
	ErrNoValidOTP = apperr.New(apperr.Validation, "Invalid OTP")
	// ErrCodeMismatch is returned for a wrong code and for losing a
	// concurrent verification of the same record.
	ErrCodeMismatch = apperr.New(apperr.Validation, "Invalid OTP")
	// ErrDispatchFailed means the code could not be delivered. No record
	// is left behind.
	ErrDispatchFailed = apperr.New(apperr.DependencyUnavailable, "could not send verification code")
	// ErrUnsupportedChannel is returned for contact types without a dispatcher.
	ErrUnsupportedChannel = apperr.New(apperr.Validation, "only email delivery is supported")
)

// Mailer delivers a code to its recipient.
type Mailer interface {
	SendOTP(ctx context.Context, to, code string, purpose models.OTPPurpose, validFor time.Duration) error
}

type Issuer struct {
	repo   *repository.Repository
	mailer Mailer
	key    []byte
}

// NewIssuer creates an issuer that hashes codes with key.
func NewIssuer(repo *repository.Repository, mailer Mailer, key []byte) *Issuer {
	return &Issuer{repo: repo, mailer: mailer, key: key}
}

type IssueParams struct { //nolint:govet // fieldalignment: readability over optimization
	ContactType  models.ContactType
	ContactValue string
	Purpose      models.OTPPurpose
	UserID       *int64
}

// Issue creates a code, stores its hash and dispatches it. When dispatch
// fails the stored record is deleted again and ErrDispatchFailed is returned.
func (i *Issuer) Issue(ctx context.Context, p IssueParams) (*models.OTPRecord, error) {
	if p.ContactType != models.ContactEmail {
		return nil, ErrUnsupportedChannel
	}

	code, err := GenerateCode()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	now := time.Now().UTC()
	rec := &models.OTPRecord{
		ContactType:  p.ContactType,
		ContactValue: p.ContactValue,
		CodeHash:     HashCode(i.key, code),
		Purpose:      p.Purpose,
		ExpiresAt:    now.Add(Validity),
		CreatedAt:    now,
		UserID:       p.UserID,
	}
	if err := i.repo.CreateOTP(ctx, rec); err != nil {
		return nil, fmt.Errorf("store code: %w", err)
	}

	if err := i.mailer.SendOTP(ctx, p.ContactValue, code, p.Purpose, Validity); err != nil {
		slog.ErrorContext(ctx, "otp_dispatch_failed",
			"otp_id", rec.ID,
			"purpose", p.Purpose,
			"error", err,
		)
		// The request context may already be done; the rollback must still run.
		if delErr := i.repo.DeleteOTP(context.WithoutCancel(ctx), rec.ID); delErr != nil {
			slog.ErrorContext(ctx, "otp_rollback_failed", "otp_id", rec.ID, "error", delErr)
		}
		return nil, apperr.Wrap(ErrDispatchFailed, err)
	}

	slog.InfoContext(ctx, "otp_issued", "otp_id", rec.ID, "purpose", p.Purpose)
	return rec, nil
}

// Verify checks code against the latest valid record for the contact and
// purpose and consumes it on success.
func (i *Issuer) Verify(ctx context.Context, contact string, purpose models.OTPPurpose, code string) (*models.OTPRecord, error) {
	now := time.Now().UTC()

	rec, err := i.repo.GetLatestValidOTP(ctx, contact, purpose, now)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNoValidOTP
		}
		return nil, fmt.Errorf("load code: %w", err)
	}

	submitted := HashCode(i.key, code)
	if subtle.ConstantTimeCompare([]byte(submitted), []byte(rec.CodeHash)) != 1 {
		slog.InfoContext(ctx, "otp_mismatch", "otp_id", rec.ID, "purpose", purpose)
		return nil, ErrCodeMismatch
	}

	ok, err := i.repo.MarkOTPUsed(ctx, rec.ID, now)
	if err != nil {
		return nil, fmt.Errorf("consume code: %w", err)
	}
	if !ok {
		return nil, ErrCodeMismatch
	}

	rec.Used = true
	rec.UsedAt = &now
	slog.InfoContext(ctx, "otp_verified", "otp_id", rec.ID, "purpose", purpose)
	return rec, nil
}

// GenerateCode returns a uniformly distributed code with leading zeros.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// HashCode returns the hex HMAC-SHA256 of code keyed with key.
func HashCode(key []byte, code string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}
