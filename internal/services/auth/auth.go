// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth implements the account flows: OTP registration and login,
// password login with lockout, password reset and account closure.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"codeberg.org/oliverandrich/medivault/internal/apperr"
	"codeberg.org/oliverandrich/medivault/internal/config"
	"codeberg.org/oliverandrich/medivault/internal/models"
	"codeberg.org/oliverandrich/medivault/internal/repository"
	"codeberg.org/oliverandrich/medivault/internal/services/otp"
	"codeberg.org/oliverandrich/medivault/internal/services/session"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists         = apperr.New(apperr.Conflict, "an account with this email already exists")
	ErrUserNotFound       = apperr.New(apperr.NotFound, "no account found for this email")
	ErrInvalidCredentials = apperr.New(apperr.Unauthorized, "invalid email or password")
	ErrAccountLocked      = apperr.New(apperr.Forbidden, "account is temporarily locked, please try again later")
	ErrInvalidEmail       = apperr.New(apperr.Validation, "invalid email format")
	ErrInvalidPurpose     = apperr.New(apperr.Validation, "invalid verification purpose")
	ErrWeakPassword       = apperr.New(apperr.Validation, "password does not meet requirements")
	ErrWrongPassword      = apperr.New(apperr.Validation, "current password is incorrect")
)

// dummyHash is used for constant-time login to prevent timing attacks
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

// errInactive names the account status in the message.
func errInactive(status models.UserStatus) *apperr.Error {
	return apperr.New(apperr.Forbidden, fmt.Sprintf("account is %s", status))
}

type Service struct {
	repo              *repository.Repository
	otp               *otp.Issuer
	sessions          *session.Manager
	config            *config.AuthConfig
	passwordValidator *PasswordValidator
}

func NewService(repo *repository.Repository, issuer *otp.Issuer, sessions *session.Manager, cfg *config.AuthConfig) *Service {
	return &Service{
		repo:              repo,
		otp:               issuer,
		sessions:          sessions,
		config:            cfg,
		passwordValidator: DefaultPasswordValidator(),
	}
}

// PasswordValidator returns the password validator for use in handlers
func (s *Service) PasswordValidator() *PasswordValidator {
	return s.passwordValidator
}

// NormalizeEmail validates an address and returns it trimmed and lower-cased.
// Display-name forms such as "Jane <jane@example.com>" are rejected.
func NormalizeEmail(contact string) (string, error) {
	contact = strings.TrimSpace(contact)
	addr, err := mail.ParseAddress(contact)
	if err != nil || addr.Address != contact {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

type RegistrationResult struct {
	RegistrationID int64              `json:"registrationId"`
	ContactType    models.ContactType `json:"contactType"`
}

// SendRegistrationOTP starts a registration for an email address that has
// no account yet. When the code cannot be delivered, neither the code nor
// the registration attempt is kept.
func (s *Service) SendRegistrationOTP(ctx context.Context, contact string, method models.ContactType) (*RegistrationResult, error) {
	if method != models.ContactEmail {
		return nil, otp.ErrUnsupportedChannel
	}

	email, err := NormalizeEmail(contact)
	if err != nil {
		return nil, err
	}

	_, err = s.repo.GetUserByEmail(ctx, email)
	if err == nil {
		return nil, ErrUserExists
	}
	if !repository.IsNotFound(err) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	attempt := &models.RegistrationAttempt{
		ContactType:  method,
		ContactValue: email,
		ExpiresAt:    time.Now().Add(otp.Validity),
	}
	if err := s.repo.CreateRegistrationAttempt(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to create registration attempt: %w", err)
	}

	if _, err := s.otp.Issue(ctx, otp.IssueParams{
		ContactType:  method,
		ContactValue: email,
		Purpose:      models.PurposeRegistration,
	}); err != nil {
		if delErr := s.repo.DeleteRegistrationAttempt(context.WithoutCancel(ctx), attempt.ID); delErr != nil {
			slog.ErrorContext(ctx, "registration_rollback_failed", "attempt_id", attempt.ID, "error", delErr)
		}
		return nil, err
	}

	slog.InfoContext(ctx, "registration_started", "attempt_id", attempt.ID)
	return &RegistrationResult{RegistrationID: attempt.ID, ContactType: method}, nil
}

type VerifyParams struct {
	Contact    string
	Code       string
	Purpose    models.OTPPurpose
	IP         string
	DeviceInfo string
}

// LoginResult is returned by every flow that ends in a new session.
type LoginResult struct { //nolint:govet // fieldalignment: readability over optimization
	Token           string    `json:"token"`
	RefreshToken    string    `json:"refreshToken"`
	ExpiresAt       time.Time `json:"expiresAt"`
	UserID          int64     `json:"userId"`
	ProfileComplete bool      `json:"profileComplete"`
}

// VerifyOTP consumes a registration or login code and opens a session.
// Registration creates the account on first use. Purpose defaults to
// registration.
func (s *Service) VerifyOTP(ctx context.Context, p VerifyParams) (*LoginResult, error) {
	if p.Purpose == "" {
		p.Purpose = models.PurposeRegistration
	}
	if p.Purpose != models.PurposeRegistration && p.Purpose != models.PurposeLogin {
		return nil, ErrInvalidPurpose
	}

	email, err := NormalizeEmail(p.Contact)
	if err != nil {
		return nil, err
	}

	if _, err := s.otp.Verify(ctx, email, p.Purpose, p.Code); err != nil {
		return nil, err
	}

	var user *models.User
	if p.Purpose == models.PurposeRegistration {
		user, err = s.completeRegistration(ctx, email)
	} else {
		user, err = s.repo.GetUserByEmail(ctx, email)
		if repository.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
	}
	if err != nil {
		return nil, err
	}

	if user.Status != models.UserActive {
		return nil, errInactive(user.Status)
	}

	return s.startSession(ctx, user, p.IP, p.DeviceInfo)
}

// completeRegistration returns the account for a verified email, creating it
// when it does not exist yet.
func (s *Service) completeRegistration(ctx context.Context, email string) (*models.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if !user.EmailVerified {
			if err := s.repo.MarkEmailVerified(ctx, user.ID); err != nil {
				return nil, fmt.Errorf("failed to verify email: %w", err)
			}
			if user, err = s.repo.GetUserByID(ctx, user.ID); err != nil {
				return nil, fmt.Errorf("failed to get user: %w", err)
			}
		}
	case repository.IsNotFound(err):
		user, err = s.repo.CreateUser(ctx, email, models.UserActive, true)
		if errors.Is(err, repository.ErrConflict) {
			// A concurrent verification created the account first.
			user, err = s.repo.GetUserByEmail(ctx, email)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		slog.InfoContext(ctx, "register_success", "user_id", user.ID)
	default:
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if _, err := s.repo.CompleteRegistrationAttempts(ctx, email, user.ID); err != nil {
		return nil, fmt.Errorf("failed to complete registration: %w", err)
	}
	return user, nil
}

type LoginOTPResult struct {
	Email  string `json:"email"`
	UserID int64  `json:"userId"`
}

// SendLoginOTP sends a login code to an existing, active account.
func (s *Service) SendLoginOTP(ctx context.Context, contact string) (*LoginOTPResult, error) {
	email, err := NormalizeEmail(contact)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user.Status != models.UserActive {
		slog.WarnContext(ctx, "login_otp_refused", "user_id", user.ID, "status", user.Status)
		return nil, errInactive(user.Status)
	}

	if _, err := s.otp.Issue(ctx, otp.IssueParams{
		ContactType:  models.ContactEmail,
		ContactValue: email,
		Purpose:      models.PurposeLogin,
		UserID:       &user.ID,
	}); err != nil {
		return nil, err
	}

	return &LoginOTPResult{Email: user.Email, UserID: user.ID}, nil
}

type PasswordLoginParams struct {
	Email      string
	Password   string
	IP         string
	DeviceInfo string
}

// LoginWithPassword authenticates with email and password. Consecutive
// failures lock the account once the configured maximum is reached.
func (s *Service) LoginWithPassword(ctx context.Context, p PasswordLoginParams) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(p.Email))

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if repository.IsNotFound(err) {
			// Constant-time: always perform bcrypt comparison to prevent timing attacks
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(p.Password))
			slog.WarnContext(ctx, "login_failed", "reason", "user_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	now := time.Now()
	if user.IsLocked(now) {
		slog.WarnContext(ctx, "login_failed", "user_id", user.ID, "reason", "locked")
		return nil, ErrAccountLocked
	}

	if !user.HasPassword() {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(p.Password))
		slog.WarnContext(ctx, "login_failed", "user_id", user.ID, "reason", "no_password")
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(p.Password)); err != nil {
		if err := s.repo.RecordLoginFailure(ctx, user.ID, s.config.MaxFailedLogins, now.Add(s.config.LockoutDuration)); err != nil {
			return nil, fmt.Errorf("failed to record login failure: %w", err)
		}
		slog.WarnContext(ctx, "login_failed", "user_id", user.ID, "reason", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	if user.Status != models.UserActive {
		return nil, errInactive(user.Status)
	}

	return s.startSession(ctx, user, p.IP, p.DeviceInfo)
}

func (s *Service) startSession(ctx context.Context, user *models.User, ip, deviceInfo string) (*LoginResult, error) {
	pair, err := s.sessions.Issue(ctx, session.IssueParams{
		UserID:     user.ID,
		Email:      user.Email,
		Phone:      user.PhoneNumber(),
		IP:         ip,
		DeviceInfo: deviceInfo,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.RecordLoginSuccess(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}

	complete, err := s.ProfileComplete(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "login_success", "user_id", user.ID)
	return &LoginResult{
		Token:           pair.Token,
		RefreshToken:    pair.RefreshToken,
		ExpiresAt:       pair.ExpiresAt,
		UserID:          user.ID,
		ProfileComplete: complete,
	}, nil
}

// ProfileComplete reports whether the user has filled in the personal profile.
func (s *Service) ProfileComplete(ctx context.Context, userID int64) (bool, error) {
	ind, err := s.repo.GetIndividual(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get profile: %w", err)
	}
	return ind.Complete(), nil
}

// User returns the active account behind an authenticated request.
func (s *Service) User(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperr.ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user.Status != models.UserActive {
		return nil, errInactive(user.Status)
	}
	return user, nil
}

// SetPassword sets or changes the password of a user. Changing an existing
// password requires the current one.
func (s *Service) SetPassword(ctx context.Context, userID int64, currentPassword, newPassword string) error {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	if user.HasPassword() {
		if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(currentPassword)); err != nil {
			return ErrWrongPassword
		}
	}

	if err := s.passwordValidator.Validate(newPassword, user.Email).Err("newPassword"); err != nil {
		return err
	}

	if err := s.storePassword(ctx, userID, newPassword); err != nil {
		return err
	}

	slog.InfoContext(ctx, "password_changed", "user_id", userID)
	return nil
}

func (s *Service) storePassword(ctx context.Context, userID int64, password string) error {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.repo.UpdateUserPassword(ctx, userID, string(passwordHash)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// RequestPasswordReset sends a reset code when an active account exists.
// Unknown addresses get the same answer without a code being sent.
func (s *Service) RequestPasswordReset(ctx context.Context, contact string) error {
	email, err := NormalizeEmail(contact)
	if err != nil {
		return err
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if repository.IsNotFound(err) {
			slog.InfoContext(ctx, "password_reset_unknown_contact")
			return nil
		}
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user.Status != models.UserActive {
		slog.InfoContext(ctx, "password_reset_inactive_account", "user_id", user.ID, "status", user.Status)
		return nil
	}

	_, err = s.otp.Issue(ctx, otp.IssueParams{
		ContactType:  models.ContactEmail,
		ContactValue: email,
		Purpose:      models.PurposePasswordReset,
		UserID:       &user.ID,
	})
	return err
}

// ResetPassword sets a new password with a reset code. Every session of the
// account is revoked afterwards.
func (s *Service) ResetPassword(ctx context.Context, contact, code, newPassword string) error {
	email, err := NormalizeEmail(contact)
	if err != nil {
		return err
	}

	// Validate first so a rejected password does not burn the code.
	if err := s.passwordValidator.Validate(newPassword, email).Err("password"); err != nil {
		return err
	}

	if _, err := s.otp.Verify(ctx, email, models.PurposePasswordReset, code); err != nil {
		return err
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if repository.IsNotFound(err) {
			return otp.ErrNoValidOTP
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if err := s.storePassword(ctx, user.ID, newPassword); err != nil {
		return err
	}
	if err := s.sessions.RevokeAll(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	slog.InfoContext(ctx, "password_reset", "user_id", user.ID)
	return nil
}

// CloseAccount soft-deletes the account and ends all of its sessions.
func (s *Service) CloseAccount(ctx context.Context, userID int64) error {
	if err := s.repo.SoftDeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to close account: %w", err)
	}
	if err := s.sessions.RevokeAll(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	slog.InfoContext(ctx, "account_closed", "user_id", userID)
	return nil
}

// CleanupStats counts the rows removed by PurgeExpired.
type CleanupStats struct {
	OTPs                 int64
	RegistrationAttempts int64
	Sessions             int64
}

// PurgeExpired removes expired codes, registration attempts and sessions.
// Revoked sessions stay until no refresh token bound to them can be valid.
func (s *Service) PurgeExpired(ctx context.Context, now time.Time) (CleanupStats, error) {
	var stats CleanupStats
	var err error

	if stats.OTPs, err = s.repo.DeleteExpiredOTPs(ctx, now); err != nil {
		return stats, fmt.Errorf("failed to purge codes: %w", err)
	}
	if stats.RegistrationAttempts, err = s.repo.DeleteExpiredRegistrationAttempts(ctx, now); err != nil {
		return stats, fmt.Errorf("failed to purge registration attempts: %w", err)
	}
	if stats.Sessions, err = s.repo.DeleteExpiredSessions(ctx, now, now.Add(-s.config.RefreshDuration)); err != nil {
		return stats, fmt.Errorf("failed to purge sessions: %w", err)
	}

	return stats, nil
}
