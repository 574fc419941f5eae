// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/medivault/internal/appcontext"
	"codeberg.org/oliverandrich/medivault/internal/apperr"
	"codeberg.org/oliverandrich/medivault/internal/models"
	"codeberg.org/oliverandrich/medivault/internal/services/auth"
	"codeberg.org/oliverandrich/medivault/internal/services/session"
	"github.com/labstack/echo/v4"
)

// AuthHandlers contains handlers for registration, login and account
// management.
type AuthHandlers struct {
	auth     *auth.Service
	sessions *session.Manager
}

// NewAuth creates a new AuthHandlers instance.
func NewAuth(authService *auth.Service, sessions *session.Manager) *AuthHandlers {
	return &AuthHandlers{
		auth:     authService,
		sessions: sessions,
	}
}

// SendOTPRequest is the request body for starting a registration.
type SendOTPRequest struct {
	Contact string `json:"contact" validate:"required,max=254"`
	Method  string `json:"method" validate:"omitempty,oneof=email phone"`
}

// SendOTP sends a registration code to a new contact.
func (h *AuthHandlers) SendOTP(c echo.Context) error {
	var req SendOTPRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Method == "" {
		req.Method = string(models.ContactEmail)
	}

	result, err := h.auth.SendRegistrationOTP(c.Request().Context(), req.Contact, models.ContactType(req.Method))
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, "verification code sent", result)
}

// VerifyOTPRequest is the request body for redeeming a registration or
// login code.
type VerifyOTPRequest struct {
	Contact string `json:"contact" validate:"required,max=254"`
	OTP     string `json:"otp" validate:"required,len=6,numeric"`
	Purpose string `json:"purpose" validate:"omitempty,oneof=registration login"`
}

// VerifyOTP checks a code and starts a session.
func (h *AuthHandlers) VerifyOTP(c echo.Context) error {
	var req VerifyOTPRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.auth.VerifyOTP(c.Request().Context(), auth.VerifyParams{
		Contact:    req.Contact,
		Code:       req.OTP,
		Purpose:    models.OTPPurpose(req.Purpose),
		IP:         c.RealIP(),
		DeviceInfo: c.Request().UserAgent(),
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, "verification successful", result)
}

// ContactRequest is the request body of endpoints that only take a contact.
type ContactRequest struct {
	Contact string `json:"contact" validate:"required,max=254"`
}

// SendLoginOTP sends a login code to an existing account.
func (h *AuthHandlers) SendLoginOTP(c echo.Context) error {
	var req ContactRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.auth.SendLoginOTP(c.Request().Context(), req.Contact)
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, "login code sent", result)
}

// LoginRequest is the request body for password login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

// Login authenticates with email and password.
func (h *AuthHandlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.auth.LoginWithPassword(c.Request().Context(), auth.PasswordLoginParams{
		Email:      req.Email,
		Password:   req.Password,
		IP:         c.RealIP(),
		DeviceInfo: c.Request().UserAgent(),
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, "login successful", result)
}

// RefreshRequest is the request body for exchanging a refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// Refresh issues a new access token for a refresh token.
func (h *AuthHandlers) Refresh(c echo.Context) error {
	var req RefreshRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	pair, err := h.sessions.Refresh(c.Request().Context(), req.RefreshToken, c.RealIP(), c.Request().UserAgent())
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, "token refreshed", pair)
}

// ForgotPassword sends a reset code. It answers the same way whether or not
// the contact has an account.
func (h *AuthHandlers) ForgotPassword(c echo.Context) error {
	var req ContactRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.auth.RequestPasswordReset(c.Request().Context(), req.Contact); err != nil {
		return err
	}

	return respond(c, http.StatusOK, "if an account exists for this contact, a reset code has been sent", nil)
}

// ResetPasswordRequest is the request body for completing a reset.
type ResetPasswordRequest struct {
	Contact  string `json:"contact" validate:"required,max=254"`
	OTP      string `json:"otp" validate:"required,len=6,numeric"`
	Password string `json:"password" validate:"required"`
}

// ResetPassword sets a new password with a reset code.
func (h *AuthHandlers) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.auth.ResetPassword(c.Request().Context(), req.Contact, req.OTP, req.Password); err != nil {
		return err
	}

	return respond(c, http.StatusOK, "password has been reset, please log in again", nil)
}

// VerifyResponse describes the caller of a valid token.
type VerifyResponse struct {
	User            *models.User `json:"user"`
	ProfileComplete bool         `json:"profileComplete"`
}

// Verify returns the account behind the bearer token.
func (h *AuthHandlers) Verify(c echo.Context) error {
	ctx := c.Request().Context()
	userID := appcontext.UserID(c)

	user, err := h.auth.User(ctx, userID)
	if err != nil {
		return err
	}
	complete, err := h.auth.ProfileComplete(ctx, userID)
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, "token is valid", VerifyResponse{User: user, ProfileComplete: complete})
}

// Logout revokes the session of the bearer token.
func (h *AuthHandlers) Logout(c echo.Context) error {
	id := appcontext.IdentityOf(c)
	if id == nil {
		return apperr.ErrUnauthorized
	}

	if err := h.sessions.Revoke(c.Request().Context(), id.Token); err != nil {
		return err
	}

	return respond(c, http.StatusOK, "logged out", nil)
}

// ChangePasswordRequest is the request body for setting a password.
// CurrentPassword may be empty when the account has no password yet.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

// ChangePassword sets or replaces the caller's password.
func (h *AuthHandlers) ChangePassword(c echo.Context) error {
	var req ChangePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.auth.SetPassword(c.Request().Context(), appcontext.UserID(c), req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}

	return respond(c, http.StatusOK, "password updated", nil)
}

// DeleteAccount closes the caller's account and ends all sessions.
func (h *AuthHandlers) DeleteAccount(c echo.Context) error {
	if err := h.auth.CloseAccount(c.Request().Context(), appcontext.UserID(c)); err != nil {
		return err
	}

	return respond(c, http.StatusOK, "account closed", nil)
}
