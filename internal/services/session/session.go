// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session issues bearer tokens and tracks them server-side.
//
// Access tokens are HS256 JWTs. Each issued token has a session row keyed by
// the SHA-256 of the token so it can be revoked before it expires. Refresh
// tokens are opaque securecookie values bound to the session they were
// issued with. They stop working when that session is revoked or when all
// sessions of the user are revoked after they were issued.
package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"codeberg.org/oliverandrich/medivault/internal/apperr"
	"codeberg.org/oliverandrich/medivault/internal/config"
	"codeberg.org/oliverandrich/medivault/internal/models"
	"codeberg.org/oliverandrich/medivault/internal/repository"
	"codeberg.org/oliverandrich/medivault/internal/tokens"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

const refreshCookieName = "medivault_refresh"

var (
	ErrInvalidOrExpiredToken = apperr.New(apperr.Unauthorized, "invalid or expired token")
	ErrSessionRevoked        = apperr.New(apperr.Unauthorized, "session has been revoked")
	ErrInvalidRefreshToken   = apperr.New(apperr.Unauthorized, "invalid refresh token")
	ErrAccountInactive       = apperr.New(apperr.Unauthorized, "account is not active")
)

// Claims is the payload of an access token.
type Claims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Phone  string `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair is returned after every successful login or refresh.
type TokenPair struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type refreshPayload struct {
	UserID    int64 `json:"uid"`
	SessionID int64 `json:"sid"`
	// IssuedAt is in Unix microseconds.
	IssuedAt int64 `json:"iat"`
}

// Manager signs, validates and revokes tokens.
type Manager struct {
	repo            *repository.Repository
	secret          []byte
	refresh         *securecookie.SecureCookie
	sessionDuration time.Duration
	refreshDuration time.Duration
}

// NewManager creates a manager from the auth configuration. The refresh hash
// key is required, the block key enables encryption of refresh tokens.
func NewManager(cfg *config.AuthConfig, repo *repository.Repository) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required")
	}

	hashKey, err := decodeKey(cfg.RefreshHashKey)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh hash key: %w", err)
	}
	if len(hashKey) != 32 {
		return nil, errors.New("refresh hash key must be 32 bytes (64 hex characters)")
	}

	var blockKey []byte
	if cfg.RefreshBlockKey != "" {
		blockKey, err = decodeKey(cfg.RefreshBlockKey)
		if err != nil {
			return nil, fmt.Errorf("invalid refresh block key: %w", err)
		}
		if len(blockKey) != 32 {
			return nil, errors.New("refresh block key must be 32 bytes (64 hex characters)")
		}
	}

	sc := securecookie.New(hashKey, blockKey)
	sc.SetSerializer(securecookie.JSONEncoder{})
	sc.MaxAge(int(cfg.RefreshDuration.Seconds()))

	return &Manager{
		repo:            repo,
		secret:          []byte(cfg.JWTSecret),
		refresh:         sc,
		sessionDuration: cfg.SessionDuration,
		refreshDuration: cfg.RefreshDuration,
	}, nil
}

func decodeKey(s string) ([]byte, error) {
	if s == "" {
		return nil, errors.New("key is empty")
	}
	return hex.DecodeString(s)
}

type IssueParams struct {
	UserID     int64
	Email      string
	Phone      string
	IP         string
	DeviceInfo string
}

// Issue signs a new access token, records its session and creates a
// refresh token for the same user.
func (m *Manager) Issue(ctx context.Context, p IssueParams) (*TokenPair, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	expiresAt := now.Add(m.sessionDuration)

	claims := Claims{
		UserID: p.UserID,
		Email:  p.Email,
		Phone:  p.Phone,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(p.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	s := &models.Session{
		UserID:     p.UserID,
		TokenHash:  tokens.Hash(token),
		DeviceInfo: p.DeviceInfo,
		IPAddress:  p.IP,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
	}
	if err := m.repo.CreateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	refresh, err := m.refresh.Encode(refreshCookieName, refreshPayload{
		UserID:    p.UserID,
		SessionID: s.ID,
		IssuedAt:  now.UnixMicro(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode refresh token: %w", err)
	}

	slog.InfoContext(ctx, "session_issued", "user_id", p.UserID, "ip", p.IP)

	return &TokenPair{Token: token, RefreshToken: refresh, ExpiresAt: expiresAt}, nil
}

// Validate checks signature, algorithm and expiry of an access token.
func (m *Manager) Validate(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || claims.UserID == 0 {
		return nil, ErrInvalidOrExpiredToken
	}
	return claims, nil
}

// Authenticate validates the token and rejects it when its session has been
// revoked or never existed, or when the account is no longer active.
func (m *Manager) Authenticate(ctx context.Context, token string) (*Claims, error) {
	claims, err := m.Validate(token)
	if err != nil {
		return nil, err
	}

	s, err := m.repo.GetSessionByTokenHash(ctx, tokens.Hash(token))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if s.RevokedAt != nil {
		return nil, ErrSessionRevoked
	}

	user, err := m.repo.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrAccountInactive
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.Status != models.UserActive {
		return nil, ErrAccountInactive
	}

	return claims, nil
}

// Refresh exchanges a refresh token for a new token pair. The user must
// still exist and be active, and neither the token's session nor all of the
// user's sessions may have been revoked since it was issued. Otherwise the
// presented refresh token stays usable until its max age passes.
func (m *Manager) Refresh(ctx context.Context, refreshToken, ip, deviceInfo string) (*TokenPair, error) {
	var payload refreshPayload
	if err := m.refresh.Decode(refreshCookieName, refreshToken, &payload); err != nil {
		return nil, ErrInvalidRefreshToken
	}

	user, err := m.repo.GetUserByID(ctx, payload.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.Status != models.UserActive {
		return nil, ErrInvalidRefreshToken
	}
	if user.SessionsRevokedAt != nil && !time.UnixMicro(payload.IssuedAt).After(*user.SessionsRevokedAt) {
		return nil, ErrInvalidRefreshToken
	}

	// Sessions that expired normally may already be purged.
	s, err := m.repo.GetSessionByID(ctx, payload.SessionID)
	switch {
	case err == nil:
		if s.UserID != user.ID || s.RevokedAt != nil {
			return nil, ErrInvalidRefreshToken
		}
	case !repository.IsNotFound(err):
		return nil, fmt.Errorf("load session: %w", err)
	}

	return m.Issue(ctx, IssueParams{
		UserID:     user.ID,
		Email:      user.Email,
		Phone:      user.PhoneNumber(),
		IP:         ip,
		DeviceInfo: deviceInfo,
	})
}

// Revoke ends the session of a single token.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	_, err := m.repo.RevokeSession(ctx, tokens.Hash(token), time.Now())
	return err
}

// RevokeAll ends every live session of a user and invalidates the refresh
// tokens issued so far.
func (m *Manager) RevokeAll(ctx context.Context, userID int64) error {
	now := time.Now().UTC().Truncate(time.Microsecond)

	var n int64
	err := m.repo.InTx(ctx, func(tx *repository.Repository) error {
		var err error
		if n, err = tx.RevokeUserSessions(ctx, userID, now); err != nil {
			return err
		}
		return tx.SetSessionsRevokedAt(ctx, userID, now)
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "sessions_revoked", "user_id", userID, "count", n)
	return nil
}

// SessionDuration is the lifetime of access tokens.
func (m *Manager) SessionDuration() time.Duration {
	return m.sessionDuration
}
