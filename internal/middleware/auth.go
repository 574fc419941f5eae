// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package middleware holds the echo middleware shared by all API routes.
package middleware

import (
	"context"
	"log/slog"
	"strings"

	"codeberg.org/oliverandrich/medivault/internal/appcontext"
	"codeberg.org/oliverandrich/medivault/internal/apperr"
	"codeberg.org/oliverandrich/medivault/internal/services/session"
	"github.com/labstack/echo/v4"
)

// Authenticator checks a bearer token against its signature and the
// session store.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*session.Claims, error)
}

// RequireAuth rejects requests without a valid bearer token before the
// handler runs. Every failure answers with the same generic 401.
func RequireAuth(a Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c)
			if !ok {
				return apperr.ErrUnauthorized
			}

			claims, err := a.Authenticate(c.Request().Context(), token)
			if err != nil {
				if apperr.KindOf(err) != apperr.Unauthorized {
					return err
				}
				slog.DebugContext(c.Request().Context(), "token_rejected", "error", err)
				return apperr.ErrUnauthorized
			}

			setIdentity(c, claims, token)
			return next(c)
		}
	}
}

// OptionalAuth attaches the caller when a valid bearer token is present and
// lets anonymous requests through. An invalid token counts as anonymous.
func OptionalAuth(a Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c)
			if !ok {
				return next(c)
			}

			claims, err := a.Authenticate(c.Request().Context(), token)
			if err != nil {
				if apperr.KindOf(err) != apperr.Unauthorized {
					return err
				}
				return next(c)
			}

			setIdentity(c, claims, token)
			return next(c)
		}
	}
}

func setIdentity(c echo.Context, claims *session.Claims, token string) {
	appcontext.WithIdentity(c, &appcontext.Identity{
		UserID: claims.UserID,
		Email:  claims.Email,
		Token:  token,
	})
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively.
func bearerToken(c echo.Context) (string, bool) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
