// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package appcontext carries the authenticated caller through echo and
// context.Context.
package appcontext

import (
	"context"

	"codeberg.org/oliverandrich/medivault/internal/ctxkeys"
	"github.com/labstack/echo/v4"
)

// identityKey is the echo.Context key. It mirrors ctxkeys.Identity, which is
// used on the request context.
const identityKey = "identity"

// Identity is the caller behind a validated bearer token.
type Identity struct {
	UserID int64
	Email  string
	Token  string
}

// WithIdentity stores id on the echo context and on the request context, so
// services called with c.Request().Context() see it as well.
func WithIdentity(c echo.Context, id *Identity) {
	c.Set(identityKey, id)
	req := c.Request()
	c.SetRequest(req.WithContext(context.WithValue(req.Context(), ctxkeys.Identity{}, id)))
}

// IdentityOf returns the caller, or nil for anonymous requests.
func IdentityOf(c echo.Context) *Identity {
	if id, ok := c.Get(identityKey).(*Identity); ok {
		return id
	}
	return FromContext(c.Request().Context())
}

// FromContext returns the caller stored in ctx, or nil.
func FromContext(ctx context.Context) *Identity {
	if id, ok := ctx.Value(ctxkeys.Identity{}).(*Identity); ok {
		return id
	}
	return nil
}

// UserID returns the caller's user id, or 0 for anonymous requests.
func UserID(c echo.Context) int64 {
	if id := IdentityOf(c); id != nil {
		return id.UserID
	}
	return 0
}

// IsAuthenticated returns true if the request carries a validated token.
func IsAuthenticated(c echo.Context) bool {
	return IdentityOf(c) != nil
}
