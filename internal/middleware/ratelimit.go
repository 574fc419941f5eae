// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package middleware

import (
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/medivault/internal/apperr"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a client exceeds its request budget.
var ErrRateLimited = apperr.New(apperr.Transient, "too many requests, please slow down")

// RateLimit limits requests per client IP to limit per second with the
// given burst. Visitors are forgotten after three idle minutes.
func RateLimit(limit float64, burst int) echo.MiddlewareFunc {
	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(limit),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})

	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return apperr.Wrap(ErrRateLimited, err)
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			slog.WarnContext(c.Request().Context(), "rate_limited", "ip", identifier, "path", c.Path())
			return ErrRateLimited
		},
	})
}
