// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/medivault/internal/config"
	"codeberg.org/oliverandrich/medivault/internal/middleware"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

func setupMiddleware(e *echo.Echo, cfg *config.Config) {
	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(slog.Default()))
	e.Use(echomw.Secure())
	e.Use(corsMiddleware(cfg))
	e.Use(echomw.BodyLimitWithConfig(echomw.BodyLimitConfig{
		Skipper: isUpload,
		Limit:   fmt.Sprintf("%dM", cfg.Server.MaxBodySize),
	}))
	e.Use(middleware.Locale())
}

// corsMiddleware allows the web client to call the API with a bearer token.
func corsMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	origins := []string{cfg.Server.FrontendURL}
	if cfg.Server.Dev {
		origins = []string{"*"}
	}

	return echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderAuthorization,
			echo.HeaderContentType,
			echo.HeaderAccept,
			"Accept-Language",
		},
		ExposeHeaders: []string{echo.HeaderXRequestID},
		MaxAge:        3600,
	})
}

// isUpload reports whether the request is a report upload, which has its
// own body limit.
func isUpload(c echo.Context) bool {
	return c.Request().Method == http.MethodPost && c.Path() == "/reports"
}
