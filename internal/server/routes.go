// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"fmt"

	"codeberg.org/oliverandrich/medivault/internal/config"
	"codeberg.org/oliverandrich/medivault/internal/handlers"
	"codeberg.org/oliverandrich/medivault/internal/middleware"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

func setupRoutes(e *echo.Echo, cfg *config.Config, svc *Services) {
	h := handlers.New(svc.Repo.DB())
	ah := handlers.NewAuth(svc.Auth, svc.Sessions)
	sh := handlers.NewSharing(svc.Sharing)
	rh := handlers.NewRecords(svc.Records)

	requireAuth := middleware.RequireAuth(svc.Sessions)
	optionalAuth := middleware.OptionalAuth(svc.Sessions)

	e.GET("/health", h.Health)

	// Auth
	a := e.Group("/auth", middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst))
	a.POST("/send-otp", ah.SendOTP)
	a.POST("/verify-otp", ah.VerifyOTP)
	a.POST("/send-login-otp", ah.SendLoginOTP)
	a.POST("/login", ah.Login)
	a.POST("/refresh", ah.Refresh)
	a.POST("/forgot-password", ah.ForgotPassword)
	a.POST("/reset-password", ah.ResetPassword)
	a.GET("/verify", ah.Verify, requireAuth)
	a.POST("/logout", ah.Logout, requireAuth)
	a.PUT("/password", ah.ChangePassword, requireAuth)
	a.DELETE("/account", ah.DeleteAccount, requireAuth)

	// Sharing. The accept endpoints are reachable without a token.
	e.GET("/shared/accept", sh.Invitation)
	e.POST("/shared/accept", sh.Accept, optionalAuth)
	s := e.Group("/shared", requireAuth)
	s.POST("", sh.Create)
	s.GET("", sh.ListOwned)
	s.DELETE("", sh.Revoke)
	s.GET("/with-me", sh.ListSharedWithMe)
	s.GET("/:id/reports", sh.Reports)

	// Records
	e.GET("/dashboard", rh.Dashboard, requireAuth)
	e.GET("/profile", rh.GetProfile, requireAuth)
	e.PUT("/profile", rh.UpdateProfile, requireAuth)
	e.GET("/health-profile", rh.GetHealthProfile, requireAuth)
	e.PUT("/health-profile", rh.UpdateHealthProfile, requireAuth)

	r := e.Group("/reports", requireAuth)
	r.POST("", rh.UploadReport, echomw.BodyLimit(fmt.Sprintf("%dM", cfg.Server.UploadMaxSize+1)))
	r.GET("", rh.ListReports)
	r.GET("/:id", rh.GetReport)
	r.DELETE("/:id", rh.DeleteReport)

	v := e.Group("/vitals", requireAuth)
	v.GET("", rh.ListVitals)
	v.POST("", rh.CreateVital)
	v.DELETE("/:id", rh.DeleteVital)
}
