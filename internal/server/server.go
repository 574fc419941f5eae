// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package server wires configuration, services and HTTP routes together.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/oliverandrich/medivault/internal/config"
	"codeberg.org/oliverandrich/medivault/internal/database"
	"codeberg.org/oliverandrich/medivault/internal/handlers"
	"codeberg.org/oliverandrich/medivault/internal/i18n"
	"codeberg.org/oliverandrich/medivault/internal/repository"
	"codeberg.org/oliverandrich/medivault/internal/services/auth"
	"codeberg.org/oliverandrich/medivault/internal/services/email"
	"codeberg.org/oliverandrich/medivault/internal/services/otp"
	"codeberg.org/oliverandrich/medivault/internal/services/records"
	"codeberg.org/oliverandrich/medivault/internal/services/session"
	"codeberg.org/oliverandrich/medivault/internal/services/sharing"
	"codeberg.org/oliverandrich/medivault/internal/services/storage"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
)

// Services bundles everything the routes depend on.
type Services struct {
	Repo     *repository.Repository
	Auth     *auth.Service
	Sessions *session.Manager
	Sharing  *sharing.Service
	Records  *records.Service
}

// Mailer sends the codes and invitations of the auth and sharing flows.
type Mailer interface {
	otp.Mailer
	sharing.Mailer
}

// NewServices builds the services on top of an open repository.
func NewServices(cfg *config.Config, repo *repository.Repository, mailer Mailer, store storage.Store) (*Services, error) {
	sessions, err := session.NewManager(&cfg.Auth, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	issuer := otp.NewIssuer(repo, mailer, cfg.Auth.OTPKey())

	return &Services{
		Repo:     repo,
		Auth:     auth.NewService(repo, issuer, sessions, &cfg.Auth),
		Sessions: sessions,
		Sharing:  sharing.NewService(repo, mailer, store),
		Records:  records.NewService(repo, store, int64(cfg.Server.UploadMaxSize)<<20),
	}, nil
}

// New creates the echo instance with middleware and routes.
func New(cfg *config.Config, svc *Services) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handlers.ErrorHandler(cfg.Server.Dev)
	e.Validator = handlers.NewValidator()
	e.IPExtractor = echo.ExtractIPFromXFFHeader()
	e.Server.ReadHeaderTimeout = 10 * time.Second

	setupMiddleware(e, cfg)
	setupRoutes(e, cfg, svc)

	return e
}

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	for _, name := range cfg.ApplyDevDefaults() {
		slog.Warn("generated a random secret for dev mode, sessions will not survive a restart", "setting", name)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
		"dialect", database.DialectOf(cfg.Database.DSN),
	)

	// Database
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	// i18n
	if initErr := i18n.Init(); initErr != nil {
		return fmt.Errorf("failed to init i18n: %w", initErr)
	}

	mailer, err := newMailer(cfg)
	if err != nil {
		return err
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}

	svc, err := NewServices(cfg, repository.New(db), mailer, store)
	if err != nil {
		return err
	}

	return startWithGracefulShutdown(ctx, New(cfg, svc), cfg)
}

func newMailer(cfg *config.Config) (*email.Service, error) {
	if cfg.SMTP.Host == "" && cfg.Server.Dev {
		slog.Warn("no SMTP host configured, emails are written to the log")
		return email.New(email.LogSender{}, cfg.Server.FrontendURL), nil
	}

	mailer, err := email.NewService(&cfg.SMTP, cfg.Server.FrontendURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create email service: %w", err)
	}
	return mailer, nil
}

func newStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create report storage: %w", err)
	}

	s3Store, ok := store.(*storage.S3Store)
	if !ok {
		slog.Warn("no storage bucket configured, report uploads are disabled")
		return store, nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s3Store.Check(checkCtx); err != nil {
		return nil, fmt.Errorf("report storage: %w", err)
	}
	return store, nil
}

func startWithGracefulShutdown(ctx context.Context, e *echo.Echo, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		slog.Info("Server running", "url", cfg.Server.BaseURL)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
