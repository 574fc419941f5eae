// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"codeberg.org/oliverandrich/medivault/internal/config"
	"codeberg.org/oliverandrich/medivault/internal/database"
	"codeberg.org/oliverandrich/medivault/internal/repository"
	"codeberg.org/oliverandrich/medivault/internal/services/auth"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
)

// withDB runs fn against the configured database without applying
// migrations first.
func withDB(cmd *cli.Command, fn func(db *sqlx.DB) error) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Connect(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	return fn(db)
}

// MigrateUp applies all pending migrations.
func MigrateUp(_ context.Context, cmd *cli.Command) error {
	return withDB(cmd, func(db *sqlx.DB) error {
		if err := database.RunMigrations(db); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		slog.Info("migrations applied")
		return nil
	})
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(_ context.Context, cmd *cli.Command) error {
	return withDB(cmd, func(db *sqlx.DB) error {
		if err := database.MigrateDown(db); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		slog.Info("rolled back one migration")
		return nil
	})
}

// MigrateReset rolls back every migration.
func MigrateReset(_ context.Context, cmd *cli.Command) error {
	return withDB(cmd, func(db *sqlx.DB) error {
		if err := database.MigrateReset(db); err != nil {
			return fmt.Errorf("migrate reset: %w", err)
		}
		slog.Info("rolled back all migrations")
		return nil
	})
}

// MigrateStatus prints the state of every migration.
func MigrateStatus(_ context.Context, cmd *cli.Command) error {
	return withDB(cmd, database.MigrationStatus)
}

// Cleanup purges expired codes, registration attempts and sessions.
func Cleanup(ctx context.Context, cmd *cli.Command) error {
	return withDB(cmd, func(db *sqlx.DB) error {
		cfg := config.NewFromCLI(cmd)
		svc := auth.NewService(repository.New(db), nil, nil, &cfg.Auth)

		stats, err := svc.PurgeExpired(ctx, time.Now())
		if err != nil {
			return err
		}

		slog.Info("cleanup finished",
			"otps", stats.OTPs,
			"registration_attempts", stats.RegistrationAttempts,
			"sessions", stats.Sessions,
		)
		return nil
	})
}

// InitConfig writes a sample configuration file. An existing file is only
// replaced with --force.
func InitConfig(_ context.Context, cmd *cli.Command) error {
	path := cmd.String("output")

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if cmd.Bool("force") {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := config.WriteSample(f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Fprintf(cmd.Root().Writer, "wrote %s\n", path)
	return nil
}
