// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package database

import (
	"embed"
	"log"
	"os"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/vinovest/sqlx"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var embedMigrations embed.FS

// goose keeps its dialect and filesystem in package globals.
var gooseMu sync.Mutex

func withGoose(db *sqlx.DB, fn func(dir string) error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	dialect, dir := "sqlite3", "migrations/sqlite"
	if db.DriverName() == "pgx" {
		dialect, dir = "postgres", "migrations/postgres"
	}

	if err := goose.SetDialect(dialect); err != nil {
		return err
	}

	return fn(dir)
}

// RunMigrations runs all pending goose migrations.
func RunMigrations(db *sqlx.DB) error {
	return withGoose(db, func(dir string) error {
		return goose.Up(db.DB, dir)
	})
}

// MigrateDown rolls back the last migration.
func MigrateDown(db *sqlx.DB) error {
	return withGoose(db, func(dir string) error {
		return goose.Down(db.DB, dir)
	})
}

// MigrateReset rolls back all migrations.
func MigrateReset(db *sqlx.DB) error {
	return withGoose(db, func(dir string) error {
		return goose.Reset(db.DB, dir)
	})
}

// MigrationStatus logs the applied state of every migration.
func MigrationStatus(db *sqlx.DB) error {
	return withGoose(db, func(dir string) error {
		goose.SetLogger(log.New(os.Stdout, "", 0))
		return goose.Status(db.DB, dir)
	})
}
