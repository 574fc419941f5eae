// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"codeberg.org/oliverandrich/medivault/internal/config"
	"codeberg.org/oliverandrich/medivault/internal/server"
	"github.com/urfave/cli/v3"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cmd := &cli.Command{
		Name:    "medivault",
		Usage:   "Personal medical records API",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Flags:   config.Flags(),
		Action:  server.Run,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the API server",
				Action: server.Run,
			},
			{
				Name:  "migrate",
				Usage: "Manage database migrations",
				Commands: []*cli.Command{
					{Name: "up", Usage: "Apply pending migrations", Action: server.MigrateUp},
					{Name: "down", Usage: "Roll back the last migration", Action: server.MigrateDown},
					{Name: "status", Usage: "Show migration status", Action: server.MigrateStatus},
					{Name: "reset", Usage: "Roll back all migrations", Action: server.MigrateReset},
				},
			},
			{
				Name:   "cleanup",
				Usage:  "Purge expired codes, registrations and sessions",
				Action: server.Cleanup,
			},
			{
				Name:  "config",
				Usage: "Configuration helpers",
				Commands: []*cli.Command{
					{
						Name:  "init",
						Usage: "Write a sample config file with generated secrets",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "config.toml", Usage: "Path of the file to write"},
							&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing file"},
						},
						Action: server.InitConfig,
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
