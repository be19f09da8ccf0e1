// Command herald-migrate applies the SQL migrations that create the rule and
// template tables.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/rafaeljc/herald/internal/config"
	"github.com/rafaeljc/herald/internal/logger"
)

func main() {
	var (
		migrationsPath string
		command        string
		environment    string
	)

	flag.StringVar(&migrationsPath, "path", "migrations", "Path to migrations directory")
	flag.StringVar(&command, "command", "up", "Migration command: up, down, version, force")
	flag.StringVar(&environment, "env", config.EnvironmentProduction, "Environment used to validate the database settings")
	flag.Parse()

	log := logger.New(&config.AppConfig{
		Name:        "herald-migrate",
		Version:     "dev",
		Environment: environment,
		LogLevel:    "info",
		LogFormat:   "text",
	})

	if err := run(log, migrationsPath, command, environment, flag.Args()); err != nil {
		log.Error("migration failed", slog.String("command", command), slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(log *slog.Logger, migrationsPath, command, environment string, args []string) error {
	dbCfg, err := config.LoadDatabase(environment)
	if err != nil {
		return err
	}

	log.Info("connecting to database", slog.String("migrations_path", migrationsPath))

	m, err := migrate.New("file://"+migrationsPath, dbCfg.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer m.Close()

	switch command {
	case "up":
		err = m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("no migrations to run, database is up to date")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("migrations applied")

	case "down":
		err = m.Down()
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to roll back migrations: %w", err)
		}
		log.Info("migrations rolled back")

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		log.Info("current version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))

	case "force":
		if len(args) < 1 {
			return errors.New("force requires a version number: -command force <version>")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version number: %w", err)
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
		log.Info("forced version", slog.Int("version", version))

	default:
		return fmt.Errorf("unknown command %q (use: up, down, version, force)", command)
	}

	return nil
}
