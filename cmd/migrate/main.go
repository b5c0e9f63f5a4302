package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"github.com/joao-fontenele/catering-orders/internal/config"
	"github.com/joao-fontenele/catering-orders/internal/logger"
)

func main() {
	flag.Parse()
	args := flag.Args()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, "catering-migrate")
	if err != nil {
		fmt.Fprintln(os.Stderr, "build logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if len(args) < 1 {
		log.Fatal("usage: migrate <up|down|version>")
	}
	if err := cfg.Require("POSTGRES_URL"); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	m, err := migrate.New(cfg.MigrationsPath, cfg.PostgresURL)
	if err != nil {
		log.Fatal("failed to create migrate instance", zap.Error(err))
	}
	defer func() { _, _ = m.Close() }()

	command := args[0]

	switch command {
	case "up":
		err = m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("no pending migrations")
			return
		}
		if err != nil {
			log.Fatal("migration up failed", zap.Error(err))
		}
		log.Info("migrations applied successfully")

	case "down":
		err = m.Steps(-1)
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("no migrations to rollback")
			return
		}
		if err != nil {
			log.Fatal("migration down failed", zap.Error(err))
		}
		log.Info("migration rolled back successfully")

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info("no migrations applied yet")
			return
		}
		if err != nil {
			log.Fatal("failed to get version", zap.Error(err))
		}
		log.Info("current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))

	default:
		log.Fatal("unknown command", zap.String("command", command))
	}
}
