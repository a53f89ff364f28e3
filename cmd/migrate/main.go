package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/segyhp/rental-billing/internal/config"
	"github.com/segyhp/rental-billing/internal/logger"
	"github.com/segyhp/rental-billing/migrations"
)

const usage = `usage: migrate <command>

commands:
  up         apply all pending migrations
  down       roll back all migrations
  steps N    apply N migrations, negative N rolls back
  version    print the current schema version`

func main() {
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Bootstrap("migrate").Fatal("failed to load configuration", zap.Error(err))
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format).Named("migrate")
	defer log.Sync() //nolint:errcheck

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	m, err := newMigrator(db)
	if err != nil {
		log.Fatal("failed to create migrator", zap.Error(err))
	}

	if err := run(m, flag.Args(), log); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}
}

func newMigrator(db *sqlx.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", source, "postgres", driver)
}

func run(m *migrate.Migrate, args []string, log *zap.Logger) error {
	var err error
	switch args[0] {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		if len(args) < 2 {
			return errors.New("steps requires a count")
		}
		n, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			return fmt.Errorf("invalid step count %q: %w", args[1], convErr)
		}
		err = m.Steps(n)
	case "version":
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("no migrations to apply")
	} else if err != nil {
		return err
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		log.Info("schema is empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	log.Info("schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
