package dbkeeper

import (
	"errors"
	"fmt"
	"path/filepath"

	gomigrate "github.com/golang-migrate/migrate"
	"github.com/golang-migrate/migrate/database/postgres"
	_ "github.com/golang-migrate/migrate/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// migrate applies every pending migration from dir.
func migrate(connConfig *pgx.ConnConfig, dir string, log Log) error {
	sqlDB := stdlib.OpenDB(*connConfig)
	defer sqlDB.Close()

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("error getting migration driver: %w", err)
	}

	path, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("error resolving migrations path: %w", err)
	}

	m, err := gomigrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(path), "postgres", driver)
	if err != nil {
		return fmt.Errorf("error creating migration instance: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if errors.Is(err, gomigrate.ErrNoChange) {
		log.Info("Database schema is up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("error while performing migration: %w", err)
	}

	log.Info("Database migrations applied", zap.String("path", path))
	return nil
}
