package source

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

//go:embed migrations
var migrationFiles embed.FS

// MigrateUp brings the dataset tables at dsn up to the latest schema version. dsn is a SQLite
// file path or a PostgreSQL connection URL, matching dialect.
func MigrateUp(dialect Dialect, dsn string, logger *logrus.Logger) error {
	files, err := iofs.New(migrationFiles, dialect.Migrations)
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", files, dialect.MigrateURL(dsn))
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.WithFields(logrus.Fields{
				"source_error":   srcErr,
				"database_error": dbErr,
			}).Warn("Failed to close migration instance")
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.WithField("driver", dialect.Driver).Debug("Dataset schema already up to date")
			return nil
		}
		return fmt.Errorf("running migrations up: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		logger.WithError(err).Warn("Could not get migration version after up")
		return nil
	}
	logger.WithFields(logrus.Fields{
		"driver":  dialect.Driver,
		"version": version,
		"dirty":   dirty,
	}).Info("Dataset schema migrated")
	return nil
}
