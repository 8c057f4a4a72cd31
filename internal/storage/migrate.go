package storage

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// DefaultMigrationsURL locates the schema migrations relative to the
// working directory.
const DefaultMigrationsURL = "file://migrations"

// Migrate applies all pending schema migrations from sourceURL against
// databaseURL. Already-applied migrations are a no-op.
func Migrate(sourceURL, databaseURL string) error {
	if sourceURL == "" {
		sourceURL = DefaultMigrationsURL
	}

	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
