package internal

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// migrationsDir is the embedded directory holding the ingestion schema
// (accounts, agents, call recordings, transcripts).
const migrationsDir = "migrations"

//go:embed migrations/*.sql
var migrations embed.FS

// RunMigrations applies any pending schema migrations. It runs at
// startup before the server or consumer touch the database.
func RunMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.Up(db, migrationsDir); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
