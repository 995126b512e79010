package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/conference-timetable/pkg/config"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Open connects to the database selected by cfg.Driver.
func Open(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	switch cfg.Driver {
	case "", config.DriverPostgres:
		return NewPostgres(cfg)
	case config.DriverSQLite:
		return NewSQLite(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// TxOptions maps the configured isolation level onto sql.TxOptions.
// SQLite always runs serialized on its single connection and rejects
// explicit levels, so it gets the driver default.
func TxOptions(cfg config.DatabaseConfig) *sql.TxOptions {
	if cfg.Driver == config.DriverSQLite {
		return &sql.TxOptions{}
	}
	switch cfg.Isolation {
	case "read_committed":
		return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	case "repeatable_read":
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead}
	default:
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
}

// ApplySchema creates the events and timetable tables when they are missing.
func ApplySchema(ctx context.Context, db *sqlx.DB) error {
	name := "schema/postgres.sql"
	if db.DriverName() == config.DriverSQLite {
		name = "schema/sqlite.sql"
	}
	raw, err := schemaFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(raw)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
