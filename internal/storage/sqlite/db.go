package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/felixgeelhaar/trilhas/internal/storage/migrations"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a sql.DB connection to a SQLite database with migration support.
type DB struct {
	*sql.DB
}

// Open creates a SQLite connection with WAL mode and foreign keys enabled.
// Transactions take the write lock up front (BEGIN IMMEDIATE) so
// read-modify-write units never fail half way on lock upgrade.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Verify connectivity
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Set connection pool for single-writer SQLite
	db.SetMaxOpenConns(1)

	return &DB{DB: db}, nil
}

// Migrate applies all pending SQL migrations.
func (db *DB) Migrate(ctx context.Context) error {
	_, err := migrations.Apply(ctx, db.DB, migrations.SQLiteDialect)
	return err
}

// Version returns the current schema version.
func (db *DB) Version(ctx context.Context) (int, error) {
	return migrations.Version(ctx, db.DB)
}
