// Package store is the client's local persisted store: a single SQLite
// key/value table holding the current session, the signed-in user id and
// the sealed PIN secret.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/dmitrijs2005/authbridge/internal/client/migrations"
	"github.com/dmitrijs2005/authbridge/internal/filex"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// DefaultFileName is the database file inside the data directory.
const DefaultFileName = "authbridge.db"

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Open opens the SQLite database at dsn and brings its schema up to date.
// The pool is capped at one connection, which also keeps ":memory:"
// databases from splitting across connections.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenInDir creates dataDir when needed (see filex.EnsureDataDir) and
// opens DefaultFileName inside it.
func OpenInDir(ctx context.Context, dataDir string) (*sql.DB, error) {
	dir, err := filex.EnsureDataDir(dataDir)
	if err != nil {
		return nil, err
	}
	return Open(ctx, filepath.Join(dir, DefaultFileName))
}
