package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/metalblueberry/tuner/pkg/logger"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var ErrNotFound = errors.New("not found")

/*
 * Opens the sqlite database at path and brings its schema up to date.
 */
func Open(ctx context.Context, path string, log *logger.Logger) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("db path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		log.Errorf("db open failed: %v", err)
		return nil, err
	}
	// sqlite allows a single writer; one connection keeps :memory: databases shared too.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	log.Printf("db open sqlite %s", path)
	if err := ApplyMigrations(ctx, db, log); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func ApplyMigrations(ctx context.Context, db *sql.DB, log *logger.Logger) error {
	if db == nil {
		return fmt.Errorf("nil db")
	}
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(log)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	log.Printf("applying goose migrations")
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	log.Printf("goose migrations applied")
	return nil
}
