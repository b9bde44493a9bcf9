package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"
)

const pragmas = "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"

type Config struct {
	// Path of the database file, e.g. "./data/moderato.db"
	Path string
	// InMemory opens a shared cache in-memory database named by Path
	InMemory bool
}

func (c Config) dsn() string {
	if c.InMemory {
		return fmt.Sprintf("file:%s?mode=memory&cache=shared&%s", c.Path, pragmas)
	}
	return fmt.Sprintf("file:%s?%s", c.Path, pragmas)
}

// Open connects to SQLite with a single connection and applies migrations
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.Path == "" {
		cfg.Path = "./data/moderato.db"
	}

	if !cfg.InMemory {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, goerr.Wrap(err, "failed to create database directory", goerr.V("path", cfg.Path))
		}
	}

	conn, err := sql.Open("sqlite", cfg.dsn())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite", goerr.V("path", cfg.Path))
	}

	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, goerr.Wrap(err, "failed to ping sqlite", goerr.V("path", cfg.Path))
	}

	if err := Migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return conn, nil
}
