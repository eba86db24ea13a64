package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"

	"github.com/jrsteele09/go-tenant-auth/accounts"
	apperrors "github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

var _ accounts.Repo = (*Storage)(nil)

// Storage is an account store backed by a single SQLite file.
type Storage struct {
	db *sql.DB
}

// New opens (creating if needed) the SQLite database at dbPath and applies
// the embedded migrations. Use ":memory:" for a throwaway store.
func New(ctx context.Context, dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	storage := &Storage{db: db}
	if err := storage.runMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return storage, nil
}

// Opener returns a tenant opener that keeps one database file per tenant
// under dir, named after the tenant id.
func Opener(dir string) func(ctx context.Context, tenantID string) (accounts.Repo, error) {
	return func(ctx context.Context, tenantID string) (accounts.Repo, error) {
		if !tenantIDPattern.MatchString(tenantID) {
			verr := apperrors.NewValidationError()
			verr.Add("tenantId", fmt.Sprintf("%q is not a valid tenant id", tenantID))
			return nil, verr
		}
		return New(ctx, filepath.Join(dir, tenantID+".db"))
	}
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for testing purposes
func (s *Storage) DB() *sql.DB {
	return s.db
}

func (s *Storage) runMigrations(ctx context.Context) error {
	migrations, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, migrations)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}
	return nil
}
