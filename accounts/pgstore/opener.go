package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jrsteele09/go-tenant-auth/accounts"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const duplicateDatabase = "42P04"

const tenantDatabasePrefix = "tenant_"

// Opener creates tenant databases on demand on one postgres server. The
// admin pool is only used for catalog lookups and CREATE DATABASE.
type Opener struct {
	config     *pgxpool.Config
	admin      DB
	globalName string
}

// NewOpener connects to the admin database. Requests for globalName open that
// database as-is; every other id maps to tenant_<id>.
func NewOpener(ctx context.Context, adminDSN, globalName string) (*Opener, error) {
	cfg, err := pgxpool.ParseConfig(adminDSN)
	if err != nil {
		return nil, fmt.Errorf("[pgstore.NewOpener] parse dsn: %w", err)
	}
	admin, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("[pgstore.NewOpener] connect: %w", err)
	}
	return &Opener{config: cfg, admin: admin, globalName: globalName}, nil
}

// Open returns a migrated store for the tenant's own database, creating the
// database first when it does not exist yet.
func (o *Opener) Open(ctx context.Context, tenantID string) (accounts.Repo, error) {
	name := DatabaseName(o.globalName, tenantID)
	if err := EnsureDatabase(ctx, o.admin, name); err != nil {
		return nil, err
	}

	cfg := o.config.Copy()
	cfg.ConnConfig.Database = name
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("[pgstore.Open] connect %s: %w", tenantID, err)
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("[pgstore.Open] migrate %s: %w", tenantID, err)
	}
	return New(pool), nil
}

func (o *Opener) Close() {
	o.admin.Close()
}

func DatabaseName(globalName, tenantID string) string {
	if tenantID == globalName {
		return globalName
	}
	return tenantDatabasePrefix + tenantID
}

func EnsureDatabase(ctx context.Context, db DB, name string) error {
	var exists bool
	if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists); err != nil {
		return fmt.Errorf("[pgstore.EnsureDatabase] lookup %s: %w", name, err)
	}
	if exists {
		return nil
	}
	if _, err := db.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == duplicateDatabase {
			return nil
		}
		return fmt.Errorf("[pgstore.EnsureDatabase] create %s: %w", name, err)
	}
	return nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	migrations, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}
