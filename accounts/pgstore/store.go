package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jrsteele09/go-tenant-auth/accounts"
)

const uniqueViolation = "23505"

// DB is the subset of pgxpool.Pool the store needs; pgxmock satisfies it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

var _ accounts.Repo = (*Store)(nil)

// Store is an account store living in one postgres database per tenant.
type Store struct {
	db DB
}

func New(db DB) *Store {
	return &Store{db: db}
}

const selectAccount = `
	SELECT id, auth_method, auth_id, name, email, password_hash, is_online, last_seen,
	       socket_id, profile_picture, profile_picture_link, welcomed_at, created_at, updated_at
	FROM accounts
`

func (s *Store) Create(ctx context.Context, account *accounts.Account) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO accounts (id, auth_method, auth_id, name, email, password_hash, is_online, last_seen,
		                      socket_id, profile_picture, profile_picture_link, welcomed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, account.ID, account.AuthMethod, account.AuthID, account.Name, account.Email, account.PasswordHash,
		account.IsOnline, account.LastSeen, account.SocketID, account.ProfilePicture, account.ProfilePictureLink,
		account.WelcomedAt, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return accounts.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*accounts.Account, error) {
	return s.getOne(ctx, selectAccount+`WHERE id = $1`, id)
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*accounts.Account, error) {
	return s.getOne(ctx, selectAccount+`WHERE email = $1 AND email <> ''`, email)
}

func (s *Store) GetByProvider(ctx context.Context, authMethod, authID string) (*accounts.Account, error) {
	return s.getOne(ctx, selectAccount+`WHERE auth_method = $1 AND auth_id = $2`, authMethod, authID)
}

func (s *Store) SetOnline(ctx context.Context, id, socketID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE accounts SET is_online = TRUE, socket_id = $1, updated_at = NOW() WHERE id = $2`,
		socketID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set account online: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return accounts.ErrNotFound
	}
	return nil
}

func (s *Store) SetOfflineBySocket(ctx context.Context, socketID string, at time.Time) error {
	if socketID == "" {
		return nil
	}
	_, err := s.db.Exec(ctx,
		`UPDATE accounts SET is_online = FALSE, last_seen = $1, updated_at = $1 WHERE socket_id = $2`,
		at, socketID,
	)
	if err != nil {
		return fmt.Errorf("failed to set account offline: %w", err)
	}
	return nil
}

func (s *Store) MarkWelcomed(ctx context.Context, id string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE accounts SET welcomed_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark account welcomed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return accounts.ErrNotFound
	}
	return nil
}

func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan account ids: %w", err)
	}
	return ids, nil
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func (s *Store) getOne(ctx context.Context, query string, args ...any) (*accounts.Account, error) {
	var a accounts.Account
	err := s.db.QueryRow(ctx, query, args...).Scan(
		&a.ID, &a.AuthMethod, &a.AuthID, &a.Name, &a.Email, &a.PasswordHash, &a.IsOnline, &a.LastSeen,
		&a.SocketID, &a.ProfilePicture, &a.ProfilePictureLink, &a.WelcomedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, accounts.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}
