package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/go-tenant-auth/accounts"
	"github.com/jrsteele09/go-tenant-auth/internal/utils"
)

const accountColumns = `id, auth_method, auth_id, name, email, password_hash, is_online, last_seen,
		socket_id, profile_picture, profile_picture_link, welcomed_at, created_at, updated_at`

func (s *Storage) Create(ctx context.Context, account *accounts.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		account.ID,
		account.AuthMethod,
		account.AuthID,
		account.Name,
		account.Email,
		account.PasswordHash,
		account.IsOnline,
		nullTime(account.LastSeen),
		account.SocketID,
		account.ProfilePicture,
		account.ProfilePictureLink,
		nullTime(account.WelcomedAt),
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return accounts.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (s *Storage) GetByID(ctx context.Context, id string) (*accounts.Account, error) {
	return s.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
}

func (s *Storage) GetByEmail(ctx context.Context, email string) (*accounts.Account, error) {
	return s.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = ? AND email <> ''`, email)
}

func (s *Storage) GetByProvider(ctx context.Context, authMethod, authID string) (*accounts.Account, error) {
	return s.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE auth_method = ? AND auth_id = ?`, authMethod, authID)
}

func (s *Storage) SetOnline(ctx context.Context, id, socketID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET is_online = 1, socket_id = ?, updated_at = ? WHERE id = ?`,
		socketID, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set account online: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return accounts.ErrNotFound
	}
	return nil
}

func (s *Storage) SetOfflineBySocket(ctx context.Context, socketID string, at time.Time) error {
	if socketID == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET is_online = 0, last_seen = ?, updated_at = ? WHERE socket_id = ?`,
		at.UTC(), at.UTC(), socketID,
	)
	if err != nil {
		return fmt.Errorf("failed to set account offline: %w", err)
	}
	return nil
}

func (s *Storage) MarkWelcomed(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET welcomed_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark account welcomed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return accounts.ErrNotFound
	}
	return nil
}

func (s *Storage) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Storage) getOne(ctx context.Context, query string, args ...any) (*accounts.Account, error) {
	account := &accounts.Account{}
	var lastSeen, welcomedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&account.ID,
		&account.AuthMethod,
		&account.AuthID,
		&account.Name,
		&account.Email,
		&account.PasswordHash,
		&account.IsOnline,
		&lastSeen,
		&account.SocketID,
		&account.ProfilePicture,
		&account.ProfilePictureLink,
		&welcomedAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, accounts.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if lastSeen.Valid {
		account.LastSeen = utils.Ptr(lastSeen.Time)
	}
	if welcomedAt.Valid {
		account.WelcomedAt = utils.Ptr(welcomedAt.Time)
	}
	return account, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
