package accounts

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("account not found")
	ErrAlreadyExists = errors.New("account already exists")
)

// Repo is a tenant isolated account store. Implementations must enforce
// email uniqueness and (authMethod, authId) uniqueness, reporting conflicts
// as ErrAlreadyExists.
type Repo interface {
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByProvider(ctx context.Context, authMethod, authID string) (*Account, error)
	SetOnline(ctx context.Context, id, socketID string) error
	SetOfflineBySocket(ctx context.Context, socketID string, at time.Time) error
	MarkWelcomed(ctx context.Context, id string, at time.Time) error
	ListIDs(ctx context.Context) ([]string, error)
	Close() error
}
