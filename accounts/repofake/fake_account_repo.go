package fakeaccountrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-tenant-auth/accounts"
)

var _ accounts.Repo = (*FakeAccountRepo)(nil)

type FakeAccountRepo struct {
	accounts map[string]*accounts.Account
	emailIds map[string]string // email to account id
	lock     sync.RWMutex
	closed   bool
}

func NewFakeAccountRepo() *FakeAccountRepo {
	return &FakeAccountRepo{
		accounts: make(map[string]*accounts.Account),
		emailIds: make(map[string]string),
	}
}

func (ar *FakeAccountRepo) Create(_ context.Context, account *accounts.Account) error {
	ar.lock.Lock()
	defer ar.lock.Unlock()

	if account.Email != "" {
		if _, ok := ar.emailIds[account.Email]; ok {
			return accounts.ErrAlreadyExists
		}
	}
	if account.AuthID != "" {
		for _, a := range ar.accounts {
			if a.AuthMethod == account.AuthMethod && a.AuthID == account.AuthID {
				return accounts.ErrAlreadyExists
			}
		}
	}
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	ar.accounts[account.ID] = account.Clone()
	if account.Email != "" {
		ar.emailIds[account.Email] = account.ID
	}
	return nil
}

func (ar *FakeAccountRepo) GetByID(_ context.Context, id string) (*accounts.Account, error) {
	ar.lock.RLock()
	defer ar.lock.RUnlock()

	a, ok := ar.accounts[id]
	if !ok {
		return nil, accounts.ErrNotFound
	}
	return a.Clone(), nil
}

func (ar *FakeAccountRepo) GetByEmail(_ context.Context, email string) (*accounts.Account, error) {
	ar.lock.RLock()
	defer ar.lock.RUnlock()

	id, ok := ar.emailIds[email]
	if !ok {
		return nil, accounts.ErrNotFound
	}
	return ar.accounts[id].Clone(), nil
}

func (ar *FakeAccountRepo) GetByProvider(_ context.Context, authMethod, authID string) (*accounts.Account, error) {
	ar.lock.RLock()
	defer ar.lock.RUnlock()

	for _, a := range ar.accounts {
		if a.AuthMethod == authMethod && a.AuthID == authID {
			return a.Clone(), nil
		}
	}
	return nil, accounts.ErrNotFound
}

func (ar *FakeAccountRepo) SetOnline(_ context.Context, id, socketID string) error {
	ar.lock.Lock()
	defer ar.lock.Unlock()

	a, ok := ar.accounts[id]
	if !ok {
		return accounts.ErrNotFound
	}
	a.IsOnline = true
	a.SocketID = socketID
	a.UpdatedAt = time.Now()
	return nil
}

func (ar *FakeAccountRepo) SetOfflineBySocket(_ context.Context, socketID string, at time.Time) error {
	if socketID == "" {
		return nil
	}
	ar.lock.Lock()
	defer ar.lock.Unlock()

	for _, a := range ar.accounts {
		if a.SocketID == socketID {
			seen := at
			a.IsOnline = false
			a.LastSeen = &seen
			a.UpdatedAt = at
		}
	}
	return nil
}

func (ar *FakeAccountRepo) MarkWelcomed(_ context.Context, id string, at time.Time) error {
	ar.lock.Lock()
	defer ar.lock.Unlock()

	a, ok := ar.accounts[id]
	if !ok {
		return accounts.ErrNotFound
	}
	welcomed := at
	a.WelcomedAt = &welcomed
	return nil
}

func (ar *FakeAccountRepo) ListIDs(_ context.Context) ([]string, error) {
	ar.lock.RLock()
	defer ar.lock.RUnlock()

	ids := make([]string, 0, len(ar.accounts))
	for id := range ar.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (ar *FakeAccountRepo) Close() error {
	ar.lock.Lock()
	defer ar.lock.Unlock()
	ar.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (ar *FakeAccountRepo) Closed() bool {
	ar.lock.RLock()
	defer ar.lock.RUnlock()
	return ar.closed
}
