// Package tenants keeps one open account store per tenant for the lifetime
// of the process.
package tenants

import (
	"context"
	"errors"
	"sync"

	"github.com/jrsteele09/go-tenant-auth/accounts"
	apperrors "github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/jrsteele09/go-tenant-auth/internal/metrics"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrClosed is returned by Resolve after Close.
var ErrClosed = errors.New("tenant registry is closed")

// Opener opens (creating if needed) the store for a tenant id.
type Opener func(ctx context.Context, tenantID string) (accounts.Repo, error)

type Option func(r *Registry)

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// entry is published into the map before the store is opened; ready is
// closed once repo or err is set.
type entry struct {
	ready chan struct{}
	repo  accounts.Repo
	err   error
}

type Registry struct {
	open    Opener
	logger  zerolog.Logger
	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

func NewRegistry(open Opener, options ...Option) (*Registry, error) {
	if open == nil {
		return nil, errors.New("[NewRegistry] opener is required")
	}
	r := &Registry{
		open:    open,
		logger:  zerolog.Nop(),
		entries: make(map[string]*entry),
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// Resolve returns the store for tenantID, opening it on first use. Concurrent
// first lookups share a single open; a failed open is not cached. The open is
// detached from ctx so a caller that gives up does not fail the others.
func (r *Registry) Resolve(ctx context.Context, tenantID string) (accounts.Repo, error) {
	if tenantID == "" {
		verr := apperrors.NewValidationError()
		verr.Add("tenantId", `"tenantId" is required`)
		return nil, verr
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	e, ok := r.entries[tenantID]
	if !ok {
		e = &entry{ready: make(chan struct{})}
		r.entries[tenantID] = e
		go r.fill(context.WithoutCancel(ctx), tenantID, e)
	}
	r.mu.Unlock()

	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.repo, nil
}

func (r *Registry) fill(ctx context.Context, tenantID string, e *entry) {
	repo, err := r.open(ctx, tenantID)

	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case err != nil:
		delete(r.entries, tenantID)
		e.err = pkgerrors.Wrapf(err, "[Registry.Resolve] open tenant %s", tenantID)
	case r.closed:
		_ = repo.Close()
		delete(r.entries, tenantID)
		e.err = ErrClosed
	default:
		e.repo = repo
		metrics.TenantConnections.Inc()
		r.logger.Info().Str("tenant", tenantID).Msg("tenant store opened")
	}
	close(e.ready)
}

// Warm resolves each id up front. Failures are logged and skipped; the
// number of stores that opened is returned.
func (r *Registry) Warm(ctx context.Context, tenantIDs []string) int {
	opened := 0
	for _, id := range tenantIDs {
		if _, err := r.Resolve(ctx, id); err != nil {
			r.logger.Warn().Err(err).Str("tenant", id).Msg("tenant warmup failed")
			continue
		}
		opened++
	}
	return opened
}

// Len reports how many stores are open.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.repo != nil {
			n++
		}
	}
	return n
}

// Close closes every open store. Resolve fails afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for id, e := range r.entries {
		if e.repo == nil {
			continue
		}
		if err := e.repo.Close(); err != nil {
			errs = append(errs, pkgerrors.Wrapf(err, "close tenant %s", id))
		}
		metrics.TenantConnections.Dec()
		delete(r.entries, id)
	}
	return errors.Join(errs...)
}
