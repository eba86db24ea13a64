package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-tenant-auth/outbox"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Email string `json:"email"`
}

func openStore(t *testing.T, path string) *outbox.Store {
	t.Helper()
	store, err := outbox.Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_EnqueueAndDue(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "outbox.db"))
	ctx := context.Background()

	first, err := store.Enqueue(ctx, "mail", payload{Email: "a@example.com"})
	require.NoError(t, err)
	second, err := store.Enqueue(ctx, "mail", payload{Email: "b@example.com"})
	require.NoError(t, err)

	n, err := store.Len()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	due, err := store.Due(ctx, time.Now().Add(time.Second), 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	require.Equal(t, first.ID, due[0].ID)
	require.Equal(t, second.ID, due[1].ID)

	var got payload
	require.NoError(t, json.Unmarshal(due[0].Payload, &got))
	require.Equal(t, "a@example.com", got.Email)

	limited, err := store.Due(ctx, time.Now().Add(time.Second), 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestStore_RetryDefersTask(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "outbox.db"))
	ctx := context.Background()

	task, err := store.Enqueue(ctx, "mail", payload{})
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, store.Retry(task.ID, now.Add(time.Minute), errors.New("smtp down")))

	due, err := store.Due(ctx, now, 0)
	require.NoError(t, err)
	require.Empty(t, due)

	due, err = store.Due(ctx, now.Add(2*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, 1, due[0].Attempts)
	require.Equal(t, "smtp down", due[0].LastError)
}

func TestStore_AckAndBury(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "outbox.db"))
	ctx := context.Background()

	acked, err := store.Enqueue(ctx, "mail", payload{})
	require.NoError(t, err)
	buried, err := store.Enqueue(ctx, "mail", payload{})
	require.NoError(t, err)

	require.NoError(t, store.Ack(acked.ID))
	require.ErrorIs(t, store.Ack(acked.ID), outbox.ErrTaskNotFound)
	require.NoError(t, store.Bury(buried.ID, errors.New("gave up")))

	pending, err := store.Len()
	require.NoError(t, err)
	require.Zero(t, pending)
	dead, err := store.DeadLen()
	require.NoError(t, err)
	require.Equal(t, 1, dead)
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outbox.db")
	ctx := context.Background()

	store, err := outbox.Open(ctx, path)
	require.NoError(t, err)
	task, err := store.Enqueue(ctx, "mail", payload{Email: "a@example.com"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened := openStore(t, path)
	due, err := reopened.Due(ctx, time.Now().Add(time.Second), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, task.ID, due[0].ID)
}
