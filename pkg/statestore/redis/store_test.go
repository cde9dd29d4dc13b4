package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxflow/voxflow/pkg/models"
	"github.com/voxflow/voxflow/pkg/statestore"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})

	return NewFromClient(client), mr
}

func TestStore_CRUD(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "call-1")
	assert.ErrorIs(t, err, statestore.ErrNotFound)

	state := models.NewExecutionState("call-1", "wf-1", "+15551234567", "+15550000000")
	state.Variables["pressed"] = "1"
	require.NoError(t, store.Put(ctx, state))

	got, err := store.Get(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", got.WorkflowID)
	assert.Equal(t, "1", got.Variables["pressed"])

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "call-1", all[0].CallID)

	require.NoError(t, store.Delete(ctx, "call-1"))

	_, err = store.Get(ctx, "call-1")
	assert.ErrorIs(t, err, statestore.ErrNotFound)

	all, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_ListOrderedByStart(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	older := models.NewExecutionState("call-old", "wf-1", "", "")
	older.StartedAt = time.Now().UTC().Add(-time.Hour)
	newer := models.NewExecutionState("call-new", "wf-1", "", "")

	require.NoError(t, store.Put(ctx, newer))
	require.NoError(t, store.Put(ctx, older))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "call-old", all[0].CallID)
	assert.Equal(t, "call-new", all[1].CallID)
}

func TestStore_LockContention(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	unlock, err := store.Lock(ctx, "call-1")
	require.NoError(t, err)

	// Second acquire for the same call must block until the context expires.
	blockedCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = store.Lock(blockedCtx, "call-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	unlock()

	// Lock is free again.
	unlock2, err := store.Lock(ctx, "call-1")
	require.NoError(t, err)
	unlock2()
}

func TestStore_LockIndependentCalls(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	unlock1, err := store.Lock(ctx, "call-1")
	require.NoError(t, err)
	defer unlock1()

	unlock2, err := store.Lock(ctx, "call-2")
	require.NoError(t, err)
	unlock2()
}

func TestStore_StaleIndexEntryCleaned(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	state := models.NewExecutionState("call-1", "wf-1", "", "")
	require.NoError(t, store.Put(ctx, state))

	// Drop the value behind the index's back.
	mr.Del(statePrefix + "call-1")

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_HealthCheck(t *testing.T) {
	store, mr := newTestStore(t)

	assert.NoError(t, store.HealthCheck(context.Background()))

	mr.Close()
	assert.Error(t, store.HealthCheck(context.Background()))
}
