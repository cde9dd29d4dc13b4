// Package statestore abstracts the live table of in-flight executions. The
// execution manager owns exactly one Store; it is always injected, never a
// package-level global.
package statestore

import (
	"context"
	"errors"

	"github.com/voxflow/voxflow/pkg/models"
)

// ErrNotFound indicates no live state exists for the call. On a follow-up
// webhook this means the execution already ended: acknowledge and ignore.
var ErrNotFound = errors.New("execution state not found")

// UnlockFunc releases a per-call lock.
type UnlockFunc func()

// Store holds the live execution state of every in-flight call.
//
// Lock serializes all work for one call: webhook turns, explicit stops and
// the stale sweep all acquire the call's lock for the duration of their
// critical section, so two webhooks for the same call are never processed
// concurrently while different calls proceed fully in parallel.
type Store interface {
	Lock(ctx context.Context, callID string) (UnlockFunc, error)

	Get(ctx context.Context, callID string) (*models.ExecutionState, error)
	Put(ctx context.Context, state *models.ExecutionState) error
	Delete(ctx context.Context, callID string) error
	List(ctx context.Context) ([]*models.ExecutionState, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
