// Package memory provides the default in-process live-table store, sharded
// to keep unrelated calls off each other's locks.
package memory

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/voxflow/voxflow/pkg/models"
	"github.com/voxflow/voxflow/pkg/statestore"
)

const shardCount = 32

type shard struct {
	mu     sync.RWMutex
	states map[string]*models.ExecutionState
}

// callLock is a capacity-1 slot plus the number of holders and waiters
// referencing it. The entry leaves the table when refs drops to zero, so
// webhooks for calls that never create state cannot grow the table.
type callLock struct {
	slot chan struct{}
	refs int
}

// Store keeps execution state in process memory. Get/Put/Delete touch only
// the call's shard; Lock hands out a per-call slot that is independent of
// the shard locks so it can be held across a whole webhook turn.
type Store struct {
	shards [shardCount]*shard

	lockMu sync.Mutex
	locks  map[string]*callLock
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	s := &Store{locks: make(map[string]*callLock)}
	for i := range s.shards {
		s.shards[i] = &shard{states: make(map[string]*models.ExecutionState)}
	}

	return s
}

func (s *Store) shardFor(callID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(callID))

	return s.shards[h.Sum32()%shardCount]
}

// Lock acquires the per-call slot, blocking until it is free or the context
// is done.
func (s *Store) Lock(ctx context.Context, callID string) (statestore.UnlockFunc, error) {
	s.lockMu.Lock()

	l, ok := s.locks[callID]
	if !ok {
		l = &callLock{slot: make(chan struct{}, 1)}
		s.locks[callID] = l
	}

	l.refs++
	s.lockMu.Unlock()

	select {
	case l.slot <- struct{}{}:
		return func() {
			<-l.slot
			s.releaseLock(callID, l)
		}, nil
	case <-ctx.Done():
		s.releaseLock(callID, l)

		return nil, ctx.Err()
	}
}

func (s *Store) releaseLock(callID string, l *callLock) {
	s.lockMu.Lock()

	l.refs--
	if l.refs == 0 {
		delete(s.locks, callID)
	}

	s.lockMu.Unlock()
}

func (s *Store) Get(_ context.Context, callID string) (*models.ExecutionState, error) {
	sh := s.shardFor(callID)

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	state, ok := sh.states[callID]
	if !ok {
		return nil, statestore.ErrNotFound
	}

	return state, nil
}

func (s *Store) Put(_ context.Context, state *models.ExecutionState) error {
	sh := s.shardFor(state.CallID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.states[state.CallID] = state

	return nil
}

func (s *Store) Delete(_ context.Context, callID string) error {
	sh := s.shardFor(callID)

	sh.mu.Lock()
	delete(sh.states, callID)
	sh.mu.Unlock()

	return nil
}

func (s *Store) List(_ context.Context) ([]*models.ExecutionState, error) {
	var out []*models.ExecutionState

	for _, sh := range s.shards {
		sh.mu.RLock()

		for _, state := range sh.states {
			out = append(out, state)
		}

		sh.mu.RUnlock()
	}

	return out, nil
}

func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

func (s *Store) Close(_ context.Context) error {
	return nil
}
