// Package redis provides a live-table store backed by Redis, for deployments
// where webhook turns for one call may land on different instances.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"

	"github.com/voxflow/voxflow/pkg/models"
	"github.com/voxflow/voxflow/pkg/statestore"
)

const (
	statePrefix = "voxflow:exec:"
	lockPrefix  = "voxflow:lock:"
	indexKey    = "voxflow:exec:index"

	lockTTL      = 2 * time.Minute
	lockPollStep = 25 * time.Millisecond
)

// unlockScript deletes the lock only when the caller still owns it.
var unlockScript = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Store keeps execution state as JSON values with a sorted-set index scored
// by start time. Per-call serialization uses SETNX leases with a TTL so a
// crashed holder cannot wedge a call forever.
type Store struct {
	client *backend.Client
}

// NewFromClient wraps an existing Redis client.
func NewFromClient(client *backend.Client) *Store {
	return &Store{client: client}
}

// New connects to the given Redis URL.
func New(redisURL string) (*Store, error) {
	opts, err := backend.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return &Store{client: backend.NewClient(opts)}, nil
}

func (s *Store) Lock(ctx context.Context, callID string) (statestore.UnlockFunc, error) {
	key := lockPrefix + callID
	token := uuid.NewString()

	for {
		ok, err := s.client.SetNX(ctx, key, token, lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring call lock: %w", err)
		}

		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				_, _ = unlockScript.Run(releaseCtx, s.client, []string{key}, token).Result()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollStep):
		}
	}
}

func (s *Store) Get(ctx context.Context, callID string) (*models.ExecutionState, error) {
	raw, err := s.client.Get(ctx, statePrefix+callID).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, statestore.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("loading execution state: %w", err)
	}

	var state models.ExecutionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decoding execution state: %w", err)
	}

	return &state, nil
}

func (s *Store) Put(ctx context.Context, state *models.ExecutionState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding execution state: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, statePrefix+state.CallID, raw, 0)
	pipe.ZAdd(ctx, indexKey, backend.Z{
		Score:  float64(state.StartedAt.UnixMilli()),
		Member: state.CallID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing execution state: %w", err)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, callID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, statePrefix+callID)
	pipe.ZRem(ctx, indexKey, callID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting execution state: %w", err)
	}

	return nil
}

func (s *Store) List(ctx context.Context) ([]*models.ExecutionState, error) {
	callIDs, err := s.client.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}

	out := make([]*models.ExecutionState, 0, len(callIDs))

	for _, callID := range callIDs {
		state, err := s.Get(ctx, callID)
		if errors.Is(err, statestore.ErrNotFound) {
			// Index entry outlived the state value; drop it lazily.
			_ = s.client.ZRem(ctx, indexKey, callID).Err()

			continue
		}

		if err != nil {
			return nil, err
		}

		out = append(out, state)
	}

	return out, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	return nil
}

func (s *Store) Close(_ context.Context) error {
	return s.client.Close()
}
