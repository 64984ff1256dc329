package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another pipeline run already holds the lock.
var ErrLockHeld = errors.New("cache: run lock already held")

// RunLock is a best-effort distributed lock keyed by character ID. It prevents
// two asset-generation runs for the same character from interleaving when more
// than one backend instance is deployed.
type RunLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRunLock builds a RunLock around the shared Redis client. A nil client
// yields a disabled lock whose Acquire always succeeds, so single-instance
// deployments without Redis keep working.
func NewRunLock(client *redis.Client, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RunLock{client: client, ttl: ttl}
}

// Acquire takes the lock for the given character and returns a release
// function. The token guards against releasing a lock that has expired and
// been re-acquired by a later run.
func (l *RunLock) Acquire(ctx context.Context, characterID uint64, token string) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}

	key := runLockKey(characterID)
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		current, err := l.client.Get(releaseCtx, key).Result()
		if err != nil || current != token {
			return
		}
		_ = l.client.Del(releaseCtx, key).Err()
	}
	return release, nil
}

func runLockKey(characterID uint64) string {
	return fmt.Sprintf("greedot:pipeline:run:%d", characterID)
}
