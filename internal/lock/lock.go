// Package lock provides per-key mutual exclusion for lot mutations, either within
// one process or across processes through Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"

	applog "smokehouse/internal/log"
)

// ErrNotObtained is returned when the lock could not be taken before the
// context expired.
var ErrNotObtained = errors.New("lock: not obtained")

// Release gives the lock back. It is safe to call more than once.
type Release func()

type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// Local serialises holders of the same key inside one process.
type Local struct {
	mu   sync.Mutex
	keys map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{keys: make(map[string]*slot)}
}

func (l *Local) Acquire(ctx context.Context, key string) (Release, error) {
	l.mu.Lock()
	if l.keys == nil {
		l.keys = make(map[string]*slot)
	}
	s, ok := l.keys[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.keys[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				l.drop(key, s)
			})
		}, nil
	case <-ctx.Done():
		l.drop(key, s)
		return nil, fmt.Errorf("%w: %s: %v", ErrNotObtained, key, ctx.Err())
	}
}

func (l *Local) drop(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 && l.keys[key] == s {
		delete(l.keys, key)
	}
}

// Redis holds locks in Redis so several ledger processes can share a database.
type Redis struct {
	client  *redislock.Client
	ttl     time.Duration
	backoff time.Duration
	prefix  string
}

// NewRedis builds a Redis locker. Locks expire after ttl if never released.
func NewRedis(client redislock.RedisClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Redis{
		client:  redislock.New(client),
		ttl:     ttl,
		backoff: 25 * time.Millisecond,
		prefix:  "smokehouse:lock:",
	}
}

func (r *Redis) Key(key string) string {
	return r.prefix + key
}

func (r *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	lock, err := r.client.Obtain(ctx, r.Key(key), r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(r.backoff),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain redis lock %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				applog.Warn(ctx, "release redis lock", "key", key, "error", err)
			}
		})
	}, nil
}
