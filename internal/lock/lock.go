// Package lock serializes work on a single user across the expiration job,
// the login check and payment callbacks.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// Locker acquires a named exclusive lock. The returned function releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// UserKey is the lock name used for everything that mutates a user's
// packages, roles or listings.
func UserKey(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

const (
	lockPrefix  = "homelengo:lock:"
	lockExpiry  = 30 * time.Second
	extendEvery = lockExpiry / 3
	lockRetries = 64
)

// RedisLocker is a distributed lock backed by redsync, so several API
// instances never clean up and activate the same user at once.
type RedisLocker struct {
	rs  *redsync.Redsync
	log *slog.Logger
}

func NewRedisLocker(client *redis.Client, log *slog.Logger) *RedisLocker {
	pool := goredis.NewPool(client)
	return &RedisLocker{
		rs:  redsync.New(pool),
		log: log.With("component", "RedisLocker"),
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	mutex := l.rs.NewMutex(
		lockPrefix+key,
		redsync.WithExpiry(lockExpiry),
		redsync.WithTries(lockRetries),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	return l.hold(key, mutex, extendEvery), nil
}

// heldMutex is the part of *redsync.Mutex used while the lock is held.
type heldMutex interface {
	ExtendContext(ctx context.Context) (bool, error)
	UnlockContext(ctx context.Context) (bool, error)
}

// hold extends m every interval until the returned function releases it, so
// a cleanup that outlives lockExpiry keeps its lock. A holder that dies
// stops extending and the key expires.
func (l *RedisLocker) hold(key string, m heldMutex, every time.Duration) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ok, err := m.ExtendContext(context.Background())
				if err != nil || !ok {
					l.log.Error("Lost lock while holding it", "key", key, "error", err)
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			if _, err := m.UnlockContext(context.Background()); err != nil {
				l.log.Warn("Failed to release lock", "key", key, "error", err)
			}
		})
	}
}

// LocalLocker is an in-process keyed mutex, used when no Redis is configured
// (single instance deployments and tests).
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*entry)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

func (l *LocalLocker) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}
