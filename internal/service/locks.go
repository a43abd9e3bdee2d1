package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"number_merge_game/internal/logger"
)

// UnlockFunc releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker serialises work on a key across replicas.
type DistributedLocker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// LockManager gives every guild a single writer. Entries are reference
// counted and dropped once nobody waits on them.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*lockEntry

	locker DistributedLocker
	ttl    time.Duration
	log    *slog.Logger
}

type LockOption func(*LockManager)

// WithDistributedLocker adds a cross-process lock taken after the local one.
func WithDistributedLocker(l DistributedLocker, ttl time.Duration) LockOption {
	return func(m *LockManager) {
		m.locker = l
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func NewLockManager(opts ...LockOption) *LockManager {
	m := &LockManager{
		locks: make(map[string]*lockEntry),
		ttl:   30 * time.Second,
		log:   logger.With("component", "locks"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *LockManager) acquire(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[key]
	if !ok {
		entry = &lockEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

func (m *LockManager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[key]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// Active reports how many keys currently hold an entry.
func (m *LockManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// WithLock runs fn while holding the lock for key.
func (m *LockManager) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	entry := m.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(key)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, key, m.ttl)
		if err != nil {
			return external("acquire distributed lock", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.log.Warn("failed to release distributed lock, it will expire", "guild_id", key, "err", err)
			}
		}()
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	return fn(ctx)
}
