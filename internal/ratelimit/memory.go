package ratelimit

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type window struct {
	count   int
	resetAt time.Time
}

// Memory is a process local fixed-window limiter. Expired windows are
// evicted by the cache janitor.
type Memory struct {
	mu    sync.Mutex
	cache *gocache.Cache
	now   func() time.Time
}

func NewMemory(cleanupInterval time.Duration) *Memory {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &Memory{
		cache: gocache.New(gocache.NoExpiration, cleanupInterval),
		now:   time.Now,
	}
}

func (m *Memory) Check(ctx context.Context, key string, limit int, win time.Duration) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var w *window
	if v, ok := m.cache.Get(key); ok {
		w = v.(*window)
	}
	if w == nil || !now.Before(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(win)}
		m.cache.Set(key, w, win)
		return Result{Allowed: true, Limit: limit, Remaining: max(limit-1, 0)}, nil
	}
	if w.count >= limit {
		return Result{Allowed: false, Limit: limit, RetryAfter: w.resetAt.Sub(now)}, nil
	}
	w.count++
	return Result{Allowed: true, Limit: limit, Remaining: limit - w.count}, nil
}

func (m *Memory) Reset(key string) {
	m.mu.Lock()
	m.cache.Delete(key)
	m.mu.Unlock()
}
