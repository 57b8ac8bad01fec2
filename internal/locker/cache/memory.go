package cache

import (
	"context"
	"sync"
	"time"

	"privylocker/internal/locker/models"
	"privylocker/internal/locker/ports"
	"privylocker/pkg/domain"
	"privylocker/pkg/platform/sentinel"
)

type memoryEntry struct {
	session   models.ShareSession
	expiresAt time.Time
}

// Memory is a process-local share status cache.
type Memory struct {
	mu      sync.Mutex
	entries map[domain.ShareKey]memoryEntry
	now     func() time.Time
}

var _ ports.StatusCache = (*Memory)(nil)

// NewMemory constructs an empty cache. now defaults to time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{entries: make(map[domain.ShareKey]memoryEntry), now: now}
}

func (c *Memory) Get(_ context.Context, key domain.ShareKey) (*models.ShareSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, sentinel.ErrNotFound
	}
	s := e.session
	return &s, nil
}

func (c *Memory) Set(_ context.Context, session *models.ShareSession, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[session.Key] = memoryEntry{session: *session, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *Memory) Invalidate(_ context.Context, key domain.ShareKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}
