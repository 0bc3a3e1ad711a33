package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/portfolioviz/pkg/logger"
)

type entry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is an in-process response cache for single-instance deployments
// ⭐ SSOT: Redis 가 없을 때의 응답 캐시는 이 구조체에서만
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	logger  *logger.Logger
	now     func() time.Time
}

// NewMemory creates an empty in-memory cache
func NewMemory(log *logger.Logger) *Memory {
	return &Memory{
		entries: make(map[string]entry),
		logger:  log,
		now:     time.Now,
	}
}

// Get loads a live entry into dest; a miss or an expired entry returns (false, nil)
func (c *Memory) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !c.now().Before(e.expiresAt) {
		return false, nil
	}

	if err := json.Unmarshal(e.data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}
	return true, nil
}

// Set stores value for ttl
func (c *Memory) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	c.mu.Lock()
	c.entries[key] = entry{data: data, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Delete removes an entry
func (c *Memory) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

// Len returns the number of entries, expired ones included
func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// CleanStale removes expired entries
func (c *Memory) CleanStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	count := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			count++
		}
	}

	if count > 0 {
		c.logger.WithField("count", count).Debug("Cleaned expired responses from cache")
	}
	return count
}
