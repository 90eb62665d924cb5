// Arbiter - RBAC Authorization Decision Engine
// Copyright 2026 Arbiter Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arbiterhq/arbiter

package engine

import (
	"strings"
	"sync"
	"time"
)

// decisionCache caches evaluated authorization decisions in process.
type decisionCache struct {
	ttl      time.Duration
	mu       sync.RWMutex
	items    map[string]*decisionItem
	stopChan chan struct{}
	stopOnce sync.Once
}

type decisionItem struct {
	result     bool
	recordedAt time.Time
}

// newDecisionCache creates a cache with a background sweeper. A
// non-positive TTL falls back to one minute.
func newDecisionCache(ttl time.Duration) *decisionCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	c := &decisionCache{
		ttl:      ttl,
		items:    make(map[string]*decisionItem),
		stopChan: make(chan struct{}),
	}
	go c.sweep()
	return c
}

// get returns a cached decision. Entries older than the TTL are
// reported as absent and recomputed by the caller.
func (c *decisionCache) get(key string) (bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[key]
	if !ok {
		return false, false
	}
	if time.Since(item.recordedAt) >= c.ttl {
		return false, false
	}
	return item.result, true
}

// set stores a decision with the current timestamp.
func (c *decisionCache) set(key string, result bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = &decisionItem{result: result, recordedAt: time.Now()}
}

// invalidateUser removes all decisions for one user. Decision keys
// begin with the user id and a colon.
func (c *decisionCache) invalidateUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := userID + ":"
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
}

// clear removes every decision.
func (c *decisionCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*decisionItem)
}

// len returns the number of live entries.
func (c *decisionCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// sweep periodically drops stale entries.
func (c *decisionCache) sweep() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, item := range c.items {
				if now.Sub(item.recordedAt) >= c.ttl {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// stop halts the sweeper. Safe to call multiple times.
func (c *decisionCache) stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
}
