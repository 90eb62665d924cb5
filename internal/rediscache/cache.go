// Arbiter - RBAC Authorization Decision Engine
// Copyright 2026 Arbiter Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arbiterhq/arbiter

/*
cache.go - Distributed Cache Layer

Wraps the external Redis cache service with the engine's key patterns,
TTL policy, serialization, and invalidation protocol.

Degradation contract: the cache is advisory. Every Redis error, open
circuit, timeout, or decode failure is logged and surfaced to callers
as a plain miss, so authorization falls back to direct evaluation.
Cache trouble must never change an authorization outcome, and corrupt
data must never grant access.

All round trips run through a circuit breaker so a down Redis stops
costing a timeout per check.

Invalidation:
  - InvalidateUser deletes the user's permission/role entries and
    SCAN-deletes check-result keys embedding the user id.
  - InvalidateRole deletes the role's permission entry and clears all
    hierarchy, check-result, and bulk-result entries: without a
    role-to-user reverse index, precision is traded for correctness.
*/

package rediscache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/redis/go-redis/v9"

	"github.com/arbiterhq/arbiter/internal/logging"
	"github.com/arbiterhq/arbiter/internal/rbac"
)

// scanBatchSize is the COUNT hint for SCAN-based invalidation.
const scanBatchSize = 256

// Config holds cache layer configuration.
type Config struct {
	// Addr is the Redis host:port.
	Addr string

	// Password authenticates against the server (optional).
	Password string

	// DB selects the Redis logical database.
	DB int

	// Namespace prefixes every key.
	Namespace string

	// BaseTTL applies to check results and permission entries;
	// hierarchy entries use twice this value.
	BaseTTL time.Duration

	// DialTimeout bounds the initial connection attempt.
	DialTimeout time.Duration

	// OpTimeout bounds each cache round trip.
	OpTimeout time.Duration
}

// Cache is the distributed cache layer over Redis.
type Cache struct {
	client    *redis.Client
	breaker   *gobreaker.CircuitBreaker[[]byte]
	namespace string
	baseTTL   time.Duration
	opTimeout time.Duration
	stats     *statsCounters
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = "arbiter"
	}
	if cfg.BaseTTL <= 0 {
		cfg.BaseTTL = 5 * time.Minute
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 250 * time.Millisecond
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("rediscache: ping: %w", err)
	}

	return &Cache{
		client:    client,
		breaker:   newBreaker(),
		namespace: cfg.Namespace,
		baseTTL:   cfg.BaseTTL,
		opTimeout: cfg.OpTimeout,
		stats:     newStatsCounters(),
	}, nil
}

// newBreaker builds the circuit breaker guarding Redis round trips.
// Opens at a 60% failure rate once ten calls have been observed in the
// window; recovers through a half-open probe after the timeout.
func newBreaker() *gobreaker.CircuitBreaker[[]byte] {
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "rediscache",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Cache circuit breaker state change")
		},
	})
}

// Close releases the underlying Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// hierarchyTTL is the lifetime of role-hierarchy entries.
func (c *Cache) hierarchyTTL() time.Duration {
	return 2 * c.baseTTL
}

// GetCheckResult returns a cached authorization decision. The second
// return is false on a miss or any cache failure.
func (c *Cache) GetCheckResult(ctx context.Context, checkKey string) (bool, bool) {
	var entry checkResultEntry
	if !c.getJSON(ctx, PatternCheckResult, checkKey, &entry) {
		return false, false
	}
	return entry.Result, true
}

// SetCheckResult stores an authorization decision under the base TTL.
func (c *Cache) SetCheckResult(ctx context.Context, checkKey string, result bool) {
	c.setJSON(ctx, PatternCheckResult, checkKey, checkResultEntry{
		Result:     result,
		RecordedAt: time.Now().UTC(),
	}, c.baseTTL)
}

// GetUserPermissions returns a user's cached effective permissions.
func (c *Cache) GetUserPermissions(ctx context.Context, userID string) ([]rbac.Permission, bool) {
	var perms []rbac.Permission
	if !c.getJSON(ctx, PatternUserPermissions, userID, &perms) {
		return nil, false
	}
	return perms, true
}

// SetUserPermissions stores a user's effective permissions.
func (c *Cache) SetUserPermissions(ctx context.Context, userID string, perms []rbac.Permission) {
	c.setJSON(ctx, PatternUserPermissions, userID, perms, c.baseTTL)
}

// GetRolePermissions returns a role's cached permission list.
func (c *Cache) GetRolePermissions(ctx context.Context, roleName string) ([]rbac.Permission, bool) {
	var perms []rbac.Permission
	if !c.getJSON(ctx, PatternRolePermissions, roleName, &perms) {
		return nil, false
	}
	return perms, true
}

// SetRolePermissions stores a role's permission list.
func (c *Cache) SetRolePermissions(ctx context.Context, roleName string, perms []rbac.Permission) {
	c.setJSON(ctx, PatternRolePermissions, roleName, perms, c.baseTTL)
}

// GetUserRoles returns a user's cached expanded role set.
func (c *Cache) GetUserRoles(ctx context.Context, userID string) ([]string, bool) {
	var roles []string
	if !c.getJSON(ctx, PatternUserRoles, userID, &roles) {
		return nil, false
	}
	return roles, true
}

// SetUserRoles stores a user's expanded role set.
func (c *Cache) SetUserRoles(ctx context.Context, userID string, roles []string) {
	c.setJSON(ctx, PatternUserRoles, userID, roles, c.baseTTL)
}

// GetHierarchy returns a role's cached ancestor closure.
func (c *Cache) GetHierarchy(ctx context.Context, roleName string) (map[string]struct{}, bool) {
	var entry hierarchyEntry
	if !c.getJSON(ctx, PatternRoleHierarchy, roleName, &entry) {
		return nil, false
	}
	closure := make(map[string]struct{}, len(entry.Roles))
	for _, r := range entry.Roles {
		closure[r] = struct{}{}
	}
	return closure, true
}

// SetHierarchy stores a role's ancestor closure under twice the base
// TTL.
func (c *Cache) SetHierarchy(ctx context.Context, roleName string, closure map[string]struct{}) {
	roles := make([]string, 0, len(closure))
	for r := range closure {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	c.setJSON(ctx, PatternRoleHierarchy, roleName, hierarchyEntry{
		Roles:      roles,
		RecordedAt: time.Now().UTC(),
	}, c.hierarchyTTL())
}

// GetBulkResult returns a cached bulk aggregate map by batch hash.
func (c *Cache) GetBulkResult(ctx context.Context, batchHash string) (map[string]bool, bool) {
	var entry bulkEntry
	if !c.getJSON(ctx, PatternBulkResult, batchHash, &entry) {
		return nil, false
	}
	return entry.Results, true
}

// SetBulkResult stores a bulk aggregate map under the base TTL.
func (c *Cache) SetBulkResult(ctx context.Context, batchHash string, results map[string]bool) {
	c.setJSON(ctx, PatternBulkResult, batchHash, bulkEntry{
		Results:    results,
		RecordedAt: time.Now().UTC(),
	}, c.baseTTL)
}

// InvalidateUser removes the user's permission and role entries, then
// SCAN-deletes every check-result key embedding the user id. Errors are
// logged and swallowed: the TTL bounds any staleness left behind.
func (c *Cache) InvalidateUser(ctx context.Context, userID string) {
	c.del(ctx,
		c.key(PatternUserPermissions, userID),
		c.key(PatternUserRoles, userID),
	)
	// Check keys start with the user id followed by a separator, so a
	// prefix match covers exactly this user's decisions.
	c.scanDel(ctx, c.match(PatternCheckResult, userID+":"))
	// Bulk aggregates may embed this user's decisions and are not
	// indexed by user, so they go wholesale.
	c.scanDel(ctx, c.match(PatternBulkResult, ""))
}

// InvalidateRole removes the role's permission entry, then clears all
// hierarchy, check-result, and bulk-result entries. Any role graph
// change can affect any closure, and the affected-user set is not
// tracked, so the broad sweep is deliberate.
func (c *Cache) InvalidateRole(ctx context.Context, roleName string) {
	c.del(ctx, c.key(PatternRolePermissions, roleName))
	c.scanDel(ctx, c.match(PatternRoleHierarchy, ""))
	c.scanDel(ctx, c.match(PatternCheckResult, ""))
	c.scanDel(ctx, c.match(PatternBulkResult, ""))
	c.scanDel(ctx, c.match(PatternUserPermissions, ""))
	c.scanDel(ctx, c.match(PatternUserRoles, ""))
}

// getJSON fetches and decodes one entry, recording pattern stats.
// Returns false on miss, cache failure, or decode failure.
func (c *Cache) getJSON(ctx context.Context, pattern, id string, dest any) bool {
	key := c.key(pattern, id)
	data, err := c.breaker.Execute(func() ([]byte, error) {
		opCtx, cancel := c.opContext(ctx)
		defer cancel()
		b, err := c.client.Get(opCtx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			// A plain miss is not a cache failure; it must not count
			// against the circuit breaker.
			return nil, nil
		}
		return b, err
	})
	if err != nil {
		c.stats.errors.Add(1)
		c.stats.miss(pattern)
		logging.Warn().Err(err).Str("pattern", pattern).Msg("Cache read failed, treating as miss")
		return false
	}
	if data == nil {
		c.stats.miss(pattern)
		return false
	}
	if err := decode(data, dest); err != nil {
		c.stats.errors.Add(1)
		c.stats.miss(pattern)
		logging.Warn().Err(err).Str("pattern", pattern).Msg("Cache entry corrupt, treating as miss")
		return false
	}
	c.stats.hit(pattern)
	return true
}

// setJSON encodes and stores one entry. Failures are logged and
// swallowed.
func (c *Cache) setJSON(ctx context.Context, pattern, id string, val any, ttl time.Duration) {
	data, err := encode(val)
	if err != nil {
		logging.Warn().Err(err).Str("pattern", pattern).Msg("Cache encode failed, skipping write")
		return
	}
	key := c.key(pattern, id)
	if _, err := c.breaker.Execute(func() ([]byte, error) {
		opCtx, cancel := c.opContext(ctx)
		defer cancel()
		return nil, c.client.Set(opCtx, key, data, ttl).Err()
	}); err != nil {
		c.stats.errors.Add(1)
		logging.Warn().Err(err).Str("pattern", pattern).Msg("Cache write failed")
	}
}

// del removes keys directly, logging failures.
func (c *Cache) del(ctx context.Context, keys ...string) {
	if _, err := c.breaker.Execute(func() ([]byte, error) {
		opCtx, cancel := c.opContext(ctx)
		defer cancel()
		return nil, c.client.Del(opCtx, keys...).Err()
	}); err != nil {
		c.stats.errors.Add(1)
		logging.Warn().Err(err).Msg("Cache delete failed")
	}
}

// scanDel walks keys matching the glob and deletes them in batches.
func (c *Cache) scanDel(ctx context.Context, matchGlob string) {
	if _, err := c.breaker.Execute(func() ([]byte, error) {
		// Invalidation sweeps may touch many keys; give them a wider
		// budget than single round trips.
		opCtx, cancel := context.WithTimeout(ctx, 10*c.opTimeout)
		defer cancel()

		var cursor uint64
		for {
			keys, next, err := c.client.Scan(opCtx, cursor, matchGlob, scanBatchSize).Result()
			if err != nil {
				return nil, err
			}
			if len(keys) > 0 {
				if err := c.client.Del(opCtx, keys...).Err(); err != nil {
					return nil, err
				}
			}
			cursor = next
			if cursor == 0 {
				return nil, nil
			}
		}
	}); err != nil {
		c.stats.errors.Add(1)
		logging.Warn().Err(err).Str("match", matchGlob).Msg("Cache scan-delete failed")
	}
}

// opContext derives the per-round-trip timeout context.
func (c *Cache) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opTimeout)
}
