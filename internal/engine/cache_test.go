// Arbiter - RBAC Authorization Decision Engine
// Copyright 2026 Arbiter Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arbiterhq/arbiter

package engine

import (
	"testing"
	"time"
)

func TestDecisionCacheSetGet(t *testing.T) {
	c := newDecisionCache(time.Minute)
	defer c.stop()

	if _, ok := c.get("alice:DATABASE:READ:orders:none"); ok {
		t.Fatal("empty cache must miss")
	}

	c.set("alice:DATABASE:READ:orders:none", true)
	result, ok := c.get("alice:DATABASE:READ:orders:none")
	if !ok || !result {
		t.Fatalf("get = %v, %v, want true, true", result, ok)
	}
}

func TestDecisionCacheStaleEntryMisses(t *testing.T) {
	c := newDecisionCache(10 * time.Millisecond)
	defer c.stop()

	c.set("k", true)
	time.Sleep(25 * time.Millisecond)
	if _, ok := c.get("k"); ok {
		t.Fatal("entry past TTL must miss")
	}
}

func TestDecisionCacheInvalidateUserScoped(t *testing.T) {
	c := newDecisionCache(time.Minute)
	defer c.stop()

	c.set("alice:DATABASE:READ:orders:none", true)
	c.set("alice:SERVICE:DEPLOY:api:none", false)
	c.set("alicia:DATABASE:READ:orders:none", true)

	c.invalidateUser("alice")

	if _, ok := c.get("alice:DATABASE:READ:orders:none"); ok {
		t.Fatal("alice entry survived invalidation")
	}
	if _, ok := c.get("alice:SERVICE:DEPLOY:api:none"); ok {
		t.Fatal("second alice entry survived invalidation")
	}
	// Prefix match includes the separator, so a longer user id with the
	// same leading characters is untouched.
	if _, ok := c.get("alicia:DATABASE:READ:orders:none"); !ok {
		t.Fatal("alicia entry must survive alice invalidation")
	}
}

func TestDecisionCacheClearAndLen(t *testing.T) {
	c := newDecisionCache(time.Minute)
	defer c.stop()

	c.set("a", true)
	c.set("b", false)
	if c.len() != 2 {
		t.Fatalf("len = %d, want 2", c.len())
	}
	c.clear()
	if c.len() != 0 {
		t.Fatalf("len after clear = %d, want 0", c.len())
	}
}

func TestDecisionCacheStopIdempotent(t *testing.T) {
	c := newDecisionCache(time.Minute)
	c.stop()
	c.stop()
}
