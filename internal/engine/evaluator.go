// Arbiter - RBAC Authorization Decision Engine
// Copyright 2026 Arbiter Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arbiterhq/arbiter

/*
evaluator.go - Authorization Evaluator

Answers one authorization question by combining a user's direct
permissions with the permissions of every role in the user's
hierarchy-expanded role set.

Evaluation order:
 1. Inactive or unknown user: deny.
 2. Direct permissions, in order; first match allows.
 3. Union of ancestor closures over the user's assigned roles.
 4. Each closure role that exists and is active, permissions in order;
    first match allows.
 5. No match: deny (fail closed).

Decisions are cached in process under the composite check key with a
TTL; stale entries are recomputed and refreshed.
*/

package engine

import (
	"time"

	"github.com/arbiterhq/arbiter/internal/hierarchy"
	"github.com/arbiterhq/arbiter/internal/rbac"
	"github.com/arbiterhq/arbiter/internal/store"
)

// Evaluator owns the permission-matching pipeline and its decision
// cache.
type Evaluator struct {
	store    *store.Store
	resolver *hierarchy.Resolver
	cache    *decisionCache
}

// NewEvaluator creates an evaluator over the given store and resolver.
// decisionTTL bounds how long a cached decision is served before
// recomputation.
func NewEvaluator(st *store.Store, resolver *hierarchy.Resolver, decisionTTL time.Duration) *Evaluator {
	return &Evaluator{
		store:    st,
		resolver: resolver,
		cache:    newDecisionCache(decisionTTL),
	}
}

// Close stops the decision cache sweeper.
func (e *Evaluator) Close() {
	e.cache.stop()
}

// Evaluate answers the request, serving from the decision cache when a
// fresh entry exists. The second return reports whether the decision
// came from cache.
func (e *Evaluator) Evaluate(req rbac.CheckRequest) (allowed, cached bool) {
	key := req.Key()
	if result, ok := e.cache.get(key); ok {
		return result, true
	}

	result := e.compute(req)
	e.cache.set(key, result)
	return result, false
}

// Cached peeks the decision cache without evaluating on a miss.
func (e *Evaluator) Cached(req rbac.CheckRequest) (allowed, ok bool) {
	return e.cache.get(req.Key())
}

// Prime stores an externally obtained decision in the decision cache,
// so a shared-cache hit serves follow-up checks locally.
func (e *Evaluator) Prime(req rbac.CheckRequest, allowed bool) {
	e.cache.set(req.Key(), allowed)
}

// compute runs the full evaluation pipeline, bypassing the cache.
func (e *Evaluator) compute(req rbac.CheckRequest) bool {
	user, ok := e.store.GetUser(req.UserID)
	if !ok || !user.IsActive {
		return false
	}

	now := time.Now()
	if matchAny(user.DirectPermissions, req, now) {
		return true
	}

	for roleName := range e.resolver.ResolveAll(user.Roles) {
		role, ok := e.store.GetRole(roleName)
		if !ok || !role.IsActive {
			continue
		}
		if matchAny(role.Permissions, req, now) {
			return true
		}
	}

	return false
}

// matchAny checks permissions in order and reports the first match.
func matchAny(perms []rbac.Permission, req rbac.CheckRequest, now time.Time) bool {
	for _, p := range perms {
		if p.Matches(req.ResourceType, req.Action, req.ResourceID, req.Context, now) {
			return true
		}
	}
	return false
}

// InvalidateUser drops the user's cached decisions.
func (e *Evaluator) InvalidateUser(userID string) {
	e.cache.invalidateUser(userID)
}

// InvalidateAll drops every cached decision. Used after role graph
// mutations, which can affect any user.
func (e *Evaluator) InvalidateAll() {
	e.cache.clear()
}

// CachedDecisions reports the number of live decision cache entries.
func (e *Evaluator) CachedDecisions() int {
	return e.cache.len()
}
