// Arbiter - RBAC Authorization Decision Engine
// Copyright 2026 Arbiter Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arbiterhq/arbiter

/*
resolver.go - Role Hierarchy Resolver

Computes the transitive closure of ancestor roles for a role name.
Traversal is depth-first over parent links with a visited set, so
cyclic graphs (A -> B -> A) terminate and resolve to {A, B}.

Closures are cached per role name in an LRU cache. Invalidation is
global: any role mutation purges the whole cache, because a single
edge change can affect arbitrarily many closures and no reverse index
is kept.
*/

package hierarchy

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/arbiterhq/arbiter/internal/logging"
)

// DefaultCacheSize bounds the closure cache when no size is configured.
const DefaultCacheSize = 1024

// RoleGraph is the minimal store surface the resolver traverses.
type RoleGraph interface {
	// RoleParents returns the parent role names for a role, and false
	// if the role does not exist.
	RoleParents(name string) ([]string, bool)
}

// Resolver computes and caches role ancestor closures.
type Resolver struct {
	graph RoleGraph
	cache *lru.Cache[string, map[string]struct{}]
}

// NewResolver creates a resolver over the given role graph. cacheSize
// <= 0 falls back to DefaultCacheSize.
func NewResolver(graph RoleGraph, cacheSize int) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, map[string]struct{}](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{graph: graph, cache: cache}, nil
}

// Resolve returns the set of role names reachable from roleName through
// parent links, including roleName itself. The result is always a fresh
// map the caller may mutate.
func (r *Resolver) Resolve(roleName string) map[string]struct{} {
	if cached, ok := r.cache.Get(roleName); ok {
		return cloneSet(cached)
	}

	visited := make(map[string]struct{})
	r.walk(roleName, visited)

	r.cache.Add(roleName, visited)
	return cloneSet(visited)
}

// ResolveAll unions the closures of several roles, as needed when a
// user holds more than one role.
func (r *Resolver) ResolveAll(roleNames []string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, name := range roleNames {
		for role := range r.Resolve(name) {
			out[role] = struct{}{}
		}
	}
	return out
}

// Invalidate purges every cached closure. Called after any role
// create, update, or delete.
func (r *Resolver) Invalidate() {
	r.cache.Purge()
	logging.Debug().Msg("Role hierarchy cache purged")
}

// Len returns the number of cached closures, for stats reporting.
func (r *Resolver) Len() int {
	return r.cache.Len()
}

// walk visits roleName and recurses into its parents. The visited set
// doubles as the accumulating closure and as the cycle guard.
func (r *Resolver) walk(roleName string, visited map[string]struct{}) {
	if _, seen := visited[roleName]; seen {
		return
	}
	visited[roleName] = struct{}{}

	parents, ok := r.graph.RoleParents(roleName)
	if !ok {
		return
	}
	for _, parent := range parents {
		r.walk(parent, visited)
	}
}

func cloneSet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}
