// Arbiter - RBAC Authorization Decision Engine
// Copyright 2026 Arbiter Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arbiterhq/arbiter

/*
service.go - Authorization Service Facade

High-level entry point combining the entity store, hierarchy resolver,
evaluator, and optional external cache.

Key Features:
  - CheckPermission: cache-then-evaluate single decision
  - GetUserPermissions / GetEffectivePermissions: expanded permission sets
  - GetUsersWithPermission / GetPermissionMatrix: reverse and cross-product queries
  - Grant/Revoke/Assign/Remove: management operations with scoped invalidation
  - Role and user CRUD with cascade-aware invalidation

Thread Safety:
  - Store and resolver are internally locked; service-level counters are atomic
  - Management mutation happens before its cache invalidation on every path

Cache tiers, checked in order:
 1. External check-result cache (shared across processes, optional)
 2. Evaluator decision cache (in-process TTL)
 3. Full evaluation against the store
*/

package authz

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/arbiterhq/arbiter/internal/engine"
	"github.com/arbiterhq/arbiter/internal/hierarchy"
	"github.com/arbiterhq/arbiter/internal/logging"
	"github.com/arbiterhq/arbiter/internal/rbac"
	"github.com/arbiterhq/arbiter/internal/rediscache"
	"github.com/arbiterhq/arbiter/internal/store"
)

// Invalidation reasons for metrics.
const (
	reasonUserChange      = "user_change"
	reasonRoleChange      = "role_change"
	reasonRoleGraphChange = "role_graph_change"
)

// ServiceConfig holds tunables for the facade.
type ServiceConfig struct {
	// BulkConcurrency bounds the worker pool for bulk checks.
	BulkConcurrency int

	// AuditCapacity is the ring-buffer size for management actions.
	AuditCapacity int
}

// DefaultServiceConfig returns production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		BulkConcurrency: 16,
		AuditCapacity:   DefaultAuditCapacity,
	}
}

// Service is the authorization facade. The external cache is optional;
// when nil, all queries are answered in process.
type Service struct {
	store    *store.Store
	resolver *hierarchy.Resolver
	engine   *engine.Evaluator
	remote   *rediscache.Cache
	audit    *AuditLog

	bulkConcurrency int

	checks      atomic.Int64
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	bulkOps     atomic.Int64
}

// NewService creates the facade over its collaborators. remote may be
// nil to run without an external cache.
func NewService(st *store.Store, resolver *hierarchy.Resolver, eng *engine.Evaluator, remote *rediscache.Cache, cfg ServiceConfig) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("authz: store is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("authz: resolver is required")
	}
	if eng == nil {
		return nil, fmt.Errorf("authz: evaluator is required")
	}
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = DefaultServiceConfig().BulkConcurrency
	}

	return &Service{
		store:           st,
		resolver:        resolver,
		engine:          eng,
		remote:          remote,
		audit:           NewAuditLog(cfg.AuditCapacity),
		bulkConcurrency: cfg.BulkConcurrency,
	}, nil
}

// Close releases the evaluator's background resources. The external
// cache is owned by the caller.
func (s *Service) Close() {
	s.engine.Close()
}

// CheckPermission answers one authorization question. Tiers are
// consulted fastest first: the in-process decision cache, then the
// external check-result cache, then full evaluation. Computed and
// remotely fetched decisions populate the faster tiers on the way out.
//
// Unknown users, inactive users, and unmatched requests all deny.
func (s *Service) CheckPermission(ctx context.Context, req rbac.CheckRequest) bool {
	start := time.Now()
	s.checks.Add(1)

	if result, ok := s.engine.Cached(req); ok {
		s.cacheHits.Add(1)
		RecordCacheHit(TierLocal)
		RecordDecision(string(req.ResourceType), string(req.Action), result, time.Since(start), SourceLocalCache)
		return result
	}
	RecordCacheMiss(TierLocal)

	if s.remote != nil {
		if result, ok := s.remote.GetCheckResult(ctx, req.Key()); ok {
			s.cacheHits.Add(1)
			RecordCacheHit(TierRemote)
			s.engine.Prime(req, result)
			RecordDecision(string(req.ResourceType), string(req.Action), result, time.Since(start), SourceRemoteCache)
			return result
		}
		RecordCacheMiss(TierRemote)
	}

	s.cacheMisses.Add(1)
	allowed, _ := s.engine.Evaluate(req)
	if s.remote != nil {
		s.remote.SetCheckResult(ctx, req.Key(), allowed)
	}

	RecordDecision(string(req.ResourceType), string(req.Action), allowed, time.Since(start), SourceComputed)
	return allowed
}

// GetUserPermissions returns the user's direct permissions plus the
// permissions of every role in the hierarchy-expanded role set,
// deduplicated by permission key. Unknown users return nil.
func (s *Service) GetUserPermissions(ctx context.Context, userID string) []rbac.Permission {
	if s.remote != nil {
		if perms, ok := s.remote.GetUserPermissions(ctx, userID); ok {
			RecordCacheHit(TierRemote)
			return perms
		}
		RecordCacheMiss(TierRemote)
	}

	user, ok := s.store.GetUser(userID)
	if !ok {
		return nil
	}

	seen := make(map[string]struct{})
	perms := make([]rbac.Permission, 0, len(user.DirectPermissions))
	appendPerms := func(in []rbac.Permission) {
		for _, p := range in {
			key := p.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			perms = append(perms, p)
		}
	}

	appendPerms(user.DirectPermissions)

	roleNames := make([]string, 0, len(user.Roles))
	for name := range s.resolver.ResolveAll(user.Roles) {
		roleNames = append(roleNames, name)
	}
	sort.Strings(roleNames)
	for _, name := range roleNames {
		role, ok := s.store.GetRole(name)
		if !ok || !role.IsActive {
			continue
		}
		appendPerms(role.Permissions)
	}

	if s.remote != nil {
		s.remote.SetUserPermissions(ctx, userID, perms)
	}
	return perms
}

// GetEffectivePermissions filters the user's expanded permission set
// by resource type and action (empty values match everything) and
// drops expired entries.
func (s *Service) GetEffectivePermissions(ctx context.Context, userID string, resourceType rbac.ResourceType, action rbac.Action) []rbac.Permission {
	now := time.Now()
	all := s.GetUserPermissions(ctx, userID)

	out := make([]rbac.Permission, 0, len(all))
	for _, p := range all {
		if resourceType != "" && p.ResourceType != resourceType {
			continue
		}
		if action != "" && p.Action != action {
			continue
		}
		if !p.IsValid(now) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// GetUserRoles returns the user's hierarchy-expanded role set, sorted.
// Unknown users return nil.
func (s *Service) GetUserRoles(ctx context.Context, userID string) []string {
	if s.remote != nil {
		if roles, ok := s.remote.GetUserRoles(ctx, userID); ok {
			RecordCacheHit(TierRemote)
			return roles
		}
		RecordCacheMiss(TierRemote)
	}

	user, ok := s.store.GetUser(userID)
	if !ok {
		return nil
	}

	roles := sortedSet(s.resolver.ResolveAll(user.Roles))

	if s.remote != nil {
		s.remote.SetUserRoles(ctx, userID, roles)
	}
	return roles
}

// GetRolePermissions returns a role's own permission list, cached
// under the role-permissions pattern. Unknown roles return nil.
func (s *Service) GetRolePermissions(ctx context.Context, roleName string) []rbac.Permission {
	if s.remote != nil {
		if perms, ok := s.remote.GetRolePermissions(ctx, roleName); ok {
			RecordCacheHit(TierRemote)
			return perms
		}
		RecordCacheMiss(TierRemote)
	}

	role, ok := s.store.GetRole(roleName)
	if !ok {
		return nil
	}
	if s.remote != nil {
		s.remote.SetRolePermissions(ctx, roleName, role.Permissions)
	}
	return role.Permissions
}

// ResolveRoleHierarchy returns the sorted ancestor closure of one
// role, including the role itself, cached under the role-hierarchy
// pattern with its longer TTL.
func (s *Service) ResolveRoleHierarchy(ctx context.Context, roleName string) []string {
	if s.remote != nil {
		if closure, ok := s.remote.GetHierarchy(ctx, roleName); ok {
			RecordCacheHit(TierRemote)
			return sortedSet(closure)
		}
		RecordCacheMiss(TierRemote)
	}

	closure := s.resolver.Resolve(roleName)
	if s.remote != nil {
		s.remote.SetHierarchy(ctx, roleName, closure)
	}
	return sortedSet(closure)
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// GetUsersWithPermission returns the sorted ids of every user allowed
// to perform the action on the resource. Linear in the user count.
func (s *Service) GetUsersWithPermission(ctx context.Context, resourceType rbac.ResourceType, action rbac.Action, resourceID string) []string {
	users := s.store.ListUsers()
	out := make([]string, 0, len(users))
	for _, u := range users {
		req := rbac.CheckRequest{
			UserID:       u.ID,
			ResourceType: resourceType,
			Action:       action,
			ResourceID:   resourceID,
		}
		if s.CheckPermission(ctx, req) {
			out = append(out, u.ID)
		}
	}
	sort.Strings(out)
	return out
}

// GetPermissionMatrix runs the cross product of users and permission
// tuples through CheckPermission. The inner map is keyed by the
// permission's composite key.
func (s *Service) GetPermissionMatrix(ctx context.Context, userIDs []string, perms []rbac.Permission) map[string]map[string]bool {
	matrix := make(map[string]map[string]bool, len(userIDs))
	for _, userID := range userIDs {
		row := make(map[string]bool, len(perms))
		for _, p := range perms {
			req := rbac.CheckRequest{
				UserID:       userID,
				ResourceType: p.ResourceType,
				Action:       p.Action,
				ResourceID:   p.ResourceID,
			}
			row[p.Key()] = s.CheckPermission(ctx, req)
		}
		matrix[userID] = row
	}
	return matrix
}

// --- management operations ---
//
// Every mutation invalidates caches after the store write and before
// returning, so a successful return implies the invalidation was
// attempted.

// CreateRole creates a role and invalidates hierarchy-derived state,
// since the new role may complete parent links other roles declare.
func (s *Service) CreateRole(ctx context.Context, role rbac.Role) (rbac.Role, error) {
	created, err := s.store.CreateRole(role)
	if err != nil {
		return rbac.Role{}, err
	}
	s.invalidateRoleGraph(ctx, created.Name)
	s.audit.Record("create_role", map[string]string{"role": created.Name})
	logging.Info().Str("role", created.Name).Msg("Role created")
	return created, nil
}

// UpdateRole replaces a role's definition, rewiring parent links.
func (s *Service) UpdateRole(ctx context.Context, role rbac.Role) (rbac.Role, error) {
	updated, err := s.store.UpdateRole(role)
	if err != nil {
		return rbac.Role{}, err
	}
	s.invalidateRoleGraph(ctx, updated.Name)
	s.audit.Record("update_role", map[string]string{"role": updated.Name})
	logging.Info().Str("role", updated.Name).Msg("Role updated")
	return updated, nil
}

// DeleteRole removes a role, cascading through user assignments and
// parent/child references.
func (s *Service) DeleteRole(ctx context.Context, name string) error {
	if err := s.store.DeleteRole(name); err != nil {
		return err
	}
	s.invalidateRoleGraph(ctx, name)
	s.audit.Record("delete_role", map[string]string{"role": name})
	logging.Info().Str("role", name).Msg("Role deleted")
	return nil
}

// UpdateRolePermissions replaces a role's permission list. The role
// graph is unchanged, so the resolver cache survives, but every
// decision derived from the role's permissions is invalidated.
func (s *Service) UpdateRolePermissions(ctx context.Context, name string, perms []rbac.Permission) (rbac.Role, error) {
	updated, err := s.store.SetRolePermissions(name, perms)
	if err != nil {
		return rbac.Role{}, err
	}

	s.engine.InvalidateAll()
	if s.remote != nil {
		s.remote.InvalidateRole(ctx, name)
	}
	RecordCacheInvalidation(reasonRoleChange)

	s.audit.Record("update_role_permissions", map[string]string{
		"role":        name,
		"permissions": fmt.Sprintf("%d", len(perms)),
	})
	logging.Info().Str("role", name).Int("permissions", len(perms)).Msg("Role permissions updated")
	return updated, nil
}

// GetRole returns a role by name.
func (s *Service) GetRole(name string) (rbac.Role, bool) {
	return s.store.GetRole(name)
}

// ListRoles returns all roles.
func (s *Service) ListRoles() []rbac.Role {
	return s.store.ListRoles()
}

// CreateUser creates a user.
func (s *Service) CreateUser(ctx context.Context, user rbac.User) (rbac.User, error) {
	created, err := s.store.CreateUser(user)
	if err != nil {
		return rbac.User{}, err
	}
	s.audit.Record("create_user", map[string]string{"user": created.ID})
	logging.Info().Str("user", created.ID).Msg("User created")
	return created, nil
}

// UpdateUser replaces a user's definition and invalidates the user's
// cached decisions.
func (s *Service) UpdateUser(ctx context.Context, user rbac.User) (rbac.User, error) {
	updated, err := s.store.UpdateUser(user)
	if err != nil {
		return rbac.User{}, err
	}
	s.invalidateUser(ctx, updated.ID)
	s.audit.Record("update_user", map[string]string{"user": updated.ID})
	logging.Info().Str("user", updated.ID).Msg("User updated")
	return updated, nil
}

// DeleteUser removes a user and the user's cached decisions.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	if err := s.store.DeleteUser(userID); err != nil {
		return err
	}
	s.invalidateUser(ctx, userID)
	s.audit.Record("delete_user", map[string]string{"user": userID})
	logging.Info().Str("user", userID).Msg("User deleted")
	return nil
}

// GetUser returns a user by id.
func (s *Service) GetUser(userID string) (rbac.User, bool) {
	return s.store.GetUser(userID)
}

// ListUsers returns all users.
func (s *Service) ListUsers() []rbac.User {
	return s.store.ListUsers()
}

// GrantPermission adds a direct permission to a user.
func (s *Service) GrantPermission(ctx context.Context, userID string, perm rbac.Permission) error {
	if err := s.store.GrantPermission(userID, perm); err != nil {
		return err
	}
	s.invalidateUser(ctx, userID)
	s.audit.Record("grant_permission", map[string]string{
		"user":       userID,
		"permission": perm.Key(),
	})
	logging.Info().Str("user", userID).Str("permission", perm.Key()).Msg("Permission granted")
	return nil
}

// RevokePermission removes direct permissions matching the composite
// key and reports how many were removed.
func (s *Service) RevokePermission(ctx context.Context, userID, permKey string) (int, error) {
	removed, err := s.store.RevokePermission(userID, permKey)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.invalidateUser(ctx, userID)
	}
	s.audit.Record("revoke_permission", map[string]string{
		"user":       userID,
		"permission": permKey,
		"removed":    fmt.Sprintf("%d", removed),
	})
	logging.Info().Str("user", userID).Str("permission", permKey).Int("removed", removed).Msg("Permission revoked")
	return removed, nil
}

// AssignRole assigns a role to a user. Assigning an already-held role
// is a no-op success.
func (s *Service) AssignRole(ctx context.Context, userID, roleName string) error {
	if err := s.store.AssignRole(userID, roleName); err != nil {
		return err
	}
	s.invalidateUser(ctx, userID)
	RecordRoleAssignment(roleName, "assign")
	s.audit.Record("assign_role", map[string]string{"user": userID, "role": roleName})
	logging.Info().Str("user", userID).Str("role", roleName).Msg("Role assigned")
	return nil
}

// RemoveRole removes a role assignment from a user.
func (s *Service) RemoveRole(ctx context.Context, userID, roleName string) error {
	if err := s.store.RemoveRole(userID, roleName); err != nil {
		return err
	}
	s.invalidateUser(ctx, userID)
	RecordRoleAssignment(roleName, "remove")
	s.audit.Record("remove_role", map[string]string{"user": userID, "role": roleName})
	logging.Info().Str("user", userID).Str("role", roleName).Msg("Role removed")
	return nil
}

// invalidateUser drops every cache entry scoped to one user.
func (s *Service) invalidateUser(ctx context.Context, userID string) {
	s.engine.InvalidateUser(userID)
	if s.remote != nil {
		s.remote.InvalidateUser(ctx, userID)
	}
	RecordCacheInvalidation(reasonUserChange)
}

// invalidateRoleGraph drops every cache tier a role-graph mutation can
// affect: the resolver's closures, all in-process decisions, and the
// external role-scoped entries.
func (s *Service) invalidateRoleGraph(ctx context.Context, roleName string) {
	s.resolver.Invalidate()
	s.engine.InvalidateAll()
	if s.remote != nil {
		s.remote.InvalidateRole(ctx, roleName)
	}
	RecordCacheInvalidation(reasonRoleGraphChange)
}

// --- analytics ---

// Analytics is a snapshot of facade activity.
type Analytics struct {
	TotalChecks      int64   `json:"total_checks"`
	CacheHits        int64   `json:"cache_hits"`
	CacheMisses      int64   `json:"cache_misses"`
	HitRate          float64 `json:"hit_rate"`
	BulkOperations   int64   `json:"bulk_operations"`
	Roles            int     `json:"roles"`
	Users            int     `json:"users"`
	CachedDecisions  int     `json:"cached_decisions"`
	HierarchyEntries int     `json:"hierarchy_entries"`
	AuditEntries     int     `json:"audit_entries"`

	// RoleDistribution counts users directly assigned to each role.
	RoleDistribution map[string]int `json:"role_distribution"`

	// PermissionTypes counts stored permissions per resource type,
	// across role definitions and direct grants.
	PermissionTypes map[string]int `json:"permission_types"`
}

// GetPermissionAnalytics returns activity counters, entity counts, and
// role/permission distributions.
func (s *Service) GetPermissionAnalytics() Analytics {
	hits := s.cacheHits.Load()
	misses := s.cacheMisses.Load()
	roles, users := s.store.Counts()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	roleDist := make(map[string]int)
	permTypes := make(map[string]int)
	for _, u := range s.store.ListUsers() {
		for _, r := range u.Roles {
			roleDist[r]++
		}
		for _, p := range u.DirectPermissions {
			permTypes[string(p.ResourceType)]++
		}
	}
	for _, r := range s.store.ListRoles() {
		for _, p := range r.Permissions {
			permTypes[string(p.ResourceType)]++
		}
	}

	return Analytics{
		TotalChecks:      s.checks.Load(),
		CacheHits:        hits,
		CacheMisses:      misses,
		HitRate:          hitRate,
		BulkOperations:   s.bulkOps.Load(),
		Roles:            roles,
		Users:            users,
		CachedDecisions:  s.engine.CachedDecisions(),
		HierarchyEntries: s.resolver.Len(),
		AuditEntries:     s.audit.Len(),
		RoleDistribution: roleDist,
		PermissionTypes:  permTypes,
	}
}

// CacheStats combines local counters with the external cache's
// per-pattern statistics. Remote is nil when no external cache is
// configured.
type CacheStats struct {
	LocalHits       int64             `json:"local_hits"`
	LocalMisses     int64             `json:"local_misses"`
	CachedDecisions int               `json:"cached_decisions"`
	Remote          *rediscache.Stats `json:"remote,omitempty"`
}

// GetCacheStats returns cache health across both tiers.
func (s *Service) GetCacheStats() CacheStats {
	stats := CacheStats{
		LocalHits:       s.cacheHits.Load(),
		LocalMisses:     s.cacheMisses.Load(),
		CachedDecisions: s.engine.CachedDecisions(),
	}
	if s.remote != nil {
		remote := s.remote.Stats()
		stats.Remote = &remote
	}
	return stats
}

// GetAuditLog returns the most recent management actions, newest
// first.
func (s *Service) GetAuditLog(limit int) []AuditEntry {
	return s.audit.Recent(limit)
}
