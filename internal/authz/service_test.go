// Arbiter - RBAC Authorization Decision Engine
// Copyright 2026 Arbiter Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arbiterhq/arbiter

package authz

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/arbiterhq/arbiter/internal/engine"
	"github.com/arbiterhq/arbiter/internal/hierarchy"
	"github.com/arbiterhq/arbiter/internal/rbac"
	"github.com/arbiterhq/arbiter/internal/rediscache"
	"github.com/arbiterhq/arbiter/internal/store"
)

// newTestService wires the full stack without an external cache.
func newTestService(t *testing.T) (*store.Store, *Service) {
	t.Helper()
	st := store.New()
	resolver, err := hierarchy.NewResolver(st, 64)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	eng := engine.NewEvaluator(st, resolver, time.Minute)
	svc, err := NewService(st, resolver, eng, nil, ServiceConfig{BulkConcurrency: 4, AuditCapacity: 32})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(svc.Close)
	return st, svc
}

// newTestServiceWithRemote wires the full stack against a miniredis
// backed external cache.
func newTestServiceWithRemote(t *testing.T) (*store.Store, *Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	remote, err := rediscache.New(context.Background(), rediscache.Config{
		Addr:      mr.Addr(),
		Namespace: "authztest",
		BaseTTL:   time.Minute,
	})
	if err != nil {
		t.Fatalf("rediscache.New: %v", err)
	}
	t.Cleanup(func() { remote.Close() })

	st := store.New()
	resolver, err := hierarchy.NewResolver(st, 64)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	eng := engine.NewEvaluator(st, resolver, time.Minute)
	svc, err := NewService(st, resolver, eng, remote, ServiceConfig{BulkConcurrency: 4, AuditCapacity: 32})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(svc.Close)
	return st, svc, mr
}

func permFor(resourceType rbac.ResourceType, action rbac.Action, id string) rbac.Permission {
	return rbac.Permission{
		ResourceType: resourceType,
		Action:       action,
		Scope:        rbac.ScopeProject,
		ResourceID:   id,
	}
}

func checkReq(userID string, resourceType rbac.ResourceType, action rbac.Action, id string) rbac.CheckRequest {
	return rbac.CheckRequest{UserID: userID, ResourceType: resourceType, Action: action, ResourceID: id}
}

// seedHierarchy builds viewer <- developer <- admin with one
// permission per level and a user per role.
func seedHierarchy(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()

	roles := []rbac.Role{
		{Name: "viewer", Permissions: []rbac.Permission{permFor(rbac.ResourceDatabase, rbac.ActionRead, rbac.Wildcard)}},
		{Name: "developer", ParentRoles: []string{"viewer"}, Permissions: []rbac.Permission{permFor(rbac.ResourceService, rbac.ActionDeploy, rbac.Wildcard)}},
		{Name: "admin", ParentRoles: []string{"developer"}, Permissions: []rbac.Permission{permFor(rbac.ResourceConfiguration, rbac.ActionAdmin, rbac.Wildcard)}},
	}
	for _, r := range roles {
		if _, err := svc.CreateRole(ctx, r); err != nil {
			t.Fatalf("CreateRole(%s): %v", r.Name, err)
		}
	}

	for _, u := range []struct{ id, role string }{
		{"vera", "viewer"}, {"devon", "developer"}, {"ada", "admin"},
	} {
		if _, err := svc.CreateUser(ctx, rbac.User{ID: u.id}); err != nil {
			t.Fatalf("CreateUser(%s): %v", u.id, err)
		}
		if err := svc.AssignRole(ctx, u.id, u.role); err != nil {
			t.Fatalf("AssignRole(%s, %s): %v", u.id, u.role, err)
		}
	}
}

func TestCheckPermissionHierarchyClosure(t *testing.T) {
	_, svc := newTestService(t)
	seedHierarchy(t, svc)
	ctx := context.Background()

	// Admin inherits everything down the chain.
	cases := []struct {
		name    string
		req     rbac.CheckRequest
		allowed bool
	}{
		{"admin own permission", checkReq("ada", rbac.ResourceConfiguration, rbac.ActionAdmin, "main"), true},
		{"admin inherits developer", checkReq("ada", rbac.ResourceService, rbac.ActionDeploy, "api"), true},
		{"admin inherits viewer", checkReq("ada", rbac.ResourceDatabase, rbac.ActionRead, "orders"), true},
		{"developer inherits viewer", checkReq("devon", rbac.ResourceDatabase, rbac.ActionRead, "orders"), true},
		{"developer lacks admin permission", checkReq("devon", rbac.ResourceConfiguration, rbac.ActionAdmin, "main"), false},
		{"viewer lacks developer permission", checkReq("vera", rbac.ResourceService, rbac.ActionDeploy, "api"), false},
		{"viewer own permission", checkReq("vera", rbac.ResourceDatabase, rbac.ActionRead, "orders"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := svc.CheckPermission(ctx, tc.req); got != tc.allowed {
				t.Fatalf("CheckPermission = %v, want %v", got, tc.allowed)
			}
		})
	}
}

func TestCheckPermissionSuperAdminClosure(t *testing.T) {
	_, svc := newTestService(t)
	ctx := context.Background()

	// One ADMIN grant at GLOBAL scope per resource type.
	perms := make([]rbac.Permission, 0, len(rbac.ResourceTypes))
	for _, rt := range rbac.ResourceTypes {
		perms = append(perms, rbac.Permission{
			ResourceType: rt,
			Action:       rbac.ActionAdmin,
			Scope:        rbac.ScopeGlobal,
			ResourceID:   rbac.Wildcard,
		})
	}
	if _, err := svc.CreateRole(ctx, rbac.Role{Name: "super_admin", Permissions: perms}); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if _, err := svc.CreateUser(ctx, rbac.User{ID: "root"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := svc.AssignRole(ctx, "root", "super_admin"); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}

	for _, rt := range rbac.ResourceTypes {
		for _, action := range rbac.Actions {
			if !svc.CheckPermission(ctx, checkReq("root", rt, action, "any")) {
				t.Errorf("super_admin denied %s/%s", rt, action)
			}
		}
	}
}

func TestCheckPermissionUnknownUserDenied(t *testing.T) {
	_, svc := newTestService(t)
	if svc.CheckPermission(context.Background(), checkReq("nobody", rbac.ResourceDatabase, rbac.ActionRead, "x")) {
		t.Fatal("unknown user must be denied")
	}
}

func TestRemoveRoleIsolation(t *testing.T) {
	_, svc := newTestService(t)
	seedHierarchy(t, svc)
	ctx := context.Background()

	req := checkReq("devon", rbac.ResourceDatabase, rbac.ActionRead, "orders")
	if !svc.CheckPermission(ctx, req) {
		t.Fatal("developer should read via viewer inheritance")
	}

	if err := svc.RemoveRole(ctx, "devon", "developer"); err != nil {
		t.Fatalf("RemoveRole: %v", err)
	}

	if svc.CheckPermission(ctx, req) {
		t.Fatal("devon must lose inherited access after role removal")
	}
	// Other users keep their access.
	if !svc.CheckPermission(ctx, checkReq("vera", rbac.ResourceDatabase, rbac.ActionRead, "orders")) {
		t.Fatal("vera must be unaffected by devon's role removal")
	}
}

func TestGrantRevokeRoundTrip(t *testing.T) {
	_, svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, rbac.User{ID: "sam"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	perm := permFor(rbac.ResourceFileSystem, rbac.ActionUpdate, "etc")
	req := checkReq("sam", rbac.ResourceFileSystem, rbac.ActionUpdate, "etc")

	if svc.CheckPermission(ctx, req) {
		t.Fatal("expected deny before grant")
	}
	if err := svc.GrantPermission(ctx, "sam", perm); err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}
	if !svc.CheckPermission(ctx, req) {
		t.Fatal("expected allow after grant; invalidation must have forced recompute")
	}

	removed, err := svc.RevokePermission(ctx, "sam", perm.Key())
	if err != nil {
		t.Fatalf("RevokePermission: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if svc.CheckPermission(ctx, req) {
		t.Fatal("expected deny after revoke")
	}
}

func TestUpdateRolePermissionsInvalidates(t *testing.T) {
	_, svc := newTestService(t)
	seedHierarchy(t, svc)
	ctx := context.Background()

	req := checkReq("vera", rbac.ResourceWorkflow, rbac.ActionExecute, "nightly")
	if svc.CheckPermission(ctx, req) {
		t.Fatal("expected deny before role permission change")
	}

	perms := []rbac.Permission{
		permFor(rbac.ResourceDatabase, rbac.ActionRead, rbac.Wildcard),
		permFor(rbac.ResourceWorkflow, rbac.ActionExecute, rbac.Wildcard),
	}
	if _, err := svc.UpdateRolePermissions(ctx, "viewer", perms); err != nil {
		t.Fatalf("UpdateRolePermissions: %v", err)
	}

	if !svc.CheckPermission(ctx, req) {
		t.Fatal("cached deny must be invalidated by role permission update")
	}
}

func TestGetUserPermissionsUnion(t *testing.T) {
	_, svc := newTestService(t)
	seedHierarchy(t, svc)
	ctx := context.Background()

	direct := permFor(rbac.ResourceAgent, rbac.ActionMonitor, "agent-1")
	if err := svc.GrantPermission(ctx, "devon", direct); err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}

	perms := svc.GetUserPermissions(ctx, "devon")
	keys := make(map[string]bool, len(perms))
	for _, p := range perms {
		keys[p.Key()] = true
	}

	for _, want := range []string{
		direct.Key(),
		permFor(rbac.ResourceService, rbac.ActionDeploy, rbac.Wildcard).Key(),
		permFor(rbac.ResourceDatabase, rbac.ActionRead, rbac.Wildcard).Key(),
	} {
		if !keys[want] {
			t.Fatalf("expected permission %s in union, got %v", want, keys)
		}
	}
	if keys[permFor(rbac.ResourceConfiguration, rbac.ActionAdmin, rbac.Wildcard).Key()] {
		t.Fatal("developer must not see admin-only permission")
	}
}

func TestGetUserPermissionsUnknownUser(t *testing.T) {
	_, svc := newTestService(t)
	if perms := svc.GetUserPermissions(context.Background(), "ghost"); perms != nil {
		t.Fatalf("unknown user perms = %v, want nil", perms)
	}
}

func TestGetEffectivePermissionsFilters(t *testing.T) {
	_, svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, rbac.User{ID: "tess"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	past := time.Now().Add(-time.Hour)
	expired := permFor(rbac.ResourceDatabase, rbac.ActionRead, "stale")
	expired.ExpiresAt = &past

	for _, p := range []rbac.Permission{
		permFor(rbac.ResourceDatabase, rbac.ActionRead, "orders"),
		permFor(rbac.ResourceDatabase, rbac.ActionDelete, "orders"),
		permFor(rbac.ResourceService, rbac.ActionRead, "api"),
		expired,
	} {
		if err := svc.GrantPermission(ctx, "tess", p); err != nil {
			t.Fatalf("GrantPermission: %v", err)
		}
	}

	got := svc.GetEffectivePermissions(ctx, "tess", rbac.ResourceDatabase, rbac.ActionRead)
	if len(got) != 1 {
		t.Fatalf("filtered permissions = %d, want 1 (expired and mismatched dropped)", len(got))
	}
	if got[0].ResourceID != "orders" {
		t.Fatalf("ResourceID = %q, want orders", got[0].ResourceID)
	}

	all := svc.GetEffectivePermissions(ctx, "tess", "", "")
	if len(all) != 3 {
		t.Fatalf("unfiltered valid permissions = %d, want 3", len(all))
	}
}

func TestGetUserRolesExpanded(t *testing.T) {
	_, svc := newTestService(t)
	seedHierarchy(t, svc)

	roles := svc.GetUserRoles(context.Background(), "ada")
	want := []string{"admin", "developer", "viewer"}
	if len(roles) != len(want) {
		t.Fatalf("roles = %v, want %v", roles, want)
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Fatalf("roles = %v, want %v", roles, want)
		}
	}
}

func TestGetRolePermissions(t *testing.T) {
	_, svc := newTestService(t)
	seedHierarchy(t, svc)
	ctx := context.Background()

	perms := svc.GetRolePermissions(ctx, "viewer")
	if len(perms) != 1 {
		t.Fatalf("viewer permissions = %d, want 1", len(perms))
	}
	// Own list only; inherited permissions are not included.
	devPerms := svc.GetRolePermissions(ctx, "developer")
	if len(devPerms) != 1 || devPerms[0].ResourceType != rbac.ResourceService {
		t.Fatalf("developer permissions = %v, want only the deploy permission", devPerms)
	}
	if got := svc.GetRolePermissions(ctx, "ghost"); got != nil {
		t.Fatalf("unknown role permissions = %v, want nil", got)
	}
}

func TestResolveRoleHierarchy(t *testing.T) {
	_, svc := newTestService(t)
	seedHierarchy(t, svc)

	closure := svc.ResolveRoleHierarchy(context.Background(), "admin")
	want := []string{"admin", "developer", "viewer"}
	if len(closure) != len(want) {
		t.Fatalf("closure = %v, want %v", closure, want)
	}
	for i := range want {
		if closure[i] != want[i] {
			t.Fatalf("closure = %v, want %v", closure, want)
		}
	}
}

func TestResolveRoleHierarchyRemoteCached(t *testing.T) {
	_, svc, _ := newTestServiceWithRemote(t)
	seedHierarchy(t, svc)
	ctx := context.Background()

	first := svc.ResolveRoleHierarchy(ctx, "developer")

	before := svc.GetCacheStats().Remote.Hits
	second := svc.ResolveRoleHierarchy(ctx, "developer")
	after := svc.GetCacheStats().Remote.Hits

	if after <= before {
		t.Fatalf("second resolution should hit the hierarchy cache: hits %d -> %d", before, after)
	}
	if len(first) != len(second) {
		t.Fatalf("cached closure %v differs from computed %v", second, first)
	}
}

func TestGetUsersWithPermission(t *testing.T) {
	_, svc := newTestService(t)
	seedHierarchy(t, svc)

	users := svc.GetUsersWithPermission(context.Background(), rbac.ResourceDatabase, rbac.ActionRead, "orders")
	want := []string{"ada", "devon", "vera"}
	if len(users) != len(want) {
		t.Fatalf("users = %v, want %v", users, want)
	}
	for i := range want {
		if users[i] != want[i] {
			t.Fatalf("users = %v, want %v", users, want)
		}
	}

	admins := svc.GetUsersWithPermission(context.Background(), rbac.ResourceConfiguration, rbac.ActionAdmin, "main")
	if len(admins) != 1 || admins[0] != "ada" {
		t.Fatalf("admins = %v, want [ada]", admins)
	}
}

func TestGetPermissionMatrixAgreesWithCheck(t *testing.T) {
	_, svc := newTestService(t)
	seedHierarchy(t, svc)
	ctx := context.Background()

	userIDs := []string{"vera", "devon", "ada"}
	perms := []rbac.Permission{
		permFor(rbac.ResourceDatabase, rbac.ActionRead, "orders"),
		permFor(rbac.ResourceService, rbac.ActionDeploy, "api"),
	}

	matrix := svc.GetPermissionMatrix(ctx, userIDs, perms)
	if len(matrix) != len(userIDs) {
		t.Fatalf("matrix rows = %d, want %d", len(matrix), len(userIDs))
	}

	for _, userID := range userIDs {
		row, ok := matrix[userID]
		if !ok {
			t.Fatalf("missing row for %s", userID)
		}
		for _, p := range perms {
			req := checkReq(userID, p.ResourceType, p.Action, p.ResourceID)
			if row[p.Key()] != svc.CheckPermission(ctx, req) {
				t.Fatalf("matrix[%s][%s] disagrees with CheckPermission", userID, p.Key())
			}
		}
	}
}

func TestDeleteRoleCascadesAndDenies(t *testing.T) {
	_, svc := newTestService(t)
	seedHierarchy(t, svc)
	ctx := context.Background()

	if err := svc.DeleteRole(ctx, "viewer"); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}

	// Inherited access through the deleted role is gone everywhere.
	if svc.CheckPermission(ctx, checkReq("vera", rbac.ResourceDatabase, rbac.ActionRead, "orders")) {
		t.Fatal("vera must lose access after viewer deletion")
	}
	if svc.CheckPermission(ctx, checkReq("ada", rbac.ResourceDatabase, rbac.ActionRead, "orders")) {
		t.Fatal("ada must lose viewer-inherited access after deletion")
	}
	// Own permissions survive.
	if !svc.CheckPermission(ctx, checkReq("ada", rbac.ResourceConfiguration, rbac.ActionAdmin, "main")) {
		t.Fatal("ada must keep admin's own permission")
	}
}

func TestManagementOpsAudited(t *testing.T) {
	_, svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, rbac.User{ID: "kim"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := svc.GrantPermission(ctx, "kim", permFor(rbac.ResourceDatabase, rbac.ActionRead, "x")); err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}

	entries := svc.GetAuditLog(0)
	if len(entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(entries))
	}
	if entries[0].Action != "grant_permission" {
		t.Fatalf("newest action = %q, want grant_permission", entries[0].Action)
	}
	if entries[0].Details["user"] != "kim" {
		t.Fatalf("details user = %q, want kim", entries[0].Details["user"])
	}
}

func TestAnalyticsCounters(t *testing.T) {
	_, svc := newTestService(t)
	seedHierarchy(t, svc)
	ctx := context.Background()

	req := checkReq("vera", rbac.ResourceDatabase, rbac.ActionRead, "orders")
	svc.CheckPermission(ctx, req) // computed
	svc.CheckPermission(ctx, req) // local cache hit

	a := svc.GetPermissionAnalytics()
	if a.TotalChecks != 2 {
		t.Fatalf("TotalChecks = %d, want 2", a.TotalChecks)
	}
	if a.CacheHits != 1 || a.CacheMisses != 1 {
		t.Fatalf("hits/misses = %d/%d, want 1/1", a.CacheHits, a.CacheMisses)
	}
	if a.HitRate != 0.5 {
		t.Fatalf("HitRate = %v, want 0.5", a.HitRate)
	}
	if a.Roles != 3 || a.Users != 3 {
		t.Fatalf("roles/users = %d/%d, want 3/3", a.Roles, a.Users)
	}
	if a.AuditEntries == 0 {
		t.Fatal("expected audit entries from seeding")
	}
	if a.RoleDistribution["viewer"] != 1 || a.RoleDistribution["admin"] != 1 {
		t.Fatalf("RoleDistribution = %v, want one user per seeded role", a.RoleDistribution)
	}
	if a.PermissionTypes[string(rbac.ResourceDatabase)] != 1 {
		t.Fatalf("PermissionTypes = %v, want one DATABASE permission", a.PermissionTypes)
	}
}

func TestCheckPermissionSharedRemoteCache(t *testing.T) {
	_, svc, mr := newTestServiceWithRemote(t)
	seedHierarchy(t, svc)
	ctx := context.Background()

	req := checkReq("vera", rbac.ResourceDatabase, rbac.ActionRead, "orders")
	if !svc.CheckPermission(ctx, req) {
		t.Fatal("expected allow")
	}

	// A second stack shares the Redis cache but has an empty store:
	// an allow from it can only come from the remote tier.
	remote2, err := rediscache.New(ctx, rediscache.Config{
		Addr:      mr.Addr(),
		Namespace: "authztest",
		BaseTTL:   time.Minute,
	})
	if err != nil {
		t.Fatalf("rediscache.New: %v", err)
	}
	t.Cleanup(func() { remote2.Close() })

	st2 := store.New()
	resolver2, err := hierarchy.NewResolver(st2, 64)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	eng2 := engine.NewEvaluator(st2, resolver2, time.Minute)
	svc2, err := NewService(st2, resolver2, eng2, remote2, ServiceConfig{BulkConcurrency: 4})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(svc2.Close)

	if !svc2.CheckPermission(ctx, req) {
		t.Fatal("second stack must answer allow from the shared remote cache")
	}
	stats := svc2.GetCacheStats()
	if stats.Remote == nil || stats.Remote.Hits == 0 {
		t.Fatalf("remote hits = %+v, want at least one", stats.Remote)
	}
}

func TestRemoteOutageFallsBackToEvaluation(t *testing.T) {
	_, svc, mr := newTestServiceWithRemote(t)
	seedHierarchy(t, svc)
	ctx := context.Background()

	mr.SetError("connection refused")
	defer mr.SetError("")

	// Decisions stay correct when the external cache is down.
	if !svc.CheckPermission(ctx, checkReq("vera", rbac.ResourceDatabase, rbac.ActionRead, "orders")) {
		t.Fatal("expected allow via direct evaluation during outage")
	}
	if svc.CheckPermission(ctx, checkReq("vera", rbac.ResourceConfiguration, rbac.ActionAdmin, "main")) {
		t.Fatal("expected deny via direct evaluation during outage")
	}
}

func TestGrantInvalidatesRemoteCheckResult(t *testing.T) {
	_, svc, _ := newTestServiceWithRemote(t)
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, rbac.User{ID: "nia"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	req := checkReq("nia", rbac.ResourceService, rbac.ActionScale, "workers")
	if svc.CheckPermission(ctx, req) {
		t.Fatal("expected deny before grant")
	}

	if err := svc.GrantPermission(ctx, "nia", permFor(rbac.ResourceService, rbac.ActionScale, "workers")); err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}

	// The cached deny in both tiers must not survive the grant.
	if !svc.CheckPermission(ctx, req) {
		t.Fatal("expected allow after grant invalidated cached deny")
	}
}
