// Arbiter - RBAC Authorization Decision Engine
// Copyright 2026 Arbiter Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arbiterhq/arbiter

package store

import (
	"errors"
	"testing"

	"github.com/arbiterhq/arbiter/internal/rbac"
)

func TestCreateRole_Duplicate(t *testing.T) {
	s := New()

	if _, err := s.CreateRole(rbac.Role{Name: "developer"}); err != nil {
		t.Fatalf("CreateRole() error = %v", err)
	}

	_, err := s.CreateRole(rbac.Role{Name: "developer"})
	if !errors.Is(err, ErrDuplicateName) {
		t.Errorf("CreateRole() error = %v, want ErrDuplicateName", err)
	}
}

func TestCreateRole_WiresChildBackReferences(t *testing.T) {
	s := New()

	mustCreateRole(t, s, rbac.Role{Name: "developer"})
	mustCreateRole(t, s, rbac.Role{Name: "viewer", ParentRoles: []string{"developer"}})

	parent, ok := s.GetRole("developer")
	if !ok {
		t.Fatal("developer role missing")
	}
	if len(parent.ChildRoles) != 1 || parent.ChildRoles[0] != "viewer" {
		t.Errorf("ChildRoles = %v, want [viewer]", parent.ChildRoles)
	}
}

func TestUpdateRole_RewiresParents(t *testing.T) {
	s := New()

	mustCreateRole(t, s, rbac.Role{Name: "developer"})
	mustCreateRole(t, s, rbac.Role{Name: "operator"})
	viewer := mustCreateRole(t, s, rbac.Role{Name: "viewer", ParentRoles: []string{"developer"}})

	viewer.ParentRoles = []string{"operator"}
	if _, err := s.UpdateRole(viewer); err != nil {
		t.Fatalf("UpdateRole() error = %v", err)
	}

	dev, _ := s.GetRole("developer")
	if len(dev.ChildRoles) != 0 {
		t.Errorf("old parent still references child: %v", dev.ChildRoles)
	}
	op, _ := s.GetRole("operator")
	if len(op.ChildRoles) != 1 || op.ChildRoles[0] != "viewer" {
		t.Errorf("new parent ChildRoles = %v, want [viewer]", op.ChildRoles)
	}
}

func TestUpdateRole_BumpsUpdatedAt(t *testing.T) {
	s := New()
	role := mustCreateRole(t, s, rbac.Role{Name: "developer"})

	updated, err := s.UpdateRole(role)
	if err != nil {
		t.Fatalf("UpdateRole() error = %v", err)
	}
	if updated.UpdatedAt.Before(role.UpdatedAt) {
		t.Error("UpdatedAt was not bumped")
	}
}

func TestDeleteRole_Cascades(t *testing.T) {
	s := New()

	mustCreateRole(t, s, rbac.Role{Name: "developer"})
	mustCreateRole(t, s, rbac.Role{Name: "viewer", ParentRoles: []string{"developer"}})
	mustCreateUser(t, s, rbac.User{ID: "alice", Roles: []string{"developer", "viewer"}})

	if err := s.DeleteRole("developer"); err != nil {
		t.Fatalf("DeleteRole() error = %v", err)
	}

	if _, ok := s.GetRole("developer"); ok {
		t.Error("deleted role still present")
	}
	viewer, _ := s.GetRole("viewer")
	if len(viewer.ParentRoles) != 0 {
		t.Errorf("viewer still lists deleted parent: %v", viewer.ParentRoles)
	}
	alice, _ := s.GetUser("alice")
	if alice.HasRole("developer") {
		t.Errorf("user still holds deleted role: %v", alice.Roles)
	}
	if !alice.HasRole("viewer") {
		t.Error("unrelated role assignment lost in cascade")
	}
}

func TestDeleteRole_NotFound(t *testing.T) {
	s := New()
	if err := s.DeleteRole("ghost"); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("DeleteRole() error = %v, want ErrRoleNotFound", err)
	}
}

func TestCreateUser_Duplicate(t *testing.T) {
	s := New()

	mustCreateUser(t, s, rbac.User{ID: "alice"})
	_, err := s.CreateUser(rbac.User{ID: "alice"})
	if !errors.Is(err, ErrDuplicateName) {
		t.Errorf("CreateUser() error = %v, want ErrDuplicateName", err)
	}
}

func TestGrantAndRevokePermission(t *testing.T) {
	s := New()
	mustCreateUser(t, s, rbac.User{ID: "alice"})

	perm := rbac.Permission{
		ResourceType: rbac.ResourceDatabase,
		Action:       rbac.ActionRead,
		Scope:        rbac.ScopeProject,
		ResourceID:   "orders-db",
	}
	if err := s.GrantPermission("alice", perm); err != nil {
		t.Fatalf("GrantPermission() error = %v", err)
	}

	alice, _ := s.GetUser("alice")
	if len(alice.DirectPermissions) != 1 {
		t.Fatalf("DirectPermissions = %d, want 1", len(alice.DirectPermissions))
	}
	if alice.DirectPermissions[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not stamped on grant")
	}

	removed, err := s.RevokePermission("alice", perm.Key())
	if err != nil {
		t.Fatalf("RevokePermission() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	alice, _ = s.GetUser("alice")
	if len(alice.DirectPermissions) != 0 {
		t.Errorf("DirectPermissions = %d, want 0", len(alice.DirectPermissions))
	}
}

func TestAssignRole_UnknownRole(t *testing.T) {
	s := New()
	mustCreateUser(t, s, rbac.User{ID: "alice"})

	if err := s.AssignRole("alice", "ghost"); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("AssignRole() error = %v, want ErrRoleNotFound", err)
	}
}

func TestAssignRole_Idempotent(t *testing.T) {
	s := New()
	mustCreateRole(t, s, rbac.Role{Name: "developer"})
	mustCreateUser(t, s, rbac.User{ID: "alice"})

	if err := s.AssignRole("alice", "developer"); err != nil {
		t.Fatalf("AssignRole() error = %v", err)
	}
	if err := s.AssignRole("alice", "developer"); err != nil {
		t.Fatalf("AssignRole() repeat error = %v", err)
	}

	alice, _ := s.GetUser("alice")
	if len(alice.Roles) != 1 {
		t.Errorf("Roles = %v, want a single developer entry", alice.Roles)
	}
}

func TestGetUser_ReturnsCopy(t *testing.T) {
	s := New()
	mustCreateUser(t, s, rbac.User{ID: "alice", Roles: []string{"viewer"}})

	got, _ := s.GetUser("alice")
	got.Roles[0] = "admin"

	fresh, _ := s.GetUser("alice")
	if fresh.Roles[0] != "viewer" {
		t.Error("GetUser() leaked a reference into the store")
	}
}

func mustCreateRole(t *testing.T, s *Store, role rbac.Role) rbac.Role {
	t.Helper()
	created, err := s.CreateRole(role)
	if err != nil {
		t.Fatalf("CreateRole(%q) error = %v", role.Name, err)
	}
	return created
}

func mustCreateUser(t *testing.T, s *Store, user rbac.User) rbac.User {
	t.Helper()
	created, err := s.CreateUser(user)
	if err != nil {
		t.Fatalf("CreateUser(%q) error = %v", user.ID, err)
	}
	return created
}
