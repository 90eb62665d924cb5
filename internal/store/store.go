// Arbiter - RBAC Authorization Decision Engine
// Copyright 2026 Arbiter Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arbiterhq/arbiter

/*
store.go - Entity Store

In-memory store of record for users, roles, and their permissions.
The cache layer and the hierarchy resolver hold only derived,
invalidatable copies; this store is the single owner of the entities.

Key Operations:
  - CreateRole / UpdateRole / DeleteRole (with cascading cleanup)
  - CreateUser / UpdateUser / DeleteUser
  - Permission and role-assignment mutations used by the facade

Thread Safety:
All operations take the store's RWMutex. Accessors return deep copies,
never references into the guarded maps.

Durable persistence is an external collaborator; this store is the
in-process source of truth only.
*/

package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arbiterhq/arbiter/internal/rbac"
)

// Store errors.
var (
	// ErrDuplicateName is returned when a create collides with an
	// existing role name or user id.
	ErrDuplicateName = errors.New("name already exists")

	// ErrRoleNotFound is returned when a role lookup misses.
	ErrRoleNotFound = errors.New("role not found")

	// ErrUserNotFound is returned when a user lookup misses.
	ErrUserNotFound = errors.New("user not found")
)

// Store holds users and roles behind a read-write lock.
type Store struct {
	mu    sync.RWMutex
	roles map[string]*rbac.Role
	users map[string]*rbac.User
}

// New creates an empty store.
func New() *Store {
	return &Store{
		roles: make(map[string]*rbac.Role),
		users: make(map[string]*rbac.User),
	}
}

// CreateRole adds a new role. The stored copy gets fresh timestamps and
// an active flag; parent back-references are wired into existing parents.
// Returns ErrDuplicateName if the name is taken.
func (s *Store) CreateRole(role rbac.Role) (rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if role.Name == "" {
		return rbac.Role{}, errors.New("role name is required")
	}
	if _, ok := s.roles[role.Name]; ok {
		return rbac.Role{}, fmt.Errorf("role %q: %w", role.Name, ErrDuplicateName)
	}

	stored := role.Clone()
	now := time.Now()
	stored.IsActive = true
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.ChildRoles = nil

	s.roles[stored.Name] = &stored
	for _, parent := range stored.ParentRoles {
		s.addChildRef(parent, stored.Name)
	}

	return stored.Clone(), nil
}

// GetRole returns a copy of the named role.
func (s *Store) GetRole(name string) (rbac.Role, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.roles[name]
	if !ok {
		return rbac.Role{}, false
	}
	return role.Clone(), true
}

// UpdateRole replaces the named role's mutable fields and bumps
// UpdatedAt. When the parent list changes, both old and new parents'
// child back-references are rewired. Returns ErrRoleNotFound if absent.
func (s *Store) UpdateRole(role rbac.Role) (rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.roles[role.Name]
	if !ok {
		return rbac.Role{}, fmt.Errorf("role %q: %w", role.Name, ErrRoleNotFound)
	}

	oldParents := existing.ParentRoles
	existing.Description = role.Description
	existing.Permissions = rbac.ClonePermissions(role.Permissions)
	existing.ParentRoles = append([]string(nil), role.ParentRoles...)
	existing.IsActive = role.IsActive
	existing.UpdatedAt = time.Now()

	for _, parent := range oldParents {
		s.removeChildRef(parent, existing.Name)
	}
	for _, parent := range existing.ParentRoles {
		s.addChildRef(parent, existing.Name)
	}

	return existing.Clone(), nil
}

// DeleteRole removes a role and cascades: the name is stripped from
// every user's role list and from every other role's parent and child
// lists. Returns ErrRoleNotFound if absent.
func (s *Store) DeleteRole(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[name]; !ok {
		return fmt.Errorf("role %q: %w", name, ErrRoleNotFound)
	}
	delete(s.roles, name)

	now := time.Now()
	for _, role := range s.roles {
		changed := false
		if removed := removeString(&role.ParentRoles, name); removed {
			changed = true
		}
		if removed := removeString(&role.ChildRoles, name); removed {
			changed = true
		}
		if changed {
			role.UpdatedAt = now
		}
	}
	for _, user := range s.users {
		if removeString(&user.Roles, name) {
			user.UpdatedAt = now
		}
	}

	return nil
}

// SetRolePermissions replaces a role's permission list and bumps
// UpdatedAt.
func (s *Store) SetRolePermissions(name string, perms []rbac.Permission) (rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roles[name]
	if !ok {
		return rbac.Role{}, fmt.Errorf("role %q: %w", name, ErrRoleNotFound)
	}
	role.Permissions = rbac.ClonePermissions(perms)
	role.UpdatedAt = time.Now()
	return role.Clone(), nil
}

// ListRoles returns copies of all roles.
func (s *Store) ListRoles() []rbac.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]rbac.Role, 0, len(s.roles))
	for _, role := range s.roles {
		out = append(out, role.Clone())
	}
	return out
}

// RoleParents returns the parent list of the named role for hierarchy
// resolution. The second return is false for unknown roles.
func (s *Store) RoleParents(name string) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.roles[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), role.ParentRoles...), true
}

// CreateUser adds a new user. Returns ErrDuplicateName if the id is
// taken.
func (s *Store) CreateUser(user rbac.User) (rbac.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" {
		return rbac.User{}, errors.New("user id is required")
	}
	if _, ok := s.users[user.ID]; ok {
		return rbac.User{}, fmt.Errorf("user %q: %w", user.ID, ErrDuplicateName)
	}

	stored := user.Clone()
	now := time.Now()
	stored.IsActive = true
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.users[stored.ID] = &stored
	return stored.Clone(), nil
}

// GetUser returns a copy of the user with the given id.
func (s *Store) GetUser(id string) (rbac.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return rbac.User{}, false
	}
	return user.Clone(), true
}

// UpdateUser replaces the user's mutable fields and bumps UpdatedAt.
func (s *Store) UpdateUser(user rbac.User) (rbac.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return rbac.User{}, fmt.Errorf("user %q: %w", user.ID, ErrUserNotFound)
	}
	existing.Roles = append([]string(nil), user.Roles...)
	existing.DirectPermissions = rbac.ClonePermissions(user.DirectPermissions)
	existing.IsActive = user.IsActive
	existing.UpdatedAt = time.Now()
	return existing.Clone(), nil
}

// DeleteUser removes a user. Returns ErrUserNotFound if absent.
func (s *Store) DeleteUser(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return fmt.Errorf("user %q: %w", id, ErrUserNotFound)
	}
	delete(s.users, id)
	return nil
}

// ListUsers returns copies of all users.
func (s *Store) ListUsers() []rbac.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]rbac.User, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user.Clone())
	}
	return out
}

// GrantPermission appends a direct permission to a user. The stored
// permission gets a CreatedAt timestamp if the caller left it zero.
func (s *Store) GrantPermission(userID string, perm rbac.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %q: %w", userID, ErrUserNotFound)
	}
	p := perm.Clone()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	user.DirectPermissions = append(user.DirectPermissions, p)
	user.UpdatedAt = time.Now()
	return nil
}

// RevokePermission removes every direct permission whose composite key
// matches. Returns the number of permissions removed.
func (s *Store) RevokePermission(userID string, permKey string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return 0, fmt.Errorf("user %q: %w", userID, ErrUserNotFound)
	}

	kept := user.DirectPermissions[:0]
	removed := 0
	for _, p := range user.DirectPermissions {
		if p.Key() == permKey {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	user.DirectPermissions = kept
	if removed > 0 {
		user.UpdatedAt = time.Now()
	}
	return removed, nil
}

// AssignRole adds a role name to a user's role list. Assigning an
// already-held role is a no-op. The role must exist.
func (s *Store) AssignRole(userID, roleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %q: %w", userID, ErrUserNotFound)
	}
	if _, ok := s.roles[roleName]; !ok {
		return fmt.Errorf("role %q: %w", roleName, ErrRoleNotFound)
	}
	for _, r := range user.Roles {
		if r == roleName {
			return nil
		}
	}
	user.Roles = append(user.Roles, roleName)
	user.UpdatedAt = time.Now()
	return nil
}

// RemoveRole strips a role name from a user's role list.
func (s *Store) RemoveRole(userID, roleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %q: %w", userID, ErrUserNotFound)
	}
	if removeString(&user.Roles, roleName) {
		user.UpdatedAt = time.Now()
	}
	return nil
}

// Counts returns the number of roles and users, for analytics.
func (s *Store) Counts() (roles, users int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.roles), len(s.users)
}

// addChildRef records child in parent's back-reference list if the
// parent exists. Missing parents are tolerated: the graph may be built
// in any order.
func (s *Store) addChildRef(parent, child string) {
	role, ok := s.roles[parent]
	if !ok {
		return
	}
	for _, c := range role.ChildRoles {
		if c == child {
			return
		}
	}
	role.ChildRoles = append(role.ChildRoles, child)
	role.UpdatedAt = time.Now()
}

// removeChildRef drops child from parent's back-reference list.
func (s *Store) removeChildRef(parent, child string) {
	role, ok := s.roles[parent]
	if !ok {
		return
	}
	if removeString(&role.ChildRoles, child) {
		role.UpdatedAt = time.Now()
	}
}

// removeString deletes every occurrence of v from *list, reporting
// whether anything was removed.
func removeString(list *[]string, v string) bool {
	kept := (*list)[:0]
	removed := false
	for _, s := range *list {
		if s == v {
			removed = true
			continue
		}
		kept = append(kept, s)
	}
	*list = kept
	return removed
}
