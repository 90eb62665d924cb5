// Arbiter - RBAC Authorization Decision Engine
// Copyright 2026 Arbiter Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arbiterhq/arbiter

package rbac

import "time"

// Role is a named, ordered bundle of permissions that can inherit from
// parent roles. Parent links form a graph that may contain cycles; the
// hierarchy resolver guarantees termination regardless.
//
// ChildRoles is a back-reference maintained for management convenience
// only. Resolution walks ParentRoles exclusively.
type Role struct {
	// Name uniquely identifies the role within the store.
	Name string `json:"name"`

	// Description is free-form documentation for operators.
	Description string `json:"description,omitempty"`

	// Permissions are checked in order during evaluation; the first
	// match wins.
	Permissions []Permission `json:"permissions"`

	// ParentRoles names roles whose permissions this role inherits.
	ParentRoles []string `json:"parent_roles,omitempty"`

	// ChildRoles names roles that inherit from this role (back-reference).
	ChildRoles []string `json:"child_roles,omitempty"`

	// IsActive gates the role's permissions; inactive roles grant nothing.
	IsActive bool `json:"is_active"`

	// CreatedAt is when the role was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is bumped on every management mutation.
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the role.
func (r Role) Clone() Role {
	out := r
	out.Permissions = ClonePermissions(r.Permissions)
	out.ParentRoles = cloneStrings(r.ParentRoles)
	out.ChildRoles = cloneStrings(r.ChildRoles)
	return out
}

// HasParent reports whether name appears in the role's parent list.
func (r Role) HasParent(name string) bool {
	for _, p := range r.ParentRoles {
		if p == name {
			return true
		}
	}
	return false
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
