// Arbiter - RBAC Authorization Decision Engine
// Copyright 2026 Arbiter Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arbiterhq/arbiter

package rbac

import "time"

// User is an identity that authorization questions are asked about.
// An inactive user never passes authorization regardless of the
// permissions or roles attached to it.
type User struct {
	// ID uniquely identifies the user within the store.
	ID string `json:"id"`

	// Roles names the roles assigned to the user.
	Roles []string `json:"roles,omitempty"`

	// DirectPermissions are granted to the user without any role,
	// checked before role permissions during evaluation.
	DirectPermissions []Permission `json:"direct_permissions,omitempty"`

	// IsActive gates all authorization for the user.
	IsActive bool `json:"is_active"`

	// CreatedAt is when the user was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is bumped on every management mutation.
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the user.
func (u User) Clone() User {
	out := u
	out.Roles = cloneStrings(u.Roles)
	out.DirectPermissions = ClonePermissions(u.DirectPermissions)
	return out
}

// HasRole reports whether name appears in the user's role list.
func (u User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r == name {
			return true
		}
	}
	return false
}
