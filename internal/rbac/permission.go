// Arbiter - RBAC Authorization Decision Engine
// Copyright 2026 Arbiter Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arbiterhq/arbiter

/*
permission.go - Permission Model

This file defines the Permission structure and its matching semantics,
the core primitive every authorization decision reduces to.

Key Structures:
  - ResourceType, Action, Scope: closed enumerations (typed string constants)
  - Permission: a grant of one action on one resource type, optionally
    narrowed to a single resource id and a set of context conditions

Matching Semantics:
  - Expired permissions never match
  - Resource type must be equal; action must be equal, except that an
    ADMIN grant at GLOBAL scope satisfies any action on its resource type
  - A set, non-wildcard resource id must equal the requested id
  - Conditions use subset semantics: every condition key must be present
    in the request context with an equal value

Usage:
  - Entity storage in internal/store
  - Decision evaluation in internal/engine
*/

package rbac

import (
	"strings"
	"time"
)

// Wildcard matches any resource id when used as Permission.ResourceID.
const Wildcard = "*"

// ResourceType identifies the kind of resource a permission applies to.
type ResourceType string

// Resource type constants define the closed set of protected resource kinds.
const (
	ResourceAPIEndpoint   ResourceType = "API_ENDPOINT"
	ResourceDatabase      ResourceType = "DATABASE"
	ResourceService       ResourceType = "SERVICE"
	ResourceAgent         ResourceType = "AGENT"
	ResourceWorkflow      ResourceType = "WORKFLOW"
	ResourceMonitoring    ResourceType = "MONITORING"
	ResourceConfiguration ResourceType = "CONFIGURATION"
	ResourceFileSystem    ResourceType = "FILE_SYSTEM"
)

// ResourceTypes lists all valid resource types for validation and analytics.
var ResourceTypes = []ResourceType{
	ResourceAPIEndpoint,
	ResourceDatabase,
	ResourceService,
	ResourceAgent,
	ResourceWorkflow,
	ResourceMonitoring,
	ResourceConfiguration,
	ResourceFileSystem,
}

// Valid reports whether rt is a known resource type.
func (rt ResourceType) Valid() bool {
	for _, t := range ResourceTypes {
		if t == rt {
			return true
		}
	}
	return false
}

// Action identifies the operation being authorized.
type Action string

// Action constants define the closed set of authorizable operations.
const (
	ActionCreate    Action = "CREATE"
	ActionRead      Action = "READ"
	ActionUpdate    Action = "UPDATE"
	ActionDelete    Action = "DELETE"
	ActionExecute   Action = "EXECUTE"
	ActionAdmin     Action = "ADMIN"
	ActionConfigure Action = "CONFIGURE"
	ActionMonitor   Action = "MONITOR"
	ActionDeploy    Action = "DEPLOY"
	ActionScale     Action = "SCALE"
)

// Actions lists all valid actions for validation and analytics.
var Actions = []Action{
	ActionCreate,
	ActionRead,
	ActionUpdate,
	ActionDelete,
	ActionExecute,
	ActionAdmin,
	ActionConfigure,
	ActionMonitor,
	ActionDeploy,
	ActionScale,
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	for _, v := range Actions {
		if v == a {
			return true
		}
	}
	return false
}

// Scope is the breadth at which a permission applies.
type Scope string

// Scope constants, broadest first.
const (
	ScopeGlobal       Scope = "GLOBAL"
	ScopeOrganization Scope = "ORGANIZATION"
	ScopeProject      Scope = "PROJECT"
	ScopeResource     Scope = "RESOURCE"
	ScopeInstance     Scope = "INSTANCE"
)

// Scopes lists all valid scopes.
var Scopes = []Scope{
	ScopeGlobal,
	ScopeOrganization,
	ScopeProject,
	ScopeResource,
	ScopeInstance,
}

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	for _, v := range Scopes {
		if v == s {
			return true
		}
	}
	return false
}

// Permission grants one action on one resource type at a given scope.
//
// Key Features:
//   - ResourceID narrows the grant to a single resource; empty or "*"
//     matches any resource id (wildcard)
//   - Conditions narrow the grant to requests whose context carries
//     matching key/value pairs (AND over all keys)
//   - ExpiresAt supports time-limited grants; nil means no expiration
type Permission struct {
	// ResourceType is the kind of resource this permission covers.
	ResourceType ResourceType `json:"resource_type"`

	// Action is the operation this permission allows.
	Action Action `json:"action"`

	// Scope is the breadth at which the permission applies.
	Scope Scope `json:"scope"`

	// ResourceID narrows the grant to one resource. Empty or "*" is a wildcard.
	ResourceID string `json:"resource_id,omitempty"`

	// Conditions must all be present in the request context for a match.
	Conditions map[string]string `json:"conditions,omitempty"`

	// CreatedAt is when the permission was granted.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the permission lapses (nil means never).
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Key returns the composite identity of the permission:
// resource_type:action:scope:resource_id, with "*" standing in for an
// absent resource id.
func (p Permission) Key() string {
	id := p.ResourceID
	if id == "" {
		id = Wildcard
	}
	var b strings.Builder
	b.WriteString(string(p.ResourceType))
	b.WriteByte(':')
	b.WriteString(string(p.Action))
	b.WriteByte(':')
	b.WriteString(string(p.Scope))
	b.WriteByte(':')
	b.WriteString(id)
	return b.String()
}

// IsValid reports whether the permission is in effect at the given time.
// A permission with no expiry is always valid.
func (p Permission) IsValid(now time.Time) bool {
	if p.ExpiresAt == nil {
		return true
	}
	return now.Before(*p.ExpiresAt)
}

// Matches reports whether the permission allows the requested operation.
// An ADMIN permission at GLOBAL scope matches any action on its resource
// type. The request context is matched against Conditions with subset
// semantics: extra context keys are ignored, missing or differing
// condition keys fail the match.
func (p Permission) Matches(resourceType ResourceType, action Action, resourceID string, reqCtx map[string]string, now time.Time) bool {
	if !p.IsValid(now) {
		return false
	}
	if p.ResourceType != resourceType {
		return false
	}
	if p.Action != action && !p.coversAllActions() {
		return false
	}
	if p.ResourceID != "" && p.ResourceID != Wildcard && p.ResourceID != resourceID {
		return false
	}
	for key, want := range p.Conditions {
		got, ok := reqCtx[key]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// coversAllActions reports whether the permission stands in for every
// action on its resource type. An ADMIN grant at GLOBAL scope is full
// administrative control, so it satisfies any requested action.
func (p Permission) coversAllActions() bool {
	return p.Action == ActionAdmin && p.Scope == ScopeGlobal
}

// Clone returns a deep copy of the permission, detached from any shared
// conditions map or expiry pointer.
func (p Permission) Clone() Permission {
	out := p
	if p.Conditions != nil {
		out.Conditions = make(map[string]string, len(p.Conditions))
		for k, v := range p.Conditions {
			out.Conditions[k] = v
		}
	}
	if p.ExpiresAt != nil {
		t := *p.ExpiresAt
		out.ExpiresAt = &t
	}
	return out
}

// ClonePermissions deep-copies a permission slice.
func ClonePermissions(perms []Permission) []Permission {
	if perms == nil {
		return nil
	}
	out := make([]Permission, len(perms))
	for i, p := range perms {
		out[i] = p.Clone()
	}
	return out
}
