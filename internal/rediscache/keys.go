// Arbiter - RBAC Authorization Decision Engine
// Copyright 2026 Arbiter Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arbiterhq/arbiter

package rediscache

import "strings"

// Key patterns. Every key is namespace:pattern:identifier.
const (
	// PatternUserPermissions caches a user's effective permission list.
	PatternUserPermissions = "user-permissions"

	// PatternRolePermissions caches a role's permission list.
	PatternRolePermissions = "role-permissions"

	// PatternCheckResult caches one authorization decision. The
	// identifier is the composite check key, which begins with the
	// user id, so per-user invalidation can match on a key prefix.
	PatternCheckResult = "permission-check-result"

	// PatternRoleHierarchy caches a role's ancestor closure. These
	// entries live for twice the base TTL: role graphs change less
	// often than individual checks.
	PatternRoleHierarchy = "role-hierarchy"

	// PatternUserRoles caches a user's hierarchy-expanded role set.
	PatternUserRoles = "user-roles"

	// PatternBulkResult caches the aggregate map of a bulk check,
	// keyed by the batch hash.
	PatternBulkResult = "bulk-permission-result"
)

// Patterns lists every key pattern, for stats reporting.
var Patterns = []string{
	PatternUserPermissions,
	PatternRolePermissions,
	PatternCheckResult,
	PatternRoleHierarchy,
	PatternUserRoles,
	PatternBulkResult,
}

// key assembles namespace:pattern:identifier.
func (c *Cache) key(pattern, id string) string {
	var b strings.Builder
	b.WriteString(c.namespace)
	b.WriteByte(':')
	b.WriteString(pattern)
	b.WriteByte(':')
	b.WriteString(id)
	return b.String()
}

// match assembles a SCAN glob for all keys of a pattern, optionally
// narrowed by an identifier prefix. The prefix is escaped so ids
// containing glob metacharacters match only themselves.
func (c *Cache) match(pattern, idPrefix string) string {
	return c.key(pattern, escapeGlob(idPrefix)) + "*"
}

// escapeGlob backslash-escapes the metacharacters Redis SCAN MATCH
// interprets, so a literal id cannot widen or narrow the match.
func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
