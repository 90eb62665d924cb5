// Arbiter - RBAC Authorization Decision Engine
// Copyright 2026 Arbiter Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arbiterhq/arbiter

package rbac

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// CheckRequest is one authorization question: may UserID perform Action
// on ResourceType, optionally narrowed to ResourceID, under Context.
type CheckRequest struct {
	// UserID identifies the subject of the check.
	UserID string `json:"user_id"`

	// ResourceType is the kind of resource being accessed.
	ResourceType ResourceType `json:"resource_type"`

	// Action is the operation being attempted.
	Action Action `json:"action"`

	// ResourceID narrows the check to one resource (optional).
	ResourceID string `json:"resource_id,omitempty"`

	// Context carries request attributes matched against permission
	// conditions (environment, team, time window, and so on).
	Context map[string]string `json:"context,omitempty"`
}

// Key returns the composite cache identity of the request:
// user_id:resource_type:action:resource_id:context_hash. The resource
// id falls back to "*" so keyed and wildcard requests stay distinct.
func (r CheckRequest) Key() string {
	id := r.ResourceID
	if id == "" {
		id = Wildcard
	}
	var b strings.Builder
	b.WriteString(r.UserID)
	b.WriteByte(':')
	b.WriteString(string(r.ResourceType))
	b.WriteByte(':')
	b.WriteString(string(r.Action))
	b.WriteByte(':')
	b.WriteString(id)
	b.WriteByte(':')
	b.WriteString(ContextHash(r.Context))
	return b.String()
}

// ContextHash returns a stable short hash of a context map. Keys are
// sorted before hashing so logically equal maps always produce the same
// digest. An empty or nil context hashes to a fixed value.
func ContextHash(ctx map[string]string) string {
	if len(ctx) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(ctx[k]))
		h.Write([]byte{';'})
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// BatchHash returns a stable hash over a whole batch of requests, used
// as the bulk-result cache key. Request order is significant: the same
// requests in a different order form a different batch.
func BatchHash(reqs []CheckRequest) string {
	h := sha256.New()
	for _, r := range reqs {
		h.Write([]byte(r.Key()))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil)[:12])
}
