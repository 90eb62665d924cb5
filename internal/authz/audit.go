// Arbiter - RBAC Authorization Decision Engine
// Copyright 2026 Arbiter Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arbiterhq/arbiter

/*
audit.go - Management Audit Log

Fixed-capacity in-memory ring buffer of management actions (grants,
revocations, role assignments, entity CRUD). When the buffer is full
the oldest entry is overwritten. Recording is best-effort and never
fails or blocks the triggering operation.

The buffer holds management actions only; authorization decisions are
observed through metrics and structured logs instead, since their
volume would evict the management history immediately.
*/

package authz

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultAuditCapacity is used when no capacity is configured.
const DefaultAuditCapacity = 1000

// AuditEntry is one recorded management action.
type AuditEntry struct {
	// ID is a unique identifier for this entry.
	ID string `json:"id"`

	// Timestamp is when the action was recorded.
	Timestamp time.Time `json:"timestamp"`

	// Action names the management operation, e.g. "grant_permission".
	Action string `json:"action"`

	// Details carries operation-specific fields (user id, role name,
	// permission key).
	Details map[string]string `json:"details,omitempty"`
}

// AuditLog is a concurrency-safe ring buffer of the most recent
// management actions.
type AuditLog struct {
	mu       sync.RWMutex
	entries  []AuditEntry
	next     int
	size     int
	capacity int
}

// NewAuditLog creates an audit log holding at most capacity entries.
func NewAuditLog(capacity int) *AuditLog {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	return &AuditLog{
		entries:  make([]AuditEntry, capacity),
		capacity: capacity,
	}
}

// Record appends a management action, overwriting the oldest entry
// when the buffer is full.
func (a *AuditLog) Record(action string, details map[string]string) {
	entry := AuditEntry{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Action:    action,
		Details:   details,
	}

	a.mu.Lock()
	a.entries[a.next] = entry
	a.next = (a.next + 1) % a.capacity
	if a.size < a.capacity {
		a.size++
	}
	a.mu.Unlock()

	RecordAuditEntry(action)
}

// Recent returns up to limit entries, newest first. A non-positive
// limit returns everything retained.
func (a *AuditLog) Recent(limit int) []AuditEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if limit <= 0 || limit > a.size {
		limit = a.size
	}

	out := make([]AuditEntry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (a.next - i + a.capacity) % a.capacity
		out = append(out, a.entries[idx])
	}
	return out
}

// Len reports the number of retained entries.
func (a *AuditLog) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.size
}

// Capacity reports the maximum number of retained entries.
func (a *AuditLog) Capacity() int {
	return a.capacity
}
