// Arbiter - RBAC Authorization Decision Engine
// Copyright 2026 Arbiter Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arbiterhq/arbiter

// Prometheus metrics for the authorization facade.
//
// Metric categories:
//   - Decisions: allow/deny counts and latency by decision source
//   - Cache tiers: hit/miss counts per tier, invalidations by reason
//   - Role management: assignment and revocation counts
//   - Bulk operations: batch sizes

package authz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decision sources for latency labeling.
const (
	SourceRemoteCache = "remote_cache"
	SourceLocalCache  = "local_cache"
	SourceComputed    = "computed"
)

// Cache tiers for hit/miss labeling.
const (
	TierRemote = "remote"
	TierLocal  = "local"
)

var (
	// DecisionsTotal counts authorization decisions by request shape and outcome.
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_authz_decisions_total",
			Help: "Total number of authorization decisions",
		},
		[]string{"resource_type", "action", "decision"},
	)

	// DecisionDuration tracks decision latency by where the answer came from.
	DecisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "arbiter_authz_decision_duration_seconds",
			Help: "Duration of authorization decisions in seconds",
			// Cache hits land in microseconds, full evaluations in
			// milliseconds.
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"source"},
	)

	// DeniedTotal tracks denials separately for alerting.
	DeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_authz_denied_total",
			Help: "Total number of authorization denials (for alerting)",
		},
		[]string{"resource_type", "action"},
	)

	// CacheHitsTotal counts cache hits per tier.
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_authz_cache_hits_total",
			Help: "Total number of authorization cache hits",
		},
		[]string{"tier"},
	)

	// CacheMissesTotal counts cache misses per tier.
	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_authz_cache_misses_total",
			Help: "Total number of authorization cache misses",
		},
		[]string{"tier"},
	)

	// CacheInvalidationsTotal counts cache invalidations by trigger.
	CacheInvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_authz_cache_invalidations_total",
			Help: "Total number of authorization cache invalidations",
		},
		[]string{"reason"}, // "user_change", "role_change", "role_graph_change"
	)

	// RoleAssignmentsTotal counts role assignment events.
	RoleAssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_authz_role_assignments_total",
			Help: "Total number of role assignment events",
		},
		[]string{"role", "action"}, // action: "assign", "remove"
	)

	// BulkBatchSize tracks the size distribution of bulk check batches.
	BulkBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "arbiter_authz_bulk_batch_size",
			Help:    "Number of requests per bulk permission check",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	// AuditEntriesTotal counts audit entries recorded by action.
	AuditEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_authz_audit_entries_total",
			Help: "Total number of audit log entries recorded",
		},
		[]string{"action"},
	)
)

// RecordDecision records a single authorization decision.
func RecordDecision(resourceType, action string, allowed bool, duration time.Duration, source string) {
	decision := "denied"
	if allowed {
		decision = "allowed"
	}

	DecisionsTotal.WithLabelValues(resourceType, action, decision).Inc()
	DecisionDuration.WithLabelValues(source).Observe(duration.Seconds())

	if !allowed {
		DeniedTotal.WithLabelValues(resourceType, action).Inc()
	}
}

// RecordCacheHit records a cache hit for the given tier.
func RecordCacheHit(tier string) {
	CacheHitsTotal.WithLabelValues(tier).Inc()
}

// RecordCacheMiss records a cache miss for the given tier.
func RecordCacheMiss(tier string) {
	CacheMissesTotal.WithLabelValues(tier).Inc()
}

// RecordCacheInvalidation records a cache invalidation with its trigger.
func RecordCacheInvalidation(reason string) {
	CacheInvalidationsTotal.WithLabelValues(reason).Inc()
}

// RecordRoleAssignment records a role assignment or removal.
func RecordRoleAssignment(role, action string) {
	RoleAssignmentsTotal.WithLabelValues(role, action).Inc()
}

// ObserveBulkBatch records the size of a bulk check batch.
func ObserveBulkBatch(size int) {
	BulkBatchSize.Observe(float64(size))
}

// RecordAuditEntry records an audit log write.
func RecordAuditEntry(action string) {
	AuditEntriesTotal.WithLabelValues(action).Inc()
}
