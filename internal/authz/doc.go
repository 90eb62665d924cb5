// Arbiter - RBAC Authorization Decision Engine
// Copyright 2026 Arbiter Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arbiterhq/arbiter

// Package authz is the query and management facade over the
// authorization engine.
//
// It composes the entity store, the hierarchy resolver, the in-process
// evaluator, and the optional external cache layer into a single
// service type:
//
//   - Check queries go cache-first: external check-result cache, then
//     the evaluator (which carries its own decision cache), then both
//     tiers are populated with the computed decision.
//   - Bulk checks hash the whole batch into one aggregate cache key
//     and fan out with a bounded worker pool on a miss.
//   - Management operations (role and user CRUD, grants, assignments)
//     mutate the store first, then invalidate every cache tier the
//     mutation can affect, then record an audit entry. Auditing is
//     best-effort and never fails the operation.
//
// The external cache is optional: a nil cache degrades the service to
// in-process evaluation only, with identical decisions.
package authz
