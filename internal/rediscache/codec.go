// Arbiter - RBAC Authorization Decision Engine
// Copyright 2026 Arbiter Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arbiterhq/arbiter

package rediscache

import (
	"time"

	"github.com/goccy/go-json"
)

// Cached values are stored as JSON: enumeration fields serialize as
// strings and timestamps as RFC 3339, so entries stay readable from
// other tooling. A decode failure is reported as a cache miss by the
// caller, never as an authorization outcome.

// checkResultEntry is the stored form of one authorization decision.
type checkResultEntry struct {
	Result     bool      `json:"result"`
	RecordedAt time.Time `json:"recorded_at"`
}

// hierarchyEntry is the stored form of a role's ancestor closure.
type hierarchyEntry struct {
	Roles      []string  `json:"roles"`
	RecordedAt time.Time `json:"recorded_at"`
}

// bulkEntry is the stored form of a bulk check's aggregate result map,
// keyed by each request's composite key.
type bulkEntry struct {
	Results    map[string]bool `json:"results"`
	RecordedAt time.Time       `json:"recorded_at"`
}

func encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
