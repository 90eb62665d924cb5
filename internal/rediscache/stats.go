// Arbiter - RBAC Authorization Decision Engine
// Copyright 2026 Arbiter Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arbiterhq/arbiter

package rediscache

import "sync/atomic"

// statsCounters tracks hits and misses per key pattern.
type statsCounters struct {
	patterns map[string]*patternCounters
	errors   atomic.Int64
}

type patternCounters struct {
	hits   atomic.Int64
	misses atomic.Int64
}

func newStatsCounters() *statsCounters {
	s := &statsCounters{patterns: make(map[string]*patternCounters, len(Patterns))}
	for _, p := range Patterns {
		s.patterns[p] = &patternCounters{}
	}
	return s
}

func (s *statsCounters) hit(pattern string) {
	if c, ok := s.patterns[pattern]; ok {
		c.hits.Add(1)
	}
}

func (s *statsCounters) miss(pattern string) {
	if c, ok := s.patterns[pattern]; ok {
		c.misses.Add(1)
	}
}

// PatternStats is the hit/miss breakdown for one key pattern.
type PatternStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Stats is a point-in-time snapshot of cache layer performance.
type Stats struct {
	// Patterns breaks hits and misses down by key pattern.
	Patterns map[string]PatternStats `json:"patterns"`

	// Hits and Misses aggregate across all patterns.
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`

	// HitRate is Hits / (Hits + Misses); zero when idle.
	HitRate float64 `json:"hit_rate"`

	// Errors counts cache failures degraded to misses.
	Errors int64 `json:"errors"`
}

// Stats returns a snapshot of per-pattern cache performance counters.
func (c *Cache) Stats() Stats {
	out := Stats{Patterns: make(map[string]PatternStats, len(Patterns))}
	for _, name := range Patterns {
		counters := c.stats.patterns[name]
		ps := PatternStats{
			Hits:   counters.hits.Load(),
			Misses: counters.misses.Load(),
		}
		out.Patterns[name] = ps
		out.Hits += ps.Hits
		out.Misses += ps.Misses
	}
	if total := out.Hits + out.Misses; total > 0 {
		out.HitRate = float64(out.Hits) / float64(total)
	}
	out.Errors = c.stats.errors.Load()
	return out
}
