// Arbiter - RBAC Authorization Decision Engine
// Copyright 2026 Arbiter Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arbiterhq/arbiter

/*
bulk.go - Bulk Permission Checks

Answers a batch of authorization requests as one aggregate result map.
The whole batch is hashed into a single external cache key; on a hit
the aggregate map is returned directly, on a miss each request is
checked individually (each check cache-aware on its own) with a
bounded worker pool, and the aggregate is written back.
*/

package authz

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/arbiterhq/arbiter/internal/rbac"
)

// BulkCheckPermissions answers every request in the batch. The result
// map is keyed by each request's composite key and holds exactly one
// entry per distinct key. An empty batch returns an empty map.
func (s *Service) BulkCheckPermissions(ctx context.Context, reqs []rbac.CheckRequest) map[string]bool {
	s.bulkOps.Add(1)
	ObserveBulkBatch(len(reqs))

	if len(reqs) == 0 {
		return map[string]bool{}
	}

	batchHash := rbac.BatchHash(reqs)
	if s.remote != nil {
		if results, ok := s.remote.GetBulkResult(ctx, batchHash); ok {
			RecordCacheHit(TierRemote)
			return results
		}
		RecordCacheMiss(TierRemote)
	}

	var mu sync.Mutex
	results := make(map[string]bool, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.bulkConcurrency)
	for _, req := range reqs {
		g.Go(func() error {
			allowed := s.CheckPermission(gctx, req)
			mu.Lock()
			results[req.Key()] = allowed
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; Wait only synchronizes.
	_ = g.Wait()

	if s.remote != nil {
		s.remote.SetBulkResult(ctx, batchHash, results)
	}
	return results
}
