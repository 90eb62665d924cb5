// Arbiter - RBAC Authorization Decision Engine
// Copyright 2026 Arbiter Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arbiterhq/arbiter

package authz

import (
	"fmt"
	"sync"
	"testing"
)

func TestAuditLogRecordAndRecent(t *testing.T) {
	log := NewAuditLog(10)

	log.Record("grant_permission", map[string]string{"user": "alice"})
	log.Record("assign_role", map[string]string{"user": "alice", "role": "viewer"})
	log.Record("revoke_permission", map[string]string{"user": "bob"})

	if log.Len() != 3 {
		t.Fatalf("Len = %d, want 3", log.Len())
	}

	recent := log.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("Recent(2) returned %d entries", len(recent))
	}
	if recent[0].Action != "revoke_permission" {
		t.Fatalf("newest entry action = %q, want revoke_permission", recent[0].Action)
	}
	if recent[1].Action != "assign_role" {
		t.Fatalf("second entry action = %q, want assign_role", recent[1].Action)
	}
	if recent[0].ID == "" || recent[0].Timestamp.IsZero() {
		t.Fatal("entries must carry an id and timestamp")
	}
}

func TestAuditLogWrapsAtCapacity(t *testing.T) {
	log := NewAuditLog(3)

	for i := 0; i < 5; i++ {
		log.Record(fmt.Sprintf("action_%d", i), nil)
	}

	if log.Len() != 3 {
		t.Fatalf("Len = %d, want capacity 3", log.Len())
	}

	recent := log.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("Recent(0) returned %d entries, want 3", len(recent))
	}
	want := []string{"action_4", "action_3", "action_2"}
	for i, entry := range recent {
		if entry.Action != want[i] {
			t.Fatalf("entry %d action = %q, want %q", i, entry.Action, want[i])
		}
	}
}

func TestAuditLogLimitBeyondSize(t *testing.T) {
	log := NewAuditLog(10)
	log.Record("create_user", nil)

	recent := log.Recent(100)
	if len(recent) != 1 {
		t.Fatalf("Recent(100) returned %d entries, want 1", len(recent))
	}
}

func TestAuditLogDefaultCapacity(t *testing.T) {
	log := NewAuditLog(0)
	if log.Capacity() != DefaultAuditCapacity {
		t.Fatalf("Capacity = %d, want %d", log.Capacity(), DefaultAuditCapacity)
	}
}

func TestAuditLogConcurrentRecord(t *testing.T) {
	log := NewAuditLog(64)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				log.Record("assign_role", map[string]string{"user": "u"})
			}
		}()
	}
	wg.Wait()

	if log.Len() != 64 {
		t.Fatalf("Len = %d, want full capacity 64", log.Len())
	}
}
