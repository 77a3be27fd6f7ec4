package agent

import (
	"testing"
	"time"
)

func TestTTLCache_Freshness(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var c ttlCache[int]

	if c.fresh(now) {
		t.Error("empty cache should not be fresh")
	}

	c.set(map[string]int{"a": 1}, now)
	if !c.fresh(now) {
		t.Error("cache should be fresh immediately after set")
	}
	if !c.fresh(now.Add(cacheTTL - time.Second)) {
		t.Error("cache should be fresh just inside the TTL")
	}
	if c.fresh(now.Add(cacheTTL)) {
		t.Error("cache should be stale at the TTL boundary")
	}
}

func TestTTLCache_Expire(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var c ttlCache[int]

	c.set(map[string]int{"a": 1}, now)
	c.expire()
	if c.fresh(now) {
		t.Error("cache should be stale after expire")
	}
	// Entries survive until the next set; only freshness is gone.
	if len(c.entries) != 1 {
		t.Errorf("entries = %d, want 1", len(c.entries))
	}
}

func TestTTLCache_Remove(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var c ttlCache[int]

	c.set(map[string]int{"a": 1, "b": 2, "c": 3}, now)
	c.remove(now, "a", "c", "missing")

	if _, ok := c.entries["a"]; ok {
		t.Error("key a should have been removed")
	}
	if _, ok := c.entries["b"]; !ok {
		t.Error("key b should have survived")
	}
	if !c.fresh(now) {
		t.Error("surgical removal must not reset the TTL")
	}
}

func TestTTLCache_RemoveOnStaleIsNoop(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var c ttlCache[int]

	c.set(map[string]int{"a": 1}, now)
	stale := now.Add(cacheTTL + time.Minute)
	c.remove(stale, "a")

	if _, ok := c.entries["a"]; !ok {
		t.Error("remove on a stale cache should leave entries alone")
	}
}

func TestTTLCache_Insert(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var c ttlCache[int]

	// Insert into an empty cache is a no-op; there is no snapshot to extend.
	c.insert(now, "a", 1)
	if len(c.entries) != 0 {
		t.Error("insert on an empty cache should be a no-op")
	}

	c.set(map[string]int{"a": 1}, now)
	c.insert(now, "b", 2)
	if c.entries["b"] != 2 {
		t.Error("insert on a fresh cache should add the entry")
	}

	c.insert(now.Add(cacheTTL+time.Second), "c", 3)
	if _, ok := c.entries["c"]; ok {
		t.Error("insert on a stale cache should be a no-op")
	}
}

func TestTTLCache_SnapshotIsCopy(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var c ttlCache[int]

	c.set(map[string]int{"a": 1}, now)
	snap := c.snapshot()
	snap["b"] = 2

	if _, ok := c.entries["b"]; ok {
		t.Error("mutating a snapshot must not touch the cache")
	}
}
