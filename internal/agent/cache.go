package agent

import (
	"sync"
	"time"
)

// cacheTTL is how long both listing caches stay fresh. Not user
// configurable.
const cacheTTL = 300 * time.Second

// ttlCache is a snapshot map with an expiry timestamp and its own lock.
// Callers hold the lock around the whole "check freshness, rebuild if
// stale, read" sequence so that concurrent callers never trigger two
// overlapping rebuilds; a second caller arriving mid-rebuild waits on the
// lock instead of issuing a duplicate expensive listing.
type ttlCache[V any] struct {
	sync.Mutex
	entries map[string]V
	expires time.Time
}

// fresh reports whether the cache holds a usable snapshot. The lock must be
// held.
func (c *ttlCache[V]) fresh(now time.Time) bool {
	return c.entries != nil && now.Before(c.expires)
}

// set replaces the snapshot and restarts the TTL.
func (c *ttlCache[V]) set(entries map[string]V, now time.Time) {
	c.entries = entries
	c.expires = now.Add(cacheTTL)
}

// expire forces the next access to rebuild. Used after mutations whose
// blast radius is not precisely known, e.g. an upload the SDK does not
// return listing data for.
func (c *ttlCache[V]) expire() {
	c.expires = time.Time{}
}

// remove surgically drops keys from a fresh snapshot, leaving the TTL
// untouched. On a stale or empty cache it is a no-op; the next access
// rebuilds regardless.
func (c *ttlCache[V]) remove(now time.Time, keys ...string) {
	if !c.fresh(now) {
		return
	}
	for _, key := range keys {
		delete(c.entries, key)
	}
}

// insert adds a single entry to a still-fresh snapshot, leaving the TTL
// untouched. No-op on a stale or empty cache.
func (c *ttlCache[V]) insert(now time.Time, key string, value V) {
	if !c.fresh(now) {
		return
	}
	c.entries[key] = value
}

// snapshot returns a copy of the entries so callers can iterate without
// holding the lock.
func (c *ttlCache[V]) snapshot() map[string]V {
	out := make(map[string]V, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}
