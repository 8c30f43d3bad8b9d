// Package cache implements the process-wide, TTL-aware resource record store
// shared by every in-flight resolution. It is a plain keyed store, not an
// LRU: entries leave only when an expiry check observes them, never by
// eviction on size.
package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/lafolle/rrdns/internal/dns"
)

// Key identifies an RRSet: an owner name (normalized, absolute, lowercase)
// and a record type.
type Key struct {
	Owner string
	Type  uint16
}

// entry is one cached RR plus the wall-clock time it was last (re)learned.
type entry struct {
	rr          dns.Record
	lastRefresh time.Time
}

func (e entry) live(now time.Time) bool {
	return now.Sub(e.lastRefresh) <= time.Duration(e.rr.TTL)*time.Second
}

// payloadKey returns a comparable representation of an RR's RDATA so
// duplicate-payload detection (invariant I3) doesn't need a type switch at
// every call site.
func payloadKey(rr dns.Record) any {
	switch d := rr.Data.(type) {
	case []byte:
		return string(d)
	default:
		return d
	}
}

// Cache is a concurrency-safe store from (owner, type) to a set of RRs with
// TTL expiry. A single mutex guards the whole store; callers must never hold
// it across I/O.
type Cache struct {
	mu    sync.Mutex
	store map[Key][]entry
	now   func() time.Time
}

// New returns an empty cache. Callers typically follow this with
// SeedRootHints to preload the 13 IANA root servers.
func New() *Cache {
	return &Cache{
		store: make(map[Key][]entry),
		now:   time.Now,
	}
}

// Get returns a live snapshot of the RRSet for (owner, qtype). It normalizes
// owner the same way Insert does. The bool is false when no entry exists, or
// every matching RR has expired — callers must not distinguish the two
// cases. Expired entries are pruned opportunistically while the lock is
// held.
func (c *Cache) Get(owner string, qtype uint16) ([]dns.Record, bool) {
	owner = dns.NormalizeName(owner)
	key := Key{Owner: owner, Type: qtype}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, ok := c.store[key]
	if !ok {
		return nil, false
	}

	now := c.now()
	live := entries[:0:0]
	for _, e := range entries {
		if e.live(now) {
			live = append(live, e)
		}
	}
	if len(live) == 0 {
		delete(c.store, key)
		return nil, false
	}
	if len(live) != len(entries) {
		c.store[key] = live
	}

	out := make([]dns.Record, len(live))
	for i, e := range live {
		out[i] = e.rr
	}
	return out, true
}

// Insert normalizes rr.Name and appends it to its RRSet. An RR with a
// payload identical to one already present is a no-op (invariant I3); it
// does not refresh the existing entry's last-refresh time, matching the
// "last writer wins on last_refresh" note only when the payload actually
// differs (duplicates are indistinguishable from refreshes by design).
func (c *Cache) Insert(rr dns.Record) {
	rr.Name = dns.NormalizeName(rr.Name)
	key := Key{Owner: rr.Name, Type: rr.Type}
	pk := payloadKey(rr)

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.store[key] {
		if payloadKey(e.rr) == pk {
			return
		}
	}
	c.store[key] = append(c.store[key], entry{rr: rr, lastRefresh: c.now()})
}

// InsertAll inserts every record in rrs, convenience for the resolver
// caching the answer/authority/additional sections of a response in one
// call.
func (c *Cache) InsertAll(rrs []dns.Record) {
	for _, rr := range rrs {
		c.Insert(rr)
	}
}

// Entries is a JSON-friendly description of one cached RRSet, used by the
// debug HTTP endpoint.
type Entries struct {
	Owner   string   `json:"owner"`
	Type    uint16   `json:"type"`
	Records []string `json:"records"`
}

// Snapshot returns a deep, point-in-time copy of every live entry in the
// store, sorted for stable output. Intended for debugging only.
func (c *Cache) Snapshot() []Entries {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	out := make([]Entries, 0, len(c.store))
	for key, entries := range c.store {
		var records []string
		for _, e := range entries {
			if !e.live(now) {
				continue
			}
			records = append(records, describeRData(e.rr))
		}
		if len(records) == 0 {
			continue
		}
		out = append(out, Entries{Owner: key.Owner, Type: key.Type, Records: records})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// Len returns the number of live RRs across the whole store; used by the
// rrdns_cache_entries metrics gauge.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for _, entries := range c.store {
		for _, e := range entries {
			if e.live(now) {
				n++
			}
		}
	}
	return n
}

func describeRData(rr dns.Record) string {
	switch d := rr.Data.(type) {
	case []byte:
		if ip, ok := rr.IPv4(); ok {
			return ip
		}
		if ip, ok := rr.IPv6(); ok {
			return ip
		}
		return string(d)
	case string:
		return d
	case dns.MXData:
		return d.Exchange
	default:
		return ""
	}
}
