// Package cache provides the keyed, time-bounded store in front of upstream feeds.
package cache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Kind distinguishes the different datasets cached for one station.
type Kind string

const (
	KindLatest      Kind = "latest"
	KindHistory     Kind = "history"
	KindCoastalWind Kind = "coastal-wind"
)

// Key identifies a cache entry. Params carries request parameters that
// change the cached value, such as a history window.
type Key struct {
	StationID string
	Kind      Kind
	Params    string
}

// String returns a stable textual form, usable as a singleflight key.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(string(k.Kind))
	b.WriteByte(':')
	b.WriteString(k.StationID)
	if k.Params != "" {
		b.WriteByte('?')
		b.WriteString(k.Params)
	}
	return b.String()
}

// Store is a concurrency-safe keyed store with per-entry expiry.
// An entry past its deadline is never returned.
type Store interface {
	Get(key Key) (any, bool)
	Put(key Key, value any, ttl time.Duration)
	Clear()
	Len() int
}

type entry struct {
	value     any
	expiresAt time.Time
}

// TTLStore is an in-memory Store. Expired entries are dropped lazily on
// lookup and eagerly by Sweep.
type TTLStore struct {
	clock   clockwork.Clock
	mu      sync.Mutex
	entries map[Key]entry
}

// New creates an empty store. A nil clock uses wall time.
func New(clock clockwork.Clock) *TTLStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TTLStore{
		clock:   clock,
		entries: make(map[Key]entry),
	}
}

// Get returns the value for key if present and not yet expired.
func (s *TTLStore) Get(key Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !s.clock.Now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil, false
	}
	return e.value, true
}

// Put stores value under key until ttl elapses. A non-positive ttl is a no-op.
func (s *TTLStore) Put(key Key, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry{
		value:     value,
		expiresAt: s.clock.Now().Add(ttl),
	}
}

// Delete removes a single entry.
func (s *TTLStore) Delete(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Clear removes every entry.
func (s *TTLStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[Key]entry)
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (s *TTLStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep drops expired entries and returns how many were removed.
func (s *TTLStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Keys returns the live keys sorted by their string form.
func (s *TTLStore) Keys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	keys := make([]Key, 0, len(s.entries))
	for k, e := range s.entries {
		if now.Before(e.expiresAt) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
