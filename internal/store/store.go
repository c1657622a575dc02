package store

import (
	"sort"
	"sync"
	"time"
)

// Window is the trailing interval kept in RouteMetrics.Recent.
const Window = 30 * time.Second

// UnknownRoute is the key used when a caller records an empty route name.
const UnknownRoute = "unknown"

// RouteMetrics is the accumulated state for one route key.
type RouteMetrics struct {
	TotalRequests int64
	TotalTime     time.Duration
	Errors        int64

	// Recent holds completion times of requests inside the last Window,
	// oldest first. Entries are evicted on write only; readers must filter
	// against their own clock.
	Recent []time.Time

	// LastUpdated is the completion time of the most recent request.
	LastUpdated time.Time
}

// entry guards one route's metrics. Record and Snapshot both take mu, so a
// copy never sees a half-applied update.
type entry struct {
	mu sync.Mutex
	m  RouteMetrics
}

// Store is a thread-safe map of route key to RouteMetrics.
//
// The map itself is guarded by an RWMutex that is held only long enough to
// find or create an entry; updates to an entry take that entry's own lock,
// so writers on different routes never contend.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time // injectable for deterministic tests
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Record adds one completed request to the metrics for route.
//
// Record never fails. Inputs are normalised instead:
//   - an empty route is recorded as UnknownRoute
//   - a negative duration is clamped to 0
//   - a status below 100 is treated as 200, above 599 as 500
func (s *Store) Record(route string, status int, d time.Duration) {
	if route == "" {
		route = UnknownRoute
	}
	if d < 0 {
		d = 0
	}
	status = normaliseStatus(status)

	e := s.entryFor(route)

	e.mu.Lock()
	defer e.mu.Unlock()

	// The timestamp is taken under the entry lock so Recent stays ordered
	// even when requests on the same route complete concurrently.
	now := s.now()

	e.m.TotalRequests++
	e.m.TotalTime += d
	if status >= 400 {
		e.m.Errors++
	}
	e.m.LastUpdated = now
	e.m.Recent = append(e.m.Recent, now)
	e.m.Recent = evict(e.m.Recent, now)
}

// Snapshot returns a deep copy of every route's metrics. Each entry is copied
// under its own lock; copies of different routes may be taken at slightly
// different instants.
func (s *Store) Snapshot() map[string]RouteMetrics {
	s.mu.RLock()
	refs := make(map[string]*entry, len(s.entries))
	for k, e := range s.entries {
		refs[k] = e
	}
	s.mu.RUnlock()

	out := make(map[string]RouteMetrics, len(refs))
	for k, e := range refs {
		out[k] = e.copy()
	}
	return out
}

// Route returns a copy of the metrics for a single route key.
func (s *Store) Route(route string) (RouteMetrics, bool) {
	s.mu.RLock()
	e, ok := s.entries[route]
	s.mu.RUnlock()
	if !ok {
		return RouteMetrics{}, false
	}
	return e.copy(), true
}

// Len returns the number of routes that have recorded at least one request.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// entryFor returns the entry for route, creating it on first use. The
// double-checked lookup keeps concurrent first requests from creating two
// entries for the same key.
func (s *Store) entryFor(route string) *entry {
	s.mu.RLock()
	e, ok := s.entries[route]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[route]; ok {
		return e
	}
	e = &entry{}
	s.entries[route] = e
	return e
}

func (e *entry) copy() RouteMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.m
	m.Recent = make([]time.Time, len(e.m.Recent))
	copy(m.Recent, e.m.Recent)
	return m
}

// evict drops timestamps that are Window or more older than now, reusing the
// backing array.
func evict(ts []time.Time, now time.Time) []time.Time {
	i := FirstInWindow(ts, now)
	if i == 0 {
		return ts
	}
	n := copy(ts, ts[i:])
	return ts[:n]
}

// FirstInWindow returns the index of the first timestamp in the sorted slice
// ts that lies strictly within Window of now.
func FirstInWindow(ts []time.Time, now time.Time) int {
	return sort.Search(len(ts), func(i int) bool {
		return now.Sub(ts[i]) < Window
	})
}

func normaliseStatus(status int) int {
	switch {
	case status < 100:
		return 200
	case status > 599:
		return 500
	default:
		return status
	}
}
