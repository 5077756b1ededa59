package ratelimit

import (
	"sort"
	"sync"
	"time"
)

// Store keeps, per identity, the chronologically ordered timestamps of admitted requests.
// All methods are safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	entries map[Identity][]time.Time
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{entries: make(map[Identity][]time.Time)}
}

// Record appends ts to the identity's log.
func (s *Store) Record(identity Identity, ts time.Time) {
	s.mu.Lock()
	s.recordLocked(identity, ts)
	s.mu.Unlock()
}

// WindowCount returns how many timestamps fall in (now-window, now].
func (s *Store) WindowCount(identity Identity, now time.Time, window time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	lo, hi := windowBounds(s.entries[identity], now, window)
	return hi - lo
}

// EarliestInWindow returns the oldest timestamp in (now-window, now].
func (s *Store) EarliestInWindow(identity Identity, now time.Time, window time.Duration) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return earliestLocked(s.entries[identity], now, window)
}

// Prune drops timestamps at or before now-retention and forgets identities left empty.
func (s *Store) Prune(now time.Time, retention time.Duration) {
	s.mu.Lock()
	s.pruneLocked(now, retention)
	s.mu.Unlock()
}

// Len returns the number of tracked identities.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) recordLocked(identity Identity, ts time.Time) {
	log := s.entries[identity]
	n := len(log)
	if n == 0 || !ts.Before(log[n-1]) {
		s.entries[identity] = append(log, ts)
		return
	}
	// Out-of-order clock reading: insert in place to keep the log sorted.
	idx := sort.Search(n, func(i int) bool { return log[i].After(ts) })
	log = append(log, time.Time{})
	copy(log[idx+1:], log[idx:])
	log[idx] = ts
	s.entries[identity] = log
}

func (s *Store) pruneLocked(now time.Time, retention time.Duration) {
	cutoff := now.Add(-retention)
	for identity, log := range s.entries {
		idx := sort.Search(len(log), func(i int) bool { return log[i].After(cutoff) })
		if idx == 0 {
			continue
		}
		if idx == len(log) {
			delete(s.entries, identity)
			continue
		}
		kept := make([]time.Time, len(log)-idx)
		copy(kept, log[idx:])
		s.entries[identity] = kept
	}
}

// windowBounds returns the half-open index range of log entries in (now-window, now].
func windowBounds(log []time.Time, now time.Time, window time.Duration) (int, int) {
	cutoff := now.Add(-window)
	lo := sort.Search(len(log), func(i int) bool { return log[i].After(cutoff) })
	hi := sort.Search(len(log), func(i int) bool { return log[i].After(now) })
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func earliestLocked(log []time.Time, now time.Time, window time.Duration) (time.Time, bool) {
	lo, hi := windowBounds(log, now, window)
	if lo >= hi {
		return time.Time{}, false
	}
	return log[lo], true
}
