// Package state caches external entity states for rendering.
package state

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	On  = "on"
	Off = "off"
)

// Entry is a cached entity state with the time it was written.
// Optimistic entries are local predictions not yet confirmed by a poll.
type Entry struct {
	State      string
	UpdatedAt  time.Time
	Optimistic bool
}

// Cache is a pure cache of entity states.
// It never fetches from the network; callers merge poll results in.
type Cache struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// Get returns the cached state for id
func (c *Cache) Get(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	return e.State, ok
}

// Entry returns the full cache entry for id
func (c *Cache) Entry(id string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	return e, ok
}

// Set stores an authoritative state
func (c *Cache) Set(id, state string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[id] = Entry{State: state, UpdatedAt: time.Now()}
}

// Merge overwrites cached entries with freshly polled states.
func (c *Cache) Merge(states map[string]string) {
	if len(states) == 0 {
		return
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for id, s := range states {
		prev, had := c.entries[id]
		if had && prev.Optimistic && prev.State != s {
			log.Debug().
				Str("entity", id).
				Str("predicted", prev.State).
				Str("actual", s).
				Msg("Optimistic state corrected")
		}
		c.entries[id] = Entry{State: s, UpdatedAt: now}
	}
}

// Snapshot returns the cached states for ids. Missing ids are omitted.
func (c *Cache) Snapshot(ids []string) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if e, ok := c.entries[id]; ok {
			out[id] = e.State
		}
	}
	return out
}

// Toggle flips id between on and off and returns the predicted state.
// Anything other than "on", including a missing entry, becomes "on".
func (c *Cache) Toggle(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := On
	if e, ok := c.entries[id]; ok && e.State == On {
		next = Off
	}
	c.entries[id] = Entry{State: next, UpdatedAt: time.Now(), Optimistic: true}
	return next
}

// Len returns the number of cached entities
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
