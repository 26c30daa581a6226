// Package control keeps the active rule set current while the relay runs.
package control

import (
	"sync"

	"ledgerRelay/internal/filter"
)

// Cell holds the current compiled rule set. It has one writer and any number
// of readers; the last write wins and readers are told about it through
// Changed.
type Cell struct {
	mu      sync.RWMutex
	set     *filter.Set
	version uint64
	changed chan struct{}
}

func NewCell(initial *filter.Set) *Cell {
	return &Cell{set: initial, version: 1, changed: make(chan struct{})}
}

// Load returns the current rule set and its version.
func (c *Cell) Load() (*filter.Set, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.set, c.version
}

// Store replaces the rule set and wakes every reader waiting on Changed.
func (c *Cell) Store(set *filter.Set) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set = set
	c.version++
	close(c.changed)
	c.changed = make(chan struct{})
	return c.version
}

// Changed returns a channel that is closed once the cell holds a version
// newer than version.
func (c *Cell) Changed(version uint64) <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.version > version {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.changed
}
