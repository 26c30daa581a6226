package metrics

import (
	"sync"
	"sync/atomic"
)

type key struct {
	counter Counter
	label   string
}

// Atomic keeps counters in memory. Safe for concurrent use.
type Atomic struct {
	counters sync.Map // key -> *atomic.Uint64
}

func NewAtomic() *Atomic {
	return &Atomic{}
}

func (a *Atomic) Add(c Counter, label string, n uint64) {
	k := key{counter: c, label: label}
	v, ok := a.counters.Load(k)
	if !ok {
		v, _ = a.counters.LoadOrStore(k, new(atomic.Uint64))
	}
	v.(*atomic.Uint64).Add(n)
}

// Get returns the current value of c for label.
func (a *Atomic) Get(c Counter, label string) uint64 {
	v, ok := a.counters.Load(key{counter: c, label: label})
	if !ok {
		return 0
	}
	return v.(*atomic.Uint64).Load()
}

// Total sums c across all labels.
func (a *Atomic) Total(c Counter) uint64 {
	var total uint64
	a.counters.Range(func(k, v any) bool {
		if k.(key).counter == c {
			total += v.(*atomic.Uint64).Load()
		}
		return true
	})
	return total
}
