package allocator

import (
	"sync/atomic"
	"unsafe"

	"github.com/orizon-lang/sharedref/internal/errors"
)

// CountingAllocator decorates another allocator with call counters and
// optional fault injection. Tests use it to check that owned objects
// give back exactly what they took.
type CountingAllocator struct {
	inner       Allocator
	allocations atomic.Int64
	frees       atomic.Int64
	liveBytes   atomic.Int64
	failures    atomic.Int64
	remaining   atomic.Int64 // successful allocations left before failing; <0 disables
	failAfter   atomic.Int64
}

// NewCountingAllocator wraps inner, or the process default when inner is nil.
func NewCountingAllocator(inner Allocator) *CountingAllocator {
	if inner == nil {
		inner = Default()
	}
	c := &CountingAllocator{inner: inner}
	c.remaining.Store(-1)
	return c
}

// FailAfter lets n more allocations succeed and fails every one after that.
// A negative n disables fault injection.
func (c *CountingAllocator) FailAfter(n int) {
	c.failAfter.Store(int64(n))
	c.remaining.Store(int64(n))
}

// Allocate implements Allocator.
func (c *CountingAllocator) Allocate(layout Layout) (unsafe.Pointer, error) {
	if c.remaining.Load() >= 0 && c.remaining.Add(-1) < 0 {
		c.failures.Add(1)
		return nil, errors.InjectedFailure(int(c.failAfter.Load()))
	}

	ptr, err := c.inner.Allocate(layout)
	if err != nil {
		c.failures.Add(1)
		return nil, err
	}

	c.allocations.Add(1)
	c.liveBytes.Add(int64(layout.Size))
	return ptr, nil
}

// Deallocate implements Allocator.
func (c *CountingAllocator) Deallocate(ptr unsafe.Pointer, layout Layout) {
	if ptr == nil {
		return
	}
	c.inner.Deallocate(ptr, layout)
	c.frees.Add(1)
	c.liveBytes.Add(-int64(layout.Size))
}

// Stats implements Allocator by reporting the wrapped allocator's view.
func (c *CountingAllocator) Stats() AllocatorStats {
	return c.inner.Stats()
}

// Allocations returns the number of successful allocations.
func (c *CountingAllocator) Allocations() int64 { return c.allocations.Load() }

// Deallocations returns the number of deallocations.
func (c *CountingAllocator) Deallocations() int64 { return c.frees.Load() }

// Failures returns the number of refused allocations.
func (c *CountingAllocator) Failures() int64 { return c.failures.Load() }

// Live returns allocations minus deallocations.
func (c *CountingAllocator) Live() int64 {
	return c.allocations.Load() - c.frees.Load()
}

// LiveBytes returns the requested bytes not yet given back.
func (c *CountingAllocator) LiveBytes() int64 { return c.liveBytes.Load() }

// Unwrap returns the decorated allocator.
func (c *CountingAllocator) Unwrap() Allocator { return c.inner }
