package allocator

import (
	"reflect"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/orizon-lang/sharedref/internal/errors"
	"github.com/orizon-lang/sharedref/internal/logger"
)

// PoolAllocator recycles freed storage per Go type. Repeatedly allocating
// and freeing the same layout (the common shape of short-lived owned
// objects) then stops hitting the heap. Raw layouts are served as arrays of
// machine words, so they cannot ask for more than word alignment.
type PoolAllocator struct {
	config  *Config
	budget  *budget
	tracker *tracker
	pools   sync.Map // reflect.Type -> *typedPool
	misses  atomic.Uint64
	hits    atomic.Uint64
	frees   atomic.Uint64
	total   atomic.Uintptr
	freed   atomic.Uintptr
}

type typedPool struct {
	typ  reflect.Type
	pool sync.Pool
	live atomic.Int64
}

// PoolInfo describes one per-type pool.
type PoolInfo struct {
	Type string
	Live int64
}

// PoolStats summarises reuse across all pools.
type PoolStats struct {
	Pools  int
	Hits   uint64
	Misses uint64
}

var wordType = reflect.TypeFor[uint64]()

// NewPoolAllocator creates a new pool allocator.
func NewPoolAllocator(config *Config) *PoolAllocator {
	if config == nil {
		config = defaultConfig()
	}
	return &PoolAllocator{
		config:  config,
		budget:  newBudget(config),
		tracker: newTracker(config),
	}
}

// Allocate implements Allocator.
func (pa *PoolAllocator) Allocate(layout Layout) (unsafe.Pointer, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	p, err := pa.poolFor(layout)
	if err != nil {
		return nil, err
	}

	size := pa.config.accountedSize(layout)
	if err := pa.budget.reserve(layout, size); err != nil {
		logger.Warn("pool allocation refused", "layout", layout.String(), "error", err)
		return nil, err
	}

	var ptr unsafe.Pointer
	if v := p.pool.Get(); v != nil {
		ptr = v.(unsafe.Pointer)
		pa.hits.Add(1)
	} else {
		ptr = reflect.New(p.typ).UnsafePointer()
		pa.misses.Add(1)
	}

	p.live.Add(1)
	pa.tracker.add(ptr, layout)
	pa.total.Add(size)

	return ptr, nil
}

// Deallocate implements Allocator. The storage is zeroed and kept for the
// next allocation of the same type.
func (pa *PoolAllocator) Deallocate(ptr unsafe.Pointer, layout Layout) {
	if ptr == nil {
		return
	}

	pa.tracker.remove(ptr, layout)

	p, err := pa.poolFor(layout)
	if err != nil {
		panic(err)
	}

	reflect.NewAt(p.typ, ptr).Elem().SetZero()
	p.live.Add(-1)
	p.pool.Put(ptr)

	size := pa.config.accountedSize(layout)
	pa.budget.release(size)
	pa.freed.Add(size)
	pa.frees.Add(1)
}

func (pa *PoolAllocator) poolFor(layout Layout) (*typedPool, error) {
	typ := layout.Type
	if typ == nil {
		if layout.Align > uintptr(wordType.Align()) {
			return nil, errors.InvalidAlignment(layout.Align, "pool raw layout")
		}
		words := (layout.Size + uintptr(wordType.Size()) - 1) / uintptr(wordType.Size())
		typ = reflect.ArrayOf(int(words), wordType)
	}

	if p, ok := pa.pools.Load(typ); ok {
		return p.(*typedPool), nil
	}
	p, _ := pa.pools.LoadOrStore(typ, &typedPool{typ: typ})
	return p.(*typedPool), nil
}

// Stats implements Allocator.
func (pa *PoolAllocator) Stats() AllocatorStats {
	return AllocatorStats{
		TotalAllocated:    pa.total.Load(),
		TotalFreed:        pa.freed.Load(),
		ActiveAllocations: int(pa.budget.live.Load()),
		PeakAllocations:   int(pa.budget.peak.Load()),
		AllocationCount:   pa.hits.Load() + pa.misses.Load(),
		FreeCount:         pa.frees.Load(),
		BytesInUse:        pa.budget.inUse.Load(),
	}
}

// GetPoolStats reports how often storage was reused.
func (pa *PoolAllocator) GetPoolStats() PoolStats {
	stats := PoolStats{Hits: pa.hits.Load(), Misses: pa.misses.Load()}
	pa.pools.Range(func(_, _ any) bool {
		stats.Pools++
		return true
	})
	return stats
}

// GetPoolInfo lists the per-type pools created so far.
func (pa *PoolAllocator) GetPoolInfo() []PoolInfo {
	var info []PoolInfo
	pa.pools.Range(func(_, v any) bool {
		p := v.(*typedPool)
		info = append(info, PoolInfo{Type: p.typ.String(), Live: p.live.Load()})
		return true
	})
	return info
}

// CheckLeaks lists blocks that were allocated and never deallocated.
func (pa *PoolAllocator) CheckLeaks() []LeakInfo {
	return pa.tracker.leaks()
}
