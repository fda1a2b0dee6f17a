// Package allocator provides the raw allocation boundary used by owned objects.
// Allocations are described by a Layout (size, alignment and, for memory that
// holds pointers, the Go type) so that the garbage collector always sees a
// correct pointer map for the storage it hands out.
package allocator

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/orizon-lang/sharedref/internal/errors"
	"github.com/orizon-lang/sharedref/internal/logger"
)

// AllocatorKind defines the type of allocator.
type AllocatorKind int

const (
	SystemAllocatorKind AllocatorKind = iota
	ArenaAllocatorKind
	PoolAllocatorKind
)

func (k AllocatorKind) String() string {
	switch k {
	case SystemAllocatorKind:
		return "system"
	case ArenaAllocatorKind:
		return "arena"
	case PoolAllocatorKind:
		return "pool"
	default:
		return fmt.Sprintf("AllocatorKind(%d)", int(k))
	}
}

// ParseKind maps a kind name back to its AllocatorKind.
func ParseKind(name string) (AllocatorKind, error) {
	switch name {
	case "system":
		return SystemAllocatorKind, nil
	case "arena":
		return ArenaAllocatorKind, nil
	case "pool":
		return PoolAllocatorKind, nil
	}
	return 0, fmt.Errorf("unknown allocator kind: %q", name)
}

// Allocator defines the interface for memory allocators.
//
// Allocate never returns a nil pointer without an error. Deallocate must be
// given the exact layout the pointer was allocated with; anything else is a
// programming error and panics.
type Allocator interface {
	Allocate(layout Layout) (unsafe.Pointer, error)
	Deallocate(ptr unsafe.Pointer, layout Layout)
	Stats() AllocatorStats
}

// AllocatorStats provides allocation statistics.
type AllocatorStats struct {
	TotalAllocated    uintptr `json:"total_allocated"`
	TotalFreed        uintptr `json:"total_freed"`
	ActiveAllocations int     `json:"active_allocations"`
	PeakAllocations   int     `json:"peak_allocations"`
	AllocationCount   uint64  `json:"allocation_count"`
	FreeCount         uint64  `json:"free_count"`
	BytesInUse        uintptr `json:"bytes_in_use"`
	SystemMemory      uintptr `json:"system_memory"`
}

var (
	globalMu        sync.RWMutex
	globalAllocator Allocator
)

// Initialize sets up the process default allocator.
func Initialize(kind AllocatorKind, options ...Option) error {
	config := defaultConfig()
	for _, opt := range options {
		opt(config)
	}

	alloc, err := New(kind, config)
	if err != nil {
		return err
	}

	SetDefault(alloc)
	return nil
}

// New builds an allocator of the given kind from config.
func New(kind AllocatorKind, config *Config) (Allocator, error) {
	if config == nil {
		config = defaultConfig()
	}

	switch kind {
	case SystemAllocatorKind:
		return NewSystemAllocator(config), nil
	case ArenaAllocatorKind:
		alloc, err := NewArenaAllocator(config.ArenaSize, config)
		if err != nil {
			return nil, fmt.Errorf("failed to create arena allocator: %w", err)
		}
		return alloc, nil
	case PoolAllocatorKind:
		return NewPoolAllocator(config), nil
	default:
		return nil, fmt.Errorf("unknown allocator kind: %v", kind)
	}
}

// Default returns the process default allocator, installing a
// SystemAllocator on first use.
func Default() Allocator {
	globalMu.RLock()
	alloc := globalAllocator
	globalMu.RUnlock()
	if alloc != nil {
		return alloc
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalAllocator == nil {
		globalAllocator = NewSystemAllocator(defaultConfig())
	}
	return globalAllocator
}

// SetDefault replaces the process default allocator. Blocks already handed
// out must still be returned to the allocator that produced them.
func SetDefault(alloc Allocator) {
	globalMu.Lock()
	globalAllocator = alloc
	globalMu.Unlock()
}

// budget enforces the memory and live-allocation limits shared by the
// allocators. Reservation is a CAS loop so two racing requests cannot both
// squeeze under the limit.
type budget struct {
	limit   uintptr
	maxLive int64
	inUse   atomic.Uintptr
	live    atomic.Int64
	peak    atomic.Int64
}

func newBudget(config *Config) *budget {
	return &budget{limit: config.MemoryLimit, maxLive: int64(config.MaxAllocations)}
}

func (b *budget) reserve(layout Layout, size uintptr) error {
	for {
		cur := b.inUse.Load()
		if b.limit > 0 && (cur+size < cur || cur+size > b.limit) {
			return errors.OutOfMemory(layout.Size, layout.Align, b.limit)
		}
		if b.inUse.CompareAndSwap(cur, cur+size) {
			break
		}
	}

	live := b.live.Add(1)
	if b.maxLive > 0 && live > b.maxLive {
		b.live.Add(-1)
		b.inUse.Add(^(size - 1))
		return errors.AllocationLimit(int(live-1), int(b.maxLive))
	}

	for {
		peak := b.peak.Load()
		if live <= peak || b.peak.CompareAndSwap(peak, live) {
			return nil
		}
	}
}

func (b *budget) release(size uintptr) {
	b.inUse.Add(^(size - 1))
	b.live.Add(-1)
}

// tracker records live blocks for double-free detection and leak reports.
type tracker struct {
	config *Config
	live   map[unsafe.Pointer]*AllocationInfo
	mu     sync.Mutex
}

// AllocationInfo is the metadata kept for each live block.
type AllocationInfo struct {
	StackTrace []uintptr
	Layout     Layout
	Timestamp  int64
}

func newTracker(config *Config) *tracker {
	return &tracker{config: config, live: make(map[unsafe.Pointer]*AllocationInfo)}
}

func (t *tracker) enabled() bool {
	return t.config.EnableTracking
}

func (t *tracker) add(ptr unsafe.Pointer, layout Layout) {
	if !t.enabled() {
		return
	}

	info := &AllocationInfo{Layout: layout, Timestamp: getTimestamp()}
	if t.config.EnableDebug {
		info.StackTrace = captureStackTrace()
	}

	t.mu.Lock()
	t.live[ptr] = info
	t.mu.Unlock()
}

// remove forgets ptr, panicking on double free or a layout that differs
// from the one used at allocation time.
func (t *tracker) remove(ptr unsafe.Pointer, layout Layout) {
	if !t.enabled() {
		return
	}

	t.mu.Lock()
	info, ok := t.live[ptr]
	if ok && info.Layout.Size == layout.Size && info.Layout.Align == layout.Align {
		delete(t.live, ptr)
	}
	t.mu.Unlock()

	if !ok {
		err := errors.DoubleFree(uintptr(ptr))
		logger.Error("deallocation of unknown block", "ptr", fmt.Sprintf("%p", ptr), "size", layout.Size)
		panic(err)
	}
	if info.Layout.Size != layout.Size || info.Layout.Align != layout.Align {
		err := errors.LayoutMismatch(uintptr(ptr), layout.Size, layout.Align, info.Layout.Size, info.Layout.Align)
		logger.Error("deallocation layout mismatch", "ptr", fmt.Sprintf("%p", ptr), "error", err)
		panic(err)
	}
}

func (t *tracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.live)
}

func (t *tracker) leaks() []LeakInfo {
	if !t.config.EnableLeakCheck || !t.enabled() {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	leaks := make([]LeakInfo, 0, len(t.live))
	for ptr, info := range t.live {
		leaks = append(leaks, LeakInfo{
			Pointer:    ptr,
			Layout:     info.Layout,
			Timestamp:  info.Timestamp,
			StackTrace: info.StackTrace,
		})
	}

	return leaks
}
