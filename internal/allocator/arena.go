package allocator

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/orizon-lang/sharedref/internal/errors"
	"github.com/orizon-lang/sharedref/internal/logger"
)

// ArenaAllocator is a bump allocator over a single mapped region. The region
// is invisible to the garbage collector, so only pointer-free layouts are
// accepted. Individual frees only reclaim space when they release the most
// recent block; everything else waits for Reset.
type ArenaAllocator struct {
	config         *Config
	buffer         []byte
	unmap          func() error
	tops           map[uintptr]uintptr // block offset -> end offset
	current        uintptr
	size           uintptr
	allocations    uint64
	frees          uint64
	live           int
	peakLive       int
	totalAllocated uintptr
	totalFreed     uintptr
	peakUsage      uintptr
	mu             sync.Mutex
}

// NewArenaAllocator maps a region of size bytes and allocates from it.
func NewArenaAllocator(size uintptr, config *Config) (*ArenaAllocator, error) {
	if size == 0 {
		return nil, errors.InvalidSize(size, "arena")
	}
	if config == nil {
		config = defaultConfig()
	}

	buffer, unmap, err := mapRegion(size)
	if err != nil {
		return nil, fmt.Errorf("failed to map arena region: %w", err)
	}
	logger.Debug("arena mapped", "size", size)

	return &ArenaAllocator{
		config: config,
		buffer: buffer,
		unmap:  unmap,
		tops:   make(map[uintptr]uintptr),
		size:   size,
	}, nil
}

// Allocate implements Allocator.
func (aa *ArenaAllocator) Allocate(layout Layout) (unsafe.Pointer, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if layout.HasPointers() {
		return nil, errors.PointerLayout(layout.Type.String())
	}

	aa.mu.Lock()
	defer aa.mu.Unlock()

	if aa.buffer == nil {
		return nil, errors.OutOfMemory(layout.Size, layout.Align, 0)
	}

	base := uintptr(unsafe.Pointer(&aa.buffer[0]))
	start := alignUp(base+aa.current, layout.Align) - base
	end := start + alignUp(layout.Size, aa.granule())

	if end > aa.size || end < start {
		logger.Warn("arena exhausted", "layout", layout.String(), "used", aa.current, "size", aa.size)
		return nil, errors.OutOfMemory(layout.Size, layout.Align, aa.size-aa.current)
	}

	ptr := unsafe.Pointer(&aa.buffer[start])

	aa.tops[start] = end
	aa.totalAllocated += end - start
	aa.current = end
	aa.allocations++
	aa.live++

	if aa.live > aa.peakLive {
		aa.peakLive = aa.live
	}
	if aa.current > aa.peakUsage {
		aa.peakUsage = aa.current
	}

	return ptr, nil
}

// Deallocate implements Allocator. Space is reclaimed only when ptr is the
// most recent live block.
func (aa *ArenaAllocator) Deallocate(ptr unsafe.Pointer, layout Layout) {
	if ptr == nil {
		return
	}

	aa.mu.Lock()
	defer aa.mu.Unlock()

	if aa.buffer == nil {
		panic(errors.DoubleFree(uintptr(ptr)))
	}

	base := uintptr(unsafe.Pointer(&aa.buffer[0]))
	start := uintptr(ptr) - base
	end, ok := aa.tops[start]
	if uintptr(ptr) < base || !ok {
		panic(errors.DoubleFree(uintptr(ptr)))
	}
	if want := start + alignUp(layout.Size, aa.granule()); want != end {
		panic(errors.LayoutMismatch(uintptr(ptr), layout.Size, layout.Align, end-start, layout.Align))
	}

	delete(aa.tops, start)
	aa.totalFreed += end - start
	aa.frees++
	aa.live--

	switch {
	case aa.live == 0:
		aa.current = 0
	case end == aa.current:
		aa.current = start
	}
}

func (aa *ArenaAllocator) granule() uintptr {
	if aa.config.AlignmentSize == 0 {
		return 1
	}
	return aa.config.AlignmentSize
}

// Stats implements Allocator.
func (aa *ArenaAllocator) Stats() AllocatorStats {
	aa.mu.Lock()
	defer aa.mu.Unlock()

	return AllocatorStats{
		TotalAllocated:    aa.totalAllocated,
		TotalFreed:        aa.totalFreed,
		ActiveAllocations: aa.live,
		PeakAllocations:   aa.peakLive,
		AllocationCount:   aa.allocations,
		FreeCount:         aa.frees,
		BytesInUse:        aa.current,
		SystemMemory:      aa.size,
	}
}

// Reset rewinds the arena. Blocks handed out earlier become invalid.
func (aa *ArenaAllocator) Reset() {
	aa.mu.Lock()
	defer aa.mu.Unlock()

	aa.current = 0
	aa.live = 0
	clear(aa.tops)
}

// Close unmaps the region. The arena cannot be used afterwards.
func (aa *ArenaAllocator) Close() error {
	aa.mu.Lock()
	defer aa.mu.Unlock()

	if aa.buffer == nil {
		return nil
	}

	aa.buffer = nil
	clear(aa.tops)
	logger.Debug("arena unmapped", "size", aa.size)

	return aa.unmap()
}

// Available returns the amount of available space in the arena.
func (aa *ArenaAllocator) Available() uintptr {
	aa.mu.Lock()
	defer aa.mu.Unlock()

	return aa.size - aa.current
}

// Used returns the amount of used space in the arena.
func (aa *ArenaAllocator) Used() uintptr {
	aa.mu.Lock()
	defer aa.mu.Unlock()

	return aa.current
}

// Size returns the total size of the arena.
func (aa *ArenaAllocator) Size() uintptr {
	return aa.size
}

// PeakUsage returns the peak memory usage.
func (aa *ArenaAllocator) PeakUsage() uintptr {
	aa.mu.Lock()
	defer aa.mu.Unlock()

	return aa.peakUsage
}

// SaveState saves the current state of the arena.
func (aa *ArenaAllocator) SaveState() ArenaState {
	aa.mu.Lock()
	defer aa.mu.Unlock()

	return ArenaState{
		Current: aa.current,
		Live:    aa.live,
	}
}

// RestoreState rewinds the arena to a previous state, dropping every block
// allocated since.
func (aa *ArenaAllocator) RestoreState(state ArenaState) {
	aa.mu.Lock()
	defer aa.mu.Unlock()

	if state.Current > aa.current {
		return
	}

	for start := range aa.tops {
		if start >= state.Current {
			delete(aa.tops, start)
		}
	}
	aa.current = state.Current
	aa.live = state.Live
}

// ArenaState represents the state of an arena allocator.
type ArenaState struct {
	Current uintptr
	Live    int
}
