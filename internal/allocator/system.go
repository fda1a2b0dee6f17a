package allocator

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/orizon-lang/sharedref/internal/logger"
)

// SystemAllocator allocates from the Go heap. Typed layouts get storage from
// reflect.New so the collector knows where their pointers are; raw layouts
// get an over-sized byte slice aligned by hand.
type SystemAllocator struct {
	config          *Config
	budget          *budget
	tracker         *tracker
	totalAllocated  atomic.Uintptr
	totalFreed      atomic.Uintptr
	allocationCount atomic.Uint64
	freeCount       atomic.Uint64
}

// NewSystemAllocator creates a new system allocator.
func NewSystemAllocator(config *Config) *SystemAllocator {
	if config == nil {
		config = defaultConfig()
	}
	return &SystemAllocator{
		config:  config,
		budget:  newBudget(config),
		tracker: newTracker(config),
	}
}

// Allocate implements Allocator.
func (sa *SystemAllocator) Allocate(layout Layout) (unsafe.Pointer, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	size := sa.config.accountedSize(layout)
	if err := sa.budget.reserve(layout, size); err != nil {
		logger.Warn("system allocation refused", "layout", layout.String(), "error", err)
		return nil, err
	}

	ptr := heapAlloc(layout)
	sa.tracker.add(ptr, layout)

	sa.totalAllocated.Add(size)
	sa.allocationCount.Add(1)

	return ptr, nil
}

// Deallocate implements Allocator. The storage itself is reclaimed by the
// collector once nothing references it.
func (sa *SystemAllocator) Deallocate(ptr unsafe.Pointer, layout Layout) {
	if ptr == nil {
		return
	}

	sa.tracker.remove(ptr, layout)

	size := sa.config.accountedSize(layout)
	sa.budget.release(size)
	sa.totalFreed.Add(size)
	sa.freeCount.Add(1)
}

// TotalAllocated returns total allocated bytes.
func (sa *SystemAllocator) TotalAllocated() uintptr {
	return sa.totalAllocated.Load()
}

// TotalFreed returns total freed bytes.
func (sa *SystemAllocator) TotalFreed() uintptr {
	return sa.totalFreed.Load()
}

// ActiveAllocations returns the number of live blocks.
func (sa *SystemAllocator) ActiveAllocations() int {
	return int(sa.budget.live.Load())
}

// Stats implements Allocator.
func (sa *SystemAllocator) Stats() AllocatorStats {
	return AllocatorStats{
		TotalAllocated:    sa.totalAllocated.Load(),
		TotalFreed:        sa.totalFreed.Load(),
		ActiveAllocations: int(sa.budget.live.Load()),
		PeakAllocations:   int(sa.budget.peak.Load()),
		AllocationCount:   sa.allocationCount.Load(),
		FreeCount:         sa.freeCount.Load(),
		BytesInUse:        sa.budget.inUse.Load(),
		SystemMemory:      getSystemMemory(),
	}
}

// CheckLeaks lists blocks that were allocated and never deallocated.
func (sa *SystemAllocator) CheckLeaks() []LeakInfo {
	return sa.tracker.leaks()
}

func heapAlloc(layout Layout) unsafe.Pointer {
	if layout.Type != nil {
		return reflect.New(layout.Type).UnsafePointer()
	}

	buf := make([]byte, layout.Size+layout.Align-1)
	base := uintptr(unsafe.Pointer(&buf[0]))
	return unsafe.Pointer(&buf[alignUp(base, layout.Align)-base])
}

// LeakInfo represents information about a memory leak.
type LeakInfo struct {
	Pointer    unsafe.Pointer
	StackTrace []uintptr
	Layout     Layout
	Timestamp  int64
}

// FormatLeaks formats leak information for display.
func FormatLeaks(leaks []LeakInfo) string {
	if len(leaks) == 0 {
		return "No memory leaks detected"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Detected %d memory leaks:\n", len(leaks))
	for i, leak := range leaks {
		fmt.Fprintf(&b, "  Leak %d: %s at %p\n", i+1, leak.Layout, leak.Pointer)
		if len(leak.StackTrace) > 0 {
			b.WriteString("    Stack trace:\n")
			frames := runtime.CallersFrames(leak.StackTrace)

			for {
				frame, more := frames.Next()
				fmt.Fprintf(&b, "      %s:%d %s\n", frame.File, frame.Line, frame.Function)

				if !more {
					break
				}
			}
		}
	}

	return b.String()
}

func getTimestamp() int64 {
	return time.Now().UnixNano()
}

// captureStackTrace captures the stack of the caller of Allocate.
func captureStackTrace() []uintptr {
	var pcs [32]uintptr
	n := runtime.Callers(4, pcs[:])

	return pcs[:n]
}

// getSystemMemory returns memory obtained from the OS by the Go runtime.
func getSystemMemory() uintptr {
	var m runtime.MemStats

	runtime.ReadMemStats(&m)

	return uintptr(m.Sys)
}
