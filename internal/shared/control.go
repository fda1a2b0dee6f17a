package shared

import (
	"sync/atomic"
	"unsafe"

	"github.com/orizon-lang/sharedref/internal/allocator"
	"github.com/orizon-lang/sharedref/internal/errors"
	"github.com/orizon-lang/sharedref/internal/lifetime"
)

// control is the reference-counted identity of one owned allocation. The
// set of implementations is closed: separateBlock and fusedBlock.
type control interface {
	retain()
	tryRetain() bool
	release()
	count() int64
	id() uintptr
}

// refCount is the counter embedded in every control block. It starts at one
// for the handle that creates the block.
type refCount struct {
	refs atomic.Int64
}

func (rc *refCount) retain() {
	rc.refs.Add(1)
}

// tryRetain adds a reference unless the count already reached zero. Only
// self-reference derivation needs it: every other caller holds a live handle.
func (rc *refCount) tryRetain() bool {
	for {
		n := rc.refs.Load()
		if n <= 0 {
			return false
		}
		if rc.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// drop removes one reference and reports whether it was the last one. The
// decrement and the observation are the same atomic operation, so exactly
// one caller ever sees true.
func (rc *refCount) drop() bool {
	n := rc.refs.Add(-1)
	if n < 0 {
		panic(errors.DeadReference(n))
	}
	return n == 0
}

func (rc *refCount) count() int64 {
	return rc.refs.Load()
}

// separateBlock owns an object that was allocated on its own. The block
// itself lives in an allocation from alloc.
type separateBlock[E any] struct {
	refCount
	obj     *E
	deleter lifetime.Deleter[E]
	alloc   allocator.Allocator
	layout  allocator.Layout
}

func newSeparateBlock[E any](p *E, d lifetime.Deleter[E], alloc allocator.Allocator) (*separateBlock[E], error) {
	layout := allocator.LayoutOf[separateBlock[E]]()
	mem, err := alloc.Allocate(layout)
	if err != nil {
		return nil, err
	}

	b := (*separateBlock[E])(mem)
	b.refs.Store(1)
	b.obj = p
	b.deleter = d
	b.alloc = alloc
	b.layout = layout
	return b, nil
}

func (b *separateBlock[E]) release() {
	if !b.drop() {
		return
	}

	obj, deleter, alloc, layout := b.obj, b.deleter, b.alloc, b.layout
	b.obj, b.deleter = nil, nil

	defer alloc.Deallocate(unsafe.Pointer(b), layout)
	unwireSelf(obj, b)
	deleter(obj)
}

func (b *separateBlock[E]) id() uintptr {
	return uintptr(unsafe.Pointer(b))
}

// fusedBlock is the header of a fusedSlot: the block and the object share one
// allocation. The last release destroys the object in place and only then
// returns the whole slot to the allocator, with the layout it was allocated
// with.
type fusedBlock[E any] struct {
	refCount
	obj     *E
	mem     unsafe.Pointer
	deleter lifetime.Deleter[E]
	alloc   allocator.Allocator
	layout  allocator.Layout
}

// fusedSlot places the header at offset zero and the object at the first
// offset after it that satisfies E's alignment.
type fusedSlot[E any] struct {
	hdr fusedBlock[E]
	obj E
}

func (b *fusedBlock[E]) release() {
	if !b.drop() {
		return
	}

	obj, deleter, mem, alloc, layout := b.obj, b.deleter, b.mem, b.alloc, b.layout

	defer alloc.Deallocate(mem, layout)
	unwireSelf(obj, b)
	deleter(obj)
}

func (b *fusedBlock[E]) id() uintptr {
	return uintptr(unsafe.Pointer(b))
}
