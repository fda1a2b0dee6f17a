package shared

import (
	"reflect"
	"unsafe"

	"github.com/orizon-lang/sharedref/internal/allocator"
	"github.com/orizon-lang/sharedref/internal/errors"
	"github.com/orizon-lang/sharedref/internal/lifetime"
	"github.com/orizon-lang/sharedref/internal/logger"
)

// Make constructs an E and its control block in a single allocation. init
// runs on the zeroed object before any handle exists. If init returns an
// error or panics, the allocation is returned to the allocator and no handle
// is produced; the error wraps ErrConstruction and the cause.
//
// The object is finalized by its Destroy hook, if any, and then zeroed; the
// storage goes back to the allocator that provided it.
func Make[E any](init func(*E) error, opts ...Option) (*Ref[*E], error) {
	o := newOptions(opts)
	layout := allocator.LayoutOf[fusedSlot[E]]()

	mem, err := o.alloc.Allocate(layout)
	if err != nil {
		logger.Debug("fused allocation failed", "type", typeName[E](), "layout", layout.String(), "error", err)
		return nil, err
	}

	slot := (*fusedSlot[E])(mem)
	committed := false
	defer func() {
		if !committed {
			o.alloc.Deallocate(mem, layout)
		}
	}()

	if init != nil {
		if err := init(&slot.obj); err != nil {
			logger.Debug("construction failed", "type", typeName[E](), "error", err)
			return nil, errors.ConstructionFailed(typeName[E](), err)
		}
	}

	hdr := &slot.hdr
	hdr.refs.Store(1)
	hdr.obj = &slot.obj
	hdr.mem = mem
	hdr.deleter = lifetime.DestroyInPlace[E]
	hdr.alloc = o.alloc
	hdr.layout = layout
	committed = true

	wireSelf(hdr.obj, hdr)
	return &Ref[*E]{ptr: hdr.obj, ctrl: hdr}, nil
}

// MakeValue is Make with the object initialized to a copy of v.
func MakeValue[E any](v E, opts ...Option) (*Ref[*E], error) {
	return Make(func(p *E) error {
		*p = v
		return nil
	}, opts...)
}

// MakeZero is Make with no constructor: the object is the zero E.
func MakeZero[E any](opts ...Option) (*Ref[*E], error) {
	return Make[E](nil, opts...)
}

// NewIn constructs an E in storage taken from a and adopts it. Only the
// object comes from a; the control block comes from the handle's allocator,
// so a may be an arena that accepts nothing but pointer-free layouts. When the
// last handle is released the object is destroyed in place and its storage
// goes back to a.
func NewIn[E any](a allocator.Allocator, init func(*E) error, opts ...Option) (*Ref[*E], error) {
	p, d, err := allocator.Place[E](a)
	if err != nil {
		logger.Debug("placement failed", "type", typeName[E](), "error", err)
		return nil, err
	}

	adopted := false
	defer func() {
		if !adopted {
			a.Deallocate(unsafe.Pointer(p), allocator.LayoutOf[E]())
		}
	}()

	if init != nil {
		if err := init(p); err != nil {
			logger.Debug("construction failed", "type", typeName[E](), "error", err)
			return nil, errors.ConstructionFailed(typeName[E](), err)
		}
	}

	r, err := AdoptWithDeleter(p, d, opts...)
	if err != nil {
		return nil, err
	}
	adopted = true
	return r, nil
}

// Array is a shared reference to a fixed-length run of elements. The header,
// the slice and the elements live in one allocation; on finalization every
// element's Destroy hook runs in index order.
type Array[E any] struct {
	Ref[*[]E]
}

// MakeSlice allocates n zeroed elements behind a single control block.
func MakeSlice[E any](n int, opts ...Option) (*Array[E], error) {
	if n < 0 {
		return nil, errors.InvalidSize(0, "shared array length")
	}
	// Validates n against the address space before building the slot type.
	if _, err := allocator.ArrayLayout[E](n); err != nil {
		return nil, err
	}

	o := newOptions(opts)
	typ := arraySlotType[E](n)
	layout := allocator.Layout{Size: typ.Size(), Align: uintptr(typ.Align()), Type: typ}

	mem, err := o.alloc.Allocate(layout)
	if err != nil {
		logger.Debug("array allocation failed", "type", typeName[E](), "len", n, "error", err)
		return nil, err
	}

	hdr := (*fusedBlock[[]E])(mem)
	data := (*[]E)(unsafe.Add(mem, typ.Field(1).Offset))
	*data = unsafe.Slice((*E)(unsafe.Add(mem, typ.Field(2).Offset)), n)

	hdr.refs.Store(1)
	hdr.obj = data
	hdr.mem = mem
	hdr.deleter = lifetime.Chain(lifetime.DefaultSlice[E](), clearSlice[E])
	hdr.alloc = o.alloc
	hdr.layout = layout

	return &Array[E]{Ref: Ref[*[]E]{ptr: data, ctrl: hdr}}, nil
}

// arraySlotType builds struct{ Hdr fusedBlock[[]E]; Data []E; Elems [n]E }.
// The header stays at offset zero and the runtime knows where every pointer
// in the slot lives.
func arraySlotType[E any](n int) reflect.Type {
	return reflect.StructOf([]reflect.StructField{
		{Name: "Hdr", Type: reflect.TypeFor[fusedBlock[[]E]]()},
		{Name: "Data", Type: reflect.TypeFor[[]E]()},
		{Name: "Elems", Type: reflect.ArrayOf(n, reflect.TypeFor[E]())},
	})
}

func clearSlice[E any](s *[]E) {
	clear(*s)
	*s = nil
}

// Len returns the number of elements, or 0 for an empty handle.
func (a *Array[E]) Len() int {
	if a.ptr == nil {
		return 0
	}
	return len(*a.ptr)
}

// At returns the address of element i. It panics when i is out of range.
func (a *Array[E]) At(i int) *E {
	if i < 0 || i >= a.Len() {
		panic(errors.IndexOutOfBounds(i, a.Len()))
	}
	return &(*a.ptr)[i]
}

// Slice returns the elements. The slice is valid while a handle is held.
func (a *Array[E]) Slice() []E {
	if a.ptr == nil {
		return nil
	}
	return *a.ptr
}

// Clone returns a new Array handle on the same elements.
func (a *Array[E]) Clone() *Array[E] {
	if a.ctrl != nil {
		a.ctrl.retain()
	}
	return &Array[E]{Ref: Ref[*[]E]{ptr: a.ptr, ctrl: a.ctrl}}
}

// Move transfers ownership to a new Array handle and leaves a empty.
func (a *Array[E]) Move() *Array[E] {
	moved := &Array[E]{Ref: Ref[*[]E]{ptr: a.ptr, ctrl: a.ctrl}}
	a.clear()
	return moved
}
