package shared

import (
	"cmp"
	"fmt"
	"reflect"

	"github.com/orizon-lang/sharedref/internal/lifetime"
	"github.com/orizon-lang/sharedref/internal/logger"
	"github.com/orizon-lang/sharedref/internal/unique"
)

type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Handle is the type-erased view of a shared reference used for comparing
// handles of different pointer types.
type Handle interface {
	// Addr returns the address of the referenced object, or 0.
	Addr() uintptr
	// UseCount returns the number of handles sharing the control block.
	UseCount() int64

	ownerID() uintptr
}

// Ref is a shared reference to an object of pointer or interface type T.
//
// Every non-empty Ref holds one count on a control block. The block finalizes
// the object when the last Ref on it is released. A Ref is used through a
// pointer and duplicated only with Clone; copying the struct would duplicate
// a count without taking it. The zero value is an empty handle.
//
// When T is an interface the stored value must still be a pointer or another
// pointer-shaped value: Addr, Equal and the orderings read its address.
type Ref[T any] struct {
	_    noCopy
	ptr  T
	ctrl control
}

// Null returns an empty handle.
func Null[T any]() *Ref[T] {
	return &Ref[T]{}
}

// Adopt takes ownership of an individually allocated object. When the last
// handle is released the object's Destroy hook runs, if it has one.
//
// If the control block cannot be allocated the error is returned and the
// caller still owns p.
func Adopt[E any](p *E, opts ...Option) (*Ref[*E], error) {
	return AdoptWithDeleter(p, lifetime.Default[E](), opts...)
}

// AdoptWithDeleter is Adopt with a caller supplied deleter. A nil deleter
// means the default one.
func AdoptWithDeleter[E any](p *E, d lifetime.Deleter[E], opts ...Option) (*Ref[*E], error) {
	o := newOptions(opts)
	ctrl, err := newSeparateBlock(p, lifetime.OrDefault(d), o.alloc)
	if err != nil {
		logger.Debug("adopt failed", "type", typeName[E](), "error", err)
		return nil, err
	}

	wireSelf(p, ctrl)
	return &Ref[*E]{ptr: p, ctrl: ctrl}, nil
}

// FromUnique moves ownership out of u, together with u's deleter. The control
// block is allocated before anything is taken from u, so on failure u still
// owns its object. An empty u yields an empty handle.
func FromUnique[E any](u *unique.Ptr[E], opts ...Option) (*Ref[*E], error) {
	if u == nil || u.IsNil() {
		return Null[*E](), nil
	}

	o := newOptions(opts)
	ctrl, err := newSeparateBlock[E](nil, nil, o.alloc)
	if err != nil {
		return nil, err
	}

	p, d := u.Take()
	ctrl.obj, ctrl.deleter = p, d
	wireSelf(p, ctrl)
	return &Ref[*E]{ptr: p, ctrl: ctrl}, nil
}

// ResetWith releases r's current object and makes r the first owner of p.
func ResetWith[E any](r *Ref[*E], p *E, opts ...Option) error {
	return ResetWithDeleter(r, p, lifetime.Default[E](), opts...)
}

// ResetWithDeleter is ResetWith with a caller supplied deleter. The new block
// is allocated first: on failure r is unchanged and the caller still owns p.
func ResetWithDeleter[E any](r *Ref[*E], p *E, d lifetime.Deleter[E], opts ...Option) error {
	o := newOptions(opts)
	ctrl, err := newSeparateBlock(p, lifetime.OrDefault(d), o.alloc)
	if err != nil {
		return err
	}

	wireSelf(p, ctrl)
	old := r.ctrl
	r.ptr, r.ctrl = p, ctrl
	if old != nil {
		old.release()
	}
	return nil
}

// Get returns the referenced object without affecting ownership.
func (r *Ref[T]) Get() T {
	return r.ptr
}

// IsNil reports whether the handle refers to no object. An aliasing handle
// may own a block and still be nil.
func (r *Ref[T]) IsNil() bool {
	return addrOf(r.ptr) == 0
}

// UseCount returns the number of handles sharing r's control block, or 0 for
// an empty handle. Under concurrent use the value is only a snapshot.
func (r *Ref[T]) UseCount() int64 {
	if r.ctrl == nil {
		return 0
	}
	return r.ctrl.count()
}

// Unique reports whether r is the only owner. An empty handle is unique.
func (r *Ref[T]) Unique() bool {
	return r.ctrl == nil || r.ctrl.count() == 1
}

// Clone returns a new handle sharing r's object and control block.
func (r *Ref[T]) Clone() *Ref[T] {
	if r.ctrl != nil {
		r.ctrl.retain()
	}
	return &Ref[T]{ptr: r.ptr, ctrl: r.ctrl}
}

// Assign makes r share other's object, releasing whatever r held before.
// Assigning a handle to itself does nothing.
func (r *Ref[T]) Assign(other *Ref[T]) {
	if r == other {
		return
	}
	if other.ctrl != nil {
		other.ctrl.retain()
	}
	old := r.ctrl
	r.ptr, r.ctrl = other.ptr, other.ctrl
	if old != nil {
		old.release()
	}
}

// Move transfers r's ownership to a new handle and leaves r empty. The count
// does not change.
func (r *Ref[T]) Move() *Ref[T] {
	moved := &Ref[T]{ptr: r.ptr, ctrl: r.ctrl}
	r.clear()
	return moved
}

// MoveFrom releases r's object and takes over other's ownership, leaving
// other empty. Moving a handle into itself does nothing.
func (r *Ref[T]) MoveFrom(other *Ref[T]) {
	if r == other {
		return
	}
	old := r.ctrl
	r.ptr, r.ctrl = other.ptr, other.ctrl
	other.clear()
	if old != nil {
		old.release()
	}
}

// Swap exchanges the contents of two handles. Counts are unchanged.
func (r *Ref[T]) Swap(other *Ref[T]) {
	r.ptr, other.ptr = other.ptr, r.ptr
	r.ctrl, other.ctrl = other.ctrl, r.ctrl
}

// Release gives up r's count and leaves r empty. If r was the last owner the
// object is finalized before Release returns. Releasing an empty handle does
// nothing.
func (r *Ref[T]) Release() {
	ctrl := r.ctrl
	r.clear()
	if ctrl != nil {
		ctrl.release()
	}
}

// Reset is Release under the name the other owner types use.
func (r *Ref[T]) Reset() {
	r.Release()
}

// Close releases the handle and returns nil so it can be deferred like a closer.
func (r *Ref[T]) Close() error {
	r.Release()
	return nil
}

func (r *Ref[T]) clear() {
	var zero T
	r.ptr, r.ctrl = zero, nil
}

// Addr implements Handle.
func (r *Ref[T]) Addr() uintptr {
	return addrOf(r.ptr)
}

func (r *Ref[T]) ownerID() uintptr {
	if r.ctrl == nil {
		return 0
	}
	return r.ctrl.id()
}

// Equal reports whether both handles refer to the same address.
func (r *Ref[T]) Equal(other Handle) bool {
	return r.Addr() == other.Addr()
}

// Less orders handles by the address they refer to.
func (r *Ref[T]) Less(other Handle) bool {
	return r.Addr() < other.Addr()
}

// OwnerBefore orders handles by control block rather than by address, so
// aliases of one object group together.
func (r *Ref[T]) OwnerBefore(other Handle) bool {
	return r.ownerID() < other.ownerID()
}

// OwnerEqual reports whether both handles share one control block, or are
// both ownerless.
func (r *Ref[T]) OwnerEqual(other Handle) bool {
	return r.ownerID() == other.ownerID()
}

func (r *Ref[T]) String() string {
	return fmt.Sprintf("shared.Ref[%s](%#x, use_count=%d)", reflect.TypeFor[T](), r.Addr(), r.UseCount())
}

// Compare orders two handles by referenced address, for slices.SortFunc.
func Compare(a, b Handle) int {
	return cmp.Compare(a.Addr(), b.Addr())
}

// OwnerCompare orders two handles by control block identity.
func OwnerCompare(a, b Handle) int {
	return cmp.Compare(a.ownerID(), b.ownerID())
}

// addrOf returns the address a pointer-shaped value refers to. Interface
// values are looked through to their dynamic value.
func addrOf[T any](v T) uintptr {
	rv := reflect.ValueOf(any(v))
	if !rv.IsValid() {
		return 0
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan, reflect.Func, reflect.Slice:
		return rv.Pointer()
	}
	return 0
}

func typeName[E any]() string {
	return reflect.TypeFor[E]().String()
}
