package shared

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/orizon-lang/sharedref/internal/errors"
)

// Alias returns a handle that refers to p but shares owner's control block,
// typically a field or element of owner's object. The object stays alive as
// long as any alias does. Aliasing an empty handle yields an ownerless one.
//
// p must be nil or pointer-shaped: a pointer, map, channel, func or slice,
// possibly inside an interface. Any other value panics with ErrBadConversion
// and owner is left untouched.
func Alias[T, U any](owner *Ref[U], p T) *Ref[T] {
	mustBePointerShaped(p)
	if owner.ctrl != nil {
		owner.ctrl.retain()
	}
	return &Ref[T]{ptr: p, ctrl: owner.ctrl}
}

// AliasMove is Alias that consumes owner instead of adding a count.
func AliasMove[T, U any](owner *Ref[U], p T) *Ref[T] {
	mustBePointerShaped(p)
	ctrl := owner.ctrl
	owner.clear()
	return &Ref[T]{ptr: p, ctrl: ctrl}
}

// mustBePointerShaped rejects values that have no address of their own, such
// as a struct stored in an interface. Identity and ordering read it.
func mustBePointerShaped[T any](p T) {
	rv := reflect.ValueOf(any(p))
	if !rv.IsValid() {
		return
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan, reflect.Func, reflect.Slice:
		return
	}
	panic(errors.BadConversion(rv.Type().String(), "a pointer-shaped "+reflect.TypeFor[T]().String()))
}

// Upcast converts a handle to a type its pointer is assignable to, such as an
// interface the object implements. It panics when U is not assignable to T.
func Upcast[T, U any](r *Ref[U]) *Ref[T] {
	return Alias(r, assignTo[T](r.ptr))
}

// UpcastMove is Upcast that consumes r. The count does not change.
func UpcastMove[T, U any](r *Ref[U]) *Ref[T] {
	return AliasMove(r, assignTo[T](r.ptr))
}

func assignTo[T, U any](u U) T {
	from, to := reflect.TypeFor[U](), reflect.TypeFor[T]()
	if !from.AssignableTo(to) {
		panic(errors.BadConversion(from.String(), to.String()))
	}
	if t, ok := any(u).(T); ok {
		return t
	}
	// u is a nil interface value.
	var zero T
	return zero
}

// StaticCast converts with a caller supplied conversion that cannot fail and
// shares r's control block. conv is not called for a nil handle.
func StaticCast[T, U any](r *Ref[U], conv func(U) T) *Ref[T] {
	if r.IsNil() {
		var zero T
		return Alias(r, zero)
	}
	return Alias(r, conv(r.ptr))
}

// DynamicCast asserts r's object to T. On failure the result is empty and r's
// count is untouched; on success it shares r's control block.
func DynamicCast[T, U any](r *Ref[U]) *Ref[T] {
	t, ok := any(r.ptr).(T)
	if !ok || addrOf(t) == 0 {
		return Null[T]()
	}
	return Alias(r, t)
}

// ReinterpretCast views r's object as a B without any check. B must have a
// layout compatible with A's; nothing verifies it.
func ReinterpretCast[B, A any](r *Ref[*A]) *Ref[*B] {
	return Alias(r, (*B)(unsafe.Pointer(r.ptr)))
}

// ConstRef is a shared reference that grants read access only: the object can
// be copied out with Load but not modified through the handle.
type ConstRef[E any] struct {
	ref Ref[*E]
}

func newConstRef[E any](p *E, ctrl control) *ConstRef[E] {
	c := &ConstRef[E]{}
	c.ref.ptr, c.ref.ctrl = p, ctrl
	return c
}

// AsConst returns a read-only handle sharing r's control block.
func AsConst[E any](r *Ref[*E]) *ConstRef[E] {
	if r.ctrl != nil {
		r.ctrl.retain()
	}
	return newConstRef(r.ptr, r.ctrl)
}

// ConstCast returns a writable handle sharing c's control block.
func ConstCast[E any](c *ConstRef[E]) *Ref[*E] {
	return c.ref.Clone()
}

// Load returns a copy of the object, or the zero E for an empty handle.
func (c *ConstRef[E]) Load() E {
	if c.ref.ptr == nil {
		var zero E
		return zero
	}
	return *c.ref.ptr
}

// IsNil reports whether the handle refers to no object.
func (c *ConstRef[E]) IsNil() bool { return c.ref.ptr == nil }

// UseCount implements Handle.
func (c *ConstRef[E]) UseCount() int64 { return c.ref.UseCount() }

// Unique reports whether c is the only owner.
func (c *ConstRef[E]) Unique() bool { return c.ref.Unique() }

// Addr implements Handle.
func (c *ConstRef[E]) Addr() uintptr { return c.ref.Addr() }

func (c *ConstRef[E]) ownerID() uintptr { return c.ref.ownerID() }

// Clone returns a new read-only handle on the same block.
func (c *ConstRef[E]) Clone() *ConstRef[E] {
	if c.ref.ctrl != nil {
		c.ref.ctrl.retain()
	}
	return newConstRef(c.ref.ptr, c.ref.ctrl)
}

// Release gives up c's count and leaves c empty.
func (c *ConstRef[E]) Release() { c.ref.Release() }

// Equal reports whether both handles refer to the same address.
func (c *ConstRef[E]) Equal(other Handle) bool { return c.ref.Equal(other) }

// OwnerEqual reports whether both handles share one control block.
func (c *ConstRef[E]) OwnerEqual(other Handle) bool { return c.ref.OwnerEqual(other) }

func (c *ConstRef[E]) String() string {
	return fmt.Sprintf("shared.ConstRef[%s](%#x, use_count=%d)", typeName[E](), c.Addr(), c.UseCount())
}
