package allocator

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/orizon-lang/sharedref/internal/errors"
)

// Layout describes one allocation request.
//
// Type is the Go type that will live in the storage. A nil Type asks for raw
// bytes which must never hold Go pointers. Typed layouts use the type's own
// size and alignment; only raw layouts may ask for a larger alignment.
type Layout struct {
	Size  uintptr
	Align uintptr
	Type  reflect.Type
}

// LayoutOf returns the layout of a single T.
func LayoutOf[T any]() Layout {
	var zero T
	return Layout{
		Size:  unsafe.Sizeof(zero),
		Align: unsafe.Alignof(zero),
		Type:  reflect.TypeFor[T](),
	}
}

// ArrayLayout returns the layout of n contiguous Ts.
func ArrayLayout[T any](n int) (Layout, error) {
	if n < 0 {
		return Layout{}, errors.InvalidSize(uintptr(0), fmt.Sprintf("array of %d elements", n))
	}

	var zero T
	elem := unsafe.Sizeof(zero)
	if elem != 0 && uintptr(n) > (^uintptr(0)>>1)/elem {
		return Layout{}, errors.IntegerOverflow("array layout", n, elem)
	}

	return Layout{
		Size:  elem * uintptr(n),
		Align: unsafe.Alignof(zero),
		Type:  reflect.ArrayOf(n, reflect.TypeFor[T]()),
	}, nil
}

// RawLayout returns a pointer-free layout of size bytes aligned to align.
func RawLayout(size, align uintptr) Layout {
	return Layout{Size: size, Align: align}
}

// Validate checks that the layout can be served by any allocator.
func (l Layout) Validate() error {
	if l.Size == 0 {
		return errors.InvalidSize(l.Size, "layout")
	}
	if l.Align == 0 || l.Align&(l.Align-1) != 0 {
		return errors.InvalidAlignment(l.Align, "layout")
	}
	if l.Size > ^uintptr(0)>>1 {
		return errors.IntegerOverflow("layout size", l.Size)
	}
	if l.Type != nil {
		if l.Type.Size() != l.Size {
			return errors.InvalidSize(l.Size, "layout of "+l.Type.String())
		}
		if uintptr(l.Type.Align()) != l.Align {
			return errors.InvalidAlignment(l.Align, "layout of "+l.Type.String())
		}
	}
	return nil
}

// HasPointers reports whether storage for the layout may hold Go pointers.
func (l Layout) HasPointers() bool {
	return l.Type != nil && hasPointers(l.Type)
}

func (l Layout) String() string {
	name := "raw"
	if l.Type != nil {
		name = l.Type.String()
	}
	return fmt.Sprintf("%s(size=%d, align=%d)", name, l.Size, l.Align)
}

func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan,
		reflect.Func, reflect.Interface, reflect.Slice, reflect.String:
		return true
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}

// alignUp aligns a size up to the nearest multiple of alignment.
func alignUp(size, alignment uintptr) uintptr {
	return (size + alignment - 1) &^ (alignment - 1)
}
