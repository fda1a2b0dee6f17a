package allocator

import (
	"unsafe"

	"github.com/orizon-lang/sharedref/internal/lifetime"
)

// Place allocates a zeroed E from a and returns it together with the deleter
// that destroys it in place and gives the storage back to a. The deleter is
// what lets an owner whose control block lives elsewhere free the object
// through the allocator that produced it.
func Place[E any](a Allocator) (*E, lifetime.Deleter[E], error) {
	layout := LayoutOf[E]()
	mem, err := a.Allocate(layout)
	if err != nil {
		return nil, nil, err
	}

	p := (*E)(mem)
	var zero E
	*p = zero

	return p, func(q *E) {
		lifetime.DestroyInPlace(q)
		a.Deallocate(unsafe.Pointer(q), layout)
	}, nil
}
