// Package lifetime defines how owned objects are torn down.
//
// A Deleter is the policy an owner applies to its object exactly once, when
// ownership ends. A Destroyer is the object's own teardown hook, the closest
// Go has to a destructor; the deleters in this package run it when present.
package lifetime

// Deleter destroys the object at the given address.
type Deleter[E any] func(*E)

// Destroyer is implemented by objects that must release resources when the
// last owner lets go of them.
type Destroyer interface {
	Destroy()
}

// Destroy runs p's Destroy hook, if any. A nil p is ignored.
func Destroy[E any](p *E) {
	if p == nil {
		return
	}
	if d, ok := any(p).(Destroyer); ok {
		d.Destroy()
	}
}

// Default returns the deleter for individually allocated objects: the
// Destroy hook runs and the storage is left to the garbage collector.
func Default[E any]() Deleter[E] {
	return Destroy[E]
}

// Noop returns a deleter that leaves the object untouched, for objects with
// static lifetime or owned by something else.
func Noop[E any]() Deleter[E] {
	return func(*E) {}
}

// DestroyInPlace runs the Destroy hook and zeroes the object so the storage
// it lives in retains nothing. It never releases the storage itself.
func DestroyInPlace[E any](p *E) {
	if p == nil {
		return
	}
	Destroy(p)
	var zero E
	*p = zero
}

// DefaultSlice returns the element-wise deleter for owned slices.
func DefaultSlice[E any]() Deleter[[]E] {
	return func(s *[]E) {
		if s == nil {
			return
		}
		for i := range *s {
			Destroy(&(*s)[i])
		}
	}
}

// Chain runs the deleters in order. Nil entries are skipped.
func Chain[E any](deleters ...Deleter[E]) Deleter[E] {
	return func(p *E) {
		for _, d := range deleters {
			if d != nil {
				d(p)
			}
		}
	}
}

// OrDefault returns d, or Default when d is nil.
func OrDefault[E any](d Deleter[E]) Deleter[E] {
	if d == nil {
		return Default[E]()
	}
	return d
}
