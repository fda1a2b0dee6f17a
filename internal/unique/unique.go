// Package unique provides a single-owner pointer. Exactly one Ptr owns an
// object at a time; ownership moves, it is never duplicated.
package unique

import (
	"fmt"

	"github.com/orizon-lang/sharedref/internal/lifetime"
)

type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Ptr owns at most one object and applies its deleter when ownership ends.
// The zero value is empty and ready to use.
type Ptr[E any] struct {
	_       noCopy
	p       *E
	deleter lifetime.Deleter[E]
}

// New takes ownership of p with the default deleter.
func New[E any](p *E) *Ptr[E] {
	return &Ptr[E]{p: p}
}

// NewWithDeleter takes ownership of p; d runs when ownership ends.
func NewWithDeleter[E any](p *E, d lifetime.Deleter[E]) *Ptr[E] {
	return &Ptr[E]{p: p, deleter: d}
}

// Make allocates an E, runs init on it and takes ownership. When init fails
// nothing is owned and the error is returned.
func Make[E any](init func(*E) error) (*Ptr[E], error) {
	p := new(E)
	if init != nil {
		if err := init(p); err != nil {
			return nil, err
		}
	}
	return New(p), nil
}

// Get returns the owned pointer without giving up ownership.
func (u *Ptr[E]) Get() *E {
	return u.p
}

// IsNil reports whether nothing is owned.
func (u *Ptr[E]) IsNil() bool {
	return u.p == nil
}

// Deleter returns the deleter that will run when ownership ends.
func (u *Ptr[E]) Deleter() lifetime.Deleter[E] {
	return lifetime.OrDefault(u.deleter)
}

// Release gives up ownership without running the deleter and returns the
// pointer. The caller becomes responsible for the object.
func (u *Ptr[E]) Release() *E {
	p := u.p
	u.p = nil
	return p
}

// Take hands over the pointer together with its deleter and leaves u empty.
// There is no moment at which both u and the receiver of the result own the
// object.
func (u *Ptr[E]) Take() (*E, lifetime.Deleter[E]) {
	p, d := u.p, u.Deleter()
	u.p, u.deleter = nil, nil
	return p, d
}

// Reset destroys the current object, if any, and takes ownership of p.
func (u *Ptr[E]) Reset(p *E) {
	old := u.p
	u.p = p
	if old != nil && old != p {
		u.Deleter()(old)
	}
}

// Close destroys the owned object, if any. It always returns nil and exists
// so a Ptr can be deferred like any other closer.
func (u *Ptr[E]) Close() error {
	u.Reset(nil)
	return nil
}

// Move transfers ownership to a new Ptr and leaves u empty.
func (u *Ptr[E]) Move() *Ptr[E] {
	p, d := u.p, u.deleter
	u.p, u.deleter = nil, nil
	return &Ptr[E]{p: p, deleter: d}
}

// MoveFrom destroys u's object and takes over other's. Moving a Ptr into
// itself does nothing.
func (u *Ptr[E]) MoveFrom(other *Ptr[E]) {
	if u == other {
		return
	}
	old, oldDeleter := u.p, u.Deleter()
	u.p, u.deleter = other.p, other.deleter
	other.p, other.deleter = nil, nil
	if old != nil {
		oldDeleter(old)
	}
}

// Swap exchanges the owned objects and deleters of u and other.
func (u *Ptr[E]) Swap(other *Ptr[E]) {
	u.p, other.p = other.p, u.p
	u.deleter, other.deleter = other.deleter, u.deleter
}

func (u *Ptr[E]) String() string {
	return fmt.Sprintf("unique.Ptr[%T](%p)", u.p, u.p)
}
