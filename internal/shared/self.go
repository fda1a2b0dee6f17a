package shared

import (
	"sync/atomic"

	"github.com/orizon-lang/sharedref/internal/errors"
)

// Self lets an object obtain shared references to itself. Embed it by value
// in the type it describes:
//
//	type Session struct {
//		shared.Self[Session]
//		...
//	}
//
// The link to the owning control block is set when the object gets its first
// owner through Adopt, FromUnique, ResetWith or one of the Make constructors.
// Cloning or moving handles never touches it.
type Self[E any] struct {
	link atomic.Pointer[selfLink[E]]
}

type selfLink[E any] struct {
	ctrl control
	obj  *E
}

// binder is satisfied by *E exactly when E embeds Self[E]. A Self reached
// through some other embedding has a different type parameter and is left
// alone.
type binder[E any] interface {
	selfRef() *Self[E]
}

func (s *Self[E]) selfRef() *Self[E] { return s }

func wireSelf[E any](p *E, ctrl control) {
	if p == nil {
		return
	}
	if b, ok := any(p).(binder[E]); ok {
		b.selfRef().bind(ctrl, p)
	}
}

// unwireSelf drops p's link to ctrl while ctrl finalizes, so the block's
// storage can be reused without the object still pointing at it.
func unwireSelf[E any](p *E, ctrl control) {
	if p == nil {
		return
	}
	if b, ok := any(p).(binder[E]); ok {
		b.selfRef().unbind(ctrl)
	}
}

// bind records ctrl unless a live owner is already recorded. A finalized
// owner unlinks itself, so an object with static lifetime can be adopted
// again after its previous owners are gone.
func (s *Self[E]) bind(ctrl control, p *E) {
	next := &selfLink[E]{ctrl: ctrl, obj: p}
	for {
		cur := s.link.Load()
		if cur != nil && cur.ctrl.count() > 0 {
			return
		}
		if s.link.CompareAndSwap(cur, next) {
			return
		}
	}
}

func (s *Self[E]) unbind(ctrl control) {
	if cur := s.link.Load(); cur != nil && cur.ctrl == ctrl {
		s.link.CompareAndSwap(cur, nil)
	}
}

// SharedFromThis returns a new handle sharing the object's existing control
// block. It fails with ErrNoOwner when the object was never owned or when its
// last owner has already let go.
func (s *Self[E]) SharedFromThis() (*Ref[*E], error) {
	l := s.link.Load()
	if l == nil || !l.ctrl.tryRetain() {
		return nil, errors.NoOwner("SharedFromThis")
	}
	return &Ref[*E]{ptr: l.obj, ctrl: l.ctrl}, nil
}

// SharedFromThisConst is SharedFromThis returning a read-only handle.
func (s *Self[E]) SharedFromThisConst() (*ConstRef[E], error) {
	l := s.link.Load()
	if l == nil || !l.ctrl.tryRetain() {
		return nil, errors.NoOwner("SharedFromThisConst")
	}
	return newConstRef(l.obj, l.ctrl), nil
}
