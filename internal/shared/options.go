package shared

import "github.com/orizon-lang/sharedref/internal/allocator"

// Option configures how a handle obtains its control block.
type Option func(*options)

type options struct {
	alloc allocator.Allocator
}

// WithAllocator makes the constructor take the control block, and for the
// fused constructors the object as well, from a instead of the process
// default allocator.
func WithAllocator(a allocator.Allocator) Option {
	return func(o *options) {
		o.alloc = a
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.alloc == nil {
		o.alloc = allocator.Default()
	}
	return o
}
