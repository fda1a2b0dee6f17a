// Package shared implements atomically reference-counted shared ownership.
//
// A Ref holds one count on a control block. Handles are duplicated with
// Clone, transferred with Move and given up with Release; when the count
// drops to zero the block runs the object's deleter and frees itself. The
// decrement that reaches zero is the only point where finalization can start,
// so an object is finalized exactly once no matter how many goroutines drop
// their handles concurrently.
//
// Two control block layouts exist. Adopt and FromUnique wrap an object that
// was allocated on its own and allocate a separate block for it. Make and its
// variants place the block and the object in a single allocation taken from
// the configured allocator.
//
//	conn, err := shared.Make(func(c *Conn) error {
//		return c.dial(addr)
//	})
//	if err != nil {
//		return err
//	}
//	defer conn.Release()
//
//	worker := conn.Clone() // the count is now 2
//	go func() {
//		defer worker.Release()
//		worker.Get().Ping()
//	}()
//
// Objects that need handles to themselves embed Self. Handles convert with
// Upcast, StaticCast, DynamicCast, AsConst, ConstCast and ReinterpretCast;
// every conversion shares the source's control block.
package shared
