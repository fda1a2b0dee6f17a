package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/orizon-lang/sharedref/internal/allocator"
	"github.com/orizon-lang/sharedref/internal/logger"
	"github.com/orizon-lang/sharedref/internal/shared"
)

type options struct {
	Goroutines int
	Iterations int
	Fused      bool
	Churn      int
}

type report struct {
	Allocator  string                   `json:"allocator"`
	Goroutines int                      `json:"goroutines"`
	Iterations int                      `json:"iterations"`
	Fused      bool                     `json:"fused"`
	Finalized  int64                    `json:"finalized"`
	Derived    int64                    `json:"derived"`
	DurationMs int64                    `json:"duration_ms"`
	OpsPerSec  float64                  `json:"ops_per_sec"`
	Live       int                      `json:"live_allocations"`
	Scratch    int                      `json:"scratch_live"`
	Hits       int64                    `json:"hits"`
	Stats      allocator.AllocatorStats `json:"stats"`
}

// allocators are the two allocators a run draws from: blocks holds control
// blocks and payloads, scratch holds the pointer-free tallies.
type allocators struct {
	blocks  allocator.Allocator
	scratch allocator.Allocator
	close   func() error
}

// payload is the object every round shares between its workers. Its tally
// lives in the scratch allocator and is released with it.
type payload struct {
	shared.Self[payload]
	round     int
	tally     *shared.Ref[*tally]
	finalized *atomic.Int64
}

type tally struct {
	hits atomic.Int64
}

func (p *payload) Destroy() {
	p.finalized.Add(1)
	p.tally.Release()
}

// run shares one handle per round across the workers, lets each worker clone,
// derive and drop handles, and then checks that the round's object was
// finalized exactly once.
func run(ctx context.Context, opts options, allocs allocators) (*report, error) {
	var finalized, derived, ops, hits atomic.Int64
	start := time.Now()
	alloc := allocs.blocks

	for round := 0; round < opts.Iterations; round++ {
		root, err := newPayload(round, &finalized, opts.Fused, allocs)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", round, err)
		}

		handles := make([]*shared.Ref[*payload], opts.Goroutines)
		for i := range handles {
			handles[i] = root.Clone()
		}
		t := root.Get().tally.Clone()
		root.Release()

		g, gctx := errgroup.WithContext(ctx)
		for _, h := range handles {
			g.Go(func() error {
				defer h.Release()
				for i := 0; i < opts.Churn; i++ {
					if err := gctx.Err(); err != nil {
						return err
					}
					c := h.Clone()
					c.Get().tally.Get().hits.Add(1)
					c.Release()

					self, err := h.Get().SharedFromThis()
					if err != nil {
						return err
					}
					derived.Add(1)
					self.Release()
					ops.Add(2)
				}
				return nil
			})
		}
		err = g.Wait()
		hits.Add(t.Get().hits.Load())
		t.Release()
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", round, err)
		}

		if got, want := finalized.Load(), int64(round+1); got != want {
			return nil, fmt.Errorf("round %d: %d objects finalized, want %d", round, got, want)
		}
		logger.Debug("round complete", "round", round, "finalized", finalized.Load())
	}

	elapsed := time.Since(start)
	stats := alloc.Stats()
	r := &report{
		Goroutines: opts.Goroutines,
		Iterations: opts.Iterations,
		Fused:      opts.Fused,
		Finalized:  finalized.Load(),
		Derived:    derived.Load(),
		Hits:       hits.Load(),
		DurationMs: elapsed.Milliseconds(),
		Live:       stats.ActiveAllocations,
		Stats:      stats,
	}
	if c, ok := alloc.(*allocator.CountingAllocator); ok {
		r.Live = int(c.Live())
	}
	if allocs.scratch != alloc {
		r.Scratch = allocs.scratch.Stats().ActiveAllocations
	}
	if secs := elapsed.Seconds(); secs > 0 {
		r.OpsPerSec = float64(ops.Load()) / secs
	}
	return r, nil
}

func newPayload(round int, finalized *atomic.Int64, fused bool, allocs allocators) (*shared.Ref[*payload], error) {
	t, err := shared.NewIn[tally](allocs.scratch, nil, shared.WithAllocator(allocs.blocks))
	if err != nil {
		return nil, fmt.Errorf("tally: %w", err)
	}

	var r *shared.Ref[*payload]
	if fused {
		r, err = shared.Make(func(p *payload) error {
			p.round = round
			p.tally = t
			p.finalized = finalized
			return nil
		}, shared.WithAllocator(allocs.blocks))
	} else {
		r, err = shared.Adopt(&payload{round: round, tally: t, finalized: finalized}, shared.WithAllocator(allocs.blocks))
	}
	if err != nil {
		t.Release()
		return nil, err
	}
	return r, nil
}

// newAllocators builds the allocators named on the command line. "counting"
// wraps a system allocator so the report can show exact live counts. "arena"
// keeps control blocks in a system allocator, since they hold pointers, and
// places the tallies in the arena.
func newAllocators(name string, config *allocator.Config) (allocators, error) {
	noop := func() error { return nil }
	if name == "counting" {
		c := allocator.NewCountingAllocator(allocator.NewSystemAllocator(config))
		return allocators{blocks: c, scratch: c, close: noop}, nil
	}

	kind, err := allocator.ParseKind(name)
	if err != nil {
		return allocators{}, err
	}
	if kind == allocator.ArenaAllocatorKind {
		size := uintptr(0)
		if config != nil {
			size = config.ArenaSize
		}
		arena, err := allocator.NewArenaAllocator(size, config)
		if err != nil {
			return allocators{}, err
		}
		return allocators{blocks: allocator.NewSystemAllocator(config), scratch: arena, close: arena.Close}, nil
	}

	alloc, err := allocator.New(kind, config)
	if err != nil {
		return allocators{}, err
	}
	return allocators{blocks: alloc, scratch: alloc, close: noop}, nil
}
