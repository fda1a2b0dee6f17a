package shared

import (
	"slices"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/orizon-lang/sharedref/internal/allocator"
	"github.com/orizon-lang/sharedref/internal/errors"
	"github.com/orizon-lang/sharedref/internal/unique"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type tracked struct {
	value     int
	destroyed *atomic.Int32
}

func (p *tracked) Destroy() {
	if p.destroyed != nil {
		p.destroyed.Add(1)
	}
}

type pair struct {
	left, right int
	destroyed   *atomic.Int32
}

func (p *pair) Destroy() {
	if p.destroyed != nil {
		p.destroyed.Add(1)
	}
}

// counting returns an allocator that fails the test if anything it handed out
// is still live when the test ends.
func counting(t *testing.T) *allocator.CountingAllocator {
	t.Helper()
	c := allocator.NewCountingAllocator(allocator.NewSystemAllocator(allocator.DefaultConfig()))
	t.Cleanup(func() {
		assert.Zero(t, c.Live(), "allocations still live")
		assert.Zero(t, c.LiveBytes())
	})
	return c
}

func TestAdopt(t *testing.T) {
	t.Run("UseCountThroughCopies", func(t *testing.T) {
		alloc := counting(t)
		var n atomic.Int32

		r, err := Adopt(&tracked{value: 1, destroyed: &n}, WithAllocator(alloc))
		require.NoError(t, err)
		assert.Equal(t, int64(1), r.UseCount())
		assert.True(t, r.Unique())

		c := r.Clone()
		assert.Equal(t, int64(2), r.UseCount())
		assert.Equal(t, int64(2), c.UseCount())
		assert.False(t, r.Unique())
		assert.Same(t, r.Get(), c.Get())

		c.Release()
		assert.True(t, c.IsNil())
		assert.Zero(t, c.UseCount())
		assert.Equal(t, int64(1), r.UseCount())
		assert.Zero(t, n.Load())

		r.Release()
		assert.Equal(t, int32(1), n.Load())
		assert.Equal(t, int64(1), alloc.Allocations())
	})

	t.Run("NilPointer", func(t *testing.T) {
		alloc := counting(t)

		r, err := Adopt[tracked](nil, WithAllocator(alloc))
		require.NoError(t, err)
		assert.True(t, r.IsNil())
		assert.Equal(t, int64(1), r.UseCount())
		r.Release()
	})

	t.Run("CustomDeleter", func(t *testing.T) {
		alloc := counting(t)
		var seen *tracked
		p := &tracked{}

		r, err := AdoptWithDeleter(p, func(q *tracked) { seen = q }, WithAllocator(alloc))
		require.NoError(t, err)
		r.Clone().Release()
		assert.Nil(t, seen)

		r.Release()
		assert.Same(t, p, seen)
	})

	t.Run("AllocationFailure", func(t *testing.T) {
		alloc := counting(t)
		alloc.FailAfter(0)
		var n atomic.Int32

		r, err := Adopt(&tracked{destroyed: &n}, WithAllocator(alloc))
		assert.ErrorIs(t, err, errors.ErrOutOfMemory)
		assert.Nil(t, r)
		assert.Zero(t, n.Load(), "the caller keeps ownership")
	})
}

func TestZeroRef(t *testing.T) {
	var r Ref[*tracked]
	assert.True(t, r.IsNil())
	assert.Zero(t, r.UseCount())
	assert.True(t, r.Unique())
	assert.Zero(t, r.Addr())

	r.Release()
	c := r.Clone()
	assert.True(t, c.IsNil())
	assert.Zero(t, c.UseCount())

	n := Null[*tracked]()
	assert.True(t, n.Equal(&r))
	assert.True(t, n.OwnerEqual(&r))
}

func TestRefOwnership(t *testing.T) {
	t.Run("Move", func(t *testing.T) {
		alloc := counting(t)
		r, err := Adopt(&tracked{value: 3}, WithAllocator(alloc))
		require.NoError(t, err)

		m := r.Move()
		assert.True(t, r.IsNil())
		assert.Zero(t, r.UseCount())
		assert.Equal(t, int64(1), m.UseCount())
		assert.Equal(t, 3, m.Get().value)
		m.Release()
	})

	t.Run("MoveFrom", func(t *testing.T) {
		alloc := counting(t)
		var n atomic.Int32
		a, err := Adopt(&tracked{value: 1, destroyed: &n}, WithAllocator(alloc))
		require.NoError(t, err)
		b, err := Adopt(&tracked{value: 2, destroyed: &n}, WithAllocator(alloc))
		require.NoError(t, err)

		a.MoveFrom(a)
		assert.Equal(t, int64(1), a.UseCount())
		assert.Equal(t, 1, a.Get().value)

		a.MoveFrom(b)
		assert.Equal(t, int32(1), n.Load())
		assert.Equal(t, 2, a.Get().value)
		assert.Equal(t, int64(1), a.UseCount())
		assert.True(t, b.IsNil())

		a.Release()
		assert.Equal(t, int32(2), n.Load())
	})

	t.Run("Assign", func(t *testing.T) {
		alloc := counting(t)
		var n atomic.Int32
		a, err := Adopt(&tracked{value: 1, destroyed: &n}, WithAllocator(alloc))
		require.NoError(t, err)
		b, err := Adopt(&tracked{value: 2, destroyed: &n}, WithAllocator(alloc))
		require.NoError(t, err)

		a.Assign(a)
		assert.Equal(t, int64(1), a.UseCount())
		assert.Zero(t, n.Load())

		a.Assign(b)
		assert.Equal(t, int32(1), n.Load())
		assert.Equal(t, int64(2), b.UseCount())
		assert.Same(t, b.Get(), a.Get())

		alias := a.Clone()
		a.Assign(alias)
		assert.Equal(t, int64(3), b.UseCount(), "assigning from a handle on the same block keeps it alive")

		alias.Release()
		a.Release()
		b.Release()
		assert.Equal(t, int32(2), n.Load())
	})

	t.Run("Swap", func(t *testing.T) {
		alloc := counting(t)
		a, err := Adopt(&tracked{value: 1}, WithAllocator(alloc))
		require.NoError(t, err)
		b := Null[*tracked]()

		a.Swap(b)
		assert.True(t, a.IsNil())
		assert.Equal(t, 1, b.Get().value)
		assert.Equal(t, int64(1), b.UseCount())
		require.NoError(t, b.Close())
	})

	t.Run("Reset", func(t *testing.T) {
		alloc := counting(t)
		var n atomic.Int32
		r, err := Adopt(&tracked{destroyed: &n}, WithAllocator(alloc))
		require.NoError(t, err)

		r.Reset()
		assert.True(t, r.IsNil())
		assert.Equal(t, int32(1), n.Load())
	})
}

func TestFromUnique(t *testing.T) {
	t.Run("TransfersDeleter", func(t *testing.T) {
		alloc := counting(t)
		calls := 0
		p := &tracked{value: 4}
		u := unique.NewWithDeleter(p, func(*tracked) { calls++ })

		r, err := FromUnique(u, WithAllocator(alloc))
		require.NoError(t, err)
		assert.True(t, u.IsNil())
		assert.Same(t, p, r.Get())
		assert.Equal(t, int64(1), r.UseCount())

		r.Release()
		assert.Equal(t, 1, calls)
	})

	t.Run("AllocationFailureKeepsSource", func(t *testing.T) {
		alloc := counting(t)
		alloc.FailAfter(0)
		p := &tracked{}
		u := unique.New(p)

		r, err := FromUnique(u, WithAllocator(alloc))
		assert.ErrorIs(t, err, errors.ErrOutOfMemory)
		assert.Nil(t, r)
		assert.Same(t, p, u.Get())
	})

	t.Run("Empty", func(t *testing.T) {
		r, err := FromUnique(unique.New[tracked](nil))
		require.NoError(t, err)
		assert.True(t, r.IsNil())
		assert.Zero(t, r.UseCount())
	})
}

func TestResetWith(t *testing.T) {
	alloc := counting(t)
	var n atomic.Int32
	first := &tracked{value: 1, destroyed: &n}
	second := &tracked{value: 2, destroyed: &n}

	r, err := Adopt(first, WithAllocator(alloc))
	require.NoError(t, err)

	require.NoError(t, ResetWith(r, second, WithAllocator(alloc)))
	assert.Equal(t, int32(1), n.Load())
	assert.Same(t, second, r.Get())
	assert.Equal(t, int64(1), r.UseCount())

	alloc.FailAfter(0)
	err = ResetWith(r, &tracked{value: 3}, WithAllocator(alloc))
	assert.ErrorIs(t, err, errors.ErrOutOfMemory)
	assert.Same(t, second, r.Get(), "a failed reset leaves the handle untouched")
	alloc.FailAfter(-1)

	calls := 0
	require.NoError(t, ResetWithDeleter(r, first, func(*tracked) { calls++ }, WithAllocator(alloc)))
	assert.Equal(t, int32(2), n.Load())

	r.Release()
	assert.Equal(t, 1, calls)
}

func TestComparison(t *testing.T) {
	alloc := counting(t)
	a, err := Adopt(&pair{left: 1, right: 2}, WithAllocator(alloc))
	require.NoError(t, err)
	defer a.Release()
	b, err := Adopt(&pair{left: 3, right: 4}, WithAllocator(alloc))
	require.NoError(t, err)
	defer b.Release()

	right := Alias(a, &a.Get().right)
	defer right.Release()

	assert.False(t, a.Equal(right))
	assert.True(t, a.OwnerEqual(right))
	assert.False(t, a.OwnerEqual(b))
	assert.Equal(t, a.Less(right), Compare(a, right) < 0)
	assert.NotEqual(t, a.OwnerBefore(b), b.OwnerBefore(a))
	assert.Zero(t, OwnerCompare(a, right))

	clone := a.Clone()
	defer clone.Release()
	assert.True(t, a.Equal(clone))
	assert.Zero(t, Compare(a, clone))

	handles := []Handle{b, right, a, clone}
	slices.SortFunc(handles, OwnerCompare)
	assert.True(t, slices.IsSortedFunc(handles, OwnerCompare))
	groups := 1
	for i := 1; i < len(handles); i++ {
		if OwnerCompare(handles[i-1], handles[i]) != 0 {
			groups++
		}
	}
	assert.Equal(t, 2, groups, "aliases of one block sort together")

	slices.SortFunc(handles, Compare)
	assert.True(t, slices.IsSortedFunc(handles, Compare))

	assert.Contains(t, a.String(), "use_count=3")
	assert.Contains(t, a.String(), "*shared.pair")
}
