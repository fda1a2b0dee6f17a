package unique

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tracked struct {
	destroyed *int
	value     int
}

func (p *tracked) Destroy() { *p.destroyed++ }

func TestPtr(t *testing.T) {
	t.Run("ZeroValue", func(t *testing.T) {
		var u Ptr[tracked]
		assert.True(t, u.IsNil())
		assert.Nil(t, u.Get())
		assert.NoError(t, u.Close())
	})

	t.Run("CloseRunsDefaultDeleter", func(t *testing.T) {
		n := 0
		u := New(&tracked{destroyed: &n, value: 1})
		assert.Equal(t, 1, u.Get().value)

		require.NoError(t, u.Close())
		assert.Equal(t, 1, n)
		assert.True(t, u.IsNil())
	})

	t.Run("CustomDeleter", func(t *testing.T) {
		var seen *tracked
		p := &tracked{value: 3}
		u := NewWithDeleter(p, func(q *tracked) { seen = q })

		require.NoError(t, u.Close())
		assert.Same(t, p, seen)
	})

	t.Run("Release", func(t *testing.T) {
		n := 0
		p := &tracked{destroyed: &n}
		u := New(p)

		assert.Same(t, p, u.Release())
		assert.True(t, u.IsNil())
		require.NoError(t, u.Close())
		assert.Zero(t, n)
	})

	t.Run("Take", func(t *testing.T) {
		calls := 0
		p := &tracked{}
		u := NewWithDeleter(p, func(*tracked) { calls++ })

		got, d := u.Take()
		assert.Same(t, p, got)
		assert.True(t, u.IsNil())

		d(got)
		assert.Equal(t, 1, calls)
	})

	t.Run("Reset", func(t *testing.T) {
		n := 0
		first := &tracked{destroyed: &n}
		u := New(first)

		u.Reset(first)
		assert.Zero(t, n, "resetting to the same pointer keeps it")

		u.Reset(&tracked{destroyed: &n})
		assert.Equal(t, 1, n)

		u.Reset(nil)
		assert.Equal(t, 2, n)
	})

	t.Run("Move", func(t *testing.T) {
		n := 0
		u := New(&tracked{destroyed: &n, value: 9})
		v := u.Move()

		assert.True(t, u.IsNil())
		assert.Equal(t, 9, v.Get().value)
		require.NoError(t, v.Close())
		assert.Equal(t, 1, n)
	})

	t.Run("MoveFrom", func(t *testing.T) {
		n := 0
		u := New(&tracked{destroyed: &n, value: 1})
		v := New(&tracked{destroyed: &n, value: 2})

		u.MoveFrom(u)
		assert.Equal(t, 1, u.Get().value)

		u.MoveFrom(v)
		assert.Equal(t, 1, n)
		assert.Equal(t, 2, u.Get().value)
		assert.True(t, v.IsNil())
	})

	t.Run("Swap", func(t *testing.T) {
		a, b := New(&tracked{value: 1}), New(&tracked{value: 2})
		a.Swap(b)
		assert.Equal(t, 2, a.Get().value)
		assert.Equal(t, 1, b.Get().value)
	})
}

func TestMake(t *testing.T) {
	u, err := Make(func(p *tracked) error {
		p.value = 5
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, u.Get().value)

	boom := errors.New("boom")
	u, err = Make(func(*tracked) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, u)
}
