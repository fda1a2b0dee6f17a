package shared

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type animal interface {
	Sound() string
}

type dog struct {
	name      string
	destroyed *atomic.Int32
}

func (d *dog) Sound() string { return "woof" }

func (d *dog) Destroy() {
	if d.destroyed != nil {
		d.destroyed.Add(1)
	}
}

type cat struct{ lives int }

func (c *cat) Sound() string { return "meow" }

func TestUpcast(t *testing.T) {
	t.Run("ToInterface", func(t *testing.T) {
		alloc := counting(t)
		var n atomic.Int32
		d, err := Adopt(&dog{name: "rex", destroyed: &n}, WithAllocator(alloc))
		require.NoError(t, err)

		a := Upcast[animal](d)
		assert.Equal(t, int64(2), d.UseCount())
		assert.Equal(t, "woof", a.Get().Sound())
		assert.True(t, a.Equal(d))
		assert.True(t, a.OwnerEqual(d))

		d.Release()
		assert.Zero(t, n.Load())
		a.Release()
		assert.Equal(t, int32(1), n.Load())
	})

	t.Run("Move", func(t *testing.T) {
		alloc := counting(t)
		d, err := Adopt(&dog{}, WithAllocator(alloc))
		require.NoError(t, err)

		a := UpcastMove[animal](d)
		assert.True(t, d.IsNil())
		assert.Zero(t, d.UseCount())
		assert.Equal(t, int64(1), a.UseCount())
		a.Release()
	})

	t.Run("NotAssignable", func(t *testing.T) {
		alloc := counting(t)
		d, err := Adopt(&dog{}, WithAllocator(alloc))
		require.NoError(t, err)
		defer d.Release()

		assert.Panics(t, func() { Upcast[*cat](d) })
		assert.Equal(t, int64(1), d.UseCount())
	})

	t.Run("NilInterface", func(t *testing.T) {
		var a Ref[animal]
		up := Upcast[any](&a)
		assert.True(t, up.IsNil())
		assert.Zero(t, up.UseCount())
	})
}

func TestDynamicCast(t *testing.T) {
	alloc := counting(t)
	d, err := Adopt(&dog{name: "rex"}, WithAllocator(alloc))
	require.NoError(t, err)
	a := UpcastMove[animal](d)
	defer a.Release()

	t.Run("Success", func(t *testing.T) {
		back := DynamicCast[*dog](a)
		assert.Equal(t, int64(2), a.UseCount())
		assert.Equal(t, "rex", back.Get().name)
		back.Release()
		assert.Equal(t, int64(1), a.UseCount())
	})

	t.Run("FailureLeavesCount", func(t *testing.T) {
		c := DynamicCast[*cat](a)
		assert.True(t, c.IsNil())
		assert.Zero(t, c.UseCount())
		assert.Equal(t, int64(1), a.UseCount())

		s := DynamicCast[fmt.Stringer](a)
		assert.True(t, s.IsNil())
		assert.Equal(t, int64(1), a.UseCount())
	})

	t.Run("Empty", func(t *testing.T) {
		c := DynamicCast[*dog](Null[animal]())
		assert.True(t, c.IsNil())
		assert.Zero(t, c.UseCount())
	})
}

func TestStaticCast(t *testing.T) {
	alloc := counting(t)
	d, err := Adopt(&dog{name: "rex"}, WithAllocator(alloc))
	require.NoError(t, err)
	a := UpcastMove[animal](d)
	defer a.Release()

	back := StaticCast(a, func(x animal) *dog { return x.(*dog) })
	assert.Equal(t, int64(2), a.UseCount())
	assert.Equal(t, "rex", back.Get().name)
	back.Release()

	empty := StaticCast(Null[animal](), func(x animal) *dog { return x.(*dog) })
	assert.True(t, empty.IsNil())
}

func TestConstCast(t *testing.T) {
	alloc := counting(t)
	r, err := MakeValue(pair{left: 1, right: 2}, WithAllocator(alloc))
	require.NoError(t, err)

	c := AsConst(r)
	assert.Equal(t, int64(2), r.UseCount())
	assert.Equal(t, 2, c.Load().right)
	assert.True(t, c.Equal(r))
	assert.True(t, c.OwnerEqual(r))
	assert.Contains(t, c.String(), "use_count=2")

	w := ConstCast(c)
	assert.Equal(t, int64(3), r.UseCount())
	w.Get().right = 5
	assert.Equal(t, 5, c.Load().right)

	cc := c.Clone()
	assert.Equal(t, int64(4), cc.UseCount())
	assert.False(t, cc.Unique())

	for _, release := range []func(){w.Release, cc.Release, c.Release} {
		release()
	}
	assert.True(t, c.IsNil())
	assert.Zero(t, c.Load().right)
	assert.True(t, r.Unique())
	r.Release()
}

type header struct {
	lo, hi int64
}

type words [2]int64

func TestReinterpretCast(t *testing.T) {
	alloc := counting(t)
	r, err := MakeValue(header{lo: 1, hi: 2}, WithAllocator(alloc))
	require.NoError(t, err)
	defer r.Release()

	w := ReinterpretCast[words](r)
	defer w.Release()
	assert.Equal(t, int64(2), r.UseCount())
	assert.Equal(t, int64(2), w.Get()[1])
	assert.Equal(t, r.Addr(), w.Addr())
}

func TestAlias(t *testing.T) {
	alloc := counting(t)
	var n atomic.Int32
	owner, err := Adopt(&pair{left: 1, right: 2, destroyed: &n}, WithAllocator(alloc))
	require.NoError(t, err)

	right := Alias(owner, &owner.Get().right)
	assert.Equal(t, int64(2), right.UseCount())
	owner.Release()
	assert.Zero(t, n.Load(), "the alias keeps the owner alive")
	assert.Equal(t, 2, *right.Get())

	moved := AliasMove(right, &struct{}{})
	assert.True(t, right.IsNil())
	assert.Equal(t, int64(1), moved.UseCount())
	moved.Release()
	assert.Equal(t, int32(1), n.Load())

	orphan := Alias(Null[*pair](), new(int))
	assert.False(t, orphan.IsNil())
	assert.Zero(t, orphan.UseCount())
}

func TestAliasRejectsValues(t *testing.T) {
	alloc := counting(t)
	owner, err := Adopt(&pair{left: 1}, WithAllocator(alloc))
	require.NoError(t, err)
	defer owner.Release()

	assert.Panics(t, func() { Alias[any](owner, any(pair{left: 1})) })
	assert.Panics(t, func() { Alias(owner, 5) })
	assert.Equal(t, int64(1), owner.UseCount(), "a rejected alias takes no count")

	assert.Panics(t, func() { AliasMove[any](owner, any(3.5)) })
	assert.False(t, owner.IsNil(), "a rejected move leaves the owner in place")

	var none any
	nilAlias := Alias(owner, none)
	assert.True(t, nilAlias.IsNil())
	assert.Equal(t, int64(2), owner.UseCount())
	nilAlias.Release()

	m := Alias[any](owner, any(map[string]int{"a": 1}))
	assert.NotZero(t, m.Addr())
	m.Release()
}
