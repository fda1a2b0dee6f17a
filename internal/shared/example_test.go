package shared_test

import (
	"fmt"

	"github.com/orizon-lang/sharedref/internal/shared"
)

type counter struct {
	n int
}

func (c *counter) Destroy() {
	fmt.Println("destroyed at", c.n)
}

func ExampleMake() {
	r, err := shared.Make(func(c *counter) error {
		c.n = 41
		return nil
	})
	if err != nil {
		panic(err)
	}

	c := r.Clone()
	c.Get().n++
	fmt.Println(r.Get().n, r.UseCount())

	r.Release()
	c.Release()
	// Output:
	// 42 2
	// destroyed at 42
}

type node struct {
	shared.Self[node]
	name string
}

func ExampleSelf() {
	r, err := shared.Adopt(&node{name: "root"})
	if err != nil {
		panic(err)
	}
	defer r.Release()

	self, err := r.Get().SharedFromThis()
	if err != nil {
		panic(err)
	}
	defer self.Release()

	fmt.Println(self.Get().name, r.UseCount())
	// Output: root 2
}
