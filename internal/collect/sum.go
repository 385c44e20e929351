// internal/collect/sum.go
package collect

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/solatis/scorekeeper/internal/network"
	"github.com/solatis/scorekeeper/internal/score"
	"github.com/solatis/scorekeeper/internal/types"
)

type sumCollector struct {
	fn func(network.Facts) int64
}

// Sum adds fn over the group. Result is int64. Overflow while adding or
// reverting aborts propagation with types.ErrScoreOverflow and leaves the sum
// unchanged.
func Sum(fn func(network.Facts) int64) network.Collector {
	return &sumCollector{fn: fn}
}

func (c *sumCollector) NewContainer() network.Container { return &sumContainer{fn: c.fn} }

type sumContainer struct {
	fn  func(network.Facts) int64
	sum int64
	n   int
}

func overflow(sum int64, op string, v int64) {
	panic(&types.ConsistencyError{
		Node:   "collector(sum)",
		Detail: fmt.Sprintf("%d %s %d", sum, op, v),
		Err:    types.ErrScoreOverflow,
	})
}

func (c *sumContainer) Accumulate(f network.Facts) network.Undo {
	v := c.fn(f)
	r, ok := score.AddInt64(c.sum, v)
	if !ok {
		overflow(c.sum, "+", v)
	}
	c.sum = r
	c.n++
	return network.Undo{Count: v}
}

// Revert can overflow when contributions of opposite sign were accumulated
// in a different order than they are removed.
func (c *sumContainer) Revert(u network.Undo) bool {
	if c.n == 0 {
		return false
	}
	r, ok := score.SubInt64(c.sum, u.Count)
	if !ok {
		overflow(c.sum, "-", u.Count)
	}
	c.sum = r
	c.n--
	return true
}

func (c *sumContainer) Result() any { return c.sum }

type sumDecimalCollector struct {
	fn func(network.Facts) decimal.Decimal
}

// SumDecimal adds fn over the group exactly. Result is decimal.Decimal.
func SumDecimal(fn func(network.Facts) decimal.Decimal) network.Collector {
	return &sumDecimalCollector{fn: fn}
}

func (c *sumDecimalCollector) NewContainer() network.Container {
	return &sumDecimalContainer{fn: c.fn}
}

type sumDecimalContainer struct {
	fn  func(network.Facts) decimal.Decimal
	sum decimal.Decimal
	n   int
}

func (c *sumDecimalContainer) Accumulate(f network.Facts) network.Undo {
	v := c.fn(f)
	c.sum = c.sum.Add(v)
	c.n++
	return network.Undo{Ref: v}
}

func (c *sumDecimalContainer) Revert(u network.Undo) bool {
	v, ok := u.Ref.(decimal.Decimal)
	if !ok || c.n == 0 {
		return false
	}
	c.sum = c.sum.Sub(v)
	c.n--
	return true
}

func (c *sumDecimalContainer) Result() any { return c.sum }

type averageCollector struct {
	fn func(network.Facts) int64
}

// Average is the arithmetic mean of fn. Result is float64, or nil for an
// empty container.
func Average(fn func(network.Facts) int64) network.Collector {
	return &averageCollector{fn: fn}
}

func (c *averageCollector) NewContainer() network.Container {
	return &averageContainer{sum: sumContainer{fn: c.fn}}
}

type averageContainer struct {
	sum sumContainer
}

func (c *averageContainer) Accumulate(f network.Facts) network.Undo { return c.sum.Accumulate(f) }

func (c *averageContainer) Revert(u network.Undo) bool { return c.sum.Revert(u) }

func (c *averageContainer) Result() any {
	if c.sum.n == 0 {
		return nil
	}
	return float64(c.sum.sum) / float64(c.sum.n)
}
