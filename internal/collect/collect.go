// internal/collect/collect.go
package collect

import (
	"github.com/solatis/scorekeeper/internal/network"
)

/*
 * Group-by collectors.
 *
 * Every container returns an Undo token from Accumulate that carries exactly
 * what Revert needs: the accumulated value for sums, the map key for counts,
 * the stored entry for ordered and list containers. Revert never recomputes
 * from facts, since the facts may have changed by the time it runs.
 *
 * Revert returns false for a token the container cannot account for (double
 * undo, token from another container); the group node turns that into a
 * consistency failure.
 *
 * Collectors without functions are comparable values so equal declarations
 * share one group-by node; collectors holding functions are pointers and
 * share only when the same collector value is reused.
 */

type countCollector struct{}

// Count counts tuples. Result is int.
func Count() network.Collector { return countCollector{} }

func (countCollector) NewContainer() network.Container { return &countContainer{} }

type countContainer struct {
	n int
}

func (c *countContainer) Accumulate(network.Facts) network.Undo {
	c.n++
	return network.Undo{Count: 1}
}

func (c *countContainer) Revert(u network.Undo) bool {
	if u.Count != 1 || c.n == 0 {
		return false
	}
	c.n--
	return true
}

func (c *countContainer) Result() any { return c.n }

type countDistinctCollector struct {
	fn func(network.Facts) any
}

// CountDistinct counts distinct values of fn. Result is int.
func CountDistinct(fn func(network.Facts) any) network.Collector {
	return &countDistinctCollector{fn: fn}
}

func (c *countDistinctCollector) NewContainer() network.Container {
	return &countDistinctContainer{fn: c.fn, counts: make(map[any]int)}
}

type countDistinctContainer struct {
	fn     func(network.Facts) any
	counts map[any]int
}

func (c *countDistinctContainer) Accumulate(f network.Facts) network.Undo {
	k := c.fn(f)
	c.counts[k]++
	return network.Undo{Ref: k}
}

func (c *countDistinctContainer) Revert(u network.Undo) bool {
	n, ok := c.counts[u.Ref]
	if !ok {
		return false
	}
	if n == 1 {
		delete(c.counts, u.Ref)
	} else {
		c.counts[u.Ref] = n - 1
	}
	return true
}

func (c *countDistinctContainer) Result() any { return len(c.counts) }
