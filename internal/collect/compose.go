// internal/collect/compose.go
package collect

import (
	"github.com/solatis/scorekeeper/internal/network"
)

type composeCollector struct {
	children []network.Collector
	combine  func(results ...any) any
}

// Compose runs several collectors over the same group and merges their
// results with combine. Undo tokens are composed from the children's.
func Compose(combine func(results ...any) any, collectors ...network.Collector) network.Collector {
	return &composeCollector{children: collectors, combine: combine}
}

func (c *composeCollector) NewContainer() network.Container {
	cc := &composeContainer{combine: c.combine, children: make([]network.Container, len(c.children))}
	for i, child := range c.children {
		cc.children[i] = child.NewContainer()
	}
	return cc
}

type composeContainer struct {
	children []network.Container
	combine  func(results ...any) any
}

func (c *composeContainer) Accumulate(f network.Facts) network.Undo {
	undo := make([]network.Undo, len(c.children))
	for i, child := range c.children {
		undo[i] = child.Accumulate(f)
	}
	return network.Undo{Ref: undo}
}

func (c *composeContainer) AccumulateAt(seq uint64, f network.Facts) network.Undo {
	undo := make([]network.Undo, len(c.children))
	for i, child := range c.children {
		undo[i] = network.AccumulateAt(child, seq, f)
	}
	return network.Undo{Ref: undo}
}

func (c *composeContainer) Revert(u network.Undo) bool {
	undo, ok := u.Ref.([]network.Undo)
	if !ok || len(undo) != len(c.children) {
		return false
	}
	for i, child := range c.children {
		if !child.Revert(undo[i]) {
			return false
		}
	}
	return true
}

func (c *composeContainer) Result() any {
	results := make([]any, len(c.children))
	for i, child := range c.children {
		results[i] = child.Result()
	}
	return c.combine(results...)
}

type skipped struct{}

type conditionalCollector struct {
	pred  func(network.Facts) bool
	child network.Collector
}

// Conditionally feeds only tuples satisfying pred to the wrapped collector.
func Conditionally(pred func(network.Facts) bool, c network.Collector) network.Collector {
	return &conditionalCollector{pred: pred, child: c}
}

func (c *conditionalCollector) NewContainer() network.Container {
	return &conditionalContainer{pred: c.pred, child: c.child.NewContainer()}
}

type conditionalContainer struct {
	pred  func(network.Facts) bool
	child network.Container
}

func (c *conditionalContainer) Accumulate(f network.Facts) network.Undo {
	if !c.pred(f) {
		return network.Undo{Ref: skipped{}}
	}
	return c.child.Accumulate(f)
}

func (c *conditionalContainer) AccumulateAt(seq uint64, f network.Facts) network.Undo {
	if !c.pred(f) {
		return network.Undo{Ref: skipped{}}
	}
	return network.AccumulateAt(c.child, seq, f)
}

func (c *conditionalContainer) Revert(u network.Undo) bool {
	if _, ok := u.Ref.(skipped); ok {
		return true
	}
	return c.child.Revert(u)
}

func (c *conditionalContainer) Result() any { return c.child.Result() }
