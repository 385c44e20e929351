// internal/collect/minmax.go
package collect

import (
	"sort"

	"github.com/solatis/scorekeeper/internal/network"
)

/*
 * Min / max.
 *
 * Entries are kept sorted by (value, arrival sequence); max containers
 * reverse the value order but not the sequence. Among values the comparator
 * considers equal, the earliest arrival is the result. Retracting it
 * promotes the next-oldest equal value. The group node supplies the arrival
 * sequence, so an updated tuple keeps its place among ties.
 */

type orderedEntry struct {
	value any
	seq   uint64
}

type orderedCollector struct {
	fn  func(network.Facts) any
	cmp func(a, b any) int
	max bool
}

// Min returns the smallest fn value by natural ordering, or nil when empty.
func Min(fn func(network.Facts) any) network.Collector {
	return &orderedCollector{fn: fn, cmp: network.CompareNatural}
}

// Max returns the largest fn value by natural ordering, or nil when empty.
func Max(fn func(network.Facts) any) network.Collector {
	return &orderedCollector{fn: fn, cmp: network.CompareNatural, max: true}
}

// MinBy returns the fn value that cmp orders first, or nil when empty.
func MinBy(fn func(network.Facts) any, cmp func(a, b any) int) network.Collector {
	return &orderedCollector{fn: fn, cmp: cmp}
}

// MaxBy returns the fn value that cmp orders last, or nil when empty.
func MaxBy(fn func(network.Facts) any, cmp func(a, b any) int) network.Collector {
	return &orderedCollector{fn: fn, cmp: cmp, max: true}
}

func (c *orderedCollector) NewContainer() network.Container {
	return &orderedContainer{c: c}
}

type orderedContainer struct {
	c       *orderedCollector
	entries []*orderedEntry
	seq     uint64
}

func (o *orderedContainer) before(a, b *orderedEntry) bool {
	r := o.c.cmp(a.value, b.value)
	if o.c.max {
		r = -r
	}
	if r != 0 {
		return r < 0
	}
	return a.seq < b.seq
}

func (o *orderedContainer) position(e *orderedEntry) int {
	return sort.Search(len(o.entries), func(i int) bool { return !o.before(o.entries[i], e) })
}

func (o *orderedContainer) Accumulate(f network.Facts) network.Undo {
	return o.AccumulateAt(o.seq+1, f)
}

func (o *orderedContainer) AccumulateAt(seq uint64, f network.Facts) network.Undo {
	if seq > o.seq {
		o.seq = seq
	}
	e := &orderedEntry{value: o.c.fn(f), seq: seq}
	i := o.position(e)
	o.entries = append(o.entries, nil)
	copy(o.entries[i+1:], o.entries[i:])
	o.entries[i] = e
	return network.Undo{Ref: e}
}

func (o *orderedContainer) Revert(u network.Undo) bool {
	e, ok := u.Ref.(*orderedEntry)
	if !ok {
		return false
	}
	i := o.position(e)
	if i >= len(o.entries) || o.entries[i] != e {
		return false
	}
	o.entries = append(o.entries[:i], o.entries[i+1:]...)
	return true
}

func (o *orderedContainer) Result() any {
	if len(o.entries) == 0 {
		return nil
	}
	return o.entries[0].value
}
