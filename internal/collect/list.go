// internal/collect/list.go
package collect

import (
	"container/list"
	"sort"

	"github.com/solatis/scorekeeper/internal/network"
)

// Lists and sets keep arrival order. Inside a group node the arrival
// sequence of an input tuple survives its updates, so an updated tuple's
// value stays where it was instead of moving to the back.

type listItem struct {
	value   any
	seq     uint64
	removed bool
}

type toListCollector struct {
	fn func(network.Facts) any
}

// ToList collects fn values in arrival order, duplicates included.
// Result is []any, a fresh slice per call.
func ToList(fn func(network.Facts) any) network.Collector {
	return &toListCollector{fn: fn}
}

func (c *toListCollector) NewContainer() network.Container {
	return &toListContainer{fn: c.fn, items: list.New()}
}

type toListContainer struct {
	fn    func(network.Facts) any
	items *list.List
	seq   uint64
}

func (c *toListContainer) Accumulate(f network.Facts) network.Undo {
	return c.AccumulateAt(c.seq+1, f)
}

func (c *toListContainer) AccumulateAt(seq uint64, f network.Facts) network.Undo {
	if seq > c.seq {
		c.seq = seq
	}
	item := &listItem{value: c.fn(f), seq: seq}
	// nearly always appends
	for e := c.items.Back(); e != nil; e = e.Prev() {
		if e.Value.(*listItem).seq < seq {
			return network.Undo{Ref: c.items.InsertAfter(item, e)}
		}
	}
	return network.Undo{Ref: c.items.PushFront(item)}
}

func (c *toListContainer) Revert(u network.Undo) bool {
	e, ok := u.Ref.(*list.Element)
	if !ok {
		return false
	}
	item := e.Value.(*listItem)
	if item.removed {
		return false
	}
	item.removed = true
	c.items.Remove(e)
	return true
}

func (c *toListContainer) Result() any {
	out := make([]any, 0, c.items.Len())
	for e := c.items.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*listItem).value)
	}
	return out
}

type toSetCollector struct {
	fn func(network.Facts) any
}

// ToSet collects distinct fn values ordered by the earliest live arrival of
// each value. Result is []any.
func ToSet(fn func(network.Facts) any) network.Collector {
	return &toSetCollector{fn: fn}
}

func (c *toSetCollector) NewContainer() network.Container {
	return &toSetContainer{fn: c.fn, entries: make(map[any]*setEntry), order: list.New()}
}

// setEntry holds the sorted arrival sequences of every live contribution of
// one value.
type setEntry struct {
	key  any
	seqs []uint64
	elem *list.Element
}

type setToken struct {
	key any
	seq uint64
}

type toSetContainer struct {
	fn      func(network.Facts) any
	entries map[any]*setEntry
	order   *list.List
	seq     uint64
}

func (c *toSetContainer) Accumulate(f network.Facts) network.Undo {
	return c.AccumulateAt(c.seq+1, f)
}

func (c *toSetContainer) AccumulateAt(seq uint64, f network.Facts) network.Undo {
	if seq > c.seq {
		c.seq = seq
	}
	k := c.fn(f)
	e, ok := c.entries[k]
	if !ok {
		e = &setEntry{key: k}
		c.entries[k] = e
	}
	i := sort.Search(len(e.seqs), func(i int) bool { return e.seqs[i] >= seq })
	e.seqs = append(e.seqs, 0)
	copy(e.seqs[i+1:], e.seqs[i:])
	e.seqs[i] = seq
	if i == 0 {
		c.place(e)
	}
	return network.Undo{Ref: setToken{key: k, seq: seq}}
}

func (c *toSetContainer) Revert(u network.Undo) bool {
	tok, ok := u.Ref.(setToken)
	if !ok {
		return false
	}
	e, ok := c.entries[tok.key]
	if !ok {
		return false
	}
	i := sort.Search(len(e.seqs), func(i int) bool { return e.seqs[i] >= tok.seq })
	if i == len(e.seqs) || e.seqs[i] != tok.seq {
		return false
	}
	e.seqs = append(e.seqs[:i], e.seqs[i+1:]...)
	switch {
	case len(e.seqs) == 0:
		c.order.Remove(e.elem)
		delete(c.entries, tok.key)
	case i == 0:
		c.place(e)
	}
	return true
}

// place moves e to its position by earliest arrival.
func (c *toSetContainer) place(e *setEntry) {
	if e.elem != nil {
		c.order.Remove(e.elem)
	}
	first := e.seqs[0]
	for p := c.order.Back(); p != nil; p = p.Prev() {
		if p.Value.(*setEntry).seqs[0] < first {
			e.elem = c.order.InsertAfter(e, p)
			return
		}
	}
	e.elem = c.order.PushFront(e)
}

func (c *toSetContainer) Result() any {
	out := make([]any, 0, c.order.Len())
	for p := c.order.Front(); p != nil; p = p.Next() {
		out = append(out, p.Value.(*setEntry).key)
	}
	return out
}
