// internal/network/node_group.go
package network

import (
	"reflect"

	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Group-by node.
 *
 * One group per distinct key, holding a container per collector, the number
 * of live input tuples and the output tuple. Output facts are the key values
 * followed by the collector results.
 *
 * Each input tuple remembers its group and the undo tokens its accumulation
 * returned. Retract reverts exactly those tokens; it never re-reads facts.
 *
 * Groups touched by one upstream event are settled at the end of it:
 *   - no live inputs left: retract the output (if propagated) and drop the group
 *   - no output yet: insert it
 *   - an input was updated in place: update it
 *   - results changed: update it
 * Results are compared with == when their dynamic types are comparable;
 * anything else (lists, sets) always counts as changed. An in-place update
 * propagates even with equal results, because the output facts may be the
 * very objects that changed.
 *
 * Every input tuple gets an arrival sequence on insert and keeps it across
 * updates. Containers that order ties (min/max, lists, sets) receive it via
 * AccumulateAt, so re-accumulating an updated tuple does not move it behind
 * later arrivals.
 *
 * Distinct is a group-by whose key is the whole input fact array and whose
 * output facts are those same facts.
 *
 * Input slot: membership (group, undo tokens, arrival sequence).
 */

type groupKeyNone struct{}

type group struct {
	key         any
	containers  []Container
	parentCount int
	tuple       *Tuple
	results     []any
	dirty       bool
	touched     bool
}

type groupMembership struct {
	g    *group
	undo []Undo
	seq  uint64
}

type groupNode struct {
	nodeBase
	slot       int
	keys       []func(Facts) any
	collectors []Collector
	distinct   bool
	outArity   int
	storeSize  int
	groups     map[any]*group
	dirty      []*group
	seq        uint64
	out        outbox
}

func (n *groupNode) key(f Facts) any {
	if n.distinct {
		var k [types.MaxArity]any
		copy(k[:], f)
		return k
	}
	switch len(n.keys) {
	case 0:
		return groupKeyNone{}
	case 1:
		return n.keys[0](f)
	default:
		var k [types.MaxArity]any
		for i, fn := range n.keys {
			k[i] = fn(f)
		}
		return k
	}
}

func (n *groupNode) markDirty(g *group) {
	if !g.dirty {
		g.dirty = true
		n.dirty = append(n.dirty, g)
	}
}

func (n *groupNode) join(k any, f Facts, seq uint64) *groupMembership {
	g, ok := n.groups[k]
	if !ok {
		g = &group{key: k, containers: make([]Container, len(n.collectors))}
		for i, c := range n.collectors {
			g.containers[i] = c.NewContainer()
		}
		n.groups[k] = g
	}
	g.parentCount++
	m := &groupMembership{g: g, undo: make([]Undo, len(g.containers)), seq: seq}
	for i, c := range g.containers {
		m.undo[i] = AccumulateAt(c, seq, f)
	}
	n.markDirty(g)
	return m
}

func (n *groupNode) leave(t *Tuple, m *groupMembership) {
	for i, c := range m.g.containers {
		if !c.Revert(m.undo[i]) {
			n.fail(t, "collector %d rejected undo token for group %v", i, m.g.key)
		}
	}
	m.undo = nil
	m.g.parentCount--
	if m.g.parentCount < 0 {
		n.fail(t, "group %v parent count went negative", m.g.key)
	}
	n.markDirty(m.g)
}

func (n *groupNode) Insert(t *Tuple) {
	if t.store[n.slot] != nil {
		n.fail(t, "insert of tuple already inserted")
	}
	f := t.Facts()
	n.seq++
	t.store[n.slot] = n.join(n.key(f), f, n.seq)
	n.settle()
}

func (n *groupNode) Update(t *Tuple) {
	m, ok := t.store[n.slot].(*groupMembership)
	if !ok {
		n.fail(t, "update of tuple never inserted")
	}
	f := t.Facts()
	k := n.key(f)
	if k == m.g.key {
		for i, c := range m.g.containers {
			if !c.Revert(m.undo[i]) {
				n.fail(t, "collector %d rejected undo token for group %v", i, k)
			}
			m.undo[i] = AccumulateAt(c, m.seq, f)
		}
		m.g.touched = true
		n.markDirty(m.g)
	} else {
		n.leave(t, m)
		t.store[n.slot] = n.join(k, f, m.seq)
	}
	n.settle()
}

func (n *groupNode) Retract(t *Tuple) {
	m, ok := t.store[n.slot].(*groupMembership)
	if !ok {
		n.fail(t, "retract of tuple never inserted")
	}
	t.store[n.slot] = nil
	n.leave(t, m)
	n.settle()
}

func (n *groupNode) settle() {
	dirty := n.dirty
	n.dirty = n.dirty[:0]
	for _, g := range dirty {
		touched := g.touched
		g.dirty, g.touched = false, false
		switch {
		case g.parentCount == 0:
			delete(n.groups, g.key)
			if g.tuple != nil {
				n.out.retract(g.tuple)
				g.tuple = nil
			}
		case g.tuple == nil:
			g.tuple = newTuple(n.outArity, n.storeSize)
			g.results = n.results(g)
			n.setFacts(g)
			n.out.insert(g.tuple)
		default:
			results := n.results(g)
			if !touched && sameResults(g.results, results) {
				continue
			}
			g.results = results
			n.setFacts(g)
			n.out.update(g.tuple)
		}
	}
	n.out.flush()
}

func (n *groupNode) results(g *group) []any {
	r := make([]any, len(g.containers))
	for i, c := range g.containers {
		r[i] = c.Result()
	}
	return r
}

func (n *groupNode) setFacts(g *group) {
	o := g.tuple
	if n.distinct {
		k := g.key.([types.MaxArity]any)
		copy(o.facts[:n.outArity], k[:n.outArity])
		return
	}
	i := 0
	switch len(n.keys) {
	case 0:
	case 1:
		o.facts[0] = g.key
		i = 1
	default:
		k := g.key.([types.MaxArity]any)
		i = copy(o.facts[:], k[:len(n.keys)])
	}
	copy(o.facts[i:], g.results)
}

func sameResults(a, b []any) bool {
	for i := range a {
		if !sameValue(a[i], b[i]) {
			return false
		}
	}
	return true
}

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
