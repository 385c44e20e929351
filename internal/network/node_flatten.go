// internal/network/node_flatten.go
package network

// flattenNode replaces the last fact of each input tuple with every element
// of fn(lastFact), producing one output tuple per element. On update, output
// tuples are reused positionally; surplus ones are retracted, missing ones
// inserted.
type flattenNode struct {
	nodeBase
	slot      int
	fn        func(any) []any
	storeSize int
	out       outbox
}

type flattenOuts struct {
	tuples []*Tuple
}

func (n *flattenNode) fill(in, o *Tuple, item any) {
	f := in.Facts()
	copy(o.facts[:], f[:len(f)-1])
	o.facts[len(f)-1] = item
}

func (n *flattenNode) Insert(t *Tuple) {
	if t.store[n.slot] != nil {
		n.fail(t, "insert of tuple already inserted")
	}
	outs := &flattenOuts{}
	for _, item := range n.fn(t.facts[t.arity-1]) {
		o := newTuple(t.arity, n.storeSize)
		n.fill(t, o, item)
		outs.tuples = append(outs.tuples, o)
		n.out.insert(o)
	}
	t.store[n.slot] = outs
	n.out.flush()
}

func (n *flattenNode) Update(t *Tuple) {
	outs, ok := t.store[n.slot].(*flattenOuts)
	if !ok {
		n.fail(t, "update of tuple never inserted")
	}
	items := n.fn(t.facts[t.arity-1])
	kept := outs.tuples
	if len(kept) > len(items) {
		for _, o := range kept[len(items):] {
			n.out.retract(o)
		}
		kept = kept[:len(items)]
	}
	for i, o := range kept {
		n.fill(t, o, items[i])
		n.out.update(o)
	}
	for _, item := range items[len(kept):] {
		o := newTuple(t.arity, n.storeSize)
		n.fill(t, o, item)
		kept = append(kept, o)
		n.out.insert(o)
	}
	outs.tuples = kept
	n.out.flush()
}

func (n *flattenNode) Retract(t *Tuple) {
	outs, ok := t.store[n.slot].(*flattenOuts)
	if !ok {
		n.fail(t, "retract of tuple never inserted")
	}
	t.store[n.slot] = nil
	for _, o := range outs.tuples {
		n.out.retract(o)
	}
	n.out.flush()
}
