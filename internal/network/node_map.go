// internal/network/node_map.go
package network

// mapNode creates one output tuple per input tuple. Updates always recompute
// the mapped facts; equal outputs from different inputs stay separate tuples.
type mapNode struct {
	nodeBase
	slot      int
	fns       []func(Facts) any
	storeSize int
	out       outbox
}

func (n *mapNode) Insert(t *Tuple) {
	if t.store[n.slot] != nil {
		n.fail(t, "insert of tuple already inserted")
	}
	o := newTuple(len(n.fns), n.storeSize)
	n.apply(t, o)
	t.store[n.slot] = o
	n.out.insert(o)
	n.out.flush()
}

func (n *mapNode) Update(t *Tuple) {
	o, ok := t.store[n.slot].(*Tuple)
	if !ok {
		n.fail(t, "update of tuple never inserted")
	}
	n.apply(t, o)
	n.out.update(o)
	n.out.flush()
}

func (n *mapNode) Retract(t *Tuple) {
	o, ok := t.store[n.slot].(*Tuple)
	if !ok {
		n.fail(t, "retract of tuple never inserted")
	}
	t.store[n.slot] = nil
	n.out.retract(o)
	n.out.flush()
}

func (n *mapNode) apply(in, o *Tuple) {
	facts := in.Facts()
	for i, fn := range n.fns {
		o.facts[i] = fn(facts)
	}
}
