// internal/network/node_concat.go
package network

// concatNode merges two streams into one. The shorter side is padded up to
// the output arity by functions of its own facts. Each input tuple owns one
// output tuple, so the same combination arriving from both sides yields two
// output tuples.
type concatNode struct {
	nodeBase
	leftSlot, rightSlot int
	arity               int
	padLeft, padRight   []func(Facts) any
	storeSize           int
	out                 outbox
}

func (n *concatNode) build(t, o *Tuple, pad []func(Facts) any) {
	f := t.Facts()
	copy(o.facts[:], f)
	for i, fn := range pad {
		o.facts[len(f)+i] = fn(f)
	}
}

func (n *concatNode) insert(t *Tuple, slot int, pad []func(Facts) any) {
	if t.store[slot] != nil {
		n.fail(t, "insert of tuple already inserted")
	}
	o := newTuple(n.arity, n.storeSize)
	n.build(t, o, pad)
	t.store[slot] = o
	n.out.insert(o)
	n.out.flush()
}

func (n *concatNode) update(t *Tuple, slot int, pad []func(Facts) any) {
	o, ok := t.store[slot].(*Tuple)
	if !ok {
		n.fail(t, "update of tuple never inserted")
	}
	n.build(t, o, pad)
	n.out.update(o)
	n.out.flush()
}

func (n *concatNode) retract(t *Tuple, slot int) {
	o, ok := t.store[slot].(*Tuple)
	if !ok {
		n.fail(t, "retract of tuple never inserted")
	}
	t.store[slot] = nil
	n.out.retract(o)
	n.out.flush()
}

func (n *concatNode) insertLeft(t *Tuple)   { n.insert(t, n.leftSlot, n.padLeft) }
func (n *concatNode) updateLeft(t *Tuple)   { n.update(t, n.leftSlot, n.padLeft) }
func (n *concatNode) retractLeft(t *Tuple)  { n.retract(t, n.leftSlot) }
func (n *concatNode) insertRight(t *Tuple)  { n.insert(t, n.rightSlot, n.padRight) }
func (n *concatNode) updateRight(t *Tuple)  { n.update(t, n.rightSlot, n.padRight) }
func (n *concatNode) retractRight(t *Tuple) { n.retract(t, n.rightSlot) }
