// internal/network/node_filter.go
package network

// filterNode passes tuples through while the predicate holds. The tuple's
// slot records the last verdict: nil before insert, then true or false.
type filterNode struct {
	nodeBase
	slot int
	pred func(Facts) bool
	next Lifecycle
}

func (n *filterNode) Insert(t *Tuple) {
	if t.store[n.slot] != nil {
		n.fail(t, "insert of tuple already inserted")
	}
	pass := n.pred(t.Facts())
	t.store[n.slot] = pass
	if pass {
		n.next.Insert(t)
	}
}

func (n *filterNode) Update(t *Tuple) {
	v := t.store[n.slot]
	if v == nil {
		n.fail(t, "update of tuple never inserted")
	}
	was := v.(bool)
	pass := n.pred(t.Facts())
	t.store[n.slot] = pass
	switch {
	case was && pass:
		n.next.Update(t)
	case !was && pass:
		n.next.Insert(t)
	case was && !pass:
		n.next.Retract(t)
	}
}

func (n *filterNode) Retract(t *Tuple) {
	v := t.store[n.slot]
	if v == nil {
		n.fail(t, "retract of tuple never inserted")
	}
	t.store[n.slot] = nil
	if v.(bool) {
		n.next.Retract(t)
	}
}
