// internal/network/node_join.go
package network

/*
 * Join node.
 *
 * Each side keeps its tuples in an indexer keyed by that side's joiner keys,
 * plus a per-tuple list of the out tuples it participates in. A left insert
 * probes the right indexer and vice versa. Retracting either side removes
 * the pairing from both lists in O(1) through the stored list elements.
 *
 * Updates keep out tuple identity whenever the keys did not change. With
 * filtering joiners the pairing is re-tested per candidate: new passes insert,
 * new failures retract, survivors update.
 *
 * Left slots:  keys, index entry, out list.
 * Right slots: keys, index entry, out list.
 */

type joinOut struct {
	tuple       *Tuple
	left, right *Tuple
	leftElem    *element[*joinOut]
	rightElem   *element[*joinOut]
}

type joinSlots struct {
	keys, entry, outs int
}

type joinNode struct {
	nodeBase
	joiners    *joinerSet
	leftSlots  joinSlots
	rightSlots joinSlots
	leftArity  int
	rightArity int
	leftIndex  indexer
	rightIndex indexer
	storeSize  int
	out        outbox
}

func newJoinNode(base nodeBase, js *joinerSet, left, right joinSlots, leftArity, rightArity, storeSize int, next Lifecycle) *joinNode {
	n := &joinNode{
		nodeBase:   base,
		joiners:    js,
		leftSlots:  left,
		rightSlots: right,
		leftArity:  leftArity,
		rightArity: rightArity,
		leftIndex:  js.newIndexer(true),
		rightIndex: js.newIndexer(false),
		storeSize:  storeSize,
	}
	n.out = outbox{owner: base, next: next}
	return n
}

func (n *joinNode) combined(l, r *Tuple) Facts {
	var buf [4]any
	copy(buf[:], l.facts[:n.leftArity])
	copy(buf[n.leftArity:], r.facts[:n.rightArity])
	return buf[:n.leftArity+n.rightArity]
}

func (n *joinNode) matches(l, r *Tuple) bool {
	return !n.joiners.isFiltering() || n.joiners.test(n.combined(l, r))
}

func (n *joinNode) pair(l, r *Tuple) {
	o := newTuple(n.leftArity+n.rightArity, n.storeSize)
	jo := &joinOut{tuple: o, left: l, right: r}
	n.setFacts(jo)
	jo.leftElem = l.store[n.leftSlots.outs].(*elementList[*joinOut]).add(jo)
	jo.rightElem = r.store[n.rightSlots.outs].(*elementList[*joinOut]).add(jo)
	n.out.insert(o)
}

func (n *joinNode) setFacts(jo *joinOut) {
	copy(jo.tuple.facts[:n.leftArity], jo.left.facts[:n.leftArity])
	copy(jo.tuple.facts[n.leftArity:], jo.right.facts[:n.rightArity])
}

func (n *joinNode) unpair(jo *joinOut) {
	lo := jo.left.store[n.leftSlots.outs].(*elementList[*joinOut])
	ro := jo.right.store[n.rightSlots.outs].(*elementList[*joinOut])
	if !lo.remove(jo.leftElem) || !ro.remove(jo.rightElem) {
		n.fail(jo.tuple, "out tuple missing from its input lists")
	}
	n.out.retract(jo.tuple)
}

func (n *joinNode) refresh(jo *joinOut) {
	n.setFacts(jo)
	n.out.update(jo.tuple)
}

func (n *joinNode) insertLeft(t *Tuple) {
	if t.store[n.leftSlots.outs] != nil {
		n.fail(t, "left insert of tuple already inserted")
	}
	keys := n.joiners.leftKeys(t.Facts())
	t.store[n.leftSlots.keys] = keys
	t.store[n.leftSlots.entry] = n.leftIndex.put(keys, t)
	t.store[n.leftSlots.outs] = &elementList[*joinOut]{}
	n.rightIndex.forEach(keys, func(r *Tuple) {
		if n.matches(t, r) {
			n.pair(t, r)
		}
	})
	n.out.flush()
}

func (n *joinNode) updateLeft(t *Tuple) {
	outs, ok := t.store[n.leftSlots.outs].(*elementList[*joinOut])
	if !ok {
		n.fail(t, "left update of tuple never inserted")
	}
	oldKeys := t.store[n.leftSlots.keys].(indexKeys)
	keys := n.joiners.leftKeys(t.Facts())
	if oldKeys.equal(keys) {
		if !n.joiners.isFiltering() {
			outs.forEach(n.refresh)
		} else {
			byRight := make(map[*Tuple]*joinOut, outs.len())
			outs.forEach(func(jo *joinOut) { byRight[jo.right] = jo })
			n.rightIndex.forEach(keys, func(r *Tuple) {
				n.reconcile(t, r, byRight[r])
			})
		}
		n.out.flush()
		return
	}
	if !n.leftIndex.remove(oldKeys, t.store[n.leftSlots.entry].(*element[*Tuple])) {
		n.fail(t, "left tuple missing from index under keys %v", oldKeys)
	}
	outs.forEach(n.unpair)
	t.store[n.leftSlots.keys] = keys
	t.store[n.leftSlots.entry] = n.leftIndex.put(keys, t)
	n.rightIndex.forEach(keys, func(r *Tuple) {
		if n.matches(t, r) {
			n.pair(t, r)
		}
	})
	n.out.flush()
}

func (n *joinNode) retractLeft(t *Tuple) {
	outs, ok := t.store[n.leftSlots.outs].(*elementList[*joinOut])
	if !ok {
		n.fail(t, "left retract of tuple never inserted")
	}
	keys := t.store[n.leftSlots.keys].(indexKeys)
	if !n.leftIndex.remove(keys, t.store[n.leftSlots.entry].(*element[*Tuple])) {
		n.fail(t, "left tuple missing from index under keys %v", keys)
	}
	outs.forEach(n.unpair)
	t.store[n.leftSlots.keys] = nil
	t.store[n.leftSlots.entry] = nil
	t.store[n.leftSlots.outs] = nil
	n.out.flush()
}

func (n *joinNode) insertRight(t *Tuple) {
	if t.store[n.rightSlots.outs] != nil {
		n.fail(t, "right insert of tuple already inserted")
	}
	keys := n.joiners.rightKeys(t.Facts())
	t.store[n.rightSlots.keys] = keys
	t.store[n.rightSlots.entry] = n.rightIndex.put(keys, t)
	t.store[n.rightSlots.outs] = &elementList[*joinOut]{}
	n.leftIndex.forEach(keys, func(l *Tuple) {
		if n.matches(l, t) {
			n.pair(l, t)
		}
	})
	n.out.flush()
}

func (n *joinNode) updateRight(t *Tuple) {
	outs, ok := t.store[n.rightSlots.outs].(*elementList[*joinOut])
	if !ok {
		n.fail(t, "right update of tuple never inserted")
	}
	oldKeys := t.store[n.rightSlots.keys].(indexKeys)
	keys := n.joiners.rightKeys(t.Facts())
	if oldKeys.equal(keys) {
		if !n.joiners.isFiltering() {
			outs.forEach(n.refresh)
		} else {
			byLeft := make(map[*Tuple]*joinOut, outs.len())
			outs.forEach(func(jo *joinOut) { byLeft[jo.left] = jo })
			n.leftIndex.forEach(keys, func(l *Tuple) {
				n.reconcile(l, t, byLeft[l])
			})
		}
		n.out.flush()
		return
	}
	if !n.rightIndex.remove(oldKeys, t.store[n.rightSlots.entry].(*element[*Tuple])) {
		n.fail(t, "right tuple missing from index under keys %v", oldKeys)
	}
	outs.forEach(n.unpair)
	t.store[n.rightSlots.keys] = keys
	t.store[n.rightSlots.entry] = n.rightIndex.put(keys, t)
	n.leftIndex.forEach(keys, func(l *Tuple) {
		if n.matches(l, t) {
			n.pair(l, t)
		}
	})
	n.out.flush()
}

func (n *joinNode) retractRight(t *Tuple) {
	outs, ok := t.store[n.rightSlots.outs].(*elementList[*joinOut])
	if !ok {
		n.fail(t, "right retract of tuple never inserted")
	}
	keys := t.store[n.rightSlots.keys].(indexKeys)
	if !n.rightIndex.remove(keys, t.store[n.rightSlots.entry].(*element[*Tuple])) {
		n.fail(t, "right tuple missing from index under keys %v", keys)
	}
	outs.forEach(n.unpair)
	t.store[n.rightSlots.keys] = nil
	t.store[n.rightSlots.entry] = nil
	t.store[n.rightSlots.outs] = nil
	n.out.flush()
}

// reconcile re-tests one candidate pairing after an update with unchanged keys.
func (n *joinNode) reconcile(l, r *Tuple, existing *joinOut) {
	if n.matches(l, r) {
		if existing == nil {
			n.pair(l, r)
		} else {
			n.refresh(existing)
		}
		return
	}
	if existing != nil {
		n.unpair(existing)
	}
}
