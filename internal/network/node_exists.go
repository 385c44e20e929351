// internal/network/node_exists.go
package network

/*
 * Exists / not-exists node.
 *
 * Left tuples pass through unchanged; the node only decides whether they are
 * visible downstream. Each left tuple carries a counter of currently matching
 * right tuples. Downstream events fire only when a counter crosses 0<->1
 * (relative to shouldExist), never once per matching pair.
 *
 * Without filtering joiners every pair in the same index bucket matches, so
 * counts come straight from the indexer. With filtering joiners each passing
 * pair is recorded as a tracker on both sides, so retracting either side
 * decrements exactly the counters it incremented.
 *
 * Counters touched by one upstream event are collected as dirty and their
 * visibility is settled once at the end of the event.
 *
 * Left slots:  keys, index entry, counter.
 * Right slots: keys, index entry, trackers.
 */

type existsCounter struct {
	left     *Tuple
	count    int
	visible  bool
	dirty    bool
	trackers elementList[*existsTracker]
}

type existsTracker struct {
	counter   *existsCounter
	right     *Tuple
	leftElem  *element[*existsTracker]
	rightElem *element[*existsTracker]
}

type existsSlots struct {
	keys, entry, state int
}

type existsNode struct {
	nodeBase
	shouldExist bool
	joiners     *joinerSet
	leftSlots   existsSlots
	rightSlots  existsSlots
	leftArity   int
	rightArity  int
	leftIndex   indexer
	rightIndex  indexer
	next        Lifecycle
	dirty       []*existsCounter
}

func newExistsNode(base nodeBase, shouldExist bool, js *joinerSet, left, right existsSlots, leftArity, rightArity int, next Lifecycle) *existsNode {
	return &existsNode{
		nodeBase:    base,
		shouldExist: shouldExist,
		joiners:     js,
		leftSlots:   left,
		rightSlots:  right,
		leftArity:   leftArity,
		rightArity:  rightArity,
		leftIndex:   js.newIndexer(true),
		rightIndex:  js.newIndexer(false),
		next:        next,
	}
}

func (n *existsNode) passes(l, r *Tuple) bool {
	var buf [4]any
	copy(buf[:], l.facts[:n.leftArity])
	copy(buf[n.leftArity:], r.facts[:n.rightArity])
	return n.joiners.test(buf[:n.leftArity+n.rightArity])
}

func (n *existsNode) matching(c *existsCounter) bool {
	return (c.count > 0) == n.shouldExist
}

func (n *existsNode) markDirty(c *existsCounter) {
	if !c.dirty {
		c.dirty = true
		n.dirty = append(n.dirty, c)
	}
}

func (n *existsNode) track(c *existsCounter, r *Tuple) {
	tr := &existsTracker{counter: c, right: r}
	tr.leftElem = c.trackers.add(tr)
	tr.rightElem = r.store[n.rightSlots.state].(*elementList[*existsTracker]).add(tr)
	c.count++
}

func (n *existsNode) untrack(tr *existsTracker) {
	rs := tr.right.store[n.rightSlots.state].(*elementList[*existsTracker])
	if !tr.counter.trackers.remove(tr.leftElem) || !rs.remove(tr.rightElem) {
		n.fail(tr.counter.left, "filtering tracker missing from its lists")
	}
	tr.counter.count--
	if tr.counter.count < 0 {
		n.fail(tr.counter.left, "match counter went negative")
	}
}

// count recomputes a left tuple's matches from scratch against the right index.
func (n *existsNode) count(c *existsCounter, keys indexKeys) {
	if !n.joiners.isFiltering() {
		c.count = n.rightIndex.size(keys)
		return
	}
	n.rightIndex.forEach(keys, func(r *Tuple) {
		if n.passes(c.left, r) {
			n.track(c, r)
		}
	})
}

func (n *existsNode) insertLeft(t *Tuple) {
	if t.store[n.leftSlots.state] != nil {
		n.fail(t, "left insert of tuple already inserted")
	}
	keys := n.joiners.leftKeys(t.Facts())
	c := &existsCounter{left: t}
	t.store[n.leftSlots.keys] = keys
	t.store[n.leftSlots.entry] = n.leftIndex.put(keys, t)
	t.store[n.leftSlots.state] = c
	n.count(c, keys)
	if n.matching(c) {
		c.visible = true
		n.next.Insert(t)
	}
}

func (n *existsNode) updateLeft(t *Tuple) {
	c, ok := t.store[n.leftSlots.state].(*existsCounter)
	if !ok {
		n.fail(t, "left update of tuple never inserted")
	}
	oldKeys := t.store[n.leftSlots.keys].(indexKeys)
	keys := n.joiners.leftKeys(t.Facts())
	if !oldKeys.equal(keys) {
		if !n.leftIndex.remove(oldKeys, t.store[n.leftSlots.entry].(*element[*Tuple])) {
			n.fail(t, "left tuple missing from index under keys %v", oldKeys)
		}
		t.store[n.leftSlots.keys] = keys
		t.store[n.leftSlots.entry] = n.leftIndex.put(keys, t)
	}
	if !oldKeys.equal(keys) || n.joiners.isFiltering() {
		c.trackers.forEach(n.untrack)
		c.count = 0
		n.count(c, keys)
	}
	now := n.matching(c)
	switch {
	case c.visible && now:
		n.next.Update(t)
	case !c.visible && now:
		c.visible = true
		n.next.Insert(t)
	case c.visible && !now:
		c.visible = false
		n.next.Retract(t)
	}
}

func (n *existsNode) retractLeft(t *Tuple) {
	c, ok := t.store[n.leftSlots.state].(*existsCounter)
	if !ok {
		n.fail(t, "left retract of tuple never inserted")
	}
	keys := t.store[n.leftSlots.keys].(indexKeys)
	if !n.leftIndex.remove(keys, t.store[n.leftSlots.entry].(*element[*Tuple])) {
		n.fail(t, "left tuple missing from index under keys %v", keys)
	}
	c.trackers.forEach(n.untrack)
	t.store[n.leftSlots.keys] = nil
	t.store[n.leftSlots.entry] = nil
	t.store[n.leftSlots.state] = nil
	if c.visible {
		c.visible = false
		n.next.Retract(t)
	}
}

func (n *existsNode) insertRight(t *Tuple) {
	if t.store[n.rightSlots.entry] != nil {
		n.fail(t, "right insert of tuple already inserted")
	}
	keys := n.joiners.rightKeys(t.Facts())
	t.store[n.rightSlots.keys] = keys
	t.store[n.rightSlots.entry] = n.rightIndex.put(keys, t)
	t.store[n.rightSlots.state] = &elementList[*existsTracker]{}
	n.addRight(t, keys)
	n.settle()
}

func (n *existsNode) addRight(t *Tuple, keys indexKeys) {
	n.leftIndex.forEach(keys, func(l *Tuple) {
		c := l.store[n.leftSlots.state].(*existsCounter)
		if !n.joiners.isFiltering() {
			c.count++
			n.markDirty(c)
		} else if n.passes(l, t) {
			n.track(c, t)
			n.markDirty(c)
		}
	})
}

func (n *existsNode) removeRight(t *Tuple, keys indexKeys) {
	if n.joiners.isFiltering() {
		t.store[n.rightSlots.state].(*elementList[*existsTracker]).forEach(func(tr *existsTracker) {
			n.untrack(tr)
			n.markDirty(tr.counter)
		})
		return
	}
	n.leftIndex.forEach(keys, func(l *Tuple) {
		c := l.store[n.leftSlots.state].(*existsCounter)
		c.count--
		if c.count < 0 {
			n.fail(l, "match counter went negative")
		}
		n.markDirty(c)
	})
}

func (n *existsNode) updateRight(t *Tuple) {
	entry, ok := t.store[n.rightSlots.entry].(*element[*Tuple])
	if !ok {
		n.fail(t, "right update of tuple never inserted")
	}
	oldKeys := t.store[n.rightSlots.keys].(indexKeys)
	keys := n.joiners.rightKeys(t.Facts())
	if oldKeys.equal(keys) {
		if n.joiners.isFiltering() {
			n.removeRight(t, oldKeys)
			n.addRight(t, keys)
			n.settle()
		}
		return
	}
	n.removeRight(t, oldKeys)
	if !n.rightIndex.remove(oldKeys, entry) {
		n.fail(t, "right tuple missing from index under keys %v", oldKeys)
	}
	t.store[n.rightSlots.keys] = keys
	t.store[n.rightSlots.entry] = n.rightIndex.put(keys, t)
	n.addRight(t, keys)
	n.settle()
}

func (n *existsNode) retractRight(t *Tuple) {
	entry, ok := t.store[n.rightSlots.entry].(*element[*Tuple])
	if !ok {
		n.fail(t, "right retract of tuple never inserted")
	}
	keys := t.store[n.rightSlots.keys].(indexKeys)
	if !n.rightIndex.remove(keys, entry) {
		n.fail(t, "right tuple missing from index under keys %v", keys)
	}
	n.removeRight(t, keys)
	t.store[n.rightSlots.keys] = nil
	t.store[n.rightSlots.entry] = nil
	t.store[n.rightSlots.state] = nil
	n.settle()
}

// settle emits the visibility changes of every dirty counter, inserts first.
func (n *existsNode) settle() {
	if len(n.dirty) == 0 {
		return
	}
	dirty := n.dirty
	n.dirty = nil
	var ins, ret []*Tuple
	for _, c := range dirty {
		c.dirty = false
		now := n.matching(c)
		if now && !c.visible {
			c.visible = true
			ins = append(ins, c.left)
		} else if !now && c.visible {
			c.visible = false
			ret = append(ret, c.left)
		}
	}
	for _, t := range ins {
		n.next.Insert(t)
	}
	for _, t := range ret {
		n.next.Retract(t)
	}
}
