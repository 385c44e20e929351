// internal/network/node_source.go
package network

import "reflect"

// sourceNode turns facts of one type into arity-1 tuples. Static sources
// feed precomputed streams and ignore plain updates.
type sourceNode struct {
	nodeBase
	typ       reflect.Type
	static    bool
	storeSize int
	tuples    map[any]*Tuple
	out       outbox
}

func newSourceNode(id int, typ reflect.Type, storeSize int, next Lifecycle) *sourceNode {
	n := &sourceNode{
		nodeBase:  nodeBase{id: id, kind: "forEach(" + typ.String() + ")"},
		typ:       typ,
		storeSize: storeSize,
		tuples:    make(map[any]*Tuple),
	}
	n.out = outbox{owner: n.nodeBase, next: next}
	return n
}

func (n *sourceNode) accepts(t reflect.Type) bool {
	if n.typ.Kind() == reflect.Interface {
		return t.Implements(n.typ)
	}
	return t == n.typ
}

func (n *sourceNode) contains(fact any) bool {
	_, ok := n.tuples[fact]
	return ok
}

func (n *sourceNode) insert(fact any) {
	if _, ok := n.tuples[fact]; ok {
		n.fail(nil, "insert of fact %v already inserted", fact)
	}
	t := newTuple(1, n.storeSize)
	t.facts[0] = fact
	n.tuples[fact] = t
	n.out.insert(t)
	n.out.flush()
}

func (n *sourceNode) update(fact any) {
	t, ok := n.tuples[fact]
	if !ok {
		n.fail(nil, "update of fact %v never inserted", fact)
	}
	n.out.update(t)
	n.out.flush()
}

func (n *sourceNode) retract(fact any) {
	t, ok := n.tuples[fact]
	if !ok {
		n.fail(nil, "retract of fact %v never inserted", fact)
	}
	delete(n.tuples, fact)
	n.out.retract(t)
	n.out.flush()
}

func (n *sourceNode) size() int { return len(n.tuples) }
