// internal/network/precompute.go
package network

import (
	"fmt"
	"reflect"

	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Precomputed streams.
 *
 * Precompute declares a sub-network over facts whose relevant properties do
 * not change during solving. Its sources are static: they receive inserts
 * and retracts like any other source, but UpdateFact skips them. The
 * precompute node mirrors every tuple leaving the sub-network into the main
 * network and, on UpdateFact, re-propagates the mirrors containing the
 * updated fact as updates. Downstream filters and joins therefore still see
 * changed planning variables; only the precomputed part is not re-evaluated.
 *
 * RefreshFact re-evaluates the static sources too, for changes to the
 * properties the precomputed part reads. A precompute nested in another one
 * is entirely static and is never touched by UpdateFact.
 *
 * The sub-network is declared on its own Factory, so its streams are shared
 * among themselves but never with the main declarations. At declaration its
 * streams are appended to the main factory after the streams declared so far,
 * which keeps declaration order topological.
 *
 * Input slot (on the sub-network's output source): the mirror tuple.
 */

// Precompute declares build on a separate factory and returns its result as
// a stream of this factory. build may not declare constraints nor use
// streams of another factory. Calls with the same build function share one
// sub-network.
func (f *Factory) Precompute(build func(pf *Factory) *Stream) *Stream {
	if f.err != nil {
		return &Stream{f: f}
	}
	key := shareKey(kindPrecompute, nil, funcIdentity(build))
	if existing, ok := f.byKey[key]; ok {
		f.sharedHits++
		return &Stream{f: f, s: existing}
	}

	pf := NewFactory(f.def)
	pf.pkg = f.pkg
	pf.static = true
	out := build(pf)
	switch {
	case pf.err != nil:
		f.setErr(fmt.Errorf("precompute: %w", pf.err))
	case out == nil || out.s == nil:
		f.setErr(fmt.Errorf("%w: precompute returned no stream", types.ErrInvalidConstraint))
	case out.f != pf:
		f.setErr(fmt.Errorf("%w: precompute returned a stream of another factory", types.ErrInvalidConstraint))
	case len(pf.constraints) > 0:
		f.setErr(fmt.Errorf("%w: precompute declared constraint %s", types.ErrInvalidConstraint, pf.constraints[0].ref))
	}
	if f.err != nil {
		return &Stream{f: f}
	}

	own := make(map[*stream]bool, len(pf.streams))
	for _, s := range pf.streams {
		own[s] = true
	}
	for _, s := range pf.streams {
		for _, p := range s.parents {
			if !own[p] {
				f.setErr(fmt.Errorf("%w: precompute uses a stream of another factory", types.ErrInvalidConstraint))
				return &Stream{f: f}
			}
		}
	}
	for _, s := range pf.streams {
		s.id = len(f.streams)
		f.streams = append(f.streams, s)
	}
	f.sharedHits += pf.sharedHits

	s := &stream{kind: kindPrecompute, arity: out.s.arity, distinct: out.s.distinct,
		parents: []*stream{out.s}, static: f.static}
	return f.share(s, key)
}

// precomputeNode mirrors the sub-network's output into the main network.
type precomputeNode struct {
	nodeBase
	slot      int
	storeSize int
	byFact    map[any][]*Tuple
	out       outbox
}

func newPrecomputeNode(base nodeBase, slot, storeSize int, next Lifecycle) *precomputeNode {
	return &precomputeNode{nodeBase: base, slot: slot, storeSize: storeSize,
		byFact: make(map[any][]*Tuple), out: outbox{owner: base, next: next}}
}

func (n *precomputeNode) Insert(t *Tuple) {
	if t.store[n.slot] != nil {
		n.fail(t, "insert of tuple already inserted")
	}
	o := newTuple(t.arity, n.storeSize)
	copy(o.facts[:], t.Facts())
	n.index(o)
	t.store[n.slot] = o
	n.out.insert(o)
	n.out.flush()
}

func (n *precomputeNode) Update(t *Tuple) {
	o, ok := t.store[n.slot].(*Tuple)
	if !ok {
		n.fail(t, "update of tuple never inserted")
	}
	n.unindex(o)
	copy(o.facts[:], t.Facts())
	n.index(o)
	n.out.update(o)
	n.out.flush()
}

func (n *precomputeNode) Retract(t *Tuple) {
	o, ok := t.store[n.slot].(*Tuple)
	if !ok {
		n.fail(t, "retract of tuple never inserted")
	}
	t.store[n.slot] = nil
	n.unindex(o)
	n.out.retract(o)
	n.out.flush()
}

// touch re-propagates every mirror holding fact.
func (n *precomputeNode) touch(fact any) {
	if !indexable(fact) {
		return
	}
	for _, o := range n.byFact[fact] {
		n.out.update(o)
	}
	n.out.flush()
}

func (n *precomputeNode) index(o *Tuple) {
	facts := o.Facts()
	for i, fact := range facts {
		if !indexable(fact) || repeated(facts[:i], fact) {
			continue
		}
		n.byFact[fact] = append(n.byFact[fact], o)
	}
}

func (n *precomputeNode) unindex(o *Tuple) {
	facts := o.Facts()
	for i, fact := range facts {
		if !indexable(fact) || repeated(facts[:i], fact) {
			continue
		}
		mirrors := n.byFact[fact]
		for j, m := range mirrors {
			if m == o {
				mirrors[j] = mirrors[len(mirrors)-1]
				mirrors = mirrors[:len(mirrors)-1]
				break
			}
		}
		if len(mirrors) == 0 {
			delete(n.byFact, fact)
		} else {
			n.byFact[fact] = mirrors
		}
	}
}

func repeated(facts Facts, fact any) bool {
	for _, f := range facts {
		if indexable(f) && f == fact {
			return true
		}
	}
	return false
}

// indexable reports whether fact can be a map key without panicking.
func indexable(fact any) bool {
	return fact != nil && reflect.ValueOf(fact).Comparable()
}
