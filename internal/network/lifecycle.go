// internal/network/lifecycle.go
package network

import (
	"fmt"

	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Tuple lifecycle propagation.
 *
 * Every node consumes Insert/Update/Retract and emits the same three calls
 * downstream. Propagation is synchronous and depth-first: a node finishes
 * emitting everything caused by one upstream event before returning.
 *
 * Tuple-creating nodes buffer their output in an outbox and flush it at the
 * end of each upstream event in insert, update, retract order. Buffering
 * keeps index iteration stable while out tuples are created and lets a tuple
 * created and aborted within the same event disappear without ever being
 * propagated.
 *
 * Consistency failures panic with *types.ConsistencyError; Network recovers
 * them at its API boundary. Panics from user closures pass through untouched.
 */

// Lifecycle receives tuple events from an upstream node.
type Lifecycle interface {
	Insert(t *Tuple)
	Update(t *Tuple)
	Retract(t *Tuple)
}

// fanout multicasts events to several consumers in declaration order.
type fanout []Lifecycle

func (f fanout) Insert(t *Tuple) {
	for _, l := range f {
		l.Insert(t)
	}
}

func (f fanout) Update(t *Tuple) {
	for _, l := range f {
		l.Update(t)
	}
}

func (f fanout) Retract(t *Tuple) {
	for _, l := range f {
		l.Retract(t)
	}
}

// joinLifecycle wraps consumers into a single Lifecycle.
func joinLifecycle(ls []Lifecycle) Lifecycle {
	switch len(ls) {
	case 0:
		return fanout(nil)
	case 1:
		return ls[0]
	default:
		return fanout(append([]Lifecycle(nil), ls...))
	}
}

// binaryNode is implemented by nodes with a left and a right input.
type binaryNode interface {
	insertLeft(t *Tuple)
	updateLeft(t *Tuple)
	retractLeft(t *Tuple)
	insertRight(t *Tuple)
	updateRight(t *Tuple)
	retractRight(t *Tuple)
}

type leftInput struct{ n binaryNode }

func (l leftInput) Insert(t *Tuple)  { l.n.insertLeft(t) }
func (l leftInput) Update(t *Tuple)  { l.n.updateLeft(t) }
func (l leftInput) Retract(t *Tuple) { l.n.retractLeft(t) }

type rightInput struct{ n binaryNode }

func (r rightInput) Insert(t *Tuple)  { r.n.insertRight(t) }
func (r rightInput) Update(t *Tuple)  { r.n.updateRight(t) }
func (r rightInput) Retract(t *Tuple) { r.n.retractRight(t) }

// nodeBase carries diagnostics shared by every node.
type nodeBase struct {
	id   int
	kind string
}

func (n nodeBase) String() string { return fmt.Sprintf("%s#%d", n.kind, n.id) }

// fail aborts propagation with a consistency error naming this node and tuple.
func (n nodeBase) fail(t *Tuple, format string, args ...any) {
	e := &types.ConsistencyError{
		Node:   n.String(),
		Detail: fmt.Sprintf(format, args...),
		Err:    types.ErrImpossibleState,
	}
	if t != nil {
		e.Tuple = t.String()
	}
	panic(e)
}

// failWith is fail with an additional sentinel for errors.Is.
func (n nodeBase) failWith(sentinel error, t *Tuple, format string, args ...any) {
	e := &types.ConsistencyError{
		Node:   n.String(),
		Detail: fmt.Sprintf(format, args...),
		Err:    fmt.Errorf("%w: %w", types.ErrImpossibleState, sentinel),
	}
	if t != nil {
		e.Tuple = t.String()
	}
	panic(e)
}

// failOverflow aborts propagation after a score level overflowed.
func (n nodeBase) failOverflow(t *Tuple, err error) {
	e := &types.ConsistencyError{
		Node:   n.String(),
		Detail: err.Error(),
		Err:    types.ErrScoreOverflow,
	}
	if t != nil {
		e.Tuple = t.String()
	}
	panic(e)
}

// outbox buffers the events of a tuple-creating node.
type outbox struct {
	owner nodeBase
	next  Lifecycle
	ins   []*Tuple
	upd   []*Tuple
	ret   []*Tuple
}

func (o *outbox) insert(t *Tuple) {
	t.state = StateCreating
	o.ins = append(o.ins, t)
}

func (o *outbox) update(t *Tuple) {
	switch t.state {
	case StateCreating, StateUpdating:
		// already queued
	case StateOK:
		t.state = StateUpdating
		o.upd = append(o.upd, t)
	default:
		o.owner.fail(t, "update of tuple in state %s", t.state)
	}
}

func (o *outbox) retract(t *Tuple) {
	switch t.state {
	case StateCreating:
		t.state = StateAborting
	case StateOK:
		t.state = StateDying
		o.ret = append(o.ret, t)
	case StateUpdating:
		// the queued update is skipped on flush
		t.state = StateDying
		o.ret = append(o.ret, t)
	default:
		o.owner.fail(t, "retract of tuple in state %s", t.state)
	}
}

// flush emits buffered events in insert, update, retract order.
func (o *outbox) flush() {
	if len(o.ins) == 0 && len(o.upd) == 0 && len(o.ret) == 0 {
		return
	}
	ins, upd, ret := o.ins, o.upd, o.ret
	o.ins, o.upd, o.ret = nil, nil, nil
	for _, t := range ins {
		switch t.state {
		case StateCreating:
			t.state = StateOK
			o.next.Insert(t)
		case StateAborting:
			t.state = StateDead
		}
	}
	for _, t := range upd {
		if t.state == StateUpdating {
			t.state = StateOK
			o.next.Update(t)
		}
	}
	for _, t := range ret {
		if t.state == StateDying {
			t.state = StateDead
			o.next.Retract(t)
		}
	}
	// reuse backing arrays unless a nested flush replaced them
	if o.ins == nil && o.upd == nil && o.ret == nil {
		o.ins, o.upd, o.ret = ins[:0], upd[:0], ret[:0]
	}
}
