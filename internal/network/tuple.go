// internal/network/tuple.go
package network

import (
	"fmt"
	"strings"

	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Tuples.
 *
 * A tuple is one matched combination of up to MaxArity facts plus a store of
 * node-private slots. Slot indices are reserved at build time per tuple-source
 * stream, so every tuple created by a node carries exactly the slots its
 * downstream consumers need.
 *
 * Identity: a tuple is the same object across updates. Downstream nodes key
 * their per-tuple state off the store, never off fact equality.
 *
 * State is owned by the node that created the tuple. Pass-through nodes
 * (filter, exists) forward tuples without touching it.
 */

// TupleState tracks a tuple through its creator's outbox.
type TupleState uint8

const (
	StateCreating TupleState = iota
	StateOK
	StateUpdating
	StateDying
	StateAborting
	StateDead
)

func (s TupleState) String() string {
	switch s {
	case StateCreating:
		return "CREATING"
	case StateOK:
		return "OK"
	case StateUpdating:
		return "UPDATING"
	case StateDying:
		return "DYING"
	case StateAborting:
		return "ABORTING"
	case StateDead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// Facts is a read-only view of a tuple's facts, index 0 first.
type Facts []any

// A returns the first fact.
func (f Facts) A() any { return f[0] }

// B returns the second fact.
func (f Facts) B() any { return f[1] }

// C returns the third fact.
func (f Facts) C() any { return f[2] }

// D returns the fourth fact.
func (f Facts) D() any { return f[3] }

// Tuple is one matched combination of facts flowing through the network.
type Tuple struct {
	facts [types.MaxArity]any
	arity int
	store []any
	state TupleState
}

func newTuple(arity, storeSize int) *Tuple {
	return &Tuple{arity: arity, store: make([]any, storeSize), state: StateCreating}
}

// Facts returns the tuple's facts. The slice aliases the tuple; do not retain it
// across network calls.
func (t *Tuple) Facts() Facts { return t.facts[:t.arity] }

// Arity returns the number of facts.
func (t *Tuple) Arity() int { return t.arity }

// State returns the lifecycle state as set by the creating node.
func (t *Tuple) State() TupleState { return t.state }

func (t *Tuple) setFacts(facts ...any) {
	copy(t.facts[:], facts)
}

func (t *Tuple) String() string {
	parts := make([]string, t.arity)
	for i := 0; i < t.arity; i++ {
		parts[i] = fmt.Sprintf("%v", t.facts[i])
	}
	return "(" + strings.Join(parts, ", ") + ")[" + t.state.String() + "]"
}
